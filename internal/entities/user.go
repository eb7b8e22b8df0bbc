package entities

// UserKind is the object kind of user identity records
const UserKind = "user"

// User is the identity a permission question is asked for
type User struct {
	ID            string
	Authenticated bool
	Superuser     bool
	Groups        []string // IDs of the groups the user currently belongs to
}

// Anonymous returns an unauthenticated user
func Anonymous() *User {
	return &User{}
}

// IsAnonymous reports whether the user has no authenticated identity
func (u *User) IsAnonymous() bool {
	return u == nil || !u.Authenticated || u.ID == ""
}

// Ref returns the reference to the user's own identity record
func (u *User) Ref() ObjectRef {
	return ObjectRef{Kind: UserKind, ID: u.ID}
}

// Owns reports whether ref is the user's own identity record
func (u *User) Owns(ref ObjectRef) bool {
	return !u.IsAnonymous() && ref.Kind == UserKind && ref.ID == u.ID
}
