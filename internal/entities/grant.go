package entities

import (
	"fmt"
	"time"
)

// SubjectKind distinguishes user grants from group grants
type SubjectKind string

const (
	SubjectUser  SubjectKind = "user"
	SubjectGroup SubjectKind = "group"
)

// Valid reports whether the kind is a known subject kind
func (k SubjectKind) Valid() bool {
	return k == SubjectUser || k == SubjectGroup
}

// Subject is the user or group a grant applies to
type Subject struct {
	Kind SubjectKind // SubjectUser or SubjectGroup
	ID   string      // User ID or group ID
}

// UserSubject returns the subject for a user
func UserSubject(userID string) Subject {
	return Subject{Kind: SubjectUser, ID: userID}
}

// GroupSubject returns the subject for a group
func GroupSubject(groupID string) Subject {
	return Subject{Kind: SubjectGroup, ID: groupID}
}

// String returns a string representation of the subject
// Format: kind:id
func (s Subject) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.ID)
}

// Validate checks if the subject is valid
func (s Subject) Validate() error {
	if !s.Kind.Valid() {
		return fmt.Errorf("subject kind must be %q or %q, got %q", SubjectUser, SubjectGroup, s.Kind)
	}
	if s.ID == "" {
		return fmt.Errorf("subject ID is required")
	}
	return nil
}

// Grant allows a subject one or more capabilities on a target object
// Example: document:1@user:alice[view,change]
// Subject and Target are fixed at creation; only the capability flags change afterwards.
type Grant struct {
	ID        string    // Store-assigned identifier
	Subject   Subject   // Who the grant applies to
	Target    ObjectRef // What the grant applies to
	CanView   bool
	CanChange bool
	CanDelete bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewGrant creates a grant from a capability set
func NewGrant(subject Subject, target ObjectRef, caps CapabilitySet) *Grant {
	g := &Grant{Subject: subject, Target: target}
	g.SetCapabilities(caps)
	return g
}

// Capabilities returns the grant flags as a set
func (g *Grant) Capabilities() CapabilitySet {
	return CapabilitySet{View: g.CanView, Change: g.CanChange, Delete: g.CanDelete}
}

// SetCapabilities replaces the grant flags
func (g *Grant) SetCapabilities(caps CapabilitySet) {
	g.CanView = caps.View
	g.CanChange = caps.Change
	g.CanDelete = caps.Delete
}

// Allows reports whether the grant has the capability flag set
func (g *Grant) Allows(c Capability) bool {
	return g.Capabilities().Has(c)
}

// String returns a string representation of the grant
// Format: target_kind:target_id@subject_kind:subject_id[caps]
func (g *Grant) String() string {
	return fmt.Sprintf("%s@%s[%s]", g.Target, g.Subject, g.Capabilities())
}

// Validate checks if the grant is valid
func (g *Grant) Validate() error {
	if err := g.Subject.Validate(); err != nil {
		return err
	}
	if err := g.Target.Validate(); err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}
	return nil
}

// AnyAllows reports whether any grant allows the capability
// Grants are OR'ed; there is no explicit deny.
func AnyAllows(grants []*Grant, c Capability) bool {
	for _, g := range grants {
		if g != nil && g.Allows(c) {
			return true
		}
	}
	return false
}
