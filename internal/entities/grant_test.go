package entities

import "testing"

func TestGrant_String(t *testing.T) {
	tests := []struct {
		name  string
		grant *Grant
		want  string
	}{
		{
			name:  "user grant",
			grant: NewGrant(UserSubject("alice"), NewObjectRef("document", "1"), CapabilitySet{View: true, Change: true}),
			want:  "document:1@user:alice[view,change]",
		},
		{
			name:  "group grant",
			grant: NewGrant(GroupSubject("editors"), NewObjectRef("folder", "abc-123"), CapabilitySet{Delete: true}),
			want:  "folder:abc-123@group:editors[delete]",
		},
		{
			name:  "no capabilities",
			grant: NewGrant(UserSubject("bob"), NewObjectRef("document", "2"), CapabilitySet{}),
			want:  "document:2@user:bob[]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.grant.String(); got != tt.want {
				t.Errorf("Grant.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGrant_Validate(t *testing.T) {
	tests := []struct {
		name    string
		grant   *Grant
		wantErr bool
		errMsg  string
	}{
		{
			name:  "valid user grant",
			grant: NewGrant(UserSubject("alice"), NewObjectRef("document", "1"), FullCapabilities()),
		},
		{
			name:  "valid group grant",
			grant: NewGrant(GroupSubject("g1"), NewObjectRef("document", "1"), CapabilitySet{View: true}),
		},
		{
			name:    "unknown subject kind",
			grant:   NewGrant(Subject{Kind: "team", ID: "t1"}, NewObjectRef("document", "1"), FullCapabilities()),
			wantErr: true,
			errMsg:  `subject kind must be "user" or "group", got "team"`,
		},
		{
			name:    "missing subject ID",
			grant:   NewGrant(UserSubject(""), NewObjectRef("document", "1"), FullCapabilities()),
			wantErr: true,
			errMsg:  "subject ID is required",
		},
		{
			name:    "missing target kind",
			grant:   NewGrant(UserSubject("alice"), NewObjectRef("", "1"), FullCapabilities()),
			wantErr: true,
			errMsg:  "invalid target: object kind is required",
		},
		{
			name:    "missing target ID",
			grant:   NewGrant(UserSubject("alice"), NewObjectRef("document", ""), FullCapabilities()),
			wantErr: true,
			errMsg:  "invalid target: object ID is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.grant.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Grant.Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && err.Error() != tt.errMsg {
				t.Errorf("Grant.Validate() error = %v, want %v", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestGrant_Allows(t *testing.T) {
	g := NewGrant(UserSubject("alice"), NewObjectRef("document", "1"), CapabilitySet{View: true})

	if !g.Allows(CapabilityView) {
		t.Error("expected view to be allowed")
	}
	if g.Allows(CapabilityChange) {
		t.Error("expected change to be denied")
	}
	if g.Allows(CapabilityDelete) {
		t.Error("expected delete to be denied")
	}
	if g.Allows(CapabilityUnknown) {
		t.Error("expected unknown capability to be denied")
	}
}

func TestAnyAllows(t *testing.T) {
	target := NewObjectRef("document", "1")
	viewOnly := NewGrant(UserSubject("alice"), target, CapabilitySet{View: true})
	changeOnly := NewGrant(UserSubject("alice"), target, CapabilitySet{Change: true})

	tests := []struct {
		name   string
		grants []*Grant
		cap    Capability
		want   bool
	}{
		{name: "no grants", grants: nil, cap: CapabilityView, want: false},
		{name: "nil entry", grants: []*Grant{nil}, cap: CapabilityView, want: false},
		{name: "single match", grants: []*Grant{viewOnly}, cap: CapabilityView, want: true},
		{name: "duplicates are OR'ed", grants: []*Grant{viewOnly, changeOnly}, cap: CapabilityChange, want: true},
		{name: "no match", grants: []*Grant{viewOnly, changeOnly}, cap: CapabilityDelete, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AnyAllows(tt.grants, tt.cap); got != tt.want {
				t.Errorf("AnyAllows() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestObjectRef_Parse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ObjectRef
		wantErr bool
	}{
		{name: "simple", input: "document:1", want: ObjectRef{Kind: "document", ID: "1"}},
		{name: "id with colon", input: "user:bob:smith", want: ObjectRef{Kind: "user", ID: "bob:smith"}},
		{name: "no separator", input: "document", wantErr: true},
		{name: "empty kind", input: ":1", wantErr: true},
		{name: "empty id", input: "document:", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseObjectRef(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseObjectRef() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseObjectRef() = %v, want %v", got, tt.want)
			}
			if !tt.wantErr && got.String() != tt.input {
				t.Errorf("String() = %q, want %q", got.String(), tt.input)
			}
		})
	}
}

func TestUser_Owns(t *testing.T) {
	alice := &User{ID: "alice", Authenticated: true}

	if !alice.Owns(NewObjectRef(UserKind, "alice")) {
		t.Error("expected user to own their identity record")
	}
	if alice.Owns(NewObjectRef(UserKind, "bob")) {
		t.Error("expected user not to own another identity record")
	}
	if alice.Owns(NewObjectRef("document", "alice")) {
		t.Error("expected self access to apply only to user records")
	}
	if Anonymous().Owns(NewObjectRef(UserKind, "")) {
		t.Error("expected anonymous user to own nothing")
	}

	var nilUser *User
	if !nilUser.IsAnonymous() {
		t.Error("expected nil user to be anonymous")
	}
	if (&User{ID: "carol"}).IsAnonymous() == false {
		t.Error("expected unauthenticated user to be anonymous")
	}
}
