package entities

import (
	"fmt"
	"strings"
)

// ObjectRef references any object by kind and id
// Example: document:1
// The referenced object's existence is not guaranteed by the reference itself.
type ObjectRef struct {
	Kind string // Object kind (e.g., "document", "user")
	ID   string // Object ID (e.g., "1")
}

// NewObjectRef creates a reference to an object
func NewObjectRef(kind, id string) ObjectRef {
	return ObjectRef{Kind: kind, ID: id}
}

// String returns a string representation of the reference
// Format: kind:id
func (r ObjectRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// Validate checks if the reference is valid
func (r ObjectRef) Validate() error {
	if r.Kind == "" {
		return fmt.Errorf("object kind is required")
	}
	if r.ID == "" {
		return fmt.Errorf("object ID is required")
	}
	return nil
}

// ParseObjectRef parses a reference like "document:1"
func ParseObjectRef(s string) (ObjectRef, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok {
		return ObjectRef{}, fmt.Errorf("invalid object reference %q: expected kind:id", s)
	}
	ref := ObjectRef{Kind: kind, ID: id}
	if err := ref.Validate(); err != nil {
		return ObjectRef{}, fmt.Errorf("invalid object reference %q: %w", s, err)
	}
	return ref, nil
}
