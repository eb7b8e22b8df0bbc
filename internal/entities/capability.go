package entities

import (
	"fmt"
	"strings"
)

// Capability represents an action a grant can allow on an object
type Capability int

const (
	CapabilityUnknown Capability = iota
	CapabilityView
	CapabilityChange
	CapabilityDelete
)

// AllCapabilities lists every known capability in declaration order
var AllCapabilities = []Capability{CapabilityView, CapabilityChange, CapabilityDelete}

// String returns the verb of the capability (e.g., "view")
func (c Capability) String() string {
	switch c {
	case CapabilityView:
		return "view"
	case CapabilityChange:
		return "change"
	case CapabilityDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Permission returns the permission identifier for an object kind
// Format: kind.verb (e.g., "document.view")
func (c Capability) Permission(kind string) string {
	if kind == "" {
		return c.String()
	}
	return fmt.Sprintf("%s.%s", kind, c.String())
}

// ParseCapability resolves a permission identifier to a Capability.
// The verb is the token before the first "_" of the segment after the last ".":
//
//	"view"                     -> CapabilityView
//	"app.change_thing"         -> CapabilityChange
//	"sharing.delete_testmodel" -> CapabilityDelete
//
// Matching is exact: "VIEW" or " view" are unrecognized.
// Unrecognized identifiers return CapabilityUnknown and false.
func ParseCapability(perm string) (Capability, bool) {
	verb := perm
	if i := strings.LastIndex(verb, "."); i >= 0 {
		verb = verb[i+1:]
	}
	if i := strings.Index(verb, "_"); i >= 0 {
		verb = verb[:i]
	}

	switch verb {
	case "view":
		return CapabilityView, true
	case "change":
		return CapabilityChange, true
	case "delete":
		return CapabilityDelete, true
	default:
		return CapabilityUnknown, false
	}
}

// CapabilitySet holds the three independent capability flags of a grant
type CapabilitySet struct {
	View   bool
	Change bool
	Delete bool
}

// FullCapabilities returns a set with every capability enabled
func FullCapabilities() CapabilitySet {
	return CapabilitySet{View: true, Change: true, Delete: true}
}

// Has reports whether the set contains the capability
func (s CapabilitySet) Has(c Capability) bool {
	switch c {
	case CapabilityView:
		return s.View
	case CapabilityChange:
		return s.Change
	case CapabilityDelete:
		return s.Delete
	default:
		return false
	}
}

// IsEmpty reports whether no capability is enabled
func (s CapabilitySet) IsEmpty() bool {
	return !s.View && !s.Change && !s.Delete
}

// String returns the enabled verbs joined by commas (e.g., "view,change")
func (s CapabilitySet) String() string {
	verbs := make([]string, 0, 3)
	for _, c := range AllCapabilities {
		if s.Has(c) {
			verbs = append(verbs, c.String())
		}
	}
	return strings.Join(verbs, ",")
}
