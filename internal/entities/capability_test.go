package entities

import "testing"

func TestParseCapability(t *testing.T) {
	tests := []struct {
		name   string
		perm   string
		want   Capability
		wantOK bool
	}{
		{name: "bare view", perm: "view", want: CapabilityView, wantOK: true},
		{name: "bare change", perm: "change", want: CapabilityChange, wantOK: true},
		{name: "bare delete", perm: "delete", want: CapabilityDelete, wantOK: true},
		{name: "app qualified", perm: "app.view_thing", want: CapabilityView, wantOK: true},
		{name: "app qualified change", perm: "sharing.change_testmodel", want: CapabilityChange, wantOK: true},
		{name: "app qualified delete", perm: "sharing.delete_testmodel", want: CapabilityDelete, wantOK: true},
		{name: "kind dot verb", perm: "document.view", want: CapabilityView, wantOK: true},
		{name: "upper case verb", perm: "Document.VIEW", want: CapabilityUnknown, wantOK: false},
		{name: "capitalized bare verb", perm: "View", want: CapabilityUnknown, wantOK: false},
		{name: "upper case kind", perm: "Document.view", want: CapabilityView, wantOK: true},
		{name: "surrounding spaces", perm: "  change ", want: CapabilityUnknown, wantOK: false},
		{name: "empty", perm: "", want: CapabilityUnknown, wantOK: false},
		{name: "unknown verb", perm: "app.add_thing", want: CapabilityUnknown, wantOK: false},
		{name: "verb not leading", perm: "app.thing_view", want: CapabilityUnknown, wantOK: false},
		{name: "trailing dot", perm: "app.", want: CapabilityUnknown, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCapability(tt.perm)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseCapability(%q) = (%v, %v), want (%v, %v)", tt.perm, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCapability_Permission(t *testing.T) {
	if got := CapabilityChange.Permission("document"); got != "document.change" {
		t.Errorf("Permission() = %q, want %q", got, "document.change")
	}
	if got := CapabilityView.Permission(""); got != "view" {
		t.Errorf("Permission() = %q, want %q", got, "view")
	}

	// Every generated identifier must resolve back to its capability
	for _, c := range AllCapabilities {
		got, ok := ParseCapability(c.Permission("folder"))
		if !ok || got != c {
			t.Errorf("ParseCapability(%q) = (%v, %v), want (%v, true)", c.Permission("folder"), got, ok, c)
		}
	}
}

func TestCapabilitySet(t *testing.T) {
	tests := []struct {
		name      string
		set       CapabilitySet
		wantStr   string
		wantEmpty bool
	}{
		{name: "empty", set: CapabilitySet{}, wantStr: "", wantEmpty: true},
		{name: "view only", set: CapabilitySet{View: true}, wantStr: "view"},
		{name: "view and delete", set: CapabilitySet{View: true, Delete: true}, wantStr: "view,delete"},
		{name: "full", set: FullCapabilities(), wantStr: "view,change,delete"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.set.String(); got != tt.wantStr {
				t.Errorf("String() = %q, want %q", got, tt.wantStr)
			}
			if got := tt.set.IsEmpty(); got != tt.wantEmpty {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.wantEmpty)
			}
			if tt.set.Has(CapabilityUnknown) {
				t.Error("Has(CapabilityUnknown) should always be false")
			}
		})
	}
}
