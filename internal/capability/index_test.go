package capability

import (
	"reflect"
	"testing"
)

func TestIndexRegisterLookup(t *testing.T) {
	x := NewIndex()
	x.Register("calc", []Capability{CapabilitySearch, CapabilityClipboard})
	x.Register("notes", []Capability{CapabilitySearch, CapabilityStorage})

	got := x.PluginsWith(CapabilitySearch)
	want := []string{"calc", "notes"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PluginsWith(search) = %v, want %v", got, want)
	}

	caps := x.CapabilitiesOf("calc")
	wantCaps := []Capability{CapabilityClipboard, CapabilitySearch}
	if !reflect.DeepEqual(caps, wantCaps) {
		t.Errorf("CapabilitiesOf(calc) = %v, want %v", caps, wantCaps)
	}

	if !x.Has("calc", CapabilitySearch) {
		t.Error("Has(calc, search) = false, want true")
	}
	if x.Has("calc", CapabilityStorage) {
		t.Error("Has(calc, storage) = true, want false")
	}
}

func TestIndexReregisterReplacesSet(t *testing.T) {
	x := NewIndex()
	x.Register("p", []Capability{CapabilitySearch, CapabilityClipboard})
	x.Register("p", []Capability{CapabilityStorage})

	if x.Has("p", CapabilitySearch) {
		t.Error("stale capability survived re-registration")
	}
	if !x.Has("p", CapabilityStorage) {
		t.Error("new capability missing after re-registration")
	}
	if got := x.PluginsWith(CapabilitySearch); len(got) != 0 {
		t.Errorf("PluginsWith(search) = %v, want empty", got)
	}
}

func TestIndexUnregister(t *testing.T) {
	x := NewIndex()
	x.Register("a", []Capability{CapabilitySearch})
	x.Register("b", []Capability{CapabilitySearch, CapabilityNetwork})
	x.Unregister("b")

	if got := x.PluginsWith(CapabilitySearch); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("PluginsWith(search) = %v, want [a]", got)
	}
	if got := x.PluginsWith(CapabilityNetwork); len(got) != 0 {
		t.Errorf("PluginsWith(network) = %v, want empty", got)
	}
	if got := x.CapabilitiesOf("b"); got != nil {
		t.Errorf("CapabilitiesOf(b) = %v, want nil", got)
	}
}

func TestIndexUnregisterUnknownIsNoop(t *testing.T) {
	x := NewIndex()
	x.Register("a", []Capability{CapabilitySearch})
	x.Unregister("missing")

	if x.Plugins() != 1 {
		t.Errorf("Plugins() = %d, want 1", x.Plugins())
	}
}

func TestIndexPrefixSearch(t *testing.T) {
	x := NewIndex()
	x.Register("a", []Capability{CapabilityClipboard, CapabilityStorage})
	x.Register("b", []Capability{CapabilitySearch})

	tests := []struct {
		name   string
		prefix string
		want   []Capability
	}{
		{"matches one", "clip", []Capability{CapabilityClipboard}},
		{"matches several", "s", []Capability{CapabilitySearch, CapabilityStorage}},
		{"empty prefix matches all", "", []Capability{CapabilityClipboard, CapabilitySearch, CapabilityStorage}},
		{"no match", "zzz", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := x.SearchByPrefix(tt.prefix)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SearchByPrefix(%q) = %v, want %v", tt.prefix, got, tt.want)
			}
		})
	}
}

func TestIndexPrefixSearchPrunesEmptyEntries(t *testing.T) {
	x := NewIndex()
	x.Register("only", []Capability{CapabilityQuickActions})
	x.Unregister("only")

	if got := x.SearchByPrefix("quick"); got != nil {
		t.Errorf("pruned capability still discoverable: %v", got)
	}
	if x.Capabilities() != 0 {
		t.Errorf("Capabilities() = %d, want 0", x.Capabilities())
	}
}

func TestIsValid(t *testing.T) {
	if !IsValid(CapabilitySearch) {
		t.Error("IsValid(search) = false")
	}
	if IsValid("bogus") {
		t.Error("IsValid(bogus) = true")
	}
}
