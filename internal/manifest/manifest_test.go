package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyrup-ai/action-items-sub005/internal/capability"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")

	content := `{
		"id": "test-plugin",
		"name": "Test Plugin",
		"version": "1.0.0",
		"description": "A test plugin",
		"author": "someone",
		"capabilities": ["search", "clipboard_access"],
		"commands": [
			{"id": "test.command", "title": "Test Command"}
		],
		"actions": [
			{"id": "test.open", "title": "Open"}
		],
		"configuration": [
			{"name": "limit", "type": "number", "default": 10}
		],
		"environment": {"MODE": "dev"}
	}`

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test manifest: %v", err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if m.ID != "test-plugin" {
		t.Errorf("ID = %q, want %q", m.ID, "test-plugin")
	}
	if m.Version != "1.0.0" {
		t.Errorf("Version = %q, want %q", m.Version, "1.0.0")
	}
	if !m.HasCapability(capability.CapabilitySearch) {
		t.Error("HasCapability(search) = false")
	}
	if !m.HasCapability(capability.CapabilityClipboard) {
		t.Error("HasCapability(clipboard_access) = false")
	}
	if len(m.Commands) != 1 || m.Commands[0].ID != "test.command" {
		t.Errorf("Commands = %v", m.Commands)
	}
	if len(m.Actions) != 1 || m.Actions[0].ID != "test.open" {
		t.Errorf("Actions = %v", m.Actions)
	}
	if m.Environment["MODE"] != "dev" {
		t.Errorf("Environment = %v", m.Environment)
	}
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr error
	}{
		{"missing id", `{"version": "1.0.0"}`, ErrMissingID},
		{"bad id", `{"id": "Bad_ID!", "version": "1.0.0"}`, ErrInvalidID},
		{"bad version", `{"id": "ok", "version": "nope"}`, ErrInvalidVersion},
		{"bad capability", `{"id": "ok", "version": "1.0.0", "capabilities": ["teleport"]}`, ErrInvalidCapability},
		{"missing command id", `{"id": "ok", "version": "1.0.0", "commands": [{"title": "x"}]}`, ErrMissingCommandID},
		{"missing action id", `{"id": "ok", "version": "1.0.0", "actions": [{"title": "x"}]}`, ErrMissingActionID},
		{"bad config type", `{"id": "ok", "version": "1.0.0", "configuration": [{"name": "x", "type": "blob"}]}`, ErrInvalidConfigType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.json))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	m, err := Parse([]byte(`{"id": "bare"}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if m.Version != "0.0.0" {
		t.Errorf("Version = %q, want 0.0.0", m.Version)
	}
	if m.Name != "bare" {
		t.Errorf("Name = %q, want bare", m.Name)
	}
}

func TestParseInvalidJSON(t *testing.T) {
	if _, err := Parse([]byte(`{not json`)); err == nil {
		t.Error("Parse() expected error for invalid JSON")
	}
}

func TestSynthesize(t *testing.T) {
	m := Synthesize("/plugins/My Calculator.wasm")
	if m.ID != "my-calculator" {
		t.Errorf("ID = %q, want my-calculator", m.ID)
	}
	if m.Version != "0.0.0" {
		t.Errorf("Version = %q, want 0.0.0", m.Version)
	}
	if !m.HasCapability(capability.CapabilitySearch) {
		t.Error("synthesized manifest must declare search")
	}
	if err := m.Validate(); err != nil {
		t.Errorf("synthesized manifest invalid: %v", err)
	}
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Calculator", "calculator"},
		{"My Plugin_2", "my-plugin-2"},
		{"---", "plugin"},
		{"a", "a"},
		{"2048", "2048"},
	}
	for _, tt := range tests {
		if got := NormalizeID(tt.in); got != tt.want {
			t.Errorf("NormalizeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDigitLeadingIDValid(t *testing.T) {
	// Extension names like "2048" normalize to a digit-leading id, which
	// must round-trip through validation.
	m, err := Parse([]byte(`{"id": "2048", "version": "1.0.0"}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if m.ID != "2048" {
		t.Errorf("ID = %q, want 2048", m.ID)
	}
	if err := (&Manifest{ID: NormalizeID("2048"), Version: "1.0.0"}).Validate(); err != nil {
		t.Errorf("normalized digit-leading id rejected: %v", err)
	}
}

func TestClone(t *testing.T) {
	m, err := Parse([]byte(`{
		"id": "orig", "version": "1.0.0",
		"capabilities": ["search"],
		"environment": {"A": "1"}
	}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	c := m.Clone()
	c.Capabilities[0] = capability.CapabilityStorage
	c.Environment["A"] = "2"

	if m.Capabilities[0] != capability.CapabilitySearch {
		t.Error("Clone() shares capability slice with original")
	}
	if m.Environment["A"] != "1" {
		t.Error("Clone() shares environment map with original")
	}
}

func TestConfigDefaults(t *testing.T) {
	m, err := Parse([]byte(`{
		"id": "cfg", "version": "1.0.0",
		"configuration": [
			{"name": "limit", "type": "number", "default": 25},
			{"name": "token", "type": "string"}
		]
	}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	defaults := m.ConfigDefaults()
	if len(defaults) != 1 {
		t.Fatalf("ConfigDefaults() = %v, want 1 entry", defaults)
	}
	if defaults["limit"] != float64(25) {
		t.Errorf("defaults[limit] = %v, want 25", defaults["limit"])
	}
}
