// Package manifest defines the normalized plugin manifest produced by
// discovery and consumed by the registry. A manifest is immutable once
// a plugin is loaded.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cyrup-ai/action-items-sub005/internal/capability"
)

// Manifest describes a plugin's identity, declared capabilities, and
// contributions.
type Manifest struct {
	// Identity
	ID          string `json:"id"`          // Unique, stable identifier (e.g., "calculator")
	Name        string `json:"name"`        // Human-readable name
	Version     string `json:"version"`     // Semver (e.g., "1.2.0")
	Description string `json:"description"` // Short description
	Author      string `json:"author"`      // Author name or org

	// Capabilities declared
	Capabilities []capability.Capability `json:"capabilities"`

	// Contributions
	Commands []Command `json:"commands"`
	Actions  []Action  `json:"actions"`

	// Configuration field declarations
	Configuration []ConfigField `json:"configuration"`

	// Environment passed to the plugin at load time
	Environment map[string]string `json:"environment"`
}

// Command declares a command the plugin provides.
type Command struct {
	ID          string `json:"id"`          // Command id (e.g., "calculator.evaluate")
	Title       string `json:"title"`       // Display title
	Description string `json:"description"` // Long description
	Mode        string `json:"mode"`        // How the command presents (view, no-view, ...)
}

// Action declares an action a plugin can execute on a search result.
type Action struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ConfigField describes a configuration option the plugin accepts.
type ConfigField struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string, number, boolean, array, object
	Default     any    `json:"default"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Validation errors.
var (
	ErrMissingID         = errors.New("manifest: id is required")
	ErrInvalidID         = errors.New("manifest: id must be alphanumeric with hyphens")
	ErrMissingVersion    = errors.New("manifest: version is required")
	ErrInvalidVersion    = errors.New("manifest: version must be valid semver")
	ErrInvalidCapability = errors.New("manifest: invalid capability")
	ErrInvalidConfigType = errors.New("manifest: invalid configuration field type")
	ErrMissingCommandID  = errors.New("manifest: command id is required")
	ErrMissingActionID   = errors.New("manifest: action id is required")
)

// idPattern validates plugin ids. Ids may start with a digit: extension
// names like "2048" normalize to themselves and must stay loadable.
var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$|^[a-z0-9]$`)

// semverPattern validates version strings (simplified semver).
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// validConfigTypes are the allowed configuration field types.
var validConfigTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"boolean": true,
	"array":   true,
	"object":  true,
}

// Load loads and validates a manifest from a JSON file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates a manifest from JSON bytes.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Synthesize creates a minimal manifest for a bare plugin package that
// supplies no manifest of its own (a lone dynamic library or bytecode
// file). Degraded-mode support, not an error.
func Synthesize(path string) *Manifest {
	base := filepath.Base(path)
	id := NormalizeID(strings.TrimSuffix(base, filepath.Ext(base)))

	return &Manifest{
		ID:           id,
		Name:         id,
		Version:      "0.0.0",
		Description:  fmt.Sprintf("Plugin loaded from %s", base),
		Capabilities: []capability.Capability{capability.CapabilitySearch},
	}
}

// NormalizeID lowers a raw name into a valid plugin id. Characters
// outside [a-z0-9-] become hyphens; leading/trailing hyphens are trimmed.
func NormalizeID(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	id := strings.Trim(b.String(), "-")
	if id == "" {
		id = "plugin"
	}
	return id
}

// applyDefaults sets default values for optional fields.
func (m *Manifest) applyDefaults() {
	if m.Version == "" {
		m.Version = "0.0.0"
	}
	if m.Name == "" {
		m.Name = m.ID
	}
	if m.Environment == nil {
		m.Environment = make(map[string]string)
	}
}

// Validate checks that the manifest is valid.
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return ErrMissingID
	}
	if !idPattern.MatchString(m.ID) {
		return fmt.Errorf("%w: %s", ErrInvalidID, m.ID)
	}

	if m.Version == "" {
		return ErrMissingVersion
	}
	if !semverPattern.MatchString(m.Version) {
		return fmt.Errorf("%w: %s", ErrInvalidVersion, m.Version)
	}

	for _, cap := range m.Capabilities {
		if !capability.IsValid(cap) {
			return fmt.Errorf("%w: %s", ErrInvalidCapability, cap)
		}
	}

	for i, cmd := range m.Commands {
		if cmd.ID == "" {
			return fmt.Errorf("%w at index %d", ErrMissingCommandID, i)
		}
	}

	for i, act := range m.Actions {
		if act.ID == "" {
			return fmt.Errorf("%w at index %d", ErrMissingActionID, i)
		}
	}

	for _, field := range m.Configuration {
		if field.Type != "" && !validConfigTypes[field.Type] {
			return fmt.Errorf("%w: %s.%s has type %q", ErrInvalidConfigType, m.ID, field.Name, field.Type)
		}
	}

	return nil
}

// HasCapability returns true if the plugin declares the capability.
func (m *Manifest) HasCapability(cap capability.Capability) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// ConfigDefaults returns all default configuration values.
func (m *Manifest) ConfigDefaults() map[string]any {
	defaults := make(map[string]any)
	for _, field := range m.Configuration {
		if field.Default != nil {
			defaults[field.Name] = field.Default
		}
	}
	return defaults
}

// String returns a string representation of the manifest.
func (m *Manifest) String() string {
	display := m.Name
	if display == "" {
		display = m.ID
	}
	return fmt.Sprintf("%s v%s", display, m.Version)
}

// Clone creates a deep copy of the manifest.
func (m *Manifest) Clone() *Manifest {
	clone := *m

	if m.Capabilities != nil {
		clone.Capabilities = make([]capability.Capability, len(m.Capabilities))
		copy(clone.Capabilities, m.Capabilities)
	}
	if m.Commands != nil {
		clone.Commands = make([]Command, len(m.Commands))
		copy(clone.Commands, m.Commands)
	}
	if m.Actions != nil {
		clone.Actions = make([]Action, len(m.Actions))
		copy(clone.Actions, m.Actions)
	}
	if m.Configuration != nil {
		clone.Configuration = make([]ConfigField, len(m.Configuration))
		copy(clone.Configuration, m.Configuration)
	}
	if m.Environment != nil {
		clone.Environment = make(map[string]string, len(m.Environment))
		for k, v := range m.Environment {
			clone.Environment[k] = v
		}
	}

	return &clone
}
