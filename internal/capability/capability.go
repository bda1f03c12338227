// Package capability defines the named optional behaviors a plugin can
// declare and an index answering which plugins support which behavior.
package capability

import "fmt"

// Capability represents a named optional behavior a plugin supports.
// Capability names are hierarchical - "storage.read" is a child of
// "storage".
type Capability string

// Core capabilities plugins can declare.
const (
	// CapabilitySearch marks a plugin that answers search queries.
	CapabilitySearch Capability = "search"

	// CapabilityBackgroundRefresh marks a plugin with a periodic
	// refresh entry point.
	CapabilityBackgroundRefresh Capability = "background_refresh"

	// CapabilityNotifications allows posting user notifications.
	CapabilityNotifications Capability = "notifications"

	// CapabilityClipboard allows clipboard read and write.
	CapabilityClipboard Capability = "clipboard_access"

	// CapabilityFileSystem allows filesystem access.
	CapabilityFileSystem Capability = "file_system_access"

	// CapabilityNetwork allows outbound HTTP requests.
	CapabilityNetwork Capability = "network_access"

	// CapabilityQuickActions marks a plugin contributing quick actions.
	CapabilityQuickActions Capability = "quick_actions"

	// CapabilityStorage allows persistent key/value storage.
	CapabilityStorage Capability = "storage"
)

// Info provides metadata about a capability.
type Info struct {
	// Name is the capability identifier.
	Name Capability

	// DisplayName is a human-readable name.
	DisplayName string

	// Description explains what the capability allows.
	Description string

	// RiskLevel indicates how dangerous this capability is.
	RiskLevel RiskLevel

	// RequiresUserApproval indicates if the user must explicitly approve.
	RequiresUserApproval bool
}

// RiskLevel indicates the security risk of a capability.
type RiskLevel int

const (
	// RiskLow indicates minimal security risk.
	RiskLow RiskLevel = iota

	// RiskMedium indicates moderate security risk.
	RiskMedium

	// RiskHigh indicates significant security risk.
	RiskHigh
)

// String returns a string representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// registry holds metadata about all known capabilities.
var registry = map[Capability]Info{
	CapabilitySearch: {
		Name:        CapabilitySearch,
		DisplayName: "Search",
		Description: "Answer launcher search queries",
		RiskLevel:   RiskLow,
	},
	CapabilityBackgroundRefresh: {
		Name:        CapabilityBackgroundRefresh,
		DisplayName: "Background Refresh",
		Description: "Run a periodic refresh in the background",
		RiskLevel:   RiskLow,
	},
	CapabilityNotifications: {
		Name:        CapabilityNotifications,
		DisplayName: "Notifications",
		Description: "Post user notifications",
		RiskLevel:   RiskLow,
	},
	CapabilityClipboard: {
		Name:                 CapabilityClipboard,
		DisplayName:          "Clipboard Access",
		Description:          "Read and write the clipboard",
		RiskLevel:            RiskMedium,
		RequiresUserApproval: false,
	},
	CapabilityFileSystem: {
		Name:                 CapabilityFileSystem,
		DisplayName:          "File System Access",
		Description:          "Read and write files",
		RiskLevel:            RiskHigh,
		RequiresUserApproval: true,
	},
	CapabilityNetwork: {
		Name:                 CapabilityNetwork,
		DisplayName:          "Network Access",
		Description:          "Make outbound HTTP requests",
		RiskLevel:            RiskHigh,
		RequiresUserApproval: true,
	},
	CapabilityQuickActions: {
		Name:        CapabilityQuickActions,
		DisplayName: "Quick Actions",
		Description: "Contribute quick actions to the launcher",
		RiskLevel:   RiskLow,
	},
	CapabilityStorage: {
		Name:        CapabilityStorage,
		DisplayName: "Storage",
		Description: "Persist key/value data between sessions",
		RiskLevel:   RiskMedium,
	},
}

// GetInfo returns information about a capability.
func GetInfo(cap Capability) (Info, bool) {
	info, ok := registry[cap]
	return info, ok
}

// IsValid returns true if the capability is known.
func IsValid(cap Capability) bool {
	_, ok := registry[cap]
	return ok
}

// All returns all known capabilities.
func All() []Capability {
	caps := make([]Capability, 0, len(registry))
	for cap := range registry {
		caps = append(caps, cap)
	}
	return caps
}

// HighRisk returns capabilities that require user approval.
func HighRisk() []Capability {
	var caps []Capability
	for cap, info := range registry {
		if info.RequiresUserApproval {
			caps = append(caps, cap)
		}
	}
	return caps
}

// Error represents a capability-related error.
type Error struct {
	Capability Capability
	PluginID   string
	Message    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.PluginID != "" {
		return fmt.Sprintf("capability %q denied for plugin %q: %s", e.Capability, e.PluginID, e.Message)
	}
	return fmt.Sprintf("capability %q: %s", e.Capability, e.Message)
}

// NewError creates a new capability error.
func NewError(cap Capability, pluginID, message string) *Error {
	return &Error{Capability: cap, PluginID: pluginID, Message: message}
}
