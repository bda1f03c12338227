// Package bridge is the capability-gated message bus between plugins
// and host services. Plugins enqueue typed service requests; a
// worker-pool dispatcher executes them and completes exactly one typed
// response per request, matched by correlation id.
package bridge

import (
	"encoding/json"

	"github.com/cyrup-ai/action-items-sub005/internal/capability"
)

// Kind identifies a service operation.
type Kind int

// Service operation kinds.
const (
	// KindClipboardRead reads the host clipboard.
	KindClipboardRead Kind = iota

	// KindClipboardWrite writes the host clipboard.
	KindClipboardWrite

	// KindNotification posts a user notification.
	KindNotification

	// KindHTTP performs an outbound HTTP request.
	KindHTTP

	// KindStorageRead reads a persisted value for the plugin.
	KindStorageRead

	// KindStorageWrite persists a value for the plugin.
	KindStorageWrite

	// KindCallback delivers a generic callback payload to the host.
	KindCallback

	// KindSearch asks a plugin to answer a search query. Host
	// originated; used by the search orchestrator for fan-out.
	KindSearch
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindClipboardRead:
		return "clipboard_read"
	case KindClipboardWrite:
		return "clipboard_write"
	case KindNotification:
		return "notification"
	case KindHTTP:
		return "http"
	case KindStorageRead:
		return "storage_read"
	case KindStorageWrite:
		return "storage_write"
	case KindCallback:
		return "callback"
	case KindSearch:
		return "search"
	default:
		return "unknown"
	}
}

// hostOriginated reports kinds the host dispatches to plugins rather
// than plugins submitting to the host. They carry no per-plugin
// ordering guarantee and must not occupy a dispatch lane: the plugin
// answering one may submit nested service requests of its own.
func (k Kind) hostOriginated() bool {
	return k == KindSearch
}

// RequiredCapability returns the capability a plugin must declare
// before a request of this kind is honored. Returns false for kinds
// that are not capability gated (callbacks and host-originated search
// dispatch).
func (k Kind) RequiredCapability() (capability.Capability, bool) {
	switch k {
	case KindClipboardRead, KindClipboardWrite:
		return capability.CapabilityClipboard, true
	case KindNotification:
		return capability.CapabilityNotifications, true
	case KindHTTP:
		return capability.CapabilityNetwork, true
	case KindStorageRead, KindStorageWrite:
		return capability.CapabilityStorage, true
	default:
		return "", false
	}
}

// ServiceRequest is one typed operation submitted to the bridge.
// PluginID names the plugin the request concerns: the requesting plugin
// for service operations, the target plugin for search dispatch. The
// correlation id is assigned by the bridge at submission.
type ServiceRequest struct {
	Kind     Kind
	PluginID string
	Payload  json.RawMessage
}

// ServiceResponse is the single completion of a request, referencing the
// request's correlation id.
type ServiceResponse struct {
	CorrelationID string
	Kind          Kind
	PluginID      string
	Success       bool
	Payload       json.RawMessage
	Err           string
}
