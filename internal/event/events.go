package event

import (
	"time"

	"github.com/cyrup-ai/action-items-sub005/internal/capability"
	"github.com/cyrup-ai/action-items-sub005/internal/runtime"
)

// Topics published by the plugin host.
const (
	TopicPluginRegistered   Topic = "plugin.registered"
	TopicPluginUnregistered Topic = "plugin.unregistered"
	TopicPluginLoadFailed   Topic = "plugin.load_failed"
	TopicSearchRequested    Topic = "search.requested"
	TopicSearchCompleted    Topic = "search.completed"
)

// PluginRegistered is published after a plugin joins the registry.
type PluginRegistered struct {
	PluginID     string
	Kind         runtime.Kind
	Capabilities []capability.Capability
}

func (PluginRegistered) EventTopic() Topic { return TopicPluginRegistered }

// PluginUnregistered is published after a plugin fully leaves the
// registry.
type PluginUnregistered struct {
	PluginID string
}

func (PluginUnregistered) EventTopic() Topic { return TopicPluginUnregistered }

// PluginLoadFailed is published when a discovered package fails to
// load. The host keeps running; the package is skipped.
type PluginLoadFailed struct {
	Path   string
	Reason string
}

func (PluginLoadFailed) EventTopic() Topic { return TopicPluginLoadFailed }

// SearchRequested is published when a query fans out to plugins.
type SearchRequested struct {
	SearchID string
	Query    string
	Expected []string
}

func (SearchRequested) EventTopic() Topic { return TopicSearchRequested }

// SearchCompleted is published when a search aggregates, whether every
// plugin responded or the deadline cut it short.
type SearchCompleted struct {
	SearchID string
	Query    string
	Results  int
	Failed   map[string]string
	Elapsed  time.Duration
}

func (SearchCompleted) EventTopic() Topic { return TopicSearchCompleted }
