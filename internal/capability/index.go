package capability

import (
	"sort"
	"strings"
	"sync"
)

// Index is a bidirectional map between plugin ids and the capabilities
// they declare. Lookups in either direction are O(1). Reads may be
// concurrent; register/unregister are exclusive.
type Index struct {
	mu sync.RWMutex

	// byPlugin maps plugin id -> declared capability set.
	byPlugin map[string]map[Capability]struct{}

	// byCapability maps capability -> plugin ids declaring it.
	byCapability map[Capability]map[string]struct{}

	// names holds every capability with at least one plugin, sorted,
	// for prefix search. Pruned when the last plugin unregisters.
	names []Capability
}

// NewIndex creates an empty capability index.
func NewIndex() *Index {
	return &Index{
		byPlugin:     make(map[string]map[Capability]struct{}),
		byCapability: make(map[Capability]map[string]struct{}),
	}
}

// Register records the capability set for a plugin. A second Register
// for the same plugin id replaces its previous set, so the index always
// reflects the manifest at last registration.
func (x *Index) Register(pluginID string, caps []Capability) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.removeLocked(pluginID)

	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
		plugins, ok := x.byCapability[c]
		if !ok {
			plugins = make(map[string]struct{})
			x.byCapability[c] = plugins
			x.insertName(c)
		}
		plugins[pluginID] = struct{}{}
	}
	x.byPlugin[pluginID] = set
}

// Unregister removes a plugin from the index. Capabilities with no
// remaining plugins are pruned from the prefix-search structure.
func (x *Index) Unregister(pluginID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(pluginID)
}

// removeLocked purges a plugin from both directions. Caller holds mu.
func (x *Index) removeLocked(pluginID string) {
	set, ok := x.byPlugin[pluginID]
	if !ok {
		return
	}
	delete(x.byPlugin, pluginID)

	for c := range set {
		plugins := x.byCapability[c]
		delete(plugins, pluginID)
		if len(plugins) == 0 {
			delete(x.byCapability, c)
			x.deleteName(c)
		}
	}
}

// PluginsWith returns the ids of all plugins declaring the capability,
// sorted for deterministic iteration.
func (x *Index) PluginsWith(cap Capability) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	plugins, ok := x.byCapability[cap]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(plugins))
	for id := range plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CapabilitiesOf returns the capability set declared by a plugin,
// sorted for deterministic iteration.
func (x *Index) CapabilitiesOf(pluginID string) []Capability {
	x.mu.RLock()
	defer x.mu.RUnlock()

	set, ok := x.byPlugin[pluginID]
	if !ok {
		return nil
	}
	caps := make([]Capability, 0, len(set))
	for c := range set {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// Has returns true if the plugin declares the capability.
func (x *Index) Has(pluginID string, cap Capability) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()

	set, ok := x.byPlugin[pluginID]
	if !ok {
		return false
	}
	_, ok = set[cap]
	return ok
}

// SearchByPrefix returns all capabilities with at least one registered
// plugin whose name starts with prefix, in sorted order.
func (x *Index) SearchByPrefix(prefix string) []Capability {
	x.mu.RLock()
	defer x.mu.RUnlock()

	// names is sorted; find the range covering the prefix.
	lo := sort.Search(len(x.names), func(i int) bool {
		return string(x.names[i]) >= prefix
	})
	var out []Capability
	for i := lo; i < len(x.names); i++ {
		if !strings.HasPrefix(string(x.names[i]), prefix) {
			break
		}
		out = append(out, x.names[i])
	}
	return out
}

// Plugins returns the number of registered plugins.
func (x *Index) Plugins() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byPlugin)
}

// Capabilities returns the number of capabilities with at least one plugin.
func (x *Index) Capabilities() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byCapability)
}

// insertName adds a capability to the sorted name list. Caller holds mu.
func (x *Index) insertName(c Capability) {
	i := sort.Search(len(x.names), func(i int) bool { return x.names[i] >= c })
	x.names = append(x.names, "")
	copy(x.names[i+1:], x.names[i:])
	x.names[i] = c
}

// deleteName removes a capability from the sorted name list. Caller holds mu.
func (x *Index) deleteName(c Capability) {
	i := sort.Search(len(x.names), func(i int) bool { return x.names[i] >= c })
	if i < len(x.names) && x.names[i] == c {
		x.names = append(x.names[:i], x.names[i+1:]...)
	}
}
