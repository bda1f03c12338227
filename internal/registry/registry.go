// Package registry tracks every registered plugin and keeps the
// capability index and service bridge consistent with the set. All
// lookups are by plugin id; the registry is the single source of truth
// for what is installed.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/cyrup-ai/action-items-sub005/internal/capability"
	"github.com/cyrup-ai/action-items-sub005/internal/wrapper"
)

// ErrDuplicatePlugin is returned when a plugin id is already registered.
var ErrDuplicatePlugin = errors.New("registry: plugin already registered")

// ErrNotFound is returned for lookups of unregistered plugin ids.
var ErrNotFound = errors.New("registry: plugin not found")

// Canceller fails a plugin's in-flight service requests. The bridge
// satisfies it; unregistering must never leave correlation ids dangling
// for a plugin that no longer exists.
type Canceller interface {
	CancelPlugin(pluginID string)
}

// UnregisterObserver is notified after a plugin leaves the registry.
// The search orchestrator subscribes so active searches stop waiting
// for it.
type UnregisterObserver func(pluginID string)

// Registry is the plugin table.
type Registry struct {
	logger *slog.Logger
	index  *capability.Index
	cancel Canceller

	mu        sync.RWMutex
	plugins   map[string]*wrapper.Plugin
	observers []UnregisterObserver
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithCanceller installs the bridge-side canceller consulted on
// unregister.
func WithCanceller(c Canceller) Option {
	return func(r *Registry) { r.cancel = c }
}

// New creates a registry backed by the given capability index.
func New(index *capability.Index, opts ...Option) *Registry {
	r := &Registry{
		logger:  slog.Default(),
		index:   index,
		plugins: make(map[string]*wrapper.Plugin),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnUnregister subscribes an observer. Subscriptions happen during
// wiring, before traffic.
func (r *Registry) OnUnregister(fn UnregisterObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Register adds a plugin and indexes its declared capabilities.
func (r *Registry) Register(p *wrapper.Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := p.ID()
	if _, exists := r.plugins[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, id)
	}
	r.plugins[id] = p
	r.index.Register(id, p.Manifest().Capabilities)

	r.logger.Info("plugin registered",
		"plugin", id, "kind", p.Kind().String(), "capabilities", len(p.Manifest().Capabilities))
	return nil
}

// Unregister removes a plugin: its capabilities leave the index, its
// pending bridge requests are failed, its cleanup hook runs, and its
// adapter is unloaded. Observers are notified last, after the plugin is
// fully gone.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	r.mu.Lock()
	p, exists := r.plugins[id]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.plugins, id)
	r.index.Unregister(id)
	observers := make([]UnregisterObserver, len(r.observers))
	copy(observers, r.observers)
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel.CancelPlugin(id)
	}

	if _, err := p.Cleanup(ctx).Await(ctx); err != nil {
		r.logger.Warn("plugin cleanup failed", "plugin", id, "error", err)
	}
	if err := p.Unload(ctx); err != nil {
		r.logger.Warn("plugin unload failed", "plugin", id, "error", err)
	}

	for _, fn := range observers {
		fn(id)
	}

	r.logger.Info("plugin unregistered", "plugin", id)
	return nil
}

// Replace atomically swaps a plugin for a freshly loaded instance with
// the same id. Used by reload: the old instance is torn down exactly
// like an unregister, then the new one registers.
func (r *Registry) Replace(ctx context.Context, fresh *wrapper.Plugin) error {
	if err := r.Unregister(ctx, fresh.ID()); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return r.Register(fresh)
}

// Get returns the plugin for an id.
func (r *Registry) Get(id string) (*wrapper.Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, exists := r.plugins[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// List returns all registered plugins sorted by id.
func (r *Registry) List() []*wrapper.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*wrapper.Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// IDs returns all registered plugin ids sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.plugins))
	for id := range r.plugins {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Searchers returns the ids of plugins declaring the search capability,
// sorted. The orchestrator fans a query out to exactly this set.
func (r *Registry) Searchers() []string {
	return r.index.PluginsWith(capability.CapabilitySearch)
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}
