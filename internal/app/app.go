// Package app wires the plugin host together: discovery, runtime
// adapters, the service bridge, the registry, and the search
// orchestrator. It owns startup and shutdown ordering.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/cyrup-ai/action-items-sub005/internal/bridge"
	"github.com/cyrup-ai/action-items-sub005/internal/bridge/services"
	"github.com/cyrup-ai/action-items-sub005/internal/capability"
	"github.com/cyrup-ai/action-items-sub005/internal/config"
	"github.com/cyrup-ai/action-items-sub005/internal/discovery"
	"github.com/cyrup-ai/action-items-sub005/internal/event"
	"github.com/cyrup-ai/action-items-sub005/internal/registry"
	"github.com/cyrup-ai/action-items-sub005/internal/runtime"
	"github.com/cyrup-ai/action-items-sub005/internal/runtime/native"
	"github.com/cyrup-ai/action-items-sub005/internal/runtime/script"
	"github.com/cyrup-ai/action-items-sub005/internal/runtime/wasm"
	"github.com/cyrup-ai/action-items-sub005/internal/search"
	"github.com/cyrup-ai/action-items-sub005/internal/wrapper"
)

// App is the assembled plugin host.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	events       *event.Bus
	caps         *capability.Index
	bridge       *bridge.Bridge
	services     *services.Services
	pool         *wrapper.Pool
	registry     *registry.Registry
	orchestrator *search.Orchestrator

	refreshStop chan struct{}
	refreshDone chan struct{}
}

// New assembles the host from configuration. Nothing runs until Start.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		events: event.NewBus(event.WithLogger(logger)),
		caps:   capability.NewIndex(),
	}

	a.bridge = bridge.New(a.caps,
		bridge.WithLogger(logger),
		bridge.WithQueueSize(cfg.Bridge.QueueSize),
		bridge.WithWorkerCount(cfg.Bridge.Workers),
		bridge.WithCallTimeout(cfg.Bridge.CallTimeout.Std()),
	)

	svc, err := services.New(cfg.StoragePath(), services.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open services: %w", err)
	}
	a.services = svc
	a.services.Register(a.bridge)
	a.bridge.RegisterHandler(bridge.KindSearch, a.handleSearchRequest)

	a.pool = wrapper.NewPool(
		wrapper.WithWorkers(cfg.Plugins.Workers),
		wrapper.WithPoolLogger(logger),
	)

	a.registry = registry.New(a.caps,
		registry.WithLogger(logger),
		registry.WithCanceller(a.bridge),
	)

	a.orchestrator = search.New(a.registry, a.bridge, a.events,
		search.WithLogger(logger),
		search.WithTimeout(cfg.Search.Timeout.Std()),
		search.WithMaxResults(cfg.Search.MaxResults),
	)

	// An unregistered plugin must stop being awaited by active searches.
	a.registry.OnUnregister(a.orchestrator.PluginUnregistered)
	a.registry.OnUnregister(func(id string) {
		a.events.Publish(context.Background(), event.PluginUnregistered{PluginID: id})
	})

	return a, nil
}

// Start launches the bridge and pool, then discovers and loads plugins.
// A plugin that fails to load or initialize is skipped, never fatal.
func (a *App) Start(ctx context.Context) error {
	if err := a.bridge.Start(); err != nil {
		return err
	}
	a.pool.Start()

	found := discovery.NewScanner(a.scannerOptions()...).Scan()

	for _, d := range found {
		if err := a.loadPlugin(ctx, d); err != nil {
			a.logger.Warn("skipping plugin",
				"plugin", d.Manifest.ID, "path", d.Location.Path, "error", err)
			a.events.Publish(ctx, event.PluginLoadFailed{Path: d.Location.Path, Reason: err.Error()})
		}
	}

	a.startRefreshSweep()

	a.logger.Info("plugin host started",
		"plugins", a.registry.Count(), "discovered", len(found))
	return nil
}

// loadPlugin builds the adapter for a discovered package, loads and
// initializes it, and registers the result.
func (a *App) loadPlugin(ctx context.Context, d *discovery.Discovered) error {
	adapter := a.adapterFor(d)

	if err := adapter.Load(ctx, d.Location.Path); err != nil {
		return err
	}

	p := wrapper.NewPlugin(d.Manifest, adapter, a.pool, wrapper.WithLogger(a.logger))
	if _, err := p.Initialize(ctx).Await(ctx); err != nil {
		_ = adapter.Unload(ctx)
		return fmt.Errorf("initialize: %w", err)
	}

	if err := a.registry.Register(p); err != nil {
		_ = adapter.Unload(ctx)
		return err
	}

	a.events.Publish(ctx, event.PluginRegistered{
		PluginID:     d.Manifest.ID,
		Kind:         d.Location.Kind,
		Capabilities: d.Manifest.Capabilities,
	})
	return nil
}

// adapterFor picks the runtime adapter for a package shape.
func (a *App) adapterFor(d *discovery.Discovered) runtime.Adapter {
	switch d.Location.Kind {
	case runtime.KindSandboxed:
		return wasm.New(d.Manifest.ID, a.bridge, wasm.WithLogger(a.logger))
	case runtime.KindScript:
		return script.New(d.Manifest.ID, a.bridge, script.WithLogger(a.logger))
	default:
		return native.New()
	}
}

// handleSearchRequest routes a bridge search request to the target
// plugin. Installed as the KindSearch handler so the orchestrator stays
// decoupled from the registry's plugin type.
func (a *App) handleSearchRequest(ctx context.Context, req bridge.ServiceRequest) (json.RawMessage, error) {
	p, err := a.registry.Get(req.PluginID)
	if err != nil {
		return nil, err
	}
	return p.Search(ctx, req.Payload).Await(ctx)
}

// Search runs one distributed query.
func (a *App) Search(ctx context.Context, query string) (*search.Result, error) {
	return a.orchestrator.Search(ctx, query)
}

// ExecuteAction runs a plugin action by plugin id.
func (a *App) ExecuteAction(ctx context.Context, pluginID string, payload []byte) ([]byte, error) {
	p, err := a.registry.Get(pluginID)
	if err != nil {
		return nil, err
	}
	return p.ExecuteAction(ctx, payload).Await(ctx)
}

// ReloadPlugin rescans the plugin paths and replaces the plugin's
// running instance with a freshly loaded one.
func (a *App) ReloadPlugin(ctx context.Context, id string) error {
	for _, d := range discovery.NewScanner(a.scannerOptions()...).Scan() {
		if d.Manifest.ID != id {
			continue
		}
		adapter := a.adapterFor(d)
		if err := adapter.Load(ctx, d.Location.Path); err != nil {
			return err
		}
		p := wrapper.NewPlugin(d.Manifest, adapter, a.pool, wrapper.WithLogger(a.logger))
		if _, err := p.Initialize(ctx).Await(ctx); err != nil {
			_ = adapter.Unload(ctx)
			return fmt.Errorf("initialize: %w", err)
		}
		return a.registry.Replace(ctx, p)
	}
	return fmt.Errorf("%w: %s", registry.ErrNotFound, id)
}

// scannerOptions builds discovery options from config; empty configured
// paths fall back to the scanner's defaults.
func (a *App) scannerOptions() []discovery.ScannerOption {
	opts := []discovery.ScannerOption{discovery.WithLogger(a.logger)}
	if len(a.cfg.Plugins.Paths) > 0 {
		opts = append(opts, discovery.WithPaths(a.cfg.Plugins.Paths...))
	}
	return opts
}

// Registry exposes the plugin table.
func (a *App) Registry() *registry.Registry { return a.registry }

// Events exposes the host event bus.
func (a *App) Events() *event.Bus { return a.events }

// BridgeStats returns a snapshot of service bridge counters.
func (a *App) BridgeStats() bridge.StatsSnapshot { return a.bridge.Stats() }

// Healthy reports the bridge health predicate.
func (a *App) Healthy() bool { return a.bridge.Healthy() }

// Stop unregisters every plugin, then tears subsystems down in reverse
// start order.
func (a *App) Stop(ctx context.Context) error {
	a.stopRefreshSweep()

	for _, id := range a.registry.IDs() {
		if err := a.registry.Unregister(ctx, id); err != nil {
			a.logger.Warn("unregister on shutdown failed", "plugin", id, "error", err)
		}
	}

	if err := a.bridge.Stop(ctx); err != nil {
		a.logger.Warn("bridge stop failed", "error", err)
	}
	if err := a.pool.Stop(ctx); err != nil {
		a.logger.Warn("worker pool stop failed", "error", err)
	}
	if err := a.services.Close(); err != nil {
		a.logger.Warn("services close failed", "error", err)
	}

	a.logger.Info("plugin host stopped")
	return nil
}
