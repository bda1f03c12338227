// Package wrapper presents every plugin, regardless of runtime, behind
// one asynchronous interface. Callers get an Operation handle back
// immediately; the call itself runs on a shared worker pool so a slow
// plugin never stalls the host.
package wrapper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cyrup-ai/action-items-sub005/internal/manifest"
	"github.com/cyrup-ai/action-items-sub005/internal/runtime"
)

// PluginError tags a failed operation with the plugin and function it
// came from.
type PluginError struct {
	PluginID string
	Function string
	Err      error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s: %s: %v", e.PluginID, e.Function, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }

// Operation is the async handle for one plugin call. It completes
// exactly once.
type Operation struct {
	pluginID string
	fn       string

	done   chan struct{}
	result []byte
	err    error
}

func newOperation(pluginID, fn string) *Operation {
	return &Operation{pluginID: pluginID, fn: fn, done: make(chan struct{})}
}

// complete publishes the outcome. The channel close is the
// happens-before edge for result and err.
func (o *Operation) complete(result []byte, err error) {
	o.result = result
	o.err = err
	close(o.done)
}

// Done returns a channel closed when the operation completes.
func (o *Operation) Done() <-chan struct{} { return o.done }

// Await blocks until completion or the context ends.
func (o *Operation) Await(ctx context.Context) ([]byte, error) {
	select {
	case <-o.done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Poll returns the outcome without blocking. ok is false while the
// operation is still running.
func (o *Operation) Poll() (result []byte, err error, ok bool) {
	select {
	case <-o.done:
		return o.result, o.err, true
	default:
		return nil, nil, false
	}
}

// Plugin pairs a manifest with its runtime adapter and dispatches all
// calls asynchronously.
type Plugin struct {
	id      string
	man     *manifest.Manifest
	adapter runtime.Adapter
	pool    *Pool
	logger  *slog.Logger
}

// PluginOption configures a Plugin.
type PluginOption func(*Plugin)

// WithLogger sets the plugin logger.
func WithLogger(logger *slog.Logger) PluginOption {
	return func(p *Plugin) { p.logger = logger }
}

// NewPlugin wraps a loaded adapter. The pool is shared across plugins.
func NewPlugin(man *manifest.Manifest, adapter runtime.Adapter, pool *Pool, opts ...PluginOption) *Plugin {
	p := &Plugin{
		id:      man.ID,
		man:     man,
		adapter: adapter,
		pool:    pool,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID returns the plugin id.
func (p *Plugin) ID() string { return p.id }

// Manifest returns the plugin manifest.
func (p *Plugin) Manifest() *manifest.Manifest { return p.man }

// Kind reports the underlying runtime kind.
func (p *Plugin) Kind() runtime.Kind { return p.adapter.Kind() }

// State reports the underlying lifecycle state.
func (p *Plugin) State() runtime.State { return p.adapter.State() }

// Initialize runs the plugin's initialize entry point. Plugins without
// one complete immediately.
func (p *Plugin) Initialize(ctx context.Context) *Operation {
	return p.dispatch(ctx, runtime.FuncInitialize, nil, true)
}

// Search runs the plugin's search entry point with a JSON query
// payload. Every plugin has one; discovery requires it.
func (p *Plugin) Search(ctx context.Context, payload []byte) *Operation {
	return p.dispatch(ctx, runtime.FuncSearch, payload, false)
}

// ExecuteAction runs a plugin action. A plugin without the entry point
// fails the operation; an action was addressed to it explicitly.
func (p *Plugin) ExecuteAction(ctx context.Context, payload []byte) *Operation {
	return p.dispatch(ctx, runtime.FuncExecuteAction, payload, false)
}

// BackgroundRefresh runs the plugin's periodic refresh hook. Plugins
// without one complete immediately.
func (p *Plugin) BackgroundRefresh(ctx context.Context) *Operation {
	return p.dispatch(ctx, runtime.FuncBackgroundRefresh, nil, true)
}

// Cleanup runs the plugin's cleanup hook. Plugins without one complete
// immediately.
func (p *Plugin) Cleanup(ctx context.Context) *Operation {
	return p.dispatch(ctx, runtime.FuncCleanup, nil, true)
}

// Unload tears down the underlying adapter. Synchronous: callers only
// unload during registry changes or shutdown.
func (p *Plugin) Unload(ctx context.Context) error {
	return p.adapter.Unload(ctx)
}

// dispatch submits one adapter call to the pool and returns its handle.
// When skipMissing is set, an entry point the plugin does not provide
// completes as an empty success instead of an error.
func (p *Plugin) dispatch(ctx context.Context, fn string, payload []byte, skipMissing bool) *Operation {
	op := newOperation(p.id, fn)

	if skipMissing && !p.adapter.FunctionExists(fn) {
		op.complete([]byte(`{}`), nil)
		return op
	}

	err := p.pool.Submit(func() {
		// Adapters contain plugin panics themselves; this guard keeps the
		// operation from hanging forever if one slips through.
		defer func() {
			if r := recover(); r != nil {
				op.complete(nil, &PluginError{PluginID: p.id, Function: fn, Err: fmt.Errorf("plugin panic: %v", r)})
			}
		}()

		result, err := p.adapter.Call(ctx, fn, payload)
		if err != nil {
			err = &PluginError{PluginID: p.id, Function: fn, Err: err}
		}
		op.complete(result, err)
	})
	if err != nil {
		op.complete(nil, &PluginError{PluginID: p.id, Function: fn, Err: err})
	}
	return op
}
