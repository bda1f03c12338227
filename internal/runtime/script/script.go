// Package script runs JavaScript extension plugins in an embedded
// interpreter. Extensions have no module loader and no ambient host
// access: source is screened before evaluation and every effect flows
// through a single host binding that enqueues bridge requests.
package script

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/tidwall/gjson"

	"github.com/cyrup-ai/action-items-sub005/internal/bridge"
	"github.com/cyrup-ai/action-items-sub005/internal/runtime"
)

// hostOps maps extension-facing operation names to bridge request kinds.
// An op missing here is rejected before it reaches the bridge.
var hostOps = map[string]bridge.Kind{
	"clipboard.read":    bridge.KindClipboardRead,
	"clipboard.write":   bridge.KindClipboardWrite,
	"notification.show": bridge.KindNotification,
	"storage.get":       bridge.KindStorageRead,
	"storage.set":       bridge.KindStorageWrite,
	"http.fetch":        bridge.KindHTTP,
}

// Submitter enqueues service requests onto the bridge. *bridge.Bridge
// satisfies it; tests substitute fakes.
type Submitter interface {
	Submit(ctx context.Context, req bridge.ServiceRequest) (*bridge.Pending, error)
}

// Adapter hosts one JavaScript extension in its own interpreter.
type Adapter struct {
	lc runtime.Lifecycle

	pluginID    string
	bus         Submitter
	logger      *slog.Logger
	hostTimeout time.Duration

	// mu serializes interpreter access; goja runtimes are not safe for
	// concurrent use, and unload must not race a call.
	mu sync.Mutex
	vm *goja.Runtime
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithHostTimeout bounds how long a synchronous host call blocks the
// extension waiting for its bridge response.
func WithHostTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.hostTimeout = d
		}
	}
}

// New creates an adapter for a discovered script extension. pluginID
// tags every bridge request the extension makes.
func New(pluginID string, bus Submitter, opts ...Option) *Adapter {
	a := &Adapter{
		pluginID:    pluginID,
		bus:         bus,
		logger:      slog.Default(),
		hostTimeout: 30 * time.Second,
	}
	a.lc.Set(runtime.StateDiscovered)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Kind reports the script runtime.
func (a *Adapter) Kind() runtime.Kind { return runtime.KindScript }

// State returns the current lifecycle state.
func (a *Adapter) State() runtime.State { return a.lc.State() }

// Load resolves the extension entry file, screens its source, and
// evaluates it. Entry points are plain global functions; search is
// required.
func (a *Adapter) Load(ctx context.Context, path string) error {
	if !a.lc.Transition(runtime.StateDiscovered, runtime.StateLoading) {
		return runtime.ErrAlreadyLoaded
	}

	entry, err := resolveEntry(path)
	if err != nil {
		a.lc.Set(runtime.StateUnloaded)
		return runtime.NewLoadError(path, "no entry file", err)
	}

	src, err := os.ReadFile(entry)
	if err != nil {
		a.lc.Set(runtime.StateUnloaded)
		return runtime.NewLoadError(entry, "failed to read source", err)
	}

	if err := screen(src); err != nil {
		a.lc.Set(runtime.StateUnloaded)
		return runtime.NewLoadError(entry, "source rejected", err)
	}

	vm := goja.New()
	if err := vm.Set("__host_invoke", a.hostInvoke); err != nil {
		a.lc.Set(runtime.StateUnloaded)
		return runtime.NewLoadError(entry, "failed to install host binding", err)
	}
	if _, err := vm.RunString(prelude); err != nil {
		a.lc.Set(runtime.StateUnloaded)
		return runtime.NewLoadError(entry, "prelude failed", err)
	}
	if _, err := vm.RunString(string(src)); err != nil {
		a.lc.Set(runtime.StateUnloaded)
		return runtime.NewLoadError(entry, "source evaluation failed", err)
	}

	if _, ok := goja.AssertFunction(vm.Get(runtime.FuncSearch)); !ok {
		a.lc.Set(runtime.StateUnloaded)
		return runtime.NewLoadError(entry, "extension does not define function "+runtime.FuncSearch, nil)
	}

	a.mu.Lock()
	a.vm = vm
	a.mu.Unlock()

	a.lc.Set(runtime.StateReady)
	return nil
}

// resolveEntry finds the extension's entry file. A package.json "main"
// field wins, then the conventional names. path may also point directly
// at a script file.
func resolveEntry(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return path, nil
	}

	var candidates []string
	if pkg, err := os.ReadFile(filepath.Join(path, "package.json")); err == nil {
		if main := gjson.GetBytes(pkg, "main").String(); main != "" {
			candidates = append(candidates, main)
		}
	}
	candidates = append(candidates, "index.js", "main.js")

	for _, name := range candidates {
		full := filepath.Join(path, name)
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			return full, nil
		}
	}
	return "", fmt.Errorf("no entry file among %v", candidates)
}

// hostInvoke is the single Go binding exposed to extensions. It
// validates the operation and payload, submits a bridge request tagged
// with the plugin id, and blocks for the response; the interpreter is
// single-threaded, so blocking here is the natural async boundary.
// Returned errors surface in the extension as thrown exceptions.
func (a *Adapter) hostInvoke(op, payload string) (string, error) {
	kind, ok := hostOps[op]
	if !ok {
		return "", fmt.Errorf("unknown host operation %q", op)
	}
	if !gjson.Valid(payload) {
		return "", fmt.Errorf("host operation %q payload is not valid JSON", op)
	}

	pending, err := a.bus.Submit(context.Background(), bridge.ServiceRequest{
		Kind:     kind,
		PluginID: a.pluginID,
		Payload:  json.RawMessage(payload),
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.hostTimeout)
	defer cancel()

	resp, err := pending.Await(ctx)
	if err != nil {
		return "", fmt.Errorf("host operation %q timed out", op)
	}
	if !resp.Success {
		return "", fmt.Errorf("host operation %q failed: %s", op, resp.Err)
	}
	if len(resp.Payload) == 0 {
		return "{}", nil
	}
	return string(resp.Payload), nil
}

// Call invokes a global extension function with a JSON payload string.
// The extension may return a JSON string or a plain object; both
// normalize to JSON bytes.
func (a *Adapter) Call(ctx context.Context, fn string, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := a.lc.BeginCall(); err != nil {
		return nil, err
	}
	defer a.lc.FinishCall()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.vm == nil {
		return nil, runtime.NewCallError(fn, "plugin unloaded mid-call", runtime.ErrUnloaded)
	}

	callable, ok := goja.AssertFunction(a.vm.Get(fn))
	if !ok {
		return nil, runtime.NewCallError(fn, "not defined by extension", runtime.ErrFunctionNotFound)
	}

	// Interrupt the interpreter if the context ends mid-call; a runaway
	// script must not hold the adapter forever.
	watch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.vm.Interrupt(ctx.Err())
		case <-watch:
		}
	}()
	defer func() {
		close(watch)
		a.vm.ClearInterrupt()
	}()

	res, err := callable(goja.Undefined(), a.vm.ToValue(string(payload)))
	if err != nil {
		return nil, runtime.NewCallError(fn, "extension threw", err)
	}
	return exportResult(fn, res)
}

// exportResult converts an extension return value to JSON bytes.
func exportResult(fn string, res goja.Value) ([]byte, error) {
	if res == nil || goja.IsUndefined(res) || goja.IsNull(res) {
		return []byte(`{}`), nil
	}
	if s, ok := res.Export().(string); ok {
		if !gjson.Valid(s) {
			return nil, runtime.NewCallError(fn, "extension returned invalid JSON string", nil)
		}
		return []byte(s), nil
	}
	out, err := json.Marshal(res.Export())
	if err != nil {
		return nil, runtime.NewCallError(fn, "extension result not serializable", err)
	}
	return out, nil
}

// FunctionExists reports whether the extension defines the global
// function.
func (a *Adapter) FunctionExists(fn string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.vm == nil {
		return false
	}
	_, ok := goja.AssertFunction(a.vm.Get(fn))
	return ok
}

// Unload drops the interpreter. A call in flight holds mu, so the vm is
// never torn down under a running script.
func (a *Adapter) Unload(ctx context.Context) error {
	a.lc.Transition(runtime.StateReady, runtime.StateUnloading)

	a.mu.Lock()
	a.vm = nil
	a.mu.Unlock()

	a.lc.Set(runtime.StateUnloaded)
	return nil
}
