// Package wasm loads plugins compiled to WebAssembly into isolated
// wazero interpreter instances. The guest owns its linear memory and
// has no ambient host access: every effect goes through the registered
// host functions, which validate guest pointers and communicate with
// the host exclusively by enqueuing bridge requests.
package wasm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/cyrup-ai/action-items-sub005/internal/bridge"
	"github.com/cyrup-ai/action-items-sub005/internal/runtime"
)

// maxGuestPayload bounds any single string or buffer crossing the
// guest/host boundary. Oversized payloads fail the call, not the host.
const maxGuestPayload = 1 << 20

// allocateFunc is the guest export used to reserve guest memory for
// host-written payloads.
const allocateFunc = "allocate"

// Submitter enqueues service requests onto the bridge. *bridge.Bridge
// satisfies it; tests substitute fakes.
type Submitter interface {
	Submit(ctx context.Context, req bridge.ServiceRequest) (*bridge.Pending, error)
}

// Adapter hosts one WebAssembly plugin instance.
type Adapter struct {
	lc runtime.Lifecycle

	pluginID string
	bus      Submitter
	logger   *slog.Logger

	// mu serializes all calls into the module instance; wazero module
	// calls are not safe concurrently, and unload must not race a call.
	mu  sync.Mutex
	rt  wazero.Runtime
	mod api.Module
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// New creates an adapter for a discovered sandboxed plugin. pluginID
// tags every bridge request the guest makes.
func New(pluginID string, bus Submitter, opts ...Option) *Adapter {
	a := &Adapter{
		pluginID: pluginID,
		bus:      bus,
		logger:   slog.Default(),
	}
	a.lc.Set(runtime.StateDiscovered)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Kind reports the sandboxed runtime.
func (a *Adapter) Kind() runtime.Kind { return runtime.KindSandboxed }

// State returns the current lifecycle state.
func (a *Adapter) State() runtime.State { return a.lc.State() }

// Load reads the module bytes, instantiates the interpreter with the
// host function imports, and validates the required exports.
func (a *Adapter) Load(ctx context.Context, path string) error {
	if !a.lc.Transition(runtime.StateDiscovered, runtime.StateLoading) {
		return runtime.ErrAlreadyLoaded
	}

	bin, err := os.ReadFile(path)
	if err != nil {
		a.lc.Set(runtime.StateUnloaded)
		return runtime.NewLoadError(path, "failed to read module", err)
	}

	rt := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)

	if err := a.instantiateHostModule(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		a.lc.Set(runtime.StateUnloaded)
		return runtime.NewLoadError(path, "failed to register host functions", err)
	}

	mod, err := rt.InstantiateWithConfig(ctx, bin,
		wazero.NewModuleConfig().WithName(a.pluginID).WithStartFunctions("_initialize"))
	if err != nil {
		_ = rt.Close(ctx)
		a.lc.Set(runtime.StateUnloaded)
		return runtime.NewLoadError(path, "failed to instantiate module", err)
	}

	for _, required := range []string{allocateFunc, runtime.FuncInitialize, runtime.FuncSearch} {
		if mod.ExportedFunction(required) == nil {
			_ = rt.Close(ctx)
			a.lc.Set(runtime.StateUnloaded)
			return runtime.NewLoadError(path, "module does not export "+required, nil)
		}
	}

	a.mu.Lock()
	a.rt = rt
	a.mod = mod
	a.mu.Unlock()

	a.lc.Set(runtime.StateReady)
	return nil
}

// Call invokes an exported guest function with a JSON payload.
// Functions taking no payload use the i32-status convention; payload
// functions take (ptr, len) and return a packed (ptr<<32 | len) u64
// locating the JSON result in guest memory.
func (a *Adapter) Call(ctx context.Context, fn string, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(payload) > maxGuestPayload {
		return nil, runtime.NewCallError(fn, "payload exceeds guest limit", nil)
	}
	if err := a.lc.BeginCall(); err != nil {
		return nil, err
	}
	defer a.lc.FinishCall()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mod == nil {
		return nil, runtime.NewCallError(fn, "plugin unloaded mid-call", runtime.ErrUnloaded)
	}

	switch fn {
	case runtime.FuncInitialize, runtime.FuncBackgroundRefresh, runtime.FuncCleanup:
		return a.callStatus(ctx, fn)
	case runtime.FuncSearch, runtime.FuncExecuteAction:
		return a.callPayload(ctx, fn, payload)
	default:
		return a.callPayload(ctx, fn, payload)
	}
}

// callStatus invokes a no-payload export returning an i32 status.
func (a *Adapter) callStatus(ctx context.Context, fn string) ([]byte, error) {
	export := a.mod.ExportedFunction(fn)
	if export == nil {
		return nil, runtime.NewCallError(fn, "not exported by module", runtime.ErrFunctionNotFound)
	}

	res, err := export.Call(ctx)
	if err != nil {
		// Guest traps (unreachable, out-of-bounds) land here.
		return nil, runtime.NewCallError(fn, "guest trapped", err)
	}
	if len(res) > 0 && api.DecodeI32(res[0]) != 0 {
		return nil, runtime.NewCallError(fn, fmt.Sprintf("guest returned status %d", api.DecodeI32(res[0])), nil)
	}
	return []byte(`{}`), nil
}

// callPayload writes the payload into guest memory, invokes the export,
// and reads back the packed result. Caller holds mu.
func (a *Adapter) callPayload(ctx context.Context, fn string, payload []byte) ([]byte, error) {
	export := a.mod.ExportedFunction(fn)
	if export == nil {
		return nil, runtime.NewCallError(fn, "not exported by module", runtime.ErrFunctionNotFound)
	}

	ptr, err := a.writeGuest(ctx, payload)
	if err != nil {
		return nil, runtime.NewCallError(fn, "failed to pass payload to guest", err)
	}

	res, err := export.Call(ctx, uint64(ptr), uint64(len(payload)))
	if err != nil {
		return nil, runtime.NewCallError(fn, "guest trapped", err)
	}
	if len(res) == 0 {
		return []byte(`{}`), nil
	}

	outPtr := uint32(res[0] >> 32)
	outLen := uint32(res[0])
	if outLen == 0 {
		return []byte(`{}`), nil
	}
	if outLen > maxGuestPayload {
		return nil, runtime.NewCallError(fn, "guest result exceeds limit", nil)
	}

	out, ok := a.mod.Memory().Read(outPtr, outLen)
	if !ok {
		return nil, runtime.NewCallError(fn, "guest returned out-of-bounds result pointer", nil)
	}
	// Copy out: the slice aliases guest linear memory.
	result := make([]byte, len(out))
	copy(result, out)
	return result, nil
}

// writeGuest allocates guest memory through the guest's own allocator
// and copies data in. Caller holds mu.
func (a *Adapter) writeGuest(ctx context.Context, data []byte) (uint32, error) {
	alloc := a.mod.ExportedFunction(allocateFunc)
	if alloc == nil {
		return 0, fmt.Errorf("module does not export %s", allocateFunc)
	}
	res, err := alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, err
	}
	ptr := uint32(res[0])
	if !a.mod.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("allocator returned out-of-bounds pointer %d", ptr)
	}
	return ptr, nil
}

// FunctionExists reports whether the module exports the function.
func (a *Adapter) FunctionExists(fn string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mod != nil && a.mod.ExportedFunction(fn) != nil
}

// Unload closes the interpreter, releasing the guest's linear memory
// deterministically. A call in flight holds mu, so the memory is never
// freed under it; callbacks arriving later are dropped.
func (a *Adapter) Unload(ctx context.Context) error {
	a.lc.Transition(runtime.StateReady, runtime.StateUnloading)

	a.mu.Lock()
	if a.rt != nil {
		_ = a.rt.Close(ctx)
		a.rt = nil
		a.mod = nil
	}
	a.mu.Unlock()

	a.lc.Set(runtime.StateUnloaded)
	return nil
}
