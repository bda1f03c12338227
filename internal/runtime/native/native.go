// Package native loads in-process plugins from shared libraries. A
// native plugin exports a fixed function table under a well-known
// symbol; the table is validated before any call so a mismatched
// library is rejected instead of executed.
package native

import (
	"context"
	"fmt"
	"plugin"
	"sync"

	"github.com/cyrup-ai/action-items-sub005/internal/runtime"
)

// TableSymbol is the exported symbol name every native plugin must
// provide.
const TableSymbol = "PluginTable"

// Table is the fixed function table a native plugin exports. Initialize
// and Search are required; the rest are optional. Payloads and results
// are JSON strings.
type Table struct {
	Initialize        func() error
	Search            func(payload string) (string, error)
	ExecuteAction     func(payload string) (string, error)
	BackgroundRefresh func() error
	Cleanup           func() error
}

// validate checks the required entry points are present. A table
// failing validation is never called.
func (t *Table) validate() error {
	if t.Initialize == nil {
		return fmt.Errorf("missing required entry point Initialize")
	}
	if t.Search == nil {
		return fmt.Errorf("missing required entry point Search")
	}
	return nil
}

// Adapter loads one native plugin library and wraps its function table
// behind the uniform call interface.
type Adapter struct {
	lc runtime.Lifecycle

	// mu serializes calls against unload so an unload never races a
	// call into a dropped table.
	mu    sync.Mutex
	path  string
	table *Table
}

// New creates an adapter for a discovered native plugin.
func New() *Adapter {
	a := &Adapter{}
	a.lc.Set(runtime.StateDiscovered)
	return a
}

// Kind reports the native runtime.
func (a *Adapter) Kind() runtime.Kind { return runtime.KindNative }

// State returns the current lifecycle state.
func (a *Adapter) State() runtime.State { return a.lc.State() }

// Load opens the shared library and validates its function table. Any
// validation failure moves the adapter straight to Unloaded; garbage is
// never executed.
func (a *Adapter) Load(ctx context.Context, path string) error {
	if !a.lc.Transition(runtime.StateDiscovered, runtime.StateLoading) {
		return runtime.ErrAlreadyLoaded
	}

	p, err := plugin.Open(path)
	if err != nil {
		a.lc.Set(runtime.StateUnloaded)
		return runtime.NewLoadError(path, "failed to open shared library", err)
	}

	sym, err := p.Lookup(TableSymbol)
	if err != nil {
		a.lc.Set(runtime.StateUnloaded)
		return runtime.NewLoadError(path, "library does not export "+TableSymbol, err)
	}

	table, ok := sym.(*Table)
	if !ok {
		a.lc.Set(runtime.StateUnloaded)
		return runtime.NewLoadError(path, fmt.Sprintf("%s has wrong type %T (ABI mismatch)", TableSymbol, sym), nil)
	}

	if err := table.validate(); err != nil {
		a.lc.Set(runtime.StateUnloaded)
		return runtime.NewLoadError(path, err.Error(), nil)
	}

	a.mu.Lock()
	a.path = path
	a.table = table
	a.mu.Unlock()

	a.lc.Set(runtime.StateReady)
	return nil
}

// Call invokes a table entry by uniform function name.
func (a *Adapter) Call(ctx context.Context, fn string, payload []byte) (result []byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := a.lc.BeginCall(); err != nil {
		return nil, err
	}
	defer a.lc.FinishCall()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.table == nil {
		return nil, runtime.NewCallError(fn, "plugin unloaded mid-call", runtime.ErrUnloaded)
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = runtime.NewCallError(fn, fmt.Sprintf("plugin panic: %v", r), nil)
		}
	}()

	switch fn {
	case runtime.FuncInitialize:
		return emptyResult(a.table.Initialize())
	case runtime.FuncSearch:
		return stringResult(a.table.Search(string(payload)))
	case runtime.FuncExecuteAction:
		if a.table.ExecuteAction == nil {
			return nil, runtime.NewCallError(fn, "not provided by plugin", runtime.ErrFunctionNotFound)
		}
		return stringResult(a.table.ExecuteAction(string(payload)))
	case runtime.FuncBackgroundRefresh:
		if a.table.BackgroundRefresh == nil {
			return nil, runtime.NewCallError(fn, "not provided by plugin", runtime.ErrFunctionNotFound)
		}
		return emptyResult(a.table.BackgroundRefresh())
	case runtime.FuncCleanup:
		if a.table.Cleanup == nil {
			return nil, runtime.NewCallError(fn, "not provided by plugin", runtime.ErrFunctionNotFound)
		}
		return emptyResult(a.table.Cleanup())
	default:
		return nil, runtime.NewCallError(fn, "unknown function", runtime.ErrFunctionNotFound)
	}
}

// FunctionExists reports whether the table provides the named entry.
func (a *Adapter) FunctionExists(fn string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.table == nil {
		return false
	}

	switch fn {
	case runtime.FuncInitialize:
		return a.table.Initialize != nil
	case runtime.FuncSearch:
		return a.table.Search != nil
	case runtime.FuncExecuteAction:
		return a.table.ExecuteAction != nil
	case runtime.FuncBackgroundRefresh:
		return a.table.BackgroundRefresh != nil
	case runtime.FuncCleanup:
		return a.table.Cleanup != nil
	default:
		return false
	}
}

// Unload drops the function table. Go cannot unmap a loaded shared
// library, so the library stays resident, but no further calls reach it.
func (a *Adapter) Unload(ctx context.Context) error {
	a.lc.Transition(runtime.StateReady, runtime.StateUnloading)

	a.mu.Lock()
	a.table = nil
	a.mu.Unlock()

	a.lc.Set(runtime.StateUnloaded)
	return nil
}

// emptyResult converts an error-only call into a JSON result.
func emptyResult(err error) ([]byte, error) {
	if err != nil {
		return nil, runtime.NewCallError("", "plugin returned error", err)
	}
	return []byte(`{}`), nil
}

// stringResult converts a (json, error) call into a result.
func stringResult(out string, err error) ([]byte, error) {
	if err != nil {
		return nil, runtime.NewCallError("", "plugin returned error", err)
	}
	return []byte(out), nil
}
