// Package runtime defines the contract shared by the three plugin
// execution technologies: native dynamic libraries, sandboxed
// WebAssembly modules, and embedded JavaScript extensions. Each adapter
// hides its technology behind the same load/call/unload surface and the
// same lifecycle state machine.
package runtime

import "context"

// Kind identifies which execution technology produced an adapter.
type Kind int

const (
	// KindNative is an in-process dynamic library.
	KindNative Kind = iota

	// KindSandboxed is a WebAssembly module in an interpreter instance.
	KindSandboxed

	// KindScript is a JavaScript/TypeScript extension in an embedded
	// interpreter.
	KindScript
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindSandboxed:
		return "sandboxed"
	case KindScript:
		return "script"
	default:
		return "unknown"
	}
}

// Well-known entry points every adapter understands. Adapters map these
// onto their technology's own convention (exported symbol, wasm export,
// global function).
const (
	FuncInitialize        = "initialize"
	FuncSearch            = "search"
	FuncExecuteAction     = "execute_action"
	FuncBackgroundRefresh = "background_refresh"
	FuncCleanup           = "cleanup"
)

// Adapter is the uniform loading and calling surface over one loaded
// plugin instance. Call payloads and results are JSON. Implementations
// must reject calls while not Ready with ErrNotReady rather than
// blocking, and must convert internal panics or traps into CallError.
type Adapter interface {
	// Kind reports which runtime produced this adapter.
	Kind() Kind

	// Load loads the plugin package at path. On failure the adapter
	// transitions directly to Unloaded and returns a *LoadError.
	Load(ctx context.Context, path string) error

	// Call invokes a named plugin function with a JSON payload and
	// returns its JSON result.
	Call(ctx context.Context, fn string, payload []byte) ([]byte, error)

	// FunctionExists reports whether the plugin provides the named
	// function.
	FunctionExists(fn string) bool

	// Unload releases the adapter's resources. Safe to call in any
	// state; a call in flight fails cleanly rather than touching freed
	// resources.
	Unload(ctx context.Context) error

	// State returns the current lifecycle state.
	State() State
}
