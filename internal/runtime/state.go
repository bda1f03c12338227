package runtime

import "sync/atomic"

// State represents the lifecycle state of a loaded plugin.
//
// Transitions: Discovered -> Loading -> Ready -> (Executing -> Ready)*
// -> Unloading -> Unloaded. Loading goes directly to Unloaded on load
// failure. Calls attempted while not Ready fail with ErrNotReady.
type State int32

// Plugin lifecycle states.
const (
	// StateDiscovered - the package has been found but not loaded.
	StateDiscovered State = iota

	// StateLoading - the adapter is loading the package.
	StateLoading

	// StateReady - the plugin can accept calls.
	StateReady

	// StateExecuting - a call is in flight.
	StateExecuting

	// StateUnloading - the adapter is releasing resources.
	StateUnloading

	// StateUnloaded - the plugin is gone; the adapter is inert.
	StateUnloaded
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	case StateUnloading:
		return "unloading"
	case StateUnloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

// Lifecycle tracks an adapter's state with atomic transitions. Adapters
// embed one and drive it through Begin/Finish pairs so that concurrent
// callers observe consistent states.
type Lifecycle struct {
	state atomic.Int32
}

// State returns the current state.
func (l *Lifecycle) State() State {
	return State(l.state.Load())
}

// Set unconditionally moves to the given state.
func (l *Lifecycle) Set(s State) {
	l.state.Store(int32(s))
}

// Transition moves from one specific state to another. Returns false if
// the current state is not `from`.
func (l *Lifecycle) Transition(from, to State) bool {
	return l.state.CompareAndSwap(int32(from), int32(to))
}

// BeginCall moves Ready -> Executing. Returns ErrNotReady when the
// plugin is in any other state.
func (l *Lifecycle) BeginCall() error {
	if !l.Transition(StateReady, StateExecuting) {
		return &CallError{Function: "", Reason: "plugin not ready", State: l.State(), Err: ErrNotReady}
	}
	return nil
}

// FinishCall moves Executing -> Ready. If the adapter started unloading
// mid-call the transition is skipped; the unloader owns the state.
func (l *Lifecycle) FinishCall() {
	l.Transition(StateExecuting, StateReady)
}
