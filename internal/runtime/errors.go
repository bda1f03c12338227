package runtime

import (
	"errors"
	"fmt"
)

// Adapter errors.
var (
	// ErrNotReady is returned when a call is attempted while the plugin
	// is not in the Ready state.
	ErrNotReady = errors.New("plugin is not ready")

	// ErrAlreadyLoaded is returned when Load is called twice.
	ErrAlreadyLoaded = errors.New("plugin is already loaded")

	// ErrFunctionNotFound is returned when calling a function the
	// plugin does not provide.
	ErrFunctionNotFound = errors.New("plugin function not found")

	// ErrUnloaded is returned when a call races with adapter unload.
	ErrUnloaded = errors.New("plugin was unloaded")
)

// LoadError reports that a plugin package failed to load. The plugin
// never reaches Ready.
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("load %s: %s", e.Path, e.Reason)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error { return e.Err }

// NewLoadError creates a LoadError.
func NewLoadError(path, reason string, err error) *LoadError {
	return &LoadError{Path: path, Reason: reason, Err: err}
}

// CallError reports that a single plugin call failed. The plugin
// remains Ready.
type CallError struct {
	Function string
	Reason   string
	State    State
	Err      error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	msg := fmt.Sprintf("call %s: %s", e.Function, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *CallError) Unwrap() error { return e.Err }

// NewCallError creates a CallError.
func NewCallError(fn, reason string, err error) *CallError {
	return &CallError{Function: fn, Reason: reason, Err: err}
}
