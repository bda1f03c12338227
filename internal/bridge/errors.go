package bridge

import "errors"

// Bridge errors. Every one of these rejects a request or response
// before dispatch; none of them is fatal to the host.
var (
	// ErrNotRunning is returned when submitting to a stopped bridge.
	ErrNotRunning = errors.New("bridge is not running")

	// ErrAlreadyRunning is returned when starting a running bridge.
	ErrAlreadyRunning = errors.New("bridge is already running")

	// ErrQueueFull is returned when the dispatch queue cannot accept
	// more requests. This is the one operator-visible exhaustion
	// condition.
	ErrQueueFull = errors.New("bridge dispatch queue is full")

	// ErrNoHandler is returned when no handler is registered for the
	// request kind.
	ErrNoHandler = errors.New("no handler registered for request kind")

	// ErrUnknownCorrelation is returned when a response references a
	// correlation id with no pending request. A duplicate response for
	// an already-completed id lands here as well.
	ErrUnknownCorrelation = errors.New("unknown correlation id")

	// ErrPermissionDenied is returned when the installed permission
	// checker refuses a request.
	ErrPermissionDenied = errors.New("permission denied")
)
