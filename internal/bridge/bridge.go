package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cyrup-ai/action-items-sub005/internal/capability"
)

// Handler executes one request kind on the host side and returns the
// response payload. Exactly one response is completed per request,
// whether the handler succeeds, errors, or times out.
type Handler func(ctx context.Context, req ServiceRequest) (json.RawMessage, error)

// CapabilityChecker answers whether a plugin declares a capability.
// The registry's capability index implements it.
type CapabilityChecker interface {
	Has(pluginID string, cap capability.Capability) bool
}

// PermissionChecker is consulted before a capability-gated request is
// honored. External permission layers install a real checker; the
// default allows everything the capability index allows.
type PermissionChecker func(req ServiceRequest) error

// Pending is the in-flight handle for one submitted request. The
// response arrives on Done exactly once.
type Pending struct {
	id       string
	pluginID string
	ch       chan ServiceResponse
}

// CorrelationID returns the request's correlation id.
func (p *Pending) CorrelationID() string { return p.id }

// Done returns a channel receiving the single response.
func (p *Pending) Done() <-chan ServiceResponse { return p.ch }

// Await blocks until the response arrives or the context ends.
func (p *Pending) Await(ctx context.Context) (ServiceResponse, error) {
	select {
	case resp := <-p.ch:
		return resp, nil
	case <-ctx.Done():
		return ServiceResponse{}, ctx.Err()
	}
}

// Bridge routes service requests to handlers through fixed worker
// lanes. Each plugin id hashes to one lane, so a plugin's requests are
// dispatched in submission order while different plugins proceed
// concurrently. Responses complete out of order across lanes and are
// matched strictly by correlation id. Host-originated dispatch (search
// fan-out) bypasses the lanes: it carries no ordering guarantee and a
// plugin answering it may need its own lane for nested service calls.
type Bridge struct {
	logger     *slog.Logger
	caps       CapabilityChecker
	permission PermissionChecker

	queueSize   int
	workerCount int
	callTimeout time.Duration

	mu       sync.Mutex
	handlers map[Kind]Handler
	pending  map[string]*Pending
	lanes    []chan dispatchItem

	running atomic.Bool
	wg      sync.WaitGroup

	stats Stats
}

// dispatchItem carries one request plus its correlation id through the
// queue.
type dispatchItem struct {
	ctx context.Context
	req ServiceRequest
	id  string
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// WithQueueSize sets each dispatch lane's capacity.
func WithQueueSize(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithWorkerCount sets the number of dispatch lanes, one worker each.
func WithWorkerCount(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.workerCount = n
		}
	}
}

// WithCallTimeout bounds each handler execution.
func WithCallTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.callTimeout = d
		}
	}
}

// WithPermissionChecker installs the permission hook consulted before
// capability-gated requests.
func WithPermissionChecker(p PermissionChecker) Option {
	return func(b *Bridge) {
		if p != nil {
			b.permission = p
		}
	}
}

// New creates a bridge gated by the given capability checker.
func New(caps CapabilityChecker, opts ...Option) *Bridge {
	b := &Bridge{
		logger:      slog.Default(),
		caps:        caps,
		permission:  func(ServiceRequest) error { return nil },
		queueSize:   1024,
		workerCount: 4,
		callTimeout: 30 * time.Second,
		handlers:    make(map[Kind]Handler),
		pending:     make(map[string]*Pending),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RegisterHandler installs the handler for a request kind. Handlers are
// registered during wiring, before Start.
func (b *Bridge) RegisterHandler(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = h
}

// Start launches one worker per lane.
func (b *Bridge) Start() error {
	if b.running.Swap(true) {
		return ErrAlreadyRunning
	}

	b.mu.Lock()
	b.lanes = make([]chan dispatchItem, b.workerCount)
	for i := range b.lanes {
		b.lanes[i] = make(chan dispatchItem, b.queueSize)
	}
	b.mu.Unlock()

	for _, lane := range b.lanes {
		b.wg.Add(1)
		go b.worker(lane)
	}
	return nil
}

// Stop drains the queue and waits for workers, or until the context
// ends. Pending requests that never dispatched are completed as failed.
func (b *Bridge) Stop(ctx context.Context) error {
	if !b.running.Swap(false) {
		return ErrNotRunning
	}

	b.mu.Lock()
	for _, lane := range b.lanes {
		close(lane)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Fail anything still pending so no caller waits forever.
	b.mu.Lock()
	orphans := make([]*Pending, 0, len(b.pending))
	for _, p := range b.pending {
		orphans = append(orphans, p)
	}
	b.pending = make(map[string]*Pending)
	b.mu.Unlock()

	for _, p := range orphans {
		p.ch <- ServiceResponse{
			CorrelationID: p.id,
			PluginID:      p.pluginID,
			Success:       false,
			Err:           "bridge stopped",
		}
	}
	return nil
}

// Submit validates, correlates, and enqueues a request. The returned
// Pending receives the single response. A full queue is reported to the
// caller; it is the bridge's one fatal exhaustion condition.
func (b *Bridge) Submit(ctx context.Context, req ServiceRequest) (*Pending, error) {
	if !b.running.Load() {
		return nil, ErrNotRunning
	}

	if cap, gated := req.Kind.RequiredCapability(); gated {
		if b.caps == nil || !b.caps.Has(req.PluginID, cap) {
			b.stats.rejected.Add(1)
			return nil, capability.NewError(cap, req.PluginID, "not declared in manifest")
		}
		if err := b.permission(req); err != nil {
			b.stats.rejected.Add(1)
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
	}

	b.mu.Lock()
	// Re-check under the lock: Stop flips running before closing the
	// lanes, also under the lock, so a true here means the lanes are open.
	if !b.running.Load() {
		b.mu.Unlock()
		return nil, ErrNotRunning
	}
	if _, ok := b.handlers[req.Kind]; !ok {
		b.mu.Unlock()
		b.stats.rejected.Add(1)
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, req.Kind)
	}

	p := &Pending{
		id:       uuid.NewString(),
		pluginID: req.PluginID,
		ch:       make(chan ServiceResponse, 1),
	}
	b.pending[p.id] = p

	if req.Kind.hostOriginated() {
		// Search fan-out runs outside the lanes: its handler may await
		// the target plugin's own nested service requests, which need a
		// lane worker to dispatch.
		b.wg.Add(1)
		b.mu.Unlock()
		go func() {
			defer b.wg.Done()
			b.execute(dispatchItem{ctx: ctx, req: req, id: p.id})
		}()
		b.stats.sent.Add(1)
		return p, nil
	}

	lane := b.lanes[laneFor(req.PluginID, len(b.lanes))]
	select {
	case lane <- dispatchItem{ctx: ctx, req: req, id: p.id}:
		b.mu.Unlock()
	default:
		delete(b.pending, p.id)
		b.mu.Unlock()
		b.stats.rejected.Add(1)
		return nil, ErrQueueFull
	}

	b.stats.sent.Add(1)
	return p, nil
}

// laneFor hashes a plugin id onto one of the dispatch lanes. Requests
// from one plugin always land on the same lane, preserving their
// submission order through the lane's single worker.
func laneFor(pluginID string, lanes int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(pluginID))
	return int(h.Sum32() % uint32(lanes))
}

// worker consumes one lane's items in queue order and executes them.
// The single worker per lane preserves per-plugin dispatch order;
// completion order depends on each operation's latency.
func (b *Bridge) worker(lane chan dispatchItem) {
	defer b.wg.Done()
	for item := range lane {
		b.execute(item)
	}
}

// execute runs one handler with the configured timeout and completes
// exactly one response.
func (b *Bridge) execute(item dispatchItem) {
	b.mu.Lock()
	h := b.handlers[item.req.Kind]
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(item.ctx, b.callTimeout)
	defer cancel()

	start := time.Now()
	payload, err := b.runHandler(ctx, h, item.req)
	elapsed := time.Since(start)

	resp := ServiceResponse{
		CorrelationID: item.id,
		Kind:          item.req.Kind,
		PluginID:      item.req.PluginID,
		Success:       err == nil,
		Payload:       payload,
	}
	if err != nil {
		resp.Err = err.Error()
	}

	b.recordOutcome(err == nil, elapsed)

	if cerr := b.Complete(resp); cerr != nil {
		b.logger.Warn("dropping response with no pending request",
			"correlation_id", item.id, "kind", item.req.Kind.String(), "error", cerr)
	}
}

// runHandler invokes a handler with panic containment. A panicking
// handler fails the single request, never the dispatcher.
func (b *Bridge) runHandler(ctx context.Context, h Handler, req ServiceRequest) (payload json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, req)
}

// Complete delivers a response to its pending request. A response whose
// correlation id is unknown - including a duplicate for an id already
// completed - is rejected with ErrUnknownCorrelation.
func (b *Bridge) Complete(resp ServiceResponse) error {
	b.mu.Lock()
	p, ok := b.pending[resp.CorrelationID]
	if ok {
		delete(b.pending, resp.CorrelationID)
	}
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCorrelation, resp.CorrelationID)
	}
	p.ch <- resp
	return nil
}

// CancelPlugin fails every pending request belonging to the plugin.
// Called on unregister so no correlation id dangles for a plugin that
// no longer exists.
func (b *Bridge) CancelPlugin(pluginID string) {
	b.mu.Lock()
	var cancelled []*Pending
	for id, p := range b.pending {
		if p.pluginID == pluginID {
			cancelled = append(cancelled, p)
			delete(b.pending, id)
		}
	}
	b.mu.Unlock()

	for _, p := range cancelled {
		b.recordOutcome(false, 0)
		p.ch <- ServiceResponse{
			CorrelationID: p.id,
			PluginID:      pluginID,
			Success:       false,
			Err:           "plugin unregistered",
		}
	}
}

// PendingCount returns the number of requests awaiting completion.
func (b *Bridge) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// IsRunning returns true if the bridge dispatch pool is running.
func (b *Bridge) IsRunning() bool {
	return b.running.Load()
}
