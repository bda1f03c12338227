package wrapper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrPoolSaturated is returned when the task queue is full. Callers see
// it immediately instead of blocking the submitter.
var ErrPoolSaturated = errors.New("wrapper: worker pool saturated")

// ErrPoolStopped is returned for submissions after Stop.
var ErrPoolStopped = errors.New("wrapper: worker pool stopped")

// Pool runs plugin operations on a fixed set of workers so a slow
// plugin call never blocks the caller's goroutine.
type Pool struct {
	logger *slog.Logger

	workers   int
	queueSize int

	mu      sync.Mutex
	tasks   chan func()
	running atomic.Bool
	wg      sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithWorkers sets the worker count.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets the task queue capacity.
func WithQueueSize(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithPoolLogger sets the pool logger.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = logger }
}

// NewPool creates a stopped pool.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		logger:    slog.Default(),
		workers:   4,
		queueSize: 256,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers.
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return
	}

	p.mu.Lock()
	p.tasks = make(chan func(), p.queueSize)
	p.mu.Unlock()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop drains queued tasks and waits for workers, or until the context
// ends.
func (p *Pool) Stop(ctx context.Context) error {
	if !p.running.Swap(false) {
		return nil
	}

	p.mu.Lock()
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit enqueues a task. A full queue is reported, not waited out.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running.Load() {
		return ErrPoolStopped
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrPoolSaturated
	}
}

// worker executes tasks with panic containment. A panicking task fails
// itself, never the pool.
func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panic", "panic", r)
		}
	}()
	task()
}
