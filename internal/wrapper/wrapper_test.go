package wrapper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cyrup-ai/action-items-sub005/internal/manifest"
	"github.com/cyrup-ai/action-items-sub005/internal/runtime"
)

type fakeAdapter struct {
	kind runtime.Kind
	fns  map[string]func(payload []byte) ([]byte, error)
}

func (f *fakeAdapter) Kind() runtime.Kind                       { return f.kind }
func (f *fakeAdapter) Load(ctx context.Context, p string) error { return nil }
func (f *fakeAdapter) Unload(ctx context.Context) error         { return nil }
func (f *fakeAdapter) State() runtime.State                     { return runtime.StateReady }

func (f *fakeAdapter) Call(ctx context.Context, fn string, payload []byte) ([]byte, error) {
	h, ok := f.fns[fn]
	if !ok {
		return nil, runtime.NewCallError(fn, "not provided by plugin", runtime.ErrFunctionNotFound)
	}
	return h(payload)
}

func (f *fakeAdapter) FunctionExists(fn string) bool {
	_, ok := f.fns[fn]
	return ok
}

func startedPool(t *testing.T, opts ...PoolOption) *Pool {
	t.Helper()
	p := NewPool(opts...)
	p.Start()
	t.Cleanup(func() { _ = p.Stop(context.Background()) })
	return p
}

func newPlugin(t *testing.T, pool *Pool, fns map[string]func([]byte) ([]byte, error)) *Plugin {
	t.Helper()
	man := &manifest.Manifest{ID: "demo", Name: "Demo", Version: "1.0.0"}
	return NewPlugin(man, &fakeAdapter{kind: runtime.KindNative, fns: fns}, pool)
}

func TestSearchCompletes(t *testing.T) {
	pool := startedPool(t)
	p := newPlugin(t, pool, map[string]func([]byte) ([]byte, error){
		runtime.FuncSearch: func(payload []byte) ([]byte, error) {
			return []byte(`{"results": []}`), nil
		},
	})

	out, err := p.Search(context.Background(), []byte(`{"query": "x"}`)).Await(context.Background())
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if string(out) != `{"results": []}` {
		t.Errorf("result = %s", out)
	}
}

func TestOperationPoll(t *testing.T) {
	release := make(chan struct{})
	pool := startedPool(t)
	p := newPlugin(t, pool, map[string]func([]byte) ([]byte, error){
		runtime.FuncSearch: func([]byte) ([]byte, error) {
			<-release
			return []byte(`{}`), nil
		},
	})

	op := p.Search(context.Background(), nil)
	if _, _, ok := op.Poll(); ok {
		t.Fatal("Poll() = ok before the call finished")
	}

	close(release)
	if _, err := op.Await(context.Background()); err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if _, _, ok := op.Poll(); !ok {
		t.Error("Poll() = !ok after completion")
	}
}

func TestMissingLifecycleHooksAreNoOps(t *testing.T) {
	pool := startedPool(t)
	p := newPlugin(t, pool, map[string]func([]byte) ([]byte, error){
		runtime.FuncSearch: func([]byte) ([]byte, error) { return []byte(`{}`), nil },
	})

	for _, op := range []*Operation{
		p.Initialize(context.Background()),
		p.BackgroundRefresh(context.Background()),
		p.Cleanup(context.Background()),
	} {
		result, err, ok := op.Poll()
		if !ok {
			t.Fatalf("%s did not complete immediately", op.fn)
		}
		if err != nil {
			t.Errorf("%s error = %v, want nil no-op", op.fn, err)
		}
		if string(result) != `{}` {
			t.Errorf("%s result = %s", op.fn, result)
		}
	}
}

func TestExecuteActionMissingFails(t *testing.T) {
	pool := startedPool(t)
	p := newPlugin(t, pool, map[string]func([]byte) ([]byte, error){
		runtime.FuncSearch: func([]byte) ([]byte, error) { return []byte(`{}`), nil },
	})

	_, err := p.ExecuteAction(context.Background(), []byte(`{}`)).Await(context.Background())
	if !errors.Is(err, runtime.ErrFunctionNotFound) {
		t.Errorf("error = %v, want ErrFunctionNotFound", err)
	}

	var pluginErr *PluginError
	if !errors.As(err, &pluginErr) {
		t.Fatalf("error = %v, want *PluginError", err)
	}
	if pluginErr.PluginID != "demo" || pluginErr.Function != runtime.FuncExecuteAction {
		t.Errorf("error tags = %s/%s", pluginErr.PluginID, pluginErr.Function)
	}
}

func TestAdapterErrorTagged(t *testing.T) {
	pool := startedPool(t)
	failure := errors.New("backend offline")
	p := newPlugin(t, pool, map[string]func([]byte) ([]byte, error){
		runtime.FuncSearch: func([]byte) ([]byte, error) { return nil, failure },
	})

	_, err := p.Search(context.Background(), nil).Await(context.Background())
	var pluginErr *PluginError
	if !errors.As(err, &pluginErr) {
		t.Fatalf("error = %v, want *PluginError", err)
	}
	if !errors.Is(err, failure) {
		t.Errorf("error = %v does not wrap the adapter error", err)
	}
}

func TestPanicCompletesOperation(t *testing.T) {
	pool := startedPool(t)
	p := newPlugin(t, pool, map[string]func([]byte) ([]byte, error){
		runtime.FuncSearch: func([]byte) ([]byte, error) { panic("adapter bug") },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := p.Search(context.Background(), nil).Await(ctx)
	var pluginErr *PluginError
	if !errors.As(err, &pluginErr) {
		t.Fatalf("error = %v, want *PluginError from panic", err)
	}
}

func TestPoolSaturation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	pool := startedPool(t, WithWorkers(1), WithQueueSize(1))
	block := func([]byte) ([]byte, error) { <-release; return []byte(`{}`), nil }
	p := newPlugin(t, pool, map[string]func([]byte) ([]byte, error){runtime.FuncSearch: block})

	// One running, one queued; the third must be rejected.
	first := p.Search(context.Background(), nil)
	waitForQueueDrain(t, pool)
	second := p.Search(context.Background(), nil)
	third := p.Search(context.Background(), nil)

	_, err, ok := third.Poll()
	if !ok {
		t.Fatal("saturated submission did not complete immediately")
	}
	if !errors.Is(err, ErrPoolSaturated) {
		t.Errorf("error = %v, want ErrPoolSaturated", err)
	}

	_ = first
	_ = second
}

// waitForQueueDrain waits until the single worker has taken the running
// task off the queue, so the next submit lands in the buffer.
func waitForQueueDrain(t *testing.T, p *Pool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		p.mu.Lock()
		empty := len(p.tasks) == 0
		p.mu.Unlock()
		if empty {
			return
		}
		select {
		case <-deadline:
			t.Fatal("queue never drained")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSubmitBeforeStart(t *testing.T) {
	pool := NewPool()
	p := newPlugin(t, pool, map[string]func([]byte) ([]byte, error){
		runtime.FuncSearch: func([]byte) ([]byte, error) { return []byte(`{}`), nil },
	})

	_, err := p.Search(context.Background(), nil).Await(context.Background())
	if !errors.Is(err, ErrPoolStopped) {
		t.Errorf("error = %v, want ErrPoolStopped", err)
	}
}
