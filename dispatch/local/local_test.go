package local

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unkn0wn-root/cacheback"
	"github.com/unkn0wn-root/cacheback/provider/lru"
)

type squareJob struct {
	calls *atomic.Int64
	block chan struct{}
}

func (j squareJob) Name() string { return "square" }

func (j squareJob) Fetch(_ context.Context, call cacheback.Args) (int64, error) {
	if j.block != nil {
		<-j.block
	}
	j.calls.Add(1)
	n, _ := call.Int("n")
	return n * n, nil
}

func (j squareJob) Constructor() cacheback.Constructor { return cacheback.Constructor{} }

func newHarness(t *testing.T, job squareJob, opts Options) (cacheback.Cache[int64], *Dispatcher) {
	t.Helper()
	p, err := lru.New(lru.Config{Size: 64})
	if err != nil {
		t.Fatalf("lru: %v", err)
	}
	reg := cacheback.NewRegistry()
	var d *Dispatcher
	c, err := cacheback.New[int64](cacheback.Options[int64]{
		Provider: p,
		Dispatcher: cacheback.DispatcherFunc(func(ctx context.Context, req cacheback.RefreshRequest) error {
			return d.Enqueue(ctx, req)
		}),
	})
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	cacheback.MustRegister[int64](reg, "square", func(cacheback.Constructor) (cacheback.Job[int64], error) {
		return job, nil
	}, c)
	w, err := cacheback.NewWorker(cacheback.WorkerOptions{Registry: reg})
	if err != nil {
		t.Fatalf("worker: %v", err)
	}
	d, err = New(w, opts)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	return c, d
}

func TestMissIsFilledInBackground(t *testing.T) {
	job := squareJob{calls: new(atomic.Int64)}
	c, d := newHarness(t, job, Options{Workers: 2})
	ctx := context.Background()
	call := cacheback.Args{}.With("n", 7)

	v, err := c.Get(ctx, job, call)
	if err != nil || v != 0 {
		t.Fatalf("first get = %d, %v; want empty value", v, err)
	}
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	v, err = c.Get(ctx, job, call)
	if err != nil || v != 49 {
		t.Fatalf("second get = %d, %v; want 49", v, err)
	}
	if job.calls.Load() != 1 {
		t.Fatalf("fetch calls = %d, want 1", job.calls.Load())
	}
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	job := squareJob{calls: new(atomic.Int64), block: make(chan struct{})}
	_, d := newHarness(t, job, Options{Workers: 1, QueueSize: 1})
	ctx := context.Background()
	req := cacheback.RefreshRequest{Job: "square", Call: cacheback.Args{}.With("n", 2)}

	if err := d.Enqueue(ctx, req); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for d.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := d.Enqueue(ctx, req); err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if err := d.Enqueue(ctx, req); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("third enqueue err = %v, want ErrQueueFull", err)
	}

	close(job.block)
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if job.calls.Load() != 2 {
		t.Fatalf("fetch calls = %d, want 2", job.calls.Load())
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	job := squareJob{calls: new(atomic.Int64)}
	_, d := newHarness(t, job, Options{})
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := d.Enqueue(context.Background(), cacheback.RefreshRequest{Job: "square"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestNewRequiresWorker(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Fatalf("expected error")
	}
}
