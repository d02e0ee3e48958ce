// Package local runs refreshes on an in-process goroutine pool. Requests live
// only in memory: they are lost on exit and are not shared between replicas.
package local

import (
	"context"
	"errors"
	"sync"

	"github.com/unkn0wn-root/cacheback"
)

var (
	ErrQueueFull = errors.New("local: refresh queue full")
	ErrClosed    = errors.New("local: dispatcher closed")
)

type Options struct {
	Workers   int              // 0 => 4
	QueueSize int              // 0 => 1024
	Logger    cacheback.Logger // nil => NopLogger
}

// Dispatcher implements cacheback.Dispatcher. Enqueue never blocks: when the
// queue is full the request is rejected with ErrQueueFull.
type Dispatcher struct {
	worker *cacheback.Worker
	log    cacheback.Logger
	q      chan cacheback.RefreshRequest

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var _ cacheback.Dispatcher = (*Dispatcher)(nil)

func New(w *cacheback.Worker, opts Options) (*Dispatcher, error) {
	if w == nil {
		return nil, errors.New("local: worker is required")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	qlen := opts.QueueSize
	if qlen <= 0 {
		qlen = 1024
	}
	d := &Dispatcher{
		worker: w,
		log:    opts.Logger,
		q:      make(chan cacheback.RefreshRequest, qlen),
	}
	if d.log == nil {
		d.log = cacheback.NopLogger{}
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.loop()
	}
	return d, nil
}

func (d *Dispatcher) Enqueue(_ context.Context, req cacheback.RefreshRequest) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.q <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of queued requests.
func (d *Dispatcher) Len() int { return len(d.q) }

// Close stops accepting requests and waits for queued ones to finish.
// When ctx ends first, running refreshes are cancelled and the rest are dropped.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.q)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.log.Warn("local dispatcher shutdown timed out, cancelling refreshes", cacheback.Fields{"pending": len(d.q)})
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for req := range d.q {
		if d.ctx.Err() != nil {
			continue // draining after a cancelled Close
		}
		d.worker.Perform(d.ctx, req)
	}
}
