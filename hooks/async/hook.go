// Package asynchook moves Hooks calls off the read path onto a small worker
// pool. Events are dropped when the queue is full.
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{StaleHitEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := cacheback.New[User](cacheback.Options[User]{
//	    Provider: provider,
//	    Hooks:    hooks,
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/cacheback"
)

type Hooks struct {
	inner   cacheback.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ cacheback.Hooks = (*Hooks)(nil)

func New(inner cacheback.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close stops accepting events, runs the queued ones and waits for workers.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the queue was full or closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) Hit(k string) { h.try(func() { h.inner.Hit(k) }) }

func (h *Hooks) StaleHit(k string, d time.Duration) { h.try(func() { h.inner.StaleHit(k, d) }) }

func (h *Hooks) Miss(k string, fetch bool) { h.try(func() { h.inner.Miss(k, fetch) }) }

func (h *Hooks) EnqueueFailed(job string, err error) {
	h.try(func() { h.inner.EnqueueFailed(job, err) })
}

func (h *Hooks) SelfHeal(k, r string) { h.try(func() { h.inner.SelfHeal(k, r) }) }

func (h *Hooks) ProviderSetRejected(k string) { h.try(func() { h.inner.ProviderSetRejected(k) }) }

func (h *Hooks) RefreshStored(job string, d time.Duration) {
	h.try(func() { h.inner.RefreshStored(job, d) })
}

func (h *Hooks) RefreshSkipped(job, reason string) {
	h.try(func() { h.inner.RefreshSkipped(job, reason) })
}

func (h *Hooks) RefreshFailed(job string, stage cacheback.Stage, err error) {
	h.try(func() { h.inner.RefreshFailed(job, stage, err) })
}
