package cacheback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	gen "github.com/unkn0wn-root/cacheback/genstore"
	pr "github.com/unkn0wn-root/cacheback/provider"
)

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

// memProvider is an in-memory Provider driven by the test clock.
type memProvider struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	m      map[string]memEntry
	gets   int
	sets   int
	dels   int
	ttls   []time.Duration
	getErr error
	reject bool
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider(clock clockwork.Clock) *memProvider {
	return &memProvider{clock: clock, m: make(map[string]memEntry)}
}

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gets++
	if p.getErr != nil {
		return nil, false, p.getErr
	}
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && !p.clock.Now().Before(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sets++
	p.ttls = append(p.ttls, ttl)
	if p.reject {
		return false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = p.clock.Now().Add(ttl)
	}
	p.m[key] = memEntry{v: append([]byte(nil), value...), exp: exp}
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dels++
	delete(p.m, key)
	return nil
}

func (p *memProvider) Close(context.Context) error { return nil }

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[key]
	return ok
}

func (p *memProvider) put(key string, raw []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[key] = memEntry{v: raw}
}

func (p *memProvider) writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sets + p.dels
}

// queue records refresh requests instead of running them.
type queue struct {
	mu   sync.Mutex
	reqs []RefreshRequest
	err  error
}

func (q *queue) Enqueue(_ context.Context, req RefreshRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.reqs = append(q.reqs, req)
	return nil
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.reqs)
}

func (q *queue) last() RefreshRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.reqs[len(q.reqs)-1]
}

type hookEvent struct {
	name   string
	detail string
}

type recHooks struct {
	NopHooks
	mu     sync.Mutex
	events []hookEvent
}

func (h *recHooks) add(name, detail string) {
	h.mu.Lock()
	h.events = append(h.events, hookEvent{name, detail})
	h.mu.Unlock()
}

func (h *recHooks) Hit(k string) { h.add("hit", k) }

func (h *recHooks) StaleHit(k string, _ time.Duration) { h.add("stale", k) }

func (h *recHooks) EnqueueFailed(job string, _ error) { h.add("enqueue_failed", job) }

func (h *recHooks) SelfHeal(_ string, reason string) { h.add("self_heal", reason) }

func (h *recHooks) ProviderSetRejected(k string) { h.add("set_rejected", k) }

func (h *recHooks) RefreshFailed(job string, stage Stage, _ error) {
	h.add("refresh_failed", job+"/"+string(stage))
}

func (h *recHooks) count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e.name == name {
			n++
		}
	}
	return n
}

func (h *recHooks) has(name, detail string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.events {
		if e.name == name && e.detail == detail {
			return true
		}
	}
	return false
}

type userRecord struct {
	ID   int64  `msgpack:"id"`
	Name string `msgpack:"name"`
}

// userSource is the backing "database" of userLookup.
type userSource struct {
	mu      sync.Mutex
	calls   int
	names   map[int64]string
	err     error
	onFetch func()
}

func newUserSource() *userSource {
	return &userSource{names: map[int64]string{7: "ada", 8: "grace"}}
}

func (s *userSource) fetch(id int64) (userRecord, error) {
	s.mu.Lock()
	s.calls++
	err, name, hook := s.err, s.names[id], s.onFetch
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return userRecord{}, err
	}
	return userRecord{ID: id, Name: name}, nil
}

func (s *userSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *userSource) rename(id int64, name string) {
	s.mu.Lock()
	s.names[id] = name
	s.mu.Unlock()
}

func (s *userSource) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type userLookup struct {
	src      *userSource
	lifetime time.Duration
	onMiss   *bool
}

func (j userLookup) Name() string { return "UserLookup" }

func (j userLookup) Fetch(_ context.Context, call Args) (userRecord, error) {
	id, ok := call.Int("user_id")
	if !ok {
		return userRecord{}, errors.New("user_id required")
	}
	return j.src.fetch(id)
}

func (j userLookup) Constructor() Constructor {
	return Constructor{Kwargs: map[string]any{"lifetime": int64(j.lifetime)}}
}

func (j userLookup) Lifetime() time.Duration { return j.lifetime }

func (j userLookup) FetchOnMiss() (fetch, ok bool) {
	if j.onMiss == nil {
		return false, false
	}
	return *j.onMiss, true
}

func (j userLookup) Empty(call Args) userRecord {
	id, _ := call.Int("user_id")
	return userRecord{ID: id, Name: "(pending)"}
}

type harness struct {
	clock    clockwork.FakeClock
	provider *memProvider
	queue    *queue
	hooks    *recHooks
	src      *userSource
	cache    Cache[userRecord]
	registry *Registry
}

func newHarness(t *testing.T, mutate func(*Options[userRecord])) *harness {
	t.Helper()
	h := &harness{
		clock: clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
		queue: &queue{},
		hooks: &recHooks{},
		src:   newUserSource(),
	}
	h.provider = newMemProvider(h.clock)
	opts := Options[userRecord]{
		Provider:   h.provider,
		Dispatcher: h.queue,
		Hooks:      h.hooks,
		Clock:      h.clock,
		Namespace:  "test",
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New[userRecord](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	h.cache = c

	h.registry = NewRegistry()
	src := h.src
	MustRegister[userRecord](h.registry, "UserLookup", func(ctor Constructor) (Job[userRecord], error) {
		lt, _ := ctor.Duration("lifetime")
		return userLookup{src: src, lifetime: lt}, nil
	}, c)
	return h
}

func (h *harness) worker(t *testing.T, mutate func(*WorkerOptions)) *Worker {
	t.Helper()
	opts := WorkerOptions{Registry: h.registry, Clock: h.clock, Hooks: h.hooks}
	if mutate != nil {
		mutate(&opts)
	}
	w, err := NewWorker(opts)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	return w
}

func (h *harness) storageKey(t *testing.T, job Job[userRecord], call Args) string {
	t.Helper()
	k, err := h.cache.Key(job, call)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	return "test:" + k
}

func ptr[T any](v T) *T { return &v }

// flakyGens fails every Snapshot while failing is set.
type flakyGens struct {
	gen.GenStore
	failing atomic.Bool
}

func (f *flakyGens) Snapshot(ctx context.Context, storageKey string) (uint64, error) {
	if f.failing.Load() {
		return 0, errors.New("generation store unavailable")
	}
	return f.GenStore.Snapshot(ctx, storageKey)
}
