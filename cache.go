package cacheback

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	c "github.com/unkn0wn-root/cacheback/codec"
	gen "github.com/unkn0wn-root/cacheback/genstore"
	"github.com/unkn0wn-root/cacheback/internal/wire"
	pr "github.com/unkn0wn-root/cacheback/provider"
)

type cache[V any] struct {
	ns             string
	provider       pr.Provider
	codec          c.Codec[V]
	dispatcher     Dispatcher
	log            Logger
	hooks          Hooks
	clock          clockwork.Clock
	enabled        bool
	lifetime       time.Duration
	fetchOnMiss    bool
	grace          time.Duration
	staleThreshold time.Duration
	computeSetCost SetCostFunc
	gen            gen.GenStore
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("cacheback: provider is required")
	}
	if opts.DefaultLifetime < 0 || opts.Grace < 0 || opts.FetchOnStaleThreshold < 0 {
		return nil, fmt.Errorf("cacheback: durations must not be negative")
	}

	cc := &cache[V]{
		provider:       opts.Provider,
		dispatcher:     opts.Dispatcher,
		enabled:        !opts.Disabled,
		fetchOnMiss:    opts.FetchOnMiss,
		staleThreshold: opts.FetchOnStaleThreshold,
	}

	// defaults
	cc.ns = coalesce(opts.Namespace, defaultNamespace)
	cc.log = coalesce[Logger](opts.Logger, NopLogger{})
	cc.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	cc.lifetime = coalesce(opts.DefaultLifetime, defaultLifetime)
	cc.grace = coalesce(opts.Grace, defaultGrace)

	if opts.Codec != nil {
		cc.codec = opts.Codec
	} else {
		cc.codec = c.Msgpack[V]{}
	}
	if opts.Clock != nil {
		cc.clock = opts.Clock
	} else {
		cc.clock = clockwork.NewRealClock()
	}
	if opts.ComputeSetCost != nil {
		cc.computeSetCost = opts.ComputeSetCost
	} else {
		cc.computeSetCost = func(string, []byte) int64 { return 1 }
	}

	if opts.GenStore != nil {
		cc.gen = opts.GenStore
	} else {
		// default to in-process generations with periodic cleanup
		cc.gen = gen.NewLocal(
			cc.clock,
			coalesce(opts.CleanupInterval, defaultSweep),
			coalesce(opts.GenRetention, defaultGenRetention),
		)
	}

	return cc, nil
}

func (cc *cache[V]) Enabled() bool { return cc.enabled }

func (cc *cache[V]) Close(ctx context.Context) error {
	// Close gen store first (best effort)
	if cc.gen != nil {
		_ = cc.gen.Close(ctx)
	}
	if cc.provider != nil {
		return cc.provider.Close(ctx)
	}
	return nil
}

func (cc *cache[V]) Key(job Job[V], call Args) (string, error) {
	if job == nil {
		return "", ErrNilJob
	}
	return jobKey(job, call)
}

func (cc *cache[V]) Lifetime(job Job[V]) time.Duration {
	if l, ok := job.(Lifetimer); ok && l.Lifetime() > 0 {
		return l.Lifetime()
	}
	return cc.lifetime
}

func (cc *cache[V]) missFetches(job Job[V]) bool {
	if p, ok := job.(MissPolicy); ok {
		if fetch, set := p.FetchOnMiss(); set {
			return fetch
		}
	}
	return cc.fetchOnMiss
}

func (cc *cache[V]) empty(job Job[V], call Args) V {
	if e, ok := job.(Emptier[V]); ok {
		return e.Empty(call)
	}
	var zero V
	return zero
}

func (cc *cache[V]) Get(ctx context.Context, job Job[V], call Args) (V, error) {
	var zero V
	key, err := cc.Key(job, call)
	if err != nil {
		return zero, err
	}
	if !cc.enabled {
		return cc.fetch(ctx, job, call, key)
	}

	ent, err := cc.lookup(ctx, key)
	if err != nil {
		return zero, err
	}
	sk := cc.storageKey(key)

	if !ent.Found {
		fetch := cc.missFetches(job)
		cc.hooks.Miss(sk, fetch)
		if fetch {
			return cc.refresh(ctx, job, call, key)
		}
		cc.enqueue(ctx, job, call, key)
		return cc.empty(job, call), nil
	}

	if !ent.Stale {
		cc.hooks.Hit(sk)
		return ent.Value, nil
	}

	if cc.staleThreshold > 0 && ent.Age >= ent.Lifetime+cc.staleThreshold {
		cc.log.Debug("stale entry beyond threshold, fetching synchronously", Fields{"key": key, "age": ent.Age})
		return cc.refresh(ctx, job, call, key)
	}

	cc.hooks.StaleHit(sk, ent.Age)
	cc.enqueue(ctx, job, call, key)
	return ent.Value, nil
}

func (cc *cache[V]) Lookup(ctx context.Context, job Job[V], call Args) (Entry[V], error) {
	key, err := cc.Key(job, call)
	if err != nil {
		return Entry[V]{}, err
	}
	if !cc.enabled {
		return Entry[V]{Key: key}, nil
	}
	return cc.lookup(ctx, key)
}

func (cc *cache[V]) Fetch(ctx context.Context, job Job[V], call Args) (V, error) {
	var zero V
	key, err := cc.Key(job, call)
	if err != nil {
		return zero, err
	}
	return cc.fetch(ctx, job, call, key)
}

func (cc *cache[V]) Refresh(ctx context.Context, job Job[V], call Args) (V, error) {
	var zero V
	key, err := cc.Key(job, call)
	if err != nil {
		return zero, err
	}
	if !cc.enabled {
		return cc.fetch(ctx, job, call, key)
	}
	return cc.refresh(ctx, job, call, key)
}

func (cc *cache[V]) Set(ctx context.Context, job Job[V], call Args, value V) error {
	key, err := cc.Key(job, call)
	if err != nil {
		return err
	}
	_, err = cc.SetWithGen(ctx, key, value, cc.SnapshotGen(key), cc.Lifetime(job))
	return err
}

func (cc *cache[V]) Invalidate(ctx context.Context, job Job[V], call Args) error {
	key, err := cc.Key(job, call)
	if err != nil {
		return err
	}
	if !cc.enabled {
		return nil
	}
	sk := cc.storageKey(key)
	newGen, bumpErr := cc.gen.Bump(ctx, sk)
	delErr := cc.provider.Del(ctx, sk)
	if bumpErr != nil || delErr != nil {
		cc.log.Error("invalidate failed", Fields{"key": key, "bumpErr": bumpErr, "delErr": delErr})
		return &InvalidateError{Key: key, BumpErr: bumpErr, DelErr: delErr}
	}
	cc.log.Debug("invalidated key (bumped gen + deleted entry)", Fields{"key": key, "newGen": newGen})
	return nil
}

func (cc *cache[V]) RequestRefresh(ctx context.Context, job Job[V], call Args) error {
	if _, err := cc.Key(job, call); err != nil {
		return err
	}
	if !cc.enabled {
		return nil
	}
	if cc.dispatcher == nil {
		return ErrNoDispatcher
	}
	return cc.dispatcher.Enqueue(ctx, RefreshRequest{
		Job:         job.Name(),
		Constructor: job.Constructor(),
		Call:        call,
	})
}

// SnapshotGen returns 0 when the generation cannot be read. A write made with
// that observation is still checked against a fresh snapshot in SetWithGen.
func (cc *cache[V]) SnapshotGen(key string) uint64 {
	g, _ := cc.snapshotGen(context.Background(), cc.storageKey(key))
	return g
}

func (cc *cache[V]) SetWithGen(ctx context.Context, key string, value V, observedGen uint64, lifetime time.Duration) (bool, error) {
	if !cc.enabled {
		return false, nil
	}
	if lifetime <= 0 {
		lifetime = cc.lifetime
	}
	sk := cc.storageKey(key)
	cur, err := cc.snapshotGen(ctx, sk)
	if err != nil {
		return false, fmt.Errorf("cacheback: generation of %q unknown, write skipped: %w", key, err)
	}
	if cur != observedGen {
		// generation moved; skip stale write
		cc.log.Debug("SetWithGen skipped (gen mismatch)", Fields{"key": key, "obs": observedGen})
		return false, nil
	}
	payload, err := cc.codec.Encode(value)
	if err != nil {
		return false, fmt.Errorf("cacheback: encode %q: %w", key, err)
	}
	raw := wire.Encode(wire.Entry{
		Gen:       observedGen,
		FetchedAt: cc.clock.Now(),
		Lifetime:  lifetime,
		Payload:   payload,
	})
	ok, err := cc.provider.Set(ctx, sk, raw, cc.computeSetCost(sk, raw), lifetime+cc.grace)
	if err != nil {
		return false, err
	}
	if !ok {
		cc.hooks.ProviderSetRejected(sk)
		cc.log.Debug("SetWithGen rejected by provider (pressure)", Fields{"key": key})
	}
	return ok, nil
}

func (cc *cache[V]) fetch(ctx context.Context, job Job[V], call Args, key string) (V, error) {
	v, err := job.Fetch(ctx, call)
	if err != nil {
		var zero V
		return zero, &FetchError{Job: job.Name(), Key: key, Err: err}
	}
	return v, nil
}

// refresh fetches on the caller's goroutine and stores the result. A failed
// store is logged: the fetched value is still returned.
func (cc *cache[V]) refresh(ctx context.Context, job Job[V], call Args, key string) (V, error) {
	obs := cc.SnapshotGen(key)
	v, err := cc.fetch(ctx, job, call, key)
	if err != nil {
		return v, err
	}
	if _, err := cc.SetWithGen(ctx, key, v, obs, cc.Lifetime(job)); err != nil {
		cc.log.Warn("store after synchronous fetch failed", Fields{"key": key, "err": err})
	}
	return v, nil
}

// enqueue is the fire-and-forget branch of the read path. Dispatch errors are
// reported but never surface to the caller.
func (cc *cache[V]) enqueue(ctx context.Context, job Job[V], call Args, key string) {
	if cc.dispatcher == nil {
		cc.log.Debug("refresh not enqueued (no dispatcher)", Fields{"key": key})
		return
	}
	err := cc.dispatcher.Enqueue(ctx, RefreshRequest{
		Job:         job.Name(),
		Constructor: job.Constructor(),
		Call:        call,
	})
	if err != nil {
		cc.hooks.EnqueueFailed(job.Name(), err)
		cc.log.Warn("refresh enqueue failed", Fields{"job": job.Name(), "key": key, "err": err})
	}
}

func (cc *cache[V]) lookup(ctx context.Context, key string) (Entry[V], error) {
	out := Entry[V]{Key: key}
	sk := cc.storageKey(key)
	raw, ok, err := cc.provider.Get(ctx, sk)
	if err != nil || !ok {
		return out, err
	}
	e, err := wire.Decode(raw)
	if err != nil {
		cc.heal(ctx, sk, "corrupt")
		return out, nil
	}
	// validate generation; an unreadable generation proves nothing, so the
	// entry is served as is
	if g, err := cc.snapshotGen(ctx, sk); err == nil && e.Gen != g {
		cc.heal(ctx, sk, "gen_mismatch")
		return out, nil
	}
	v, err := cc.codec.Decode(e.Payload)
	if err != nil {
		cc.heal(ctx, sk, "value_decode")
		return out, nil
	}
	age := cc.clock.Now().Sub(e.FetchedAt)
	if age < 0 {
		age = 0
	}
	out.Value = v
	out.Found = true
	out.FetchedAt = e.FetchedAt
	out.Lifetime = e.Lifetime
	out.Age = age
	out.Stale = age >= e.Lifetime
	out.Gen = e.Gen
	return out, nil
}

func (cc *cache[V]) heal(ctx context.Context, sk, reason string) {
	_ = cc.provider.Del(ctx, sk)
	cc.hooks.SelfHeal(sk, reason)
}

func (cc *cache[V]) snapshotGen(ctx context.Context, storageKey string) (uint64, error) {
	g, err := cc.gen.Snapshot(ctx, storageKey)
	if err != nil {
		cc.log.Warn("gen snapshot error", Fields{"key": storageKey, "err": err})
		return 0, err
	}
	return g, nil
}

func (cc *cache[V]) storageKey(key string) string {
	// isolate by namespace
	return cc.ns + ":" + key
}
