package cacheback

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	c "github.com/unkn0wn-root/cacheback/codec"
	gen "github.com/unkn0wn-root/cacheback/genstore"
	pr "github.com/unkn0wn-root/cacheback/provider"
)

type SetCostFunc func(key string, raw []byte) int64

// Cache is the stale-while-revalidate API for jobs producing V.
// Serialization is handled by a pluggable Codec[V].
type Cache[V any] interface {
	Enabled() bool
	Close(context.Context) error

	// Get serves the best available value for call, enqueueing a refresh when
	// the entry is stale or missing. See the package doc for the decision table.
	Get(ctx context.Context, job Job[V], call Args) (V, error)
	// Lookup reads the entry for call without fetching or enqueueing.
	Lookup(ctx context.Context, job Job[V], call Args) (Entry[V], error)

	// Fetch runs job.Fetch directly. Nothing is read or written.
	Fetch(ctx context.Context, job Job[V], call Args) (V, error)
	// Refresh fetches synchronously and stores the result.
	Refresh(ctx context.Context, job Job[V], call Args) (V, error)
	// Set stores value for call as freshly fetched.
	Set(ctx context.Context, job Job[V], call Args, value V) error
	// Invalidate drops the entry and fences off refreshes already in flight.
	Invalidate(ctx context.Context, job Job[V], call Args) error
	// RequestRefresh hands a refresh for call to the Dispatcher.
	RequestRefresh(ctx context.Context, job Job[V], call Args) error

	Key(job Job[V], call Args) (string, error)
	Lifetime(job Job[V]) time.Duration

	// Generation snapshots (for CAS writes from workers).
	SnapshotGen(key string) uint64
	// SetWithGen writes iff the key's generation still equals observedGen.
	// stored=false with a nil error means the write was skipped or rejected.
	SetWithGen(ctx context.Context, key string, value V, observedGen uint64, lifetime time.Duration) (stored bool, err error)
}

// Entry is a decoded cache entry.
type Entry[V any] struct {
	Key       string
	Value     V
	Found     bool
	FetchedAt time.Time
	Lifetime  time.Duration
	Age       time.Duration
	Stale     bool
	Gen       uint64
}

// Options tune the behavior of the cache.
// Only Provider is required; others have sensible defaults.
type Options[V any] struct {
	// Required
	Provider pr.Provider

	Namespace  string          // prefix of every storage key; "" => "cacheback"
	Codec      c.Codec[V]      // nil => msgpack
	Dispatcher Dispatcher      // nil => RequestRefresh fails, reads never enqueue
	Logger     Logger          // nil => NopLogger
	Hooks      Hooks           // nil => NopHooks
	Clock      clockwork.Clock // nil => real clock

	DefaultLifetime time.Duration // 0 => 10m
	FetchOnMiss     bool          // default false => misses return Empty and enqueue
	// Grace is how long an entry stays in the provider after its lifetime
	// ends. Stale reads are served during the grace period. 0 => 30d.
	Grace time.Duration
	// FetchOnStaleThreshold makes entries older than lifetime+threshold be
	// fetched synchronously instead of served stale. 0 disables it.
	FetchOnStaleThreshold time.Duration

	GenStore        gen.GenStore // nil => local in-process generations
	CleanupInterval time.Duration
	GenRetention    time.Duration
	ComputeSetCost  SetCostFunc // default 1
	Disabled        bool        // bypass the provider: Get always fetches
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
