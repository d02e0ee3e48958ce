package cacheback

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory rebuilds a job from its Constructor. On workers, Refs have already
// been resolved into ctor.Kwargs.
type Factory[V any] func(ctor Constructor) (Job[V], error)

// Stage names the step of a refresh that produced an outcome.
type Stage string

const (
	StageResolve Stage = "resolve" // job name lookup or factory
	StageKey     Stage = "key"
	StageFetch   Stage = "fetch"
	StageStore   Stage = "store"
)

// refreshFunc is the type-erased form of a registered job. It rebuilds the job,
// fetches and writes the value through the Cache the job was registered with.
type refreshFunc func(ctx context.Context, ctor Constructor, call Args) refreshResult

type refreshResult struct {
	key    string
	stage  Stage
	stored bool
	err    error
}

// Registry maps job names to refresh handlers. Workers use it to turn a
// RefreshRequest back into a job. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]refreshFunc
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]refreshFunc)}
}

// Register binds name to factory and to the cache refreshed values are written to.
// This is a package-level generic function because Go does not allow generic
// methods on non-generic receiver types.
func Register[V any](r *Registry, name string, factory Factory[V], c Cache[V]) error {
	if r == nil || factory == nil || c == nil {
		return fmt.Errorf("cacheback: register %q: registry, factory and cache are required", name)
	}
	if name == "" {
		return fmt.Errorf("cacheback: register: empty job name")
	}

	fn := func(ctx context.Context, ctor Constructor, call Args) refreshResult {
		job, err := factory(ctor)
		if err == nil && job == nil {
			err = ErrNilJob
		}
		if err != nil {
			return refreshResult{stage: StageResolve, err: &JobResolutionError{Job: name, Err: err}}
		}
		key, err := c.Key(job, call)
		if err != nil {
			return refreshResult{stage: StageKey, err: err}
		}
		obs := c.SnapshotGen(key)
		v, err := fetchRecovering(ctx, job, call)
		if err != nil {
			return refreshResult{key: key, stage: StageFetch, err: &FetchError{Job: name, Key: key, Err: err}}
		}
		stored, err := c.SetWithGen(ctx, key, v, obs, c.Lifetime(job))
		return refreshResult{key: key, stage: StageStore, stored: stored, err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.jobs[name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateJob, name)
	}
	r.jobs[name] = fn
	return nil
}

// fetchRecovering turns a panic in Fetch into an error so the refresh is
// reported at the fetch stage with its key.
func fetchRecovering[V any](ctx context.Context, job Job[V], call Args) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job.Fetch(ctx, call)
}

// MustRegister is like Register but panics on error. Handy in init blocks.
func MustRegister[V any](r *Registry, name string, factory Factory[V], c Cache[V]) {
	if err := Register(r, name, factory, c); err != nil {
		panic(err)
	}
}

func (r *Registry) lookup(name string) (refreshFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.jobs[name]
	return fn, ok
}

// Names returns the registered job names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
