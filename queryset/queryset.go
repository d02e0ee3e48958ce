// Package queryset provides jobs that cache ORM reads: GetJob for a single
// record and FilterJob for a list. Call arguments are the query conditions:
//
//	job := queryset.NewGet[Article](articles, src)
//	a, err := cache.Get(ctx, job, cacheback.Args{}.With("id", 7))
//
// Models travel to workers as cacheback.Refs ("app.model") and are resolved
// back through a Models registry.
package queryset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/unkn0wn-root/cacheback"
)

var ErrUnknownModel = errors.New("queryset: unknown model")

// Model names a record type by app label and model name. Table optionally
// overrides the table a Source reads from.
type Model struct {
	App   string
	Name  string
	Table string
}

func (m Model) Ref() cacheback.Ref { return cacheback.Ref{Namespace: m.App, Name: m.Name} }

func (m Model) String() string { return m.App + "." + m.Name }

// Source runs ORM reads. dest is a pointer to a record for Get and a pointer
// to a slice for Filter. cond maps column names to required values.
type Source interface {
	Get(ctx context.Context, m Model, dest any, cond map[string]any) error
	Filter(ctx context.Context, m Model, dest any, cond map[string]any) error
}

// Models maps Refs back to Models. It implements cacheback.Resolver.
type Models struct {
	mu sync.RWMutex
	m  map[cacheback.Ref]Model
}

var _ cacheback.Resolver = (*Models)(nil)

func NewModels(models ...Model) *Models {
	ms := &Models{m: make(map[cacheback.Ref]Model, len(models))}
	for _, m := range models {
		ms.Add(m)
	}
	return ms
}

func (ms *Models) Add(m Model) {
	ms.mu.Lock()
	ms.m[m.Ref()] = m
	ms.mu.Unlock()
}

func (ms *Models) Lookup(ref cacheback.Ref) (Model, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	m, ok := ms.m[ref]
	return m, ok
}

func (ms *Models) Resolve(_ context.Context, ref cacheback.Ref) (any, error) {
	m, ok := ms.Lookup(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, ref)
	}
	return m, nil
}

// Options are shared by GetJob and FilterJob.
type Options struct {
	Lifetime    time.Duration // 0 => cache default
	FetchOnMiss *bool         // nil => cache default
}

type base struct {
	model Model
	src   Source
	opts  Options
}

func (b base) Lifetime() time.Duration { return b.opts.Lifetime }

func (b base) FetchOnMiss() (fetch, ok bool) {
	if b.opts.FetchOnMiss == nil {
		return false, false
	}
	return *b.opts.FetchOnMiss, true
}

// RefineKey prefixes keys with the model so entries of one model are easy to find.
func (b base) RefineKey(key string, _ cacheback.Args) string {
	return b.model.String() + "-" + key
}

func (b base) Constructor() cacheback.Constructor {
	return cacheback.Constructor{
		Kwargs: map[string]any{"lifetime": int64(b.opts.Lifetime)},
		Refs:   map[string]cacheback.Ref{"model": b.model.Ref()},
	}
}

// GetJob caches a single record matching the call's named arguments.
type GetJob[V any] struct{ base }

func NewGet[V any](m Model, src Source, opts ...Options) *GetJob[V] {
	return &GetJob[V]{base{model: m, src: src, opts: first(opts)}}
}

// GetName is the job name GetJobs for m are registered under.
func GetName(m Model) string { return "queryset.get:" + m.String() }

func (j *GetJob[V]) Name() string { return GetName(j.model) }

func (j *GetJob[V]) Fetch(ctx context.Context, call cacheback.Args) (V, error) {
	var v V
	if err := j.src.Get(ctx, j.model, &v, call.Named); err != nil {
		return v, err
	}
	return v, nil
}

// FilterJob caches every record matching the call's named arguments.
type FilterJob[V any] struct{ base }

func NewFilter[V any](m Model, src Source, opts ...Options) *FilterJob[V] {
	return &FilterJob[V]{base{model: m, src: src, opts: first(opts)}}
}

// FilterName is the job name FilterJobs for m are registered under.
func FilterName(m Model) string { return "queryset.filter:" + m.String() }

func (j *FilterJob[V]) Name() string { return FilterName(j.model) }

func (j *FilterJob[V]) Fetch(ctx context.Context, call cacheback.Args) ([]V, error) {
	var vs []V
	if err := j.src.Filter(ctx, j.model, &vs, call.Named); err != nil {
		return nil, err
	}
	return vs, nil
}

// Empty returns an empty, non-nil list so async misses look like "no rows".
func (j *FilterJob[V]) Empty(cacheback.Args) []V { return []V{} }

// RegisterGet registers the GetJob for m. Workers rebuild it from the resolved
// model, falling back to m when the model Ref could not be resolved.
func RegisterGet[V any](r *cacheback.Registry, m Model, src Source, c cacheback.Cache[V]) error {
	return cacheback.Register[V](r, GetName(m), func(ctor cacheback.Constructor) (cacheback.Job[V], error) {
		o, err := rebuild(ctor, m)
		if err != nil {
			return nil, err
		}
		return NewGet[V](o.model, src, o.opts), nil
	}, c)
}

// RegisterFilter registers the FilterJob for m.
func RegisterFilter[V any](r *cacheback.Registry, m Model, src Source, c cacheback.Cache[[]V]) error {
	return cacheback.Register[[]V](r, FilterName(m), func(ctor cacheback.Constructor) (cacheback.Job[[]V], error) {
		o, err := rebuild(ctor, m)
		if err != nil {
			return nil, err
		}
		return NewFilter[V](o.model, src, o.opts), nil
	}, c)
}

func rebuild(ctor cacheback.Constructor, registered Model) (base, error) {
	b := base{model: registered}
	switch v := ctor.Kwargs["model"].(type) {
	case Model:
		b.model = v
	case cacheback.Ref:
		// unresolved; the registered model carries the same name
	case nil:
	default:
		return b, fmt.Errorf("queryset: model kwarg has type %T", v)
	}
	if b.model.Ref() != registered.Ref() {
		return b, fmt.Errorf("queryset: job for %s rebuilt with model %s", registered, b.model)
	}
	if d, ok := ctor.Duration("lifetime"); ok {
		b.opts.Lifetime = d
	}
	return b, nil
}

func first(opts []Options) Options {
	if len(opts) > 0 {
		return opts[0]
	}
	return Options{}
}
