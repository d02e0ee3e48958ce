package cacheback

import (
	"context"
	"math"
	"time"
)

// Job is a cacheable computation. Implementations are cheap, short-lived values
// created per call and rebuilt on workers from their Constructor.
type Job[V any] interface {
	// Name is the stable identifier the job is registered under.
	Name() string
	// Fetch does the expensive work for call.
	Fetch(ctx context.Context, call Args) (V, error)
	// Constructor describes the state needed to rebuild an equivalent job.
	// It must only contain serializable values; external resources go in Refs.
	Constructor() Constructor
}

// Lifetimer overrides Options.DefaultLifetime for a job.
type Lifetimer interface {
	Lifetime() time.Duration
}

// MissPolicy overrides Options.FetchOnMiss for a job. ok=false keeps the
// cache default.
type MissPolicy interface {
	FetchOnMiss() (fetch, ok bool)
}

// Emptier provides the value returned on a miss that is not fetched synchronously.
type Emptier[V any] interface {
	Empty(call Args) V
}

// KeyRefiner lets a job adjust the derived key, e.g. to prefix a resource name.
// The result must be a deterministic function of base and call.
type KeyRefiner interface {
	RefineKey(base string, call Args) string
}

// Args are the positional and named arguments of a call.
type Args struct {
	Positional []any          `msgpack:"args,omitempty" json:"args,omitempty"`
	Named      map[string]any `msgpack:"kwargs,omitempty" json:"kwargs,omitempty"`
}

// NewArgs returns Args with the given positional values.
func NewArgs(positional ...any) Args {
	return Args{Positional: positional}
}

// With returns a copy of a with name set to v.
func (a Args) With(name string, v any) Args {
	named := make(map[string]any, len(a.Named)+1)
	for k, old := range a.Named {
		named[k] = old
	}
	named[name] = v
	pos := append([]any(nil), a.Positional...)
	return Args{Positional: pos, Named: named}
}

// Get returns the named argument.
func (a Args) Get(name string) (any, bool) {
	v, ok := a.Named[name]
	return v, ok
}

// String returns the named argument when it is a string.
func (a Args) String(name string) (string, bool) {
	v, ok := a.Named[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Int returns the named argument as int64. Any integer kind is accepted, as are
// floats without a fractional part: serializers do not preserve the width of
// numbers across a refresh round-trip.
func (a Args) Int(name string) (int64, bool) {
	v, ok := a.Named[name]
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), n <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case float32:
		f := float64(n)
		return int64(f), f == math.Trunc(f)
	case float64:
		return int64(n), n == math.Trunc(n)
	default:
		return 0, false
	}
}

// Ref is a two-part lookup name for an external resource (e.g. "app.model").
// Workers resolve Refs to live objects through a Resolver.
type Ref struct {
	Namespace string `msgpack:"ns" json:"ns"`
	Name      string `msgpack:"name" json:"name"`
}

func (r Ref) String() string { return r.Namespace + "." + r.Name }

// Constructor is the serializable state of a job.
// On a worker, every entry of Refs is resolved and placed into Kwargs under the
// same name; if resolution fails the raw Ref is placed there instead.
type Constructor struct {
	Args   []any          `msgpack:"args,omitempty" json:"args,omitempty"`
	Kwargs map[string]any `msgpack:"kwargs,omitempty" json:"kwargs,omitempty"`
	Refs   map[string]Ref `msgpack:"refs,omitempty" json:"refs,omitempty"`
}

// Duration reads a named constructor argument as a time.Duration.
// Durations travel as integer nanoseconds.
func (c Constructor) Duration(name string) (time.Duration, bool) {
	v, ok := c.Kwargs[name]
	if !ok {
		return 0, false
	}
	if d, ok := v.(time.Duration); ok {
		return d, true
	}
	n, ok := toInt64(v)
	return time.Duration(n), ok
}

// Int reads a named constructor argument as an int64. Any integer width is
// accepted, since decoders do not preserve the original one.
func (c Constructor) Int(name string) (int64, bool) {
	v, ok := c.Kwargs[name]
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

// Bool reads a named constructor argument as a bool.
func (c Constructor) Bool(name string) (value, ok bool) {
	v, found := c.Kwargs[name]
	if !found {
		return false, false
	}
	value, ok = v.(bool)
	return value, ok
}

// RefreshRequest is the unit handed to a Dispatcher. A worker must receive the
// same fields and pass them to Worker.Perform.
type RefreshRequest struct {
	Job         string      `msgpack:"job" json:"job"`
	Constructor Constructor `msgpack:"ctor" json:"ctor"`
	Call        Args        `msgpack:"call" json:"call"`
}

// Dispatcher accepts refresh requests for later execution, at least once.
// Enqueue must not block on the refresh itself.
type Dispatcher interface {
	Enqueue(ctx context.Context, req RefreshRequest) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, req RefreshRequest) error

func (f DispatcherFunc) Enqueue(ctx context.Context, req RefreshRequest) error { return f(ctx, req) }

// Resolver turns a Ref back into a live object on the worker side.
type Resolver interface {
	Resolve(ctx context.Context, ref Ref) (any, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, ref Ref) (any, error)

func (f ResolverFunc) Resolve(ctx context.Context, ref Ref) (any, error) { return f(ctx, ref) }
