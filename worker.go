package cacheback

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
)

// Status is the result of Worker.Perform.
type Status string

const (
	StatusStored     Status = "stored"
	StatusSkipped    Status = "skipped" // generation moved or provider rejected the write
	StatusUnresolved Status = "unresolved"
	StatusFailed     Status = "failed"
)

// Outcome describes what a refresh did. Perform never returns an error; the
// outcome is informational.
type Outcome struct {
	Job    string
	Key    string
	Status Status
	Stage  Stage
	Err    error
	Took   time.Duration
}

// Failure is a tracked failed refresh.
type Failure struct {
	Job   string
	Key   string
	Stage Stage
	Err   string
	Call  Args
	At    time.Time
}

type WorkerOptions struct {
	// Required
	Registry *Registry

	Resolver Resolver        // nil => Refs are passed through unresolved
	Logger   Logger          // nil => NopLogger
	Hooks    Hooks           // nil => NopHooks
	Clock    clockwork.Clock // nil => real clock
	Timeout  time.Duration   // per refresh; 0 => no timeout

	// TrackFailures keeps the most recent failure per job/key until a later
	// refresh of the same key succeeds.
	TrackFailures   bool
	FailureCapacity int // 0 => 256
}

// Worker executes refresh requests. It is safe for concurrent use.
type Worker struct {
	registry *Registry
	resolver Resolver
	log      Logger
	hooks    Hooks
	clock    clockwork.Clock
	timeout  time.Duration
	failures *lru.Cache[string, Failure]
}

func NewWorker(opts WorkerOptions) (*Worker, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("cacheback: worker registry is required")
	}
	w := &Worker{
		registry: opts.Registry,
		resolver: opts.Resolver,
		timeout:  opts.Timeout,
	}
	w.log = coalesce[Logger](opts.Logger, NopLogger{})
	w.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	if opts.Clock != nil {
		w.clock = opts.Clock
	} else {
		w.clock = clockwork.NewRealClock()
	}
	if opts.TrackFailures {
		f, err := lru.New[string, Failure](coalesce(opts.FailureCapacity, defaultFailureCapacity))
		if err != nil {
			return nil, fmt.Errorf("cacheback: failure tracker: %w", err)
		}
		w.failures = f
	}
	return w, nil
}

// Perform rebuilds the job named in req, fetches and stores the value.
// Every failure is logged and dropped: the previous entry stays in place.
func (w *Worker) Perform(ctx context.Context, req RefreshRequest) (out Outcome) {
	start := w.clock.Now()
	out.Job = req.Job

	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Err = &FetchError{Job: req.Job, Key: out.Key, Err: fmt.Errorf("panic: %v", r)}
			w.fail(req, &out)
		}
		out.Took = w.clock.Since(start)
	}()

	fn, ok := w.registry.lookup(req.Job)
	if !ok {
		out.Status = StatusUnresolved
		out.Stage = StageResolve
		out.Err = &JobResolutionError{Job: req.Job, Err: ErrUnknownJob}
		w.fail(req, &out)
		return out
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	out.Stage = StageResolve
	res := fn(ctx, w.resolveRefs(ctx, req), req.Call)
	out.Key = res.key
	out.Stage = res.stage

	switch {
	case res.err != nil && res.stage == StageResolve:
		out.Status = StatusUnresolved
		out.Err = res.err
		w.fail(req, &out)
	case res.err != nil:
		out.Status = StatusFailed
		out.Err = res.err
		w.fail(req, &out)
	case !res.stored:
		out.Status = StatusSkipped
		w.hooks.RefreshSkipped(req.Job, "not_stored")
		w.log.Debug("refresh result not stored", Fields{"job": req.Job, "key": res.key})
	default:
		out.Status = StatusStored
		w.forget(req.Job, res.key)
		w.hooks.RefreshStored(req.Job, w.clock.Since(start))
		w.log.Debug("refresh stored", Fields{"job": req.Job, "key": res.key})
	}
	return out
}

// resolveRefs copies the constructor and places every resolved Ref into Kwargs.
// Resolution failures fall back to the raw Ref.
func (w *Worker) resolveRefs(ctx context.Context, req RefreshRequest) Constructor {
	ctor := req.Constructor
	if len(ctor.Refs) == 0 {
		return ctor
	}
	kwargs := make(map[string]any, len(ctor.Kwargs)+len(ctor.Refs))
	for k, v := range ctor.Kwargs {
		kwargs[k] = v
	}
	for name, ref := range ctor.Refs {
		kwargs[name] = ref
		if w.resolver == nil {
			continue
		}
		live, err := w.resolver.Resolve(ctx, ref)
		if err != nil {
			rerr := &ReferenceResolutionError{Job: req.Job, Kwarg: name, Ref: ref, Err: err}
			w.log.Warn("reference resolution failed, passing raw reference", Fields{
				"job": req.Job, "kwarg": name, "ref": ref.String(), "err": rerr,
			})
			continue
		}
		kwargs[name] = live
	}
	ctor.Kwargs = kwargs
	return ctor
}

func (w *Worker) fail(req RefreshRequest, out *Outcome) {
	w.hooks.RefreshFailed(req.Job, out.Stage, out.Err)
	w.log.Error("refresh failed", Fields{
		"job":    req.Job,
		"key":    out.Key,
		"stage":  string(out.Stage),
		"args":   req.Call.Positional,
		"kwargs": req.Call.Named,
		"err":    out.Err,
	})
	if w.failures == nil {
		return
	}
	w.failures.Add(req.Job+"|"+out.Key, Failure{
		Job:   req.Job,
		Key:   out.Key,
		Stage: out.Stage,
		Err:   out.Err.Error(),
		Call:  req.Call,
		At:    w.clock.Now(),
	})
}

func (w *Worker) forget(job, key string) {
	if w.failures != nil {
		w.failures.Remove(job + "|" + key)
	}
}

// Failures returns tracked failures from oldest to newest.
// It is empty unless WorkerOptions.TrackFailures is set.
func (w *Worker) Failures() []Failure {
	if w.failures == nil {
		return nil
	}
	return w.failures.Values()
}
