package cacheback

import (
	"errors"
	"fmt"
)

var (
	ErrNilJob       = errors.New("cacheback: nil job")
	ErrNoDispatcher = errors.New("cacheback: no dispatcher configured")
	ErrDuplicateJob = errors.New("cacheback: job already registered")
	ErrUnknownJob   = errors.New("cacheback: unknown job")
)

// KeyDerivationError reports call arguments that have no canonical encoding.
// It fails the calling path before the store is touched.
type KeyDerivationError struct {
	Job string
	Err error
}

func (e *KeyDerivationError) Error() string {
	return fmt.Sprintf("cacheback: derive key for %q: %v", e.Job, e.Err)
}

func (e *KeyDerivationError) Unwrap() error { return e.Err }

// JobResolutionError reports a refresh request whose job could not be rebuilt:
// the name is not registered or its factory failed.
type JobResolutionError struct {
	Job string
	Err error
}

func (e *JobResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cacheback: resolve job %q", e.Job)
	}
	return fmt.Sprintf("cacheback: resolve job %q: %v", e.Job, e.Err)
}

func (e *JobResolutionError) Unwrap() error { return e.Err }

// ReferenceResolutionError reports a constructor Ref the Resolver could not
// turn into a live object. The raw Ref is passed to the factory instead.
type ReferenceResolutionError struct {
	Job   string
	Kwarg string
	Ref   Ref
	Err   error
}

func (e *ReferenceResolutionError) Error() string {
	return fmt.Sprintf("cacheback: resolve %s=%s for job %q: %v", e.Kwarg, e.Ref, e.Job, e.Err)
}

func (e *ReferenceResolutionError) Unwrap() error { return e.Err }

// FetchError wraps an error returned by Job.Fetch.
type FetchError struct {
	Job string
	Key string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("cacheback: fetch %q (key %q): %v", e.Job, e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type InvalidateError struct {
	Key     string
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("cacheback: invalidate %q: gen bump and delete failed: bump=%v; delete=%v",
			e.Key, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("cacheback: invalidate %q: gen bump failed: %v", e.Key, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("cacheback: invalidate %q: delete failed: %v", e.Key, e.DelErr)
	default:
		return fmt.Sprintf("cacheback: invalidate %q: unknown error", e.Key)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}
