package cacheback

import (
	"errors"
	"strings"

	"github.com/unkn0wn-root/cacheback/internal/util"
)

// DeriveKey returns the cache key for a job name and call arguments:
//
//	<name>:<hash>
//
// hash covers [name, positional, named] in canonical form, so it does not depend
// on map iteration order, integer width or time zone. Arguments are first put in
// the form they take after a msgpack round trip, which keeps the key a worker
// derives from a queued request equal to the caller's. Arguments without a
// canonical encoding return a *KeyDerivationError.
func DeriveKey(name string, call Args) (string, error) {
	if name == "" {
		return "", &KeyDerivationError{Err: errors.New("empty job name")}
	}
	pos, err := util.Portable(call.Positional)
	if err != nil {
		return "", &KeyDerivationError{Job: name, Err: err}
	}
	if s, ok := pos.([]any); !ok || len(s) == 0 {
		pos = []any{}
	}
	named, err := util.Portable(call.Named)
	if err != nil {
		return "", &KeyDerivationError{Job: name, Err: err}
	}
	if m, ok := named.(map[string]any); !ok || len(m) == 0 {
		named = map[string]any{}
	}
	h, err := util.Digest([]any{name, pos, named})
	if err != nil {
		return "", &KeyDerivationError{Job: name, Err: err}
	}
	return name + ":" + h, nil
}

// jobKey applies a job's KeyRefiner on top of DeriveKey.
func jobKey[V any](job Job[V], call Args) (string, error) {
	base, err := DeriveKey(job.Name(), call)
	if err != nil {
		return "", err
	}
	if r, ok := job.(KeyRefiner); ok {
		k := r.RefineKey(base, call)
		if strings.TrimSpace(k) == "" {
			return "", &KeyDerivationError{Job: job.Name(), Err: errors.New("refined key is empty")}
		}
		return k, nil
	}
	return base, nil
}
