package util

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Portable returns v as a refresh worker sees it after the request crossed a
// msgpack queue: structs become maps keyed by their msgpack field names,
// integers shrink to their smallest width and times come back as instants in
// UTC. Portable(Portable(v)) equals Portable(v), so callers and workers hash
// the same value.
func Portable(v any) (any, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := msgpack.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return utc(out), nil
}

func utc(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case []any:
		for i := range t {
			t[i] = utc(t[i])
		}
	case map[string]any:
		for k, e := range t {
			t[k] = utc(e)
		}
	case map[any]any:
		for k, e := range t {
			t[k] = utc(e)
		}
	}
	return v
}
