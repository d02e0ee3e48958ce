package cacheback

import "time"

const (
	defaultNamespace       = "cacheback"
	defaultLifetime        = 10 * time.Minute
	defaultGrace           = 30 * 24 * time.Hour
	defaultGenRetention    = 30 * 24 * time.Hour
	defaultSweep           = time.Hour
	defaultFailureCapacity = 256
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
