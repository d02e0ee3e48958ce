// Package genstore holds one generation number per storage key.
//
// Every cached entry records the generation that was current when its fetch
// began. Invalidate bumps the number, so an entry (or an in-flight refresh)
// carrying an older generation no longer counts.
package genstore

import (
	"context"
	"time"
)

// GenStore is safe for concurrent use. Local fits a single process; Redis is
// needed once refresh workers run in other processes.
type GenStore interface {
	// Snapshot reads the generation of storageKey. Unknown keys are at 0.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// Bump increments the generation and returns the new value.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// Cleanup forgets generations untouched for longer than retention.
	// Stores that expire keys on their own may do nothing.
	Cleanup(retention time.Duration)
	Close(context.Context) error
}
