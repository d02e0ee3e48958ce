// Package provider is the byte-store boundary of cacheback.
//
// A Provider holds opaque framed entries under "<namespace>:<key>". It must hand
// back exactly the bytes it was given; any compression or prefixing done
// internally has to be undone on Get. cacheback owns the namespaced keyspace:
// an entry it cannot parse there is deleted on read.
package provider

import (
	"context"
	"time"
)

// Provider is a concurrent-safe byte store with per-entry expiry.
//
// The ttl cacheback passes is the entry lifetime plus the grace period, so a
// value stays readable (as stale) well after it needs refreshing.
type Provider interface {
	// Get reports ok=false for an absent or expired key. err is reserved for
	// store failures and is propagated to the reader.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set writes value. Stores without cost accounting ignore cost. ok=false
	// with a nil error means the store declined the write (admission, memory
	// pressure); the previous entry, if any, is left alone.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes key. Removing an absent key is not an error.
	Del(ctx context.Context, key string) error

	Close(ctx context.Context) error
}
