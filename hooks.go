package cacheback

import "time"

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; they run on the read path
// and inside workers.
type Hooks interface {
	// A read found a fresh entry.
	Hit(storageKey string)
	// A read found an entry older than its lifetime and served it.
	StaleHit(storageKey string, age time.Duration)
	// A read found nothing. fetchOnMiss tells whether it fetched synchronously.
	Miss(storageKey string, fetchOnMiss bool)

	// A refresh request could not be handed to the dispatcher.
	EnqueueFailed(job string, err error)

	// An entry was deleted by the cache on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	SelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// Worker outcomes.
	RefreshStored(job string, took time.Duration)
	RefreshSkipped(job string, reason string)
	RefreshFailed(job string, stage Stage, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Hit(string)                          {}
func (NopHooks) StaleHit(string, time.Duration)      {}
func (NopHooks) Miss(string, bool)                   {}
func (NopHooks) EnqueueFailed(string, error)         {}
func (NopHooks) SelfHeal(string, string)             {}
func (NopHooks) ProviderSetRejected(string)          {}
func (NopHooks) RefreshStored(string, time.Duration) {}
func (NopHooks) RefreshSkipped(string, string)       {}
func (NopHooks) RefreshFailed(string, Stage, error)  {}
