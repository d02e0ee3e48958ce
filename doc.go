// Package cacheback implements stale-while-revalidate cache jobs. A cached value
// is served immediately even after it expires, while a background refresh
// recomputes it for future reads.
//
// Components:
//   - Job[V]: knows how to Fetch a value and how to describe itself (Constructor)
//     so that a worker in another process can rebuild an equivalent job.
//   - Cache[V]: derives keys, reads and writes framed entries in a Provider and
//     decides between fresh hit, stale hit and miss.
//   - Dispatcher: fire-and-forget transport for RefreshRequest values
//     (see dispatch/local and dispatch/redisq).
//   - Registry + Worker: turn a RefreshRequest back into a job, fetch, store.
//
// Keys:
//
//	<ns>:<job>:<hash>   - hash = sha256 over deterministic CBOR of [job, args, kwargs]
//
// Read path:
//
//	fresh hit  -> cached value
//	stale hit  -> cached value, one refresh enqueued
//	miss       -> Fetch + store (FetchOnMiss) or Empty value + one refresh enqueued
//
// Overlapping refreshes for the same key are not deduplicated; the last write wins.
// Invalidate bumps a per-key generation so refreshes started before it cannot
// repopulate the entry.
package cacheback
