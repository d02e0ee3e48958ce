package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares generations between the caches serving reads and the workers
// writing refreshed values, and survives restarts. Generations live under
// "gen:<storageKey>"; storage keys already carry the cache namespace.
//
// With a TTL, a generation that is not bumped again expires and reads as 0;
// entries written under the expired generation then self-heal.
type Redis struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

var _ GenStore = (*Redis)(nil)

// NewRedis returns a Redis-backed store. ttl <= 0 keeps generations forever.
// The client is not closed by Close.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{rdb: client, ttl: ttl}
}

// Key returns the Redis key holding the generation of storageKey.
func Key(storageKey string) string { return "gen:" + storageKey }

func (s *Redis) Snapshot(ctx context.Context, storageKey string) (uint64, error) {
	res, err := s.rdb.Get(ctx, Key(storageKey)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("genstore: parse generation of %s: %w", storageKey, err)
	}
	return u, nil
}

// Bump runs INCR, and EXPIRE in the same pipeline when a TTL is set.
func (s *Redis) Bump(ctx context.Context, storageKey string) (uint64, error) {
	k := Key(storageKey)
	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, k).Result()
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	}

	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

// Cleanup is a no-op; Redis expires generations itself when a TTL is set.
func (s *Redis) Cleanup(time.Duration) {}

// Close is a no-op: the client is usually shared with the provider and the
// dispatcher, so it belongs to the caller.
func (s *Redis) Close(context.Context) error { return nil }
