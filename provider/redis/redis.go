package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/cacheback/provider"
)

var ErrNilClient = errors.New("redis: nil client")

// Redis stores entries as plain string values with PX expiry. It is the
// provider to use when refresh workers run in other processes.
type Redis struct {
	rdb    goredis.UniversalClient
	maxTTL time.Duration
	owned  bool
}

var _ pr.Provider = (*Redis)(nil)

type Config struct {
	Client goredis.UniversalClient
	// MaxTTL caps the expiry of every write. Entries are normally kept for
	// lifetime + grace; a cap bounds memory when the grace period is long.
	// 0 => no cap.
	MaxTTL time.Duration
	// CloseClient makes Close close Client. Leave it unset when the client is
	// shared with a genstore or refresh queue.
	CloseClient bool
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, maxTTL: cfg.MaxTTL, owned: cfg.CloseClient}, nil
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return b, true, nil
}

// Set never reports ok=false: Redis evicts on its own schedule rather than
// rejecting writes.
func (p *Redis) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if p.maxTTL > 0 && (ttl <= 0 || ttl > p.maxTTL) {
		ttl = p.maxTTL
	}
	if ttl < 0 {
		ttl = 0
	}
	return err2ok(p.rdb.Set(ctx, key, value, ttl).Err())
}

func (p *Redis) Del(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, key).Err()
}

// TTL reports how long key stays in Redis. ok is false when the key does not
// exist; a key without expiry returns (0, true, nil).
func (p *Redis) TTL(ctx context.Context, key string) (ttl time.Duration, ok bool, err error) {
	d, err := p.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	switch {
	case d == -2: // missing
		return 0, false, nil
	case d < 0: // no expiry
		return 0, true, nil
	}
	return d, true, nil
}

// Close is idempotent and only closes the client when CloseClient was set.
func (p *Redis) Close(context.Context) error {
	if !p.owned {
		return nil
	}
	if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}

func err2ok(err error) (bool, error) {
	if err != nil {
		return false, err
	}
	return true, nil
}
