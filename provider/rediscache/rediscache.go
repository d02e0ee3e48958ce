// Package rediscache is a two-tier provider: a TinyLFU in-process tier in front
// of Redis, backed by go-redis/cache.
//
// The local tier is per process. A worker writing a refreshed value updates
// Redis and its own local tier only, so other processes see the new value once
// their local copy expires (LocalTTL). Keep LocalTTL short relative to job lifetimes.
package rediscache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/cacheback/provider"
)

var ErrNilClient = errors.New("rediscache provider: nil client")

type Provider struct {
	c *cache.Cache
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	Client    goredis.UniversalClient
	LocalSize int           // 0 => no local tier
	LocalTTL  time.Duration // 0 => 1m
}

func New(cfg Config) (*Provider, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	opts := &cache.Options{Redis: cfg.Client}
	if cfg.LocalSize > 0 {
		ttl := cfg.LocalTTL
		if ttl <= 0 {
			ttl = time.Minute
		}
		opts.LocalCache = cache.NewTinyLFU(cfg.LocalSize, ttl)
	}
	return &Provider{c: cache.New(opts)}, nil
}

func (p *Provider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var b []byte
	err := p.c.Get(ctx, key, &b)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (p *Provider) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	err := p.c.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: value,
		TTL:   ttl,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(ctx context.Context, key string) error {
	err := p.c.Delete(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}

// Close is a no-op: the redis client belongs to the caller.
func (p *Provider) Close(context.Context) error { return nil }
