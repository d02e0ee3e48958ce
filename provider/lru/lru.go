package lru

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	pr "github.com/unkn0wn-root/cacheback/provider"
)

type item struct {
	value []byte
	exp   time.Time // zero => no TTL
}

// Provider is a size-bounded in-process store with per-entry TTL. Expired
// entries are dropped lazily on Get; least recently used entries are evicted
// once Size is reached.
type Provider struct {
	c   *lru.Cache[string, item]
	now func() time.Time
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	Size int
	// Now overrides the clock used for expiry. nil => time.Now.
	Now func() time.Time
}

func New(cfg Config) (*Provider, error) {
	if cfg.Size <= 0 {
		return nil, errors.New("lru: size must be positive")
	}
	c, err := lru.New[string, item](cfg.Size)
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{c: c, now: now}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	it, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !it.exp.IsZero() && !p.now().Before(it.exp) {
		p.c.Remove(key)
		return nil, false, nil
	}
	return it.value, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = p.now().Add(ttl)
	}
	p.c.Add(key, item{value: value, exp: exp})
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Remove(key)
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Purge()
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (p *Provider) Len() int { return p.c.Len() }
