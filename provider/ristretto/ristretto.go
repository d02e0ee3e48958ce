package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/cacheback/provider"
)

// Provider is an admission-controlled in-process store. Ristretto may drop a
// write under contention or pressure; Set then reports ok=false and the cache
// treats the key as a miss until the next refresh.
type Provider struct {
	c    *rc.Cache
	wait bool
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	// MaxEntries is the expected number of live keys. It sizes the admission
	// counters (10x MaxEntries).
	MaxEntries int64
	// MaxCost bounds the summed cost of stored entries. Pair it with
	// Options.ComputeSetCost, e.g. ByteCost to budget memory in bytes.
	MaxCost int64
	Metrics bool
	// Wait makes Set block until the write is applied. Ristretto buffers
	// writes, so without it an immediate Get may still miss.
	Wait bool
}

func New(cfg Config) (*Provider, error) {
	if cfg.MaxEntries <= 0 || cfg.MaxCost <= 0 {
		return nil, errors.New("ristretto: MaxEntries and MaxCost must be positive")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.MaxEntries * 10,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, wait: cfg.Wait}, nil
}

// ByteCost charges an entry its framed size. Use it as Options.ComputeSetCost.
func ByteCost(_ string, raw []byte) int64 { return int64(len(raw)) }

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	ok := p.c.SetWithTTL(key, value, cost, ttl)
	if ok && p.wait {
		p.c.Wait()
	}
	return ok, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes ristretto counters (nil unless Config.Metrics is set).
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
