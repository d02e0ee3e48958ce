// Package bigcache stores entries in an allegro/bigcache shard set.
//
// BigCache evicts by a single LifeWindow and has no per-entry TTL, so this
// adapter prefixes each value with its expiry (unix nanos, big endian) and
// strips it again on Get. Entries past their expiry read as misses and are
// dropped. LifeWindow still bounds every entry: keep it at least as long as
// the longest lifetime plus grace.
package bigcache

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"
	"github.com/jonboulle/clockwork"

	pr "github.com/unkn0wn-root/cacheback/provider"
)

const deadlineLen = 8

type Config struct {
	LifeWindow         time.Duration // required
	CleanWindow        time.Duration
	Shards             int // power of two; 0 => bigcache default
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int             // 0 => unbounded
	Clock              clockwork.Clock // nil => real clock
}

type Provider struct {
	c     *bc.BigCache
	clock clockwork.Clock
}

var _ pr.Provider = (*Provider)(nil)

func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.LifeWindow <= 0 {
		return nil, errors.New("bigcache: LifeWindow is required")
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	conf.Verbose = false
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB

	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Provider{c: c, clock: clock}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.c.Get(key)
	switch {
	case errors.Is(err, bc.ErrEntryNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	case len(b) < deadlineLen:
		// not written by this adapter
		_ = p.c.Delete(key)
		return nil, false, nil
	}
	if dl := int64(binary.BigEndian.Uint64(b)); dl > 0 && p.clock.Now().UnixNano() >= dl {
		_ = p.c.Delete(key)
		return nil, false, nil
	}
	return b[deadlineLen:], true, nil
}

// Set records now+ttl as the entry's expiry. ttl <= 0 keeps the entry until
// BigCache evicts it. cost is ignored.
func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var dl int64
	if ttl > 0 {
		dl = p.clock.Now().Add(ttl).UnixNano()
	}
	buf := make([]byte, deadlineLen+len(value))
	binary.BigEndian.PutUint64(buf, uint64(dl))
	copy(buf[deadlineLen:], value)
	if err := p.c.Set(key, buf); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	if err := p.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

// Len reports the number of entries held, expired ones included.
func (p *Provider) Len() int { return p.c.Len() }

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}
