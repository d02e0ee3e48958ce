package bigcache

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newProvider(t *testing.T, clock clockwork.Clock) *Provider {
	t.Helper()
	ctx := context.Background()
	p, err := New(ctx, Config{
		LifeWindow:         24 * time.Hour,
		Shards:             16,
		MaxEntriesInWindow: 1024,
		MaxEntrySize:       64,
		Clock:              clock,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(ctx) })
	return p
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t, nil)

	if _, ok, err := p.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	if ok, err := p.Set(ctx, "k", []byte("v"), 1, time.Minute); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	if b, ok, err := p.Get(ctx, "k"); err != nil || !ok || string(b) != "v" {
		t.Fatalf("Get: ok=%v err=%v b=%q", ok, err, b)
	}
	if p.Len() != 1 {
		t.Fatalf("Len=%d, want 1", p.Len())
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("Del missing: %v", err)
	}
}

func TestPerEntryTTL(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	p := newProvider(t, clock)

	_, _ = p.Set(ctx, "short", []byte("a"), 1, time.Minute)
	_, _ = p.Set(ctx, "long", []byte("b"), 1, time.Hour)
	_, _ = p.Set(ctx, "forever", []byte("c"), 1, 0)

	clock.Advance(2 * time.Minute)

	if _, ok, _ := p.Get(ctx, "short"); ok {
		t.Fatalf("short entry should have expired")
	}
	if b, ok, _ := p.Get(ctx, "long"); !ok || string(b) != "b" {
		t.Fatalf("long entry: ok=%v b=%q", ok, b)
	}
	if b, ok, _ := p.Get(ctx, "forever"); !ok || string(b) != "c" {
		t.Fatalf("no-ttl entry: ok=%v b=%q", ok, b)
	}
	if p.Len() != 2 {
		t.Fatalf("expired entry should be dropped on read, Len=%d", p.Len())
	}
}

func TestEmptyValue(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t, nil)
	_, _ = p.Set(ctx, "k", nil, 1, time.Minute)
	b, ok, err := p.Get(ctx, "k")
	if err != nil || !ok || len(b) != 0 {
		t.Fatalf("empty value: ok=%v err=%v b=%q", ok, err, b)
	}
}

func TestRequiresLifeWindow(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without LifeWindow")
	}
}
