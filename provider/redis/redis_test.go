package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newProvider(t *testing.T, cfg Config) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	cfg.Client = goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cfg.CloseClient = true
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p, s
}

func TestGetSetDelWithTTL(t *testing.T) {
	ctx := context.Background()
	p, s := newProvider(t, Config{})

	if _, ok, err := p.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	raw := []byte{0, 1, 2, 0xFF}
	if ok, err := p.Set(ctx, "k", raw, 1, time.Minute); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	b, ok, err := p.Get(ctx, "k")
	if err != nil || !ok || string(b) != string(raw) {
		t.Fatalf("Get: ok=%v err=%v b=%x", ok, err, b)
	}
	if ttl, ok, err := p.TTL(ctx, "k"); err != nil || !ok || ttl != time.Minute {
		t.Fatalf("TTL = %v, %v, %v; want 1m", ttl, ok, err)
	}

	s.FastForward(time.Minute)
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("expected expiry")
	}
	if _, ok, err := p.TTL(ctx, "k"); err != nil || ok {
		t.Fatalf("TTL of missing key: ok=%v err=%v", ok, err)
	}

	_, _ = p.Set(ctx, "d", []byte("x"), 1, 0)
	if ttl, ok, _ := p.TTL(ctx, "d"); !ok || ttl != 0 {
		t.Fatalf("TTL without expiry = %v, %v", ttl, ok)
	}
	if err := p.Del(ctx, "d"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if s.Exists("d") {
		t.Fatalf("d should be deleted")
	}
}

func TestMaxTTLCapsWrites(t *testing.T) {
	ctx := context.Background()
	p, s := newProvider(t, Config{MaxTTL: time.Hour})

	_, _ = p.Set(ctx, "long", []byte("x"), 1, 30*24*time.Hour)
	_, _ = p.Set(ctx, "forever", []byte("x"), 1, 0)
	_, _ = p.Set(ctx, "short", []byte("x"), 1, time.Minute)

	for key, want := range map[string]time.Duration{"long": time.Hour, "forever": time.Hour, "short": time.Minute} {
		if got := s.TTL(key); got != want {
			t.Fatalf("%s TTL = %v, want %v", key, got, want)
		}
	}
}

func TestNilClient(t *testing.T) {
	if _, err := New(Config{}); err != ErrNilClient {
		t.Fatalf("err = %v, want ErrNilClient", err)
	}
}
