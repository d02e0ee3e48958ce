package genstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, ttl), mr
}

func TestRedisSnapshotAndBump(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, 0)

	if g, err := s.Snapshot(ctx, "app:k"); err != nil || g != 0 {
		t.Fatalf("Snapshot missing: g=%d err=%v", g, err)
	}
	for want := uint64(1); want <= 3; want++ {
		g, err := s.Bump(ctx, "app:k")
		if err != nil || g != want {
			t.Fatalf("Bump: g=%d err=%v want %d", g, err, want)
		}
	}
	if v, _ := mr.Get("gen:app:k"); v != "3" {
		t.Fatalf("stored gen = %q", v)
	}
	if ttl := mr.TTL("gen:app:k"); ttl != 0 {
		t.Fatalf("unexpected TTL %v", ttl)
	}
}

func TestRedisSnapshotRejectsGarbage(t *testing.T) {
	s, mr := newRedisStore(t, 0)
	if err := mr.Set(Key("app:k"), "nope"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Snapshot(context.Background(), "app:k"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestRedisBumpAppliesTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Hour)

	if _, err := s.Bump(ctx, "app:k"); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("gen:app:k"); ttl != time.Hour {
		t.Fatalf("TTL = %v, want 1h", ttl)
	}
	mr.FastForward(time.Hour)
	if g, _ := s.Snapshot(ctx, "app:k"); g != 0 {
		t.Fatalf("expired gen should read as 0, got %d", g)
	}
}
