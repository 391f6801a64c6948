package api

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newDeduper(t *testing.T, ttl time.Duration) (*RedisDeduper, *miniredis.Miniredis) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})
	return NewRedisDeduper(client, ttl), m
}

func TestRedisDeduperClaimRelease(t *testing.T) {
	deduper, m := newDeduper(t, time.Minute)
	ctx := context.Background()
	years := []int{2025}

	claimed, err := deduper.Claim(ctx, "user", years, "k1", 3)
	if err != nil || !claimed {
		t.Fatalf("first claim = %v, %v", claimed, err)
	}
	if v, _ := m.Get("idem:entries:user:2025:k1"); v != "3" {
		t.Fatalf("expected cell count stored, got %q", v)
	}
	claimed, err = deduper.Claim(ctx, "user", years, "k1", 3)
	if err != nil || claimed {
		t.Fatalf("second claim = %v, %v", claimed, err)
	}
	if err := deduper.Release(ctx, "user", years, "k1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	claimed, err = deduper.Claim(ctx, "user", years, "k1", 3)
	if err != nil || !claimed {
		t.Fatalf("claim after release = %v, %v", claimed, err)
	}
}

func TestRedisDeduperScopesByUserAndYears(t *testing.T) {
	deduper, m := newDeduper(t, time.Minute)
	ctx := context.Background()

	if _, err := deduper.Claim(ctx, "alice", []int{2024, 2025}, "k", 2); err != nil {
		t.Fatalf("claim: %v", err)
	}
	cases := []struct {
		user  string
		years []int
	}{
		{"bob", []int{2024, 2025}},
		{"alice", []int{2025}},
		{"alice", []int{2024}},
	}
	for _, tc := range cases {
		claimed, err := deduper.Claim(ctx, tc.user, tc.years, "k", 1)
		if err != nil || !claimed {
			t.Fatalf("%s %v should be a fresh batch: %v, %v", tc.user, tc.years, claimed, err)
		}
	}
	if !m.Exists("idem:entries:alice:2024,2025:k") {
		t.Fatalf("expected scoped key, have %v", m.Keys())
	}
}

func TestRedisDeduperTTL(t *testing.T) {
	deduper, m := newDeduper(t, time.Minute)
	ctx := context.Background()

	if _, err := deduper.Claim(ctx, "u", []int{2025}, "k", 1); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if ttl := m.TTL("idem:entries:u:2025:k"); ttl != time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	m.FastForward(2 * time.Minute)
	claimed, err := deduper.Claim(ctx, "u", []int{2025}, "k", 1)
	if err != nil || !claimed {
		t.Fatalf("expired key should be fresh: %v, %v", claimed, err)
	}
}
