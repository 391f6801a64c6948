package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"tessera/domain"
)

// stubBackend embeds a nil Backend so unexpected calls panic.
type stubBackend struct {
	Backend
	fetchTasksFn   func(ctx context.Context, userID string) ([]domain.Task, error)
	fetchEntriesFn func(ctx context.Context, userID string, year int) ([]domain.Entry, error)
	saveEntriesFn  func(ctx context.Context, userID string, entries []domain.Entry) error
}

func (s *stubBackend) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	if s.fetchTasksFn == nil {
		return nil, errors.New("unexpected FetchTasks call")
	}
	return s.fetchTasksFn(ctx, userID)
}

func (s *stubBackend) FetchEntries(ctx context.Context, userID string, year int) ([]domain.Entry, error) {
	if s.fetchEntriesFn == nil {
		return nil, errors.New("unexpected FetchEntries call")
	}
	return s.fetchEntriesFn(ctx, userID, year)
}

func (s *stubBackend) SaveEntries(ctx context.Context, userID string, entries []domain.Entry) error {
	if s.saveEntriesFn == nil {
		return errors.New("unexpected SaveEntries call")
	}
	return s.saveEntriesFn(ctx, userID, entries)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheFetchTasksMissThenHit(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	var calls int
	cache := NewCache(&stubBackend{
		fetchTasksFn: func(ctx context.Context, uid string) ([]domain.Task, error) {
			calls++
			return []domain.Task{{ID: "t1", Name: "Deep Work"}}, nil
		},
	}, client, time.Minute)

	for i := 0; i < 2; i++ {
		tasks, err := cache.FetchTasks(ctx, "user-1")
		if err != nil {
			t.Fatalf("fetch tasks: %v", err)
		}
		if len(tasks) != 1 || tasks[0].Name != "Deep Work" {
			t.Fatalf("tasks = %+v", tasks)
		}
	}
	if calls != 1 {
		t.Fatalf("backend calls = %d, want 1", calls)
	}
	if ttl := mr.TTL(tasksCacheKey("user-1")); ttl != time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}
}

func TestCacheSaveEntriesEvictsYear(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	var fetches int
	cache := NewCache(&stubBackend{
		fetchEntriesFn: func(ctx context.Context, uid string, year int) ([]domain.Entry, error) {
			fetches++
			return []domain.Entry{{TaskID: "a", DayIndex: 1, Hour: 1, Year: year}}, nil
		},
		saveEntriesFn: func(ctx context.Context, uid string, entries []domain.Entry) error { return nil },
	}, client, time.Minute)

	if _, err := cache.FetchEntries(ctx, "u", 2025); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := cache.FetchEntries(ctx, "u", 2024); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := cache.SaveEntries(ctx, "u", []domain.Entry{{TaskID: "a", Year: 2025}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if mr.Exists(entriesCacheKey("u", 2025)) {
		t.Fatalf("2025 entries should be evicted")
	}
	if !mr.Exists(entriesCacheKey("u", 2024)) {
		t.Fatalf("2024 entries should stay cached")
	}
	if _, err := cache.FetchEntries(ctx, "u", 2025); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if fetches != 3 {
		t.Fatalf("fetches = %d, want 3", fetches)
	}
}

func TestCacheSaveFailureKeepsCache(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	boom := errors.New("boom")

	cache := NewCache(&stubBackend{
		fetchEntriesFn: func(ctx context.Context, uid string, year int) ([]domain.Entry, error) { return nil, nil },
		saveEntriesFn:  func(ctx context.Context, uid string, entries []domain.Entry) error { return boom },
	}, client, time.Minute)

	_, _ = cache.FetchEntries(ctx, "u", 2025)
	if err := cache.SaveEntries(ctx, "u", []domain.Entry{{Year: 2025}}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if !mr.Exists(entriesCacheKey("u", 2025)) {
		t.Fatalf("failed write should not evict")
	}
}

func TestCacheCorruptPayloadFallsBack(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	_ = mr.Set(tasksCacheKey("u"), "{not json")

	cache := NewCache(&stubBackend{
		fetchTasksFn: func(ctx context.Context, uid string) ([]domain.Task, error) {
			return []domain.Task{{ID: "x"}}, nil
		},
	}, client, time.Minute)

	tasks, err := cache.FetchTasks(ctx, "u")
	if err != nil || len(tasks) != 1 {
		t.Fatalf("tasks = %+v, %v", tasks, err)
	}
}

func TestNewCacheNilBasePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	NewCache(nil, nil, time.Minute)
}
