package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"tessera/domain"
)

// Cache wraps a Backend with Redis read-through caching of tasks and
// per-year entries. Writes go to the backend first and then evict.
type Cache struct {
	Backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper. A nil client disables caching.
func NewCache(base Backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{Backend: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	var tasks []domain.Task
	if c.load(ctx, tasksCacheKey(userID), &tasks) {
		return tasks, nil
	}
	tasks, err := c.Backend.FetchTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, tasksCacheKey(userID), tasks)
	return tasks, nil
}

func (c *Cache) CreateTasks(ctx context.Context, userID string, tasks []domain.Task) error {
	if err := c.Backend.CreateTasks(ctx, userID, tasks); err != nil {
		return err
	}
	c.evict(ctx, tasksCacheKey(userID))
	return nil
}

func (c *Cache) UpdateTask(ctx context.Context, userID, taskID string, upd domain.TaskUpdate) (domain.Task, error) {
	t, err := c.Backend.UpdateTask(ctx, userID, taskID, upd)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, tasksCacheKey(userID))
	return t, nil
}

func (c *Cache) DeleteTask(ctx context.Context, userID, taskID string) error {
	if err := c.Backend.DeleteTask(ctx, userID, taskID); err != nil {
		return err
	}
	c.evict(ctx, tasksCacheKey(userID))
	return nil
}

func (c *Cache) FetchEntries(ctx context.Context, userID string, year int) ([]domain.Entry, error) {
	key := entriesCacheKey(userID, year)
	var entries []domain.Entry
	if c.load(ctx, key, &entries) {
		return entries, nil
	}
	entries, err := c.Backend.FetchEntries(ctx, userID, year)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, entries)
	return entries, nil
}

func (c *Cache) SaveEntries(ctx context.Context, userID string, entries []domain.Entry) error {
	if err := c.Backend.SaveEntries(ctx, userID, entries); err != nil {
		return err
	}
	years := make(map[int]struct{})
	keys := make([]string, 0, 1)
	for _, e := range entries {
		if _, ok := years[e.Year]; ok {
			continue
		}
		years[e.Year] = struct{}{}
		keys = append(keys, entriesCacheKey(userID, e.Year))
	}
	c.evict(ctx, keys...)
	return nil
}

func (c *Cache) DeleteEntries(ctx context.Context, userID string, year int, cells []domain.Cell) error {
	if err := c.Backend.DeleteEntries(ctx, userID, year, cells); err != nil {
		return err
	}
	c.evict(ctx, entriesCacheKey(userID, year))
	return nil
}

func (c *Cache) load(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, dst); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil || len(keys) == 0 {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func tasksCacheKey(userID string) string {
	return "tasks:" + userID
}

func entriesCacheKey(userID string, year int) string {
	return "entries:" + userID + ":" + strconv.Itoa(year)
}
