package api

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const entryBatchKeyPrefix = "idem:entries:"

// RedisDeduper remembers the Idempotency-Key of every applied entries batch.
// Keys are scoped to the user and to the years the batch writes, so a client
// key reused for a batch in another year is treated as a new batch.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

// batchKey renders idem:entries:<user>:<y1,y2..>:<key>. years must be sorted.
func batchKey(userID string, years []int, key string) string {
	var b strings.Builder
	b.WriteString(entryBatchKeyPrefix)
	b.WriteString(userID)
	b.WriteByte(':')
	for i, y := range years {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(y))
	}
	b.WriteByte(':')
	b.WriteString(key)
	return b.String()
}

// Claim records the batch and stores how many cells it carried. It returns
// false when the batch was already applied.
func (r *RedisDeduper) Claim(ctx context.Context, userID string, years []int, key string, cells int) (bool, error) {
	return r.client.SetNX(ctx, batchKey(userID, years, key), cells, r.ttl).Result()
}

// Release forgets a claimed batch after its write failed, so a retry with the
// same key is applied.
func (r *RedisDeduper) Release(ctx context.Context, userID string, years []int, key string) error {
	return r.client.Del(ctx, batchKey(userID, years, key)).Err()
}
