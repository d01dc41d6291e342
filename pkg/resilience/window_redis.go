package resilience

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisWindow is the fleet-wide WindowCounter: a sorted set per key, one
// member per event scored by nanosecond timestamp. Every replica sees the
// same counts, so per-caller limits hold across the deployment.
type RedisWindow struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisWindow wraps an existing client. prefix namespaces the keys
// (default "aegis:rl:").
func NewRedisWindow(client redis.UniversalClient, prefix string) *RedisWindow {
	if prefix == "" {
		prefix = "aegis:rl:"
	}
	return &RedisWindow{client: client, prefix: prefix}
}

// Incr implements WindowCounter.
func (w *RedisWindow) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now()
	redisKey := w.prefix + key
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	pipe := w.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", cutoff)
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	card := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis window incr: %w", err)
	}
	return card.Val(), nil
}
