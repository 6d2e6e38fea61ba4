package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window counter keyed per identity in Redis.
// INCR is atomic server-side, so concurrent callers across processes
// share one accurate count.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisLimiter allows at most limit attempts per identity in each
// window.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window}
}

// Check implements Limiter.
func (l *RedisLimiter) Check(ctx context.Context, identity string) (Decision, error) {
	key := "ratelimit:" + identity

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.window)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("updating rate limit counter: %w", err)
	}

	count := int(incr.Val())
	if count > l.limit {
		retryAfter := ttl.Val()
		if retryAfter < 0 {
			retryAfter = l.window
		}
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}
	return Decision{Allowed: true, Remaining: l.limit - count}, nil
}
