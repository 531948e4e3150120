package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter keeps fixed-window counters in Redis so every instance
// of the service shares the same view. INCR is atomic server-side and
// the window expiry is attached with NX semantics, so concurrent
// requests for one key neither lose counts nor extend the window.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedisLimiter builds a Redis-backed limiter. Keys are namespaced
// under "ratelimit:".
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window, prefix: "ratelimit:"}
}

// Allow counts one request for key. Store errors are returned alongside
// an allowing result; the caller decides whether throttling failures
// should block traffic (they should not, throttling is best-effort).
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	if key == "" {
		key = AnonymousKey
	}
	k := l.prefix + key

	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return Result{Allowed: true}, err
	}
	// Attach the window TTL only when the key has none yet.
	if err := l.client.ExpireNX(ctx, k, l.window).Err(); err != nil {
		return Result{Allowed: true}, err
	}
	retryAfter := l.window
	if ttl, err := l.client.PTTL(ctx, k).Result(); err == nil && ttl > 0 {
		retryAfter = ttl
	}
	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:    count <= int64(l.limit),
		Remaining:  remaining,
		RetryAfter: retryAfter,
	}, nil
}

var _ Limiter = (*RedisLimiter)(nil)
