// Package ratelimit implements fixed-window request throttling keyed
// by identity. Counters live either in process memory (single
// instance) or in Redis (any number of instances).
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// AnonymousKey is the shared sentinel for callers without an identity.
// Throttling for anonymous traffic is therefore global, not per client;
// per-client throttling for them happens at the HTTP layer by IP.
const AnonymousKey = "anonymous"

// Result describes one Allow decision.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter throttles requests per key over fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

type bucket struct {
	count     int
	windowEnd time.Time
}

// MemoryLimiter counts requests in an in-process map. Counters reset on
// process restart, which is acceptable for best-effort throttling but
// not for strict quota enforcement.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]bucket
	limit   int
	window  time.Duration
	now     func() time.Time
}

// NewMemoryLimiter builds a limiter allowing limit requests per window
// for each key.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]bucket),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow counts one request for key. Calls past the limit still
// increment, so the denial holds for the remainder of the window. The
// read-modify-write runs under the mutex; concurrent requests for the
// same key cannot lose counts.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	if key == "" {
		key = AnonymousKey
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.windowEnd) {
		l.buckets[key] = bucket{count: 1, windowEnd: now.Add(l.window)}
		return Result{Allowed: true, Remaining: l.limit - 1, RetryAfter: l.window}, nil
	}
	b.count++
	l.buckets[key] = b
	res := Result{
		Allowed:    b.count <= l.limit,
		Remaining:  l.limit - b.count,
		RetryAfter: b.windowEnd.Sub(now),
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	return res, nil
}

// Sweep drops buckets whose window has already ended. Called
// opportunistically; correctness never depends on it.
func (l *MemoryLimiter) Sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if !now.Before(b.windowEnd) {
			delete(l.buckets, key)
		}
	}
}

var _ Limiter = (*MemoryLimiter)(nil)
