package ratelimit

import (
	"context"
	"sync"
	"time"
)

// BucketLimiter is an in-memory token bucket per identity. It only
// coordinates within one process, so it belongs in single-process and
// test configurations; shared deployments use a store-backed limiter.
type BucketLimiter struct {
	capacity int
	window   time.Duration
	mu       sync.Mutex
	buckets  map[string]*bucket
	now      func() time.Time
}

type bucket struct {
	tokens   int
	lastFill time.Time
}

// NewBucketLimiter allows bursts up to capacity, refilled evenly over
// the window.
func NewBucketLimiter(capacity int, window time.Duration) *BucketLimiter {
	return &BucketLimiter{
		capacity: capacity,
		window:   window,
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
}

// Check implements Limiter.
func (l *BucketLimiter) Check(ctx context.Context, identity string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[identity]
	if !ok {
		b = &bucket{tokens: l.capacity, lastFill: now}
		l.buckets[identity] = b
	}

	// Refill based on elapsed time.
	interval := l.window / time.Duration(l.capacity)
	if refill := int(now.Sub(b.lastFill) / interval); refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.lastFill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return Decision{Allowed: true, Remaining: b.tokens}, nil
	}
	return Decision{
		Allowed:    false,
		RetryAfter: interval - now.Sub(b.lastFill),
	}, nil
}
