package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// MemoryLimiter is an in-process token bucket, for development and tests.
// It shares bucket shapes with RedisLimiter but holds state locally, so it
// only bounds a single instance.
type MemoryLimiter struct {
	policies Policies
	now      func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewMemoryLimiter builds an in-process limiter.
func NewMemoryLimiter(policies Policies) *MemoryLimiter {
	return &MemoryLimiter{
		policies: policies,
		now:      time.Now,
		buckets:  make(map[string]*bucket),
	}
}

// Check consumes one token for (endpoint, subject).
func (l *MemoryLimiter) Check(_ context.Context, endpoint, subject string) (Decision, error) {
	pol := l.policies.forEndpoint(endpoint)
	key := endpoint + ":" + subject
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: pol.Capacity, lastRefill: now}
		l.buckets[key] = b
	}

	if pol.RefillInterval > 0 && pol.RefillTokens > 0 {
		elapsed := now.Sub(b.lastRefill)
		if intervals := int(elapsed / pol.RefillInterval); intervals > 0 {
			b.tokens = min(pol.Capacity, b.tokens+intervals*pol.RefillTokens)
			b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * pol.RefillInterval)
		}
	}

	if b.tokens > 0 {
		b.tokens--
		return Decision{Allowed: true, Remaining: int64(b.tokens)}, nil
	}

	retry := pol.RefillInterval - now.Sub(b.lastRefill)
	if retry < 0 {
		retry = 0
	}
	return Decision{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
}
