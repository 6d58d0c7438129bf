package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript implements a refilling bucket atomically inside Redis,
// so concurrent instances agree on the count.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_tokens = tonumber(ARGV[3])
	local interval_ms = tonumber(ARGV[4])
	local ttl_seconds = tonumber(ARGV[5])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 and refill_tokens > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + (intervals * refill_tokens))
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		local until_next = interval_ms - (now_ms - last_refill)
		if until_next < 0 then until_next = 0 end
		retry_after_ms = until_next
	end

	redis.call('HMSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

// RedisLimiter is a distributed token bucket on go-redis.
type RedisLimiter struct {
	rdb      *redis.Client
	policies Policies
	prefix   string
}

// NewRedisLimiter builds a limiter over an existing client.
func NewRedisLimiter(rdb *redis.Client, policies Policies) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, policies: policies, prefix: "bazaar:rl"}
}

// Check consumes one token for (endpoint, subject).
func (l *RedisLimiter) Check(ctx context.Context, endpoint, subject string) (Decision, error) {
	pol := l.policies.forEndpoint(endpoint)
	key := l.prefix + ":" + endpoint + ":" + subject

	args := []any{
		time.Now().UnixMilli(),
		pol.Capacity,
		pol.RefillTokens,
		pol.RefillInterval.Milliseconds(),
		int64(pol.TTL / time.Second),
	}

	vals, err := tokenBucketScript.Run(ctx, l.rdb, []string{key}, args...).Result()
	if err != nil {
		return Decision{Allowed: true, Remaining: -1}, err
	}

	arr, ok := vals.([]any)
	if !ok || len(arr) != 3 {
		return Decision{Allowed: true, Remaining: -1}, fmt.Errorf("unexpected script result %#v", vals)
	}

	return Decision{
		Allowed:    asInt64(arr[0]) == 1,
		Remaining:  asInt64(arr[1]),
		RetryAfter: time.Duration(asInt64(arr[2])) * time.Millisecond,
	}, nil
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		var n int64
		_, _ = fmt.Sscan(t, &n)
		return n
	}
	return 0
}
