package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript is an atomic Lua script that implements a sliding window
// rate limiter using a sorted set.
// KEYS[1] = Redis key
// ARGV[1] = current unix timestamp (nanoseconds as string)
// ARGV[2] = window size in nanoseconds
// ARGV[3] = limit (max requests per window)
// Returns: 1 if allowed, 0 if rate limited.
var slidingWindowScript = redis.NewScript(`
		local key    = KEYS[1]
		local now    = tonumber(ARGV[1])
		local window = tonumber(ARGV[2])
		local limit  = tonumber(ARGV[3])

		-- Remove expired entries.
		redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

		local count = redis.call('ZCARD', key)
		if count >= limit then
			return 0
		end

		-- Add current request with a unique member (now + random suffix).
		local member = tostring(now) .. tostring(math.random(1, 1000000))
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, math.ceil(window / 1000000))  -- window is in ns; PEXPIRE wants ms
		return 1
`)

const globalRateLimitKey = "ratelimit:quotes:global"

// GlobalLimiter caps the aggregate GET /quotes rate across every client,
// independent of QuoteLimiter's per-client cap. It exists to shield the
// six bridge-adapter upstreams from being hammered by aggregate load —
// a fleet of clients each safely under their own per-minute cap can
// still sum to more outbound adapter calls than is polite. A sliding
// window (sorted set) is used here instead of QuoteLimiter's simpler
// INCR+EXPIRE counter because a global cap needs to reject smoothly
// across a window rather than reset in one burst every 60 seconds.
type GlobalLimiter struct {
	rdb   *redis.Client
	limit int
}

// NewGlobalLimiter creates a GlobalLimiter capped at limit requests per
// minute across all clients combined. limit must be > 0; values ≤ 0
// block every request.
func NewGlobalLimiter(rdb *redis.Client, limit int) *GlobalLimiter {
	return &GlobalLimiter{rdb: rdb, limit: limit}
}

// Allow reports whether the current request is within the global limit.
func (r *GlobalLimiter) Allow(ctx context.Context) (bool, error) {
	now := time.Now().UnixNano()
	window := time.Minute.Nanoseconds()

	result, err := slidingWindowScript.Run(ctx, r.rdb,
		[]string{globalRateLimitKey},
		now, window, r.limit,
	).Int()
	if err != nil {
		// Redis unavailable — allow request (graceful degradation).
		return true, nil
	}

	return result == 1, nil
}
