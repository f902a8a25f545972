package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementWithExpiryScript implements the "first request sets the
// window" counter: INCR always runs, and EXPIRE is only set the first
// time the key is created. This is deliberately simpler than a sliding
// window — the window is approximate, not strict, which trades a small
// amount of burst tolerance at window boundaries for one round trip and
// no sorted-set bookkeeping.
// KEYS[1] = Redis key
// ARGV[1] = window TTL in seconds
// Returns: the counter value after incrementing.
var incrementWithExpiryScript = redis.NewScript(`
		local count = redis.call('INCR', KEYS[1])
		if count == 1 then
			redis.call('EXPIRE', KEYS[1], tonumber(ARGV[1]))
		end
		return count
`)

const (
	quoteRateLimitPrefix = "rate_limit:quotes:"
	quoteRateLimitWindow = 60 * time.Second
)

// DefaultQuotesPerMinute is the cap applied per client key.
const DefaultQuotesPerMinute = 100

// QuoteLimiter enforces a per-client requests-per-minute cap on the
// GET /quotes endpoint using an atomic INCR+conditional-EXPIRE Redis
// script. It fails open: if the store is unreachable, CheckAndIncrement
// returns a count of 0 rather than blocking traffic, since availability
// is favored over strict enforcement here.
type QuoteLimiter struct {
	rdb        *redis.Client
	perMinute  int
}

// NewQuoteLimiter builds a QuoteLimiter capped at perMinute requests
// per client per 60-second window. perMinute defaults to
// DefaultQuotesPerMinute when <= 0.
func NewQuoteLimiter(rdb *redis.Client, perMinute int) *QuoteLimiter {
	if perMinute <= 0 {
		perMinute = DefaultQuotesPerMinute
	}
	return &QuoteLimiter{rdb: rdb, perMinute: perMinute}
}

// CheckAndIncrement atomically increments clientKey's counter and
// returns its new value. The caller is responsible for comparing the
// result against the configured limit — this keeps the 429 decision
// (and its message) in the handler, where the rest of the response
// shaping lives.
func (l *QuoteLimiter) CheckAndIncrement(ctx context.Context, clientKey string) (int64, error) {
	key := quoteRateLimitPrefix + clientKey
	count, err := incrementWithExpiryScript.Run(ctx, l.rdb,
		[]string{key},
		int(quoteRateLimitWindow.Seconds()),
	).Int64()
	if err != nil {
		// Store unreachable — fail open.
		return 0, nil
	}
	return count, nil
}

// Limit returns the configured per-minute cap.
func (l *QuoteLimiter) Limit() int {
	return l.perMinute
}
