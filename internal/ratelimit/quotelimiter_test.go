package ratelimit_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/nulpointcorp/bridgequote/internal/ratelimit"
	"github.com/redis/go-redis/v9"
)

func newQuoteTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, func() {
		client.Close()
		mr.Close()
	}
}

func TestQuoteLimiter_AllowsUnderLimit(t *testing.T) {
	rdb, cleanup := newQuoteTestRedis(t)
	defer cleanup()

	limiter := ratelimit.NewQuoteLimiter(rdb, 100)
	ctx := context.Background()

	for i := 1; i <= 100; i++ {
		count, err := limiter.CheckAndIncrement(ctx, "client-a")
		if err != nil {
			t.Fatalf("iteration %d: unexpected error: %v", i, err)
		}
		if count != int64(i) {
			t.Errorf("iteration %d: count = %d, want %d", i, count, i)
		}
		if int(count) > limiter.Limit() {
			t.Errorf("iteration %d: count %d exceeds limit %d", i, count, limiter.Limit())
		}
	}
}

func TestQuoteLimiter_BlocksAtHundredAndFirstRequest(t *testing.T) {
	rdb, cleanup := newQuoteTestRedis(t)
	defer cleanup()

	limiter := ratelimit.NewQuoteLimiter(rdb, 100)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if _, err := limiter.CheckAndIncrement(ctx, "client-b"); err != nil {
			t.Fatalf("iteration %d: unexpected error: %v", i, err)
		}
	}

	count, err := limiter.CheckAndIncrement(ctx, "client-b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 101 {
		t.Fatalf("count = %d, want 101", count)
	}
	if int(count) <= limiter.Limit() {
		t.Error("expected the 101st request to exceed the configured limit")
	}
}

func TestQuoteLimiter_SeparateClientsHaveSeparateCounters(t *testing.T) {
	rdb, cleanup := newQuoteTestRedis(t)
	defer cleanup()

	limiter := ratelimit.NewQuoteLimiter(rdb, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := limiter.CheckAndIncrement(ctx, "client-c"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	count, err := limiter.CheckAndIncrement(ctx, "client-d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Errorf("count for a fresh client = %d, want 1", count)
	}
}

func TestQuoteLimiter_DegradesGracefully_WhenRedisDown(t *testing.T) {
	rdb, cleanup := newQuoteTestRedis(t)
	cleanup()

	limiter := ratelimit.NewQuoteLimiter(rdb, 100)
	ctx := context.Background()

	count, err := limiter.CheckAndIncrement(ctx, "client-e")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 (fail-open sentinel) when Redis is unavailable", count)
	}
}

func TestQuoteLimiter_DefaultsPerMinuteWhenNonPositive(t *testing.T) {
	rdb, cleanup := newQuoteTestRedis(t)
	defer cleanup()

	limiter := ratelimit.NewQuoteLimiter(rdb, 0)
	if limiter.Limit() != ratelimit.DefaultQuotesPerMinute {
		t.Errorf("Limit() = %d, want default %d", limiter.Limit(), ratelimit.DefaultQuotesPerMinute)
	}
}
