package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestQuoteCache(t *testing.T) (*QuoteCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	backend, err := NewExactCacheFromURL(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewExactCacheFromURL: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	return NewQuoteCache(backend), mr
}

func TestQuoteCache_FreshMissThenHitAfterWrite(t *testing.T) {
	qc, _ := newTestQuoteCache(t)
	ctx := context.Background()

	if _, ok := qc.LookupFresh(ctx, "quotes:ethereum:arbitrum:USDC:1000000"); ok {
		t.Fatal("expected fresh miss before any write")
	}

	body := []byte(`{"routes":[]}`)
	qc.WriteBoth(ctx, "quotes:ethereum:arbitrum:USDC:1000000", body)

	got, ok := qc.LookupFresh(ctx, "quotes:ethereum:arbitrum:USDC:1000000")
	if !ok {
		t.Fatal("expected fresh hit after WriteBoth")
	}
	if string(got) != string(body) {
		t.Errorf("LookupFresh = %q, want %q", got, body)
	}
}

func TestQuoteCache_StaleSurvivesAfterFreshExpires(t *testing.T) {
	qc, mr := newTestQuoteCache(t)
	qc.WithTTLs(5*time.Second, time.Hour)
	ctx := context.Background()

	key := "quotes:ethereum:arbitrum:USDC:1000000"
	body := []byte(`{"routes":[{"bridge":"across"}]}`)
	qc.WriteBoth(ctx, key, body)

	mr.FastForward(6 * time.Second)

	if _, ok := qc.LookupFresh(ctx, key); ok {
		t.Error("expected fresh tier to have expired")
	}
	got, ok := qc.LookupStale(ctx, key)
	if !ok {
		t.Fatal("expected stale tier to still hold the value")
	}
	if string(got) != string(body) {
		t.Errorf("LookupStale = %q, want %q", got, body)
	}
}

func TestQuoteCache_StaleMissWhenNeverWritten(t *testing.T) {
	qc, _ := newTestQuoteCache(t)
	ctx := context.Background()

	if _, ok := qc.LookupStale(ctx, "quotes:ethereum:arbitrum:USDC:1000000"); ok {
		t.Fatal("expected stale miss when nothing was ever written")
	}
}

func TestQuoteCache_DegradesGracefully_WhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	backend, err := NewExactCacheFromURL(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewExactCacheFromURL: %v", err)
	}
	defer func() { _ = backend.Close() }()
	qc := NewQuoteCache(backend)

	mr.Close()

	ctx := context.Background()
	qc.WriteBoth(ctx, "quotes:ethereum:arbitrum:USDC:1000000", []byte(`{}`))

	if _, ok := qc.LookupFresh(ctx, "quotes:ethereum:arbitrum:USDC:1000000"); ok {
		t.Error("expected miss when Redis is unavailable")
	}
}
