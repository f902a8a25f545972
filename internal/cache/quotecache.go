package cache

import (
	"context"
	"time"
)

// Default TTLs for the two-tier quote cache.
const (
	QuoteFreshTTL = 15 * time.Second
	QuoteStaleTTL = 300 * time.Second
)

// CacheState reports which tier, if any, answered a lookup — it maps
// directly onto the X-Cache response header.
type CacheState string

const (
	CacheHit  CacheState = "HIT"
	CacheMiss CacheState = "MISS"
	CacheStale CacheState = "STALE"
)

// QuoteCache layers a fresh, short-TTL tier and a stale, long-TTL tier
// on top of a single Cache implementation. The fresh tier is the
// primary answer; the stale tier exists purely so the handler can
// degrade gracefully when every upstream fails.
type QuoteCache struct {
	backend   Cache
	freshTTL  time.Duration
	staleTTL  time.Duration
}

// NewQuoteCache wraps backend with the default fresh/stale TTLs.
func NewQuoteCache(backend Cache) *QuoteCache {
	return &QuoteCache{backend: backend, freshTTL: QuoteFreshTTL, staleTTL: QuoteStaleTTL}
}

// WithTTLs overrides the default TTLs, returning the same cache for
// chaining.
func (c *QuoteCache) WithTTLs(fresh, stale time.Duration) *QuoteCache {
	c.freshTTL = fresh
	c.staleTTL = stale
	return c
}

// LookupFresh returns the cached body for key's fresh tier, if present.
func (c *QuoteCache) LookupFresh(ctx context.Context, key string) ([]byte, bool) {
	return c.backend.Get(ctx, key)
}

// LookupStale returns the cached body for key's stale tier, if present.
func (c *QuoteCache) LookupStale(ctx context.Context, key string) ([]byte, bool) {
	return c.backend.Get(ctx, staleKey(key))
}

// WriteBoth writes body to both the fresh and stale tiers of key, each
// under its own TTL. Write failures are swallowed by the underlying
// Cache implementation (graceful degradation), matching the contract
// that cache write failures are logged, not surfaced.
func (c *QuoteCache) WriteBoth(ctx context.Context, key string, body []byte) {
	_ = c.backend.Set(ctx, key, body, c.freshTTL)
	_ = c.backend.Set(ctx, staleKey(key), body, c.staleTTL)
}

func staleKey(key string) string {
	return key + "_stale"
}
