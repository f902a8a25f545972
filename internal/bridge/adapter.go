package bridge

import (
	"context"
	"net/http"
	"time"
)

// Adapter is the contract every bridge integration implements. GetQuote
// must not continue any I/O past ctx's deadline — the aggregator relies
// on that to bound per-adapter latency.
type Adapter interface {
	Name() string
	GetQuote(ctx context.Context, req NormalizedQuoteRequest, cfg AdapterConfig) (*NormalizedQuote, error)
}

// AdapterConfig carries the shared, process-wide collaborators an
// adapter needs plus per-call tuning. The HTTP client and cache are
// shared by reference across every adapter and every request.
type AdapterConfig struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Retries    int
	Cache      QuoteCacheReader
}

// QuoteCacheReader is the adapter-local quote cache — distinct from the
// handler-level two-tier fresh/stale cache, this caches one adapter's
// normalized quote under its own provider-scoped key.
type QuoteCacheReader interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// DefaultAdapterTimeout is used when AdapterConfig.Timeout is zero.
const DefaultAdapterTimeout = 5 * time.Second

// DynamicCacheTTL implements the adapter cache-write TTL rule: routes
// estimated under a minute are cached longest, since they're likely to
// be re-requested while still accurate.
func DynamicCacheTTL(estTimeSeconds uint64) time.Duration {
	switch {
	case estTimeSeconds < 60:
		return 600 * time.Second
	case estTimeSeconds < 300:
		return 300 * time.Second
	default:
		return 120 * time.Second
	}
}
