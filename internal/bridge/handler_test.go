package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

type stubQuoteCache struct {
	fresh map[string][]byte
	stale map[string][]byte
}

func newStubQuoteCache() *stubQuoteCache {
	return &stubQuoteCache{fresh: map[string][]byte{}, stale: map[string][]byte{}}
}

func (c *stubQuoteCache) LookupFresh(ctx context.Context, key string) ([]byte, bool) {
	v, ok := c.fresh[key]
	return v, ok
}
func (c *stubQuoteCache) LookupStale(ctx context.Context, key string) ([]byte, bool) {
	v, ok := c.stale[key+"_stale"]
	return v, ok
}
func (c *stubQuoteCache) WriteBoth(ctx context.Context, key string, body []byte) {
	c.fresh[key] = body
	c.stale[key+"_stale"] = body
}

type stubLimiter struct {
	limit int
	count int64
}

func (l *stubLimiter) CheckAndIncrement(ctx context.Context, clientKey string) (int64, error) {
	l.count++
	return l.count, nil
}
func (l *stubLimiter) Limit() int { return l.limit }

type stubSecurity struct {
	byBridge map[string]SecurityMetadata
}

func (s *stubSecurity) GetBatchSecurityMetadata(ctx context.Context, bridges []string) ([]SecurityMetadata, error) {
	out := make([]SecurityMetadata, 0, len(bridges))
	for _, b := range bridges {
		if m, ok := s.byBridge[b]; ok {
			out = append(out, m)
		} else {
			out = append(out, SecurityMetadata{Bridge: b})
		}
	}
	return out, nil
}

func rawReq() RawQuoteRequest {
	return RawQuoteRequest{FromChain: "ethereum", ToChain: "arbitrum", Token: "USDC", Amount: "100", ClientID: "1.2.3.4"}
}

func TestHandler_HappyPath_TwoAdaptersScored(t *testing.T) {
	agg := NewAggregator([]Adapter{okAdapter("across", 0.1, 100), okAdapter("hop", 0.2, 300)}, AdapterConfig{}, time.Second)
	h := NewHandler(agg, newStubQuoteCache(), &stubLimiter{limit: 100}, &stubSecurity{})

	out, err := h.HandleQuotes(context.Background(), rawReq())
	if err != nil {
		t.Fatalf("HandleQuotes() error = %v", err)
	}
	if out.CacheState != "MISS" {
		t.Errorf("CacheState = %q, want MISS", out.CacheState)
	}
	if len(out.Body.Routes) != 2 {
		t.Fatalf("len(Routes) = %d, want 2", len(out.Body.Routes))
	}
	if len(out.Body.Errors) != 0 {
		t.Errorf("Errors = %+v, want empty when routes are present", out.Body.Errors)
	}
	if out.Body.Metadata.TotalRoutes != 2 || out.Body.Metadata.AvailableRoutes != 2 {
		t.Errorf("Metadata = %+v, want total=2 available=2", out.Body.Metadata)
	}
	// Best fee (across, 0.1) and best (shortest) time should outrank hop.
	if out.Body.Routes[0].Bridge != "across" {
		t.Errorf("Routes[0].Bridge = %q, want across to rank first", out.Body.Routes[0].Bridge)
	}
}

func TestHandler_AllUpstreamsFail_NoStale_Returns502(t *testing.T) {
	agg := NewAggregator([]Adapter{
		erroringAdapter("across", NewNetworkError("boom")),
		erroringAdapter("hop", NewNetworkError("boom")),
	}, AdapterConfig{}, time.Second)
	h := NewHandler(agg, newStubQuoteCache(), &stubLimiter{limit: 100}, &stubSecurity{})

	_, err := h.HandleQuotes(context.Background(), rawReq())
	herr, ok := err.(*HandlerError)
	if !ok {
		t.Fatalf("err = %v, want *HandlerError", err)
	}
	if herr.Status != 502 {
		t.Errorf("Status = %d, want 502", herr.Status)
	}
}

func TestHandler_AllUpstreamsFail_StaleHit_Returns200Stale(t *testing.T) {
	cache := newStubQuoteCache()
	req := NormalizedQuoteRequest{Asset: "USDC", FromChain: "ethereum", ToChain: "arbitrum", Amount: "100000000", SlippageBps: 50}
	staleBody, _ := json.Marshal(AggregatedResult{Routes: []ScoredRoute{{Bridge: "across"}}})
	cache.stale[req.CacheKey()+"_stale"] = staleBody

	agg := NewAggregator([]Adapter{erroringAdapter("across", NewNetworkError("boom"))}, AdapterConfig{}, time.Second)
	h := NewHandler(agg, cache, &stubLimiter{limit: 100}, &stubSecurity{})

	out, err := h.HandleQuotes(context.Background(), rawReq())
	if err != nil {
		t.Fatalf("HandleQuotes() error = %v", err)
	}
	if out.CacheState != "STALE" {
		t.Errorf("CacheState = %q, want STALE", out.CacheState)
	}
	if string(out.RawBody) != string(staleBody) {
		t.Errorf("RawBody mismatch: got %s, want %s", out.RawBody, staleBody)
	}
}

func TestHandler_SameChain_Returns400(t *testing.T) {
	agg := NewAggregator(nil, AdapterConfig{}, time.Second)
	h := NewHandler(agg, newStubQuoteCache(), &stubLimiter{limit: 100}, &stubSecurity{})

	raw := rawReq()
	raw.ToChain = raw.FromChain
	_, err := h.HandleQuotes(context.Background(), raw)
	herr, ok := err.(*HandlerError)
	if !ok {
		t.Fatalf("err = %v, want *HandlerError", err)
	}
	if herr.Status != 400 {
		t.Errorf("Status = %d, want 400", herr.Status)
	}
}

func TestHandler_SameChainCaseInsensitive_Returns400_NoAdapterInvoked(t *testing.T) {
	invoked := false
	agg := NewAggregator([]Adapter{&funcAdapter{name: "across", fn: func(ctx context.Context, req NormalizedQuoteRequest, cfg AdapterConfig) (*NormalizedQuote, error) {
		invoked = true
		return &NormalizedQuote{Bridge: "across"}, nil
	}}}, AdapterConfig{}, time.Second)
	h := NewHandler(agg, newStubQuoteCache(), &stubLimiter{limit: 100}, &stubSecurity{})

	raw := rawReq()
	raw.FromChain = "Ethereum"
	raw.ToChain = "ETHEREUM"
	_, err := h.HandleQuotes(context.Background(), raw)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if invoked {
		t.Error("adapter must not be invoked when validation fails")
	}
}

func TestHandler_RateLimitExceeded_Returns429(t *testing.T) {
	agg := NewAggregator([]Adapter{okAdapter("across", 0.1, 100)}, AdapterConfig{}, time.Second)
	limiter := &stubLimiter{limit: 2}
	h := NewHandler(agg, newStubQuoteCache(), limiter, &stubSecurity{})

	for i := 0; i < 2; i++ {
		if _, err := h.HandleQuotes(context.Background(), rawReq()); err != nil {
			if _, ok := err.(*HandlerError); ok {
				t.Fatalf("request %d: unexpected HandlerError %v", i, err)
			}
		}
	}

	_, err := h.HandleQuotes(context.Background(), rawReq())
	herr, ok := err.(*HandlerError)
	if !ok {
		t.Fatalf("err = %v, want *HandlerError", err)
	}
	if herr.Status != 429 {
		t.Errorf("Status = %d, want 429", herr.Status)
	}
}

func TestHandler_UnsupportedRoute_OtherSucceeds_Returns200WithOnlySuccesses(t *testing.T) {
	agg := NewAggregator([]Adapter{
		okAdapter("across", 0.1, 100),
		erroringAdapter("hop", NewUnsupportedRouteError("ethereum", "solana")),
	}, AdapterConfig{}, time.Second)
	h := NewHandler(agg, newStubQuoteCache(), &stubLimiter{limit: 100}, &stubSecurity{})

	out, err := h.HandleQuotes(context.Background(), rawReq())
	if err != nil {
		t.Fatalf("HandleQuotes() error = %v", err)
	}
	if len(out.Body.Routes) != 1 {
		t.Fatalf("len(Routes) = %d, want 1", len(out.Body.Routes))
	}
	if len(out.Body.Errors) != 0 {
		t.Errorf("Errors = %+v, want empty since at least one route succeeded", out.Body.Errors)
	}
}
