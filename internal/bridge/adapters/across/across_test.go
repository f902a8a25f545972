package across

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nulpointcorp/bridgequote/internal/bridge"
)

type countingFailTransport struct {
	attempts int32
}

func (t *countingFailTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&t.attempts, 1)
	return nil, &http.ProtocolError{ErrorString: "simulated network failure"}
}

func testReq() bridge.NormalizedQuoteRequest {
	return bridge.NormalizedQuoteRequest{Asset: "USDC", FromChain: "ethereum", ToChain: "arbitrum", Amount: "1000000", SlippageBps: 50}
}

func TestAcrossAdapter_UnsupportedChain_ReturnsImmediately(t *testing.T) {
	a := New()
	req := testReq()
	req.FromChain = "solana"

	_, err := a.GetQuote(context.Background(), req, bridge.AdapterConfig{})
	if err == nil {
		t.Fatal("expected an error for an unsupported chain")
	}
	be := bridge.AsBridgeError(err)
	if be.Kind != bridge.ErrUnsupportedRoute {
		t.Errorf("Kind = %v, want %v", be.Kind, bridge.ErrUnsupportedRoute)
	}
}

func TestAcrossAdapter_UnsupportedAsset_ReturnsImmediately(t *testing.T) {
	a := New()
	req := testReq()
	req.Asset = "SHIB"

	_, err := a.GetQuote(context.Background(), req, bridge.AdapterConfig{})
	if err == nil {
		t.Fatal("expected an error for an unsupported asset")
	}
	be := bridge.AsBridgeError(err)
	if be.Kind != bridge.ErrUnsupportedAsset {
		t.Errorf("Kind = %v, want %v", be.Kind, bridge.ErrUnsupportedAsset)
	}
}

func TestAcrossAdapter_NetworkFailure_RetriesThenFallsBackToEstimate(t *testing.T) {
	transport := &countingFailTransport{}
	cfg := bridge.AdapterConfig{
		HTTPClient: &http.Client{Transport: transport},
		Timeout:    time.Second,
		Retries:    2,
	}

	a := New()
	quote, err := a.GetQuote(context.Background(), testReq(), cfg)
	if err != nil {
		t.Fatalf("GetQuote() error = %v, want a deterministic fallback estimate instead", err)
	}
	if quote == nil {
		t.Fatal("quote is nil")
	}
	if got := atomic.LoadInt32(&transport.attempts); got != 3 {
		t.Errorf("attempts = %d, want retries+1 = 3", got)
	}
	if !quote.IsEstimated() {
		t.Error("expected quote.Metadata to carry estimated=true after every live attempt failed")
	}
}

func TestAcrossAdapter_ZeroRetries_CallsOnce(t *testing.T) {
	transport := &countingFailTransport{}
	cfg := bridge.AdapterConfig{
		HTTPClient: &http.Client{Transport: transport},
		Timeout:    time.Second,
		Retries:    0,
	}

	a := New()
	if _, err := a.GetQuote(context.Background(), testReq(), cfg); err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if got := atomic.LoadInt32(&transport.attempts); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

type jsonTransport struct {
	status int
	body   string
}

func (t *jsonTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: t.status,
		Body:       io.NopCloser(strings.NewReader(t.body)),
		Header:     make(http.Header),
	}, nil
}

func TestAcrossAdapter_LiveQuote_ComputesFeeFromOutputAmount(t *testing.T) {
	// req.Amount is "1000000" smallest units of USDC (6 decimals) = 1.0
	// readable; outputAmount "995000" = 0.995 readable, so fee = 0.005.
	transport := &jsonTransport{status: 200, body: `{"totalRelayFee":{"pct":"0","total":"0"},"estimatedFillTimeSec":120,"outputAmount":"995000"}`}
	cfg := bridge.AdapterConfig{
		HTTPClient: &http.Client{Transport: transport},
		Timeout:    time.Second,
	}

	a := New()
	quote, err := a.GetQuote(context.Background(), testReq(), cfg)
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	const want = 0.005
	if diff := quote.FeeInToken - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("FeeInToken = %v, want %v", quote.FeeInToken, want)
	}
	if quote.EstTimeSeconds != 120 {
		t.Errorf("EstTimeSeconds = %d, want 120", quote.EstTimeSeconds)
	}
	if quote.IsEstimated() {
		t.Error("expected a live quote, not an estimate")
	}
}

type fakeAdapterCache struct {
	store map[string][]byte
}

func (c *fakeAdapterCache) Get(ctx context.Context, key string) ([]byte, bool) {
	v, ok := c.store[key]
	return v, ok
}
func (c *fakeAdapterCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.store[key] = value
	return nil
}

func TestAcrossAdapter_UsesCachedQuote_SkipsHTTP(t *testing.T) {
	transport := &countingFailTransport{}
	req := testReq()
	quote := bridge.NormalizedQuote{Bridge: "across", FeeInToken: 0.5, EstTimeSeconds: 90}
	body, _ := json.Marshal(quote)

	adapterCache := &fakeAdapterCache{store: map[string][]byte{
		"across:" + req.Asset + ":" + req.FromChain + ":" + req.ToChain + ":" + req.Amount: body,
	}}
	cfg := bridge.AdapterConfig{
		HTTPClient: &http.Client{Transport: transport},
		Timeout:    time.Second,
		Cache:      adapterCache,
	}

	a := New()
	got, err := a.GetQuote(context.Background(), req, cfg)
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if got.FeeInToken != 0.5 {
		t.Errorf("FeeInToken = %v, want 0.5 (from cache)", got.FeeInToken)
	}
	if atomic.LoadInt32(&transport.attempts) != 0 {
		t.Error("expected no HTTP calls when the adapter cache has a hit")
	}
}
