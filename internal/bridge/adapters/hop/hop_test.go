package hop

import (
	"context"
	"net/http"
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

func TestHopAdapter_UnsupportedChain_ReturnsImmediately(t *testing.T) {
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

func TestHopAdapter_UnsupportedAsset_ReturnsImmediately(t *testing.T) {
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

func TestHopAdapter_NetworkFailure_FallsBackToEstimate(t *testing.T) {
	transport := &countingFailTransport{}
	cfg := bridge.AdapterConfig{
		HTTPClient: &http.Client{Transport: transport},
		Timeout:    time.Second,
		Retries:    1,
	}

	a := New()
	quote, err := a.GetQuote(context.Background(), testReq(), cfg)
	if err != nil {
		t.Fatalf("GetQuote() error = %v, want a deterministic fallback estimate instead", err)
	}
	if quote == nil || !quote.IsEstimated() {
		t.Error("expected a fallback estimate with estimated=true")
	}
}

func TestRouteTable_NeedsRefreshInitiallyTrue(t *testing.T) {
	a := New()
	if !a.routes.needsRefresh() {
		t.Error("a freshly constructed route table should need a refresh")
	}
}

func TestRouteTable_NoRefreshNeededRightAfterRefresh(t *testing.T) {
	a := New()
	a.routes.refresh([]string{"ethereum->arbitrum"})
	if a.routes.needsRefresh() {
		t.Error("a table refreshed moments ago should not need another refresh yet")
	}
}
