package proxy

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

// serveRoutes mounts the same routes StartWithRoutes registers onto an
// in-memory listener and returns an HTTP client + cleanup. Exercising the
// router this way avoids binding a real TCP port in tests.
func serveRoutes(t *testing.T, s *Server) (*http.Client, func()) {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()

	r := router.New()
	r.GET("/quotes", s.handleQuotes)
	r.GET("/health", s.handleHealth)
	r.GET("/readiness", s.handleReadiness)
	r.GET("/security/bridges", s.handleSecurityBridges)
	r.GET("/security/bridges/{name}", s.handleSecurityBridges)

	handler := applyMiddleware(r.Handler, recovery, requestID, traceID, timing, corsHandler(s.corsOrigins), securityHeaders)

	go func() {
		_ = fasthttp.Serve(ln, handler)
	}()

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return ln.Dial()
			},
		},
	}

	return client, func() { ln.Close() }
}

func TestRouter_QuotesRoute_Integration(t *testing.T) {
	s := newTestServer(t, nil)
	client, cleanup := serveRoutes(t, s)
	defer cleanup()

	resp, err := client.Get("http://test/quotes?from=ethereum&to=arbitrum&token=USDC&amount=100")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID to be set by middleware chain")
	}
	if resp.Header.Get("X-Trace-ID") == "" {
		t.Error("expected X-Trace-ID to be set by middleware chain")
	}
	if resp.Header.Get("X-Cache") == "" {
		t.Error("expected X-Cache to be set")
	}
}

func TestRouter_HealthRoute_Integration(t *testing.T) {
	s := newTestServer(t, nil)
	client, cleanup := serveRoutes(t, s)
	defer cleanup()

	resp, err := client.Get("http://test/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRouter_SecurityBridgesByName_Integration(t *testing.T) {
	s := newTestServer(t, &stubSecurityLister{})
	client, cleanup := serveRoutes(t, s)
	defer cleanup()

	resp, err := client.Get("http://test/security/bridges/across")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

// --- writeJSON --------------------------------------------------------------

func TestWriteJSON(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	writeJSON(ctx, map[string]string{"key": "value"})

	if string(ctx.Response.Header.ContentType()) != "application/json" {
		t.Errorf("expected application/json, got %s", string(ctx.Response.Header.ContentType()))
	}

	var resp map[string]string
	if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if resp["key"] != "value" {
		t.Errorf("expected key=value, got %v", resp["key"])
	}
}
