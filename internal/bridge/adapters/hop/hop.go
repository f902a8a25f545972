// Package hop implements the bridge.Adapter contract against Hop
// Protocol's quote API — an AMM-based bridge with bonder-provided
// liquidity. Hop quotes by chain name and token, not chain ID, and
// reports its own route table, which this adapter caches behind a
// single-writer refresh lock rather than re-fetching on every request.
package hop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nulpointcorp/bridgequote/internal/bridge"
)

const baseURL = "https://api.hop.exchange"

const routeTableRefreshInterval = time.Hour

var supportedChains = map[string]bool{
	"ethereum": true, "optimism": true, "arbitrum": true, "polygon": true,
	"base": true, "gnosis": true, "linea": true, "scroll": true,
}

var supportedTokens = map[string]bool{
	"USDC": true, "USDT": true, "ETH": true, "DAI": true, "WBTC": true, "MATIC": true,
}

var l2Set = map[string]bool{
	"optimism": true, "arbitrum": true, "base": true, "linea": true, "scroll": true,
}

func mapChain(chain string) (string, error) {
	c := strings.ToLower(chain)
	if !supportedChains[c] {
		return "", bridge.NewUnsupportedRouteError(chain, "")
	}
	return c, nil
}

func mapAsset(asset string) (string, error) {
	a := strings.ToUpper(asset)
	if !supportedTokens[a] {
		return "", bridge.NewUnsupportedAssetError(asset)
	}
	return a, nil
}

func estimateTime(from, to string) uint64 {
	fromL2, toL2 := l2Set[strings.ToLower(from)], l2Set[strings.ToLower(to)]
	switch {
	case fromL2 && toL2:
		return 300
	case fromL2 != toL2:
		return 900
	default:
		return 1200
	}
}

// routeTable tracks Hop's published route list behind a read-mostly
// lock: readers take the shared lock, and at most one writer refreshes
// the table at a time, gated to once per routeTableRefreshInterval.
type routeTable struct {
	mu          sync.RWMutex
	routes      []string
	lastUpdated time.Time
}

func (t *routeTable) needsRefresh() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return time.Since(t.lastUpdated) > routeTableRefreshInterval
}

func (t *routeTable) refresh(routes []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes = routes
	t.lastUpdated = time.Now()
}

// Adapter implements bridge.Adapter for Hop Protocol.
type Adapter struct {
	routes routeTable
}

// New returns a Hop adapter with an empty, lazily-refreshed route
// table.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() string { return "hop" }

type hopQuoteRequest struct {
	FromChain string  `json:"fromChain"`
	ToChain   string  `json:"toChain"`
	Token     string  `json:"token"`
	Amount    string  `json:"amount"`
	Slippage  float64 `json:"slippage"`
}

type hopQuoteResponse struct {
	AmountIn           string `json:"amountIn"`
	BonderFee          string `json:"bonderFee"`
	EstimatedReceived  string `json:"estimatedRecieved"`
	Deadline           uint64 `json:"deadline"`
}

func (a *Adapter) GetQuote(ctx context.Context, req bridge.NormalizedQuoteRequest, cfg bridge.AdapterConfig) (*bridge.NormalizedQuote, error) {
	fromChain, err := mapChain(req.FromChain)
	if err != nil {
		return nil, err
	}
	toChain, err := mapChain(req.ToChain)
	if err != nil {
		return nil, err
	}
	token, err := mapAsset(req.Asset)
	if err != nil {
		return nil, err
	}

	// Best-effort route-table warmup; a failure here never blocks the
	// quote, it only means we skip the "is this route published" hint.
	if a.routes.needsRefresh() {
		go a.tryRefreshRoutes(context.Background(), cfg)
	}

	cacheKey := fmt.Sprintf("hop:%s:%s:%s:%s", req.Asset, req.FromChain, req.ToChain, req.Amount)
	if cfg.Cache != nil {
		if cached, ok := cfg.Cache.Get(ctx, cacheKey); ok {
			var q bridge.NormalizedQuote
			if err := json.Unmarshal(cached, &q); err == nil {
				return &q, nil
			}
		}
	}

	quote, err := bridge.RetryRequest(ctx, cfg.Retries, func(ctx context.Context) (*bridge.NormalizedQuote, error) {
		return a.fetchOnce(ctx, req, cfg, fromChain, toChain, token)
	})
	if err != nil {
		be := bridge.AsBridgeError(err)
		if be.Kind == bridge.ErrUnsupportedAsset || be.Kind == bridge.ErrUnsupportedRoute {
			return nil, err
		}
		quote = a.estimate(req)
	}

	if cfg.Cache != nil {
		if body, err := json.Marshal(quote); err == nil {
			cfg.Cache.Set(ctx, cacheKey, body, bridge.DynamicCacheTTL(quote.EstTimeSeconds))
		}
	}
	return quote, nil
}

func (a *Adapter) fetchOnce(ctx context.Context, req bridge.NormalizedQuoteRequest, cfg bridge.AdapterConfig, fromChain, toChain, token string) (*bridge.NormalizedQuote, error) {
	body, _ := json.Marshal(hopQuoteRequest{
		FromChain: fromChain,
		ToChain:   toChain,
		Token:     token,
		Amount:    req.Amount,
		Slippage:  float64(req.SlippageBps) / 100,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/quote", bytes.NewReader(body))
	if err != nil {
		return nil, bridge.NewNetworkError(err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := cfg.HTTPClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, bridge.NewTimeoutError(cfg.Timeout.Milliseconds())
		}
		return nil, bridge.NewNetworkError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		return nil, bridge.NewRateLimitedError()
	}
	if resp.StatusCode/100 != 2 {
		return nil, bridge.NewBadResponseError(fmt.Sprintf("status %d", resp.StatusCode))
	}

	var parsed hopQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, bridge.NewJSONParseError(err.Error())
	}

	fee := readableAmount(parsed.BonderFee, req.Asset)
	estTime := estimateTime(req.FromChain, req.ToChain)

	meta, _ := json.Marshal(map[string]any{
		"network":        "hop-v1",
		"architecture":   "amm-bonder-liquidity",
		"security_model": "optimistic-bonder-plus-l1-finality",
		"route":          req.FromChain + "->" + req.ToChain,
		"estimated":      false,
		"bonder_fee":     parsed.BonderFee,
		"deadline":       parsed.Deadline,
	})

	return &bridge.NormalizedQuote{
		Bridge:         a.Name(),
		FeeInToken:     fee,
		EstTimeSeconds: estTime,
		Metadata:       meta,
	}, nil
}

func (a *Adapter) estimate(req bridge.NormalizedQuoteRequest) *bridge.NormalizedQuote {
	amountReadable := readableAmount(req.Amount, req.Asset)
	fee := bridge.EstimateFee(req.Asset, amountReadable)
	estTime := estimateTime(req.FromChain, req.ToChain)

	meta, _ := json.Marshal(map[string]any{
		"network":        "hop-v1",
		"architecture":   "amm-bonder-liquidity",
		"security_model": "optimistic-bonder-plus-l1-finality",
		"route":          req.FromChain + "->" + req.ToChain,
		"estimated":      true,
	})

	return &bridge.NormalizedQuote{
		Bridge:         a.Name(),
		FeeInToken:     fee,
		EstTimeSeconds: estTime,
		Metadata:       meta,
	}
}

func (a *Adapter) tryRefreshRoutes(ctx context.Context, cfg bridge.AdapterConfig) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/available-routes", nil)
	if err != nil {
		return
	}
	resp, err := cfg.HTTPClient.Do(req)
	if err != nil || resp.StatusCode/100 != 2 {
		return
	}
	defer resp.Body.Close()

	var routes []struct {
		SourceChainSlug      string `json:"sourceChainSlug"`
		DestinationChainSlug string `json:"destinationChainSlug"`
	}
	if json.NewDecoder(resp.Body).Decode(&routes) != nil {
		return
	}

	names := make([]string, 0, len(routes))
	for _, r := range routes {
		names = append(names, r.SourceChainSlug+"->"+r.DestinationChainSlug)
	}
	a.routes.refresh(names)
}

func readableAmount(amount, asset string) float64 {
	n, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0
	}
	divisor := 1.0
	for i := 0; i < bridge.Decimals(asset); i++ {
		divisor *= 10
	}
	return n / divisor
}
