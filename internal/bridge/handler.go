package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// QuoteCache is the two-tier cache contract the handler needs. It is
// satisfied by *cache.QuoteCache; declared here so this package does
// not depend on internal/cache, keeping the dependency direction one
// way (cache has no notion of quotes, bridge has no notion of Redis).
type QuoteCache interface {
	LookupFresh(ctx context.Context, key string) ([]byte, bool)
	LookupStale(ctx context.Context, key string) ([]byte, bool)
	WriteBoth(ctx context.Context, key string, body []byte)
}

// RateLimiter is the contract the handler needs from the per-client
// quote rate limiter.
type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, clientKey string) (int64, error)
	Limit() int
}

// GlobalRateLimiter is the contract the handler needs from the
// aggregate-wide limiter guarding the bridge-adapter upstreams. It is
// checked ahead of the per-client limiter so an already-throttled fleet
// never reaches the per-client counters.
type GlobalRateLimiter interface {
	Allow(ctx context.Context) (bool, error)
}

// SecurityLookup is the contract the handler needs from the security
// metadata repository.
type SecurityLookup interface {
	GetBatchSecurityMetadata(ctx context.Context, bridges []string) ([]SecurityMetadata, error)
}

// RawQuoteRequest is the unparsed, wire-level request shape the HTTP
// layer extracts from query parameters before handing off to Handler.
type RawQuoteRequest struct {
	FromChain string
	ToChain   string
	Token     string
	Amount    string // human-readable decimal, e.g. "1.5"
	Slippage  *float64 // percent, e.g. 0.5 meaning 0.5%; nil means default
	ClientID  string
}

// Outcome is the handler's result, already carrying the cache-state
// header value the HTTP layer should set.
type Outcome struct {
	Body       AggregatedResult
	CacheState string // "HIT" | "MISS" | "STALE" | ""
	RawBody    []byte // when set (cache hit), write this verbatim instead of re-marshaling Body
}

// HandlerError is returned for every non-200 outcome, carrying the HTTP
// status the caller should use.
type HandlerError struct {
	Status  int
	Code    string
	Message string
}

func (e *HandlerError) Error() string { return e.Message }

const defaultSlippagePercent = 0.5

// GasEstimate is the subset of a gas-price oracle reading needed to turn
// a route's destination-chain gas market into a display-only USD figure.
type GasEstimate struct {
	ProposeGasPriceGwei float64
	EthPriceUsd         float64
}

// assumedBridgeGasUnits is a rough, adapter-agnostic gas budget for one
// cross-chain bridge transaction. It exists only to turn an oracle gwei
// reading into a ballpark USD display field, not to price a real tx.
const assumedBridgeGasUnits = 150_000

// GasCostUsd converts a gas-price oracle reading into an approximate
// USD cost for one bridge transaction.
func (g GasEstimate) GasCostUsd() float64 {
	return g.ProposeGasPriceGwei * 1e-9 * assumedBridgeGasUnits * g.EthPriceUsd
}

// priceEnrichmentDeadline bounds the optional gas-price/token-price
// lookups — like security metadata, a slow or down oracle degrades the
// USD display fields, never the route's availability.
const priceEnrichmentDeadline = 2 * time.Second

// Handler implements the full GET /quotes pipeline (spec.md §4.7):
// validate, rate-limit, fresh-cache probe, aggregate, stale fallback,
// security enrichment, score, sort, cache write.
type Handler struct {
	Aggregator       *Aggregator
	Cache            QuoteCache
	RateLimiter      RateLimiter
	GlobalLimiter    GlobalRateLimiter
	Security         SecurityLookup
	SecurityDeadline time.Duration
	Scoring          ScoringConfig

	// GasPrice and TokenPrice are optional collaborators that populate
	// cost.totalFeeUsd and cost.breakdown.gasEstimateUsd. Either may be
	// nil; routes are still fully scored and returned without them,
	// just with those USD fields left at zero (per Open Question c:
	// the canonical AppState carries them as optional collaborators).
	GasPrice   func(ctx context.Context, chain string) (GasEstimate, bool)
	TokenPrice func(ctx context.Context, token string) (float64, bool)

	// RouteScoreMetrics is the subset of *metrics.Registry used to track
	// per-bridge score drift. Declared locally for the same reason as
	// AdapterMetrics in aggregator.go.
	RouteScoreMetrics interface {
		ObserveRouteScore(bridgeName string, score float64)
	}
}

// NewHandler builds a Handler with spec-default scoring and a 3s
// security-lookup deadline.
func NewHandler(agg *Aggregator, cache QuoteCache, limiter RateLimiter, security SecurityLookup) *Handler {
	return &Handler{
		Aggregator:       agg,
		Cache:            cache,
		RateLimiter:      limiter,
		Security:         security,
		SecurityDeadline: 3 * time.Second,
		Scoring:          DefaultScoringConfig,
	}
}

// HandleQuotes runs the full pipeline for one request.
func (h *Handler) HandleQuotes(ctx context.Context, raw RawQuoteRequest) (Outcome, error) {
	req, slippagePercent, err := normalizeRequest(raw)
	if err != nil {
		return Outcome{}, &HandlerError{Status: 400, Code: "validation_error", Message: err.Error()}
	}

	if h.GlobalLimiter != nil {
		if allowed, err := h.GlobalLimiter.Allow(ctx); err == nil && !allowed {
			return Outcome{}, &HandlerError{
				Status:  429,
				Code:    "rate_limited",
				Message: "Service is under heavy load. Please try again shortly.",
			}
		}
	}
	if h.RateLimiter != nil {
		count, err := h.RateLimiter.CheckAndIncrement(ctx, raw.ClientID)
		if err == nil && int(count) > h.RateLimiter.Limit() {
			return Outcome{}, &HandlerError{
				Status:  429,
				Code:    "rate_limited",
				Message: fmt.Sprintf("Maximum %d requests per minute.", h.RateLimiter.Limit()),
			}
		}
	}

	cacheKey := req.CacheKey()
	if h.Cache != nil {
		if body, ok := h.Cache.LookupFresh(ctx, cacheKey); ok {
			return Outcome{CacheState: "HIT", RawBody: body}, nil
		}
	}

	results := h.Aggregator.GetAllQuotes(ctx, req)
	quotes, errs := Partition(results)

	if len(quotes) == 0 {
		if h.Cache != nil {
			if body, ok := h.Cache.LookupStale(ctx, cacheKey); ok {
				return Outcome{CacheState: "STALE", RawBody: body}, nil
			}
		}
		return Outcome{}, &HandlerError{
			Status:  502,
			Code:    "service_unavailable",
			Message: "No quotes available and no cached data found.",
		}
	}

	var secMeta []SecurityMetadata
	if h.Security != nil {
		secCtx, cancel := context.WithTimeout(ctx, h.securityDeadline())
		bridgeNames := make([]string, len(quotes))
		for i, q := range quotes {
			bridgeNames[i] = q.Bridge
		}
		fetched, err := h.Security.GetBatchSecurityMetadata(secCtx, bridgeNames)
		cancel()
		if err == nil {
			secMeta = fetched
		}
	}
	secByBridge := make(map[string]SecurityMetadata, len(secMeta))
	for _, m := range secMeta {
		secByBridge[m.Bridge] = m
	}

	amountReadable := toReadableAmount(req.Amount, req.Asset)

	routes := make([]ScoredRoute, 0, len(quotes))
	for _, q := range quotes {
		sec := secByBridge[q.Quote.Bridge] // zero value -> no audit, no exploit
		sec.Bridge = q.Quote.Bridge
		routes = append(routes, BuildScoredRoute(*q.Quote, amountReadable, req.SlippageBps, sec, h.Scoring))
	}

	h.enrichPrices(ctx, req, routes)

	if h.RouteScoreMetrics != nil {
		for _, r := range routes {
			h.RouteScoreMetrics.ObserveRouteScore(r.Bridge, r.Score)
		}
	}

	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].Score != routes[j].Score {
			return routes[i].Score > routes[j].Score
		}
		return routes[i].Bridge < routes[j].Bridge
	})

	available := 0
	for _, r := range routes {
		if r.Available {
			available++
		}
	}

	result := AggregatedResult{
		Routes: routes,
		Errors: nil,
		Metadata: AggregatedResultMeta{
			TotalRoutes:     len(h.Aggregator.adapters),
			AvailableRoutes: available,
			Request: RequestSummary{
				From:   req.FromChain,
				To:     req.ToChain,
				Token:  req.Asset,
				Amount: raw.Amount,
			},
		},
	}
	if len(routes) == 0 {
		result.Errors = errs
	}

	if h.Cache != nil {
		if body, err := json.Marshal(result); err == nil {
			h.Cache.WriteBoth(ctx, cacheKey, body)
		}
	}

	_ = slippagePercent
	return Outcome{Body: result, CacheState: "MISS"}, nil
}

// enrichPrices fills cost.totalFeeUsd and cost.breakdown.gasEstimateUsd
// using the optional gas-price/token-price collaborators. It makes at
// most one call to each per request (not per route) since every route
// in one aggregation shares the same asset and destination chain.
// Either collaborator being nil, or erroring, leaves the corresponding
// USD fields at zero — never fails the request.
func (h *Handler) enrichPrices(ctx context.Context, req NormalizedQuoteRequest, routes []ScoredRoute) {
	if h.GasPrice == nil && h.TokenPrice == nil {
		return
	}
	priceCtx, cancel := context.WithTimeout(ctx, priceEnrichmentDeadline)
	defer cancel()

	var tokenUsd float64
	haveTokenUsd := false
	if h.TokenPrice != nil {
		if v, ok := h.TokenPrice(priceCtx, req.Asset); ok {
			tokenUsd = v
			haveTokenUsd = true
		}
	}

	var gasUsd float64
	haveGas := false
	if h.GasPrice != nil {
		if g, ok := h.GasPrice(priceCtx, req.ToChain); ok {
			gasUsd = g.GasCostUsd()
			haveGas = true
		}
	}

	if !haveTokenUsd && !haveGas {
		return
	}
	for i := range routes {
		if haveTokenUsd {
			routes[i].Cost.TotalFeeUsd = routes[i].Cost.TotalFee * tokenUsd
		}
		if haveGas {
			routes[i].Cost.Breakdown.GasEstimateUsd = gasUsd
			routes[i].Cost.TotalFeeUsd += gasUsd
		}
	}
}

func (h *Handler) securityDeadline() time.Duration {
	if h.SecurityDeadline <= 0 {
		return 3 * time.Second
	}
	return h.SecurityDeadline
}

func normalizeRequest(raw RawQuoteRequest) (NormalizedQuoteRequest, float64, error) {
	if raw.FromChain == "" || raw.ToChain == "" || raw.Token == "" {
		return NormalizedQuoteRequest{}, 0, fmt.Errorf("fromChain, toChain, and token are required")
	}
	if strings.EqualFold(raw.FromChain, raw.ToChain) {
		return NormalizedQuoteRequest{}, 0, fmt.Errorf("source and destination chains must be different")
	}

	amount, err := strconv.ParseFloat(raw.Amount, 64)
	if err != nil || amount <= 0 {
		return NormalizedQuoteRequest{}, 0, fmt.Errorf("amount must be a positive number")
	}

	slippagePercent := defaultSlippagePercent
	if raw.Slippage != nil {
		slippagePercent = *raw.Slippage
	}
	slippageBps := int(slippagePercent * 100)

	smallestUnit := amountToSmallestUnit(amount, raw.Token)

	req := NormalizedQuoteRequest{
		Asset:       strings.ToUpper(raw.Token),
		FromChain:   strings.ToLower(raw.FromChain),
		ToChain:     strings.ToLower(raw.ToChain),
		Amount:      smallestUnit,
		SlippageBps: slippageBps,
	}
	if err := req.Validate(); err != nil {
		return NormalizedQuoteRequest{}, 0, err
	}
	return req, slippagePercent, nil
}

func amountToSmallestUnit(amount float64, token string) string {
	divisor := 1.0
	for i := 0; i < Decimals(token); i++ {
		divisor *= 10
	}
	return strconv.FormatInt(int64(amount*divisor), 10)
}

func toReadableAmount(smallestUnit, token string) float64 {
	n, err := strconv.ParseFloat(smallestUnit, 64)
	if err != nil {
		return 0
	}
	divisor := 1.0
	for i := 0; i < Decimals(token); i++ {
		divisor *= 10
	}
	return n / divisor
}
