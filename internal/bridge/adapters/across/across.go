// Package across implements the bridge.Adapter contract against
// Across Protocol's public suggested-fees API — an intent-based,
// optimistic-relay bridge that prices routes by chain ID pair and
// token address rather than by chain/token name.
package across

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nulpointcorp/bridgequote/internal/bridge"
)

const baseURL = "https://app.across.to/api"

// chainIDs maps canonical chain slugs (and common aliases) to the EVM
// chain ID Across expects.
var chainIDs = map[string]uint64{
	"ethereum": 1, "eth": 1, "mainnet": 1,
	"optimism": 10, "opt": 10,
	"polygon": 137, "matic": 137,
	"arbitrum": 42161, "arb": 42161, "arbitrum-one": 42161,
	"base": 8453,
	"linea": 59144,
	"mode": 34443,
	"zksync": 324,
	"blast": 81457,
	"scroll": 534352,
	"bnb": 56, "bsc": 56,
}

// tokenAddresses maps (asset, chain) to the ERC-20 address Across
// expects on that chain. Only mainnet is listed; unknown pairs are
// UnsupportedAsset.
var tokenAddresses = map[string]map[string]string{
	"USDC": {
		"ethereum": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"optimism": "0x7F5c764cBc14f9669B88837ca1490cCa17c31607",
		"polygon":  "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
		"arbitrum": "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		"base":     "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	},
	"WETH": {
		"ethereum": "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		"optimism": "0x4200000000000000000000000000000000000006",
		"polygon":  "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619",
		"arbitrum": "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
		"base":     "0x4200000000000000000000000000000000000006",
	},
}

// l2Set is Across's own view of which chains are L2s, used for the
// route-class timing heuristic.
var l2Set = map[string]bool{
	"optimism": true, "arbitrum": true, "base": true, "linea": true,
	"blast": true, "mode": true, "zksync": true,
}

func mapChain(chain string) (uint64, error) {
	id, ok := chainIDs[strings.ToLower(chain)]
	if !ok {
		return 0, bridge.NewUnsupportedRouteError(chain, "")
	}
	return id, nil
}

func tokenAddress(asset, chain string) (string, error) {
	byChain, ok := tokenAddresses[strings.ToUpper(asset)]
	if !ok {
		return "", bridge.NewUnsupportedAssetError(asset)
	}
	addr, ok := byChain[strings.ToLower(chain)]
	if !ok {
		return "", bridge.NewUnsupportedAssetError(asset)
	}
	return addr, nil
}

func estimateTime(from, to string) uint64 {
	fromL2, toL2 := l2Set[strings.ToLower(from)], l2Set[strings.ToLower(to)]
	switch {
	case fromL2 && toL2:
		return 90
	case fromL2 != toL2:
		return 180
	default:
		return 240
	}
}

// Adapter implements bridge.Adapter for Across Protocol.
type Adapter struct{}

// New returns an Across adapter. Across needs no constructor state —
// all its tables are package-level and its HTTP client is shared via
// AdapterConfig.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() string { return "across" }

func (a *Adapter) GetQuote(ctx context.Context, req bridge.NormalizedQuoteRequest, cfg bridge.AdapterConfig) (*bridge.NormalizedQuote, error) {
	// Mapping failures are validation errors: not retried, no fallback
	// estimate, and must be checked before any cache probe.
	fromID, err := mapChain(req.FromChain)
	if err != nil {
		return nil, err
	}
	toID, err := mapChain(req.ToChain)
	if err != nil {
		return nil, err
	}
	inputToken, err := tokenAddress(req.Asset, req.FromChain)
	if err != nil {
		return nil, err
	}
	outputToken, err := tokenAddress(req.Asset, req.ToChain)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("across:%s:%s:%s:%s", req.Asset, req.FromChain, req.ToChain, req.Amount)
	if cfg.Cache != nil {
		if cached, ok := cfg.Cache.Get(ctx, cacheKey); ok {
			var q bridge.NormalizedQuote
			if err := json.Unmarshal(cached, &q); err == nil {
				return &q, nil
			}
		}
	}

	quote, err := bridge.RetryRequest(ctx, cfg.Retries, func(ctx context.Context) (*bridge.NormalizedQuote, error) {
		return a.fetchOnce(ctx, req, cfg, fromID, toID, inputToken, outputToken)
	})
	if err != nil {
		// Network/non-2xx/parse failures fall back to a deterministic
		// estimate — the route itself is known-supported, we just
		// couldn't reach or parse the live quote.
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

type acrossFeeResponse struct {
	TotalRelayFee struct {
		Pct   string `json:"pct"`
		Total string `json:"total"`
	} `json:"totalRelayFee"`
	EstimatedFillTimeSec int    `json:"estimatedFillTimeSec"`
	OutputAmount         string `json:"outputAmount"`
}

func (a *Adapter) fetchOnce(ctx context.Context, req bridge.NormalizedQuoteRequest, cfg bridge.AdapterConfig, fromID, toID uint64, inputToken, outputToken string) (*bridge.NormalizedQuote, error) {
	q := url.Values{}
	q.Set("inputToken", inputToken)
	q.Set("outputToken", outputToken)
	q.Set("originChainId", strconv.FormatUint(fromID, 10))
	q.Set("destinationChainId", strconv.FormatUint(toID, 10))
	q.Set("amount", req.Amount)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/suggested-fees?"+q.Encode(), nil)
	if err != nil {
		return nil, bridge.NewNetworkError(err.Error())
	}

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
	if resp.StatusCode == 503 {
		return nil, bridge.NewServiceUnavailableError()
	}
	if resp.StatusCode/100 != 2 {
		return nil, bridge.NewBadResponseError(fmt.Sprintf("status %d", resp.StatusCode))
	}

	var parsed acrossFeeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, bridge.NewJSONParseError(err.Error())
	}

	amountReadable := readableAmount(req.Amount, req.Asset)
	fee := feeFromOutput(parsed.OutputAmount, req.Asset, amountReadable)
	if fee == 0 && parsed.TotalRelayFee.Pct != "" {
		fee = feeFromPct(parsed.TotalRelayFee.Pct, amountReadable)
	}

	estTime := uint64(parsed.EstimatedFillTimeSec)
	if estTime == 0 {
		estTime = estimateTime(req.FromChain, req.ToChain)
	}

	meta, _ := json.Marshal(map[string]any{
		"network":          "across-v3",
		"architecture":     "intent-based-optimistic",
		"security_model":   "uma-optimistic-oracle",
		"route":            req.FromChain + "->" + req.ToChain,
		"estimated":        false,
		"relay_fee_pct":    parsed.TotalRelayFee.Pct,
		"output_amount":    parsed.OutputAmount,
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
		"network":        "across-v3",
		"architecture":   "intent-based-optimistic",
		"security_model": "uma-optimistic-oracle",
		"route":          req.FromChain + "->" + req.ToChain,
		"estimated":      true,
		"note":           "upstream unreachable, using deterministic fee table",
	})

	return &bridge.NormalizedQuote{
		Bridge:         a.Name(),
		FeeInToken:     fee,
		EstTimeSeconds: estTime,
		Metadata:       meta,
	}
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

func feeFromOutput(outputAmount, asset string, amountReadable float64) float64 {
	if outputAmount == "" {
		return 0
	}
	outReadable := readableAmount(outputAmount, asset)
	fee := amountReadable - outReadable
	if fee < 0 {
		return 0
	}
	return fee
}

func feeFromPct(pct string, amountReadable float64) float64 {
	p, err := strconv.ParseFloat(pct, 64)
	if err != nil {
		return 0
	}
	// Across reports relay fee pct scaled by 1e18.
	return amountReadable * (p / 1e18)
}
