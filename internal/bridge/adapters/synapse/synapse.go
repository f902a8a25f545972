// Package synapse implements the bridge.Adapter contract against
// Synapse Protocol's bridge API — a hybrid optimistic-verification and
// AMM bridge that accepts the same fromChain/toChain/token/amount shape
// as the normalized request, with slippage expressed as a percent.
package synapse

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

const baseURL = "https://syn-api-x.herokuapp.com"

var supportedChains = map[string]bool{
	"ethereum": true, "optimism": true, "arbitrum": true, "avalanche": true,
	"bsc": true, "polygon": true, "fantom": true, "base": true,
}

var supportedTokens = map[string]bool{
	"USDC": true, "USDT": true, "ETH": true, "DAI": true, "SYN": true,
}

var l2Set = map[string]bool{"optimism": true, "arbitrum": true, "base": true}

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
		return 240
	case fromL2 != toL2:
		return 480
	default:
		return 720
	}
}

// Adapter implements bridge.Adapter for Synapse Protocol.
type Adapter struct{}

// New returns a Synapse adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() string { return "synapse" }

type synapseBridgeOutResponse struct {
	AmountOut   string `json:"amountOut"`
	BridgeFee   string `json:"bridgeFee"`
	EstimatedTime int  `json:"estimatedTimeSeconds"`
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

	cacheKey := fmt.Sprintf("synapse:%s:%s:%s:%s", req.Asset, req.FromChain, req.ToChain, req.Amount)
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
	q := url.Values{}
	q.Set("fromChain", fromChain)
	q.Set("toChain", toChain)
	q.Set("token", token)
	q.Set("amount", req.Amount)
	q.Set("slippage", strconv.FormatFloat(float64(req.SlippageBps)/100, 'f', -1, 64))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/bridge-out?"+q.Encode(), nil)
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
	if resp.StatusCode/100 != 2 {
		return nil, bridge.NewBadResponseError(fmt.Sprintf("status %d", resp.StatusCode))
	}

	var parsed synapseBridgeOutResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, bridge.NewJSONParseError(err.Error())
	}

	fee := readableAmount(parsed.BridgeFee, req.Asset)
	estTime := uint64(parsed.EstimatedTime)
	if estTime == 0 {
		estTime = estimateTime(req.FromChain, req.ToChain)
	}

	meta, _ := json.Marshal(map[string]any{
		"network":        "synapse",
		"architecture":   "optimistic-verification-plus-amm",
		"security_model": "synapse-guard-network",
		"route":          req.FromChain + "->" + req.ToChain,
		"estimated":      false,
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
		"network":        "synapse",
		"architecture":   "optimistic-verification-plus-amm",
		"security_model": "synapse-guard-network",
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
