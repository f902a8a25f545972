// Package cbridge implements the bridge.Adapter contract against
// Celer cBridge's quote API — a state-guardian-network bridge that
// prices routes by numeric chain ID and ticker symbol.
package cbridge

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

const baseURL = "https://cbridge-prod2.celer.app/v2"

var chainIDs = map[string]uint64{
	"ethereum": 1, "eth": 1, "mainnet": 1,
	"arbitrum": 42161, "arb": 42161, "arbitrum-one": 42161,
	"optimism": 10, "opt": 10,
	"polygon": 137, "matic": 137,
	"avalanche": 43114, "avax": 43114,
	"bsc": 56, "binance": 56, "bnb": 56,
	"fantom": 250, "ftm": 250,
	"moonriver": 1285,
	"moonbeam": 1284,
	"celo": 42220,
	"metis": 1088,
	"base": 8453,
	"scroll": 534352,
	"linea": 59144,
}

var assetSymbols = map[string]string{
	"USDC": "USDC", "USDT": "USDT", "ETH": "WETH", "WETH": "WETH",
	"DAI": "DAI", "WBTC": "WBTC", "CELR": "CELR",
}

var l2Set = map[string]bool{"arbitrum": true, "optimism": true, "base": true, "scroll": true, "linea": true}

func mapChain(chain string) (uint64, error) {
	id, ok := chainIDs[strings.ToLower(chain)]
	if !ok {
		return 0, bridge.NewUnsupportedRouteError(chain, "")
	}
	return id, nil
}

func mapAsset(asset string) (string, error) {
	sym, ok := assetSymbols[strings.ToUpper(asset)]
	if !ok {
		return "", bridge.NewUnsupportedAssetError(asset)
	}
	return sym, nil
}

func estimateTime(from, to string) uint64 {
	fromL2, toL2 := l2Set[strings.ToLower(from)], l2Set[strings.ToLower(to)]
	switch {
	case fromL2 && toL2:
		return 180
	case fromL2 != toL2:
		return 420
	default:
		return 600
	}
}

// Adapter implements bridge.Adapter for Celer cBridge.
type Adapter struct{}

// New returns a cBridge adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() string { return "cbridge" }

type cbridgeEstimateResponse struct {
	EstimatedReceiveAmt string `json:"estimated_receive_amt"`
	BaseFee             string `json:"base_fee"`
	PercFee             string `json:"perc_fee"`
}

func (a *Adapter) GetQuote(ctx context.Context, req bridge.NormalizedQuoteRequest, cfg bridge.AdapterConfig) (*bridge.NormalizedQuote, error) {
	srcID, err := mapChain(req.FromChain)
	if err != nil {
		return nil, err
	}
	dstID, err := mapChain(req.ToChain)
	if err != nil {
		return nil, err
	}
	symbol, err := mapAsset(req.Asset)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("cbridge:%s:%s:%s:%s", req.Asset, req.FromChain, req.ToChain, req.Amount)
	if cfg.Cache != nil {
		if cached, ok := cfg.Cache.Get(ctx, cacheKey); ok {
			var q bridge.NormalizedQuote
			if err := json.Unmarshal(cached, &q); err == nil {
				return &q, nil
			}
		}
	}

	quote, err := bridge.RetryRequest(ctx, cfg.Retries, func(ctx context.Context) (*bridge.NormalizedQuote, error) {
		return a.fetchOnce(ctx, req, cfg, srcID, dstID, symbol)
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

func (a *Adapter) fetchOnce(ctx context.Context, req bridge.NormalizedQuoteRequest, cfg bridge.AdapterConfig, srcID, dstID uint64, symbol string) (*bridge.NormalizedQuote, error) {
	q := url.Values{}
	q.Set("src_chain_id", strconv.FormatUint(srcID, 10))
	q.Set("dst_chain_id", strconv.FormatUint(dstID, 10))
	q.Set("token_symbol", symbol)
	q.Set("amt", req.Amount)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/estimateAmt?"+q.Encode(), nil)
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

	var parsed cbridgeEstimateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, bridge.NewJSONParseError(err.Error())
	}

	baseFee := readableAmount(parsed.BaseFee, req.Asset)
	amountReadable := readableAmount(req.Amount, req.Asset)
	percFee, _ := strconv.ParseFloat(parsed.PercFee, 64)
	fee := baseFee + amountReadable*percFee
	estTime := estimateTime(req.FromChain, req.ToChain)

	meta, _ := json.Marshal(map[string]any{
		"network":        "cbridge-v2",
		"architecture":   "state-guardian-network",
		"security_model": "sgn-pos-validators",
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
		"network":        "cbridge-v2",
		"architecture":   "state-guardian-network",
		"security_model": "sgn-pos-validators",
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
