// Package axelar implements the bridge.Adapter contract against
// Axelar's gas fee estimation API — a general-message-passing network
// connecting EVM and non-EVM chains, priced by a POST body carrying the
// chain-name pair and a gas multiplier rather than query parameters.
package axelar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/nulpointcorp/bridgequote/internal/bridge"
)

const baseURL = "https://api.axelarscan.io"

var chainNames = map[string]string{
	"ethereum": "ethereum", "eth": "ethereum", "mainnet": "ethereum",
	"polygon": "polygon", "matic": "polygon",
	"arbitrum": "arbitrum", "arbitrum-one": "arbitrum",
	"optimism": "optimism", "opt": "optimism",
	"avalanche": "avalanche", "avax": "avalanche",
	"fantom": "fantom", "ftm": "fantom",
	"moonbeam": "moonbeam", "glmr": "moonbeam",
	"bnb": "binance", "bsc": "binance", "binance": "binance",
	"base": "base",
	"linea": "linea",
	"mantle": "mantle",
	"celo": "celo",
	"blast": "blast",
	"fraxtal": "fraxtal",
}

// tokenAddresses intentionally covers only the handful of assets Axelar
// routes through its ITS token service on mainnet.
var tokenAddresses = map[string]map[string]string{
	"USDC": {
		"ethereum": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"polygon":  "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
		"arbitrum": "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		"base":     "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	},
}

var slowFinalityChains = map[string]bool{"ethereum": true}

func mapChain(chain string) (string, error) {
	c, ok := chainNames[strings.ToLower(chain)]
	if !ok {
		return "", bridge.NewUnsupportedRouteError(chain, "")
	}
	return c, nil
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
	if slowFinalityChains[strings.ToLower(from)] || slowFinalityChains[strings.ToLower(to)] {
		return 1200
	}
	return 420
}

// Adapter implements bridge.Adapter for Axelar.
type Adapter struct{}

// New returns an Axelar adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() string { return "axelar" }

type axelarGasFeeRequest struct {
	SourceChain          string `json:"sourceChain"`
	DestinationChain     string `json:"destinationChain"`
	SourceTokenAddress   string `json:"sourceTokenAddress"`
	GasMultiplier        string `json:"gasMultiplier"`
}

type axelarGasFeeResponse struct {
	TotalFee     string `json:"totalFee"`
	BaseFee      string `json:"baseFee"`
	ExecutionFee string `json:"executionFee"`
}

func (a *Adapter) GetQuote(ctx context.Context, req bridge.NormalizedQuoteRequest, cfg bridge.AdapterConfig) (*bridge.NormalizedQuote, error) {
	sourceChain, err := mapChain(req.FromChain)
	if err != nil {
		return nil, err
	}
	destChain, err := mapChain(req.ToChain)
	if err != nil {
		return nil, err
	}
	tokenAddr, err := tokenAddress(req.Asset, req.FromChain)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("axelar:%s:%s:%s:%s", req.Asset, req.FromChain, req.ToChain, req.Amount)
	if cfg.Cache != nil {
		if cached, ok := cfg.Cache.Get(ctx, cacheKey); ok {
			var q bridge.NormalizedQuote
			if err := json.Unmarshal(cached, &q); err == nil {
				return &q, nil
			}
		}
	}

	quote, err := bridge.RetryRequest(ctx, cfg.Retries, func(ctx context.Context) (*bridge.NormalizedQuote, error) {
		return a.fetchOnce(ctx, req, cfg, sourceChain, destChain, tokenAddr)
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

func (a *Adapter) fetchOnce(ctx context.Context, req bridge.NormalizedQuoteRequest, cfg bridge.AdapterConfig, sourceChain, destChain, tokenAddr string) (*bridge.NormalizedQuote, error) {
	body, _ := json.Marshal(axelarGasFeeRequest{
		SourceChain:        sourceChain,
		DestinationChain:   destChain,
		SourceTokenAddress: tokenAddr,
		GasMultiplier:      "auto",
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/getGasFee", bytes.NewReader(body))
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

	var parsed axelarGasFeeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, bridge.NewJSONParseError(err.Error())
	}

	fee := readableAmount(parsed.TotalFee, req.Asset)
	estTime := estimateTime(req.FromChain, req.ToChain)

	meta, _ := json.Marshal(map[string]any{
		"network":        "axelar",
		"architecture":   "general-message-passing",
		"security_model": "pos-validator-network",
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
		"network":        "axelar",
		"architecture":   "general-message-passing",
		"security_model": "pos-validator-network",
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
