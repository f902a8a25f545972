// Package stargate implements the bridge.Adapter contract against
// Stargate Finance's quote API — a LayerZero-messaging bridge that
// prices routes by chain ID and liquidity pool ID pairs rather than by
// chain/token name.
package stargate

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

const baseURL = "https://stargate.finance/api/v1"

var chainIDs = map[string]uint64{
	"ethereum": 101, "eth": 101, "mainnet": 101,
	"bsc": 102, "bnb": 102,
	"avalanche": 106, "avax": 106,
	"polygon": 109, "matic": 109,
	"arbitrum": 110, "arb": 110,
	"optimism": 111, "opt": 111,
	"base": 184,
	"linea": 183,
}

var poolIDs = map[string]uint64{
	"USDC": 1, "USDT": 2, "DAI": 3, "ETH": 13, "WETH": 13,
}

var l2Set = map[string]bool{"arbitrum": true, "optimism": true, "base": true, "linea": true}

func mapChain(chain string) (uint64, error) {
	id, ok := chainIDs[strings.ToLower(chain)]
	if !ok {
		return 0, bridge.NewUnsupportedRouteError(chain, "")
	}
	return id, nil
}

func poolID(asset string) (uint64, error) {
	id, ok := poolIDs[strings.ToUpper(asset)]
	if !ok {
		return 0, bridge.NewUnsupportedAssetError(asset)
	}
	return id, nil
}

func estimateTime(from, to string) uint64 {
	fromL2, toL2 := l2Set[strings.ToLower(from)], l2Set[strings.ToLower(to)]
	switch {
	case fromL2 && toL2:
		return 120
	case fromL2 != toL2:
		return 300
	default:
		return 360
	}
}

// Adapter implements bridge.Adapter for Stargate Finance.
type Adapter struct{}

// New returns a Stargate adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() string { return "stargate" }

type stargateQuoteResponse struct {
	AmountOut string `json:"amountOutLD"`
	EqFee     string `json:"eqFee"`
	LpFee     string `json:"lpFee"`
	ProtocolFee string `json:"protocolFee"`
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
	srcPool, err := poolID(req.Asset)
	if err != nil {
		return nil, err
	}
	dstPool, err := poolID(req.Asset)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("stargate:%s:%s:%s:%s", req.Asset, req.FromChain, req.ToChain, req.Amount)
	if cfg.Cache != nil {
		if cached, ok := cfg.Cache.Get(ctx, cacheKey); ok {
			var q bridge.NormalizedQuote
			if err := json.Unmarshal(cached, &q); err == nil {
				return &q, nil
			}
		}
	}

	quote, err := bridge.RetryRequest(ctx, cfg.Retries, func(ctx context.Context) (*bridge.NormalizedQuote, error) {
		return a.fetchOnce(ctx, req, cfg, srcID, dstID, srcPool, dstPool)
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

func (a *Adapter) fetchOnce(ctx context.Context, req bridge.NormalizedQuoteRequest, cfg bridge.AdapterConfig, srcID, dstID, srcPool, dstPool uint64) (*bridge.NormalizedQuote, error) {
	q := url.Values{}
	q.Set("srcChainId", strconv.FormatUint(srcID, 10))
	q.Set("dstChainId", strconv.FormatUint(dstID, 10))
	q.Set("srcPoolId", strconv.FormatUint(srcPool, 10))
	q.Set("dstPoolId", strconv.FormatUint(dstPool, 10))
	q.Set("amount", req.Amount)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/quotes?"+q.Encode(), nil)
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

	var parsed stargateQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, bridge.NewJSONParseError(err.Error())
	}

	amountReadable := readableAmount(req.Amount, req.Asset)
	outReadable := readableAmount(parsed.AmountOut, req.Asset)
	fee := amountReadable - outReadable
	if fee < 0 {
		fee = 0
	}
	estTime := estimateTime(req.FromChain, req.ToChain)

	meta, _ := json.Marshal(map[string]any{
		"network":        "stargate-v2",
		"architecture":   "layerzero-unified-liquidity-pools",
		"security_model": "layerzero-dvn-oracle-relayer",
		"route":          req.FromChain + "->" + req.ToChain,
		"estimated":      false,
		"eq_fee":         parsed.EqFee,
		"lp_fee":         parsed.LpFee,
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
		"network":        "stargate-v2",
		"architecture":   "layerzero-unified-liquidity-pools",
		"security_model": "layerzero-dvn-oracle-relayer",
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
