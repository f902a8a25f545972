// Package gasprice fetches current gas prices for populating a route's
// gas-cost display fields. It is an optional collaborator: the
// aggregation pipeline runs identically whether or not a Client is
// configured, just with gasEstimateUsd left at zero.
package gasprice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Quote is a snapshot of a chain's gas market.
type Quote struct {
	Chain           string
	SafeGasPriceGwei    float64
	ProposeGasPriceGwei float64
	FastGasPriceGwei    float64
	EthPriceUsd         float64
}

// Client fetches gas prices from an Etherscan-V2-compatible gas oracle.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

const defaultBaseURL = "https://api.etherscan.io/v2/api"

// New builds a Client. apiKey may be empty for unauthenticated
// (rate-limited) use.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the oracle's base URL, mainly for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// chainIDs maps canonical chain slugs to the EVM chain ID Etherscan V2
// expects.
var chainIDs = map[string]int{
	"ethereum": 1, "arbitrum": 42161, "optimism": 10, "polygon": 137,
	"base": 8453, "avalanche": 43114, "bsc": 56, "linea": 59144,
	"scroll": 534352, "gnosis": 100, "celo": 42220, "fantom": 250,
	"moonbeam": 1284,
}

type etherscanGasResult struct {
	SafeGasPrice    string `json:"SafeGasPrice"`
	ProposeGasPrice string `json:"ProposeGasPrice"`
	FastGasPrice    string `json:"FastGasPrice"`
	UsdPrice        string `json:"UsdPrice"`
}

type etherscanV2Response struct {
	Status string              `json:"status"`
	Result etherscanGasResult `json:"result"`
}

// GetGasPrice fetches the current gas oracle reading for chain. It
// returns an error for an unsupported chain, a network failure, a
// non-200 status or an undecodable body — callers should treat any
// error as "no gas data available" rather than fail the request.
func (c *Client) GetGasPrice(ctx context.Context, chain string) (Quote, error) {
	chainID, ok := chainIDs[strings.ToLower(chain)]
	if !ok {
		return Quote{}, fmt.Errorf("gasprice: unsupported chain %q", chain)
	}

	url := fmt.Sprintf("%s?chainid=%d&module=gastracker&action=gasoracle&apikey=%s", c.baseURL, chainID, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Quote{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("gasprice: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("gasprice: status %d", resp.StatusCode)
	}

	var parsed etherscanV2Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Quote{}, fmt.Errorf("gasprice: decode: %w", err)
	}

	return Quote{
		Chain:               chain,
		SafeGasPriceGwei:    parseFloat(parsed.Result.SafeGasPrice),
		ProposeGasPriceGwei: parseFloat(parsed.Result.ProposeGasPrice),
		FastGasPriceGwei:    parseFloat(parsed.Result.FastGasPrice),
		EthPriceUsd:         parseFloat(parsed.Result.UsdPrice),
	}, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
