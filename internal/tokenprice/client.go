// Package tokenprice fetches USD prices for the handful of tokens this
// service supports, used to populate a route's totalFeeUsd field. Like
// gasprice, it is an optional collaborator.
package tokenprice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client fetches simple USD prices from CoinGecko.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

const defaultBaseURL = "https://api.coingecko.com/api/v3/simple/price"

// New builds a Client. apiKey may be empty for the public, rate-limited
// tier.
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

// WithBaseURL overrides the price endpoint, mainly for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

var coingeckoIDs = map[string]string{
	"ETH": "ethereum", "WETH": "ethereum", "USDC": "usd-coin", "USDT": "tether",
	"DAI": "dai", "WBTC": "wrapped-bitcoin", "MATIC": "matic-network",
	"ARB": "arbitrum", "OP": "optimism", "AVAX": "avalanche-2", "BNB": "binancecoin",
}

type priceData struct {
	USD float64 `json:"usd"`
}

// GetPrice returns the current USD price of token.
func (c *Client) GetPrice(ctx context.Context, token string) (float64, error) {
	id, ok := coingeckoIDs[strings.ToUpper(token)]
	if !ok {
		return 0, fmt.Errorf("tokenprice: unsupported token %q", token)
	}

	url := fmt.Sprintf("%s?ids=%s&vs_currencies=usd", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("tokenprice: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("tokenprice: status %d", resp.StatusCode)
	}

	var parsed map[string]priceData
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("tokenprice: decode: %w", err)
	}

	data, ok := parsed[id]
	if !ok {
		return 0, fmt.Errorf("tokenprice: no price for %q", token)
	}
	return data.USD, nil
}
