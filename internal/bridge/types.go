// Package bridge holds the domain types and algorithms shared by every
// bridge adapter, the aggregator, and the scorer: the normalized quote
// request/response shapes, the adapter contract, and the pure scoring
// function that turns a handful of normalized quotes into ranked routes.
package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NormalizedQuoteRequest is the canonical, adapter-agnostic shape of a
// quote request. FromChain/ToChain are lowercase canonical chain slugs,
// Asset is an uppercase token symbol, Amount is the transfer amount in
// the token's smallest unit as a decimal string, and SlippageBps is
// basis points (0-10000).
type NormalizedQuoteRequest struct {
	Asset       string
	FromChain   string
	ToChain     string
	Amount      string
	SlippageBps int
}

// Validate enforces the request invariants. It does not touch any
// adapter or chain/asset table — that validation happens per-adapter.
func (r NormalizedQuoteRequest) Validate() error {
	if r.Asset == "" {
		return fmt.Errorf("asset must not be empty")
	}
	if r.FromChain == "" || r.ToChain == "" {
		return fmt.Errorf("fromChain and toChain must not be empty")
	}
	if strings.EqualFold(r.FromChain, r.ToChain) {
		return fmt.Errorf("source and destination chains must be different")
	}
	if r.SlippageBps < 0 || r.SlippageBps > 10000 {
		return fmt.Errorf("slippageBps must be between 0 and 10000")
	}
	amt, err := parseAmount(r.Amount)
	if err != nil || amt <= 0 {
		return fmt.Errorf("amount must be a positive integer")
	}
	return nil
}

func parseAmount(s string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

// CacheKey is the canonical fresh-tier cache key for a request, per the
// key format `quotes:<fromLower>:<toLower>:<tokenUpper>:<amount>`.
func (r NormalizedQuoteRequest) CacheKey() string {
	return fmt.Sprintf("quotes:%s:%s:%s:%s",
		strings.ToLower(r.FromChain), strings.ToLower(r.ToChain),
		strings.ToUpper(r.Asset), r.Amount)
}

// NormalizedQuote is a single adapter's answer, normalized to the
// requested asset's unit.
type NormalizedQuote struct {
	Bridge         string
	FeeInToken     float64
	EstTimeSeconds uint64
	Liquidity      string
	Metadata       json.RawMessage
}

// IsEstimated reports whether the quote came from an adapter's fallback
// estimate path rather than a parsed upstream response.
func (q NormalizedQuote) IsEstimated() bool {
	if len(q.Metadata) == 0 {
		return false
	}
	var m map[string]any
	if err := json.Unmarshal(q.Metadata, &m); err != nil {
		return false
	}
	v, ok := m["estimated"].(bool)
	return ok && v
}

// BridgeQuoteResult is one slot of an aggregator's output: exactly one
// of Quote or Err is set.
type BridgeQuoteResult struct {
	Bridge string
	Quote  *NormalizedQuote
	Err    error
}

// BridgeQuoteError is the shape surfaced to clients when no routes were
// found for a bridge.
type BridgeQuoteError struct {
	Bridge string `json:"bridge"`
	Error  string `json:"error"`
}

// AggregatedResult is the top-level response body for GET /quotes.
type AggregatedResult struct {
	Routes   []ScoredRoute       `json:"routes"`
	Errors   []BridgeQuoteError  `json:"errors"`
	Metadata AggregatedResultMeta `json:"metadata"`
}

// AggregatedResultMeta carries bookkeeping about the aggregation run.
type AggregatedResultMeta struct {
	TotalRoutes     int            `json:"totalRoutes"`
	AvailableRoutes int            `json:"availableRoutes"`
	Request         RequestSummary `json:"request"`
}

// RequestSummary echoes back the normalized request parameters.
type RequestSummary struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// Timing category thresholds, seconds.
const (
	timingFastMaxSeconds   = 120
	timingMediumMaxSeconds = 600
)

// Security level thresholds.
const (
	securityHighMin   = 0.7
	securityMediumMin = 0.4
)

// RouteStatus is the lifecycle state of a scored route.
type RouteStatus string

const (
	StatusOperational RouteStatus = "operational"
	StatusDegraded    RouteStatus = "degraded"
	StatusUnavailable RouteStatus = "unavailable"
)

// TimingCategory is a coarse bucket derived from estimated seconds.
type TimingCategory string

const (
	TimingFast   TimingCategory = "fast"
	TimingMedium TimingCategory = "medium"
	TimingSlow   TimingCategory = "slow"
)

// SecurityLevel is a coarse bucket derived from the security score.
type SecurityLevel string

const (
	SecurityHigh   SecurityLevel = "high"
	SecurityMedium SecurityLevel = "medium"
	SecurityLow    SecurityLevel = "low"
)

// ScoredRoute is a fully-shaped, client-facing route.
type ScoredRoute struct {
	Bridge    string         `json:"bridge"`
	Score     float64        `json:"score"`
	Cost      CostDetails    `json:"cost"`
	Output    OutputDetails  `json:"output"`
	Timing    TimingDetails  `json:"timing"`
	Security  SecurityDetails `json:"security"`
	Available bool           `json:"available"`
	Status    RouteStatus    `json:"status"`
	Warnings  []string       `json:"warnings"`
}

// CostDetails breaks a route's fee down into its components.
type CostDetails struct {
	TotalFee      float64       `json:"totalFee"`
	TotalFeeUsd   float64       `json:"totalFeeUsd"`
	Breakdown     CostBreakdown `json:"breakdown"`
}

// CostBreakdown separates the bridge's own fee from gas.
type CostBreakdown struct {
	BridgeFee      float64 `json:"bridgeFee"`
	GasEstimateUsd float64 `json:"gasEstimateUsd"`
	GasDetails     string  `json:"gasDetails,omitempty"`
}

// OutputDetails describes the amount the user actually receives.
type OutputDetails struct {
	Expected float64 `json:"expected"`
	Minimum  float64 `json:"minimum"`
	Input    float64 `json:"input"`
}

// TimingDetails describes how long a route is expected to take.
type TimingDetails struct {
	Seconds  uint64         `json:"seconds"`
	Display  string         `json:"display"`
	Category TimingCategory `json:"category"`
}

// SecurityDetails summarizes a bridge's audit/exploit posture.
type SecurityDetails struct {
	Score       float64       `json:"score"`
	Level       SecurityLevel `json:"level"`
	HasAudit    bool          `json:"hasAudit"`
	HasExploit  bool          `json:"hasExploit"`
}

// SecurityMetadata is one bridge's row from the security metadata
// repository.
type SecurityMetadata struct {
	Bridge            string
	HasAudit          bool
	HasExploit        bool
	LatestAuditResult string
	ExploitCount      int
	TotalLossUsd      float64
}

func categorizeTiming(seconds uint64) TimingCategory {
	switch {
	case seconds <= timingFastMaxSeconds:
		return TimingFast
	case seconds <= timingMediumMaxSeconds:
		return TimingMedium
	default:
		return TimingSlow
	}
}

func categorizeSecurity(score float64) SecurityLevel {
	switch {
	case score >= securityHighMin:
		return SecurityHigh
	case score >= securityMediumMin:
		return SecurityMedium
	default:
		return SecurityLow
	}
}

func displayTiming(seconds uint64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	minutes := seconds / 60
	rem := seconds % 60
	if rem == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm%ds", minutes, rem)
}
