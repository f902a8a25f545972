package bridge

// ScoringWeights controls how much each dimension contributes to the
// composite score. The three weights are expected to sum to 1.0.
type ScoringWeights struct {
	Fee      float64
	Time     float64
	Security float64
}

// DefaultScoringWeights matches the weights the upstream router has
// always shipped with.
var DefaultScoringWeights = ScoringWeights{Fee: 0.4, Time: 0.4, Security: 0.2}

// ScoringConfig bundles the weights with the thresholds and bonuses the
// scorer needs.
type ScoringConfig struct {
	Weights          ScoringWeights
	MaxFeeThreshold  float64
	MaxTimeThreshold float64
	AuditBonus       float64
	ExploitPenalty   float64
}

// DefaultScoringConfig is the scorer's out-of-the-box configuration.
var DefaultScoringConfig = ScoringConfig{
	Weights:          DefaultScoringWeights,
	MaxFeeThreshold:  0.01,
	MaxTimeThreshold: 3600,
	AuditBonus:       0.2,
	ExploitPenalty:   0.5,
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// FeeScore scores a fee against the configured ceiling: 0 fee scores 1,
// a fee at or above the ceiling scores 0.
func FeeScore(fee float64, cfg ScoringConfig) float64 {
	if fee <= 0 {
		return 1
	}
	return clamp01(1 - fee/cfg.MaxFeeThreshold)
}

// TimeScore scores an ETA against the configured ceiling: 0 seconds
// scores 1, an ETA at or beyond the ceiling scores 0.
func TimeScore(estTimeSeconds uint64, cfg ScoringConfig) float64 {
	if estTimeSeconds == 0 {
		return 1
	}
	return clamp01(1 - float64(estTimeSeconds)/cfg.MaxTimeThreshold)
}

// SecurityScore is the single security-score formula this repo uses for
// both the composite score's security component and the
// client-facing ScoredRoute.Security.Score field. See DESIGN.md's
// "Security score formula unification" decision.
func SecurityScore(hasAudit, hasExploit bool, cfg ScoringConfig) float64 {
	score := 0.5
	if hasAudit {
		score += cfg.AuditBonus
	}
	if hasExploit {
		score -= cfg.ExploitPenalty
	}
	return clamp01(score)
}

// Score computes the composite route score in [0, 1].
func Score(fee float64, estTimeSeconds uint64, hasAudit, hasExploit bool, cfg ScoringConfig) float64 {
	feeScore := FeeScore(fee, cfg)
	timeScore := TimeScore(estTimeSeconds, cfg)
	secScore := SecurityScore(hasAudit, hasExploit, cfg)

	final := cfg.Weights.Fee*feeScore + cfg.Weights.Time*timeScore + cfg.Weights.Security*secScore
	return clamp01(final)
}

// BuildScoredRoute turns one adapter's normalized quote, plus the
// caller's slippage tolerance and that bridge's security metadata, into
// a fully-shaped ScoredRoute.
func BuildScoredRoute(quote NormalizedQuote, amountReadable float64, slippageBps int, sec SecurityMetadata, cfg ScoringConfig) ScoredRoute {
	score := Score(quote.FeeInToken, quote.EstTimeSeconds, sec.HasAudit, sec.HasExploit, cfg)
	secScore := SecurityScore(sec.HasAudit, sec.HasExploit, cfg)

	expected := amountReadable - quote.FeeInToken
	if expected < 0 {
		expected = 0
	}
	minimum := expected * (1 - float64(slippageBps)/10000)

	status := StatusOperational
	if quote.IsEstimated() {
		status = StatusDegraded
	}

	var warnings []string
	if secScore < securityMediumMin {
		warnings = append(warnings, "low_security")
	}
	if quote.EstTimeSeconds > timingMediumMaxSeconds {
		warnings = append(warnings, "slow_route")
	}

	return ScoredRoute{
		Bridge: quote.Bridge,
		Score:  score,
		Cost: CostDetails{
			TotalFee:    quote.FeeInToken,
			TotalFeeUsd: 0,
			Breakdown: CostBreakdown{
				BridgeFee:      quote.FeeInToken,
				GasEstimateUsd: 0,
			},
		},
		Output: OutputDetails{
			Expected: expected,
			Minimum:  minimum,
			Input:    amountReadable,
		},
		Timing: TimingDetails{
			Seconds:  quote.EstTimeSeconds,
			Display:  displayTiming(quote.EstTimeSeconds),
			Category: categorizeTiming(quote.EstTimeSeconds),
		},
		Security: SecurityDetails{
			Score:      secScore,
			Level:      categorizeSecurity(secScore),
			HasAudit:   sec.HasAudit,
			HasExploit: sec.HasExploit,
		},
		Available: true,
		Status:    status,
		Warnings:  warnings,
	}
}
