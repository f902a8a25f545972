package bridge

import "strings"

// Decimals returns the number of decimal places for a token symbol,
// used to translate a human-readable amount into its smallest unit.
// USDC/USDT use 6, WBTC uses 8, everything else defaults to 18.
func Decimals(token string) int {
	switch strings.ToUpper(token) {
	case "USDC", "USDT":
		return 6
	case "WBTC":
		return 8
	default:
		return 18
	}
}

// l2Chains is the set of canonical chain slugs considered L2s for the
// purpose of the shared route-class timing heuristic. Individual
// adapters may override this with their own table when their real
// finality characteristics differ (see each adapter's estimateTime).
var l2Chains = map[string]bool{
	"optimism": true, "arbitrum": true, "base": true, "polygon-zkevm": true,
	"linea": true, "scroll": true, "zksync": true, "blast": true, "mode": true,
}

// IsL2 reports whether chain is in the shared L2 set.
func IsL2(chain string) bool {
	return l2Chains[strings.ToLower(chain)]
}

// RouteClassEstimate is the shared fallback timing heuristic described
// in the adapter contract: L2<->L2 is fast, L1<->L2 is medium, L1<->L1
// (or anything involving a slow-finality chain) is slow. No adapter
// calls it; each adapter uses its own estimateTime table instead.
func RouteClassEstimate(from, to string) uint64 {
	fromL2, toL2 := IsL2(from), IsL2(to)
	switch {
	case fromL2 && toL2:
		return 180
	case fromL2 != toL2:
		return 600
	default:
		return 900
	}
}

// feeEstimateRow is one entry of the per-asset fallback fee table used
// when an adapter cannot reach or parse its upstream.
type feeEstimateRow struct {
	FeePct       float64
	BaseCostUnit float64
}

var feeEstimateTable = map[string]feeEstimateRow{
	"USDC": {FeePct: 0.0012, BaseCostUnit: 0.15},
	"USDT": {FeePct: 0.0012, BaseCostUnit: 0.15},
	"ETH":  {FeePct: 0.0010, BaseCostUnit: 0.0003},
	"WETH": {FeePct: 0.0010, BaseCostUnit: 0.0003},
	"DAI":  {FeePct: 0.0012, BaseCostUnit: 0.20},
	"WBTC": {FeePct: 0.0015, BaseCostUnit: 0.000012},
}

var defaultFeeEstimateRow = feeEstimateRow{FeePct: 0.0015, BaseCostUnit: 1.0}

// EstimateFee computes the per-asset fallback fee for amountReadable
// units of asset, used when an adapter must synthesize a quote because
// its upstream is unreachable or unparseable.
func EstimateFee(asset string, amountReadable float64) float64 {
	row, ok := feeEstimateTable[strings.ToUpper(asset)]
	if !ok {
		row = defaultFeeEstimateRow
	}
	return amountReadable*row.FeePct + row.BaseCostUnit
}
