package decision

import (
	"github.com/afroash/agristore/internal/models"
)

// selectBest returns the index of the winning option. Every policy breaks
// ties in favour of the earlier option. opts must not be empty.
func selectBest(opts []models.StorageOption, p Params) int {
	if p.PrioritizeProfit {
		return highestNet(opts, nil)
	}

	switch p.RiskTolerance {
	case ToleranceLow:
		return lowestRisk(opts, p.MaxRiskFactorsLowTolerance)
	case ToleranceHigh:
		return highestNet(opts, nil)
	default:
		return balanced(opts, p.RiskPenaltyWeight)
	}
}

// highestNet returns the index with the highest net value among opts for
// which keep returns true (all when keep is nil), or -1.
func highestNet(opts []models.StorageOption, keep func(models.StorageOption) bool) int {
	best := -1
	for i, o := range opts {
		if keep != nil && !keep(o) {
			continue
		}
		if best < 0 || o.NetValue > opts[best].NetValue {
			best = i
		}
	}
	return best
}

// lowestRisk prefers the most profitable option within the risk-factor
// limit and otherwise the option with the fewest factors.
func lowestRisk(opts []models.StorageOption, limit int) int {
	if i := highestNet(opts, func(o models.StorageOption) bool {
		return len(o.RiskFactors) <= limit
	}); i >= 0 {
		return i
	}

	best := 0
	for i, o := range opts {
		if len(o.RiskFactors) < len(opts[best].RiskFactors) {
			best = i
		}
	}
	return best
}

// balanced scores each option as its min-max normalized net value minus a
// weighted min-max normalized risk-factor count.
func balanced(opts []models.StorageOption, weight float64) int {
	netLo, netHi := opts[0].NetValue, opts[0].NetValue
	riskLo, riskHi := len(opts[0].RiskFactors), len(opts[0].RiskFactors)
	for _, o := range opts {
		netLo, netHi = min(netLo, o.NetValue), max(netHi, o.NetValue)
		riskLo, riskHi = min(riskLo, len(o.RiskFactors)), max(riskHi, len(o.RiskFactors))
	}

	score := func(o models.StorageOption) float64 {
		return minMax(o.NetValue, netLo, netHi) -
			weight*minMax(float64(len(o.RiskFactors)), float64(riskLo), float64(riskHi))
	}

	best := 0
	bestScore := score(opts[0])
	for i := 1; i < len(opts); i++ {
		if s := score(opts[i]); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// minMax scales v into [0,1]; a degenerate range maps to 0.5.
func minMax(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0.5
	}
	return (v - lo) / (hi - lo)
}

// alternativeFor picks the best option of a different method. When none was
// evaluated it returns a copy of the winner tagged with the other method and
// reports it as synthetic.
func alternativeFor(opts []models.StorageOption, winner int) (models.StorageOption, bool) {
	rec := opts[winner]
	if i := highestNet(opts, func(o models.StorageOption) bool {
		return o.Method != rec.Method
	}); i >= 0 {
		return opts[i], false
	}

	alt := rec
	alt.Method = rec.Method.Other()
	alt.RiskFactors = append([]string(nil), rec.RiskFactors...)
	return alt, true
}
