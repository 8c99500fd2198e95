package decision

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/afroash/agristore/internal/models"
)

const (
	singleOptionConfidence = 0.6
	maxBaseConfidence      = 0.9
	staleDataPenalty       = 0.9
	riskyOptionsPenalty    = 0.8
	riskyAverageFactors    = 3.0
)

// confidence scores how clear-cut the decision is, rounded to two decimals.
func confidence(opts []models.StorageOption, reading *models.Reading, now time.Time, p Params) float64 {
	if len(opts) < 2 {
		return singleOptionConfidence
	}

	nets := make([]float64, len(opts))
	factors := 0
	for i, o := range opts {
		nets[i] = o.NetValue
		factors += len(o.RiskFactors)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(nets)))

	margin := 0.0
	if best := nets[0]; best > 0 {
		margin = (best - nets[1]) / best
	}
	c := min(maxBaseConfidence, 0.5+margin)

	if reading != nil && reading.Age(now) > p.StaleReadingAge {
		c *= staleDataPenalty
	}
	if float64(factors)/float64(len(opts)) > riskyAverageFactors {
		c *= riskyOptionsPenalty
	}

	rounded, _ := decimal.NewFromFloat(c).Round(2).Float64()
	return rounded
}
