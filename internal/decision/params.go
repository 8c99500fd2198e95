package decision

import (
	"fmt"
	"time"

	"github.com/afroash/agristore/internal/strategy"
)

// RiskTolerance shapes how far selection favours raw profit over the
// number of risk factors.
type RiskTolerance string

const (
	ToleranceLow    RiskTolerance = "low"
	ToleranceMedium RiskTolerance = "medium"
	ToleranceHigh   RiskTolerance = "high"
)

// Valid reports whether t is one of the known tolerances.
func (t RiskTolerance) Valid() bool {
	switch t {
	case ToleranceLow, ToleranceMedium, ToleranceHigh:
		return true
	}
	return false
}

// Params configure selection, explanation and validation.
type Params struct {
	RiskTolerance    RiskTolerance
	PrioritizeProfit bool
	StorageDays      int

	// weight of the normalized risk-factor count in the balanced policy
	RiskPenaltyWeight float64
	// net value gap above which the margin is cited in the reasoning
	ProfitGapThreshold float64
	// low-tolerance policy accepts options with at most this many risk factors
	MaxRiskFactorsLowTolerance int

	MaxReadingAge   time.Duration
	MaxMarketAge    time.Duration
	StaleReadingAge time.Duration
}

// DefaultParams returns medium tolerance, profit first, 30 days.
func DefaultParams() Params {
	return Params{
		RiskTolerance:              ToleranceMedium,
		PrioritizeProfit:           true,
		StorageDays:                strategy.DefaultStorageDays,
		RiskPenaltyWeight:          0.3,
		ProfitGapThreshold:         1000,
		MaxRiskFactorsLowTolerance: 2,
		MaxReadingAge:              24 * time.Hour,
		MaxMarketAge:               7 * 24 * time.Hour,
		StaleReadingAge:            6 * time.Hour,
	}
}

// Validate checks the parameters are usable.
func (p Params) Validate() error {
	if !p.RiskTolerance.Valid() {
		return fmt.Errorf("unknown risk tolerance %q", p.RiskTolerance)
	}
	if p.StorageDays <= 0 {
		return fmt.Errorf("storage days must be positive")
	}
	if p.RiskPenaltyWeight < 0 {
		return fmt.Errorf("risk penalty weight must not be negative")
	}
	if p.MaxReadingAge <= 0 || p.MaxMarketAge <= 0 || p.StaleReadingAge <= 0 {
		return fmt.Errorf("data age limits must be positive")
	}
	return nil
}
