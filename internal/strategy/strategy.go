// Package strategy models the economics of each storage method.
//
// Every method is a pure function of farmer inputs, an environmental
// reading, a market price and a storage horizon. The only state is the
// injected parameter table.
package strategy

import (
	"fmt"
	"math"

	"github.com/afroash/agristore/internal/models"
	"github.com/afroash/agristore/internal/risk"
)

const (
	// availability below this adds a risk factor
	limitedAvailability = 0.8
	// availability below this makes a method unsuitable
	minAvailability = 0.5
)

// Strategy is the capability shared by every storage method.
type Strategy interface {
	Method() models.StorageMethod
	Params() Params
	TotalCost(inputs models.FarmerInputs, reading models.Reading, days int) float64
	EstimateLosses(crop *models.Crop, reading models.Reading, volume, price float64, days int) float64
	NetValue(inputs models.FarmerInputs, reading models.Reading, price float64, days int) float64
	RiskFactors(crop *models.Crop, reading models.Reading, inputs models.FarmerInputs) []string
	IsSuitable(inputs models.FarmerInputs, reading models.Reading) Suitability
	GenerateOption(inputs models.FarmerInputs, reading models.Reading, price float64, days int) (models.StorageOption, error)
}

// Suitability lists every constraint a method violates for a request.
type Suitability struct {
	Suitable bool     `json:"suitable"`
	Reasons  []string `json:"reasons"`
}

// Registry is the fixed, ordered set of strategies the decision engine
// evaluates. Order matters: it is the tie-break order.
type Registry struct {
	strategies []Strategy
}

// NewRegistry builds the standard registry: cold storage then solar drying.
func NewRegistry(cold, solar Params, engine *risk.Engine) *Registry {
	return &Registry{strategies: []Strategy{
		NewColdStorage(cold),
		NewSolarDrying(solar, engine),
	}}
}

// NewRegistryOf builds a registry from arbitrary strategies.
func NewRegistryOf(strategies ...Strategy) *Registry {
	return &Registry{strategies: append([]Strategy(nil), strategies...)}
}

// All returns the strategies in evaluation order.
func (r *Registry) All() []Strategy {
	return append([]Strategy(nil), r.strategies...)
}

// Get returns the strategy for a method.
func (r *Registry) Get(m models.StorageMethod) (Strategy, bool) {
	for _, s := range r.strategies {
		if s.Method() == m {
			return s, true
		}
	}
	return nil, false
}

func normalizeDays(days int) int {
	if days <= 0 {
		return DefaultStorageDays
	}
	return days
}

// fixedCost is the environment-independent part of TotalCost.
func fixedCost(p Params, inputs models.FarmerInputs, days int) float64 {
	d := float64(days)
	return p.BaseCostPerDay*inputs.VolumeQuintals*d +
		p.LogisticsPerKm*inputs.VolumeQuintals*inputs.DistanceKm +
		p.SetupCost +
		p.MaintenancePerDay*d
}

// compoundLoss treats rate as a period total, spreads it evenly over the
// days and compounds it back.
func compoundLoss(rate, volume, price float64, days int) float64 {
	d := float64(days)
	daily := rate / d
	total := 1 - math.Pow(1-daily, d)
	return volume * total * price
}

func availabilityFactor(p Params) []string {
	if p.AvailabilityFactor < limitedAvailability {
		return []string{fmt.Sprintf("Availability limited: access to this method is %.0f%%", p.AvailabilityFactor*100)}
	}
	return nil
}

func baseSuitability(p Params, inputs models.FarmerInputs) Suitability {
	s := Suitability{Suitable: true, Reasons: []string{}}
	if inputs.VolumeQuintals > p.CapacityQuintals {
		s.Suitable = false
		s.Reasons = append(s.Reasons, fmt.Sprintf("Volume %.0f quintals exceeds capacity of %.0f quintals", inputs.VolumeQuintals, p.CapacityQuintals))
	}
	if p.AvailabilityFactor < minAvailability {
		s.Suitable = false
		s.Reasons = append(s.Reasons, fmt.Sprintf("Availability %.0f%% is below the %.0f%% minimum", p.AvailabilityFactor*100, minAvailability*100))
	}
	return s
}

func buildOption(s Strategy, inputs models.FarmerInputs, reading models.Reading, price float64, days int) (models.StorageOption, error) {
	days = normalizeDays(days)
	cost := s.TotalCost(inputs, reading, days)
	loss := s.EstimateLosses(inputs.Crop, reading, inputs.VolumeQuintals, price, days)
	net := inputs.VolumeQuintals*price - cost - loss

	for name, v := range map[string]float64{"total cost": cost, "expected loss": loss, "net value": net} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.StorageOption{}, fmt.Errorf("%s: %s is not finite", s.Method(), name)
		}
	}

	return models.StorageOption{
		Method:       s.Method(),
		TotalCost:    cost,
		ExpectedLoss: loss,
		NetValue:     net,
		RiskFactors:  s.RiskFactors(inputs.Crop, reading, inputs),
	}, nil
}
