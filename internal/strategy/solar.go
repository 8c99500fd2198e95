package strategy

import (
	"fmt"

	"github.com/afroash/agristore/internal/models"
	"github.com/afroash/agristore/internal/risk"
)

const (
	solarFungalHumidity   = 70
	solarHeatTemperature  = 35
	solarMaxPerishability = 7
	solarMaxSpoilageRisk  = 0.8
	// share of the base storage cost scaled by the environmental multiplier
	solarSurchargeShare = 0.1
)

// SolarDrying is open-air drying. Its cost and spoilage depend on the
// environment through the risk engine.
type SolarDrying struct {
	params Params
	risk   *risk.Engine
}

// NewSolarDrying creates the solar drying strategy.
func NewSolarDrying(p Params, engine *risk.Engine) *SolarDrying {
	return &SolarDrying{params: p, risk: engine}
}

func (s *SolarDrying) Method() models.StorageMethod { return models.MethodSolarDrying }

func (s *SolarDrying) Params() Params { return s.params }

func (s *SolarDrying) assess(reading models.Reading, crop *models.Crop) risk.SolarDryingAssessment {
	return s.risk.AssessSolarDryingRisk(reading, crop, risk.DefaultExposureHours)
}

func (s *SolarDrying) TotalCost(inputs models.FarmerInputs, reading models.Reading, days int) float64 {
	days = normalizeDays(days)
	base := s.params.BaseCostPerDay * inputs.VolumeQuintals * float64(days)
	a := s.assess(reading, inputs.Crop)
	return fixedCost(s.params, inputs, days) + base*a.EnvironmentalMultiplier*solarSurchargeShare
}

func (s *SolarDrying) EstimateLosses(crop *models.Crop, reading models.Reading, volume, price float64, days int) float64 {
	a := s.assess(reading, crop)
	return compoundLoss(a.SpoilageRisk, volume, price, normalizeDays(days))
}

func (s *SolarDrying) NetValue(inputs models.FarmerInputs, reading models.Reading, price float64, days int) float64 {
	return inputs.VolumeQuintals*price - s.TotalCost(inputs, reading, days) -
		s.EstimateLosses(inputs.Crop, reading, inputs.VolumeQuintals, price, days)
}

func (s *SolarDrying) RiskFactors(crop *models.Crop, reading models.Reading, _ models.FarmerInputs) []string {
	factors := []string{}
	if reading.Humidity > solarFungalHumidity {
		factors = append(factors, fmt.Sprintf("High humidity (%.0f%%) increases risk of fungal growth", reading.Humidity))
	}
	if reading.Temperature > solarHeatTemperature {
		factors = append(factors, fmt.Sprintf("High temperature (%.1f°C) accelerates spoilage", reading.Temperature))
	}
	if crop != nil && crop.Perishability > solarMaxPerishability {
		factors = append(factors, fmt.Sprintf("%s is highly perishable and poorly suited to solar drying", crop.Name))
	}
	factors = append(factors, s.risk.DetailedRiskAnalysis(reading, crop).Warnings...)
	return append(factors, availabilityFactor(s.params)...)
}

func (s *SolarDrying) IsSuitable(inputs models.FarmerInputs, reading models.Reading) Suitability {
	suit := baseSuitability(s.params, inputs)
	if a := s.assess(reading, inputs.Crop); a.SpoilageRisk > solarMaxSpoilageRisk {
		suit.Suitable = false
		suit.Reasons = append(suit.Reasons, fmt.Sprintf("Spoilage risk %.0f%% exceeds the %.0f%% limit for solar drying", a.SpoilageRisk*100, solarMaxSpoilageRisk*100))
	}
	return suit
}

func (s *SolarDrying) GenerateOption(inputs models.FarmerInputs, reading models.Reading, price float64, days int) (models.StorageOption, error) {
	return buildOption(s, inputs, reading, price, days)
}
