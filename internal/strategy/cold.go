package strategy

import (
	"fmt"

	"github.com/afroash/agristore/internal/models"
)

const (
	coldFarDistanceKm = 200
	coldMinVolume     = 10
)

// ColdStorage is refrigerated storage. Its cost does not depend on the
// environment.
type ColdStorage struct {
	params Params
}

// NewColdStorage creates the cold storage strategy.
func NewColdStorage(p Params) *ColdStorage {
	return &ColdStorage{params: p}
}

func (c *ColdStorage) Method() models.StorageMethod { return models.MethodColdStorage }

func (c *ColdStorage) Params() Params { return c.params }

func (c *ColdStorage) TotalCost(inputs models.FarmerInputs, _ models.Reading, days int) float64 {
	return fixedCost(c.params, inputs, normalizeDays(days))
}

func (c *ColdStorage) EstimateLosses(_ *models.Crop, _ models.Reading, volume, price float64, days int) float64 {
	return compoundLoss(c.params.BaseSpoilageRate, volume, price, normalizeDays(days))
}

func (c *ColdStorage) NetValue(inputs models.FarmerInputs, reading models.Reading, price float64, days int) float64 {
	return inputs.VolumeQuintals*price - c.TotalCost(inputs, reading, days) -
		c.EstimateLosses(inputs.Crop, reading, inputs.VolumeQuintals, price, days)
}

func (c *ColdStorage) RiskFactors(_ *models.Crop, _ models.Reading, inputs models.FarmerInputs) []string {
	factors := []string{}
	if inputs.DistanceKm > coldFarDistanceKm {
		factors = append(factors, fmt.Sprintf("High transport cost: %.0f km to the cold storage hub", inputs.DistanceKm))
	}
	if inputs.VolumeQuintals < coldMinVolume {
		factors = append(factors, fmt.Sprintf("Small volume (%.1f quintals) may not justify cold storage costs", inputs.VolumeQuintals))
	}
	return append(factors, availabilityFactor(c.params)...)
}

func (c *ColdStorage) IsSuitable(inputs models.FarmerInputs, _ models.Reading) Suitability {
	return baseSuitability(c.params, inputs)
}

func (c *ColdStorage) GenerateOption(inputs models.FarmerInputs, reading models.Reading, price float64, days int) (models.StorageOption, error) {
	return buildOption(c, inputs, reading, price, days)
}
