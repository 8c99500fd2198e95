package models

import "time"

// MarketCategory groups crops that trade through the same channels.
type MarketCategory string

const (
	CategoryCereal    MarketCategory = "cereal"
	CategoryVegetable MarketCategory = "vegetable"
	CategoryFruit     MarketCategory = "fruit"
	CategoryPulse     MarketCategory = "pulse"
	CategorySpice     MarketCategory = "spice"
)

// SeasonalPattern describes when a crop trades above or below its base price.
type SeasonalPattern struct {
	PeakMonths      []time.Month `json:"peak_months" yaml:"peak_months"`
	OffMonths       []time.Month `json:"off_months" yaml:"off_months"`
	PriceMultiplier float64      `json:"price_multiplier" yaml:"price_multiplier"`
}

// Crop is an immutable catalog entry.
type Crop struct {
	ID              string          `json:"id" yaml:"id"`
	Name            string          `json:"name" yaml:"name"`
	Perishability   int             `json:"perishability" yaml:"perishability"`
	OptimalTempC    float64         `json:"optimal_temp_c" yaml:"optimal_temp_c"`
	OptimalHumidity float64         `json:"optimal_humidity" yaml:"optimal_humidity"`
	BasePrice       float64         `json:"base_price" yaml:"base_price"`
	Category        MarketCategory  `json:"category" yaml:"category"`
	Seasonal        SeasonalPattern `json:"seasonal" yaml:"seasonal"`
}

// PerishabilityFraction maps the 1-10 score onto [0,1].
func (c *Crop) PerishabilityFraction() float64 {
	f := float64(c.Perishability) / 10
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// IsPeakMonth reports whether m is one of the crop's peak trading months.
func (c *Crop) IsPeakMonth(m time.Month) bool {
	for _, p := range c.Seasonal.PeakMonths {
		if p == m {
			return true
		}
	}
	return false
}

// IsOffMonth reports whether m is one of the crop's off months.
func (c *Crop) IsOffMonth(m time.Month) bool {
	for _, o := range c.Seasonal.OffMonths {
		if o == m {
			return true
		}
	}
	return false
}
