package crops

import (
	"time"

	"github.com/afroash/agristore/internal/models"
)

// DefaultCatalog returns the built-in crops. Prices are per quintal.
func DefaultCatalog() []models.Crop {
	return []models.Crop{
		{
			ID: "wheat", Name: "Wheat", Perishability: 2,
			OptimalTempC: 15, OptimalHumidity: 50, BasePrice: 2500,
			Category: models.CategoryCereal,
			Seasonal: models.SeasonalPattern{
				PeakMonths:      []time.Month{time.October, time.November, time.December},
				OffMonths:       []time.Month{time.April, time.May},
				PriceMultiplier: 1.15,
			},
		},
		{
			ID: "rice", Name: "Rice", Perishability: 3,
			OptimalTempC: 15, OptimalHumidity: 55, BasePrice: 3000,
			Category: models.CategoryCereal,
			Seasonal: models.SeasonalPattern{
				PeakMonths:      []time.Month{time.July, time.August, time.September},
				OffMonths:       []time.Month{time.November, time.December},
				PriceMultiplier: 1.12,
			},
		},
		{
			ID: "maize", Name: "Maize", Perishability: 3,
			OptimalTempC: 12, OptimalHumidity: 55, BasePrice: 2100,
			Category: models.CategoryCereal,
			Seasonal: models.SeasonalPattern{
				PeakMonths:      []time.Month{time.August, time.September},
				OffMonths:       []time.Month{time.October, time.November},
				PriceMultiplier: 1.1,
			},
		},
		{
			ID: "pulses", Name: "Pulses", Perishability: 2,
			OptimalTempC: 18, OptimalHumidity: 45, BasePrice: 6500,
			Category: models.CategoryPulse,
			Seasonal: models.SeasonalPattern{
				PeakMonths:      []time.Month{time.June, time.July},
				OffMonths:       []time.Month{time.March},
				PriceMultiplier: 1.1,
			},
		},
		{
			ID: "potato", Name: "Potato", Perishability: 5,
			OptimalTempC: 4, OptimalHumidity: 90, BasePrice: 1200,
			Category: models.CategoryVegetable,
			Seasonal: models.SeasonalPattern{
				PeakMonths:      []time.Month{time.August, time.September, time.October},
				OffMonths:       []time.Month{time.February, time.March},
				PriceMultiplier: 1.3,
			},
		},
		{
			ID: "onion", Name: "Onion", Perishability: 5,
			OptimalTempC: 2, OptimalHumidity: 70, BasePrice: 1800,
			Category: models.CategoryVegetable,
			Seasonal: models.SeasonalPattern{
				PeakMonths:      []time.Month{time.September, time.October, time.November},
				OffMonths:       []time.Month{time.April, time.May},
				PriceMultiplier: 1.5,
			},
		},
		{
			ID: "tomato", Name: "Tomato", Perishability: 9,
			OptimalTempC: 12, OptimalHumidity: 90, BasePrice: 1500,
			Category: models.CategoryVegetable,
			Seasonal: models.SeasonalPattern{
				PeakMonths:      []time.Month{time.June, time.July},
				OffMonths:       []time.Month{time.December, time.January},
				PriceMultiplier: 1.6,
			},
		},
		{
			ID: "chilli", Name: "Chilli", Perishability: 6,
			OptimalTempC: 8, OptimalHumidity: 90, BasePrice: 8000,
			Category: models.CategorySpice,
			Seasonal: models.SeasonalPattern{
				PeakMonths:      []time.Month{time.May, time.June},
				OffMonths:       []time.Month{time.January, time.February},
				PriceMultiplier: 1.25,
			},
		},
		{
			ID: "banana", Name: "Banana", Perishability: 8,
			OptimalTempC: 13, OptimalHumidity: 90, BasePrice: 2000,
			Category: models.CategoryFruit,
			Seasonal: models.SeasonalPattern{
				PeakMonths:      []time.Month{time.April, time.May},
				OffMonths:       []time.Month{time.September},
				PriceMultiplier: 1.2,
			},
		},
		{
			ID: "mango", Name: "Mango", Perishability: 8,
			OptimalTempC: 12, OptimalHumidity: 88, BasePrice: 4000,
			Category: models.CategoryFruit,
			Seasonal: models.SeasonalPattern{
				PeakMonths:      []time.Month{time.February, time.March},
				OffMonths:       []time.Month{time.May, time.June},
				PriceMultiplier: 1.35,
			},
		},
	}
}
