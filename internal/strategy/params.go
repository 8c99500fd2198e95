package strategy

import "fmt"

// DefaultStorageDays is the horizon used when callers pass zero days.
const DefaultStorageDays = 30

// Params are the economics of one storage method. Costs are per quintal
// unless noted.
type Params struct {
	BaseCostPerDay     float64 `json:"base_cost_per_day"`
	LogisticsPerKm     float64 `json:"logistics_per_km"`
	SetupCost          float64 `json:"setup_cost"`
	MaintenancePerDay  float64 `json:"maintenance_per_day"`
	BaseSpoilageRate   float64 `json:"base_spoilage_rate"`
	CapacityQuintals   float64 `json:"capacity_quintals"`
	AvailabilityFactor float64 `json:"availability_factor"`
}

// DefaultColdStorageParams returns the stock cold storage economics.
func DefaultColdStorageParams() Params {
	return Params{
		BaseCostPerDay:     15,
		LogisticsPerKm:     2,
		SetupCost:          500,
		MaintenancePerDay:  50,
		BaseSpoilageRate:   0.001,
		CapacityQuintals:   1000,
		AvailabilityFactor: 0.8,
	}
}

// DefaultSolarDryingParams returns the stock solar drying economics.
func DefaultSolarDryingParams() Params {
	return Params{
		BaseCostPerDay:     2,
		LogisticsPerKm:     0.5,
		SetupCost:          100,
		MaintenancePerDay:  5,
		BaseSpoilageRate:   0.05,
		CapacityQuintals:   500,
		AvailabilityFactor: 0.95,
	}
}

// Overrides is a partial cost table from configuration. Nil fields keep
// the method's default, so an explicit zero is honored.
type Overrides struct {
	BaseCostPerDay     *float64 `yaml:"base_cost_per_day" toml:"base_cost_per_day"`
	LogisticsPerKm     *float64 `yaml:"logistics_per_km" toml:"logistics_per_km"`
	SetupCost          *float64 `yaml:"setup_cost" toml:"setup_cost"`
	MaintenancePerDay  *float64 `yaml:"maintenance_per_day" toml:"maintenance_per_day"`
	BaseSpoilageRate   *float64 `yaml:"base_spoilage_rate" toml:"base_spoilage_rate"`
	CapacityQuintals   *float64 `yaml:"capacity_quintals" toml:"capacity_quintals"`
	AvailabilityFactor *float64 `yaml:"availability_factor" toml:"availability_factor"`
}

// Apply returns def with every set field replaced.
func (o Overrides) Apply(def Params) Params {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&def.BaseCostPerDay, o.BaseCostPerDay)
	set(&def.LogisticsPerKm, o.LogisticsPerKm)
	set(&def.SetupCost, o.SetupCost)
	set(&def.MaintenancePerDay, o.MaintenancePerDay)
	set(&def.BaseSpoilageRate, o.BaseSpoilageRate)
	set(&def.CapacityQuintals, o.CapacityQuintals)
	set(&def.AvailabilityFactor, o.AvailabilityFactor)
	return def
}

// Validate rejects negative costs and availability outside [0,1].
func (p Params) Validate() error {
	for name, v := range map[string]float64{
		"base_cost_per_day":   p.BaseCostPerDay,
		"logistics_per_km":    p.LogisticsPerKm,
		"setup_cost":          p.SetupCost,
		"maintenance_per_day": p.MaintenancePerDay,
		"base_spoilage_rate":  p.BaseSpoilageRate,
		"capacity_quintals":   p.CapacityQuintals,
	} {
		if !(v >= 0) {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if !(p.AvailabilityFactor >= 0 && p.AvailabilityFactor <= 1) {
		return fmt.Errorf("availability_factor must be between 0 and 1")
	}
	return nil
}
