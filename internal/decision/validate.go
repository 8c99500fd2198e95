package decision

import (
	"fmt"
	"time"

	"github.com/afroash/agristore/internal/models"
)

const (
	maxDistanceKm = 1000
	maxVolume     = 10000
)

// Validate runs every input check and reports all violations at once.
// Range checks are written so that NaN fails them.
func Validate(dc Context, p Params, now time.Time) error {
	var v []string

	if dc.Inputs.Crop == nil {
		v = append(v, "crop is required")
	}
	if d := dc.Inputs.DistanceKm; !(d > 0 && d <= maxDistanceKm) {
		v = append(v, fmt.Sprintf("distance must be greater than 0 and at most %d km (got %g)", maxDistanceKm, d))
	}
	if vol := dc.Inputs.VolumeQuintals; !(vol > 0 && vol <= maxVolume) {
		v = append(v, fmt.Sprintf("volume must be greater than 0 and at most %d quintals (got %g)", maxVolume, vol))
	}

	if r := dc.Reading; r == nil {
		v = append(v, "environmental reading is required")
	} else {
		if !(r.Temperature >= models.MinTemperature && r.Temperature <= models.MaxTemperature) {
			v = append(v, fmt.Sprintf("temperature must be between %g and %g °C (got %g)", models.MinTemperature, models.MaxTemperature, r.Temperature))
		}
		if !(r.Humidity >= models.MinHumidity && r.Humidity <= models.MaxHumidity) {
			v = append(v, fmt.Sprintf("humidity must be between %g and %g%% (got %g)", models.MinHumidity, models.MaxHumidity, r.Humidity))
		}
		if r.Age(now) > p.MaxReadingAge {
			v = append(v, fmt.Sprintf("environmental reading is older than %s", humanDuration(p.MaxReadingAge)))
		}
	}

	if m := dc.Market; m == nil || !(m.CurrentPrice > 0) {
		v = append(v, "market price must be greater than 0")
	}
	if m := dc.Market; m != nil && m.IsStale(now, p.MaxMarketAge) {
		v = append(v, fmt.Sprintf("market data is older than %s", humanDuration(p.MaxMarketAge)))
	}

	if len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	return nil
}

func humanDuration(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	if d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	return d.String()
}
