package decision

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/afroash/agristore/internal/models"
)

const (
	humidReasonAbove      = 70.0
	hotReasonAbove        = 35.0
	farDistanceKm         = 100.0
	perishableReasonAbove = 7
)

// buildReasoning joins every applicable explanation, in a fixed order.
func buildReasoning(dc Context, rec, alt models.StorageOption, synthetic bool, p Params) string {
	var parts []string
	r := dc.Reading
	crop := dc.Inputs.Crop

	if rec.Method == models.MethodColdStorage && r.Humidity > humidReasonAbove {
		parts = append(parts, fmt.Sprintf("High humidity (%.0f%%) makes open-air drying risky, so cold storage protects the lot.", r.Humidity))
	}
	if rec.Method == models.MethodColdStorage && r.Temperature > hotReasonAbove {
		parts = append(parts, fmt.Sprintf("High temperature (%.1f°C) would accelerate spoilage during drying.", r.Temperature))
	}
	if gap := rec.NetValue - alt.NetValue; !synthetic && gap > p.ProfitGapThreshold {
		parts = append(parts, fmt.Sprintf("%s yields %s more net value than %s.",
			rec.Method.Label(), decimal.NewFromFloat(gap).StringFixed(2), alt.Method.Label()))
	}
	if rec.Method == models.MethodSolarDrying && dc.Inputs.DistanceKm > farDistanceKm {
		parts = append(parts, fmt.Sprintf("At %.0f km from the market, cold storage logistics costs outweigh its benefits.", dc.Inputs.DistanceKm))
	}
	if rec.Method == models.MethodColdStorage && crop.Perishability > perishableReasonAbove {
		parts = append(parts, fmt.Sprintf("%s is highly perishable (%d/10) and needs temperature control.", crop.Name, crop.Perishability))
	}
	if !synthetic && len(rec.RiskFactors) < len(alt.RiskFactors) {
		parts = append(parts, fmt.Sprintf("%s carries fewer risk factors (%d vs %d).",
			rec.Method.Label(), len(rec.RiskFactors), len(alt.RiskFactors)))
	}

	if len(parts) == 0 {
		return fmt.Sprintf("%s offers the best balance of cost and risk for this lot.", rec.Method.Label())
	}
	return strings.Join(parts, " ")
}
