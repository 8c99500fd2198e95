package risk

import (
	"fmt"
	"math"

	"github.com/afroash/agristore/internal/models"
)

// highPerishability is the score above which a crop is flagged as highly
// perishable.
const highPerishability = 7

// Factors are the raw inputs of the spoilage-risk blend.
type Factors struct {
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	Perishability float64 `json:"perishability"`
	Exposure      float64 `json:"exposure"`
}

// Analysis is the detailed, human-facing view of a reading's risk.
type Analysis struct {
	RiskLevel         models.RiskLevel `json:"risk_level"`
	Factors           Factors          `json:"factors"`
	Recommendations   []string         `json:"recommendations"`
	Warnings          []string         `json:"warnings"`
	TimeToActionHours float64          `json:"time_to_action_hours"`
}

// DetailedRiskAnalysis explains the risk of a reading for a crop. It does
// not touch the rolling history.
func (e *Engine) DetailedRiskAnalysis(r models.Reading, crop *models.Crop) Analysis {
	a := e.assess(r, crop, DefaultExposureHours)
	level := e.RiskLevel(r)

	analysis := Analysis{
		RiskLevel: level,
		Factors: Factors{
			Temperature:   a.TemperatureScore,
			Humidity:      a.HumidityScore,
			Perishability: a.PerishabilityFactor,
			Exposure:      a.ExposureFactor,
		},
		Recommendations: []string{},
		Warnings:        e.warnings(r),
	}

	temp := e.thresholds.Temperature
	hum := e.thresholds.Humidity

	if r.Temperature > temp.Optimal.Max {
		analysis.Recommendations = append(analysis.Recommendations,
			"Shade the drying area during peak afternoon heat")
	}
	if r.Humidity > hum.Optimal.Max {
		analysis.Recommendations = append(analysis.Recommendations,
			"Improve ventilation and cover produce overnight to limit moisture uptake")
	}
	if r.Temperature > temp.Warning.Max || r.Humidity > hum.Warning.Max {
		analysis.Recommendations = append(analysis.Recommendations,
			"Consider cold storage as an alternative to open-air drying")
	}
	if crop != nil && crop.Perishability > highPerishability {
		analysis.Recommendations = append(analysis.Recommendations,
			fmt.Sprintf("%s is highly perishable (score %d): move it into a cold chain or to market quickly", crop.Name, crop.Perishability))
	}
	if level == models.RiskRed {
		analysis.Recommendations = append(analysis.Recommendations,
			"URGENT: conditions are critical, act immediately to protect the lot")
	}
	if len(analysis.Recommendations) == 0 {
		analysis.Recommendations = append(analysis.Recommendations,
			"Conditions are favorable; continue routine monitoring")
	}

	switch level {
	case models.RiskRed:
		analysis.TimeToActionHours = 0
	case models.RiskYellow:
		analysis.TimeToActionHours = math.Max(1, 24*(1-a.PerishabilityFactor))
	default:
		analysis.TimeToActionHours = 72
	}

	return analysis
}

// warnings lists one message per quantity that left its warning band,
// naming the offending value.
func (e *Engine) warnings(r models.Reading) []string {
	out := []string{}
	if w := bandWarning("Temperature", "°C", r.Temperature, e.thresholds.Temperature); w != "" {
		out = append(out, w)
	}
	if w := bandWarning("Humidity", "%", r.Humidity, e.thresholds.Humidity); w != "" {
		out = append(out, w)
	}
	return out
}

func bandWarning(label, unit string, v float64, qt QuantityThresholds) string {
	switch {
	case !qt.Critical.Contains(v):
		return fmt.Sprintf("%s %.1f%s is outside the critical range %s", label, v, unit, qt.Critical)
	case v > qt.Warning.Max:
		return fmt.Sprintf("%s %.1f%s is above the warning limit of %g%s", label, v, unit, qt.Warning.Max, unit)
	case v < qt.Warning.Min:
		return fmt.Sprintf("%s %.1f%s is below the warning limit of %g%s", label, v, unit, qt.Warning.Min, unit)
	default:
		return ""
	}
}
