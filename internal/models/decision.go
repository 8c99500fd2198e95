package models

import "time"

// UrgencyLevel is how soon the farmer needs to act on the lot.
type UrgencyLevel string

const (
	UrgencyLow      UrgencyLevel = "low"
	UrgencyMedium   UrgencyLevel = "medium"
	UrgencyHigh     UrgencyLevel = "high"
	UrgencyCritical UrgencyLevel = "critical"
)

// FarmerInputs describes the lot a recommendation is requested for.
type FarmerInputs struct {
	Crop           *Crop        `json:"crop"`
	DistanceKm     float64      `json:"distance_km"`
	VolumeQuintals float64      `json:"volume_quintals"`
	Urgency        UrgencyLevel `json:"urgency"`
}

// StorageMethod tags a storage strategy.
type StorageMethod string

const (
	MethodColdStorage StorageMethod = "cold_storage"
	MethodSolarDrying StorageMethod = "solar_drying"
)

// Other returns the opposite method of the closed pair.
func (m StorageMethod) Other() StorageMethod {
	if m == MethodColdStorage {
		return MethodSolarDrying
	}
	return MethodColdStorage
}

// Label is the human readable name used in reasoning text.
func (m StorageMethod) Label() string {
	switch m {
	case MethodColdStorage:
		return "Cold Storage"
	case MethodSolarDrying:
		return "Solar Drying"
	default:
		return string(m)
	}
}

// StorageOption is the economics of one storage method for one request.
type StorageOption struct {
	Method       StorageMethod `json:"method"`
	TotalCost    float64       `json:"total_cost"`
	ExpectedLoss float64       `json:"expected_loss"`
	NetValue     float64       `json:"net_value"`
	RiskFactors  []string      `json:"risk_factors"`
}

// EconomicVerdict is the result of one decision flow.
type EconomicVerdict struct {
	ID                   string          `json:"id"`
	CropID               string          `json:"crop_id"`
	Urgency              UrgencyLevel    `json:"urgency,omitempty"`
	Recommended          StorageOption   `json:"recommended"`
	Alternative          StorageOption   `json:"alternative"`
	SyntheticAlternative bool            `json:"synthetic_alternative"`
	Options              []StorageOption `json:"options"`
	Reasoning            string          `json:"reasoning"`
	Confidence           float64         `json:"confidence"`
	PotentialSavings     float64         `json:"potential_savings"`
	GeneratedAt          time.Time       `json:"generated_at"`
}
