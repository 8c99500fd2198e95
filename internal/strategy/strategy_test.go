package strategy

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/agristore/internal/crops"
	"github.com/afroash/agristore/internal/models"
	"github.com/afroash/agristore/internal/risk"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestRegistry() *Registry {
	engine := risk.NewEngine(risk.DefaultThresholds(), zerolog.Nop())
	return NewRegistry(DefaultColdStorageParams(), DefaultSolarDryingParams(), engine)
}

func mustGet(t *testing.T, r *Registry, m models.StorageMethod) Strategy {
	t.Helper()
	s, ok := r.Get(m)
	if !ok {
		t.Fatalf("strategy %s missing", m)
	}
	return s
}

func cropByID(t *testing.T, id string) *models.Crop {
	t.Helper()
	c, ok := crops.Default().Lookup(id)
	if !ok {
		t.Fatalf("crop %q missing", id)
	}
	return c
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func wheatInputs(t *testing.T) (models.FarmerInputs, models.Reading) {
	inputs := models.FarmerInputs{Crop: cropByID(t, "wheat"), DistanceKm: 30, VolumeQuintals: 50}
	reading := models.Reading{SensorID: "silo-01", Temperature: 22, Humidity: 50, Timestamp: testNow}
	return inputs, reading
}

func TestRegistryOrder(t *testing.T) {
	all := newTestRegistry().All()
	if len(all) != 2 {
		t.Fatalf("len(All()) = %d, want 2", len(all))
	}
	if all[0].Method() != models.MethodColdStorage || all[1].Method() != models.MethodSolarDrying {
		t.Errorf("order = %s, %s", all[0].Method(), all[1].Method())
	}
}

func TestColdStorage_WheatScenario(t *testing.T) {
	cold := mustGet(t, newTestRegistry(), models.MethodColdStorage)
	inputs, reading := wheatInputs(t)

	// 15*50*30 + 2*50*30 + 500 + 50*30
	if got := cold.TotalCost(inputs, reading, 30); got != 27500 {
		t.Errorf("TotalCost = %v, want 27500", got)
	}

	wantLoss := 50 * (1 - math.Pow(1-0.001/30, 30)) * 2500
	if got := cold.EstimateLosses(inputs.Crop, reading, 50, 2500, 30); !near(got, wantLoss) {
		t.Errorf("EstimateLosses = %v, want %v", got, wantLoss)
	}

	if got := cold.NetValue(inputs, reading, 2500, 30); !near(got, 125000-27500-wantLoss) {
		t.Errorf("NetValue = %v", got)
	}
}

func TestSolarDrying_WheatScenario(t *testing.T) {
	solar := mustGet(t, newTestRegistry(), models.MethodSolarDrying)
	inputs, reading := wheatInputs(t)

	// 2*50*30 + 0.5*50*30 + 100 + 5*30, plus 3000 * 1.0 * 0.1
	if got := solar.TotalCost(inputs, reading, 30); !near(got, 4300) {
		t.Errorf("TotalCost = %v, want 4300", got)
	}

	wantLoss := 50 * (1 - math.Pow(1-0.11/30, 30)) * 2500
	if got := solar.EstimateLosses(inputs.Crop, reading, 50, 2500, 30); !near(got, wantLoss) {
		t.Errorf("EstimateLosses = %v, want %v", got, wantLoss)
	}

	opt, err := solar.GenerateOption(inputs, reading, 2500, 30)
	if err != nil {
		t.Fatalf("GenerateOption failed: %v", err)
	}
	if !near(opt.NetValue, 125000-4300-wantLoss) {
		t.Errorf("NetValue = %v", opt.NetValue)
	}
	if len(opt.RiskFactors) != 0 {
		t.Errorf("RiskFactors = %v, want none", opt.RiskFactors)
	}

	cold := mustGet(t, newTestRegistry(), models.MethodColdStorage)
	if cold.NetValue(inputs, reading, 2500, 30) >= opt.NetValue {
		t.Error("solar drying should beat cold storage for optimal wheat")
	}
}

func TestVolumeLinearity(t *testing.T) {
	reg := newTestRegistry()
	inputs, reading := wheatInputs(t)
	scaled := inputs
	const k = 3.5
	scaled.VolumeQuintals *= k

	for _, s := range reg.All() {
		t.Run(string(s.Method()), func(t *testing.T) {
			p := s.Params()
			fixed := p.SetupCost + p.MaintenancePerDay*30

			base := s.TotalCost(inputs, reading, 30) - fixed
			big := s.TotalCost(scaled, reading, 30) - fixed
			if !near(big, k*base) {
				t.Errorf("volume-dependent cost = %v, want %v", big, k*base)
			}

			loss := s.EstimateLosses(inputs.Crop, reading, inputs.VolumeQuintals, 2500, 30)
			bigLoss := s.EstimateLosses(inputs.Crop, reading, scaled.VolumeQuintals, 2500, 30)
			if !near(bigLoss, k*loss) {
				t.Errorf("losses = %v, want %v", bigLoss, k*loss)
			}
		})
	}
}

func TestDefaultDays(t *testing.T) {
	cold := mustGet(t, newTestRegistry(), models.MethodColdStorage)
	inputs, reading := wheatInputs(t)
	if cold.TotalCost(inputs, reading, 0) != cold.TotalCost(inputs, reading, DefaultStorageDays) {
		t.Error("zero days should use the default horizon")
	}
}

func TestSolarDrying_TomatoUnsuitable(t *testing.T) {
	solar := mustGet(t, newTestRegistry(), models.MethodSolarDrying)
	inputs := models.FarmerInputs{Crop: cropByID(t, "tomato"), DistanceKm: 150, VolumeQuintals: 10}
	reading := models.Reading{Temperature: 38, Humidity: 85, Timestamp: testNow}

	suit := solar.IsSuitable(inputs, reading)
	if suit.Suitable {
		t.Fatal("solar drying should be unsuitable for tomato in critical conditions")
	}
	if len(suit.Reasons) != 1 || !strings.Contains(suit.Reasons[0], "Spoilage risk") {
		t.Errorf("Reasons = %v", suit.Reasons)
	}

	factors := solar.RiskFactors(inputs.Crop, reading, inputs)
	joined := strings.Join(factors, "\n")
	for _, want := range []string{"fungal", "accelerates spoilage", "highly perishable", "Temperature 38.0", "Humidity 85.0"} {
		if !strings.Contains(joined, want) {
			t.Errorf("risk factors missing %q: %v", want, factors)
		}
	}
}

func TestIsSuitable_ReasonsAreCumulative(t *testing.T) {
	engine := risk.NewEngine(risk.DefaultThresholds(), zerolog.Nop())
	p := DefaultSolarDryingParams()
	p.AvailabilityFactor = 0.3
	solar := NewSolarDrying(p, engine)

	inputs := models.FarmerInputs{Crop: cropByID(t, "tomato"), DistanceKm: 10, VolumeQuintals: 900}
	reading := models.Reading{Temperature: 44, Humidity: 95}

	suit := solar.IsSuitable(inputs, reading)
	if suit.Suitable {
		t.Fatal("expected unsuitable")
	}
	if len(suit.Reasons) != 3 {
		t.Errorf("Reasons = %v, want capacity, availability and spoilage", suit.Reasons)
	}
}

func TestColdStorage_RiskFactors(t *testing.T) {
	p := DefaultColdStorageParams()
	p.AvailabilityFactor = 0.6
	cold := NewColdStorage(p)

	tests := []struct {
		name     string
		distance float64
		volume   float64
		want     int
	}{
		{"near and large", 50, 100, 1},
		{"far", 250, 100, 2},
		{"small", 50, 5, 2},
		{"far and small", 250, 5, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs := models.FarmerInputs{DistanceKm: tt.distance, VolumeQuintals: tt.volume}
			got := cold.RiskFactors(nil, models.Reading{}, inputs)
			if len(got) != tt.want {
				t.Errorf("RiskFactors = %v, want %d entries", got, tt.want)
			}
		})
	}

	def := NewColdStorage(DefaultColdStorageParams())
	if got := def.RiskFactors(nil, models.Reading{}, models.FarmerInputs{DistanceKm: 50, VolumeQuintals: 100}); len(got) != 0 {
		t.Errorf("default availability 0.8 should not be flagged: %v", got)
	}
}

func TestColdStorage_CapacityExceeded(t *testing.T) {
	cold := NewColdStorage(DefaultColdStorageParams())
	suit := cold.IsSuitable(models.FarmerInputs{VolumeQuintals: 1500}, models.Reading{})
	if suit.Suitable || len(suit.Reasons) != 1 {
		t.Errorf("IsSuitable = %+v", suit)
	}
}

func TestGenerateOption_NonFinite(t *testing.T) {
	cold := NewColdStorage(DefaultColdStorageParams())
	inputs := models.FarmerInputs{DistanceKm: 10, VolumeQuintals: math.Inf(1)}
	if _, err := cold.GenerateOption(inputs, models.Reading{}, 2500, 30); err == nil {
		t.Error("expected error for non-finite economics")
	}
}

func TestOverridesAndValidate(t *testing.T) {
	setup, zero := 900.0, 0.0
	p := Overrides{SetupCost: &setup, MaintenancePerDay: &zero}.Apply(DefaultColdStorageParams())
	if p.SetupCost != 900 {
		t.Errorf("SetupCost = %v, want override kept", p.SetupCost)
	}
	if p.MaintenancePerDay != 0 {
		t.Errorf("MaintenancePerDay = %v, want explicit zero kept", p.MaintenancePerDay)
	}
	if p.BaseCostPerDay != 15 {
		t.Errorf("BaseCostPerDay = %v, want default 15", p.BaseCostPerDay)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}

	p.AvailabilityFactor = 1.2
	if err := p.Validate(); err == nil {
		t.Error("Validate should reject availability above 1")
	}
	p.AvailabilityFactor = 0.5
	p.SetupCost = -1
	if err := p.Validate(); err == nil {
		t.Error("Validate should reject negative cost")
	}
	p.SetupCost = math.NaN()
	if err := p.Validate(); err == nil {
		t.Error("Validate should reject NaN cost")
	}
}
