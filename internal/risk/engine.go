// Package risk turns temperature and humidity readings into normalized
// spoilage-risk scores for a given crop.
//
// Scores are continuous: a reading inside the optimal band scores 0 and the
// score grows linearly with the distance from the nearest optimal bound,
// reaching 1 at the far edge of the critical band. The engine never fails on
// out-of-range input; everything is clamped.
package risk

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/agristore/internal/buffer"
	"github.com/afroash/agristore/internal/models"
)

const (
	// DefaultHistoryCapacity is the number of readings kept per sensor.
	DefaultHistoryCapacity = 100
	// DefaultExposureHours is the exposure assumed by AssessSolarDryingRisk.
	DefaultExposureHours = 24.0
	// MaxExposureHours caps the time-exposure factor.
	MaxExposureHours = 72.0

	weightTemperature   = 0.30
	weightHumidity      = 0.30
	weightPerishability = 0.25
	weightExposure      = 0.15
)

// Engine scores environmental risk and keeps a bounded per-sensor history.
type Engine struct {
	thresholds Thresholds
	logger     zerolog.Logger
	capacity   int
	now        func() time.Time

	mu      sync.RWMutex
	history map[string]*buffer.Ring[models.Reading]
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistoryCapacity sets the per-sensor rolling history size.
func WithHistoryCapacity(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.capacity = n
		}
	}
}

// WithClock replaces time.Now for trend windows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a risk engine using the given thresholds.
func NewEngine(thresholds Thresholds, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		thresholds: thresholds,
		logger:     logger,
		capacity:   DefaultHistoryCapacity,
		now:        time.Now,
		history:    make(map[string]*buffer.Ring[models.Reading]),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Thresholds returns the engine's threshold table.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// RiskScore returns 0 inside the optimal band, otherwise the distance to
// the nearest optimal bound normalized by the wider optimal-to-critical gap,
// clamped to [0,1].
func (e *Engine) RiskScore(q Quantity, value float64) float64 {
	qt := e.thresholds.For(q)
	if qt.Optimal.Contains(value) {
		return 0
	}

	var distance float64
	if value < qt.Optimal.Min {
		distance = qt.Optimal.Min - value
	} else {
		distance = value - qt.Optimal.Max
	}

	span := math.Max(qt.Optimal.Min-qt.Critical.Min, qt.Critical.Max-qt.Optimal.Max)
	if span <= 0 {
		return 1
	}
	return clamp01(distance / span)
}

// quantityLevel classifies a single quantity. Anything outside the warning
// band counts as critical.
func (e *Engine) quantityLevel(q Quantity, value float64) models.RiskLevel {
	qt := e.thresholds.For(q)
	switch {
	case qt.Optimal.Contains(value):
		return models.RiskGreen
	case qt.Warning.Contains(value):
		return models.RiskYellow
	default:
		return models.RiskRed
	}
}

// RiskLevel combines temperature and humidity. Critical wins over warning.
func (e *Engine) RiskLevel(r models.Reading) models.RiskLevel {
	temp := e.quantityLevel(Temperature, r.Temperature)
	hum := e.quantityLevel(Humidity, r.Humidity)
	switch {
	case temp == models.RiskRed || hum == models.RiskRed:
		return models.RiskRed
	case temp == models.RiskGreen && hum == models.RiskGreen:
		return models.RiskGreen
	default:
		return models.RiskYellow
	}
}

// SolarDryingAssessment is the output of AssessSolarDryingRisk.
type SolarDryingAssessment struct {
	SpoilageRisk            float64 `json:"spoilage_risk"`
	Viability               float64 `json:"solar_drying_viability"`
	EnvironmentalMultiplier float64 `json:"environmental_multiplier"`
	TemperatureScore        float64 `json:"temperature_score"`
	HumidityScore           float64 `json:"humidity_score"`
	PerishabilityFactor     float64 `json:"perishability_factor"`
	ExposureFactor          float64 `json:"exposure_factor"`
}

// AssessSolarDryingRisk scores how risky open-air drying is for the crop.
// The weighted factor sum w is made mildly convex, min(1, w(1+w)), so risk
// compounds once the baseline is already elevated. The reading is appended
// to its sensor's rolling history.
func (e *Engine) AssessSolarDryingRisk(r models.Reading, crop *models.Crop, exposureHours float64) SolarDryingAssessment {
	a := e.assess(r, crop, exposureHours)
	e.Record(r)
	return a
}

func (e *Engine) assess(r models.Reading, crop *models.Crop, exposureHours float64) SolarDryingAssessment {
	tempScore := e.RiskScore(Temperature, r.Temperature)
	humScore := e.RiskScore(Humidity, r.Humidity)

	var perish float64
	if crop != nil {
		perish = crop.PerishabilityFraction()
	}
	exposure := clamp01(math.Min(math.Max(exposureHours, 0), MaxExposureHours) / MaxExposureHours)

	w := weightTemperature*tempScore +
		weightHumidity*humScore +
		weightPerishability*perish +
		weightExposure*exposure
	spoilage := clamp01(w * (1 + w))

	return SolarDryingAssessment{
		SpoilageRisk:            spoilage,
		Viability:               math.Max(0, 1-spoilage),
		EnvironmentalMultiplier: 1.0 + 2.0*((tempScore+humScore)/2),
		TemperatureScore:        tempScore,
		HumidityScore:           humScore,
		PerishabilityFactor:     perish,
		ExposureFactor:          exposure,
	}
}

// Record appends a reading to its sensor's rolling history with a freshly
// computed risk level. Recording the same reading twice in a row is a no-op.
func (e *Engine) Record(r models.Reading) models.RiskLevel {
	r.RiskLevel = e.RiskLevel(r)
	if r.SensorID == "" {
		return r.RiskLevel
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ring, ok := e.history[r.SensorID]
	if !ok {
		ring = buffer.NewRing[models.Reading](e.capacity)
		e.history[r.SensorID] = ring
	}
	if last, ok := ring.Last(); ok && sameReading(last, r) {
		return r.RiskLevel
	}
	if ring.Push(r) {
		e.logger.Debug().Str("sensor_id", r.SensorID).Msg("Evicted oldest reading from history")
	}
	return r.RiskLevel
}

func sameReading(a, b models.Reading) bool {
	return a.Timestamp.Equal(b.Timestamp) && a.Temperature == b.Temperature && a.Humidity == b.Humidity
}

// History returns the sensor's rolling history, oldest first.
func (e *Engine) History(sensorID string) []models.Reading {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ring, ok := e.history[sensorID]
	if !ok {
		return nil
	}
	return ring.Items()
}

// Latest returns up to n readings for the sensor, newest first.
func (e *Engine) Latest(sensorID string, n int) []models.Reading {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ring, ok := e.history[sensorID]
	if !ok {
		return nil
	}
	return ring.Latest(n)
}

// Current returns the most recent reading for the sensor.
func (e *Engine) Current(sensorID string) (models.Reading, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ring, ok := e.history[sensorID]
	if !ok {
		return models.Reading{}, false
	}
	return ring.Last()
}

// SensorIDs returns every sensor with history, sorted.
func (e *Engine) SensorIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.history))
	for id := range e.history {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
