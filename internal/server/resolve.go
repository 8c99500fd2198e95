package server

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/agristore/internal/crops"
	"github.com/afroash/agristore/internal/decision"
	"github.com/afroash/agristore/internal/models"
)

// Where the reading of a resolved request came from.
const (
	ReadingFromRequest = "request"
	ReadingFromSensor  = "sensor"
	ReadingFromStorage = "storage"
)

// SourceRequest tags market data taken from the request itself.
const SourceRequest = "request"

// ReadingInput is an inline environmental reading
type ReadingInput struct {
	Temperature float64   `json:"temperature" yaml:"temperature"`
	Humidity    float64   `json:"humidity" yaml:"humidity"`
	Timestamp   time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// RecommendationRequest describes one lot to advise on. Reading and market
// price are optional: missing values come from the live snapshots.
type RecommendationRequest struct {
	CropID         string              `json:"crop_id" yaml:"crop_id"`
	DistanceKm     float64             `json:"distance_km" yaml:"distance_km"`
	VolumeQuintals float64             `json:"volume_quintals" yaml:"volume_quintals"`
	Urgency        models.UrgencyLevel `json:"urgency,omitempty" yaml:"urgency,omitempty"`
	SensorID       string              `json:"sensor_id,omitempty" yaml:"sensor_id,omitempty"`
	Reading        *ReadingInput       `json:"reading,omitempty" yaml:"reading,omitempty"`
	MarketPrice    float64             `json:"market_price,omitempty" yaml:"market_price,omitempty"`

	RiskTolerance    string `json:"risk_tolerance,omitempty" yaml:"risk_tolerance,omitempty"`
	PrioritizeProfit *bool  `json:"prioritize_profit,omitempty" yaml:"prioritize_profit,omitempty"`
	StorageDays      int    `json:"storage_days,omitempty" yaml:"storage_days,omitempty"`
}

// Resolution is a decision context plus where its inputs came from
type Resolution struct {
	Context       decision.Context
	CropFallback  bool
	ReadingSource string
	MarketSource  string
}

// Resolver turns requests into decision contexts using the crop catalog
// and the live reading and market snapshots.
type Resolver struct {
	crops    *crops.Registry
	readings ReadingRecorder
	markets  *MarketStore
	history  HistoricalStore
	defaults decision.Params
	logger   zerolog.Logger
	now      func() time.Time
}

// NewResolver creates a resolver. history may be nil.
func NewResolver(registry *crops.Registry, readings ReadingRecorder, markets *MarketStore, history HistoricalStore, defaults decision.Params, logger zerolog.Logger) *Resolver {
	return &Resolver{
		crops:    registry,
		readings: readings,
		markets:  markets,
		history:  history,
		defaults: defaults,
		logger:   logger,
		now:      time.Now,
	}
}

// Resolve builds the decision context for req. Input problems are left for
// the decision engine to report; only storage failures return an error.
func (r *Resolver) Resolve(req RecommendationRequest) (Resolution, error) {
	now := r.now()
	var res Resolution

	inputs := models.FarmerInputs{
		DistanceKm:     req.DistanceKm,
		VolumeQuintals: req.VolumeQuintals,
		Urgency:        req.Urgency,
	}
	if inputs.Urgency == "" {
		inputs.Urgency = models.UrgencyMedium
	}
	if req.CropID != "" {
		crop, fallback := r.crops.Get(req.CropID)
		inputs.Crop = crop
		res.CropFallback = fallback
		if fallback {
			r.logger.Warn().Str("crop", req.CropID).Str("fallback", crop.ID).Msg("Unknown crop, using default")
		}
	}

	reading, source, err := r.reading(req, now)
	if err != nil {
		return Resolution{}, err
	}
	res.ReadingSource = source

	var market *models.MarketData
	switch {
	case inputs.Crop != nil:
		market, err = r.market(inputs.Crop.ID, req.MarketPrice, now)
		if err != nil {
			return Resolution{}, err
		}
	case req.MarketPrice > 0:
		// no crop to look up, but the supplied price still counts
		market = requestMarket(req.CropID, req.MarketPrice, now)
	}
	if market != nil {
		res.MarketSource = market.Source
	}

	res.Context = decision.NewContext(inputs, reading, market).WithParams(r.params(req))
	return res, nil
}

func (r *Resolver) reading(req RecommendationRequest, now time.Time) (*models.Reading, string, error) {
	if req.Reading != nil {
		ts := req.Reading.Timestamp
		if ts.IsZero() {
			ts = now
		}
		return &models.Reading{
			SensorID:    req.SensorID,
			Timestamp:   ts,
			Temperature: req.Reading.Temperature,
			Humidity:    req.Reading.Humidity,
		}, ReadingFromRequest, nil
	}
	if req.SensorID == "" {
		return nil, "", nil
	}
	if current, ok := r.readings.Current(req.SensorID); ok {
		return &current, ReadingFromSensor, nil
	}
	if r.history != nil {
		latest, err := r.history.GetLatestReading(req.SensorID)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load latest reading: %w", err)
		}
		if latest != nil {
			return latest, ReadingFromStorage, nil
		}
	}
	return nil, "", nil
}

func (r *Resolver) market(cropID string, price float64, now time.Time) (*models.MarketData, error) {
	if price > 0 {
		return requestMarket(cropID, price, now), nil
	}
	if m := r.markets.Get(cropID); m != nil {
		return m, nil
	}
	if r.history != nil {
		m, err := r.history.GetMarketData(cropID)
		if err != nil {
			return nil, fmt.Errorf("failed to load market data: %w", err)
		}
		if m != nil {
			return m, nil
		}
	}
	return r.crops.FallbackMarketData(cropID, now), nil
}

func requestMarket(cropID string, price float64, now time.Time) *models.MarketData {
	return &models.MarketData{
		CropID:       cropID,
		CurrentPrice: price,
		LastUpdated:  now,
		Source:       SourceRequest,
	}
}

func (r *Resolver) params(req RecommendationRequest) decision.Params {
	p := r.defaults
	if req.RiskTolerance != "" {
		p.RiskTolerance = decision.RiskTolerance(req.RiskTolerance)
	}
	if req.PrioritizeProfit != nil {
		p.PrioritizeProfit = *req.PrioritizeProfit
	}
	if req.StorageDays != 0 {
		p.StorageDays = req.StorageDays
	}
	return p
}
