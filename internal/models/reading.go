package models

import (
	"errors"
	"fmt"
	"time"
)

// RiskLevel is the traffic-light classification of a reading.
type RiskLevel string

const (
	RiskGreen  RiskLevel = "GREEN"
	RiskYellow RiskLevel = "YELLOW"
	RiskRed    RiskLevel = "RED"
)

// Plausible sensor ranges. The decision engine rejects the same values.
const (
	MinTemperature = -10.0
	MaxTemperature = 60.0
	MinHumidity    = 0.0
	MaxHumidity    = 100.0
)

// Reading is one temperature/humidity sample from a storage sensor.
// RiskLevel is assigned by the server on ingestion.
type Reading struct {
	SensorID    string    `json:"sensor_id"`
	Timestamp   time.Time `json:"timestamp"`
	Humidity    float64   `json:"humidity"`
	Temperature float64   `json:"temperature"`
	RiskLevel   RiskLevel `json:"risk_level,omitempty"`
}

// Validate reports the first reason the reading cannot be ingested
func (r *Reading) Validate() error {
	switch {
	case r.SensorID == "":
		return errors.New("reading has no sensor_id")
	case r.Timestamp.IsZero():
		return fmt.Errorf("reading from %q has no timestamp", r.SensorID)
	case !(r.Temperature >= MinTemperature && r.Temperature <= MaxTemperature):
		return fmt.Errorf("temperature %.1f°C from %q outside [%g, %g]", r.Temperature, r.SensorID, MinTemperature, MaxTemperature)
	case !(r.Humidity >= MinHumidity && r.Humidity <= MaxHumidity):
		return fmt.Errorf("humidity %.1f%% from %q outside [%g, %g]", r.Humidity, r.SensorID, MinHumidity, MaxHumidity)
	}
	return nil
}

// IsValid is Validate() == nil
func (r *Reading) IsValid() bool {
	return r.Validate() == nil
}

// Age returns how old the reading is relative to now.
func (r *Reading) Age(now time.Time) time.Duration {
	return now.Sub(r.Timestamp)
}

// NewReading stamps a sample with the current time
func NewReading(sensorID string, temperature, humidity float64) *Reading {
	return &Reading{
		SensorID:    sensorID,
		Timestamp:   time.Now(),
		Humidity:    humidity,
		Temperature: temperature,
	}
}

// Copy returns a copy of r, or nil for a nil reading
func (r *Reading) Copy() *Reading {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
