package models

import "time"

// Source tags for market data.
const (
	SourceAuthoritative = "authoritative"
	SourceFallback      = "fallback"
)

// PricePoint is one entry of a crop's price history.
type PricePoint struct {
	Date   time.Time `json:"date" yaml:"date"`
	Price  float64   `json:"price" yaml:"price"`
	Volume float64   `json:"volume" yaml:"volume"`
}

// MarketData is the parsed output of the market price collaborator.
type MarketData struct {
	CropID       string       `json:"crop_id" yaml:"crop_id"`
	CurrentPrice float64      `json:"current_price" yaml:"current_price"`
	History      []PricePoint `json:"history,omitempty" yaml:"history,omitempty"`
	LastUpdated  time.Time    `json:"last_updated" yaml:"last_updated"`
	Source       string       `json:"source" yaml:"source"`
}

// Age returns how long ago the data was refreshed.
func (m *MarketData) Age(now time.Time) time.Duration {
	return now.Sub(m.LastUpdated)
}

// IsStale reports whether the data is older than maxAge.
func (m *MarketData) IsStale(now time.Time, maxAge time.Duration) bool {
	return m.Age(now) > maxAge
}

// IsFallback reports whether the data was synthesized rather than fetched.
func (m *MarketData) IsFallback() bool {
	return m.Source == SourceFallback
}

// PriceChange returns the fractional change between the last two history
// points, or 0 when there is not enough history.
func (m *MarketData) PriceChange() float64 {
	n := len(m.History)
	if n < 2 || m.History[n-2].Price == 0 {
		return 0
	}
	prev := m.History[n-2].Price
	return (m.History[n-1].Price - prev) / prev
}

// Copy returns a deep copy of the MarketData
func (m *MarketData) Copy() *MarketData {
	if m == nil {
		return nil
	}
	c := *m
	c.History = append([]PricePoint(nil), m.History...)
	return &c
}
