package decision

import (
	"time"

	"github.com/afroash/agristore/internal/models"
)

// Context is everything one decision flow needs. It is a value: the With*
// methods return an updated copy and never touch the receiver, so a context
// can be shared between goroutines.
type Context struct {
	Inputs    models.FarmerInputs
	Reading   *models.Reading
	Market    *models.MarketData
	UpdatedAt time.Time

	// Params overrides the engine's defaults for this request when set.
	Params *Params
}

// NewContext builds a context from fully materialized inputs.
func NewContext(inputs models.FarmerInputs, reading *models.Reading, market *models.MarketData) Context {
	return Context{
		Inputs:    inputs,
		Reading:   reading.Copy(),
		Market:    market.Copy(),
		UpdatedAt: time.Now(),
	}
}

// WithEnvironmentalData returns a copy holding the new reading. It does not
// trigger a new decision.
func (c Context) WithEnvironmentalData(r models.Reading) Context {
	c.Reading = &r
	c.UpdatedAt = time.Now()
	return c
}

// WithMarketData returns a copy holding the new market snapshot. It does not
// trigger a new decision.
func (c Context) WithMarketData(m models.MarketData) Context {
	c.Market = m.Copy()
	c.UpdatedAt = time.Now()
	return c
}

// WithParams returns a copy with per-request decision parameters.
func (c Context) WithParams(p Params) Context {
	c.Params = &p
	return c
}
