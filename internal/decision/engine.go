// Package decision combines storage strategy economics into a single
// recommendation with an alternative, reasoning and a confidence score.
package decision

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/afroash/agristore/internal/models"
	"github.com/afroash/agristore/internal/strategy"
)

// Stage is a step of one decision flow. It only appears in logs.
type Stage string

const (
	StageValidating Stage = "validating"
	StageEvaluating Stage = "evaluating"
	StageSelecting  Stage = "selecting"
	StageExplaining Stage = "explaining"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Exclusion is a method that was evaluated but left out as unsuitable.
type Exclusion struct {
	Method  models.StorageMethod `json:"method"`
	Reasons []string             `json:"reasons"`
}

// Evaluation is the outcome of running every strategy for a context.
type Evaluation struct {
	Options  []models.StorageOption
	Excluded []Exclusion
	Warnings []StrategyEvaluationWarning
}

// Engine produces verdicts. It holds no per-request state and is safe for
// concurrent use.
type Engine struct {
	strategies *strategy.Registry
	params     Params
	logger     zerolog.Logger
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now for data age checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a decision engine over the given strategies.
func NewEngine(strategies *strategy.Registry, params Params, logger zerolog.Logger, opts ...Option) (*Engine, error) {
	if strategies == nil || len(strategies.All()) == 0 {
		return nil, errors.New("at least one storage strategy is required")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid decision params: %w", err)
	}

	e := &Engine{
		strategies: strategies,
		params:     params,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Params returns the engine's default parameters.
func (e *Engine) Params() Params {
	return e.params
}

func (e *Engine) paramsFor(dc Context) Params {
	if dc.Params != nil {
		return *dc.Params
	}
	return e.params
}

func (e *Engine) stage(s Stage) {
	e.logger.Debug().Str("stage", string(s)).Msg("Decision stage")
}

// Evaluate validates the context and runs every strategy. A strategy that
// errors or panics is reported as a warning and skipped.
func (e *Engine) Evaluate(dc Context) (Evaluation, error) {
	p := e.paramsFor(dc)
	if err := p.Validate(); err != nil {
		return Evaluation{}, &ValidationError{Violations: []string{err.Error()}}
	}

	e.stage(StageValidating)
	if err := Validate(dc, p, e.now()); err != nil {
		return Evaluation{}, err
	}

	e.stage(StageEvaluating)
	var ev Evaluation
	for _, s := range e.strategies.All() {
		opt, suit, err := e.evaluateOne(s, dc, p)
		if err != nil {
			w := StrategyEvaluationWarning{Method: s.Method(), Err: err}
			e.logger.Warn().Err(err).Str("method", string(s.Method())).Msg("Storage strategy skipped")
			ev.Warnings = append(ev.Warnings, w)
			continue
		}
		if !suit.Suitable && p.RiskTolerance != ToleranceHigh {
			ev.Excluded = append(ev.Excluded, Exclusion{Method: s.Method(), Reasons: suit.Reasons})
			continue
		}
		ev.Options = append(ev.Options, opt)
	}
	return ev, nil
}

func (e *Engine) evaluateOne(s strategy.Strategy, dc Context, p Params) (opt models.StorageOption, suit strategy.Suitability, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	suit = s.IsSuitable(dc.Inputs, *dc.Reading)
	opt, err = s.GenerateOption(dc.Inputs, *dc.Reading, dc.Market.CurrentPrice, p.StorageDays)
	return opt, suit, err
}

// GenerateRecommendation runs a full decision flow.
//
// It returns a *ValidationError listing every violated check, or
// ErrNoOptionsAvailable when no method survived evaluation.
func (e *Engine) GenerateRecommendation(dc Context) (*models.EconomicVerdict, error) {
	p := e.paramsFor(dc)

	ev, err := e.Evaluate(dc)
	if err != nil {
		e.stage(StageFailed)
		return nil, err
	}
	if len(ev.Options) == 0 {
		e.stage(StageFailed)
		return nil, ErrNoOptionsAvailable
	}

	e.stage(StageSelecting)
	winner := selectBest(ev.Options, p)
	rec := ev.Options[winner]
	alt, synthetic := alternativeFor(ev.Options, winner)

	e.stage(StageExplaining)
	now := e.now()
	verdict := &models.EconomicVerdict{
		ID:                   uuid.NewString(),
		CropID:               dc.Inputs.Crop.ID,
		Urgency:              dc.Inputs.Urgency,
		Recommended:          rec,
		Alternative:          alt,
		SyntheticAlternative: synthetic,
		Options:              ev.Options,
		Reasoning:            buildReasoning(dc, rec, alt, synthetic, p),
		Confidence:           confidence(ev.Options, dc.Reading, now, p),
		PotentialSavings:     max(0, rec.NetValue-alt.NetValue),
		GeneratedAt:          now,
	}

	e.stage(StageDone)
	e.logger.Info().
		Str("verdict_id", verdict.ID).
		Str("crop", verdict.CropID).
		Str("method", string(rec.Method)).
		Float64("net_value", rec.NetValue).
		Float64("confidence", verdict.Confidence).
		Bool("synthetic_alternative", synthetic).
		Msg("Recommendation generated")

	return verdict, nil
}
