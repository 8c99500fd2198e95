package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Pruner removes rows recorded before a cutoff. Market snapshots are never
// pruned: there is one row per crop and it is replaced in place.
type Pruner interface {
	PruneReadings(before time.Time) (int64, error)
	PruneVerdicts(before time.Time) (int64, error)
}

// RetentionPolicy says how long each kind of row is kept. Verdicts form an
// audit log and usually outlive the raw readings behind them.
type RetentionPolicy struct {
	ReadingDays int
	VerdictDays int
	Period      time.Duration
}

// DefaultRetentionPolicy keeps readings 30 days and verdicts a year,
// pruning hourly.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		ReadingDays: 30,
		VerdictDays: 365,
		Period:      time.Hour,
	}
}

func (p RetentionPolicy) withDefaults() RetentionPolicy {
	def := DefaultRetentionPolicy()
	if p.ReadingDays <= 0 {
		p.ReadingDays = def.ReadingDays
	}
	if p.VerdictDays <= 0 {
		p.VerdictDays = def.VerdictDays
	}
	if p.Period <= 0 {
		p.Period = def.Period
	}
	return p
}

// PruneResult is the outcome of one pass
type PruneResult struct {
	Readings int64     `json:"readings"`
	Verdicts int64     `json:"verdicts"`
	At       time.Time `json:"at"`
}

// RetentionStats accumulates over the cleaner's lifetime
type RetentionStats struct {
	Runs            int64       `json:"runs"`
	Failures        int64       `json:"failures"`
	ReadingsDeleted int64       `json:"readings_deleted"`
	VerdictsDeleted int64       `json:"verdicts_deleted"`
	Last            PruneResult `json:"last"`
	LastError       string      `json:"last_error,omitempty"`
	ReadingDays     int         `json:"reading_days"`
	VerdictDays     int         `json:"verdict_days"`
}

// RetentionCleaner prunes old readings and verdicts on a fixed period,
// once at start and then on every tick until stopped.
type RetentionCleaner struct {
	store    Pruner
	policy   RetentionPolicy
	logger   zerolog.Logger
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	stats RetentionStats
}

// NewRetentionCleaner starts a cleaner. Zero policy fields fall back to
// DefaultRetentionPolicy.
func NewRetentionCleaner(store Pruner, policy RetentionPolicy, logger zerolog.Logger) *RetentionCleaner {
	policy = policy.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	c := &RetentionCleaner{
		store:  store,
		policy: policy,
		logger: logger,
		now:    time.Now,
		cancel: cancel,
		done:   make(chan struct{}),
		stats: RetentionStats{
			ReadingDays: policy.ReadingDays,
			VerdictDays: policy.VerdictDays,
		},
	}
	go c.run(ctx)

	logger.Info().
		Int("reading_days", policy.ReadingDays).
		Int("verdict_days", policy.VerdictDays).
		Dur("period", policy.Period).
		Msg("RetentionCleaner started")
	return c
}

func (c *RetentionCleaner) run(ctx context.Context) {
	defer close(c.done)

	c.Prune()

	ticker := time.NewTicker(c.policy.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Prune()
		case <-ctx.Done():
			c.logger.Info().Msg("RetentionCleaner stopped")
			return
		}
	}
}

// Prune runs one pass. Both tables are attempted even when the first fails.
func (c *RetentionCleaner) Prune() (PruneResult, error) {
	now := c.now().UTC()
	res := PruneResult{At: now}

	var errs []error
	n, err := c.store.PruneReadings(now.AddDate(0, 0, -c.policy.ReadingDays))
	if err != nil {
		errs = append(errs, fmt.Errorf("readings: %w", err))
	}
	res.Readings = n
	n, err = c.store.PruneVerdicts(now.AddDate(0, 0, -c.policy.VerdictDays))
	if err != nil {
		errs = append(errs, fmt.Errorf("verdicts: %w", err))
	}
	res.Verdicts = n
	err = errors.Join(errs...)

	c.mu.Lock()
	c.stats.Runs++
	c.stats.ReadingsDeleted += res.Readings
	c.stats.VerdictsDeleted += res.Verdicts
	c.stats.Last = res
	c.stats.LastError = ""
	if err != nil {
		c.stats.Failures++
		c.stats.LastError = err.Error()
	}
	c.mu.Unlock()

	switch {
	case err != nil:
		c.logger.Error().Err(err).Msg("Retention pass failed")
	case res.Readings+res.Verdicts > 0:
		c.logger.Info().
			Int64("readings", res.Readings).
			Int64("verdicts", res.Verdicts).
			Msg("Retention pass removed old rows")
	default:
		c.logger.Debug().Msg("Retention pass found nothing to remove")
	}
	return res, err
}

// Stop ends the loop and waits for it. Safe to call more than once.
func (c *RetentionCleaner) Stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		<-c.done
	})
}

// Stats returns a snapshot of the cleaner's counters
func (c *RetentionCleaner) Stats() RetentionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
