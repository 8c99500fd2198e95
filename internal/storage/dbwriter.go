package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/agristore/internal/models"
)

// BatchInserter is the persistence a DBWriter flushes into.
type BatchInserter interface {
	InsertBatch(readings []*models.Reading) error
}

// DBWriterConfig holds configuration for the async writer
type DBWriterConfig struct {
	BatchSize   int           // readings per insert
	FlushPeriod time.Duration // max time a reading waits in a partial batch
	ChannelSize int           // queued readings before Write starts dropping
	MaxRetries  int           // extra attempts for a failed batch before it is dropped
}

// DefaultDBWriterConfig returns the defaults used for zero fields
func DefaultDBWriterConfig() DBWriterConfig {
	return DBWriterConfig{
		BatchSize:   100,
		FlushPeriod: 5 * time.Second,
		ChannelSize: 1000,
		MaxRetries:  3,
	}
}

// DBWriterStats contains statistics about the writer
type DBWriterStats struct {
	Written     int64     `json:"written"`
	Batches     int64     `json:"batches"`
	Errors      int64     `json:"errors"`
	Rejected    int64     `json:"rejected"` // queue full
	Discarded   int64     `json:"discarded"`
	LastFlush   time.Time `json:"last_flush,omitempty"`
	QueueLength int       `json:"queue_length"`
	Pending     int       `json:"pending"`
}

// pendingBatch is the batch being assembled, or one waiting for a retry
type pendingBatch struct {
	readings []*models.Reading
	failures int
}

// DBWriter persists ingested readings in the background so the stream
// handler never waits on the database. A failed insert keeps its batch for
// the next flush; after MaxRetries further failures the batch is discarded.
type DBWriter struct {
	store    BatchInserter
	cfg      DBWriterConfig
	logger   zerolog.Logger
	queue    chan *models.Reading
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	stats DBWriterStats
}

// NewDBWriter starts a writer. Zero config fields use DefaultDBWriterConfig.
func NewDBWriter(store BatchInserter, cfg DBWriterConfig, logger zerolog.Logger) *DBWriter {
	def := DefaultDBWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushPeriod <= 0 {
		cfg.FlushPeriod = def.FlushPeriod
	}
	if cfg.ChannelSize <= 0 {
		cfg.ChannelSize = def.ChannelSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &DBWriter{
		store:  store,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan *models.Reading, cfg.ChannelSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.run(ctx)

	logger.Info().
		Int("batch_size", cfg.BatchSize).
		Dur("flush_period", cfg.FlushPeriod).
		Int("channel_size", cfg.ChannelSize).
		Int("max_retries", cfg.MaxRetries).
		Msg("DBWriter started")
	return w
}

// Write queues a reading. It returns false, and counts the reading as
// rejected, when the queue is full.
func (w *DBWriter) Write(reading *models.Reading) bool {
	select {
	case w.queue <- reading:
		return true
	default:
		w.mu.Lock()
		w.stats.Rejected++
		w.mu.Unlock()
		w.logger.Warn().Str("sensor_id", reading.SensorID).Msg("DBWriter queue full, dropping reading")
		return false
	}
}

func (w *DBWriter) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.FlushPeriod)
	defer ticker.Stop()

	var batch pendingBatch
	for {
		select {
		case r := <-w.queue:
			batch.readings = append(batch.readings, r)
			w.setPending(len(batch.readings))
			if len(batch.readings) >= w.cfg.BatchSize {
				w.flush(&batch, false)
			}
		case <-ticker.C:
			w.flush(&batch, false)
		case <-ctx.Done():
		drain:
			for {
				select {
				case r := <-w.queue:
					batch.readings = append(batch.readings, r)
				default:
					break drain
				}
			}
			w.flush(&batch, true)
			w.logger.Info().Msg("DBWriter stopped")
			return
		}
	}
}

// flush inserts the batch. On failure the batch is kept unless it has used
// up its retries or this is the final flush.
func (w *DBWriter) flush(b *pendingBatch, final bool) {
	if len(b.readings) == 0 {
		return
	}
	n := len(b.readings)
	err := w.store.InsertBatch(b.readings)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err == nil {
		w.stats.Written += int64(n)
		w.stats.Batches++
		w.stats.LastFlush = time.Now()
		w.logger.Debug().Int("count", n).Msg("Flushed batch")
		*b = pendingBatch{}
		w.stats.Pending = 0
		return
	}

	w.stats.Errors++
	b.failures++
	if final || b.failures > w.cfg.MaxRetries {
		w.stats.Discarded += int64(n)
		w.logger.Error().Err(err).Int("count", n).Int("failures", b.failures).Msg("Discarding batch")
		*b = pendingBatch{}
		w.stats.Pending = 0
		return
	}
	w.logger.Warn().Err(err).Int("count", n).Int("failures", b.failures).Msg("Batch insert failed, will retry")
}

func (w *DBWriter) setPending(n int) {
	w.mu.Lock()
	w.stats.Pending = n
	w.mu.Unlock()
}

// Stop flushes what is queued and waits for the writer to exit. Safe to
// call more than once.
func (w *DBWriter) Stop() {
	w.stopOnce.Do(func() {
		w.cancel()
		<-w.done
	})
}

// Stats returns a snapshot of the writer's counters
func (w *DBWriter) Stats() DBWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.QueueLength = len(w.queue)
	return s
}
