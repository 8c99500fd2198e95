package server

import (
	"time"

	"github.com/afroash/agristore/internal/models"
	"github.com/afroash/agristore/internal/storage"
)

// ReadingRecorder keeps the rolling per-sensor history.
// risk.Engine implements this interface
type ReadingRecorder interface {
	// Record stores the reading and returns its recomputed risk level
	Record(r models.Reading) models.RiskLevel

	// Latest returns up to n readings for a sensor (newest first)
	Latest(sensorID string, n int) []models.Reading

	// Current returns the most recent reading for a sensor
	Current(sensorID string) (models.Reading, bool)

	// SensorIDs returns every sensor with history
	SensorIDs() []string
}

// ReadingWriter queues readings for persistence.
// storage.DBWriter implements this interface
type ReadingWriter interface {
	Write(reading *models.Reading) bool
}

// MarketPersister saves market snapshots.
type MarketPersister interface {
	UpsertMarketData(m *models.MarketData) error
}

// HistoricalStore defines the interface for persistent storage.
// storage.Store implements this interface
type HistoricalStore interface {
	MarketPersister

	// GetReadingsInRange returns readings within a time range
	GetReadingsInRange(sensorID string, start, end time.Time, limit int) ([]*models.Reading, error)

	// GetReadingsBefore returns readings before a timestamp (for scrolling back)
	GetReadingsBefore(sensorID string, before time.Time, limit int) ([]*models.Reading, error)

	// GetLatestReading returns the most recent reading for a sensor
	GetLatestReading(sensorID string) (*models.Reading, error)

	// GetSensorIDs returns list of all unique sensor IDs
	GetSensorIDs() ([]string, error)

	// GetDailyStats returns aggregated daily statistics
	GetDailyStats(sensorID string, start, end time.Time) ([]storage.DailyStat, error)

	// GetStorageStats returns database statistics
	GetStorageStats() (*storage.StorageStats, error)

	// GetMarketData returns the persisted snapshot for a crop
	GetMarketData(cropID string) (*models.MarketData, error)

	// InsertVerdict records a verdict in the audit log
	InsertVerdict(v *models.EconomicVerdict) error

	// GetVerdict returns one stored verdict
	GetVerdict(id string) (*storage.VerdictRecord, error)

	// ListVerdicts returns the most recent verdicts
	ListVerdicts(limit int) ([]storage.VerdictRecord, error)
}
