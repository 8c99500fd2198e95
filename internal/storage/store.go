// Package storage persists readings, market snapshots and verdicts.
package storage

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	timestampFormat = "2006-01-02 15:04:05"
)

// Store handles persistent storage through sqlx. Queries are written with
// ? placeholders and rebound for the active driver.
type Store struct {
	db     *sqlx.DB
	driver string
	logger zerolog.Logger
}

// StorageStats contains information about the database
type StorageStats struct {
	Driver         string    `json:"driver"`
	TotalReadings  int64     `json:"total_readings"`
	TotalVerdicts  int64     `json:"total_verdicts"`
	MarketCrops    int64     `json:"market_crops"`
	OldestReading  time.Time `json:"oldest_reading,omitempty"`
	NewestReading  time.Time `json:"newest_reading,omitempty"`
	UniqueSensors  int       `json:"unique_sensors"`
	DatabaseSizeMB float64   `json:"database_size_mb,omitempty"`
}

// NewStore opens a store for driver ("sqlite3" or "postgres") and migrates
// the schema.
func NewStore(driver, dsn string, logger zerolog.Logger) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == DriverSQLite {
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
			"PRAGMA cache_size=10000",
			"PRAGMA temp_store=MEMORY",
		}
		for _, pragma := range pragmas {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
			}
		}

		// single writer
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	store := &Store{
		db:     db,
		driver: driver,
		logger: logger,
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("driver", driver).Msg("Store initialized")
	return store, nil
}

// Driver returns the database driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the database schema if it doesn't exist
func (s *Store) Migrate() error {
	schema := sqliteSchema
	if s.driver == DriverPostgres {
		schema = postgresSchema
	}

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS readings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sensor_id TEXT NOT NULL,
	temperature REAL NOT NULL,
	humidity REAL NOT NULL,
	risk_level TEXT NOT NULL DEFAULT '',
	recorded_at DATETIME NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_readings_sensor_time ON readings(sensor_id, recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_readings_time ON readings(recorded_at DESC);

CREATE TABLE IF NOT EXISTS market_data (
	crop_id TEXT PRIMARY KEY,
	current_price REAL NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	history TEXT NOT NULL DEFAULT '[]',
	last_updated DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS verdicts (
	id TEXT PRIMARY KEY,
	crop_id TEXT NOT NULL,
	urgency TEXT NOT NULL DEFAULT '',
	method TEXT NOT NULL,
	alternative_method TEXT NOT NULL,
	synthetic BOOLEAN NOT NULL DEFAULT 0,
	recommended_net REAL NOT NULL,
	alternative_net REAL NOT NULL,
	confidence REAL NOT NULL,
	potential_savings REAL NOT NULL,
	reasoning TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verdicts_created ON verdicts(created_at DESC);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS readings (
	id BIGSERIAL PRIMARY KEY,
	sensor_id TEXT NOT NULL,
	temperature DOUBLE PRECISION NOT NULL,
	humidity DOUBLE PRECISION NOT NULL,
	risk_level TEXT NOT NULL DEFAULT '',
	recorded_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_readings_sensor_time ON readings(sensor_id, recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_readings_time ON readings(recorded_at DESC);

CREATE TABLE IF NOT EXISTS market_data (
	crop_id TEXT PRIMARY KEY,
	current_price DOUBLE PRECISION NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	history TEXT NOT NULL DEFAULT '[]',
	last_updated TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS verdicts (
	id TEXT PRIMARY KEY,
	crop_id TEXT NOT NULL,
	urgency TEXT NOT NULL DEFAULT '',
	method TEXT NOT NULL,
	alternative_method TEXT NOT NULL,
	synthetic BOOLEAN NOT NULL DEFAULT FALSE,
	recommended_net DOUBLE PRECISION NOT NULL,
	alternative_net DOUBLE PRECISION NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	potential_savings DOUBLE PRECISION NOT NULL,
	reasoning TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verdicts_created ON verdicts(created_at DESC);
`

// PruneReadings deletes readings recorded before the cutoff
func (s *Store) PruneReadings(before time.Time) (int64, error) {
	return s.prune("readings", "DELETE FROM readings WHERE recorded_at < ?", before)
}

// PruneVerdicts deletes verdicts generated before the cutoff
func (s *Store) PruneVerdicts(before time.Time) (int64, error) {
	return s.prune("verdicts", "DELETE FROM verdicts WHERE created_at < ?", before)
}

func (s *Store) prune(table, query string, before time.Time) (int64, error) {
	result, err := s.db.Exec(s.db.Rebind(query), formatTimestamp(before))
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s: %w", table, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	s.logger.Debug().Str("table", table).Time("cutoff", before).Int64("deleted", n).Msg("Pruned rows")
	return n, nil
}

// GetStorageStats returns statistics about the database
func (s *Store) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{Driver: s.driver}

	counts := []struct {
		dst   *int64
		query string
	}{
		{&stats.TotalReadings, "SELECT COUNT(*) FROM readings"},
		{&stats.TotalVerdicts, "SELECT COUNT(*) FROM verdicts"},
		{&stats.MarketCrops, "SELECT COUNT(*) FROM market_data"},
	}
	for _, c := range counts {
		if err := s.db.Get(c.dst, c.query); err != nil {
			return nil, fmt.Errorf("failed to count rows: %w", err)
		}
	}

	if stats.TotalReadings > 0 {
		var span struct {
			Oldest string `db:"oldest"`
			Newest string `db:"newest"`
		}
		if err := s.db.Get(&span, "SELECT MIN(recorded_at) AS oldest, MAX(recorded_at) AS newest FROM readings"); err != nil {
			return nil, fmt.Errorf("failed to get timestamp range: %w", err)
		}
		stats.OldestReading, _ = parseTimestamp(span.Oldest)
		stats.NewestReading, _ = parseTimestamp(span.Newest)

		if err := s.db.Get(&stats.UniqueSensors, "SELECT COUNT(DISTINCT sensor_id) FROM readings"); err != nil {
			return nil, fmt.Errorf("failed to count sensors: %w", err)
		}
	}

	if s.driver == DriverSQLite {
		var pageCount, pageSize int64
		s.db.Get(&pageCount, "PRAGMA page_count")
		s.db.Get(&pageSize, "PRAGMA page_size")
		stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return stats, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampFormat)
}

// parseTimestamp tries the formats sqlite and postgres hand back
func parseTimestamp(ts string) (time.Time, error) {
	formats := []string{
		timestampFormat,
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", ts)
}
