package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/afroash/agristore/internal/models"
)

// DailyStat represents aggregated statistics for a single day
type DailyStat struct {
	Date           time.Time `json:"date"`
	SensorID       string    `json:"sensor_id"`
	MinTemperature float64   `json:"min_temperature"`
	MaxTemperature float64   `json:"max_temperature"`
	AvgTemperature float64   `json:"avg_temperature"`
	MinHumidity    float64   `json:"min_humidity"`
	MaxHumidity    float64   `json:"max_humidity"`
	AvgHumidity    float64   `json:"avg_humidity"`
	ReadingCount   int       `json:"reading_count"`
}

type readingRow struct {
	ID          int64   `db:"id"`
	SensorID    string  `db:"sensor_id"`
	Temperature float64 `db:"temperature"`
	Humidity    float64 `db:"humidity"`
	RiskLevel   string  `db:"risk_level"`
	RecordedAt  string  `db:"recorded_at"`
}

func (r readingRow) reading() (*models.Reading, error) {
	ts, err := parseTimestamp(r.RecordedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse recorded_at: %w", err)
	}
	return &models.Reading{
		SensorID:    r.SensorID,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		RiskLevel:   models.RiskLevel(r.RiskLevel),
		Timestamp:   ts,
	}, nil
}

const insertReading = `
	INSERT INTO readings (sensor_id, temperature, humidity, risk_level, recorded_at)
	VALUES (?, ?, ?, ?, ?)
`

// InsertReading inserts a single reading into the database
func (s *Store) InsertReading(reading *models.Reading) error {
	_, err := s.db.Exec(s.db.Rebind(insertReading),
		reading.SensorID,
		reading.Temperature,
		reading.Humidity,
		string(reading.RiskLevel),
		formatTimestamp(reading.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// InsertBatch inserts multiple readings in a single transaction
func (s *Store) InsertBatch(readings []*models.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(tx.Rebind(insertReading))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, reading := range readings {
		_, err := stmt.Exec(
			reading.SensorID,
			reading.Temperature,
			reading.Humidity,
			string(reading.RiskLevel),
			formatTimestamp(reading.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("failed to insert reading in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().Int("count", len(readings)).Msg("Batch insert completed")
	return nil
}

const selectReadings = `SELECT id, sensor_id, temperature, humidity, risk_level, recorded_at FROM readings`

// GetReadingsInRange returns readings within a time range, newest first.
// An empty sensorID matches every sensor.
func (s *Store) GetReadingsInRange(sensorID string, start, end time.Time, limit int) ([]*models.Reading, error) {
	query := selectReadings + " WHERE recorded_at BETWEEN ? AND ?"
	args := []interface{}{formatTimestamp(start), formatTimestamp(end)}
	if sensorID != "" {
		query += " AND sensor_id = ?"
		args = append(args, sensorID)
	}
	query += " ORDER BY recorded_at DESC LIMIT ?"
	args = append(args, limit)

	return s.selectReadings(query, args...)
}

// GetReadingsBefore returns readings before a specific time, newest first
func (s *Store) GetReadingsBefore(sensorID string, before time.Time, limit int) ([]*models.Reading, error) {
	query := selectReadings + " WHERE recorded_at < ?"
	args := []interface{}{formatTimestamp(before)}
	if sensorID != "" {
		query += " AND sensor_id = ?"
		args = append(args, sensorID)
	}
	query += " ORDER BY recorded_at DESC LIMIT ?"
	args = append(args, limit)

	return s.selectReadings(query, args...)
}

// GetLatestReading returns the most recent reading for a sensor, or nil
func (s *Store) GetLatestReading(sensorID string) (*models.Reading, error) {
	var row readingRow
	err := s.db.Get(&row, s.db.Rebind(selectReadings+" WHERE sensor_id = ? ORDER BY recorded_at DESC LIMIT 1"), sensorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reading: %w", err)
	}
	return row.reading()
}

// GetDailyStats returns aggregated daily statistics for a time range
func (s *Store) GetDailyStats(sensorID string, start, end time.Time) ([]DailyStat, error) {
	query := `
		SELECT
			date(recorded_at) AS day,
			sensor_id,
			MIN(temperature) AS min_temp,
			MAX(temperature) AS max_temp,
			AVG(temperature) AS avg_temp,
			MIN(humidity) AS min_humidity,
			MAX(humidity) AS max_humidity,
			AVG(humidity) AS avg_humidity,
			COUNT(*) AS reading_count
		FROM readings
		WHERE recorded_at BETWEEN ? AND ?`
	args := []interface{}{formatTimestamp(start), formatTimestamp(end)}
	if sensorID != "" {
		query += " AND sensor_id = ?"
		args = append(args, sensorID)
	}
	query += " GROUP BY date(recorded_at), sensor_id ORDER BY day DESC"

	var rows []struct {
		Day          string  `db:"day"`
		SensorID     string  `db:"sensor_id"`
		MinTemp      float64 `db:"min_temp"`
		MaxTemp      float64 `db:"max_temp"`
		AvgTemp      float64 `db:"avg_temp"`
		MinHumidity  float64 `db:"min_humidity"`
		MaxHumidity  float64 `db:"max_humidity"`
		AvgHumidity  float64 `db:"avg_humidity"`
		ReadingCount int     `db:"reading_count"`
	}
	if err := s.db.Select(&rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}

	stats := make([]DailyStat, 0, len(rows))
	for _, r := range rows {
		day, err := parseTimestamp(r.Day)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date: %w", err)
		}
		stats = append(stats, DailyStat{
			Date:           day,
			SensorID:       r.SensorID,
			MinTemperature: r.MinTemp,
			MaxTemperature: r.MaxTemp,
			AvgTemperature: r.AvgTemp,
			MinHumidity:    r.MinHumidity,
			MaxHumidity:    r.MaxHumidity,
			AvgHumidity:    r.AvgHumidity,
			ReadingCount:   r.ReadingCount,
		})
	}
	return stats, nil
}

// GetSensorIDs returns a list of all unique sensor IDs in the database
func (s *Store) GetSensorIDs() ([]string, error) {
	var ids []string
	if err := s.db.Select(&ids, "SELECT DISTINCT sensor_id FROM readings ORDER BY sensor_id"); err != nil {
		return nil, fmt.Errorf("failed to query sensor IDs: %w", err)
	}
	return ids, nil
}

func (s *Store) selectReadings(query string, args ...interface{}) ([]*models.Reading, error) {
	var rows []readingRow
	if err := s.db.Select(&rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}

	readings := make([]*models.Reading, 0, len(rows))
	for _, row := range rows {
		r, err := row.reading()
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, nil
}
