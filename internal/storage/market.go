package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/afroash/agristore/internal/models"
)

type marketRow struct {
	CropID       string  `db:"crop_id"`
	CurrentPrice float64 `db:"current_price"`
	Source       string  `db:"source"`
	History      string  `db:"history"`
	LastUpdated  string  `db:"last_updated"`
}

func (r marketRow) marketData() (*models.MarketData, error) {
	updated, err := parseTimestamp(r.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last_updated: %w", err)
	}
	m := &models.MarketData{
		CropID:       r.CropID,
		CurrentPrice: r.CurrentPrice,
		Source:       r.Source,
		LastUpdated:  updated,
	}
	if r.History != "" {
		if err := json.Unmarshal([]byte(r.History), &m.History); err != nil {
			return nil, fmt.Errorf("failed to decode price history: %w", err)
		}
	}
	return m, nil
}

// UpsertMarketData stores the latest market snapshot for a crop,
// replacing any previous one.
func (s *Store) UpsertMarketData(m *models.MarketData) error {
	history, err := json.Marshal(m.History)
	if err != nil {
		return fmt.Errorf("failed to encode price history: %w", err)
	}
	if m.History == nil {
		history = []byte("[]")
	}

	query := `
		INSERT INTO market_data (crop_id, current_price, source, history, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (crop_id) DO UPDATE SET
			current_price = excluded.current_price,
			source = excluded.source,
			history = excluded.history,
			last_updated = excluded.last_updated
	`
	_, err = s.db.Exec(s.db.Rebind(query),
		m.CropID,
		m.CurrentPrice,
		m.Source,
		string(history),
		formatTimestamp(m.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert market data: %w", err)
	}
	return nil
}

// GetMarketData returns the stored snapshot for a crop, or nil
func (s *Store) GetMarketData(cropID string) (*models.MarketData, error) {
	var row marketRow
	err := s.db.Get(&row, s.db.Rebind(`
		SELECT crop_id, current_price, source, history, last_updated
		FROM market_data WHERE crop_id = ?`), cropID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market data: %w", err)
	}
	return row.marketData()
}

// ListMarketData returns every stored snapshot ordered by crop id
func (s *Store) ListMarketData() ([]*models.MarketData, error) {
	var rows []marketRow
	err := s.db.Select(&rows, `
		SELECT crop_id, current_price, source, history, last_updated
		FROM market_data ORDER BY crop_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list market data: %w", err)
	}

	out := make([]*models.MarketData, 0, len(rows))
	for _, row := range rows {
		m, err := row.marketData()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
