package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/afroash/agristore/internal/models"
)

// VerdictRecord is the audit row kept for every generated verdict
type VerdictRecord struct {
	ID                string    `db:"id" json:"id"`
	CropID            string    `db:"crop_id" json:"crop_id"`
	Urgency           string    `db:"urgency" json:"urgency,omitempty"`
	Method            string    `db:"method" json:"method"`
	AlternativeMethod string    `db:"alternative_method" json:"alternative_method"`
	Synthetic         bool      `db:"synthetic" json:"synthetic_alternative"`
	RecommendedNet    float64   `db:"recommended_net" json:"recommended_net"`
	AlternativeNet    float64   `db:"alternative_net" json:"alternative_net"`
	Confidence        float64   `db:"confidence" json:"confidence"`
	PotentialSavings  float64   `db:"potential_savings" json:"potential_savings"`
	Reasoning         string    `db:"reasoning" json:"reasoning"`
	CreatedAt         time.Time `db:"-" json:"created_at"`
}

// NewVerdictRecord flattens a verdict for storage
func NewVerdictRecord(v *models.EconomicVerdict) VerdictRecord {
	return VerdictRecord{
		ID:                v.ID,
		CropID:            v.CropID,
		Urgency:           string(v.Urgency),
		Method:            string(v.Recommended.Method),
		AlternativeMethod: string(v.Alternative.Method),
		Synthetic:         v.SyntheticAlternative,
		RecommendedNet:    v.Recommended.NetValue,
		AlternativeNet:    v.Alternative.NetValue,
		Confidence:        v.Confidence,
		PotentialSavings:  v.PotentialSavings,
		Reasoning:         v.Reasoning,
		CreatedAt:         v.GeneratedAt,
	}
}

// Verdict rebuilds the summary view of a stored verdict. Costs, losses and
// risk factors are not persisted.
func (r VerdictRecord) Verdict() models.EconomicVerdict {
	return models.EconomicVerdict{
		ID:                   r.ID,
		CropID:               r.CropID,
		Urgency:              models.UrgencyLevel(r.Urgency),
		Recommended:          models.StorageOption{Method: models.StorageMethod(r.Method), NetValue: r.RecommendedNet},
		Alternative:          models.StorageOption{Method: models.StorageMethod(r.AlternativeMethod), NetValue: r.AlternativeNet},
		SyntheticAlternative: r.Synthetic,
		Reasoning:            r.Reasoning,
		Confidence:           r.Confidence,
		PotentialSavings:     r.PotentialSavings,
		GeneratedAt:          r.CreatedAt,
	}
}

type verdictRow struct {
	VerdictRecord
	CreatedAtRaw string `db:"created_at"`
}

const selectVerdicts = `
	SELECT id, crop_id, urgency, method, alternative_method, synthetic,
		recommended_net, alternative_net, confidence, potential_savings,
		reasoning, created_at
	FROM verdicts`

// InsertVerdict records a verdict in the audit log
func (s *Store) InsertVerdict(v *models.EconomicVerdict) error {
	rec := NewVerdictRecord(v)
	query := `
		INSERT INTO verdicts (id, crop_id, urgency, method, alternative_method, synthetic,
			recommended_net, alternative_net, confidence, potential_savings, reasoning, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(s.db.Rebind(query),
		rec.ID, rec.CropID, rec.Urgency, rec.Method, rec.AlternativeMethod, rec.Synthetic,
		rec.RecommendedNet, rec.AlternativeNet, rec.Confidence, rec.PotentialSavings,
		rec.Reasoning, formatTimestamp(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert verdict: %w", err)
	}
	return nil
}

// GetVerdict returns one verdict record, or nil
func (s *Store) GetVerdict(id string) (*VerdictRecord, error) {
	var row verdictRow
	err := s.db.Get(&row, s.db.Rebind(selectVerdicts+" WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get verdict: %w", err)
	}
	rec, err := row.record()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListVerdicts returns the most recent verdicts, newest first
func (s *Store) ListVerdicts(limit int) ([]VerdictRecord, error) {
	var rows []verdictRow
	if err := s.db.Select(&rows, s.db.Rebind(selectVerdicts+" ORDER BY created_at DESC LIMIT ?"), limit); err != nil {
		return nil, fmt.Errorf("failed to list verdicts: %w", err)
	}

	out := make([]VerdictRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r verdictRow) record() (VerdictRecord, error) {
	ts, err := parseTimestamp(r.CreatedAtRaw)
	if err != nil {
		return VerdictRecord{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	rec := r.VerdictRecord
	rec.CreatedAt = ts
	return rec, nil
}
