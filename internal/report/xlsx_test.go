package report

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/afroash/agristore/internal/models"
)

func sampleVerdicts() []models.EconomicVerdict {
	at := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	return []models.EconomicVerdict{
		{
			ID:          "v-1",
			CropID:      "wheat",
			Urgency:     models.UrgencyMedium,
			Recommended: models.StorageOption{Method: models.MethodSolarDrying, NetValue: 107656.63},
			Alternative: models.StorageOption{Method: models.MethodColdStorage, NetValue: 97375.06},
			Options: []models.StorageOption{
				{Method: models.MethodColdStorage, TotalCost: 4000, NetValue: 97375.06},
				{Method: models.MethodSolarDrying, TotalCost: 1500, NetValue: 107656.63, RiskFactors: []string{"Weather dependent", "Labor intensive"}},
			},
			Reasoning:        "Solar Drying yields 10281.57 more net value than Cold Storage.",
			Confidence:       0.6,
			PotentialSavings: 10281.57,
			GeneratedAt:      at,
		},
		{
			ID:                   "v-2",
			CropID:               "tomato",
			Urgency:              models.UrgencyHigh,
			Recommended:          models.StorageOption{Method: models.MethodColdStorage, NetValue: 9000},
			Alternative:          models.StorageOption{Method: models.MethodSolarDrying, NetValue: 9000},
			SyntheticAlternative: true,
			Confidence:           0.6,
			GeneratedAt:          at,
		},
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleVerdicts()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	wb, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer wb.Close()

	rows, err := wb.GetRows(VerdictSheet)
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("verdict rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "ID" || rows[1][0] != "v-1" || rows[1][3] != "Solar Drying" {
		t.Errorf("unexpected verdict rows: %v", rows[:2])
	}
	if rows[2][7] != "TRUE" {
		t.Errorf("synthetic cell = %q, want TRUE", rows[2][7])
	}

	opts, err := wb.GetRows(OptionSheet)
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(opts) != 3 {
		t.Fatalf("option rows = %d, want header + 2", len(opts))
	}
	if opts[2][5] != "Weather dependent; Labor intensive" {
		t.Errorf("risk factors cell = %q", opts[2][5])
	}
}

func TestWrite_RoundsMoneyAndConfidence(t *testing.T) {
	verdicts := sampleVerdicts()[:1]
	verdicts[0].Recommended.NetValue = 107656.6349
	verdicts[0].Confidence = 0.6666
	verdicts[0].Options[0].ExpectedLoss = 12.345678

	var buf bytes.Buffer
	if err := Write(&buf, verdicts); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	wb, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer wb.Close()

	tests := []struct {
		sheet, cell, want string
	}{
		{VerdictSheet, "E2", "107656.63"},
		{VerdictSheet, "I2", "0.67"},
		{OptionSheet, "D2", "12.35"},
	}
	for _, tt := range tests {
		got, err := wb.GetCellValue(tt.sheet, tt.cell)
		if err != nil {
			t.Fatalf("GetCellValue(%s, %s) failed: %v", tt.sheet, tt.cell, err)
		}
		if got != tt.want {
			t.Errorf("%s!%s = %q, want %q", tt.sheet, tt.cell, got, tt.want)
		}
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1.005, 1.01},
		{-2.345, -2.35},
		{10, 10},
	}
	for _, tt := range tests {
		if got := round2(tt.in); got != tt.want {
			t.Errorf("round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := round2(math.Inf(1)); !math.IsInf(got, 1) {
		t.Errorf("round2(+Inf) = %v", got)
	}
}

func TestWriteFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verdicts.xlsx")
	if err := WriteFile(path, nil); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	wb, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer wb.Close()

	rows, _ := wb.GetRows(VerdictSheet)
	if len(rows) != 1 {
		t.Errorf("rows = %d, want header only", len(rows))
	}
	if sheets := wb.GetSheetList(); len(sheets) != 2 {
		t.Errorf("sheets = %v", sheets)
	}
}
