// Package report renders verdicts as spreadsheets for offline review.
package report

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/afroash/agristore/internal/models"
)

const (
	VerdictSheet = "Verdicts"
	OptionSheet  = "Options"

	// ContentType is the MIME type of the workbook produced by Write.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var verdictHeaders = []string{
	"ID", "Crop", "Urgency", "Recommended", "Recommended Net",
	"Alternative", "Alternative Net", "Synthetic Alternative",
	"Confidence", "Potential Savings", "Reasoning", "Generated At",
}

var optionHeaders = []string{
	"Verdict ID", "Method", "Total Cost", "Expected Loss", "Net Value", "Risk Factors",
}

// BuildWorkbook lays out one row per verdict on the Verdicts sheet and one
// row per evaluated option on the Options sheet.
func BuildWorkbook(verdicts []models.EconomicVerdict) (*excelize.File, error) {
	wb := excelize.NewFile()

	if err := wb.SetSheetName(wb.GetSheetName(wb.GetActiveSheetIndex()), VerdictSheet); err != nil {
		wb.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := wb.NewSheet(OptionSheet); err != nil {
		wb.Close()
		return nil, fmt.Errorf("failed to add sheet: %w", err)
	}

	if err := writeRow(wb, VerdictSheet, 1, toRow(verdictHeaders)); err != nil {
		wb.Close()
		return nil, err
	}
	if err := writeRow(wb, OptionSheet, 1, toRow(optionHeaders)); err != nil {
		wb.Close()
		return nil, err
	}

	optRow := 2
	for i, v := range verdicts {
		row := []interface{}{
			v.ID,
			v.CropID,
			string(v.Urgency),
			v.Recommended.Method.Label(),
			round2(v.Recommended.NetValue),
			v.Alternative.Method.Label(),
			round2(v.Alternative.NetValue),
			v.SyntheticAlternative,
			round2(v.Confidence),
			round2(v.PotentialSavings),
			v.Reasoning,
			v.GeneratedAt.UTC().Format(time.RFC3339),
		}
		if err := writeRow(wb, VerdictSheet, i+2, row); err != nil {
			wb.Close()
			return nil, err
		}

		for _, opt := range v.Options {
			row := []interface{}{
				v.ID,
				opt.Method.Label(),
				round2(opt.TotalCost),
				round2(opt.ExpectedLoss),
				round2(opt.NetValue),
				strings.Join(opt.RiskFactors, "; "),
			}
			if err := writeRow(wb, OptionSheet, optRow, row); err != nil {
				wb.Close()
				return nil, err
			}
			optRow++
		}
	}

	if err := wb.SetColWidth(VerdictSheet, "K", "K", 80); err != nil {
		wb.Close()
		return nil, fmt.Errorf("failed to size reasoning column: %w", err)
	}
	return wb, nil
}

// Write renders the verdicts as an xlsx workbook into w.
func Write(w io.Writer, verdicts []models.EconomicVerdict) error {
	wb, err := BuildWorkbook(verdicts)
	if err != nil {
		return err
	}
	defer wb.Close()

	if err := wb.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteFile renders the verdicts into an xlsx file at path.
func WriteFile(path string, verdicts []models.EconomicVerdict) error {
	wb, err := BuildWorkbook(verdicts)
	if err != nil {
		return err
	}
	defer wb.Close()

	if err := wb.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func writeRow(wb *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := wb.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

// round2 rounds money and confidence cells to cents
func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return r
}

func toRow(headers []string) []interface{} {
	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	return row
}
