package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/afroash/agristore/internal/config"
	"github.com/afroash/agristore/internal/report"
)

const sampleLots = `
lots:
  - crop_id: wheat
    distance_km: 30
    volume_quintals: 50
    market_price: 2500
    reading:
      temperature: 22
      humidity: 50
  - crop_id: dragonfruit
    distance_km: 10
    volume_quintals: 20
    urgency: high
    reading:
      temperature: 24
      humidity: 55
  - crop_id: wheat
    distance_km: 30
    volume_quintals: 50
`

func writeLots(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "lots.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write lots: %v", err)
	}
	return path
}

func defaultConfig() *config.AppConfig {
	cfg := &config.AppConfig{}
	cfg.ApplyDefaults()
	return cfg
}

func decodeResults(t *testing.T, out *bytes.Buffer) []lotResult {
	t.Helper()
	var results []lotResult
	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		var res lotResult
		if err := json.Unmarshal(scanner.Bytes(), &res); err != nil {
			t.Fatalf("bad output line %q: %v", scanner.Text(), err)
		}
		results = append(results, res)
	}
	return results
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	xlsxPath := filepath.Join(dir, "verdicts.xlsx")
	var out bytes.Buffer

	if err := run(defaultConfig(), writeLots(t, dir, sampleLots), xlsxPath, &out, zerolog.Nop()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	results := decodeResults(t, &out)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	first := results[0]
	if first.Verdict == nil || first.Error != "" {
		t.Fatalf("lot 1 = %+v, want a verdict", first)
	}
	if first.MarketSource != "request" || first.Verdict.CropID != "wheat" {
		t.Errorf("lot 1 market source %q, crop %q", first.MarketSource, first.Verdict.CropID)
	}

	second := results[1]
	if !second.CropFallback || second.Verdict == nil {
		t.Errorf("lot 2 = %+v, want a verdict on the default crop", second)
	}
	if second.MarketSource != "fallback" {
		t.Errorf("lot 2 market source = %q, want fallback", second.MarketSource)
	}

	third := results[2]
	if third.Verdict != nil || third.Error == "" || len(third.Violations) == 0 {
		t.Errorf("lot 3 = %+v, want validation violations for the missing reading", third)
	}

	wb, err := excelize.OpenFile(xlsxPath)
	if err != nil {
		t.Fatalf("open spreadsheet: %v", err)
	}
	defer wb.Close()
	rows, err := wb.GetRows(report.VerdictSheet)
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("spreadsheet has %d rows, want header plus 2 verdicts", len(rows))
	}
}

func TestRun_WithStorage(t *testing.T) {
	dir := t.TempDir()
	cfg := defaultConfig()
	cfg.Storage.Enabled = true
	cfg.Storage.DSN = filepath.Join(dir, "advisor.db")
	var out bytes.Buffer

	lots := writeLots(t, dir, sampleLots)
	if err := run(cfg, lots, "", &out, zerolog.Nop()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	a, closeStore, err := newAdvisor(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("newAdvisor failed: %v", err)
	}
	defer closeStore()
	verdicts, err := a.history.ListVerdicts(10)
	if err != nil {
		t.Fatalf("ListVerdicts failed: %v", err)
	}
	if len(verdicts) != 2 {
		t.Errorf("recorded %d verdicts, want 2", len(verdicts))
	}
}

func TestLoadLots_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no lots", "lots: []\n", "no lots"},
		{"malformed", "lots: {\n", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadLots(writeLots(t, dir, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}
