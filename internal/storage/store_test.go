package storage

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/agristore/internal/models"
)

// setupTestStore creates a sqlite store in a temporary directory
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "agristore.db")
	store, err := NewStore(DriverSQLite, dbPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	return store, func() { store.Close() }
}

func newReading(sensorID string, temp, humidity float64, ts time.Time) *models.Reading {
	return &models.Reading{
		SensorID:    sensorID,
		Temperature: temp,
		Humidity:    humidity,
		Timestamp:   ts,
		RiskLevel:   models.RiskGreen,
	}
}

func TestNewStore_Errors(t *testing.T) {
	if _, err := NewStore("mysql", "whatever", zerolog.Nop()); err == nil {
		t.Error("expected error for unsupported driver")
	}
	if _, err := NewStore(DriverSQLite, "/nonexistent/path/that/cannot/exist/test.db", zerolog.Nop()); err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		if err := store.Migrate(); err != nil {
			t.Fatalf("migration %d failed: %v", i+2, err)
		}
	}
	if store.Driver() != DriverSQLite {
		t.Errorf("Driver() = %q", store.Driver())
	}
}

func TestInsertAndLatestReading(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	latest, err := store.GetLatestReading("silo-01")
	if err != nil || latest != nil {
		t.Fatalf("GetLatestReading on empty db = %v, %v", latest, err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	older := newReading("silo-01", 21.0, 48.0, now.Add(-time.Hour))
	newer := newReading("silo-01", 31.5, 72.0, now)
	newer.RiskLevel = models.RiskYellow

	for _, r := range []*models.Reading{older, newer} {
		if err := store.InsertReading(r); err != nil {
			t.Fatalf("InsertReading failed: %v", err)
		}
	}

	latest, err = store.GetLatestReading("silo-01")
	if err != nil {
		t.Fatalf("GetLatestReading failed: %v", err)
	}
	if latest == nil {
		t.Fatal("Expected reading, got nil")
	}
	if latest.Temperature != 31.5 || latest.Humidity != 72.0 {
		t.Errorf("latest = %+v", latest)
	}
	if latest.RiskLevel != models.RiskYellow {
		t.Errorf("RiskLevel = %q, want YELLOW", latest.RiskLevel)
	}
	if !latest.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", latest.Timestamp, now)
	}
}

func TestInsertBatch(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if err := store.InsertBatch(nil); err != nil {
		t.Fatalf("InsertBatch(nil) failed: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	readings := make([]*models.Reading, 50)
	for i := range readings {
		readings[i] = newReading("silo-01", 20+float64(i)*0.1, 40, base.Add(time.Duration(i)*time.Minute))
	}
	if err := store.InsertBatch(readings); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	stats, err := store.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats failed: %v", err)
	}
	if stats.TotalReadings != 50 || stats.UniqueSensors != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if !stats.OldestReading.Equal(base) {
		t.Errorf("OldestReading = %v, want %v", stats.OldestReading, base)
	}
}

func TestReadingQueries(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	base := time.Now().UTC().Truncate(time.Second).Add(-10 * time.Hour)
	for i := 0; i < 10; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		store.InsertReading(newReading("silo-01", 20+float64(i), 50, ts))
		store.InsertReading(newReading("shed-02", 30+float64(i), 60, ts))
	}

	t.Run("range for one sensor", func(t *testing.T) {
		got, err := store.GetReadingsInRange("silo-01", base.Add(2*time.Hour), base.Add(5*time.Hour), 100)
		if err != nil {
			t.Fatalf("GetReadingsInRange failed: %v", err)
		}
		if len(got) != 4 {
			t.Fatalf("len = %d, want 4", len(got))
		}
		if got[0].Temperature != 25 || got[3].Temperature != 22 {
			t.Errorf("order = %v .. %v, want newest first", got[0].Temperature, got[3].Temperature)
		}
	})

	t.Run("range for all sensors", func(t *testing.T) {
		got, err := store.GetReadingsInRange("", base, base.Add(time.Hour), 100)
		if err != nil {
			t.Fatalf("GetReadingsInRange failed: %v", err)
		}
		if len(got) != 4 {
			t.Errorf("len = %d, want 4", len(got))
		}
	})

	t.Run("before with limit", func(t *testing.T) {
		got, err := store.GetReadingsBefore("shed-02", base.Add(5*time.Hour), 2)
		if err != nil {
			t.Fatalf("GetReadingsBefore failed: %v", err)
		}
		if len(got) != 2 || got[0].Temperature != 34 {
			t.Errorf("got = %v", got)
		}
	})

	t.Run("sensor ids", func(t *testing.T) {
		ids, err := store.GetSensorIDs()
		if err != nil {
			t.Fatalf("GetSensorIDs failed: %v", err)
		}
		if len(ids) != 2 || ids[0] != "shed-02" || ids[1] != "silo-01" {
			t.Errorf("ids = %v", ids)
		}
	})
}

func TestGetDailyStats(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	for i, temp := range []float64{18, 22, 26} {
		store.InsertReading(newReading("silo-01", temp, 40+float64(i)*10, day.Add(time.Duration(6+i)*time.Hour)))
	}
	store.InsertReading(newReading("silo-01", 30, 70, day.AddDate(0, 0, 1).Add(time.Hour)))

	stats, err := store.GetDailyStats("silo-01", day, day.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("GetDailyStats failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("len = %d, want 2", len(stats))
	}

	first := stats[1]
	if !first.Date.Equal(day) {
		t.Errorf("Date = %v, want %v", first.Date, day)
	}
	if first.MinTemperature != 18 || first.MaxTemperature != 26 || first.AvgTemperature != 22 {
		t.Errorf("temperature stats = %+v", first)
	}
	if first.AvgHumidity != 50 || first.ReadingCount != 3 {
		t.Errorf("humidity stats = %+v", first)
	}
}

func TestMarketData(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	missing, err := store.GetMarketData("wheat")
	if err != nil || missing != nil {
		t.Fatalf("GetMarketData on empty db = %v, %v", missing, err)
	}

	updated := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	m := &models.MarketData{
		CropID:       "wheat",
		CurrentPrice: 2450,
		Source:       models.SourceAuthoritative,
		LastUpdated:  updated,
		History: []models.PricePoint{
			{Date: updated.AddDate(0, 0, -1), Price: 2400, Volume: 120},
			{Date: updated, Price: 2450, Volume: 90},
		},
	}
	if err := store.UpsertMarketData(m); err != nil {
		t.Fatalf("UpsertMarketData failed: %v", err)
	}

	m.CurrentPrice = 2500
	m.LastUpdated = updated.Add(time.Hour)
	if err := store.UpsertMarketData(m); err != nil {
		t.Fatalf("second UpsertMarketData failed: %v", err)
	}
	store.UpsertMarketData(&models.MarketData{CropID: "onion", CurrentPrice: 1800, LastUpdated: updated})

	got, err := store.GetMarketData("wheat")
	if err != nil {
		t.Fatalf("GetMarketData failed: %v", err)
	}
	if got.CurrentPrice != 2500 || !got.LastUpdated.Equal(updated.Add(time.Hour)) {
		t.Errorf("got = %+v", got)
	}
	if len(got.History) != 2 || got.History[1].Price != 2450 {
		t.Errorf("History = %+v", got.History)
	}

	all, err := store.ListMarketData()
	if err != nil {
		t.Fatalf("ListMarketData failed: %v", err)
	}
	if len(all) != 2 || all[0].CropID != "onion" || all[1].CropID != "wheat" {
		t.Errorf("ListMarketData = %v", all)
	}
	if all[0].History == nil || len(all[0].History) != 0 {
		t.Errorf("empty history should round trip as empty: %v", all[0].History)
	}
}

func testVerdict(id string, at time.Time) *models.EconomicVerdict {
	return &models.EconomicVerdict{
		ID:                   id,
		CropID:               "tomato",
		Urgency:              models.UrgencyHigh,
		Recommended:          models.StorageOption{Method: models.MethodColdStorage, NetValue: 9000},
		Alternative:          models.StorageOption{Method: models.MethodSolarDrying, NetValue: 9000},
		SyntheticAlternative: true,
		Reasoning:            "Tomato is highly perishable (9/10) and needs temperature control.",
		Confidence:           0.6,
		GeneratedAt:          at,
	}
}

func TestVerdicts(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	now := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"v-1", "v-2", "v-3"} {
		if err := store.InsertVerdict(testVerdict(id, now.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("InsertVerdict failed: %v", err)
		}
	}

	list, err := store.ListVerdicts(2)
	if err != nil {
		t.Fatalf("ListVerdicts failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "v-3" || list[1].ID != "v-2" {
		t.Fatalf("ListVerdicts = %+v", list)
	}

	rec, err := store.GetVerdict("v-1")
	if err != nil {
		t.Fatalf("GetVerdict failed: %v", err)
	}
	if rec == nil || !rec.Synthetic || rec.Method != "cold_storage" || rec.Urgency != "high" {
		t.Fatalf("GetVerdict = %+v", rec)
	}
	if !rec.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", rec.CreatedAt, now)
	}

	v := rec.Verdict()
	if v.Recommended.Method != models.MethodColdStorage || v.Alternative.NetValue != 9000 || !v.SyntheticAlternative {
		t.Errorf("Verdict() = %+v", v)
	}

	if missing, err := store.GetVerdict("nope"); err != nil || missing != nil {
		t.Errorf("GetVerdict(nope) = %v, %v", missing, err)
	}
}

func TestPrune(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	now := time.Now().UTC()
	store.InsertReading(newReading("silo-01", 22, 50, now.AddDate(0, 0, -40)))
	store.InsertReading(newReading("silo-01", 22, 50, now.AddDate(0, 0, -10)))
	store.InsertVerdict(testVerdict("old", now.AddDate(0, 0, -45)))
	store.InsertVerdict(testVerdict("new", now))
	store.UpsertMarketData(&models.MarketData{CropID: "wheat", CurrentPrice: 2500, LastUpdated: now.AddDate(0, 0, -90)})

	cutoff := now.AddDate(0, 0, -30)
	readings, err := store.PruneReadings(cutoff)
	if err != nil || readings != 1 {
		t.Errorf("PruneReadings = %d, %v, want 1", readings, err)
	}
	verdicts, err := store.PruneVerdicts(cutoff)
	if err != nil || verdicts != 1 {
		t.Errorf("PruneVerdicts = %d, %v, want 1", verdicts, err)
	}

	stats, _ := store.GetStorageStats()
	if stats.TotalReadings != 1 || stats.TotalVerdicts != 1 || stats.MarketCrops != 1 {
		t.Errorf("stats after prune = %+v", stats)
	}
}

func TestConcurrentInserts(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	var wg sync.WaitGroup
	now := time.Now().UTC()
	for g := 0; g < 5; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if err := store.InsertReading(newReading("silo-01", float64(g*20+i), 50, now)); err != nil {
					t.Errorf("InsertReading failed: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	stats, _ := store.GetStorageStats()
	if stats.TotalReadings != 100 {
		t.Errorf("TotalReadings = %d, want 100", stats.TotalReadings)
	}
}
