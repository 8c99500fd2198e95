// Command advisor produces storage verdicts for a file of lots without
// running the server, and optionally exports them as a spreadsheet.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/afroash/agristore/internal/config"
	"github.com/afroash/agristore/internal/crops"
	"github.com/afroash/agristore/internal/decision"
	"github.com/afroash/agristore/internal/models"
	"github.com/afroash/agristore/internal/report"
	"github.com/afroash/agristore/internal/risk"
	"github.com/afroash/agristore/internal/server"
	"github.com/afroash/agristore/internal/storage"
	"github.com/afroash/agristore/internal/strategy"
)

type lotFile struct {
	Lots []server.RecommendationRequest `yaml:"lots"`
}

// lotResult is one line of output
type lotResult struct {
	Lot          int                     `json:"lot"`
	CropID       string                  `json:"crop_id"`
	CropFallback bool                    `json:"crop_fallback,omitempty"`
	MarketSource string                  `json:"market_source,omitempty"`
	Verdict      *models.EconomicVerdict `json:"verdict,omitempty"`
	Error        string                  `json:"error,omitempty"`
	Violations   []string                `json:"violations,omitempty"`
}

// advisor resolves lots and runs them through the decision engine
type advisor struct {
	resolver  *server.Resolver
	decisions *decision.Engine
	history   server.HistoricalStore
	logger    zerolog.Logger
}

func main() {
	configPath := flag.String("config", "", "optional server config (.yaml or .toml)")
	lotsPath := flag.String("lots", "configs/lots.yaml", "file of lots to advise on")
	xlsxPath := flag.String("xlsx", "", "write verdicts to this spreadsheet")
	flag.Parse()

	cfg := &config.AppConfig{}
	if *configPath != "" {
		loaded, err := config.LoadAppConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg.ApplyDefaults()
	}

	// stdout carries the results, logs go to stderr
	logger, _, err := config.NewLogger(config.LoggingConfig{Level: cfg.Logging.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := run(cfg, *lotsPath, *xlsxPath, os.Stdout, logger); err != nil {
		logger.Error().Err(err).Msg("Advisor failed")
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, lotsPath, xlsxPath string, out io.Writer, logger zerolog.Logger) error {
	lots, err := loadLots(lotsPath)
	if err != nil {
		return err
	}

	a, closeStore, err := newAdvisor(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	results := a.adviseAll(lots)
	enc := json.NewEncoder(out)
	var verdicts []models.EconomicVerdict
	for _, res := range results {
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
		if res.Verdict != nil {
			verdicts = append(verdicts, *res.Verdict)
		}
	}
	logger.Info().Int("lots", len(results)).Int("verdicts", len(verdicts)).Msg("Advice complete")

	if xlsxPath != "" {
		if err := report.WriteFile(xlsxPath, verdicts); err != nil {
			return err
		}
		logger.Info().Str("path", xlsxPath).Msg("Spreadsheet written")
	}
	return nil
}

func loadLots(path string) ([]server.RecommendationRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lots: %w", err)
	}
	var f lotFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse lots: %w", err)
	}
	if len(f.Lots) == 0 {
		return nil, fmt.Errorf("no lots in %s", path)
	}
	return f.Lots, nil
}

// newAdvisor builds the engines from cfg. With storage enabled, sensor
// readings and market snapshots resolve from the database and verdicts are
// recorded there.
func newAdvisor(cfg *config.AppConfig, logger zerolog.Logger) (*advisor, func(), error) {
	registry := crops.Default()
	if cfg.Crops.CatalogPath != "" {
		loaded, err := crops.LoadRegistry(cfg.Crops.CatalogPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load crop catalog: %w", err)
		}
		registry = loaded
	}

	riskEngine := risk.NewEngine(cfg.Thresholds(), logger, risk.WithHistoryCapacity(cfg.Risk.HistoryCapacity))
	strategies := strategy.NewRegistry(cfg.ColdStorageParams(), cfg.SolarDryingParams(), riskEngine)
	decisions, err := decision.NewEngine(strategies, cfg.DecisionParams(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create decision engine: %w", err)
	}

	a := &advisor{decisions: decisions, logger: logger}
	closeStore := func() {}
	if cfg.Storage.Enabled {
		store, err := storage.NewStore(cfg.Storage.Driver, cfg.Storage.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		a.history = store
		closeStore = func() { store.Close() }
	}
	a.resolver = server.NewResolver(registry, riskEngine, server.NewMarketStore(), a.history, decisions.Params(), logger)
	return a, closeStore, nil
}

func (a *advisor) adviseAll(lots []server.RecommendationRequest) []lotResult {
	results := make([]lotResult, len(lots))
	for i, lot := range lots {
		results[i] = a.advise(i+1, lot)
	}
	return results
}

func (a *advisor) advise(n int, lot server.RecommendationRequest) lotResult {
	res := lotResult{Lot: n, CropID: lot.CropID}

	resolved, err := a.resolver.Resolve(lot)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.CropFallback = resolved.CropFallback
	res.MarketSource = resolved.MarketSource

	verdict, err := a.decisions.GenerateRecommendation(resolved.Context)
	if err != nil {
		res.Error = err.Error()
		var verr *decision.ValidationError
		if errors.As(err, &verr) {
			res.Violations = verr.Violations
		}
		a.logger.Warn().Err(err).Int("lot", n).Msg("No verdict for lot")
		return res
	}
	res.Verdict = verdict

	if a.history != nil {
		if err := a.history.InsertVerdict(verdict); err != nil {
			a.logger.Warn().Err(err).Str("verdict_id", verdict.ID).Msg("Failed to record verdict")
		}
	}
	return res
}
