package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/afroash/agristore/internal/config"
	"github.com/afroash/agristore/internal/crops"
	"github.com/afroash/agristore/internal/decision"
	"github.com/afroash/agristore/internal/risk"
	"github.com/afroash/agristore/internal/server"
	"github.com/afroash/agristore/internal/storage"
	"github.com/afroash/agristore/internal/strategy"
)

const version = "v0.1.0"

func main() {
	configPath := flag.String("config", "configs/server.yaml", "path to config file (.yaml or .toml)")
	flag.Parse()

	cfg, err := config.LoadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Server exited with error")
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, logger zerolog.Logger) error {
	logger.Info().
		Str("version", version).
		Str("addr", cfg.Addr()).
		Msg("Starting storage advisor server")
	logger.Debug().Msg(cfg.String())

	registry := crops.Default()
	if cfg.Crops.CatalogPath != "" {
		loaded, err := crops.LoadRegistry(cfg.Crops.CatalogPath)
		if err != nil {
			return fmt.Errorf("failed to load crop catalog: %w", err)
		}
		registry = loaded
	}
	logger.Info().Int("crops", registry.Len()).Msg("Crop catalog loaded")

	riskEngine := risk.NewEngine(cfg.Thresholds(), logger.With().Str("component", "risk").Logger(),
		risk.WithHistoryCapacity(cfg.Risk.HistoryCapacity))
	strategies := strategy.NewRegistry(cfg.ColdStorageParams(), cfg.SolarDryingParams(), riskEngine)
	decisions, err := decision.NewEngine(strategies, cfg.DecisionParams(), logger.With().Str("component", "decision").Logger())
	if err != nil {
		return fmt.Errorf("failed to create decision engine: %w", err)
	}

	markets := server.NewMarketStore()
	services := server.Services{
		Risk:      riskEngine,
		Crops:     registry,
		Decisions: decisions,
		Markets:   markets,
	}

	stream := server.NewHandler(cfg.Server.AuthToken, riskEngine, markets, logger.With().Str("component", "stream").Logger(),
		cfg.Server.AllowedOrigins...)

	var (
		store   *storage.Store
		writer  *storage.DBWriter
		cleaner *storage.RetentionCleaner
		api     *server.APIHandler
	)
	if cfg.Storage.Enabled {
		if cfg.Storage.Driver == storage.DriverSQLite {
			if err := os.MkdirAll(filepath.Dir(cfg.Storage.DSN), 0755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		store, err = storage.NewStore(cfg.Storage.Driver, cfg.Storage.DSN, logger.With().Str("component", "storage").Logger())
		if err != nil {
			return err
		}
		defer func() {
			store.Close()
			logger.Info().Msg("Store closed")
		}()

		snapshots, err := store.ListMarketData()
		if err != nil {
			return fmt.Errorf("failed to load market snapshots: %w", err)
		}
		markets.Load(snapshots)
		logger.Info().Int("crops", len(snapshots)).Msg("Market snapshots restored")

		writer = storage.NewDBWriter(store, storage.DBWriterConfig{
			BatchSize:   cfg.Storage.BatchSize,
			FlushPeriod: cfg.Storage.FlushPeriod.Duration,
			ChannelSize: cfg.Storage.ChannelSize,
		}, logger)
		cleaner = storage.NewRetentionCleaner(store, storage.RetentionPolicy{
			ReadingDays: cfg.Storage.RetentionDays,
			VerdictDays: cfg.Storage.VerdictDays,
			Period:      cfg.Storage.CleanupPeriod.Duration,
		}, logger)

		stream.SetDBWriter(writer)
		stream.SetMarketPersister(store)
		api = server.NewAPIHandlerWithHistory(services, store, version, logger)
		api.AddStatsSource("writer", func() interface{} { return writer.Stats() })
		api.AddStatsSource("retention", func() interface{} { return cleaner.Stats() })
	} else {
		logger.Warn().Msg("Storage disabled, history endpoints will answer 503")
		api = server.NewAPIHandler(services, version, logger)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.NewRouter(api, stream, logger),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down server...")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}

	if writer != nil {
		writer.Stop()
		logger.Info().Msg("DBWriter stopped")
	}
	if cleaner != nil {
		cleaner.Stop()
		logger.Info().Msg("RetentionCleaner stopped")
	}

	logger.Info().Msg("Server stopped")
	return nil
}
