package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/afroash/agristore/internal/decision"
	"github.com/afroash/agristore/internal/risk"
	"github.com/afroash/agristore/internal/strategy"
)

// AppConfig holds all configuration for the storage advisor service
type AppConfig struct {
	Server     ServerSettings      `yaml:"server" toml:"server"`
	Storage    StorageSettings     `yaml:"storage" toml:"storage"`
	Logging    LoggingConfig       `yaml:"logging" toml:"logging"`
	Risk       RiskSettings        `yaml:"risk" toml:"risk"`
	Decision   DecisionSettings    `yaml:"decision" toml:"decision"`
	Strategies StrategySettings    `yaml:"strategies" toml:"strategies"`
	Crops      CropCatalogSettings `yaml:"crops" toml:"crops"`
}

// ServerSettings contains HTTP and websocket server configuration
type ServerSettings struct {
	Port           int      `yaml:"port" toml:"port"`
	Host           string   `yaml:"host" toml:"host"`
	AuthToken      string   `yaml:"auth_token" toml:"auth_token"`
	ReadTimeout    Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout   Duration `yaml:"write_timeout" toml:"write_timeout"`
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
	HistorySize    int      `yaml:"history_size" toml:"history_size"`
}

// StorageSettings contains database configuration
type StorageSettings struct {
	Enabled       bool     `yaml:"enabled" toml:"enabled"`
	Driver        string   `yaml:"driver" toml:"driver"`
	DSN           string   `yaml:"dsn" toml:"dsn"`
	RetentionDays int      `yaml:"retention_days" toml:"retention_days"`
	VerdictDays   int      `yaml:"verdict_retention_days" toml:"verdict_retention_days"`
	CleanupPeriod Duration `yaml:"cleanup_period" toml:"cleanup_period"`
	BatchSize     int      `yaml:"batch_size" toml:"batch_size"`
	FlushPeriod   Duration `yaml:"flush_period" toml:"flush_period"`
	ChannelSize   int      `yaml:"channel_size" toml:"channel_size"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level    string `yaml:"level" toml:"level"`
	Format   string `yaml:"format" toml:"format"`
	FilePath string `yaml:"file_path" toml:"file_path"`
}

// RiskSettings overrides risk bands and history size
type RiskSettings struct {
	Thresholds      risk.Overrides `yaml:"thresholds" toml:"thresholds"`
	HistoryCapacity int            `yaml:"history_capacity" toml:"history_capacity"`
}

// DecisionSettings are the default decision policy
type DecisionSettings struct {
	RiskTolerance      string   `yaml:"risk_tolerance" toml:"risk_tolerance"`
	PrioritizeProfit   *bool    `yaml:"prioritize_profit" toml:"prioritize_profit"`
	StorageDays        int      `yaml:"storage_days" toml:"storage_days"`
	RiskPenaltyWeight  float64  `yaml:"risk_penalty_weight" toml:"risk_penalty_weight"`
	ProfitGapThreshold float64  `yaml:"profit_gap_threshold" toml:"profit_gap_threshold"`
	MaxReadingAge      Duration `yaml:"max_reading_age" toml:"max_reading_age"`
	MaxMarketAge       Duration `yaml:"max_market_age" toml:"max_market_age"`
	StaleReadingAge    Duration `yaml:"stale_reading_age" toml:"stale_reading_age"`
}

// StrategySettings are per-method cost tables laid over the defaults
type StrategySettings struct {
	ColdStorage strategy.Overrides `yaml:"cold_storage" toml:"cold_storage"`
	SolarDrying strategy.Overrides `yaml:"solar_drying" toml:"solar_drying"`
}

// CropCatalogSettings points at an optional crop catalog file
type CropCatalogSettings struct {
	CatalogPath string `yaml:"catalog_path" toml:"catalog_path"`
}

// LoadAppConfig loads configuration from a YAML or TOML file
func LoadAppConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config AppConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	if err := config.OverrideFromEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// ApplyDefaults sets default values for any unset fields
func (ac *AppConfig) ApplyDefaults() {
	if ac.Server.Port == 0 {
		ac.Server.Port = 8081
	}
	if ac.Server.Host == "" {
		ac.Server.Host = "localhost"
	}
	if ac.Server.ReadTimeout.Duration == 0 {
		ac.Server.ReadTimeout.Duration = 60 * time.Second
	}
	if ac.Server.WriteTimeout.Duration == 0 {
		ac.Server.WriteTimeout.Duration = 10 * time.Second
	}
	if ac.Server.HistorySize == 0 {
		ac.Server.HistorySize = risk.DefaultHistoryCapacity
	}

	if ac.Storage.Driver == "" {
		ac.Storage.Driver = "sqlite3"
	}
	if ac.Storage.DSN == "" {
		ac.Storage.DSN = "./data/agristore.db"
	}
	if ac.Storage.RetentionDays == 0 {
		ac.Storage.RetentionDays = 30
	}
	if ac.Storage.VerdictDays == 0 {
		ac.Storage.VerdictDays = 365
	}
	if ac.Storage.CleanupPeriod.Duration == 0 {
		ac.Storage.CleanupPeriod.Duration = time.Hour
	}
	if ac.Storage.BatchSize == 0 {
		ac.Storage.BatchSize = 100
	}
	if ac.Storage.FlushPeriod.Duration == 0 {
		ac.Storage.FlushPeriod.Duration = 5 * time.Second
	}
	if ac.Storage.ChannelSize == 0 {
		ac.Storage.ChannelSize = 1000
	}

	if ac.Logging.Level == "" {
		ac.Logging.Level = "info"
	}
	if ac.Logging.Format == "" {
		ac.Logging.Format = "json"
	}

	if ac.Risk.HistoryCapacity == 0 {
		ac.Risk.HistoryCapacity = ac.Server.HistorySize
	}

	def := decision.DefaultParams()
	d := &ac.Decision
	if d.RiskTolerance == "" {
		d.RiskTolerance = string(def.RiskTolerance)
	}
	if d.PrioritizeProfit == nil {
		v := def.PrioritizeProfit
		d.PrioritizeProfit = &v
	}
	if d.StorageDays == 0 {
		d.StorageDays = def.StorageDays
	}
	if d.RiskPenaltyWeight == 0 {
		d.RiskPenaltyWeight = def.RiskPenaltyWeight
	}
	if d.ProfitGapThreshold == 0 {
		d.ProfitGapThreshold = def.ProfitGapThreshold
	}
	if d.MaxReadingAge.Duration == 0 {
		d.MaxReadingAge.Duration = def.MaxReadingAge
	}
	if d.MaxMarketAge.Duration == 0 {
		d.MaxMarketAge.Duration = def.MaxMarketAge
	}
	if d.StaleReadingAge.Duration == 0 {
		d.StaleReadingAge.Duration = def.StaleReadingAge
	}
}

// OverrideFromEnv overrides config values from environment variables
func (ac *AppConfig) OverrideFromEnv() error {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SERVER_PORT %q: %w", v, err)
		}
		ac.Server.Port = port
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		ac.Server.Host = v
	}
	if v := os.Getenv("SERVER_AUTH_TOKEN"); v != "" {
		ac.Server.AuthToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		ac.Logging.Level = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		ac.Storage.Driver = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		ac.Storage.DSN = v
	}
	return nil
}

// Validate checks if the configuration is valid
func (ac *AppConfig) Validate() error {
	if ac.Server.Port < 1 || ac.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if ac.Server.AuthToken == "" {
		return fmt.Errorf("auth token is required")
	}
	if ac.Server.HistorySize < 10 {
		return fmt.Errorf("history size must be at least 10")
	}
	switch ac.Storage.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unknown storage driver %q", ac.Storage.Driver)
	}
	if ac.Storage.RetentionDays <= 0 || ac.Storage.VerdictDays <= 0 {
		return fmt.Errorf("retention days must be positive")
	}
	if err := risk.MergeThresholds(ac.Risk.Thresholds).Validate(); err != nil {
		return fmt.Errorf("risk thresholds: %w", err)
	}
	if err := ac.DecisionParams().Validate(); err != nil {
		return fmt.Errorf("decision: %w", err)
	}
	if err := ac.ColdStorageParams().Validate(); err != nil {
		return fmt.Errorf("cold storage: %w", err)
	}
	if err := ac.SolarDryingParams().Validate(); err != nil {
		return fmt.Errorf("solar drying: %w", err)
	}
	return nil
}

// ColdStorageParams returns the configured cold storage cost table
func (ac *AppConfig) ColdStorageParams() strategy.Params {
	return ac.Strategies.ColdStorage.Apply(strategy.DefaultColdStorageParams())
}

// SolarDryingParams returns the configured solar drying cost table
func (ac *AppConfig) SolarDryingParams() strategy.Params {
	return ac.Strategies.SolarDrying.Apply(strategy.DefaultSolarDryingParams())
}

// Thresholds returns the configured risk bands merged over the defaults
func (ac *AppConfig) Thresholds() risk.Thresholds {
	return risk.MergeThresholds(ac.Risk.Thresholds)
}

// DecisionParams converts the decision section into engine parameters
func (ac *AppConfig) DecisionParams() decision.Params {
	p := decision.DefaultParams()
	d := ac.Decision
	p.RiskTolerance = decision.RiskTolerance(d.RiskTolerance)
	if d.PrioritizeProfit != nil {
		p.PrioritizeProfit = *d.PrioritizeProfit
	}
	p.StorageDays = d.StorageDays
	p.RiskPenaltyWeight = d.RiskPenaltyWeight
	p.ProfitGapThreshold = d.ProfitGapThreshold
	p.MaxReadingAge = d.MaxReadingAge.Duration
	p.MaxMarketAge = d.MaxMarketAge.Duration
	p.StaleReadingAge = d.StaleReadingAge.Duration
	return p
}

// Addr is the listen address
func (ac *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", ac.Server.Host, ac.Server.Port)
}

// String returns a safe string representation (hides auth token)
func (ac *AppConfig) String() string {
	return fmt.Sprintf("AppConfig{Server: [Addr=%s, Token=%s, Origins=%v, History=%d], Storage: [Enabled=%t, Driver=%s, Retention=%dd], Logging: %+v, Decision: %s}",
		ac.Addr(),
		maskToken(ac.Server.AuthToken),
		ac.Server.AllowedOrigins,
		ac.Server.HistorySize,
		ac.Storage.Enabled,
		ac.Storage.Driver,
		ac.Storage.RetentionDays,
		ac.Logging,
		ac.Decision.RiskTolerance,
	)
}

// maskToken masks all but first 4 characters of a token
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}

// Duration decodes "30s"-style strings from both YAML and TOML
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
