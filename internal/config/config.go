package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DateLayout is the format of every date in the configuration file.
const DateLayout = "2006-01-02"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for algotrader.
type Config struct {
	Storage   Storage      `yaml:"storage"`
	Alpaca    Alpaca       `yaml:"alpaca"`
	Logging   Logging      `yaml:"logging"`
	Gather    GatherConfig `yaml:"gather"`
	Backtest  Backtest     `yaml:"backtest"`
	Telemetry Telemetry    `yaml:"telemetry"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatherConfig controls data gathering for the backtest universe.
type GatherConfig struct {
	USDaily GatherJobConfig `yaml:"us_daily"`
}

// GatherJobConfig holds parameters for a single data gathering job.
type GatherJobConfig struct {
	StartDate       string `yaml:"start_date"`
	BatchSize       int    `yaml:"batch_size"`
	MaxWorkers      int    `yaml:"max_workers"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Backtest selects the algorithm, universe and period to simulate.
type Backtest struct {
	Algorithm      string         `yaml:"algorithm"`
	Preprocessor   string         `yaml:"preprocessor"`
	Tickers        []string       `yaml:"tickers"`
	StartDate      string         `yaml:"start_date"`
	EndDate        string         `yaml:"end_date"`
	InitialCapital float64        `yaml:"initial_capital"`
	Params         BacktestParams `yaml:"params"`
}

// BacktestParams are the algorithm parameters.
type BacktestParams struct {
	PositionSize  float64 `yaml:"position_size"`
	ShortWindow   int     `yaml:"short_window"`
	LongWindow    int     `yaml:"long_window"`
	OutlierWindow int     `yaml:"outlier_window"`
	OutlierCenter bool    `yaml:"outlier_center"`
}

// Telemetry configures the Prometheus endpoint. An empty address disables it.
type Telemetry struct {
	MetricsAddr string `yaml:"metrics_addr"`
}

// Start parses the backtest start date. An empty date is the zero time.
func (b Backtest) Start() (time.Time, error) { return parseDate(b.StartDate) }

// End parses the backtest end date. An empty date is the zero time.
func (b Backtest) End() (time.Time, error) { return parseDate(b.EndDate) }

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills every unset field that has a sensible default.
func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = cfg.Storage.DataDir + "/algotrader.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	g := &cfg.Gather.USDaily
	if g.BatchSize <= 0 {
		g.BatchSize = 100
	}
	if g.MaxWorkers <= 0 {
		g.MaxWorkers = 4
	}
	if g.RateLimitPerMin <= 0 {
		g.RateLimitPerMin = 200
	}

	b := &cfg.Backtest
	if b.Algorithm == "" {
		b.Algorithm = "sma-cross"
	}
	if b.Preprocessor == "" {
		b.Preprocessor = DefaultPreprocessor(b.Algorithm)
	}
	if b.InitialCapital == 0 {
		b.InitialCapital = 10000
	}
	if b.Params.PositionSize == 0 {
		b.Params.PositionSize = 0.10
	}
	if b.Params.ShortWindow == 0 {
		b.Params.ShortWindow = 50
	}
	if b.Params.LongWindow == 0 {
		b.Params.LongWindow = 200
	}
	if b.Params.OutlierWindow == 0 {
		b.Params.OutlierWindow = 20
	}
}

// DefaultPreprocessor names the preprocessor a built-in algorithm trades on.
func DefaultPreprocessor(algorithm string) string {
	if algorithm == "hmm-regime" {
		return "hmm"
	}
	return "sma"
}

// Validate reports every invalid backtest setting.
func (c *Config) Validate() error {
	var errs []error
	b := c.Backtest
	if len(b.Tickers) == 0 {
		errs = append(errs, errors.New("backtest.tickers is empty"))
	}
	if b.InitialCapital <= 0 {
		errs = append(errs, fmt.Errorf("backtest.initial_capital must be positive, got %v", b.InitialCapital))
	}
	if p := b.Params.PositionSize; p <= 0 || p > 1 {
		errs = append(errs, fmt.Errorf("backtest.params.position_size must be in (0, 1], got %v", p))
	}
	if b.Params.ShortWindow < 1 || b.Params.LongWindow < 1 || b.Params.OutlierWindow < 1 {
		errs = append(errs, errors.New("backtest.params windows must be at least 1"))
	}
	if b.Params.ShortWindow >= b.Params.LongWindow {
		errs = append(errs, fmt.Errorf("backtest.params.short_window (%d) must be below long_window (%d)",
			b.Params.ShortWindow, b.Params.LongWindow))
	}
	start, err := b.Start()
	if err != nil {
		errs = append(errs, fmt.Errorf("backtest.start_date: %w", err))
	}
	end, err := b.End()
	if err != nil {
		errs = append(errs, fmt.Errorf("backtest.end_date: %w", err))
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		errs = append(errs, fmt.Errorf("backtest.end_date %s is before start_date %s", b.EndDate, b.StartDate))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("BACKTEST_TICKERS"); v != "" {
		var tickers []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
				tickers = append(tickers, t)
			}
		}
		cfg.Backtest.Tickers = tickers
	}

	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Telemetry.MetricsAddr = v
	}

	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
