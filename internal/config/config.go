// Package config defines all configuration for the order book synchronizer
// and signal engine. Config is loaded from a YAML file with sensitive/
// environment-specific fields overridable via ORDERFLOW_* environment
// variables.
//
// Grounded on 0xtitan6-polymarket-mm's internal/config/config.go: a single
// viper instance, SetEnvPrefix/AutomaticEnv for overrides, Unmarshal into a
// mapstructure-tagged struct, and an explicit Validate covering every
// mandatory field — matching this system's §6 rule that configuration
// errors are fatal on start and never surface at steady state.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration, mapping directly onto the YAML
// file structure. Load sets no defaults: a key missing from the file is
// left at its zero value, and Validate rejects the mandatory ones.
type Config struct {
	Symbol    string          `mapstructure:"symbol"`
	RESTBase  string          `mapstructure:"rest_base_url"`
	WSBase    string          `mapstructure:"ws_base_url"`
	Signal    SignalConfig    `mapstructure:"signal"`
	Buffers   BufferConfig    `mapstructure:"buffers"`
	Watchdog  WatchdogConfig  `mapstructure:"watchdog"`
	Volatility VolatilityConfig `mapstructure:"volatility"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	CSVLog    CSVLogConfig    `mapstructure:"csv_log"`
}

// SignalConfig tunes the Signal Detector's candidate/persistence/
// confirmation thresholds.
//
//   - PersistSamples: consecutive candidate snapshots required before an
//     emission is even considered.
//   - BuyRate / SellRate: the threshold a bucket's own-side rate must clear
//     to become a candidate.
//   - AskDrop / BidDrop: the threshold the opposing side's rate must stay at
//     or below, both for candidacy and for neighbor "strong" confirmation.
//   - ConfirmTradeRate: the factor combined trade volume must exceed its
//     recent average by to confirm a candidate.
type SignalConfig struct {
	PersistSamples   int     `mapstructure:"persist_samples"`
	BuyRate          float64 `mapstructure:"buy_rate"`
	AskDrop          float64 `mapstructure:"ask_drop"`
	SellRate         float64 `mapstructure:"sell_rate"`
	BidDrop          float64 `mapstructure:"bid_drop"`
	ConfirmWindowSec int     `mapstructure:"confirm_window_sec"`
	ConfirmTradeRate float64 `mapstructure:"confirm_trade_rate"`
}

// BufferConfig sizes the Signal Detector's ring buffers and dynamic window
// bounds.
type BufferConfig struct {
	MaxBufferSize int     `mapstructure:"max_buffer_size"`
	WindowMin     int     `mapstructure:"window_min"`
	WindowMax     int     `mapstructure:"window_max"`
	WindowBase    float64 `mapstructure:"window_base"`
	WindowGamma   float64 `mapstructure:"window_gamma"`
}

// WatchdogConfig tunes the Supervisor's staleness detection.
type WatchdogConfig struct {
	StalenessThresholdMS int `mapstructure:"staleness_threshold_ms"`
}

// VolatilityConfig tunes the Volatility Estimator.
type VolatilityConfig struct {
	RefreshIntervalSec int     `mapstructure:"vol_refresh_sec"`
	Candles            int     `mapstructure:"vol_candles"`
	Scale              float64 `mapstructure:"vol_scale"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CSVLogConfig controls the off-hot-path bucket/signal CSV logger.
type CSVLogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// Load reads config from a YAML file with ORDERFLOW_* env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ORDERFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks every mandatory field per §6's configuration table.
// Configuration errors are fatal on start; they must never reach steady
// state.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if c.RESTBase == "" {
		return fmt.Errorf("rest_base_url is required")
	}
	if c.WSBase == "" {
		return fmt.Errorf("ws_base_url is required")
	}
	if c.Signal.PersistSamples <= 0 {
		return fmt.Errorf("signal.persist_samples must be > 0")
	}
	if c.Signal.BuyRate <= 0 || c.Signal.SellRate <= 0 {
		return fmt.Errorf("signal.buy_rate and signal.sell_rate must be > 0")
	}
	if c.Signal.AskDrop <= 0 || c.Signal.BidDrop <= 0 {
		return fmt.Errorf("signal.ask_drop and signal.bid_drop must be > 0")
	}
	if c.Signal.ConfirmWindowSec <= 0 {
		return fmt.Errorf("signal.confirm_window_sec must be > 0")
	}
	if c.Signal.ConfirmTradeRate <= 0 {
		return fmt.Errorf("signal.confirm_trade_rate must be > 0")
	}
	if c.Buffers.MaxBufferSize <= 0 {
		return fmt.Errorf("buffers.max_buffer_size must be > 0")
	}
	if c.Buffers.WindowMin <= 0 || c.Buffers.WindowMax < c.Buffers.WindowMin {
		return fmt.Errorf("buffers.window_min/window_max must satisfy 0 < window_min <= window_max")
	}
	if c.Buffers.WindowBase <= 0 {
		return fmt.Errorf("buffers.window_base must be > 0")
	}
	if c.Watchdog.StalenessThresholdMS <= 0 {
		return fmt.Errorf("watchdog.staleness_threshold_ms must be > 0")
	}
	if c.Volatility.RefreshIntervalSec <= 0 {
		return fmt.Errorf("volatility.vol_refresh_sec must be > 0")
	}
	if c.Volatility.Candles <= 0 {
		return fmt.Errorf("volatility.vol_candles must be > 0")
	}
	if c.Volatility.Scale <= 0 {
		return fmt.Errorf("volatility.vol_scale must be > 0")
	}
	return nil
}

// StalenessThreshold returns the configured staleness threshold as a
// time.Duration.
func (c *Config) StalenessThreshold() time.Duration {
	return time.Duration(c.Watchdog.StalenessThresholdMS) * time.Millisecond
}

// RefreshInterval returns the Volatility Estimator's recompute period as a
// time.Duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Volatility.RefreshIntervalSec) * time.Second
}

// ConfirmWindow returns the Trade Router's pruning window as a
// time.Duration.
func (c *Config) ConfirmWindow() time.Duration {
	return time.Duration(c.Signal.ConfirmWindowSec) * time.Second
}
