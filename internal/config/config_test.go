package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const validYAML = `
symbol: BTCUSDT
rest_base_url: https://fapi.binance.com
ws_base_url: wss://fstream.binance.com
signal:
  persist_samples: 2
  buy_rate: 1.4
  ask_drop: 0.7
  sell_rate: 1.4
  bid_drop: 0.7
  confirm_window_sec: 45
  confirm_trade_rate: 1.2
buffers:
  max_buffer_size: 200
  window_min: 4
  window_max: 40
  window_base: 10
  window_gamma: 0.8
watchdog:
  staleness_threshold_ms: 500
volatility:
  vol_refresh_sec: 1800
  vol_candles: 100
  vol_scale: 0.1
logging:
  level: info
  format: console
csv_log:
  enabled: false
  dir: ""
`

func TestLoad_ValidConfig(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Symbol != "BTCUSDT" {
		t.Fatalf("symbol = %q, want BTCUSDT", cfg.Symbol)
	}
	if cfg.StalenessThreshold().Milliseconds() != 500 {
		t.Fatalf("staleness threshold = %v, want 500ms", cfg.StalenessThreshold())
	}
}

func TestValidate_MissingSymbol(t *testing.T) {
	path := writeTempConfig(t, `
rest_base_url: https://fapi.binance.com
ws_base_url: wss://fstream.binance.com
signal:
  persist_samples: 2
  buy_rate: 1.4
  ask_drop: 0.7
  sell_rate: 1.4
  bid_drop: 0.7
  confirm_window_sec: 45
  confirm_trade_rate: 1.2
buffers:
  max_buffer_size: 200
  window_min: 4
  window_max: 40
  window_base: 10
  window_gamma: 0.8
watchdog:
  staleness_threshold_ms: 500
volatility:
  vol_refresh_sec: 1800
  vol_candles: 100
  vol_scale: 0.1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for missing symbol")
	}
}

func TestValidate_WindowMaxBelowWindowMin(t *testing.T) {
	cfg := &Config{
		Symbol: "BTCUSDT", RESTBase: "x", WSBase: "y",
		Signal:  SignalConfig{PersistSamples: 2, BuyRate: 1.4, AskDrop: 0.7, SellRate: 1.4, BidDrop: 0.7, ConfirmWindowSec: 45, ConfirmTradeRate: 1.2},
		Buffers: BufferConfig{MaxBufferSize: 200, WindowMin: 40, WindowMax: 4, WindowBase: 10, WindowGamma: 0.8},
		Watchdog: WatchdogConfig{StalenessThresholdMS: 500},
		Volatility: VolatilityConfig{RefreshIntervalSec: 1800, Candles: 100, Scale: 0.1},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for window_max < window_min")
	}
}
