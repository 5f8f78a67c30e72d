package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Resolve from a directory with no config file so only defaults apply
	t.Chdir(t.TempDir())

	cfg, v, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, "paper", cfg.Trading.Mode)
	assert.Equal(t, []string{"NSE:RELIANCE", "NSE:TCS", "NSE:HDFCBANK"}, cfg.Trading.Symbols)
	assert.Equal(t, 60*time.Second, cfg.Trading.CycleInterval)
	assert.Equal(t, 0.6, cfg.Trading.MinConfidence)
	assert.Equal(t, 500_000.0, cfg.Trading.InitialCapital)
	assert.Equal(t, 10_000.0, cfg.Risk.MaxDailyLoss)
	assert.Equal(t, 20, cfg.Risk.MaxTradesPerDay)
	assert.Equal(t, "Asia/Kolkata", cfg.App.Timezone)
	assert.Equal(t, "memory", cfg.EventLog.Backend)
	assert.Equal(t, int64(42), cfg.Simulator.Seed)
	assert.Equal(t, 9100, cfg.Monitoring.PrometheusPort)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
trading:
  mode: paper
  symbols: ["NSE:INFY"]
  cycle_interval: 30s
  min_confidence: 0.7
risk:
  max_daily_loss: 5000
`), 0o644))

	cfg, _, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"NSE:INFY"}, cfg.Trading.Symbols)
	assert.Equal(t, 30*time.Second, cfg.Trading.CycleInterval)
	assert.Equal(t, 0.7, cfg.Trading.MinConfidence)
	assert.Equal(t, 5_000.0, cfg.Risk.MaxDailyLoss)
	assert.Equal(t, 20, cfg.Risk.MaxTradesPerDay, "unset keys keep their defaults")
}

func validConfig() *Config {
	return &Config{
		App: AppConfig{Timezone: "Asia/Kolkata"},
		Trading: TradingConfig{
			Mode:          "paper",
			Symbols:       []string{"NSE:RELIANCE"},
			CycleInterval: time.Minute,
			MinConfidence: 0.6,
		},
		Risk: RiskConfig{
			MaxPositionSize:    100_000,
			MaxDailyLoss:       10_000,
			MaxDrawdownPct:     5,
			DefaultStopLossPct: 2,
		},
		EventLog: EventLogConfig{Backend: "memory"},
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad mode", func(c *Config) { c.Trading.Mode = "demo" }, "trading.mode"},
		{"empty watchlist", func(c *Config) { c.Trading.Symbols = nil }, "trading.symbols"},
		{"interval too short", func(c *Config) { c.Trading.CycleInterval = 100 * time.Millisecond }, "cycle_interval"},
		{"confidence out of range", func(c *Config) { c.Trading.MinConfidence = 1.5 }, "min_confidence"},
		{"zero position size", func(c *Config) { c.Risk.MaxPositionSize = 0 }, "max_position_size"},
		{"zero daily loss", func(c *Config) { c.Risk.MaxDailyLoss = 0 }, "max_daily_loss"},
		{"drawdown over 100", func(c *Config) { c.Risk.MaxDrawdownPct = 150 }, "max_drawdown_pct"},
		{"zero stop pct", func(c *Config) { c.Risk.DefaultStopLossPct = 0 }, "default_stop_loss_pct"},
		{"bad timezone", func(c *Config) { c.App.Timezone = "Mars/Olympus" }, "timezone"},
		{"bad backend", func(c *Config) { c.EventLog.Backend = "kafka" }, "event_log.backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "Asia/Kolkata", cfg.Location().String())

	cfg.App.Timezone = "Nowhere/Nope"
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestTunablesSnapshotAndSet(t *testing.T) {
	cfg := validConfig()
	cfg.Risk.MaxTradesPerDay = 20
	store := NewTunableStore(cfg, zerolog.Nop())

	tun := store.Snapshot()
	assert.Equal(t, 0.6, tun.MinConfidence)
	assert.Equal(t, 10_000.0, tun.MaxDailyLoss)

	tun.MinConfidence = 0.8
	store.Set(tun)
	assert.Equal(t, 0.8, store.Snapshot().MinConfidence, "Set swaps the whole snapshot atomically")
}
