package config

import (
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Tunables is the immutable per-cycle snapshot of the operator knobs.
// Stages read one snapshot for the whole cycle so a mid-cycle reload can
// never tear a decision.
type Tunables struct {
	CycleInterval      time.Duration
	MinConfidence      float64
	MaxPositionSize    float64
	MaxDailyLoss       float64
	MaxTradesPerDay    int
	MaxDrawdownPct     float64
	DefaultStopLossPct float64
	ReflectionTrigger  int
	MinRiskRewardBlock float64
	MinRiskRewardWarn  float64
}

// TunablesFrom builds a snapshot from loaded configuration
func TunablesFrom(cfg *Config) Tunables {
	return Tunables{
		CycleInterval:      cfg.Trading.CycleInterval,
		MinConfidence:      cfg.Trading.MinConfidence,
		MaxPositionSize:    cfg.Risk.MaxPositionSize,
		MaxDailyLoss:       cfg.Risk.MaxDailyLoss,
		MaxTradesPerDay:    cfg.Risk.MaxTradesPerDay,
		MaxDrawdownPct:     cfg.Risk.MaxDrawdownPct,
		DefaultStopLossPct: cfg.Risk.DefaultStopLossPct,
		ReflectionTrigger:  cfg.Trading.ReflectionTrigger,
		MinRiskRewardBlock: cfg.Risk.MinRiskRewardBlock,
		MinRiskRewardWarn:  cfg.Risk.MinRiskRewardWarn,
	}
}

// TunableStore holds the current tunables and swaps them atomically when the
// config file changes on disk.
type TunableStore struct {
	current atomic.Pointer[Tunables]
	log     zerolog.Logger
}

// NewTunableStore creates a store seeded from the loaded config
func NewTunableStore(cfg *Config, log zerolog.Logger) *TunableStore {
	s := &TunableStore{log: log.With().Str("component", "tunables").Logger()}
	t := TunablesFrom(cfg)
	s.current.Store(&t)
	return s
}

// Snapshot returns the current tunables value
func (s *TunableStore) Snapshot() Tunables {
	return *s.current.Load()
}

// Set replaces the current tunables
func (s *TunableStore) Set(t Tunables) {
	s.current.Store(&t)
}

// Watch re-reads tunables whenever the backing config file changes.
// Invalid reloads are logged and discarded; the previous snapshot stays.
func (s *TunableStore) Watch(v *viper.Viper) {
	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			s.log.Error().Err(err).Str("file", e.Name).Msg("Config reload failed to unmarshal, keeping previous tunables")
			return
		}
		if err := cfg.Validate(); err != nil {
			s.log.Error().Err(err).Str("file", e.Name).Msg("Config reload failed validation, keeping previous tunables")
			return
		}

		t := TunablesFrom(&cfg)
		s.current.Store(&t)
		s.log.Info().
			Str("file", e.Name).
			Float64("min_confidence", t.MinConfidence).
			Float64("max_daily_loss", t.MaxDailyLoss).
			Msg("Tunables reloaded")
	})
	v.WatchConfig()
}
