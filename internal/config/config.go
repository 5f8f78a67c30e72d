// Package config loads engine configuration and initializes logging
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all engine configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	Simulator  SimulatorConfig  `mapstructure:"simulator"`
	Bus        BusConfig        `mapstructure:"bus"`
	EventLog   EventLogConfig   `mapstructure:"event_log"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
	Timezone    string `mapstructure:"timezone"`   // engine-local day boundary
}

// TradingConfig contains cycle and watchlist settings
type TradingConfig struct {
	Mode              string        `mapstructure:"mode"`    // "paper" or "live"
	Symbols           []string      `mapstructure:"symbols"` // ["NSE:RELIANCE", ...]
	CycleInterval     time.Duration `mapstructure:"cycle_interval"`
	MinConfidence     float64       `mapstructure:"min_confidence"`
	InitialCapital    float64       `mapstructure:"initial_capital"`
	ReflectionTrigger int           `mapstructure:"reflection_trigger"`
}

// RiskConfig contains the risk guardian limits
type RiskConfig struct {
	MaxPositionSize    float64 `mapstructure:"max_position_size"`     // per-order INR cap
	MaxDailyLoss       float64 `mapstructure:"max_daily_loss"`        // kill-switch threshold
	MaxTradesPerDay    int     `mapstructure:"max_trades_per_day"`    // execution count cap
	MaxDrawdownPct     float64 `mapstructure:"max_drawdown_pct"`      // peak-to-trough cap
	DefaultStopLossPct float64 `mapstructure:"default_stop_loss_pct"` // baseline SL distance
	MinRiskRewardBlock float64 `mapstructure:"min_risk_reward_block"`
	MinRiskRewardWarn  float64 `mapstructure:"min_risk_reward_warn"`
}

// BrokerConfig contains the broker adapter settings
type BrokerConfig struct {
	QuoteTimeout      time.Duration `mapstructure:"quote_timeout"`
	HistoricalTimeout time.Duration `mapstructure:"historical_timeout"`
	RateLimitPerSec   float64       `mapstructure:"rate_limit_per_sec"`
	Fees              FeeConfig     `mapstructure:"fees"`
}

// FeeConfig contains the paper broker fill model
type FeeConfig struct {
	BaseSlippage float64 `mapstructure:"base_slippage"` // e.g. 0.0005 = 0.05%
	MaxSlippage  float64 `mapstructure:"max_slippage"`
	Brokerage    float64 `mapstructure:"brokerage"` // per-fill percentage
}

// SimulatorConfig seeds the synthetic market data generator
type SimulatorConfig struct {
	Seed int64 `mapstructure:"seed"`
}

// BusConfig contains the optional NATS observer broadcast settings
type BusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Prefix  string `mapstructure:"prefix"`
}

// EventLogConfig selects the structured event log backend
type EventLogConfig struct {
	Backend  string `mapstructure:"backend"` // "memory" or "redis"
	RedisURL string `mapstructure:"redis_url"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// AlertsConfig contains the alert sink settings
type AlertsConfig struct {
	TelegramToken   string  `mapstructure:"telegram_token"`
	TelegramChatIDs []int64 `mapstructure:"telegram_chat_ids"`
}

// MonitoringConfig contains the metrics server settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables. The returned
// viper instance backs the dynamic tunables store.
func Load(configPath string) (*Config, *viper.Viper, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("TRADEDESK")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and environment variables apply
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return &cfg, v, nil
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.Trading.Mode != "paper" && c.Trading.Mode != "live" {
		return fmt.Errorf("trading.mode must be \"paper\" or \"live\", got %q", c.Trading.Mode)
	}
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("trading.symbols must not be empty")
	}
	if c.Trading.CycleInterval < time.Second {
		return fmt.Errorf("trading.cycle_interval must be at least 1s, got %s", c.Trading.CycleInterval)
	}
	if c.Trading.MinConfidence < 0 || c.Trading.MinConfidence > 1 {
		return fmt.Errorf("trading.min_confidence must be in [0,1], got %f", c.Trading.MinConfidence)
	}
	if c.Risk.MaxPositionSize <= 0 {
		return fmt.Errorf("risk.max_position_size must be positive")
	}
	if c.Risk.MaxDailyLoss <= 0 {
		return fmt.Errorf("risk.max_daily_loss must be positive")
	}
	if c.Risk.MaxDrawdownPct <= 0 || c.Risk.MaxDrawdownPct > 100 {
		return fmt.Errorf("risk.max_drawdown_pct must be in (0,100], got %f", c.Risk.MaxDrawdownPct)
	}
	if c.Risk.DefaultStopLossPct <= 0 {
		return fmt.Errorf("risk.default_stop_loss_pct must be positive")
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("app.timezone %q is not a valid location: %w", c.App.Timezone, err)
	}
	if c.EventLog.Backend != "memory" && c.EventLog.Backend != "redis" {
		return fmt.Errorf("event_log.backend must be \"memory\" or \"redis\", got %q", c.EventLog.Backend)
	}
	return nil
}

// Location resolves the configured engine timezone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tradedesk")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")
	v.SetDefault("app.timezone", "Asia/Kolkata")

	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.symbols", []string{"NSE:RELIANCE", "NSE:TCS", "NSE:HDFCBANK"})
	v.SetDefault("trading.cycle_interval", "60s")
	v.SetDefault("trading.min_confidence", 0.6)
	v.SetDefault("trading.initial_capital", 500000.0)
	v.SetDefault("trading.reflection_trigger", 10)

	v.SetDefault("risk.max_position_size", 100000.0)
	v.SetDefault("risk.max_daily_loss", 10000.0)
	v.SetDefault("risk.max_trades_per_day", 20)
	v.SetDefault("risk.max_drawdown_pct", 5.0)
	v.SetDefault("risk.default_stop_loss_pct", 2.0)
	v.SetDefault("risk.min_risk_reward_block", 0.8)
	v.SetDefault("risk.min_risk_reward_warn", 1.2)

	v.SetDefault("broker.quote_timeout", "30s")
	v.SetDefault("broker.historical_timeout", "60s")
	v.SetDefault("broker.rate_limit_per_sec", 5.0)
	v.SetDefault("broker.fees.base_slippage", 0.0005)
	v.SetDefault("broker.fees.max_slippage", 0.003)
	v.SetDefault("broker.fees.brokerage", 0.0003)

	v.SetDefault("simulator.seed", 42)

	v.SetDefault("bus.enabled", false)
	v.SetDefault("bus.url", "nats://localhost:4222")
	v.SetDefault("bus.prefix", "tradedesk.engine")

	v.SetDefault("event_log.backend", "memory")
	v.SetDefault("event_log.redis_url", "redis://localhost:6379/0")
	v.SetDefault("event_log.stream", "tradedesk:events")
	v.SetDefault("event_log.max_len", 10000)

	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}
