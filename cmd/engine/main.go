package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arjunkhanna/tradedesk/internal/alerts"
	"github.com/arjunkhanna/tradedesk/internal/broker"
	"github.com/arjunkhanna/tradedesk/internal/bus"
	"github.com/arjunkhanna/tradedesk/internal/config"
	"github.com/arjunkhanna/tradedesk/internal/engine"
	"github.com/arjunkhanna/tradedesk/internal/eventlog"
	"github.com/arjunkhanna/tradedesk/internal/execution"
	"github.com/arjunkhanna/tradedesk/internal/market"
	"github.com/arjunkhanna/tradedesk/internal/metrics"
	"github.com/arjunkhanna/tradedesk/internal/reflection"
	"github.com/arjunkhanna/tradedesk/internal/risk"
	"github.com/arjunkhanna/tradedesk/internal/snapshot"
	"github.com/arjunkhanna/tradedesk/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, v, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log.Info().
		Str("mode", cfg.Trading.Mode).
		Strs("symbols", cfg.Trading.Symbols).
		Msg("Starting tradedesk engine")

	tunables := config.NewTunableStore(cfg, log.Logger)
	tunables.Watch(v)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim := market.NewSimulator(cfg.Simulator.Seed, log.Logger)

	// Paper mode runs fully self-contained; the paper broker fills against
	// simulator prices.
	if cfg.Trading.Mode != "paper" {
		log.Fatal().Str("mode", cfg.Trading.Mode).Msg("Live broker adapter not configured in this build")
	}
	paper := broker.NewPaperBroker(sim, cfg.Trading.InitialCapital, cfg.Broker.Fees, log.Logger)
	guard := broker.NewFetchGuard(paper, cfg.Broker, log.Logger)

	snapSvc := snapshot.NewService(guard, sim, paper, log.Logger)
	core := strategy.NewCore(strategy.NewOvertradingGuard(), log.Logger)
	guardian := risk.NewGuardian(cfg.Trading.InitialCapital, cfg.Location(), log.Logger)
	adapter := execution.NewAdapter(paper, log.Logger)
	analyzer := reflection.NewAnalyzer(log.Logger)

	// Sinks: event log always, NATS when enabled
	var sinks []engine.Sink

	var evlog eventlog.Log
	if cfg.EventLog.Backend == "redis" {
		rl, err := eventlog.NewRedisLog(cfg.EventLog.RedisURL, cfg.EventLog.Stream, cfg.EventLog.MaxLen, log.Logger)
		if err != nil {
			log.Warn().Err(err).Msg("Redis event log unavailable, falling back to memory")
			evlog = eventlog.NewMemoryLog(int(cfg.EventLog.MaxLen))
		} else {
			evlog = rl
		}
	} else {
		evlog = eventlog.NewMemoryLog(int(cfg.EventLog.MaxLen))
	}
	defer evlog.Close()
	sinks = append(sinks, engine.NewEventlogSink(evlog, log.Logger))

	if cfg.Bus.Enabled {
		pub, err := bus.Connect(cfg.Bus.URL, cfg.Bus.Prefix, log.Logger)
		if err != nil {
			log.Warn().Err(err).Msg("Observer bus unavailable, continuing without it")
		} else {
			defer pub.Close()
			sinks = append(sinks, engine.SinkFunc(pub.Publish))
		}
	}

	// Alerts: log channel always, Telegram when configured
	channels := []alerts.Alerter{alerts.NewLogAlerter(log.Logger)}
	if cfg.Alerts.TelegramToken != "" {
		tg, err := alerts.NewTelegramAlerter(cfg.Alerts.TelegramToken, cfg.Alerts.TelegramChatIDs, log.Logger)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram alerter unavailable")
		} else {
			channels = append(channels, tg)
		}
	}
	alertMgr := alerts.NewManager(log.Logger, channels...)

	sup, err := engine.NewSupervisor(engine.Deps{
		Config:   cfg,
		Tunables: tunables,
		Snapshot: snapSvc,
		Core:     core,
		Guardian: guardian,
		Adapter:  adapter,
		Analyzer: analyzer,
		Broker:   paper,
		Paper:    paper,
		Sinks:    sinks,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire supervisor")
	}

	guardian.OnAlert(func(a risk.Alert) {
		sup.PublishRiskAlert(a)
		alertCtx, alertCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer alertCancel()
		if err := alertMgr.SendRiskAlert(alertCtx, a); err != nil {
			log.Warn().Err(err).Msg("Risk alert delivery failed")
		}
	})

	var metricsSrv *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsSrv = metrics.NewServer(cfg.Monitoring.PrometheusPort, func() metrics.Health {
			st := sup.Status()
			return metrics.Health{
				Running:    st.Running,
				Cycle:      st.Cycle,
				KillSwitch: guardian.KillSwitchActive(),
			}
		}, log.Logger)
		if err := metricsSrv.Start(); err != nil {
			log.Warn().Err(err).Msg("Metrics server failed to start")
		}
	}

	sup.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	sup.Stop()
	cancel()

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown failed")
		}
	}

	log.Info().Msg("Engine stopped")
}
