// Command backtest replays the decision pipeline over simulated history and
// prints run statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arjunkhanna/tradedesk/internal/config"
	"github.com/arjunkhanna/tradedesk/pkg/backtest"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (defaults applied when empty)")
		cycles     = flag.Int("cycles", 500, "number of virtual cycles to replay")
		seed       = flag.Int64("seed", 0, "simulator seed (0 uses the configured seed)")
		symbols    = flag.String("symbols", "", "comma-separated watchlist override, e.g. NSE:RELIANCE,NSE:TCS")
		interval   = flag.Duration("interval", 5*time.Minute, "virtual time per cycle")
	)
	flag.Parse()

	cfg, _, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	watch := cfg.Trading.Symbols
	if *symbols != "" {
		watch = strings.Split(*symbols, ",")
	}
	runSeed := cfg.Simulator.Seed
	if *seed != 0 {
		runSeed = *seed
	}

	engine, err := backtest.New(backtest.Params{
		Symbols:  watch,
		Cycles:   *cycles,
		Seed:     runSeed,
		Capital:  cfg.Trading.InitialCapital,
		Interval: *interval,
		Tunables: config.TunablesFrom(cfg),
		Fees:     cfg.Broker.Fees,
		Broker:   cfg.Broker,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Backtest setup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	res, err := engine.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Backtest run failed")
	}

	m := res.Metrics
	fmt.Printf("cycles          %d (%.2fs wall)\n", res.Cycles, time.Since(started).Seconds())
	fmt.Printf("signals         %d\n", res.Signals)
	fmt.Printf("decisions       %d\n", res.Decisions)
	fmt.Printf("vetoes          %d\n", res.Vetoes)
	fmt.Printf("executions      %d\n", res.Executions)
	fmt.Printf("closed trades   %d\n", len(res.Trades))
	fmt.Printf("total pnl       %.2f (%.2f%%)\n", m.TotalPnL, m.ReturnPct)
	fmt.Printf("win rate        %.1f%%\n", m.WinRate)
	if math.IsInf(m.ProfitFactor, 1) {
		fmt.Printf("profit factor   inf\n")
	} else {
		fmt.Printf("profit factor   %.2f\n", m.ProfitFactor)
	}
	fmt.Printf("max drawdown    %.2f%%\n", m.MaxDrawdownPct)
	fmt.Printf("sharpe (cycle)  %.3f\n", m.SharpeRatio)
}
