// Package backtest replays the decision pipeline over simulated history
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/arjunkhanna/tradedesk/internal/broker"
	"github.com/arjunkhanna/tradedesk/internal/config"
	"github.com/arjunkhanna/tradedesk/internal/execution"
	"github.com/arjunkhanna/tradedesk/internal/market"
	"github.com/arjunkhanna/tradedesk/internal/risk"
	"github.com/arjunkhanna/tradedesk/internal/snapshot"
	"github.com/arjunkhanna/tradedesk/internal/strategy"
)

// Params configures one backtest run
type Params struct {
	Symbols  []string
	Cycles   int
	Seed     int64
	Capital  float64
	Interval time.Duration // virtual time per cycle
	Start    time.Time     // virtual clock origin
	Tunables config.Tunables
	Fees     config.FeeConfig
	Broker   config.BrokerConfig
}

// ClosedTrade is one realized round trip in the replay
type ClosedTrade struct {
	Symbol     string    `json:"symbol"`
	PnL        float64   `json:"pnl"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Regime     string    `json:"regime"`
	OpenCycle  uint64    `json:"open_cycle"`
	CloseCycle uint64    `json:"close_cycle"`
	ClosedAt   time.Time `json:"closed_at"`
}

// Result is the outcome of one backtest run
type Result struct {
	Cycles     int           `json:"cycles"`
	Signals    int           `json:"signals"`
	Decisions  int           `json:"decisions"`
	Vetoes     int           `json:"vetoes"`
	Executions int           `json:"executions"`
	Trades     []ClosedTrade `json:"trades"`
	Equity     []float64     `json:"equity"`
	Metrics    Metrics       `json:"metrics"`
}

// Engine drives the decision pipeline on a virtual clock. Unlike the live
// supervisor it owns time: each cycle advances by a fixed interval, so a run
// over thousands of cycles finishes in seconds and replays identically for
// the same seed.
type Engine struct {
	params Params
	keys   []market.SymbolKey

	snap     *snapshot.Service
	core     *strategy.Core
	guardian *risk.Guardian
	adapter  *execution.Adapter
	paper    *broker.PaperBroker

	openEntries  map[string]openEntry
	pnlWatermark float64

	log zerolog.Logger
}

type openEntry struct {
	price     float64
	regime    string
	openCycle uint64
}

// New wires a backtest engine from run parameters
func New(p Params, log zerolog.Logger) (*Engine, error) {
	if p.Cycles <= 0 {
		return nil, fmt.Errorf("cycles must be positive, got %d", p.Cycles)
	}
	if p.Capital <= 0 {
		return nil, fmt.Errorf("capital must be positive, got %f", p.Capital)
	}
	if p.Interval <= 0 {
		p.Interval = 5 * time.Minute
	}
	if p.Start.IsZero() {
		p.Start = time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC)
	}

	keys := make([]market.SymbolKey, 0, len(p.Symbols))
	for _, s := range p.Symbols {
		key, err := market.ParseSymbolKey(s)
		if err != nil {
			return nil, fmt.Errorf("symbol %q: %w", s, err)
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("at least one symbol is required")
	}

	sim := market.NewSimulator(p.Seed, log)
	paper := broker.NewPaperBroker(sim, p.Capital, p.Fees, log)
	guard := broker.NewFetchGuard(paper, p.Broker, log)

	return &Engine{
		params:      p,
		keys:        keys,
		snap:        snapshot.NewService(guard, sim, paper, log),
		core:        strategy.NewCore(strategy.NewOvertradingGuard(), log),
		guardian:    risk.NewGuardian(p.Capital, time.UTC, log),
		adapter:     execution.NewAdapter(paper, log),
		paper:       paper,
		openEntries: make(map[string]openEntry),
		log:         log.With().Str("component", "backtest").Logger(),
	}, nil
}

// Run replays the configured number of cycles and computes the run metrics
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	res := &Result{Equity: make([]float64, 0, e.params.Cycles)}
	tun := e.params.Tunables
	clock := e.params.Start

	for cycle := uint64(1); cycle <= uint64(e.params.Cycles); cycle++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		update := e.snap.Collect(ctx, e.keys, clock)

		for _, symbol := range update.Symbols {
			data := update.Data[symbol]
			key, err := market.ParseSymbolKey(symbol)
			if err != nil {
				continue
			}

			sig, _ := e.core.Decide(strategy.Inputs{
				Key:        key,
				Quote:      data.Quote,
				Bundles:    data.Bundles,
				Regime:     data.Regime,
				Traps:      data.Traps,
				Prediction: data.Prediction,
				Cycle:      cycle,
				Now:        clock,
			}, tun)
			if sig == nil {
				continue
			}
			res.Signals++

			d := e.guardian.Audit(*sig, tun, cycle, clock)
			if !d.Verdict.Approved {
				res.Vetoes++
				continue
			}
			res.Decisions++

			out := e.adapter.Execute(ctx, d, tun)
			if !out.Success {
				continue
			}
			res.Executions++
			e.settle(d, out, cycle, clock, res)
		}

		e.adapter.Reconcile(ctx)
		res.Equity = append(res.Equity, e.equity())
		res.Cycles++
		clock = clock.Add(e.params.Interval)
	}

	res.Metrics = ComputeMetrics(e.params.Capital, res.Equity, res.Trades)

	e.log.Info().
		Int("cycles", res.Cycles).
		Int("executions", res.Executions).
		Int("closed_trades", len(res.Trades)).
		Float64("total_pnl", res.Metrics.TotalPnL).
		Msg("Backtest complete")

	return res, nil
}

// settle mirrors the live post-execution bookkeeping on the virtual clock
func (e *Engine) settle(d risk.Decision, out execution.Result, cycle uint64, clock time.Time, res *Result) {
	e.guardian.RecordTrade(clock)
	symbol := d.Signal.Key.String()

	switch d.Signal.Action {
	case strategy.ActionBuy:
		e.core.Guard().RecordOpen(d.Signal.Key, cycle, clock)
		e.guardian.RecordOpen(symbol, d.Signal.Action)
		e.openEntries[symbol] = openEntry{
			price:     out.FillPrice,
			regime:    string(d.Signal.Regime.Regime),
			openCycle: cycle,
		}

	case strategy.ActionSell:
		realized := e.paper.RealizedPnL()
		delta := realized - e.pnlWatermark
		e.pnlWatermark = realized

		e.guardian.RecordPnL(delta, clock)
		e.guardian.RecordClose(symbol)
		e.core.Guard().RecordResult(delta, cycle)

		t := ClosedTrade{
			Symbol:     symbol,
			PnL:        delta,
			ExitPrice:  out.FillPrice,
			Regime:     string(d.Signal.Regime.Regime),
			CloseCycle: cycle,
			ClosedAt:   clock,
		}
		if open, ok := e.openEntries[symbol]; ok {
			t.EntryPrice = open.price
			t.OpenCycle = open.openCycle
			delete(e.openEntries, symbol)
		}
		res.Trades = append(res.Trades, t)
	}
}

// equity marks the account to the last synced prices
func (e *Engine) equity() float64 {
	funds, err := e.paper.Funds(context.Background())
	if err != nil {
		return 0
	}
	total := funds.AvailableCash
	positions, err := e.paper.Positions(context.Background())
	if err != nil {
		return total
	}
	for _, pos := range positions {
		total += float64(pos.Quantity) * pos.LastPrice
	}
	return total
}
