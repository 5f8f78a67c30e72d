// Package engine drives the cycle loop and wires the stages together
package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arjunkhanna/tradedesk/internal/broker"
	"github.com/arjunkhanna/tradedesk/internal/config"
	"github.com/arjunkhanna/tradedesk/internal/execution"
	"github.com/arjunkhanna/tradedesk/internal/market"
	"github.com/arjunkhanna/tradedesk/internal/messages"
	"github.com/arjunkhanna/tradedesk/internal/reflection"
	"github.com/arjunkhanna/tradedesk/internal/risk"
	"github.com/arjunkhanna/tradedesk/internal/snapshot"
	"github.com/arjunkhanna/tradedesk/internal/strategy"
)

// Bounded observability buffers
const (
	errorsCap       = 100
	recentTradesCap = 100

	// reflectionWindow caps how many recent trades one reflection pass sees
	reflectionWindow = 20
)

// Message source and priorities. Priority 1 is the most urgent.
const (
	sourceEngine = "engine"

	prioAlert     = 1
	prioExecution = 2
	prioRisk      = 3
	prioSignal    = 4
	prioMarket    = 5
	prioState     = 6
)

// StageError is one recovered stage failure
type StageError struct {
	Stage     string    `json:"stage"`
	Symbol    string    `json:"symbol,omitempty"`
	Message   string    `json:"message"`
	Cycle     uint64    `json:"cycle"`
	Timestamp time.Time `json:"timestamp"`
}

// Status is the supervisor state snapshot
type Status struct {
	Running    bool         `json:"running"`
	Mode       string       `json:"mode"`
	Cycle      uint64       `json:"cycle"`
	Signals    uint64       `json:"signals"`
	Decisions  uint64       `json:"decisions"`
	Vetoes     uint64       `json:"vetoes"`
	Executions uint64       `json:"executions"`
	Risk       risk.Status  `json:"risk"`
	LastErrors []StageError `json:"last_errors"`
}

// openTrade tracks an entry until its exit closes the round trip
type openTrade struct {
	entryPrice float64
	quantity   int64
	confidence float64
	regimeName string
	openCycle  uint64
}

// Supervisor owns the cycle clock and runs the stages in order. One instance
// per engine process.
type Supervisor struct {
	cfg      *config.Config
	tunables *config.TunableStore

	snap     *snapshot.Service
	core     *strategy.Core
	guardian *risk.Guardian
	adapter  *execution.Adapter
	analyzer *reflection.Analyzer
	broker   broker.Broker
	paper    *broker.PaperBroker // nil in live mode

	sinks []Sink

	mu          sync.Mutex
	cycle       uint64
	running     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	signals     uint64
	decisions   uint64
	vetoes      uint64
	executions  uint64
	lastErrors  []StageError
	openTrades  map[string]openTrade
	trades      []reflection.Trade
	newTrades   int
	pnlWatermark float64

	keys    []market.SymbolKey
	metrics *engineMetrics
	log     zerolog.Logger
}

// Deps bundles the supervisor's collaborators
type Deps struct {
	Config   *config.Config
	Tunables *config.TunableStore
	Snapshot *snapshot.Service
	Core     *strategy.Core
	Guardian *risk.Guardian
	Adapter  *execution.Adapter
	Analyzer *reflection.Analyzer
	Broker   broker.Broker
	Paper    *broker.PaperBroker
	Sinks    []Sink
}

// NewSupervisor wires the engine together
func NewSupervisor(d Deps, log zerolog.Logger) (*Supervisor, error) {
	initEngineMetrics()

	keys := make([]market.SymbolKey, 0, len(d.Config.Trading.Symbols))
	for _, s := range d.Config.Trading.Symbols {
		key, err := market.ParseSymbolKey(s)
		if err != nil {
			return nil, fmt.Errorf("watchlist entry %q: %w", s, err)
		}
		keys = append(keys, key)
	}

	return &Supervisor{
		cfg:        d.Config,
		tunables:   d.Tunables,
		snap:       d.Snapshot,
		core:       d.Core,
		guardian:   d.Guardian,
		adapter:    d.Adapter,
		analyzer:   d.Analyzer,
		broker:     d.Broker,
		paper:      d.Paper,
		sinks:      d.Sinks,
		openTrades: make(map[string]openTrade),
		keys:       keys,
		metrics:    globalEngineMetrics,
		log:        log.With().Str("component", "supervisor").Logger(),
	}, nil
}

// Start launches the cycle loop. Calling Start on a running supervisor is a
// no-op.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	s.log.Info().
		Str("mode", s.cfg.Trading.Mode).
		Int("symbols", len(s.keys)).
		Dur("interval", s.tunables.Snapshot().CycleInterval).
		Msg("Supervisor started")

	go func() {
		defer close(doneCh)

		for {
			interval := s.tunables.Snapshot().CycleInterval
			timer := time.NewTimer(interval)

			s.RunOnce(ctx)

			select {
			case <-stopCh:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}()
}

// Stop signals the loop and waits for the in-flight cycle to finish.
// Stopping a stopped supervisor is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh
	s.log.Info().Uint64("cycles", s.Cycle()).Msg("Supervisor stopped")
}

// Cycle returns the current cycle number
func (s *Supervisor) Cycle() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycle
}

// Guardian exposes the risk guardian for operator controls
func (s *Supervisor) Guardian() *risk.Guardian {
	return s.guardian
}

// RunOnce executes one full cycle: snapshot, strategy, risk, execution, and
// reflection when due. Each stage is panic-isolated; a stage failure skips
// the rest of the cycle but never kills the loop.
func (s *Supervisor) RunOnce(ctx context.Context) {
	started := time.Now()

	s.mu.Lock()
	s.cycle++
	cycle := s.cycle
	s.mu.Unlock()

	tun := s.tunables.Snapshot()
	now := time.Now()

	var update messages.MarketUpdate
	ok := s.runStage("snapshot", cycle, func() {
		update = s.snap.Collect(ctx, s.keys, now)
		s.publish(messages.New(sourceEngine, "*", cycle, prioMarket, update))
	})
	if !ok {
		s.finishCycle(started)
		return
	}

	var sigs []strategy.Signal
	s.runStage("strategy", cycle, func() {
		sigs = s.strategyStage(update, tun, cycle, now)
	})

	var approved []risk.Decision
	s.runStage("risk", cycle, func() {
		approved = s.riskStage(sigs, tun, cycle, now)
	})

	s.runStage("execution", cycle, func() {
		s.executionStage(ctx, approved, tun, cycle, now)
		s.adapter.Reconcile(ctx)
	})

	s.runStage("reflection", cycle, func() {
		s.reflectionStage(tun, cycle)
	})

	s.runStage("state", cycle, func() {
		s.stateStage(ctx, cycle)
	})

	s.finishCycle(started)
}

func (s *Supervisor) finishCycle(started time.Time) {
	s.metrics.cycles.Inc()
	s.metrics.cycleDuration.Observe(time.Since(started).Seconds())
}

// strategyStage runs the decision core per symbol in snapshot order
func (s *Supervisor) strategyStage(update messages.MarketUpdate, tun config.Tunables, cycle uint64, now time.Time) []strategy.Signal {
	var sigs []strategy.Signal

	for _, symbol := range update.Symbols {
		data := update.Data[symbol]
		key, err := market.ParseSymbolKey(symbol)
		if err != nil {
			continue
		}

		in := strategy.Inputs{
			Key:        key,
			Quote:      data.Quote,
			Bundles:    data.Bundles,
			Regime:     data.Regime,
			Traps:      data.Traps,
			Prediction: data.Prediction,
			Cycle:      cycle,
			Now:        now,
		}

		sig, reason := s.core.Decide(in, tun)
		if sig == nil {
			s.log.Debug().Str("symbol", symbol).Str("reason", reason).Msg("Holding")
			continue
		}

		sigs = append(sigs, *sig)
		s.publish(messages.New(sourceEngine, "risk", cycle, prioSignal, messages.Signal{Signal: *sig}))
		s.metrics.signals.Inc()
		s.mu.Lock()
		s.signals++
		s.mu.Unlock()
	}

	return sigs
}

// riskStage audits every signal, emitting a DECISION or VETO per signal
func (s *Supervisor) riskStage(sigs []strategy.Signal, tun config.Tunables, cycle uint64, now time.Time) []risk.Decision {
	var approved []risk.Decision

	for _, sig := range sigs {
		d := s.guardian.Audit(sig, tun, cycle, now)
		if d.Verdict.Approved {
			approved = append(approved, d)
			s.publish(messages.New(sourceEngine, "execution", cycle, prioRisk, messages.Decision{Decision: d}))
			s.metrics.decisions.Inc()
			s.mu.Lock()
			s.decisions++
			s.mu.Unlock()
			continue
		}

		s.publish(messages.New(sourceEngine, "*", cycle, prioRisk, messages.Veto{Signal: sig, Verdict: d.Verdict}))
		s.metrics.vetoes.Inc()
		s.mu.Lock()
		s.vetoes++
		s.mu.Unlock()
	}

	return approved
}

// executionStage places orders for approved decisions and feeds results back
// into the guardian and the overtrading guard.
func (s *Supervisor) executionStage(ctx context.Context, approved []risk.Decision, tun config.Tunables, cycle uint64, now time.Time) {
	for _, d := range approved {
		res := s.adapter.Execute(ctx, d, tun)
		s.publish(messages.New(sourceEngine, "*", cycle, prioExecution, messages.Execution{Result: res}))

		outcome := "success"
		if !res.Success {
			outcome = "failure"
		}
		s.metrics.executions.WithLabelValues(outcome).Inc()

		if !res.Success {
			continue
		}

		s.mu.Lock()
		s.executions++
		s.mu.Unlock()

		s.guardian.RecordTrade(now)
		symbol := d.Signal.Key.String()

		switch d.Signal.Action {
		case strategy.ActionBuy:
			s.core.Guard().RecordOpen(d.Signal.Key, cycle, now)
			s.guardian.RecordOpen(symbol, d.Signal.Action)
			s.mu.Lock()
			s.openTrades[symbol] = openTrade{
				entryPrice: res.FillPrice,
				quantity:   res.Quantity,
				confidence: d.Signal.Confidence,
				regimeName: string(d.Signal.Regime.Regime),
				openCycle:  cycle,
			}
			s.mu.Unlock()

		case strategy.ActionSell:
			s.closeTrade(symbol, d, res, cycle, now)
		}
	}
}

// closeTrade realizes the round trip, updating daily counters, the loss
// cooldown, and the reflection window.
func (s *Supervisor) closeTrade(symbol string, d risk.Decision, res execution.Result, cycle uint64, now time.Time) {
	var delta float64
	if s.paper != nil {
		realized := s.paper.RealizedPnL()
		s.mu.Lock()
		delta = realized - s.pnlWatermark
		s.pnlWatermark = realized
		s.mu.Unlock()
	}

	s.guardian.RecordPnL(delta, now)
	s.guardian.RecordClose(symbol)
	s.core.Guard().RecordResult(delta, cycle)

	s.mu.Lock()
	open, had := s.openTrades[symbol]
	delete(s.openTrades, symbol)

	t := reflection.Trade{
		ID:         res.OrderID,
		Key:        symbol,
		Action:     strategy.ActionSell,
		Regime:     d.Signal.Regime.Regime,
		Confidence: d.Signal.Confidence,
		ExitPrice:  res.FillPrice,
		Quantity:   res.Quantity,
		PnL:        delta,
		CloseCycle: cycle,
		ClosedAt:   now,
	}
	if had {
		t.EntryPrice = open.entryPrice
		t.OpenCycle = open.openCycle
	}
	s.trades = append(s.trades, t)
	if len(s.trades) > recentTradesCap {
		s.trades = s.trades[len(s.trades)-recentTradesCap:]
	}
	s.newTrades++
	s.mu.Unlock()
}

// reflectionStage runs the analyzer once enough new trades accumulated
func (s *Supervisor) reflectionStage(tun config.Tunables, cycle uint64) {
	s.mu.Lock()
	due := tun.ReflectionTrigger > 0 && s.newTrades >= tun.ReflectionTrigger
	var window []reflection.Trade
	if due {
		n := len(s.trades)
		if n > reflectionWindow {
			window = append(window, s.trades[n-reflectionWindow:]...)
		} else {
			window = append(window, s.trades...)
		}
		s.newTrades = 0
	}
	s.mu.Unlock()

	if !due {
		return
	}

	report := s.analyzer.Analyze(window)
	if report == nil {
		return
	}
	s.publish(messages.New(sourceEngine, "*", cycle, prioState, messages.Reflection{Report: *report}))
}

// stateStage publishes the end-of-cycle portfolio and risk state
func (s *Supervisor) stateStage(ctx context.Context, cycle uint64) {
	su := messages.StateUpdate{
		Risk:    s.guardian.Status(),
		Pending: len(s.adapter.Pending()),
	}

	if funds, err := s.broker.Funds(ctx); err == nil {
		su.Funds = funds
	}
	if positions, err := s.broker.Positions(ctx); err == nil {
		su.Positions = positions
	}

	s.publish(messages.New(sourceEngine, "*", cycle, prioState, su))
}

// PublishRiskAlert forwards a guardian alert to the sinks. Registered as the
// guardian's alert callback at wiring time.
func (s *Supervisor) PublishRiskAlert(a risk.Alert) {
	s.mu.Lock()
	cycle := s.cycle
	s.mu.Unlock()
	s.publish(messages.New(sourceEngine, "*", cycle, prioAlert, messages.RiskAlert{Alert: a}))
}

// runStage executes one stage with panic isolation. Returns false when the
// stage panicked.
func (s *Supervisor) runStage(name string, cycle uint64, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			msg := fmt.Sprintf("%v", r)
			s.log.Error().
				Str("stage", name).
				Uint64("cycle", cycle).
				Str("panic", msg).
				Bytes("stack", debug.Stack()).
				Msg("Stage panicked, cycle degraded")

			s.recordError(StageError{
				Stage:     name,
				Message:   msg,
				Cycle:     cycle,
				Timestamp: time.Now(),
			})
			s.metrics.stageErrors.WithLabelValues(name).Inc()
			s.publish(messages.New(sourceEngine, "*", cycle, prioAlert, messages.Error{
				Stage:   name,
				Message: msg,
			}))
		}
	}()

	fn()
	return true
}

func (s *Supervisor) recordError(e StageError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastErrors = append(s.lastErrors, e)
	if len(s.lastErrors) > errorsCap {
		s.lastErrors = s.lastErrors[len(s.lastErrors)-errorsCap:]
	}
}

func (s *Supervisor) publish(msg messages.Message) {
	for _, sink := range s.sinks {
		sink.Publish(msg)
	}
}

// Status returns the supervisor state snapshot
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := make([]StageError, len(s.lastErrors))
	copy(errs, s.lastErrors)

	return Status{
		Running:    s.running,
		Mode:       s.cfg.Trading.Mode,
		Cycle:      s.cycle,
		Signals:    s.signals,
		Decisions:  s.decisions,
		Vetoes:     s.vetoes,
		Executions: s.executions,
		Risk:       s.guardian.Status(),
		LastErrors: errs,
	}
}
