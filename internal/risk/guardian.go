// Package risk implements the ordered pre-trade audit and the kill switch
package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/arjunkhanna/tradedesk/internal/config"
	"github.com/arjunkhanna/tradedesk/internal/regime"
	"github.com/arjunkhanna/tradedesk/internal/strategy"
)

// RiskLevel grades an audit outcome
type RiskLevel string

const (
	LevelLow      RiskLevel = "low"
	LevelMedium   RiskLevel = "medium"
	LevelHigh     RiskLevel = "high"
	LevelCritical RiskLevel = "critical"
)

var levelRank = map[RiskLevel]int{
	LevelLow:      0,
	LevelMedium:   1,
	LevelHigh:     2,
	LevelCritical: 3,
}

// maxLevel returns the more severe of two levels
func maxLevel(a, b RiskLevel) RiskLevel {
	if levelRank[b] > levelRank[a] {
		return b
	}
	return a
}

// Regime and zone confidence gates
const (
	volatileConfGate      = 0.70
	choppyConfGate        = 0.65
	unknownConfGate       = 0.60
	directionlessConfGate = 0.70
	middleZoneConfGate    = 0.70
	edgeZoneConfGate      = 0.75
	edgeHighPct           = 80.0
	edgeLowPct            = 20.0

	slWideFactor    = 2.5
	slTightenFactor = 2.0

	auditLogCap = 500
)

// Verdict is the audit outcome for one signal
type Verdict struct {
	Approved           bool      `json:"approved"`
	Reason             string    `json:"reason,omitempty"`
	RiskLevel          RiskLevel `json:"risk_level"`
	Warnings           []string  `json:"warnings,omitempty"`
	AdjustedStopLoss   float64   `json:"adjusted_stop_loss"`
	AdjustedTakeProfit float64   `json:"adjusted_take_profit"`
	PositionSize       float64   `json:"position_size"`
	RiskReward         float64   `json:"risk_reward"`
}

// Decision wraps an approved signal with its verdict
type Decision struct {
	Signal    strategy.Signal `json:"signal"`
	Verdict   Verdict         `json:"verdict"`
	Cycle     uint64          `json:"cycle"`
	Timestamp time.Time       `json:"timestamp"`
}

// AuditEntry is one row of the bounded audit log
type AuditEntry struct {
	ID        string    `json:"id"`
	Cycle     uint64    `json:"cycle"`
	Symbol    string    `json:"symbol"`
	Action    string    `json:"action"`
	Approved  bool      `json:"approved"`
	Reason    string    `json:"reason,omitempty"`
	RiskLevel RiskLevel `json:"risk_level"`
	Timestamp time.Time `json:"timestamp"`
}

// Alert is raised on kill-switch activation and critical vetoes
type Alert struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Level     RiskLevel `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc receives guardian alerts
type AlertFunc func(Alert)

type guardianMetrics struct {
	audits     *prometheus.CounterVec
	killSwitch prometheus.Gauge
	dailyPnL   prometheus.Gauge
}

var (
	globalGuardianMetrics *guardianMetrics
	guardianMetricsOnce   sync.Once
)

func initGuardianMetrics() {
	guardianMetricsOnce.Do(func() {
		globalGuardianMetrics = &guardianMetrics{
			audits: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "risk_audits_total",
					Help: "Risk audits by outcome and level",
				},
				[]string{"outcome", "level"},
			),
			killSwitch: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "risk_kill_switch_active",
				Help: "1 when the kill switch blocks new entries",
			}),
			dailyPnL: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "risk_daily_pnl",
				Help: "Cumulative realized PnL for the current trading day",
			}),
		}
	})
}

// Guardian applies the ordered pre-trade audit and owns the kill switch.
// It is the single writer of its counters; callers get copies.
type Guardian struct {
	mu sync.Mutex

	dailyPnL       float64
	dailyTrades    int
	openPositions  map[string]strategy.Action // symbol key -> side
	peakCapital    float64
	currentCapital float64
	killSwitch     bool
	killReason     string
	day            int // yearday in the engine timezone

	audit   []AuditEntry
	loc     *time.Location
	alertFn AlertFunc
	metrics *guardianMetrics
	log     zerolog.Logger
}

// NewGuardian creates a risk guardian seeded with starting capital
func NewGuardian(capital float64, loc *time.Location, log zerolog.Logger) *Guardian {
	initGuardianMetrics()
	return &Guardian{
		openPositions:  make(map[string]strategy.Action),
		peakCapital:    capital,
		currentCapital: capital,
		loc:            loc,
		metrics:        globalGuardianMetrics,
		log:            log.With().Str("component", "risk").Logger(),
	}
}

// OnAlert registers the alert sink
func (g *Guardian) OnAlert(fn AlertFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.alertFn = fn
}

// Audit runs the ordered checks against a signal. A nil error with a
// non-approved verdict is a veto; the caller decides how to surface it.
func (g *Guardian) Audit(sig strategy.Signal, tun config.Tunables, cycle uint64, now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked(now)

	v := g.auditLocked(sig, tun)
	g.appendAuditLocked(AuditEntry{
		ID:        uuid.NewString(),
		Cycle:     cycle,
		Symbol:    sig.Key.String(),
		Action:    string(sig.Action),
		Approved:  v.Approved,
		Reason:    v.Reason,
		RiskLevel: v.RiskLevel,
		Timestamp: now,
	})

	outcome := "approved"
	if !v.Approved {
		outcome = "vetoed"
		g.log.Warn().
			Str("symbol", sig.Key.String()).
			Str("action", string(sig.Action)).
			Str("reason", v.Reason).
			Str("level", string(v.RiskLevel)).
			Msg("Signal vetoed")
	}
	g.metrics.audits.WithLabelValues(outcome, string(v.RiskLevel)).Inc()

	return Decision{Signal: sig, Verdict: v, Cycle: cycle, Timestamp: now}
}

func (g *Guardian) auditLocked(sig strategy.Signal, tun config.Tunables) Verdict {
	v := Verdict{
		RiskLevel:          LevelLow,
		AdjustedStopLoss:   sig.StopLoss,
		AdjustedTakeProfit: sig.TakeProfit,
	}
	conf := sig.Confidence

	// 1. Kill switch
	if g.killSwitch {
		return veto(v, "Kill switch active: "+g.killReason, LevelCritical)
	}

	// 2. Daily loss limit
	if g.dailyPnL <= -tun.MaxDailyLoss {
		g.activateKillSwitchLocked(fmt.Sprintf("daily loss %.2f breached limit %.2f", g.dailyPnL, tun.MaxDailyLoss))
		return veto(v, "Daily loss limit breached", LevelCritical)
	}

	// 3. Trade count
	if g.dailyTrades >= tun.MaxTradesPerDay {
		return veto(v, "Max trades per day reached", LevelHigh)
	}

	// 4. Drawdown from peak
	if g.peakCapital > 0 {
		dd := (g.peakCapital - g.currentCapital) / g.peakCapital * 100
		if dd >= tun.MaxDrawdownPct {
			g.activateKillSwitchLocked(fmt.Sprintf("drawdown %.2f%% breached limit %.2f%%", dd, tun.MaxDrawdownPct))
			return veto(v, "Max drawdown exceeded", LevelCritical)
		}
	}

	// 5. Regime gating
	switch sig.Regime.Regime {
	case regime.Volatile:
		if conf < volatileConfGate {
			return veto(v, "Volatile market + low confidence", LevelHigh)
		}
	case regime.Choppy:
		if conf < choppyConfGate {
			return veto(v, "Choppy market + low confidence", LevelHigh)
		}
	case regime.Unknown:
		if conf < unknownConfGate {
			return veto(v, "Unknown regime + low confidence", LevelMedium)
		}
	case regime.VolatileDirectionless:
		if conf < directionlessConfGate {
			return veto(v, "Directionless volatility + low confidence", LevelHigh)
		}
	}

	// 6. Price-zone gating
	pos := sig.Regime.Position
	if pos.Location == regime.LocationMiddle && conf < middleZoneConfGate {
		return veto(v, "Middle zone + low confidence", LevelMedium)
	}
	if sig.Action == strategy.ActionBuy && pos.Pct > edgeHighPct && conf < edgeZoneConfGate {
		return veto(v, fmt.Sprintf("BUY at high position (%.0f%%)", pos.Pct), LevelHigh)
	}
	if sig.Action == strategy.ActionSell && pos.Pct < edgeLowPct && conf < edgeZoneConfGate {
		return veto(v, fmt.Sprintf("SELL at low position (%.0f%%)", pos.Pct), LevelHigh)
	}

	// 7. Trap gating
	if sig.Action == strategy.ActionBuy {
		switch {
		case sig.Traps.BullTrapRisk:
			return veto(v, "Trap risk: bull_trap_risk", LevelHigh)
		case sig.Traps.VolumeDivergence:
			return veto(v, "Trap risk: volume_divergence", LevelHigh)
		case sig.Traps.FOMOTop:
			return veto(v, "Trap risk: fomo_top", LevelHigh)
		}
	}
	if sig.Action == strategy.ActionSell && sig.Traps.PanicBottom {
		return veto(v, "Trap risk: panic_bottom", LevelHigh)
	}

	// 8. Duplicate open
	if side, ok := g.openPositions[sig.Key.String()]; ok && side == sig.Action {
		return veto(v, "Duplicate open position", LevelMedium)
	}

	// 9. Stop-loss auto-correction
	v = correctStopLoss(v, sig, tun.DefaultStopLossPct)

	// 10. Risk/reward on the corrected stop
	risk := math.Abs(sig.EntryPrice - v.AdjustedStopLoss)
	reward := math.Abs(v.AdjustedTakeProfit - sig.EntryPrice)
	if risk > 0 {
		v.RiskReward = round2(reward / risk)
	}
	if v.RiskReward < tun.MinRiskRewardBlock {
		return veto(v, fmt.Sprintf("Poor risk/reward (%.2f)", v.RiskReward), LevelMedium)
	}
	if v.RiskReward < tun.MinRiskRewardWarn {
		v.Warnings = append(v.Warnings, fmt.Sprintf("Low risk/reward (%.2f)", v.RiskReward))
		v.RiskLevel = maxLevel(v.RiskLevel, LevelMedium)
	}

	// 11. Position sizing within the per-order cap
	if sig.EntryPrice > 0 {
		v.PositionSize = math.Floor(tun.MaxPositionSize / sig.EntryPrice)
	}
	if v.PositionSize < 1 {
		v.PositionSize = 1
		v.RiskLevel = maxLevel(v.RiskLevel, LevelMedium)
		v.Warnings = append(v.Warnings, "Entry price exceeds position cap, sizing 1 share")
	}

	// 12. Confidence floor on risk level
	switch {
	case conf < 0.5:
		v.RiskLevel = maxLevel(v.RiskLevel, LevelHigh)
	case conf < 0.7:
		v.RiskLevel = maxLevel(v.RiskLevel, LevelMedium)
	}

	v.Approved = true
	return v
}

// correctStopLoss repairs an inverted stop and tightens an excessively wide one
func correctStopLoss(v Verdict, sig strategy.Signal, defaultPct float64) Verdict {
	entry := sig.EntryPrice
	sl := v.AdjustedStopLoss

	inverted := (sig.Action == strategy.ActionBuy && sl >= entry) ||
		(sig.Action == strategy.ActionSell && sl <= entry)
	if inverted || sl <= 0 {
		fixed := entry * (1 - defaultPct/100)
		if sig.Action == strategy.ActionSell {
			fixed = entry * (1 + defaultPct/100)
		}
		fixed = round2(fixed)
		v.Warnings = append(v.Warnings, fmt.Sprintf("SL corrected: %.2f → %.2f", sl, fixed))
		v.AdjustedStopLoss = fixed
		return v
	}

	distPct := math.Abs(entry-sl) / entry * 100
	if distPct > slWideFactor*defaultPct {
		tightPct := slTightenFactor * defaultPct
		fixed := entry * (1 - tightPct/100)
		if sig.Action == strategy.ActionSell {
			fixed = entry * (1 + tightPct/100)
		}
		fixed = round2(fixed)
		v.Warnings = append(v.Warnings, fmt.Sprintf("SL tightened: %.2f → %.2f", sl, fixed))
		v.AdjustedStopLoss = fixed
	}
	return v
}

func veto(v Verdict, reason string, level RiskLevel) Verdict {
	v.Approved = false
	v.Reason = reason
	v.RiskLevel = maxLevel(v.RiskLevel, level)
	return v
}

// RecordPnL folds a realized PnL delta into the daily counters
func (g *Guardian) RecordPnL(delta float64, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked(now)
	g.dailyPnL += delta
	g.currentCapital += delta
	if g.currentCapital > g.peakCapital {
		g.peakCapital = g.currentCapital
	}
	g.metrics.dailyPnL.Set(g.dailyPnL)
}

// RecordTrade counts an execution against the daily cap
func (g *Guardian) RecordTrade(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked(now)
	g.dailyTrades++
}

// RecordOpen tracks an opened position for duplicate detection
func (g *Guardian) RecordOpen(symbol string, side strategy.Action) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.openPositions[symbol] = side
}

// RecordClose clears a tracked position
func (g *Guardian) RecordClose(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.openPositions, symbol)
}

// KillSwitchActive reports the kill switch state
func (g *Guardian) KillSwitchActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.killSwitch
}

// DeactivateKillSwitch is the manual operator override
func (g *Guardian) DeactivateKillSwitch() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.killSwitch {
		return
	}
	g.killSwitch = false
	g.killReason = ""
	g.metrics.killSwitch.Set(0)
	g.log.Warn().Msg("Kill switch deactivated by operator")
}

// Status is the guardian state snapshot for observers
type Status struct {
	DailyPnL       float64 `json:"daily_pnl"`
	DailyTrades    int     `json:"daily_trades"`
	OpenPositions  int     `json:"open_positions"`
	PeakCapital    float64 `json:"peak_capital"`
	CurrentCapital float64 `json:"current_capital"`
	KillSwitch     bool    `json:"kill_switch"`
	KillReason     string  `json:"kill_reason,omitempty"`
}

// Status returns a copy of the guardian counters
func (g *Guardian) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	return Status{
		DailyPnL:       g.dailyPnL,
		DailyTrades:    g.dailyTrades,
		OpenPositions:  len(g.openPositions),
		PeakCapital:    g.peakCapital,
		CurrentCapital: g.currentCapital,
		KillSwitch:     g.killSwitch,
		KillReason:     g.killReason,
	}
}

// AuditLog returns a copy of the bounded audit log, oldest first
func (g *Guardian) AuditLog() []AuditEntry {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]AuditEntry, len(g.audit))
	copy(out, g.audit)
	return out
}

// SetDailyPnL overrides the daily PnL counter. Intended for recovery and tests.
func (g *Guardian) SetDailyPnL(v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyPnL = v
}

func (g *Guardian) activateKillSwitchLocked(reason string) {
	if g.killSwitch {
		return
	}
	g.killSwitch = true
	g.killReason = reason
	g.metrics.killSwitch.Set(1)
	g.log.Error().Str("reason", reason).Msg("Kill switch activated")

	if g.alertFn != nil {
		g.alertFn(Alert{
			Type:      "kill_switch",
			Message:   reason,
			Level:     LevelCritical,
			Timestamp: time.Now(),
		})
	}
}

// rolloverLocked resets daily counters and the kill switch on a new trading
// day in the engine timezone.
func (g *Guardian) rolloverLocked(now time.Time) {
	local := now.In(g.loc)
	day := local.YearDay() + local.Year()*1000
	if g.day == 0 {
		g.day = day
		return
	}
	if day == g.day {
		return
	}

	g.day = day
	g.dailyPnL = 0
	g.dailyTrades = 0
	if g.killSwitch {
		g.killSwitch = false
		g.killReason = ""
		g.metrics.killSwitch.Set(0)
		g.log.Info().Msg("Kill switch cleared on day rollover")
	}
	g.metrics.dailyPnL.Set(0)
	g.log.Info().Msg("Daily risk counters reset")
}

func (g *Guardian) appendAuditLocked(e AuditEntry) {
	g.audit = append(g.audit, e)
	if len(g.audit) > auditLogCap {
		g.audit = g.audit[len(g.audit)-auditLogCap:]
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
