package strategy

import (
	"sync"
	"time"

	"github.com/arjunkhanna/tradedesk/internal/market"
)

// Overtrading limits
const (
	minCyclesBetweenOpens = 4
	maxOpensPerWindow     = 3
	openWindow            = 6 * time.Hour
	lossStreakTrigger     = 2
	lossCooldownCycles    = 6
)

// OvertradingGuard throttles entries. It tracks per-symbol open cadence, a
// rolling window of recent opens, and a consecutive-loss cooldown that blocks
// every new decision until it expires.
type OvertradingGuard struct {
	mu sync.Mutex

	lastOpenCycle map[market.SymbolKey]uint64
	recentOpens   []time.Time

	consecutiveLosses int
	cooldownUntil     uint64 // last blocked cycle, 0 when inactive
}

// NewOvertradingGuard creates an overtrading guard
func NewOvertradingGuard() *OvertradingGuard {
	return &OvertradingGuard{
		lastOpenCycle: make(map[market.SymbolKey]uint64),
	}
}

// Allow reports whether a decision may proceed this cycle. The loss cooldown
// blocks both entries and exits; the cadence rules apply to entries only.
func (g *OvertradingGuard) Allow(action Action, key market.SymbolKey, cycle uint64, now time.Time) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cooldownUntil > 0 && cycle <= g.cooldownUntil {
		return false, "Loss cooldown"
	}

	if action != ActionBuy {
		return true, ""
	}

	if last, ok := g.lastOpenCycle[key]; ok && cycle-last < minCyclesBetweenOpens {
		return false, "Min gap between opens"
	}

	g.pruneLocked(now)
	if len(g.recentOpens) >= maxOpensPerWindow {
		return false, "Too many opens in window"
	}

	return true, ""
}

// RecordOpen registers an executed entry
func (g *OvertradingGuard) RecordOpen(key market.SymbolKey, cycle uint64, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastOpenCycle[key] = cycle
	g.pruneLocked(now)
	g.recentOpens = append(g.recentOpens, now)
}

// RecordResult registers a realized exit. Two consecutive losses arm the
// cooldown for the next lossCooldownCycles cycles; any win clears the streak.
func (g *OvertradingGuard) RecordResult(pnl float64, cycle uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if pnl < 0 {
		g.consecutiveLosses++
		if g.consecutiveLosses >= lossStreakTrigger {
			g.cooldownUntil = cycle + lossCooldownCycles
		}
		return
	}
	g.consecutiveLosses = 0
}

// CooldownActive reports whether the loss cooldown blocks the given cycle
func (g *OvertradingGuard) CooldownActive(cycle uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cooldownUntil > 0 && cycle <= g.cooldownUntil
}

func (g *OvertradingGuard) pruneLocked(now time.Time) {
	cutoff := now.Add(-openWindow)
	kept := g.recentOpens[:0]
	for _, t := range g.recentOpens {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.recentOpens = kept
}
