package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjunkhanna/tradedesk/internal/market"
)

var testKey = market.SymbolKey{Exchange: market.ExchangeNSE, Symbol: "RELIANCE"}

func TestGuardMinGapBetweenOpens(t *testing.T) {
	g := NewOvertradingGuard()
	now := time.Now()

	ok, _ := g.Allow(ActionBuy, testKey, 10, now)
	require.True(t, ok)
	g.RecordOpen(testKey, 10, now)

	ok, reason := g.Allow(ActionBuy, testKey, 12, now)
	assert.False(t, ok, "Re-entry two cycles after an open must be blocked")
	assert.Equal(t, "Min gap between opens", reason)

	ok, _ = g.Allow(ActionBuy, testKey, 14, now)
	assert.True(t, ok, "Four cycles after the open the gap rule clears")
}

func TestGuardMinGapIsPerSymbol(t *testing.T) {
	g := NewOvertradingGuard()
	now := time.Now()
	other := market.SymbolKey{Exchange: market.ExchangeNSE, Symbol: "TCS"}

	g.RecordOpen(testKey, 10, now)

	ok, _ := g.Allow(ActionBuy, other, 11, now)
	assert.True(t, ok, "The gap rule tracks each symbol separately")
}

func TestGuardOpensPerWindow(t *testing.T) {
	g := NewOvertradingGuard()
	now := time.Now()

	g.RecordOpen(market.SymbolKey{Exchange: market.ExchangeNSE, Symbol: "A"}, 1, now.Add(-5*time.Hour))
	g.RecordOpen(market.SymbolKey{Exchange: market.ExchangeNSE, Symbol: "B"}, 2, now.Add(-3*time.Hour))
	g.RecordOpen(market.SymbolKey{Exchange: market.ExchangeNSE, Symbol: "C"}, 3, now.Add(-1*time.Hour))

	ok, reason := g.Allow(ActionBuy, testKey, 20, now)
	assert.False(t, ok)
	assert.Equal(t, "Too many opens in window", reason)

	// The oldest open ages out of the 6h window
	ok, _ = g.Allow(ActionBuy, testKey, 20, now.Add(90*time.Minute))
	assert.True(t, ok)
}

func TestGuardLossCooldown(t *testing.T) {
	g := NewOvertradingGuard()
	now := time.Now()

	// Two consecutive losses at cycle 5 arm the cooldown
	g.RecordResult(-500, 5)
	g.RecordResult(-300, 5)

	for cycle := uint64(6); cycle <= 11; cycle++ {
		ok, reason := g.Allow(ActionBuy, testKey, cycle, now)
		assert.False(t, ok, "cycle %d must be blocked", cycle)
		assert.Equal(t, "Loss cooldown", reason)

		ok, reason = g.Allow(ActionSell, testKey, cycle, now)
		assert.False(t, ok, "the loss cooldown blocks exits too at cycle %d", cycle)
		assert.Equal(t, "Loss cooldown", reason)
	}

	ok, _ := g.Allow(ActionBuy, testKey, 12, now)
	assert.True(t, ok, "Trading resumes at cycle 12")
}

func TestGuardWinClearsLossStreak(t *testing.T) {
	g := NewOvertradingGuard()
	now := time.Now()

	g.RecordResult(-500, 5)
	g.RecordResult(200, 6)
	g.RecordResult(-100, 7)

	ok, _ := g.Allow(ActionBuy, testKey, 8, now)
	assert.True(t, ok, "A win between losses resets the streak")
	assert.False(t, g.CooldownActive(8))
}
