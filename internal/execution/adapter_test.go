package execution

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjunkhanna/tradedesk/internal/broker"
	"github.com/arjunkhanna/tradedesk/internal/config"
	"github.com/arjunkhanna/tradedesk/internal/market"
	"github.com/arjunkhanna/tradedesk/internal/risk"
	"github.com/arjunkhanna/tradedesk/internal/strategy"
)

var testKey = market.SymbolKey{Exchange: market.ExchangeNSE, Symbol: "RELIANCE"}

func testTunables() config.Tunables {
	return config.Tunables{MaxPositionSize: 100_000}
}

func newTestPaper(capital float64) *broker.PaperBroker {
	sim := market.NewSimulator(7, zerolog.Nop())
	p := broker.NewPaperBroker(sim, capital, config.FeeConfig{}, zerolog.Nop())
	p.UpdatePrices(map[market.SymbolKey]*market.Quote{
		testKey: {Key: testKey, LTP: 100},
	})
	return p
}

func approvedDecision(qty float64) risk.Decision {
	return risk.Decision{
		Signal: strategy.Signal{
			Action:     strategy.ActionBuy,
			Key:        testKey,
			Confidence: 0.8,
			EntryPrice: 100,
			StopLoss:   98,
			TakeProfit: 106,
		},
		Verdict: risk.Verdict{
			Approved:           true,
			AdjustedStopLoss:   98,
			AdjustedTakeProfit: 106,
			PositionSize:       qty,
		},
		Cycle:     3,
		Timestamp: time.Now(),
	}
}

func TestExecutePlacesPrimaryAndProtectiveStop(t *testing.T) {
	p := newTestPaper(500_000)
	a := NewAdapter(p, zerolog.Nop())

	res := a.Execute(context.Background(), approvedDecision(10), testTunables())

	require.True(t, res.Success, "execution failed: %s", res.Error)
	assert.Equal(t, int64(10), res.Quantity)
	assert.Equal(t, 100.0, res.FillPrice)
	require.NotEmpty(t, res.StopOrderID)
	assert.Empty(t, res.Warnings)

	// The protective stop rests as the only pending order
	pending := a.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, res.StopOrderID, pending[0].ID)
	assert.Equal(t, broker.SideSell, pending[0].Side)
	assert.Equal(t, broker.TypeStopLossMkt, pending[0].Type)
	assert.Equal(t, 98.0, pending[0].TriggerPrice)
}

func TestExecuteStopFailureIsWarningOnly(t *testing.T) {
	p := newTestPaper(500_000)
	a := NewAdapter(p, zerolog.Nop())

	d := approvedDecision(10)
	d.Verdict.AdjustedStopLoss = -1 // placeStop skipped entirely when non-positive

	res := a.Execute(context.Background(), d, testTunables())
	require.True(t, res.Success)
	assert.Empty(t, res.StopOrderID)
}

func TestExecuteRejectedOrderFails(t *testing.T) {
	p := newTestPaper(100) // cannot afford 10 shares at 100
	a := NewAdapter(p, zerolog.Nop())

	res := a.Execute(context.Background(), approvedDecision(10), testTunables())

	assert.False(t, res.Success)
	assert.Equal(t, broker.StatusRejected, res.Status)
	assert.Contains(t, res.Error, "insufficient funds")
	assert.Empty(t, a.Pending(), "rejected entries leave nothing to track")
}

func TestReconcileDropsTerminalOrders(t *testing.T) {
	p := newTestPaper(500_000)
	a := NewAdapter(p, zerolog.Nop())

	res := a.Execute(context.Background(), approvedDecision(10), testTunables())
	require.True(t, res.Success)
	require.Len(t, a.Pending(), 1)

	// Crossing the trigger fills the stop; reconcile then forgets it
	p.UpdatePrices(map[market.SymbolKey]*market.Quote{
		testKey: {Key: testKey, LTP: 97},
	})
	a.Reconcile(context.Background())
	assert.Empty(t, a.Pending())
}

func TestResolveQuantityShareCount(t *testing.T) {
	qty := resolveQuantity(approvedDecision(42), 100_000)
	assert.Equal(t, int64(42), qty)
}

func TestResolveQuantityFractionOfCap(t *testing.T) {
	// Half the 100k cap at entry 100 buys 500 shares
	qty := resolveQuantity(approvedDecision(0.5), 100_000)
	assert.Equal(t, int64(500), qty)
}

func TestResolveQuantityFloorsAtOne(t *testing.T) {
	d := approvedDecision(0.5)
	d.Signal.EntryPrice = 0

	qty := resolveQuantity(d, 100_000)
	assert.Equal(t, int64(1), qty)

	qty = resolveQuantity(approvedDecision(0), 100_000)
	assert.Equal(t, int64(1), qty)
}
