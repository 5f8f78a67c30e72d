package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeMetricsEmptyRun(t *testing.T) {
	m := ComputeMetrics(100_000, nil, nil)
	assert.Zero(t, m.TotalPnL)
	assert.Zero(t, m.WinRate)
	assert.Zero(t, m.ProfitFactor)
}

func TestComputeMetricsPnLAndReturn(t *testing.T) {
	equity := []float64{100_000, 101_000, 102_500}
	m := ComputeMetrics(100_000, equity, nil)

	assert.Equal(t, 2_500.0, m.TotalPnL)
	assert.Equal(t, 2.5, m.ReturnPct)
	assert.Equal(t, 0.0, m.MaxDrawdownPct, "a monotonic curve never draws down")
}

func TestComputeMetricsMaxDrawdown(t *testing.T) {
	// Peak 110k, trough 99k: 10% drawdown
	equity := []float64{100_000, 110_000, 99_000, 105_000}
	m := ComputeMetrics(100_000, equity, nil)

	assert.Equal(t, 10.0, m.MaxDrawdownPct)
}

func TestComputeMetricsTradeStats(t *testing.T) {
	trades := []ClosedTrade{
		{PnL: 300},
		{PnL: 100},
		{PnL: -200},
		{PnL: 0}, // breakeven counts toward neither side
	}
	m := ComputeMetrics(100_000, []float64{100_000, 100_200}, trades)

	assert.InDelta(t, 66.67, m.WinRate, 0.01)
	assert.Equal(t, 200.0, m.AvgWin)
	assert.Equal(t, -200.0, m.AvgLoss)
	assert.Equal(t, 2.0, m.ProfitFactor)
}

func TestComputeMetricsProfitFactorNoLosses(t *testing.T) {
	trades := []ClosedTrade{{PnL: 100}, {PnL: 50}}
	m := ComputeMetrics(100_000, []float64{100_000, 100_150}, trades)

	assert.True(t, math.IsInf(m.ProfitFactor, 1))
	assert.Equal(t, 100.0, m.WinRate)
}

func TestSharpeFlatCurveIsZero(t *testing.T) {
	m := ComputeMetrics(100_000, []float64{100_000, 100_000, 100_000}, nil)
	assert.Zero(t, m.SharpeRatio)
}
