package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjunkhanna/tradedesk/internal/market"
)

func candlesFromCloses(closes []float64) []market.Candle {
	start := time.Date(2026, 8, 3, 9, 15, 0, 0, time.UTC)
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      c - 0.5,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    10_000,
		}
	}
	return out
}

func TestComputeTooFewBars(t *testing.T) {
	b := Compute(candlesFromCloses([]float64{100, 101, 102}))

	assert.False(t, b.Valid, "Bundle under MinBars should be invalid")
	assert.True(t, math.IsNaN(b.EMA9), "Invalid bundle scalars should be NaN")
	assert.True(t, math.IsNaN(b.RSI), "Invalid bundle RSI should be NaN")
}

func TestComputeMonotonicRally(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	b := Compute(candlesFromCloses(closes))

	require.True(t, b.Valid)
	assert.Equal(t, 100.0, b.RSI, "RSI should saturate at 100 when there are no losses")
	assert.Equal(t, TrendBullish, b.Trend)
	assert.Equal(t, MomentumStrong, b.Momentum)
	assert.Greater(t, b.EMA9, b.EMA21, "Fast EMA should lead in a rally")
	assert.Greater(t, b.EMA21, b.EMA50, "Mid EMA should lead slow EMA in a rally")
	assert.Greater(t, b.MACDHist, 0.0, "MACD histogram should be positive in a rally")
}

func TestComputeDowntrendBearish(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	b := Compute(candlesFromCloses(closes))

	require.True(t, b.Valid)
	assert.Equal(t, 0.0, b.RSI, "RSI should floor at 0 when there are no gains")
	assert.Equal(t, TrendBearish, b.Trend)
	assert.Less(t, b.MACDHist, 0.0)
}

func TestComputeVolumeRatioZeroDenominator(t *testing.T) {
	candles := candlesFromCloses(make([]float64, 30))
	for i := range candles {
		candles[i].Close = 100
		candles[i].Open = 100
		candles[i].High = 100
		candles[i].Low = 100
		candles[i].Volume = 0
	}
	b := Compute(candles)

	require.True(t, b.Valid)
	assert.Equal(t, 1.0, b.VolumeRatio, "Zero volume SMA should default the ratio to 1.0")
}

func TestComputeFlatSeriesStaysFinite(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 150
	}
	b := Compute(candlesFromCloses(closes))

	require.True(t, b.Valid)
	assert.InDelta(t, 150, b.EMA9, 0.001)
	assert.InDelta(t, 150, b.BBMiddle, 0.001)
	// Flat input makes the bands collapse onto the middle
	assert.InDelta(t, b.BBUpper, b.BBLower, 0.001)
	assert.False(t, math.IsInf(b.ATR, 0), "ATR must never be Inf")
}

func TestWilderRSIExactWindow(t *testing.T) {
	// 15 closes alternating up/down keeps RSI near 50
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 100 + float64(i%2)
	}
	rsi := wilderRSI(closes, 14)

	require.False(t, math.IsNaN(rsi))
	assert.Greater(t, rsi, 30.0)
	assert.Less(t, rsi, 70.0)
}

func TestRollingATRSimpleMean(t *testing.T) {
	n := 20
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i] = 102
		lows[i] = 100
		closes[i] = 101
	}
	atr := rollingATR(highs, lows, closes, 14)

	assert.InDelta(t, 2.0, atr, 0.001, "Constant 2-point range should give ATR 2")
}
