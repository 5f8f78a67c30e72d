package predict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjunkhanna/tradedesk/internal/indicators"
)

func bullishBundle() indicators.Bundle {
	b := indicators.Invalid()
	b.Valid = true
	b.EMA9, b.EMA21, b.EMA50 = 102, 101, 100
	b.EMA12, b.EMA26 = 102, 100 // 2% spread, above the cross gate
	b.RSI = 25
	b.MACDHist = 0.4
	b.BBUpper, b.BBMiddle, b.BBLower = 110, 100, 90
	b.VolumeRatio = 2.0
	b.Trend = indicators.TrendBullish
	return b
}

func TestPredictInvalidBundleNeutral(t *testing.T) {
	p := Predict(indicators.Invalid(), 100)

	assert.Equal(t, 0.5, p.PUp)
	assert.Equal(t, 0.5, p.PDown)
	assert.Equal(t, 0.0, p.Confidence)
	assert.Empty(t, p.Factors)
}

func TestPredictBullishStack(t *testing.T) {
	// ltp 91 sits near the lower band, adding the BB factor
	p := Predict(bullishBundle(), 91)

	require.Greater(t, p.PUp, 0.5, "Bullish factors must lift p_up")
	assert.InDelta(t, 1.0, p.PUp+p.PDown, 1e-9, "Probabilities must sum to 1")
	assert.Contains(t, p.Factors, "trend")
	assert.Contains(t, p.Factors, "rsi")
	assert.Contains(t, p.Factors, "bb_position")
	assert.Contains(t, p.Factors, "ema_cross")
	assert.Contains(t, p.Factors, "macd_hist")
}

func TestPredictConfidenceCap(t *testing.T) {
	// Every factor fires bullish: total weight 0.55 over scale 0.5 exceeds 1,
	// so the cap binds
	p := Predict(bullishBundle(), 91)

	assert.Equal(t, MaxConfidence, p.Confidence)
}

func TestPredictBearishMirror(t *testing.T) {
	b := bullishBundle()
	b.EMA9, b.EMA21, b.EMA50 = 100, 101, 102
	b.EMA12, b.EMA26 = 100, 102
	b.RSI = 80
	b.MACDHist = -0.4
	b.Trend = indicators.TrendBearish

	p := Predict(b, 109)

	assert.Less(t, p.PUp, 0.5)
	assert.Greater(t, p.PDown, 0.5)
}

func TestPredictNonPositivePrice(t *testing.T) {
	p := Predict(bullishBundle(), 0)
	assert.Equal(t, 0.5, p.PUp)
	assert.Equal(t, 0.0, p.Confidence)
}
