package strategy

import (
	"math"

	"github.com/arjunkhanna/tradedesk/internal/indicators"
)

// Vote weights for the composite score. Trend carries 0.45 across the three
// timeframes, oscillators 0.20, the predictor 0.05; the remainder is regime
// and trap handling applied after the vote.
const (
	weight5mTrend  = 0.03
	weight15mTrend = 0.12
	weight1hTrend  = 0.30
	weight5mOsc    = 0.03
	weight15mOsc   = 0.07
	weight1hOsc    = 0.10
	weightPredict  = 0.05
)

// Alignment gates per timeframe. A timeframe only contributes its sign to the
// alignment check when its trend score clears the gate.
const (
	alignGate1h  = 25.0
	alignGate15m = 18.0
)

// trendScore grades EMA stacking against the last traded price into
// [-100, 100]. Full stacking in either direction scores +-80, partial
// stacking +-60, a bare fast-EMA cross +-20.
func trendScore(b indicators.Bundle, ltp float64) float64 {
	if !b.Valid || ltp <= 0 {
		return 0
	}
	switch {
	case ltp > b.EMA9 && b.EMA9 > b.EMA21 && b.EMA21 > b.EMA50:
		return 80
	case ltp > b.EMA9 && b.EMA9 > b.EMA21:
		return 60
	case ltp > b.EMA9:
		return 20
	case ltp < b.EMA9 && b.EMA9 < b.EMA21 && b.EMA21 < b.EMA50:
		return -80
	case ltp < b.EMA9 && b.EMA9 < b.EMA21:
		return -60
	case ltp < b.EMA9:
		return -20
	}
	return 0
}

// oscScore grades oscillator extremes into [-100, 100]. Oversold readings
// score positive (a long setup), overbought negative.
func oscScore(b indicators.Bundle) float64 {
	if !b.Valid {
		return 0
	}
	var score float64

	if indicators.IsFinite(b.RSI) {
		switch {
		case b.RSI < 30:
			score += 40
		case b.RSI > 70:
			score -= 40
		case b.RSI < 40:
			score += 15
		case b.RSI > 60:
			score -= 15
		}
	}

	if indicators.IsFinite(b.KDJJ) {
		switch {
		case b.KDJJ < 20:
			score += 30
		case b.KDJJ > 80:
			score -= 30
		}
	}

	return clipScore(score)
}

// predictScore converts the directional probability into the same [-100, 100]
// scale as the trend and oscillator votes.
func predictScore(pUp float64) float64 {
	return clipScore((pUp - 0.5) * 200)
}

// alignSign reduces a trend score to -1/0/+1 against its gate
func alignSign(score, gate float64) int {
	switch {
	case score >= gate:
		return 1
	case score <= -gate:
		return -1
	}
	return 0
}

// alignment reports whether the slower timeframes agree on direction. The 1h
// sign leads and the 15m sign must match it; the 5m score carries its weight
// in the vote but takes no part in the gate.
func alignment(t15m, t1h float64) (aligned bool, direction int) {
	s1h := alignSign(t1h, alignGate1h)
	s15m := alignSign(t15m, alignGate15m)

	aligned = s1h != 0 && s1h == s15m
	return aligned, s1h
}

func clipScore(v float64) float64 {
	return math.Min(100, math.Max(-100, v))
}
