// Package predict scores directional probability from indicator features.
// The predictor is rule-based: each feature contributes a signed weight and
// the weights fold into p_up. Confidence is capped because no model sits
// behind the weights.
package predict

import (
	"math"

	"github.com/arjunkhanna/tradedesk/internal/indicators"
)

// Prediction is the probability estimate for the next move
type Prediction struct {
	PUp        float64            `json:"p_up"`
	PDown      float64            `json:"p_down"`
	Confidence float64            `json:"confidence"` // capped at MaxConfidence
	Factors    map[string]float64 `json:"factors"`
}

// MaxConfidence is the fixed cap on rule-based predictions
const MaxConfidence = 0.70

// Feature weights. Each fires bullish or bearish depending on the feature
// value; the sums drive p_up = 0.5 + (bull - bear)/2.
const (
	weightTrend    = 0.15
	weightRSI      = 0.10
	weightBB       = 0.10
	weightEMACross = 0.10
	weightVolume   = 0.05
	weightMACD     = 0.10

	confidenceScale = 0.5
)

// Defaults substituted for non-finite features before scoring
const (
	defaultRSI         = 50.0
	defaultVolumeRatio = 1.0
)

// Predict derives the probability estimate from one indicator bundle and the
// last traded price. It is a pure function of its inputs.
func Predict(b indicators.Bundle, ltp float64) Prediction {
	factors := make(map[string]float64)
	var bull, bear float64

	if !b.Valid || ltp <= 0 {
		return Prediction{PUp: 0.5, PDown: 0.5, Confidence: 0, Factors: factors}
	}

	// Trend: EMA stacking
	switch {
	case b.EMA9 > b.EMA21 && b.EMA21 > b.EMA50:
		bull += weightTrend
		factors["trend"] = weightTrend
	case b.EMA9 < b.EMA21 && b.EMA21 < b.EMA50:
		bear += weightTrend
		factors["trend"] = -weightTrend
	}

	// RSI extremes mean-revert
	rsi := finiteOr(b.RSI, defaultRSI)
	switch {
	case rsi < 30:
		bull += weightRSI
		factors["rsi"] = weightRSI
	case rsi > 70:
		bear += weightRSI
		factors["rsi"] = -weightRSI
	}

	// Bollinger position
	if indicators.IsFinite(b.BBUpper) && indicators.IsFinite(b.BBLower) && b.BBUpper > b.BBLower {
		pos := (ltp - b.BBLower) / (b.BBUpper - b.BBLower)
		switch {
		case pos < 0.2:
			bull += weightBB
			factors["bb_position"] = weightBB
		case pos > 0.8:
			bear += weightBB
			factors["bb_position"] = -weightBB
		}
	}

	// EMA cross strength: normalized fast/slow spread
	if indicators.IsFinite(b.EMA12) && indicators.IsFinite(b.EMA26) && b.EMA26 > 0 {
		spread := (b.EMA12 - b.EMA26) / b.EMA26
		if math.Abs(spread) > 0.002 {
			if spread > 0 {
				bull += weightEMACross
				factors["ema_cross"] = weightEMACross
			} else {
				bear += weightEMACross
				factors["ema_cross"] = -weightEMACross
			}
		}
	}

	// Volume confirms the candle direction via the trend label
	volRatio := finiteOr(b.VolumeRatio, defaultVolumeRatio)
	if volRatio > 1.5 {
		if b.Trend == indicators.TrendBullish {
			bull += weightVolume
			factors["volume"] = weightVolume
		} else {
			bear += weightVolume
			factors["volume"] = -weightVolume
		}
	}

	// MACD histogram sign
	hist := finiteOr(b.MACDHist, 0)
	if hist > 0 {
		bull += weightMACD
		factors["macd_hist"] = weightMACD
	} else if hist < 0 {
		bear += weightMACD
		factors["macd_hist"] = -weightMACD
	}

	pUp := clip01(0.5 + (bull-bear)/2)
	total := bull + bear

	return Prediction{
		PUp:        pUp,
		PDown:      1 - pUp,
		Confidence: math.Min(MaxConfidence, total/confidenceScale),
		Factors:    factors,
	}
}

func finiteOr(v, def float64) float64 {
	if indicators.IsFinite(v) {
		return v
	}
	return def
}

func clip01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
