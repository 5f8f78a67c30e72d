package regime

import (
	"fmt"
	"math"

	"github.com/arjunkhanna/tradedesk/internal/indicators"
	"github.com/arjunkhanna/tradedesk/internal/market"
)

// ChoppyAnalysis describes a choppy market in terms a range trader can act on
type ChoppyAnalysis struct {
	Squeeze             bool    `json:"squeeze"`
	SqueezeRatio        float64 `json:"squeeze_ratio"`
	Support             float64 `json:"support"`
	Resistance          float64 `json:"resistance"`
	BreakoutProbability float64 `json:"breakout_probability"` // 0-100
	Hint                string  `json:"hint"`
}

const (
	squeezeWindow    = 20
	squeezeThreshold = 0.7
	rangeEdgePct     = 10.0
	surgeVolumeRatio = 1.5
)

// analyzeChoppy runs only when the regime is choppy. It detects a Bollinger
// squeeze, locates the trading range, and scores the chance of a breakout.
func analyzeChoppy(candles []market.Candle, b indicators.Bundle, ltp float64) *ChoppyAnalysis {
	a := &ChoppyAnalysis{}

	// Squeeze: current band width vs its recent mean
	width := b.BBUpper - b.BBLower
	meanWidth := meanBandWidth(candles, squeezeWindow)
	if indicators.IsFinite(width) && meanWidth > 0 {
		a.SqueezeRatio = width / meanWidth
		a.Squeeze = a.SqueezeRatio < squeezeThreshold
	} else {
		a.SqueezeRatio = 1.0
	}

	// Support and resistance from the recent window
	window := candles
	if len(window) > positionWindow {
		window = window[len(window)-positionWindow:]
	}
	if len(window) > 0 {
		a.Support = window[0].Low
		a.Resistance = window[0].High
		for _, c := range window[1:] {
			a.Support = math.Min(a.Support, c.Low)
			a.Resistance = math.Max(a.Resistance, c.High)
		}
	}

	// Breakout probability from squeeze intensity, edge proximity, volume surge
	prob := 20.0
	if a.Squeeze {
		prob += (squeezeThreshold - a.SqueezeRatio) / squeezeThreshold * 40
	}
	if a.Resistance > a.Support && ltp > 0 {
		span := a.Resistance - a.Support
		distToEdge := math.Min(a.Resistance-ltp, ltp-a.Support) / span * 100
		if distToEdge < rangeEdgePct {
			prob += 20
		}
	}
	if indicators.IsFinite(b.VolumeRatio) && b.VolumeRatio > surgeVolumeRatio {
		prob += 20
	}
	a.BreakoutProbability = clip(prob, 0, 100)

	switch {
	case a.Squeeze && a.BreakoutProbability >= 60:
		a.Hint = fmt.Sprintf("squeeze with breakout risk %.0f%%: wait for a close outside %.2f-%.2f before committing", a.BreakoutProbability, a.Support, a.Resistance)
	case a.BreakoutProbability >= 60:
		a.Hint = fmt.Sprintf("price pressing the range edge: breakout risk %.0f%%, avoid fading the move", a.BreakoutProbability)
	default:
		a.Hint = fmt.Sprintf("range trade between support %.2f and resistance %.2f with tight stops", a.Support, a.Resistance)
	}

	return a
}

// meanBandWidth approximates the trailing mean Bollinger width using the
// rolling 20-bar stdev of closes (width = 4*stdev for 2-sigma bands).
func meanBandWidth(candles []market.Candle, window int) float64 {
	closes := market.Closes(candles)
	if len(closes) < squeezeWindow+window {
		return 0
	}

	var sum float64
	count := 0
	for end := len(closes) - window + 1; end <= len(closes); end++ {
		seg := closes[end-squeezeWindow : end]
		sum += 4 * stdev(seg)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func stdev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(values)))
}
