// Package regime classifies prevailing market conditions from indicator summaries
package regime

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/arjunkhanna/tradedesk/internal/indicators"
	"github.com/arjunkhanna/tradedesk/internal/market"
)

// Regime labels the prevailing market condition
type Regime string

const (
	TrendingUp           Regime = "trending_up"
	TrendingDown         Regime = "trending_down"
	Choppy               Regime = "choppy"
	Volatile             Regime = "volatile"
	VolatileDirectionless Regime = "volatile_directionless"
	Unknown              Regime = "unknown"
)

// Trending reports whether the regime is a directional trend
func (r Regime) Trending() bool {
	return r == TrendingUp || r == TrendingDown
}

// Rangebound reports whether the regime calls for mean-reversion handling
func (r Regime) Rangebound() bool {
	return r == Choppy || r == VolatileDirectionless
}

// TrendDirection is the inferred direction of the prevailing trend
type TrendDirection string

const (
	DirectionUp      TrendDirection = "up"
	DirectionDown    TrendDirection = "down"
	DirectionNeutral TrendDirection = "neutral"
)

// Location buckets the price position within the recent range
type Location string

const (
	LocationLow     Location = "low"
	LocationMiddle  Location = "middle"
	LocationHigh    Location = "high"
	LocationUnknown Location = "unknown"
)

// PricePosition places the last close within the recent high/low range
type PricePosition struct {
	Pct      float64  `json:"pct"`
	Location Location `json:"location"`
}

// Snapshot is the full regime classification for one symbol
type Snapshot struct {
	Regime         Regime          `json:"regime"`
	Confidence     float64         `json:"confidence"` // 0-100
	ADX            float64         `json:"adx"`
	BBWidthPct     float64         `json:"bb_width_pct"`
	ATRPct         float64         `json:"atr_pct"`
	TrendDirection TrendDirection  `json:"trend_direction"`
	Reason         string          `json:"reason"`
	Position       PricePosition   `json:"position"`
	Choppy         *ChoppyAnalysis `json:"choppy_analysis,omitempty"`
}

// Fallback values substituted for non-finite inputs
const (
	defaultADX    = 20.0
	defaultATRPct = 0.5

	// ADX proxy scaling for the normalized EMA12-EMA26 spread
	adxProxyScale = 2500.0
	adxProxyMax   = 60.0

	positionWindow = 50
)

// Classifier derives regime snapshots from the 1h indicator bundle
type Classifier struct {
	log zerolog.Logger
}

// NewClassifier creates a regime classifier
func NewClassifier(log zerolog.Logger) *Classifier {
	return &Classifier{log: log.With().Str("component", "regime").Logger()}
}

// Classify builds a regime snapshot from the 1h candles, their indicator
// bundle, and the last traded price.
func (c *Classifier) Classify(candles []market.Candle, b indicators.Bundle, ltp float64) Snapshot {
	pos := PricePositionFrom(candles, positionWindow)

	if !b.Valid || ltp <= 0 {
		return Snapshot{
			Regime:         Unknown,
			Confidence:     0,
			ADX:            defaultADX,
			ATRPct:         defaultATRPct,
			TrendDirection: DirectionNeutral,
			Reason:         "indicator bundle not computable",
			Position:       pos,
		}
	}

	adx := c.deriveADX(b, ltp)
	atrPct := deriveATRPct(b, ltp)
	bbWidth := deriveBBWidthPct(b)
	dir := trendDirection(b)
	tss := trendStrengthScore(b, adx, dir)

	snap := Snapshot{
		ADX:            adx,
		BBWidthPct:     bbWidth,
		ATRPct:         atrPct,
		TrendDirection: dir,
		Position:       pos,
	}

	// Classification rules, evaluated in order
	switch {
	case atrPct > 2.0:
		snap.Regime = Volatile
		snap.Confidence = 80
		snap.Reason = fmt.Sprintf("ATR %.2f%% of price exceeds volatility gate", atrPct)
	case tss >= 70:
		snap.Confidence = 85
		if dir == DirectionDown {
			snap.Regime = TrendingDown
		} else {
			snap.Regime = TrendingUp
		}
		snap.Reason = fmt.Sprintf("trend strength %.0f with %s direction", tss, dir)
	case tss >= 30:
		snap.Confidence = 60
		if dir == DirectionDown {
			snap.Regime = TrendingDown
		} else {
			snap.Regime = TrendingUp
		}
		snap.Reason = fmt.Sprintf("weak trend, strength %.0f", tss)
	case adx < 20:
		snap.Regime = Choppy
		snap.Confidence = 70
		snap.Reason = fmt.Sprintf("ADX %.1f below trend threshold", adx)
	default:
		snap.Regime = VolatileDirectionless
		snap.Confidence = 65
		snap.Reason = "elevated ADX without directional agreement"
	}

	if snap.Regime == Choppy {
		snap.Choppy = analyzeChoppy(candles, b, ltp)
	}

	c.log.Debug().
		Str("regime", string(snap.Regime)).
		Float64("confidence", snap.Confidence).
		Float64("adx", adx).
		Float64("atr_pct", atrPct).
		Str("direction", string(dir)).
		Msg("Regime classified")

	return snap
}

// deriveADX uses the computed ADX when finite, otherwise a scaled normalized
// EMA12-EMA26 spread as a proxy.
func (c *Classifier) deriveADX(b indicators.Bundle, ltp float64) float64 {
	if indicators.IsFinite(b.ADX) {
		return clip(b.ADX, 0, 100)
	}
	if indicators.IsFinite(b.EMA12) && indicators.IsFinite(b.EMA26) && b.EMA26 > 0 {
		spread := math.Abs(b.EMA12-b.EMA26) / b.EMA26
		return clip(spread*adxProxyScale, 0, adxProxyMax)
	}
	return defaultADX
}

func deriveATRPct(b indicators.Bundle, ltp float64) float64 {
	if !indicators.IsFinite(b.ATR) || ltp <= 0 {
		return defaultATRPct
	}
	return clip(b.ATR/ltp*100, 0, 100)
}

func deriveBBWidthPct(b indicators.Bundle) float64 {
	if !indicators.IsFinite(b.BBUpper) || !indicators.IsFinite(b.BBLower) ||
		!indicators.IsFinite(b.BBMiddle) || b.BBMiddle == 0 {
		return 0
	}
	return clip((b.BBUpper-b.BBLower)/b.BBMiddle*100, 0, 1000)
}

func trendDirection(b indicators.Bundle) TrendDirection {
	switch {
	case b.EMA9 > b.EMA21 && b.EMA21 > b.EMA50:
		return DirectionUp
	case b.EMA9 < b.EMA21 && b.EMA21 < b.EMA50:
		return DirectionDown
	default:
		return DirectionNeutral
	}
}

// trendStrengthScore sums ADX, EMA alignment, and MACD momentum contributions
// into [0, 100].
func trendStrengthScore(b indicators.Bundle, adx float64, dir TrendDirection) float64 {
	score := 0.0

	switch {
	case adx > 25:
		score += 40
	case adx > 20:
		score += 20
	}

	switch dir {
	case DirectionUp, DirectionDown:
		score += 30
	}

	if indicators.IsFinite(b.MACDHist) {
		if (dir == DirectionUp && b.MACDHist > 0) || (dir == DirectionDown && b.MACDHist < 0) {
			score += 30
		}
	}

	return clip(score, 0, 100)
}

// PricePositionFrom places the last close within the high/low range of the
// trailing window. A degenerate range yields 50 / middle.
func PricePositionFrom(candles []market.Candle, window int) PricePosition {
	if len(candles) == 0 {
		return PricePosition{Pct: 50, Location: LocationUnknown}
	}
	if len(candles) > window {
		candles = candles[len(candles)-window:]
	}

	hi := candles[0].High
	lo := candles[0].Low
	for _, c := range candles[1:] {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	last := candles[len(candles)-1].Close

	if hi <= lo || !indicators.IsFinite(hi) || !indicators.IsFinite(lo) {
		return PricePosition{Pct: 50, Location: LocationMiddle}
	}

	pct := clip((last-lo)/(hi-lo)*100, 0, 100)
	loc := LocationMiddle
	switch {
	case pct <= 25:
		loc = LocationLow
	case pct >= 75:
		loc = LocationHigh
	}
	return PricePosition{Pct: pct, Location: loc}
}

func clip(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(hi, math.Max(lo, v))
}
