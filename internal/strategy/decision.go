package strategy

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arjunkhanna/tradedesk/internal/config"
	"github.com/arjunkhanna/tradedesk/internal/indicators"
	"github.com/arjunkhanna/tradedesk/internal/market"
	"github.com/arjunkhanna/tradedesk/internal/regime"
)

// Action thresholds on the composite score
const (
	longThreshold       = 20.0
	shortThreshold      = 18.0
	strongMargin        = 15.0
	counterTrendPenalty = 12.0
	rangeboundThreshold = 30.0

	strongConfidence = 0.85
	weakBaseConf     = 0.55
	weakConfCap      = 0.75
	weakConfSlope    = 0.01

	reversionConfidence = 0.60
	reversionOscGate    = 25.0
	reversionLowPct     = 30.0
	reversionHighPct    = 70.0
)

// Confidence attenuation under trap flags and range position
const (
	attenBullTrap    = 0.5
	attenFOMOTop     = 0.6
	attenDivergence  = 0.7
	attenWeakRebound = 0.8
	attenPanicBottom = 0.5
	attenAccumulate  = 0.7
	attenEdgeZone    = 0.7

	cancelConfidence = 0.35
)

// Calibration adjustments applied after filters
const (
	calibAlignment     = 0.15
	calibTrending      = 0.10
	calibChoppy        = 0.25
	calibVolatile      = 0.20
	calibMiddleZone    = 0.15
	confidenceFloor    = 0.05
)

// Stop and target distances in ATR multiples per regime
var regimeStopMultiples = map[regime.Regime][2]float64{
	regime.TrendingUp:            {1.5, 4.0},
	regime.TrendingDown:          {1.5, 4.0},
	regime.Volatile:              {2.0, 3.5},
	regime.Choppy:                {1.0, 1.5},
	regime.VolatileDirectionless: {1.0, 1.5},
}

var defaultStopMultiples = [2]float64{1.5, 3.0}

// Core is the weighted-vote decision engine. One instance serves all symbols;
// the overtrading guard is shared so the loss cooldown is engine-wide.
type Core struct {
	guard *OvertradingGuard
	log   zerolog.Logger
}

// NewCore creates the decision core
func NewCore(guard *OvertradingGuard, log zerolog.Logger) *Core {
	return &Core{
		guard: guard,
		log:   log.With().Str("component", "strategy").Logger(),
	}
}

// Guard exposes the overtrading guard for execution feedback
func (c *Core) Guard() *OvertradingGuard {
	return c.guard
}

// Decide runs the full decision pipeline for one symbol. A nil signal means
// HOLD; the returned reason explains why.
func (c *Core) Decide(in Inputs, tun config.Tunables) (*Signal, string) {
	ltp := in.Quote.LTP
	if ltp <= 0 {
		return nil, "no usable price"
	}

	b5m := in.Bundles[market.Timeframe5m]
	b15m := in.Bundles[market.Timeframe15m]
	b1h := in.Bundles[market.Timeframe1h]

	t5m := trendScore(b5m, ltp)
	t15m := trendScore(b15m, ltp)
	t1h := trendScore(b1h, ltp)
	o5m := oscScore(b5m)
	o15m := oscScore(b15m)
	o1h := oscScore(b1h)
	pred := predictScore(in.Prediction.PUp)

	score := weight5mTrend*t5m + weight15mTrend*t15m + weight1hTrend*t1h +
		weight5mOsc*o5m + weight15mOsc*o15m + weight1hOsc*o1h +
		weightPredict*pred

	aligned, _ := alignment(t15m, t1h)

	action, conf, strong := mapAction(score, aligned, o1h, in.Regime)
	if action == ActionHold {
		return nil, fmt.Sprintf("score %.1f inside hold band", score)
	}

	// Trap and range-position filters attenuate confidence multiplicatively
	conf = applyTraps(action, conf, in.Traps)
	conf = applyPosition(action, conf, in.Regime.Position)
	if conf < cancelConfidence {
		return nil, fmt.Sprintf("trap filters cancelled %s at confidence %.2f", action, conf)
	}

	if ok, reason := c.guard.Allow(action, in.Key, in.Cycle, in.Now); !ok {
		return nil, reason
	}

	sl, tp := tradeParams(action, ltp, b5m.ATR, in.Regime.Regime, tun.DefaultStopLossPct)

	conf = calibrate(conf, aligned, strong, in.Regime)
	if conf < tun.MinConfidence {
		return nil, fmt.Sprintf("confidence %.2f below threshold %.2f", conf, tun.MinConfidence)
	}

	sig := &Signal{
		Action:     action,
		Key:        in.Key,
		Confidence: round2(conf),
		EntryPrice: round2(ltp),
		StopLoss:   sl,
		TakeProfit: tp,
		Score:      round2(score),
		Aligned:    aligned,
		Regime:     in.Regime,
		Traps:      in.Traps,
		Reasoning: fmt.Sprintf("score %.1f (trend %.0f/%.0f/%.0f osc %.0f/%.0f/%.0f pred %.0f), regime %s",
			score, t5m, t15m, t1h, o5m, o15m, o1h, pred, in.Regime.Regime),
		Source:    "strategy-core-" + uuid.NewString()[:8],
		Cycle:     in.Cycle,
		Timestamp: in.Now,
	}

	c.log.Debug().
		Str("symbol", in.Key.String()).
		Str("action", string(action)).
		Float64("score", sig.Score).
		Float64("confidence", sig.Confidence).
		Bool("aligned", aligned).
		Msg("Signal generated")

	return sig, ""
}

// mapAction converts the composite score into an action and base confidence.
// Rangebound regimes use a mean-reversion override before a widened trend
// band; trending regimes penalize counter-trend entries.
func mapAction(score float64, aligned bool, osc1h float64, snap regime.Snapshot) (Action, float64, bool) {
	long := longThreshold
	short := shortThreshold

	switch {
	case snap.Regime.Rangebound():
		if a, conf := meanReversion(osc1h, snap.Position); a != ActionHold {
			return a, conf, false
		}
		long = rangeboundThreshold
		short = rangeboundThreshold
	case snap.Regime == regime.TrendingDown:
		long += counterTrendPenalty
	case snap.Regime == regime.TrendingUp:
		short += counterTrendPenalty
	}

	switch {
	case score > long+strongMargin && aligned:
		return ActionBuy, strongConfidence, true
	case score < -(short+strongMargin) && aligned:
		return ActionSell, strongConfidence, true
	case score > long:
		return ActionBuy, weakConf(score - long), false
	case score < -short:
		return ActionSell, weakConf(-score - short), false
	}
	return ActionHold, 0, false
}

// meanReversion fades range edges when the 1h oscillators confirm
func meanReversion(osc1h float64, pos regime.PricePosition) (Action, float64) {
	switch {
	case pos.Pct <= reversionLowPct && osc1h >= reversionOscGate:
		return ActionBuy, reversionConfidence
	case pos.Pct >= reversionHighPct && osc1h <= -reversionOscGate:
		return ActionSell, reversionConfidence
	}
	return ActionHold, 0
}

func weakConf(margin float64) float64 {
	return math.Min(weakConfCap, weakBaseConf+margin*weakConfSlope)
}

func applyTraps(action Action, conf float64, traps regime.TrapFlags) float64 {
	if action == ActionBuy {
		if traps.BullTrapRisk {
			conf *= attenBullTrap
		}
		if traps.FOMOTop {
			conf *= attenFOMOTop
		}
		if traps.VolumeDivergence {
			conf *= attenDivergence
		}
		if traps.WeakRebound {
			conf *= attenWeakRebound
		}
		return conf
	}
	if traps.PanicBottom {
		conf *= attenPanicBottom
	}
	if traps.Accumulation {
		conf *= attenAccumulate
	}
	return conf
}

// applyPosition discounts chasing entries at the wrong range edge
func applyPosition(action Action, conf float64, pos regime.PricePosition) float64 {
	if action == ActionBuy && pos.Location == regime.LocationHigh {
		return conf * attenEdgeZone
	}
	if action == ActionSell && pos.Location == regime.LocationLow {
		return conf * attenEdgeZone
	}
	return conf
}

// tradeParams derives stop loss and take profit from the 5m ATR. When the ATR
// is unusable, a symmetric percentage band around entry substitutes for both
// legs.
func tradeParams(action Action, entry, atr float64, r regime.Regime, fallbackPct float64) (sl, tp float64) {
	if !indicators.IsFinite(atr) || atr <= 0 {
		dist := entry * fallbackPct / 100
		if action == ActionSell {
			return round2(entry + dist), round2(entry - dist)
		}
		return round2(entry - dist), round2(entry + dist)
	}

	mult, ok := regimeStopMultiples[r]
	if !ok {
		mult = defaultStopMultiples
	}

	if action == ActionSell {
		return round2(entry + mult[0]*atr), round2(entry - mult[1]*atr)
	}
	return round2(entry - mult[0]*atr), round2(entry + mult[1]*atr)
}

// calibrate applies the post-filter confidence adjustments
func calibrate(conf float64, aligned, strong bool, snap regime.Snapshot) float64 {
	if aligned && !strong {
		conf += calibAlignment
	}

	switch snap.Regime {
	case regime.TrendingUp, regime.TrendingDown:
		conf += calibTrending
	case regime.Choppy:
		conf -= calibChoppy
	case regime.Volatile, regime.VolatileDirectionless:
		conf -= calibVolatile
	}

	if snap.Position.Location == regime.LocationMiddle {
		conf -= calibMiddleZone
	}

	return math.Min(1.0, math.Max(confidenceFloor, conf))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
