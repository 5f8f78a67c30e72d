package strategy

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjunkhanna/tradedesk/internal/config"
	"github.com/arjunkhanna/tradedesk/internal/indicators"
	"github.com/arjunkhanna/tradedesk/internal/market"
	"github.com/arjunkhanna/tradedesk/internal/predict"
	"github.com/arjunkhanna/tradedesk/internal/regime"
)

func defaultTunables() config.Tunables {
	return config.Tunables{
		CycleInterval:      time.Minute,
		MinConfidence:      0.6,
		MaxPositionSize:    100_000,
		MaxDailyLoss:       10_000,
		MaxTradesPerDay:    20,
		MaxDrawdownPct:     5.0,
		DefaultStopLossPct: 2.0,
		ReflectionTrigger:  10,
		MinRiskRewardBlock: 0.8,
		MinRiskRewardWarn:  1.2,
	}
}

// stackedBundle builds a fully aligned bullish bundle around the given EMAs
func stackedBundle(ema9, ema21, ema50, atr float64) indicators.Bundle {
	b := indicators.Invalid()
	b.Valid = true
	b.EMA9, b.EMA21, b.EMA50 = ema9, ema21, ema50
	b.EMA12, b.EMA26 = ema9, ema21
	b.RSI = 55
	b.MACD, b.MACDSignal, b.MACDHist = 0.6, 0.1, 0.5
	b.BBUpper, b.BBMiddle, b.BBLower = ema21*1.04, ema21, ema21*0.96
	b.ATR = atr
	b.ADX = 30
	b.KDJJ = 50
	b.VolumeRatio = 1.3
	return b
}

// alignedBullishInputs reproduces a clean trending long setup:
// stacked EMAs on all three timeframes, LTP above the fast EMA, a
// trending_up regime, and price mid-range.
func alignedBullishInputs() Inputs {
	oneHour := stackedBundle(101, 100, 99, 1.2)
	fifteen := stackedBundle(101.5, 100.5, 99.5, 1.1)
	five := stackedBundle(101.8, 100.8, 99.8, 1.0)

	return Inputs{
		Key:   testKey,
		Quote: market.Quote{Key: testKey, LTP: 102},
		Bundles: map[market.Timeframe]indicators.Bundle{
			market.Timeframe5m:  five,
			market.Timeframe15m: fifteen,
			market.Timeframe1h:  oneHour,
		},
		Regime: regime.Snapshot{
			Regime:         regime.TrendingUp,
			Confidence:     85,
			ADX:            30,
			ATRPct:         1.2,
			TrendDirection: regime.DirectionUp,
			Position:       regime.PricePosition{Pct: 55, Location: regime.LocationMiddle},
		},
		Prediction: predict.Prediction{PUp: 0.65, PDown: 0.35, Confidence: 0.6},
		Cycle:      3,
		Now:        time.Now(),
	}
}

func TestDecideAlignedBullishTrend(t *testing.T) {
	core := NewCore(NewOvertradingGuard(), zerolog.Nop())

	sig, reason := core.Decide(alignedBullishInputs(), defaultTunables())

	require.NotNil(t, sig, "expected a signal, got hold: %s", reason)
	assert.Equal(t, ActionBuy, sig.Action)
	assert.True(t, sig.Aligned)
	assert.InDelta(t, 0.85, sig.Confidence, 0.06, "strong trend confidence after calibration")

	// Trending regime stops: 1.5x / 4.0x the 5m ATR of 1.0 around entry 102
	assert.Equal(t, 100.5, sig.StopLoss)
	assert.Equal(t, 106.0, sig.TakeProfit)
	assert.Equal(t, 102.0, sig.EntryPrice)
}

func TestDecideHoldsWithoutPrice(t *testing.T) {
	core := NewCore(NewOvertradingGuard(), zerolog.Nop())
	in := alignedBullishInputs()
	in.Quote.LTP = 0

	sig, reason := core.Decide(in, defaultTunables())
	assert.Nil(t, sig)
	assert.Equal(t, "no usable price", reason)
}

func TestDecideHoldsOnInvalidBundles(t *testing.T) {
	core := NewCore(NewOvertradingGuard(), zerolog.Nop())
	in := alignedBullishInputs()
	in.Bundles = map[market.Timeframe]indicators.Bundle{
		market.Timeframe5m:  indicators.Invalid(),
		market.Timeframe15m: indicators.Invalid(),
		market.Timeframe1h:  indicators.Invalid(),
	}
	in.Prediction = predict.Prediction{PUp: 0.5, PDown: 0.5}

	sig, _ := core.Decide(in, defaultTunables())
	assert.Nil(t, sig, "neutral inputs must hold")
}

func TestDecideLossCooldownBlocks(t *testing.T) {
	guard := NewOvertradingGuard()
	guard.RecordResult(-500, 5)
	guard.RecordResult(-300, 5)
	core := NewCore(guard, zerolog.Nop())

	in := alignedBullishInputs()
	in.Cycle = 7

	sig, reason := core.Decide(in, defaultTunables())
	assert.Nil(t, sig)
	assert.Equal(t, "Loss cooldown", reason)
}

func TestDecideTrapAttenuationCancels(t *testing.T) {
	core := NewCore(NewOvertradingGuard(), zerolog.Nop())
	in := alignedBullishInputs()
	in.Traps = regime.TrapFlags{BullTrapRisk: true, FOMOTop: true}

	// 0.85 * 0.5 * 0.6 = 0.255 drops under the cancel floor
	sig, reason := core.Decide(in, defaultTunables())
	assert.Nil(t, sig)
	assert.Contains(t, reason, "trap filters cancelled")
}

func TestTrendScoreTiers(t *testing.T) {
	tests := []struct {
		name string
		ltp  float64
		b    indicators.Bundle
		want float64
	}{
		{"full bullish stack", 102, stackedBundle(101, 100, 99, 1), 80},
		{"partial bullish stack", 102, stackedBundle(101, 100, 100.5, 1), 60},
		{"above fast ema only", 102, stackedBundle(101, 101.5, 100, 1), 20},
		{"full bearish stack", 98, stackedBundle(99, 100, 101, 1), -80},
		{"invalid bundle", 100, indicators.Invalid(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, trendScore(tt.b, tt.ltp))
		})
	}
}

func TestAlignmentNeedsSlowTimeframeAgreement(t *testing.T) {
	tests := []struct {
		name    string
		t15m    float64
		t1h     float64
		aligned bool
		dir     int
	}{
		{"both bullish", 40, 60, true, 1},
		{"both bearish", -40, -60, true, -1},
		{"neutral 15m never aligns", 0, 60, false, 1},
		{"neutral 1h never aligns", 40, 10, false, 0},
		{"opposed signs", -40, 60, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			aligned, dir := alignment(tt.t15m, tt.t1h)
			assert.Equal(t, tt.aligned, aligned)
			assert.Equal(t, tt.dir, dir)
		})
	}
}

func TestOscScoreExtremes(t *testing.T) {
	b := stackedBundle(101, 100, 99, 1)

	b.RSI, b.KDJJ = 25, 10
	assert.Equal(t, 70.0, oscScore(b), "oversold RSI and KDJ stack bullish")

	b.RSI, b.KDJJ = 75, 90
	assert.Equal(t, -70.0, oscScore(b))

	b.RSI, b.KDJJ = 35, 50
	assert.Equal(t, 15.0, oscScore(b))
}

func TestTradeParamsFallbackWithoutATR(t *testing.T) {
	sl, tp := tradeParams(ActionBuy, 100, 0, regime.TrendingUp, 2.0)
	assert.Equal(t, 98.0, sl, "percentage stop substitutes for a missing ATR")
	assert.Equal(t, 102.0, tp, "fallback band is symmetric around entry")

	sl, tp = tradeParams(ActionSell, 100, 0, regime.TrendingDown, 2.0)
	assert.Equal(t, 102.0, sl)
	assert.Equal(t, 98.0, tp)
}

func TestMeanReversionInRangeboundRegime(t *testing.T) {
	core := NewCore(NewOvertradingGuard(), zerolog.Nop())
	in := alignedBullishInputs()

	// Choppy regime at the bottom of the range with oversold 1h oscillators
	oneHour := in.Bundles[market.Timeframe1h]
	oneHour.RSI = 25
	oneHour.KDJJ = 15
	in.Bundles[market.Timeframe1h] = oneHour
	in.Regime = regime.Snapshot{
		Regime:   regime.Choppy,
		Position: regime.PricePosition{Pct: 15, Location: regime.LocationLow},
	}

	sig, reason := core.Decide(in, defaultTunables())
	if sig != nil {
		assert.Equal(t, ActionBuy, sig.Action, "range bottom with oversold oscillators fades long")
	} else {
		// The choppy calibration penalty can push the fade below threshold
		assert.Contains(t, reason, "confidence")
	}
}
