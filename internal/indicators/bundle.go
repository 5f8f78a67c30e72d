// Package indicators computes the per-timeframe technical indicator bundle
package indicators

import (
	"math"

	"github.com/arjunkhanna/tradedesk/internal/market"
)

// MinBars is the minimum window below which a bundle is not computable
const MinBars = 20

// Standard periods used across the engine
const (
	emaFastPeriod   = 9
	emaMidPeriod    = 21
	emaSlowPeriod   = 50
	rsiPeriod       = 14
	macdFastPeriod  = 12
	macdSlowPeriod  = 26
	macdSignalSpan  = 9
	bollingerPeriod = 20
	atrPeriod       = 14
	volumePeriod    = 20
	adxPeriod       = 14
)

// Trend labels
const (
	TrendBullish = "bullish"
	TrendBearish = "bearish"
)

// Momentum labels
const (
	MomentumStrong = "strong"
	MomentumWeak   = "weak"
)

// Bundle holds the indicator snapshot for one symbol and timeframe.
// When Valid is false every scalar is NaN and downstream scoring treats
// the bundle as neutral.
type Bundle struct {
	Valid bool `json:"valid"`

	EMA9  float64 `json:"ema9"`
	EMA21 float64 `json:"ema21"`
	EMA50 float64 `json:"ema50"`

	// EMA12/EMA26 back the MACD line and the ADX proxy
	EMA12 float64 `json:"ema12"`
	EMA26 float64 `json:"ema26"`

	RSI float64 `json:"rsi"`

	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`

	BBUpper  float64 `json:"bb_upper"`
	BBMiddle float64 `json:"bb_middle"`
	BBLower  float64 `json:"bb_lower"`

	ATR float64 `json:"atr"`
	ADX float64 `json:"adx"`

	// KDJ J line; NaN when the window is too short for the 9-3-3 stochastic
	KDJJ float64 `json:"kdj_j"`

	VolumeSMA   float64 `json:"volume_sma"`
	VolumeRatio float64 `json:"volume_ratio"`

	Trend    string `json:"trend"`
	Momentum string `json:"momentum"`
}

// Invalid returns the not-computable sentinel bundle
func Invalid() Bundle {
	nan := math.NaN()
	return Bundle{
		Valid: false,
		EMA9:  nan, EMA21: nan, EMA50: nan,
		EMA12: nan, EMA26: nan,
		RSI:  nan,
		MACD: nan, MACDSignal: nan, MACDHist: nan,
		BBUpper: nan, BBMiddle: nan, BBLower: nan,
		ATR: nan, ADX: nan, KDJJ: nan,
		VolumeSMA: nan, VolumeRatio: nan,
	}
}

// Compute builds the indicator bundle from an OHLCV window, oldest bar first.
// Fewer than MinBars bars yields the invalid sentinel.
func Compute(candles []market.Candle) Bundle {
	if len(candles) < MinBars {
		return Invalid()
	}

	closes := market.Closes(candles)
	highs := market.Highs(candles)
	lows := market.Lows(candles)
	volumes := market.Volumes(candles)

	b := Bundle{Valid: true}

	b.EMA9 = lastEMA(closes, emaFastPeriod)
	b.EMA21 = lastEMA(closes, emaMidPeriod)
	b.EMA50 = lastEMA(closes, emaSlowPeriod)
	b.EMA12 = lastEMA(closes, macdFastPeriod)
	b.EMA26 = lastEMA(closes, macdSlowPeriod)

	b.RSI = wilderRSI(closes, rsiPeriod)
	b.MACD, b.MACDSignal = lastMACD(closes)
	b.MACDHist = b.MACD - b.MACDSignal

	b.BBLower, b.BBMiddle, b.BBUpper = lastBollinger(closes)
	b.ATR = rollingATR(highs, lows, closes, atrPeriod)
	b.ADX = wilderADX(highs, lows, closes, adxPeriod)
	b.KDJJ = kdjJ(highs, lows, closes)

	b.VolumeSMA = sma(volumes, volumePeriod)
	current := volumes[len(volumes)-1]
	if b.VolumeSMA == 0 || !isFinite(b.VolumeSMA) {
		b.VolumeRatio = 1.0
	} else {
		b.VolumeRatio = current / b.VolumeSMA
	}

	if b.EMA9 >= b.EMA21 {
		b.Trend = TrendBullish
	} else {
		b.Trend = TrendBearish
	}

	if isFinite(b.RSI) && math.Abs(b.RSI-50) >= 10 {
		b.Momentum = MomentumStrong
	} else {
		b.Momentum = MomentumWeak
	}

	b.sanitize()
	return b
}

// sanitize forces every scalar to be finite or NaN, never Inf
func (b *Bundle) sanitize() {
	for _, p := range []*float64{
		&b.EMA9, &b.EMA21, &b.EMA50, &b.EMA12, &b.EMA26,
		&b.RSI, &b.MACD, &b.MACDSignal, &b.MACDHist,
		&b.BBUpper, &b.BBMiddle, &b.BBLower,
		&b.ATR, &b.ADX, &b.KDJJ, &b.VolumeSMA, &b.VolumeRatio,
	} {
		if math.IsInf(*p, 0) {
			*p = math.NaN()
		}
	}
}

// sma returns the simple moving average of the last period values
func sma(values []float64, period int) float64 {
	if len(values) < period || period <= 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IsFinite reports whether v is a usable number
func IsFinite(v float64) bool {
	return isFinite(v)
}
