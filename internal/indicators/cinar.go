package indicators

import (
	"math"

	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
)

// toChan converts a slice to the closed channel form cinar/indicator consumes
func toChan(values []float64) chan float64 {
	ch := make(chan float64, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

func collect(ch <-chan float64) []float64 {
	var out []float64
	for v := range ch {
		out = append(out, v)
	}
	return out
}

// lastEMA computes the final EMA value over the series
func lastEMA(prices []float64, period int) float64 {
	if period < 1 || len(prices) < period {
		return math.NaN()
	}
	ema := trend.NewEmaWithPeriod[float64](period)
	values := collect(ema.Compute(toChan(prices)))
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

// lastMACD computes the final MACD line and signal line (12/26/9)
func lastMACD(prices []float64) (macd, signal float64) {
	if len(prices) < macdSlowPeriod {
		return math.NaN(), math.NaN()
	}
	ind := trend.NewMacdWithPeriod[float64](macdFastPeriod, macdSlowPeriod, macdSignalSpan)
	macdChan, signalChan := ind.Compute(toChan(prices))

	macd, signal = math.NaN(), math.NaN()
	for {
		m, mok := <-macdChan
		s, sok := <-signalChan
		if !mok || !sok {
			break
		}
		macd, signal = m, s
	}
	return macd, signal
}

// lastBollinger computes the final Bollinger bands (20-period, 2 std dev)
func lastBollinger(prices []float64) (lower, middle, upper float64) {
	if len(prices) < bollingerPeriod {
		nan := math.NaN()
		return nan, nan, nan
	}
	ind := volatility.NewBollingerBandsWithPeriod[float64](bollingerPeriod)
	lowerChan, middleChan, upperChan := ind.Compute(toChan(prices))

	lower, middle, upper = math.NaN(), math.NaN(), math.NaN()
	for {
		l, lok := <-lowerChan
		m, mok := <-middleChan
		u, uok := <-upperChan
		if !lok || !mok || !uok {
			break
		}
		lower, middle, upper = l, m, u
	}
	return lower, middle, upper
}
