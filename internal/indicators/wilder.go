package indicators

import "math"

// wilderRSI computes RSI with Wilder smoothing over the delta window.
// A zero loss denominator is defined as RSI 100.
func wilderRSI(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return math.NaN()
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss += -delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// trueRanges returns the TR column; index 0 uses high-low only
func trueRanges(highs, lows, closes []float64) []float64 {
	tr := make([]float64, len(closes))
	for i := range closes {
		if i == 0 {
			tr[i] = highs[i] - lows[i]
			continue
		}
		tr[i] = math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))
	}
	return tr
}

// rollingATR is the simple rolling mean of true range over the period
func rollingATR(highs, lows, closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return math.NaN()
	}
	tr := trueRanges(highs, lows, closes)
	return sma(tr, period)
}

// smoothWilder applies Wilder's recursive smoothing to a column
func smoothWilder(values []float64, period int) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n < period+1 {
		return out
	}

	var sum float64
	for i := 1; i <= period; i++ {
		sum += values[i]
	}
	out[period] = sum

	for i := period + 1; i < n; i++ {
		out[i] = out[i-1] - out[i-1]/float64(period) + values[i]
	}
	return out
}

// wilderADX computes the Average Directional Index. cinar/indicator v2 does
// not ship ADX, so the DI/DX pipeline is implemented here.
func wilderADX(highs, lows, closes []float64, period int) float64 {
	n := len(closes)
	if n < period*2 {
		return math.NaN()
	}

	tr := trueRanges(highs, lows, closes)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	smoothTR := smoothWilder(tr, period)
	smoothPlus := smoothWilder(plusDM, period)
	smoothMinus := smoothWilder(minusDM, period)

	dx := make([]float64, n)
	for i := period; i < n; i++ {
		if smoothTR[i] == 0 {
			continue
		}
		plusDI := 100 * smoothPlus[i] / smoothTR[i]
		minusDI := 100 * smoothMinus[i] / smoothTR[i]
		sum := plusDI + minusDI
		if sum == 0 {
			continue
		}
		dx[i] = 100 * math.Abs(plusDI-minusDI) / sum
	}

	// ADX = Wilder-smoothed DX
	start := period * 2
	var adx float64
	for i := period; i < start; i++ {
		adx += dx[i]
	}
	adx /= float64(period)
	for i := start; i < n; i++ {
		adx = (adx*float64(period-1) + dx[i]) / float64(period)
	}
	return adx
}

// kdjJ computes the J line of the 9-3-3 KDJ stochastic
func kdjJ(highs, lows, closes []float64) float64 {
	const window = 9
	n := len(closes)
	if n < window {
		return math.NaN()
	}

	k, d := 50.0, 50.0
	for i := window - 1; i < n; i++ {
		hi, lo := highs[i], lows[i]
		for j := i - window + 1; j < i; j++ {
			hi = math.Max(hi, highs[j])
			lo = math.Min(lo, lows[j])
		}
		rsv := 50.0
		if hi != lo {
			rsv = (closes[i] - lo) / (hi - lo) * 100
		}
		k = k*2/3 + rsv/3
		d = d*2/3 + k/3
	}
	return 3*k - 2*d
}
