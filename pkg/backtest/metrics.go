package backtest

import "math"

// Metrics summarizes a backtest run
type Metrics struct {
	TotalPnL       float64 `json:"total_pnl"`
	ReturnPct      float64 `json:"return_pct"`
	WinRate        float64 `json:"win_rate"`
	ProfitFactor   float64 `json:"profit_factor"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	AvgWin         float64 `json:"avg_win"`
	AvgLoss        float64 `json:"avg_loss"`
}

// ComputeMetrics derives run statistics from the equity curve and the closed
// trades. The Sharpe ratio is per-cycle, not annualized, since the virtual
// interval is a run parameter.
func ComputeMetrics(capital float64, equity []float64, trades []ClosedTrade) Metrics {
	m := Metrics{}

	if n := len(equity); n > 0 && capital > 0 {
		m.TotalPnL = round2(equity[n-1] - capital)
		m.ReturnPct = round2((equity[n-1] - capital) / capital * 100)
		m.MaxDrawdownPct = round2(maxDrawdown(equity))
		m.SharpeRatio = round2(sharpe(equity))
	}

	var wins, losses int
	var winSum, lossSum float64
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
			winSum += t.PnL
		} else if t.PnL < 0 {
			losses++
			lossSum += -t.PnL
		}
	}

	if wins+losses > 0 {
		m.WinRate = round2(float64(wins) / float64(wins+losses) * 100)
	}
	if wins > 0 {
		m.AvgWin = round2(winSum / float64(wins))
	}
	if losses > 0 {
		m.AvgLoss = round2(-lossSum / float64(losses))
	}
	switch {
	case lossSum > 0:
		m.ProfitFactor = round2(winSum / lossSum)
	case winSum > 0:
		m.ProfitFactor = math.Inf(1)
	}

	return m
}

// maxDrawdown returns the largest peak-to-trough decline in percent
func maxDrawdown(equity []float64) float64 {
	peak := equity[0]
	var worst float64
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (peak - v) / peak * 100
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// sharpe computes mean over standard deviation of per-cycle returns
func sharpe(equity []float64) float64 {
	if len(equity) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] > 0 {
			returns = append(returns, (equity[i]-equity[i-1])/equity[i-1])
		}
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	sd := math.Sqrt(variance)
	if sd == 0 {
		return 0
	}
	return mean / sd
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
