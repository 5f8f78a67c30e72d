// Package reflection reviews recent closed trades and summarizes what worked
package reflection

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arjunkhanna/tradedesk/internal/regime"
	"github.com/arjunkhanna/tradedesk/internal/strategy"
)

// Trade is one closed round trip fed to the analyzer
type Trade struct {
	ID         string          `json:"id"`
	Key        string          `json:"key"`
	Action     strategy.Action `json:"action"`
	Regime     regime.Regime   `json:"regime"`
	Confidence float64         `json:"confidence"`
	EntryPrice float64         `json:"entry_price"`
	ExitPrice  float64         `json:"exit_price"`
	Quantity   int64           `json:"quantity"`
	PnL        float64         `json:"pnl"`
	OpenCycle  uint64          `json:"open_cycle"`
	CloseCycle uint64          `json:"close_cycle"`
	ClosedAt   time.Time       `json:"closed_at"`
}

// RegimeStats aggregates outcomes for one regime
type RegimeStats struct {
	Trades int     `json:"trades"`
	Wins   int     `json:"wins"`
	PnL    float64 `json:"pnl"`
}

// Report is the output of one reflection pass
type Report struct {
	ID          string                  `json:"id"`
	Trades      int                     `json:"trades"`
	Wins        int                     `json:"wins"`
	Losses      int                     `json:"losses"`
	WinRate     float64                 `json:"win_rate"`
	TotalPnL    float64                 `json:"total_pnl"`
	AvgWin      float64                 `json:"avg_win"`
	AvgLoss     float64                 `json:"avg_loss"`
	ByRegime    map[string]RegimeStats  `json:"by_regime"`
	Conclusions []string                `json:"conclusions"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// MinTrades is the smallest sample a reflection pass will analyze
const MinTrades = 3

// Analyzer derives reflection reports from trade windows
type Analyzer struct {
	log zerolog.Logger
}

// NewAnalyzer creates a reflection analyzer
func NewAnalyzer(log zerolog.Logger) *Analyzer {
	return &Analyzer{log: log.With().Str("component", "reflection").Logger()}
}

// Analyze summarizes a window of closed trades. Fewer than MinTrades trades
// yields a nil report.
func (a *Analyzer) Analyze(trades []Trade) *Report {
	if len(trades) < MinTrades {
		return nil
	}

	r := &Report{
		ID:          uuid.NewString(),
		Trades:      len(trades),
		ByRegime:    make(map[string]RegimeStats),
		GeneratedAt: time.Now(),
	}

	var winSum, lossSum float64
	for _, t := range trades {
		r.TotalPnL += t.PnL
		if t.PnL > 0 {
			r.Wins++
			winSum += t.PnL
		} else {
			r.Losses++
			lossSum += t.PnL
		}

		key := string(t.Regime)
		if key == "" {
			key = string(regime.Unknown)
		}
		s := r.ByRegime[key]
		s.Trades++
		s.PnL += t.PnL
		if t.PnL > 0 {
			s.Wins++
		}
		r.ByRegime[key] = s
	}

	r.WinRate = round2(float64(r.Wins) / float64(r.Trades) * 100)
	if r.Wins > 0 {
		r.AvgWin = round2(winSum / float64(r.Wins))
	}
	if r.Losses > 0 {
		r.AvgLoss = round2(lossSum / float64(r.Losses))
	}
	r.TotalPnL = round2(r.TotalPnL)
	r.Conclusions = conclusions(r)

	a.log.Info().
		Int("trades", r.Trades).
		Float64("win_rate", r.WinRate).
		Float64("total_pnl", r.TotalPnL).
		Msg("Reflection report generated")

	return r
}

// conclusions renders the human-readable findings from the aggregates
func conclusions(r *Report) []string {
	var out []string

	switch {
	case r.WinRate >= 60:
		out = append(out, fmt.Sprintf("Win rate %.0f%% is healthy, keep current thresholds", r.WinRate))
	case r.WinRate < 40:
		out = append(out, fmt.Sprintf("Win rate %.0f%% is poor, confidence thresholds may be too loose", r.WinRate))
	default:
		out = append(out, fmt.Sprintf("Win rate %.0f%% is middling, monitor another window", r.WinRate))
	}

	if r.AvgLoss != 0 && r.AvgWin > 0 && r.AvgWin < math.Abs(r.AvgLoss) {
		out = append(out, fmt.Sprintf("Average win %.2f below average loss %.2f, targets may be too tight", r.AvgWin, math.Abs(r.AvgLoss)))
	}

	type regimeLine struct {
		name string
		s    RegimeStats
	}
	lines := make([]regimeLine, 0, len(r.ByRegime))
	for name, s := range r.ByRegime {
		lines = append(lines, regimeLine{name, s})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].s.PnL < lines[j].s.PnL })

	if len(lines) > 0 {
		worst := lines[0]
		if worst.s.PnL < 0 && worst.s.Trades >= 2 {
			out = append(out, fmt.Sprintf("Regime %s lost %.2f over %d trades, consider tightening its gates", worst.name, worst.s.PnL, worst.s.Trades))
		}
		best := lines[len(lines)-1]
		if best.s.PnL > 0 && best.s.Trades >= 2 {
			out = append(out, fmt.Sprintf("Regime %s earned %.2f over %d trades", best.name, best.s.PnL, best.s.Trades))
		}
	}

	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
