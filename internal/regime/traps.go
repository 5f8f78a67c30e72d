package regime

import (
	"github.com/arjunkhanna/tradedesk/internal/indicators"
)

// TrapFlags marks indicator patterns that suggest a reversal against the
// apparent trend. Unset flags mean "not detected".
type TrapFlags struct {
	BullTrapRisk     bool `json:"bull_trap_risk"`
	WeakRebound      bool `json:"weak_rebound"`
	VolumeDivergence bool `json:"volume_divergence"`
	Accumulation     bool `json:"accumulation"`
	PanicBottom      bool `json:"panic_bottom"`
	FOMOTop          bool `json:"fomo_top"`
}

// Any reports whether at least one trap is flagged
func (t TrapFlags) Any() bool {
	return t.BullTrapRisk || t.WeakRebound || t.VolumeDivergence ||
		t.Accumulation || t.PanicBottom || t.FOMOTop
}

// Trap detection thresholds on the 1h bundle
const (
	panicRSI       = 25.0
	panicVolume    = 2.0
	fomoRSI        = 75.0
	thinVolume     = 0.7
	reboundVolLow  = 0.8
	reboundRSILow  = 30.0
	reboundRSIHigh = 40.0
	bandProximity  = 0.005
)

// DetectTraps evaluates trap patterns from the 1h indicator bundle and the
// current last traded price. An invalid bundle yields no flags.
func DetectTraps(b indicators.Bundle, ltp float64) TrapFlags {
	var t TrapFlags
	if !b.Valid || ltp <= 0 {
		return t
	}

	nearUpper := indicators.IsFinite(b.BBUpper) && ltp >= b.BBUpper*(1-bandProximity)
	belowLower := indicators.IsFinite(b.BBLower) && ltp < b.BBLower
	rsiOK := indicators.IsFinite(b.RSI)
	volOK := indicators.IsFinite(b.VolumeRatio)

	if belowLower && rsiOK && b.RSI < panicRSI && volOK && b.VolumeRatio > panicVolume {
		t.PanicBottom = true
	}
	if indicators.IsFinite(b.BBUpper) && ltp > b.BBUpper && rsiOK && b.RSI > fomoRSI && volOK && b.VolumeRatio > panicVolume {
		t.FOMOTop = true
	}
	if nearUpper && volOK && b.VolumeRatio < thinVolume {
		t.VolumeDivergence = true
	}
	if rsiOK && b.RSI > reboundRSILow && b.RSI < reboundRSIHigh && volOK && b.VolumeRatio < reboundVolLow {
		t.WeakRebound = true
	}

	// A thin-volume push through the upper band after a bearish EMA cross is
	// the classic bull trap shape
	if nearUpper && b.Trend == indicators.TrendBearish && volOK && b.VolumeRatio < 1.0 {
		t.BullTrapRisk = true
	}

	// Quiet buying near the lower band with improving RSI
	if indicators.IsFinite(b.BBLower) && ltp <= b.BBLower*(1+bandProximity) &&
		rsiOK && b.RSI >= reboundRSIHigh && b.RSI < 55 &&
		volOK && b.VolumeRatio > 1.2 {
		t.Accumulation = true
	}

	return t
}
