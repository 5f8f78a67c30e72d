package market

import (
	"sync"
	"time"
)

// MaxSeriesLen bounds every historical series to its most recent bars
const MaxSeriesLen = 200

// Series is a bounded, append-only OHLCV window for one (symbol, timeframe).
// Timestamps are strictly increasing; an append with a timestamp at or before
// the last bar replaces the last bar instead of growing the window.
type Series struct {
	mu      sync.RWMutex
	candles []Candle
	maxLen  int
}

// NewSeries creates an empty series bounded to MaxSeriesLen bars
func NewSeries() *Series {
	return &Series{maxLen: MaxSeriesLen}
}

// NewSeriesFrom seeds a series from existing candles, keeping the tail
func NewSeriesFrom(candles []Candle) *Series {
	s := NewSeries()
	for _, c := range candles {
		s.Append(c)
	}
	return s
}

// Append adds a candle and truncates to the bounded tail
func (s *Series) Append(c Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.candles)
	if n > 0 && !c.Timestamp.After(s.candles[n-1].Timestamp) {
		// In-place update of the current bar
		s.candles[n-1] = c
		return
	}

	s.candles = append(s.candles, c)
	if len(s.candles) > s.maxLen {
		// Shift rather than re-slice so the backing array does not pin old bars
		copy(s.candles, s.candles[len(s.candles)-s.maxLen:])
		s.candles = s.candles[:s.maxLen]
	}
}

// Len returns the number of bars currently held
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.candles)
}

// Candles returns a copy of the window, oldest first
func (s *Series) Candles() []Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Last returns the most recent bar, or false when the series is empty
func (s *Series) Last() (Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.candles) == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// LastTimestamp returns the timestamp of the most recent bar, or zero time
func (s *Series) LastTimestamp() time.Time {
	c, ok := s.Last()
	if !ok {
		return time.Time{}
	}
	return c.Timestamp
}

// Closes extracts the close column, oldest first
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Highs extracts the high column, oldest first
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows extracts the low column, oldest first
func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// Volumes extracts the volume column as floats, oldest first
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = float64(c.Volume)
	}
	return out
}
