package market

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = SymbolKey{Exchange: ExchangeNSE, Symbol: "RELIANCE"}

func TestParseSymbolKey(t *testing.T) {
	key, err := ParseSymbolKey("nse:reliance")
	require.NoError(t, err)
	assert.Equal(t, testKey, key, "exchange and symbol normalize to upper case")
	assert.Equal(t, "NSE:RELIANCE", key.String())

	_, err = ParseSymbolKey("RELIANCE")
	assert.Error(t, err)

	_, err = ParseSymbolKey("NYSE:AAPL")
	assert.Error(t, err, "unknown venues are rejected")

	_, err = ParseSymbolKey("NSE:")
	assert.Error(t, err)
}

func TestTimeframeDuration(t *testing.T) {
	assert.Equal(t, 5*time.Minute, Timeframe5m.Duration())
	assert.Equal(t, time.Hour, Timeframe1h.Duration())
	assert.Equal(t, time.Minute, Timeframe("bogus").Duration(), "unknown timeframes fall back to one minute")
}

func TestSimulatorDeterministicReplay(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	a := NewSimulator(42, zerolog.Nop())
	b := NewSimulator(42, zerolog.Nop())

	for i := 0; i < 20; i++ {
		ts := now.Add(time.Duration(i) * time.Minute)
		qa := a.Quote(testKey, ts)
		qb := b.Quote(testKey, ts)
		assert.Equal(t, qa.LTP, qb.LTP, "same seed must replay the same walk at step %d", i)
		assert.True(t, qa.Simulated)
	}
}

func TestSimulatorSeedsDiverge(t *testing.T) {
	now := time.Now()
	a := NewSimulator(1, zerolog.Nop())
	b := NewSimulator(2, zerolog.Nop())

	diverged := false
	for i := 0; i < 10; i++ {
		if a.Quote(testKey, now).LTP != b.Quote(testKey, now).LTP {
			diverged = true
			break
		}
	}
	assert.True(t, diverged, "different seeds must produce different walks")
}

func TestSimulatorSymbolsWalkIndependently(t *testing.T) {
	s := NewSimulator(42, zerolog.Nop())
	now := time.Now()
	other := SymbolKey{Exchange: ExchangeNSE, Symbol: "TCS"}

	qa := s.Quote(testKey, now)
	qb := s.Quote(other, now)
	assert.NotEqual(t, qa.LTP, qb.LTP, "per-symbol hash offsets the starting price")
}

func TestSimulatorBackfillShape(t *testing.T) {
	s := NewSimulator(42, zerolog.Nop())
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	candles := s.Backfill(testKey, Timeframe5m, 50, now)
	require.Len(t, candles, 50)

	for i, c := range candles {
		assert.GreaterOrEqual(t, c.High, c.Open, "bar %d", i)
		assert.GreaterOrEqual(t, c.High, c.Close, "bar %d", i)
		assert.LessOrEqual(t, c.Low, c.Open, "bar %d", i)
		assert.LessOrEqual(t, c.Low, c.Close, "bar %d", i)
		assert.Positive(t, c.Volume, "bar %d", i)
		if i > 0 {
			assert.True(t, c.Timestamp.After(candles[i-1].Timestamp), "timestamps strictly increase")
		}
	}
}

func TestSeriesAppendReplacesCurrentBar(t *testing.T) {
	s := NewSeries()
	ts := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	s.Append(Candle{Timestamp: ts, Close: 100})
	s.Append(Candle{Timestamp: ts, Close: 101})

	assert.Equal(t, 1, s.Len(), "same-timestamp append updates in place")
	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, 101.0, last.Close)

	s.Append(Candle{Timestamp: ts.Add(5 * time.Minute), Close: 102})
	assert.Equal(t, 2, s.Len())
}

func TestSeriesBoundedToMaxLen(t *testing.T) {
	s := NewSeries()
	start := time.Date(2026, 8, 24, 9, 15, 0, 0, time.UTC)

	for i := 0; i < MaxSeriesLen+30; i++ {
		s.Append(Candle{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Close:     float64(i),
		})
	}

	assert.Equal(t, MaxSeriesLen, s.Len())
	candles := s.Candles()
	assert.Equal(t, float64(30), candles[0].Close, "oldest bars are dropped")
	assert.Equal(t, float64(MaxSeriesLen+29), candles[len(candles)-1].Close)
}

func TestSeriesColumnExtraction(t *testing.T) {
	candles := []Candle{
		{High: 11, Low: 9, Close: 10, Volume: 100},
		{High: 12, Low: 10, Close: 11, Volume: 200},
	}

	assert.Equal(t, []float64{10, 11}, Closes(candles))
	assert.Equal(t, []float64{11, 12}, Highs(candles))
	assert.Equal(t, []float64{9, 10}, Lows(candles))
	assert.Equal(t, []float64{100, 200}, Volumes(candles))
}

func TestSeriesLastOnEmpty(t *testing.T) {
	s := NewSeries()
	_, ok := s.Last()
	assert.False(t, ok)
	assert.True(t, s.LastTimestamp().IsZero())
}
