package market

import (
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Simulator synthesizes quotes and candles from a persistent per-symbol
// random walk. A fixed seed reproduces the same walk, which keeps engine
// runs deterministic in tests and paper mode.
type Simulator struct {
	mu     sync.Mutex
	seed   int64
	states map[SymbolKey]*walkState
	log    zerolog.Logger
}

type walkState struct {
	rng       *rand.Rand
	price     float64
	dayOpen   float64
	dayHigh   float64
	dayLow    float64
	dayVolume int64
}

// Base prices used when a symbol has no prior state. Values are arbitrary but
// stable so replays start from the same point.
const (
	simBasePrice  = 1000.0
	simDriftPct   = 0.0002
	simStepPct    = 0.004
	simSpreadPct  = 0.0005
	simBaseVolume = 50_000
)

// NewSimulator creates a simulator with a fixed seed
func NewSimulator(seed int64, log zerolog.Logger) *Simulator {
	return &Simulator{
		seed:   seed,
		states: make(map[SymbolKey]*walkState),
		log:    log.With().Str("component", "simulator").Logger(),
	}
}

func (s *Simulator) state(key SymbolKey) *walkState {
	st, ok := s.states[key]
	if !ok {
		h := fnv.New64a()
		h.Write([]byte(key.String()))
		rng := rand.New(rand.NewSource(s.seed ^ int64(h.Sum64())))

		// Spread starting prices across symbols so walks do not overlap
		price := simBasePrice * (0.5 + rng.Float64()*2.0)
		st = &walkState{
			rng:     rng,
			price:   price,
			dayOpen: price,
			dayHigh: price,
			dayLow:  price,
		}
		s.states[key] = st
	}
	return st
}

// Quote advances the walk one step and returns a synthetic quote
func (s *Simulator) Quote(key SymbolKey, now time.Time) Quote {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(key)
	step := st.rng.NormFloat64() * simStepPct
	st.price *= 1 + simDriftPct + step
	if st.price < 1 {
		st.price = 1
	}
	st.dayHigh = math.Max(st.dayHigh, st.price)
	st.dayLow = math.Min(st.dayLow, st.price)

	volume := int64(float64(simBaseVolume) * (0.5 + st.rng.Float64()))
	st.dayVolume += volume

	spread := st.price * simSpreadPct
	return Quote{
		Key:       key,
		LTP:       round2(st.price),
		Open:      round2(st.dayOpen),
		High:      round2(st.dayHigh),
		Low:       round2(st.dayLow),
		Close:     round2(st.price),
		Volume:    st.dayVolume,
		Bid:       round2(st.price - spread),
		Ask:       round2(st.price + spread),
		Timestamp: now,
		Simulated: true,
	}
}

// Candle synthesizes one bar around the current walk price
func (s *Simulator) Candle(key SymbolKey, tf Timeframe, now time.Time) Candle {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(key)
	open := st.price
	step := st.rng.NormFloat64() * simStepPct
	st.price *= 1 + simDriftPct + step
	if st.price < 1 {
		st.price = 1
	}
	closePx := st.price
	wick := math.Abs(st.rng.NormFloat64()) * simStepPct * open

	return Candle{
		Timestamp: now.Truncate(tf.Duration()),
		Open:      round2(open),
		High:      round2(math.Max(open, closePx) + wick),
		Low:       round2(math.Min(open, closePx) - wick),
		Close:     round2(closePx),
		Volume:    int64(float64(simBaseVolume) * (0.5 + st.rng.Float64())),
	}
}

// Backfill generates a full synthetic history ending at now
func (s *Simulator) Backfill(key SymbolKey, tf Timeframe, bars int, now time.Time) []Candle {
	candles := make([]Candle, 0, bars)
	start := now.Add(-time.Duration(bars) * tf.Duration())
	for i := 0; i < bars; i++ {
		ts := start.Add(time.Duration(i+1) * tf.Duration())
		candles = append(candles, s.Candle(key, tf, ts))
	}
	return candles
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
