// Package snapshot assembles the per-cycle market view for all watched symbols
package snapshot

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/arjunkhanna/tradedesk/internal/broker"
	"github.com/arjunkhanna/tradedesk/internal/indicators"
	"github.com/arjunkhanna/tradedesk/internal/market"
	"github.com/arjunkhanna/tradedesk/internal/messages"
	"github.com/arjunkhanna/tradedesk/internal/predict"
	"github.com/arjunkhanna/tradedesk/internal/regime"
)

// fetchConcurrency bounds parallel per-symbol work inside the stage
const fetchConcurrency = 4

// backfillBars is the window requested when a series is still cold
const backfillBars = market.MaxSeriesLen

// Service fetches quotes and candles, maintains the bounded series cache,
// and computes indicator, regime, trap, and prediction state per symbol.
// It is the single writer of the series cache.
type Service struct {
	mu sync.Mutex

	guard      *broker.FetchGuard
	sim        *market.Simulator
	paper      *broker.PaperBroker // nil in live mode
	classifier *regime.Classifier

	series map[market.SymbolKey]map[market.Timeframe]*market.Series

	log zerolog.Logger
}

// NewService creates the snapshot service. paper may be nil when not paper
// trading; when set, collected quotes drive its fill model each cycle.
func NewService(guard *broker.FetchGuard, sim *market.Simulator, paper *broker.PaperBroker, log zerolog.Logger) *Service {
	return &Service{
		guard:      guard,
		sim:        sim,
		paper:      paper,
		classifier: regime.NewClassifier(log),
		series:     make(map[market.SymbolKey]map[market.Timeframe]*market.Series),
		log:        log.With().Str("component", "snapshot").Logger(),
	}
}

// Collect builds the market update for one cycle. Symbols are fetched in
// parallel and merged in sorted key order; a fetch failure demotes just that
// symbol to simulated data for this cycle.
func (s *Service) Collect(ctx context.Context, keys []market.SymbolKey, now time.Time) messages.MarketUpdate {
	sorted := make([]market.SymbolKey, len(keys))
	copy(sorted, keys)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	snaps := make([]messages.SymbolSnapshot, len(sorted))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, key := range sorted {
		g.Go(func() error {
			snaps[i] = s.collectSymbol(gctx, key, now)
			return nil
		})
	}
	// Workers never return errors; failures demote to simulated data
	_ = g.Wait()

	update := messages.MarketUpdate{
		Symbols: make([]string, 0, len(sorted)),
		Data:    make(map[string]messages.SymbolSnapshot, len(sorted)),
	}
	quotes := make(map[market.SymbolKey]*market.Quote, len(sorted))

	for i, key := range sorted {
		ks := key.String()
		update.Symbols = append(update.Symbols, ks)
		update.Data[ks] = snaps[i]
		q := snaps[i].Quote
		quotes[key] = &q
	}

	if s.paper != nil {
		s.paper.UpdatePrices(quotes)
	}

	return update
}

func (s *Service) collectSymbol(ctx context.Context, key market.SymbolKey, now time.Time) messages.SymbolSnapshot {
	quote := s.fetchQuote(ctx, key, now)

	bundles := make(map[market.Timeframe]indicators.Bundle, len(market.CycleTimeframes))
	var oneHourCandles []market.Candle
	for _, tf := range market.CycleTimeframes {
		candles := s.refreshSeries(ctx, key, tf, now)
		bundles[tf] = indicators.Compute(candles)
		if tf == market.Timeframe1h {
			oneHourCandles = candles
		}
	}

	b1h := bundles[market.Timeframe1h]
	snap := s.classifier.Classify(oneHourCandles, b1h, quote.LTP)

	return messages.SymbolSnapshot{
		Quote:      quote,
		Bundles:    bundles,
		Regime:     snap,
		Traps:      regime.DetectTraps(b1h, quote.LTP),
		Prediction: predict.Predict(b1h, quote.LTP),
	}
}

// fetchQuote tries the broker first and demotes to the simulator on failure
func (s *Service) fetchQuote(ctx context.Context, key market.SymbolKey, now time.Time) market.Quote {
	q, err := s.guard.Quote(ctx, key)
	if err == nil && q != nil && q.LTP > 0 {
		return *q
	}
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", key.String()).Msg("Quote fetch failed, using simulated price")
	}
	return s.sim.Quote(key, now)
}

// refreshSeries appends fresh bars to the cached series and returns a copy
// of the window. Cold series are backfilled; fetch failures fall through to
// one simulated bar so the window keeps moving.
func (s *Service) refreshSeries(ctx context.Context, key market.SymbolKey, tf market.Timeframe, now time.Time) []market.Candle {
	ser := s.seriesFor(key, tf)

	if ser.Len() == 0 {
		from := now.Add(-time.Duration(backfillBars) * tf.Duration())
		candles, err := s.guard.Historical(ctx, key, tf, from, now)
		if err != nil {
			s.log.Warn().Err(err).
				Str("symbol", key.String()).
				Str("timeframe", string(tf)).
				Msg("Backfill failed, seeding simulated bars")
			candles = s.sim.Backfill(key, tf, backfillBars, now)
		}
		for _, c := range candles {
			ser.Append(c)
		}
		return ser.Candles()
	}

	from := now.Add(-3 * tf.Duration())
	candles, err := s.guard.Historical(ctx, key, tf, from, now)
	if err != nil {
		s.log.Warn().Err(err).
			Str("symbol", key.String()).
			Str("timeframe", string(tf)).
			Msg("Bar refresh failed, appending simulated bar")
		candles = []market.Candle{s.sim.Candle(key, tf, now)}
	}
	for _, c := range candles {
		ser.Append(c)
	}
	return ser.Candles()
}

func (s *Service) seriesFor(key market.SymbolKey, tf market.Timeframe) *market.Series {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTF, ok := s.series[key]
	if !ok {
		byTF = make(map[market.Timeframe]*market.Series)
		s.series[key] = byTF
	}
	ser, ok := byTF[tf]
	if !ok {
		ser = market.NewSeries()
		byTF[tf] = ser
	}
	return ser
}
