package broker

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/arjunkhanna/tradedesk/internal/config"
	"github.com/arjunkhanna/tradedesk/internal/market"
)

// Circuit breaker thresholds for broker market-data fetches
const (
	fetchMinRequests     = 5
	fetchFailureRatio    = 0.6
	fetchOpenTimeout     = 30 * time.Second
	fetchHalfOpenMaxReqs = 3
	fetchCountInterval   = 10 * time.Second
)

// FetchMetrics holds Prometheus metrics for guarded broker fetches
type FetchMetrics struct {
	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
}

var (
	globalFetchMetrics *FetchMetrics
	fetchMetricsOnce   sync.Once
)

func initFetchMetrics() {
	fetchMetricsOnce.Do(func() {
		globalFetchMetrics = &FetchMetrics{
			state: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "broker_breaker_state",
					Help: "Broker circuit breaker state (0=closed, 1=open, 2=half_open)",
				},
				[]string{"breaker"},
			),
			requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "broker_fetch_requests_total",
					Help: "Broker fetch attempts through the guard",
				},
				[]string{"kind", "result"},
			),
		}
	})
}

// FetchGuard wraps a broker's market-data calls with a shared rate limiter,
// a circuit breaker, and per-call timeouts. Order placement is never guarded;
// only data fetches may be demoted to the simulator.
type FetchGuard struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter

	quoteTimeout      time.Duration
	historicalTimeout time.Duration

	metrics *FetchMetrics
	log     zerolog.Logger
}

// NewFetchGuard creates a guard around the broker's data fetches
func NewFetchGuard(b Broker, cfg config.BrokerConfig, log zerolog.Logger) *FetchGuard {
	initFetchMetrics()

	g := &FetchGuard{
		broker:            b,
		limiter:           rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), 1),
		quoteTimeout:      cfg.QuoteTimeout,
		historicalTimeout: cfg.HistoricalTimeout,
		metrics:           globalFetchMetrics,
		log:               log.With().Str("component", "fetch_guard").Logger(),
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "broker_fetch",
		MaxRequests: fetchHalfOpenMaxReqs,
		Interval:    fetchCountInterval,
		Timeout:     fetchOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= fetchMinRequests && ratio >= fetchFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.updateState(to)
			g.log.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Broker fetch breaker state changed")
		},
	})
	g.updateState(g.breaker.State())

	return g
}

// IsConnected reports the wrapped broker's session state
func (g *FetchGuard) IsConnected() bool {
	return g.broker.IsConnected()
}

// Quote fetches one quote under the guard
func (g *FetchGuard) Quote(ctx context.Context, key market.SymbolKey) (*market.Quote, error) {
	v, err := g.execute(ctx, "quote", g.quoteTimeout, func(ctx context.Context) (interface{}, error) {
		return g.broker.Quote(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*market.Quote), nil
}

// Quotes fetches a quote batch under the guard
func (g *FetchGuard) Quotes(ctx context.Context, keys []market.SymbolKey) (map[market.SymbolKey]*market.Quote, error) {
	v, err := g.execute(ctx, "quotes", g.quoteTimeout, func(ctx context.Context) (interface{}, error) {
		return g.broker.Quotes(ctx, keys)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[market.SymbolKey]*market.Quote), nil
}

// Historical fetches candles under the guard
func (g *FetchGuard) Historical(ctx context.Context, key market.SymbolKey, tf market.Timeframe, from, to time.Time) ([]market.Candle, error) {
	v, err := g.execute(ctx, "historical", g.historicalTimeout, func(ctx context.Context) (interface{}, error) {
		return g.broker.Historical(ctx, key, tf, from, to)
	})
	if err != nil {
		return nil, err
	}
	return v.([]market.Candle), nil
}

func (g *FetchGuard) execute(ctx context.Context, kind string, timeout time.Duration, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	if !g.broker.IsConnected() {
		g.metrics.requests.WithLabelValues(kind, "not_connected").Inc()
		return nil, ErrNotConnected
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	v, err := g.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(callCtx)
	})

	result := "success"
	if err != nil {
		result = "failure"
	}
	g.metrics.requests.WithLabelValues(kind, result).Inc()

	return v, err
}

func (g *FetchGuard) updateState(state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateClosed:
		v = 0
	case gobreaker.StateOpen:
		v = 1
	case gobreaker.StateHalfOpen:
		v = 2
	}
	g.metrics.state.WithLabelValues("broker_fetch").Set(v)
}
