package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type engineMetrics struct {
	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	stageErrors   *prometheus.CounterVec
	signals       prometheus.Counter
	decisions     prometheus.Counter
	vetoes        prometheus.Counter
	executions    *prometheus.CounterVec
}

var (
	globalEngineMetrics *engineMetrics
	engineMetricsOnce   sync.Once
)

func initEngineMetrics() {
	engineMetricsOnce.Do(func() {
		globalEngineMetrics = &engineMetrics{
			cycles: promauto.NewCounter(prometheus.CounterOpts{
				Name: "engine_cycles_total",
				Help: "Completed decision cycles",
			}),
			cycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "engine_cycle_duration_seconds",
				Help:    "Wall time of one decision cycle",
				Buckets: prometheus.DefBuckets,
			}),
			stageErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "engine_stage_errors_total",
					Help: "Recovered stage failures",
				},
				[]string{"stage"},
			),
			signals: promauto.NewCounter(prometheus.CounterOpts{
				Name: "engine_signals_total",
				Help: "Signals produced by the decision core",
			}),
			decisions: promauto.NewCounter(prometheus.CounterOpts{
				Name: "engine_decisions_total",
				Help: "Signals approved by the risk guardian",
			}),
			vetoes: promauto.NewCounter(prometheus.CounterOpts{
				Name: "engine_vetoes_total",
				Help: "Signals vetoed by the risk guardian",
			}),
			executions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "engine_executions_total",
					Help: "Order executions by outcome",
				},
				[]string{"outcome"},
			),
		}
	})
}
