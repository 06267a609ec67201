package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openfleet/lastmile/internal/application/adaptive"
)

// OptimizerMetricsCollector tracks the adaptive re-optimization loop.
// It implements adaptive.Recorder so the optimizer stays prometheus-free.
type OptimizerMetricsCollector struct {
	reoptimizationsStarted *prometheus.CounterVec
	reoptimizationsTotal   *prometheus.CounterVec
	reoptimizationDuration *prometheus.HistogramVec
	cooldownSkips          prometheus.Counter
}

var _ adaptive.Recorder = (*OptimizerMetricsCollector)(nil)

// NewOptimizerMetricsCollector creates a new optimizer metrics collector
func NewOptimizerMetricsCollector() *OptimizerMetricsCollector {
	return &OptimizerMetricsCollector{
		reoptimizationsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reoptimizations_started_total",
				Help:      "Total re-optimization runs started, by strategy",
			},
			[]string{"strategy"},
		),

		reoptimizationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reoptimizations_total",
				Help:      "Total re-optimization runs finished, by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),

		reoptimizationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reoptimization_duration_seconds",
				Help:      "Re-optimization run duration distribution",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"strategy"},
		),

		cooldownSkips: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reoptimization_cooldown_skips_total",
				Help:      "Re-optimization requests suppressed by the per-route cooldown",
			},
		),
	}
}

// Register registers all optimizer metrics with the Prometheus registry
func (c *OptimizerMetricsCollector) Register() error {
	return registerAll(
		c.reoptimizationsStarted,
		c.reoptimizationsTotal,
		c.reoptimizationDuration,
		c.cooldownSkips,
	)
}

// ReoptimizationStarted records the start of a re-optimization run
func (c *OptimizerMetricsCollector) ReoptimizationStarted(strategy adaptive.Strategy) {
	c.reoptimizationsStarted.WithLabelValues(string(strategy)).Inc()
}

// ReoptimizationCompleted records a finished run with its outcome
func (c *OptimizerMetricsCollector) ReoptimizationCompleted(strategy adaptive.Strategy, outcome string, elapsed time.Duration) {
	c.reoptimizationsTotal.WithLabelValues(string(strategy), outcome).Inc()
	c.reoptimizationDuration.WithLabelValues(string(strategy)).Observe(elapsed.Seconds())
}

// CooldownSkipped records a trigger suppressed by the cooldown
func (c *OptimizerMetricsCollector) CooldownSkipped() {
	c.cooldownSkips.Inc()
}
