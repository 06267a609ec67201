package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/openfleet/lastmile/internal/domain/routing"
)

// SolverMetricsCollector tracks static VRPTW solve runs.
type SolverMetricsCollector struct {
	solvesTotal      *prometheus.CounterVec
	solveDuration    *prometheus.HistogramVec
	objectiveValue   prometheus.Gauge
	ordersAssigned   prometheus.Gauge
	ordersUnassigned prometheus.Gauge
	solveTimeouts    prometheus.Counter
	degradedMatrices prometheus.Counter
}

// NewSolverMetricsCollector creates a new solver metrics collector
func NewSolverMetricsCollector() *SolverMetricsCollector {
	return &SolverMetricsCollector{
		solvesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "solves_total",
				Help:      "Total solve runs by status",
			},
			[]string{"status"},
		),

		solveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "solve_duration_seconds",
				Help:      "Solve run duration distribution",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"status"},
		),

		objectiveValue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "solve_objective_value",
				Help:      "Objective value of the most recent committed solution",
			},
		),

		ordersAssigned: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "solve_orders_assigned",
				Help:      "Orders assigned in the most recent solution",
			},
		),

		ordersUnassigned: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "solve_orders_unassigned",
				Help:      "Orders left unassigned in the most recent solution",
			},
		),

		solveTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "solve_timeouts_total",
				Help:      "Solve runs that hit their time limit before converging",
			},
		),

		degradedMatrices: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "solve_degraded_matrices_total",
				Help:      "Solve runs fed by Haversine fallback matrices",
			},
		),
	}
}

// Register registers all solver metrics with the Prometheus registry
func (c *SolverMetricsCollector) Register() error {
	return registerAll(
		c.solvesTotal,
		c.solveDuration,
		c.objectiveValue,
		c.ordersAssigned,
		c.ordersUnassigned,
		c.solveTimeouts,
		c.degradedMatrices,
	)
}

// RecordSolve records a finished solve run
func (c *SolverMetricsCollector) RecordSolve(solution *routing.Solution, durationSeconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.solvesTotal.WithLabelValues(status).Inc()
	c.solveDuration.WithLabelValues(status).Observe(durationSeconds)

	if solution == nil {
		return
	}
	c.objectiveValue.Set(solution.ObjectiveValue)
	c.ordersAssigned.Set(float64(solution.Stats.OrdersAssigned))
	c.ordersUnassigned.Set(float64(solution.Stats.OrdersUnassigned))
	if solution.Stats.TimedOut {
		c.solveTimeouts.Inc()
	}
	if solution.Stats.MatrixDegraded {
		c.degradedMatrices.Inc()
	}
}
