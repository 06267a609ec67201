package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// GeodataMetricsCollector tracks the mapping-provider boundary: matrix cache
// effectiveness, fallback activations and event-bus pressure.
type GeodataMetricsCollector struct {
	matrixCacheHits   prometheus.Counter
	matrixCacheMisses prometheus.Counter
	providerFallbacks prometheus.Counter
	busDropped        prometheus.GaugeFunc
}

// NewGeodataMetricsCollector creates a new geodata metrics collector.
// droppedEvents supplies the bus shed-event total; nil disables that gauge.
func NewGeodataMetricsCollector(droppedEvents func() int64) *GeodataMetricsCollector {
	c := &GeodataMetricsCollector{
		matrixCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "matrix_cache_hits_total",
				Help:      "Matrix requests served from the cache",
			},
		),

		matrixCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "matrix_cache_misses_total",
				Help:      "Matrix requests that went to the provider",
			},
		),

		providerFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "geodata_fallbacks_total",
				Help:      "Provider calls degraded to the Haversine fallback",
			},
		),
	}

	if droppedEvents != nil {
		c.busDropped = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "event_bus_dropped_total",
				Help:      "Events shed from full subscriber queues",
			},
			func() float64 { return float64(droppedEvents()) },
		)
	}

	return c
}

// Register registers all geodata metrics with the Prometheus registry
func (c *GeodataMetricsCollector) Register() error {
	collectors := []prometheus.Collector{
		c.matrixCacheHits,
		c.matrixCacheMisses,
		c.providerFallbacks,
	}
	if c.busDropped != nil {
		collectors = append(collectors, c.busDropped)
	}
	return registerAll(collectors...)
}

// CacheHit records a matrix cache hit
func (c *GeodataMetricsCollector) CacheHit() {
	c.matrixCacheHits.Inc()
}

// CacheMiss records a matrix cache miss
func (c *GeodataMetricsCollector) CacheMiss() {
	c.matrixCacheMisses.Inc()
}

// Fallback records a provider call served by the Haversine fallback
func (c *GeodataMetricsCollector) Fallback() {
	c.providerFallbacks.Inc()
}
