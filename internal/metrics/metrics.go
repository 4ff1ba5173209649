// Package metrics exposes Prometheus collectors for property resolution,
// generation runs and the HTTP surface of serve mode.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "variants"

// Generation results.
const (
	ResultSuccess            = "success"
	ResultConfigurationError = "configuration_error"
	ResultError              = "error"
)

// Metrics holds the collectors of one process. It satisfies the resolver's
// Observer interface.
type Metrics struct {
	registry *prometheus.Registry

	resolutions *prometheus.CounterVec
	defaulted   *prometheus.CounterVec
	generations *prometheus.CounterVec
	duration    prometheus.Histogram
	variants    *prometheus.GaugeVec
	requests    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "properties",
				Name:      "resolutions_total",
				Help:      "Property lookups by the source that satisfied them.",
			},
			[]string{"source"},
		),
		defaulted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "properties",
				Name:      "defaulted_total",
				Help:      "Property lookups that fell back to the default, by key.",
			},
			[]string{"key"},
		),
		generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generator",
				Name:      "runs_total",
				Help:      "Generation runs by result.",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "generator",
				Name:      "run_duration_seconds",
				Help:      "Duration of generation runs.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
			},
		),
		variants: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "generator",
				Name:      "variants",
				Help:      "Variants in the latest report by enablement.",
			},
			[]string{"enabled"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests handled.",
			},
			[]string{"method", "route", "status"},
		),
	}

	m.registry.MustRegister(
		m.resolutions,
		m.defaulted,
		m.generations,
		m.duration,
		m.variants,
		m.requests,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// ObserveResolution records a property lookup.
func (m *Metrics) ObserveResolution(key, source string, defaulted bool) {
	m.resolutions.WithLabelValues(source).Inc()
	if defaulted {
		m.defaulted.WithLabelValues(key).Inc()
	}
}

// ObserveGeneration records a generation run and, on success, the variant counts.
func (m *Metrics) ObserveGeneration(result string, elapsed time.Duration, total, enabled int) {
	m.generations.WithLabelValues(result).Inc()
	m.duration.Observe(elapsed.Seconds())
	if result == ResultSuccess {
		m.variants.WithLabelValues("true").Set(float64(enabled))
		m.variants.WithLabelValues("false").Set(float64(total - enabled))
	}
}

// ObserveRequest records a handled HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Handler exposes the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
