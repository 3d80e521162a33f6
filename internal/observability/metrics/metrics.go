package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry. All methods are safe on a nil receiver so
// components can run without instrumentation in tests.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	stageDuration *prometheus.HistogramVec
	indexCache    *prometheus.CounterVec
	askTotal      *prometheus.CounterVec
}

func New(service string) *Metrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	m := &Metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "docqa",
				Subsystem:   "http",
				Name:        "requests_total",
				Help:        "Total HTTP requests processed.",
				ConstLabels: constLabels,
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   "docqa",
				Subsystem:   "http",
				Name:        "request_duration_seconds",
				Help:        "HTTP request duration in seconds.",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: constLabels,
			},
			[]string{"method", "path"},
		),
		requestInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   "docqa",
				Subsystem:   "http",
				Name:        "in_flight_requests",
				Help:        "Number of in-flight HTTP requests.",
				ConstLabels: constLabels,
			},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   "docqa",
				Subsystem:   "rag",
				Name:        "stage_duration_seconds",
				Help:        "Duration of ingestion and answer stages.",
				Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
				ConstLabels: constLabels,
			},
			[]string{"stage"},
		),
		indexCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "docqa",
				Subsystem:   "rag",
				Name:        "index_cache_total",
				Help:        "Index cache lookups by result.",
				ConstLabels: constLabels,
			},
			[]string{"result"},
		),
		askTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "docqa",
				Subsystem:   "rag",
				Name:        "ask_total",
				Help:        "Questions answered by outcome.",
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestTotal,
		m.requestDuration,
		m.requestInFlight,
		m.stageDuration,
		m.indexCache,
		m.askTotal,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RequestStarted() {
	if m == nil {
		return
	}
	m.requestInFlight.Inc()
}

func (m *Metrics) RequestFinished(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestInFlight.Dec()
	m.requestTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// IndexCache records "hit", "miss" or "error".
func (m *Metrics) IndexCache(result string) {
	if m == nil {
		return
	}
	m.indexCache.WithLabelValues(result).Inc()
}

func (m *Metrics) AskOutcome(outcome string) {
	if m == nil {
		return
	}
	m.askTotal.WithLabelValues(outcome).Inc()
}
