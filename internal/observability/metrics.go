// Package observability wires Prometheus metrics, OpenTelemetry tracing,
// and the stats dashboard around the queue/worker/analyser/scheduler
// components (SPEC_FULL.md's ambient observability stack).
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector this system exposes.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPInFlight        *prometheus.GaugeVec

	AnalyserDuration *prometheus.HistogramVec
	AnalyserResults  *prometheus.CounterVec

	QueueDepth    *prometheus.GaugeVec
	WorkersActive prometheus.Gauge

	SheetRuns        *prometheus.CounterVec
	SheetRowsAudited prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics builds and registers every collector against a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "linkaudit",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed by the batch ingress.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "linkaudit",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distribution.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route", "status"},
		),
		HTTPInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "linkaudit",
				Name:      "http_in_flight_requests",
				Help:      "Current in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		AnalyserDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "linkaudit",
				Subsystem: "analyser",
				Name:      "duration_seconds",
				Help:      "Time to render and classify one (source_url, target_domain) pair, by outcome.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 90},
			},
			[]string{"outcome"}, // ok|problem
		),
		AnalyserResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "linkaudit",
				Subsystem: "analyser",
				Name:      "results_total",
				Help:      "Analyser verdicts by link class and error kind.",
			},
			[]string{"link_class", "non_indexable_reason"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "linkaudit",
				Subsystem: "queue",
				Name:      "depth",
				Help:      "Queue occupancy by state (waiting, leased, dead_lettered).",
			},
			[]string{"state"},
		),
		WorkersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "linkaudit",
				Subsystem: "worker",
				Name:      "active",
				Help:      "Workers currently processing a job.",
			},
		),
		SheetRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "linkaudit",
				Subsystem: "sheet",
				Name:      "runs_total",
				Help:      "Scheduled sheet runs by outcome.",
			},
			[]string{"outcome"}, // checked|error
		),
		SheetRowsAudited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "linkaudit",
				Subsystem: "sheet",
				Name:      "rows_audited_total",
				Help:      "Total sheet rows that received a written-back verdict.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration, m.HTTPInFlight,
		m.AnalyserDuration, m.AnalyserResults,
		m.QueueDepth, m.WorkersActive,
		m.SheetRuns, m.SheetRowsAudited,
	)
	return m
}

// GinMiddleware records request count, latency, and in-flight gauge for
// every request the batch API serves.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method

		m.HTTPInFlight.WithLabelValues(method, route).Inc()
		defer m.HTTPInFlight.WithLabelValues(method, route).Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		elapsed := time.Since(start).Seconds()
		m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(elapsed)
	}
}

// ObserveAnalysis records one analyser outcome.
func (m *Metrics) ObserveAnalysis(outcome, linkClass, nonIndexableReason string, duration time.Duration) {
	m.AnalyserDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.AnalyserResults.WithLabelValues(linkClass, nonIndexableReason).Inc()
}

// ObserveQueueDepth refreshes the queue-state gauges from a stats snapshot.
func (m *Metrics) ObserveQueueDepth(waiting, leased, deadLettered int) {
	m.QueueDepth.WithLabelValues("waiting").Set(float64(waiting))
	m.QueueDepth.WithLabelValues("leased").Set(float64(leased))
	m.QueueDepth.WithLabelValues("dead_lettered").Set(float64(deadLettered))
}

// ObserveSheetRun records one scheduler fire outcome and its audited row count.
func (m *Metrics) ObserveSheetRun(outcome string, rowsAudited int) {
	m.SheetRuns.WithLabelValues(outcome).Inc()
	if rowsAudited > 0 {
		m.SheetRowsAudited.Add(float64(rowsAudited))
	}
}

// Handler returns the /metrics exposition handler bound to this
// Metrics' own registry, not the global default one.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
