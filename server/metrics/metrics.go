// Package metrics holds the service's Prometheus collectors on a private
// registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics encapsulates Prometheus metrics for the server.
type Metrics struct {
	registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec
	ErrorsTotal     *prometheus.CounterVec

	// Pipeline
	StageDuration *prometheus.HistogramVec
	Responses     *prometheus.CounterVec

	// Gateway
	GatewayCalls    *prometheus.CounterVec
	GatewayDuration *prometheus.HistogramVec

	// Best-effort writes that were dropped.
	PersistenceFailures *prometheus.CounterVec

	// Admission queue
	QueueDepth      prometheus.Gauge
	QueueRejections prometheus.Counter
}

// NewMetrics creates a new Metrics instance with a custom registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "projectc_http_requests_total",
				Help: "Total number of HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "projectc_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		ActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "projectc_http_active_requests",
				Help: "Number of currently active HTTP requests",
			},
			[]string{"endpoint"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "projectc_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"type"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "projectc_pipeline_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
			},
			[]string{"stage", "outcome"},
		),
		Responses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "projectc_pipeline_responses_total",
				Help: "Slide responses produced by kind",
			},
			[]string{"kind"},
		),
		GatewayCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "projectc_llm_calls_total",
				Help: "Calls to the model provider by outcome",
			},
			[]string{"outcome"},
		),
		GatewayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "projectc_llm_call_duration_seconds",
				Help:    "Duration of model provider calls in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
			},
			[]string{"outcome"},
		),
		PersistenceFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "projectc_persistence_failures_total",
				Help: "Best-effort store writes that failed, by operation",
			},
			[]string{"op"},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "projectc_queue_depth",
				Help: "Requests waiting for a pipeline slot",
			},
		),
		QueueRejections: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "projectc_queue_rejections_total",
				Help: "Requests rejected because the admission queue was full",
			},
		),
	}

	// Register default Go metrics
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize some default metrics
	m.RequestsTotal.WithLabelValues("/health", "200").Add(0)
	m.RequestsTotal.WithLabelValues("/metrics", "200").Add(0)
	m.ActiveRequests.WithLabelValues("queued").Add(0)
	m.ActiveRequests.WithLabelValues("processing").Add(0)
	for _, kind := range []string{"HTML_CODE", "CONVERSATION", "ERROR"} {
		m.Responses.WithLabelValues(kind).Add(0)
	}

	return m
}

// Registry exposes the registry so other components (the circuit breaker)
// can register their own collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns a handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: false,
	})
}
