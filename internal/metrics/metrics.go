package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several servers (or tests) can live in
// one process. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	noteMutations       *prometheus.CounterVec
	medOrdersCreated    *prometheus.CounterVec
	authAttempts        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		noteMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patient_note_mutations_total",
				Help: "Clinical note mutations by operation",
			},
			[]string{"operation"},
		),
		medOrdersCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "med_orders_created_total",
				Help: "Medication orders created by kind",
			},
			[]string{"kind"},
		),
		authAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_attempts_total",
				Help: "Login attempts by outcome",
			},
			[]string{"status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.noteMutations,
		m.medOrdersCreated,
		m.authAttempts,
	)
	return m
}

// RecordHTTPRequest records one served request. endpoint is the route
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// NoteMutation counts create, update, fallback_create and delete operations
func (m *Metrics) NoteMutation(operation string) {
	if m == nil {
		return
	}
	m.noteMutations.WithLabelValues(operation).Inc()
}

func (m *Metrics) MedOrderCreated(kind string) {
	if m == nil {
		return
	}
	m.medOrdersCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) AuthAttempt(status string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(status).Inc()
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
