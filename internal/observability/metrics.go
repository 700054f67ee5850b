package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry. A nil *Metrics is
// a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	httpInFlight       prometheus.Gauge
	errors             *prometheus.CounterVec
	authOutcomes       *prometheus.CounterVec
	rateLimited        prometheus.Counter
	impersonationGauge prometheus.Gauge
	impersonationOps   *prometheus.CounterVec
	auditActions       *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Error responses by domain error code.",
		}, []string{"method", "route", "code"}),
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Credential checks by credential type and outcome.",
		}, []string{"credential", "outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_rate_limited_total",
			Help: "Requests rejected by the API key rate limiter.",
		}),
		impersonationGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "impersonation_sessions_active",
			Help: "Impersonation sessions started and not yet closed by this process.",
		}),
		impersonationOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impersonation_transitions_total",
			Help: "Impersonation session transitions.",
		}, []string{"transition"}),
		auditActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impersonation_actions_total",
			Help: "Impersonation audit appends by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.httpInFlight, m.errors,
		m.authOutcomes, m.rateLimited,
		m.impersonationGauge, m.impersonationOps, m.auditActions,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RequestStarted increments the in-flight gauge; call the returned func when done.
func (m *Metrics) RequestStarted() func() {
	if m == nil {
		return func() {}
	}
	m.httpInFlight.Inc()
	return m.httpInFlight.Dec
}

// RecordRequest counts a finished request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, route, code).Inc()
	m.httpDuration.WithLabelValues(method, route, code).Observe(duration.Seconds())
}

// RecordError counts an error response by domain code.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, route, code).Inc()
}

// RecordAuth counts a credential check.
func (m *Metrics) RecordAuth(credential, outcome string) {
	if m == nil {
		return
	}
	m.authOutcomes.WithLabelValues(credential, outcome).Inc()
}

// RecordRateLimited counts a rate-limited request.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// ImpersonationStarted records a session start.
func (m *Metrics) ImpersonationStarted() {
	if m == nil {
		return
	}
	m.impersonationGauge.Inc()
	m.impersonationOps.WithLabelValues("started").Inc()
}

// ImpersonationClosed records a session leaving ACTIVE via transition.
func (m *Metrics) ImpersonationClosed(transition string) {
	if m == nil {
		return
	}
	m.impersonationGauge.Dec()
	m.impersonationOps.WithLabelValues(transition).Inc()
}

// RecordAuditAction counts an impersonation audit append attempt.
func (m *Metrics) RecordAuditAction(outcome string) {
	if m == nil {
		return
	}
	m.auditActions.WithLabelValues(outcome).Inc()
}
