package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/piiscrub/internal/model"
)

// Run status label values.
const (
	StatusSuccess   = "success"
	StatusFailure   = "failure"
	StatusCancelled = "cancelled"
)

// Metrics holds all Prometheus metrics for piiscrub.
type Metrics struct {
	// Workflow metrics
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	runsActive  prometheus.Gauge

	// Detection and redaction metrics
	entitiesDetected *prometheus.CounterVec
	redactionsTotal  *prometheus.CounterVec

	// Ticket sync metrics
	ticketUpdates prometheus.Counter

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics instance with all piiscrub metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "piiscrub_runs_total",
				Help: "Total number of workflow runs by kind and status",
			},
			[]string{"kind", "status"},
		),

		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "piiscrub_run_duration_seconds",
				Help:    "Workflow run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		runsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "piiscrub_runs_active",
				Help: "Number of workflow runs in progress",
			},
		),

		entitiesDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "piiscrub_entities_detected_total",
				Help: "Total number of detected entities by type",
			},
			[]string{"type"},
		),

		redactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "piiscrub_redactions_total",
				Help: "Total number of redaction requests by outcome",
			},
			[]string{"outcome"},
		),

		ticketUpdates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "piiscrub_ticket_updates_total",
				Help: "Total number of active ticket id updates",
			},
		),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "piiscrub_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "piiscrub_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.runsActive,
		m.entitiesDetected,
		m.redactionsTotal,
		m.ticketUpdates,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)

	return m
}

// RunStarted marks a workflow run as in progress.
func (m *Metrics) RunStarted() {
	m.runsActive.Inc()
}

// RunFinished marks a workflow run as no longer in progress.
func (m *Metrics) RunFinished() {
	m.runsActive.Dec()
}

// RecordReport records a finished workflow run.
func (m *Metrics) RecordReport(report *model.ScrubReport) {
	kind := string(report.Kind)

	m.runsTotal.WithLabelValues(kind, runStatus(report)).Inc()
	if !report.DateProcessed.IsZero() {
		m.runDuration.WithLabelValues(kind).Observe(time.Since(report.DateProcessed).Seconds())
	}

	for _, e := range report.Entities {
		m.entitiesDetected.WithLabelValues(entityTypeLabel(e.Type)).Inc()
	}
	for _, res := range report.Results {
		m.redactionsTotal.WithLabelValues(string(res.Outcome)).Inc()
	}
}

// RecordTicketUpdate records a change of the active ticket id.
func (m *Metrics) RecordTicketUpdate() {
	m.ticketUpdates.Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request metrics. The route label is the chi route
// pattern, so path parameters do not create new series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), strconv.Itoa(wrapped.statusCode), time.Since(start))
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func runStatus(report *model.ScrubReport) string {
	switch {
	case report.Cancelled:
		return StatusCancelled
	case report.Error != nil:
		return StatusFailure
	default:
		return StatusSuccess
	}
}

func entityTypeLabel(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return "unknown"
	}
	return t
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}
