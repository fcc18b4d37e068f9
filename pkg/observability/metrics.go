package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delegation outcome label values
const (
	OutcomeUnconfigured = "unconfigured"
	OutcomeStarted      = "started"
	OutcomeAccepted     = "accepted"
	OutcomeRejected     = "rejected"
	OutcomeFailed       = "failed"
	OutcomeSkipped      = "skipped"
)

// Flood decision label values
const (
	FloodAllowed  = "allowed"
	FloodRejected = "rejected"
	FloodError    = "error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Delegated login
	DelegationOutcomesTotal *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec
	LogoutsTotal            *prometheus.CounterVec

	// Flood guard
	FloodDecisionsTotal *prometheus.CounterVec

	// History store
	HistoryOperationsTotal   *prometheus.CounterVec
	HistoryOperationDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyhole_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keyhole_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keyhole_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),
		DelegationOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyhole_delegation_outcomes_total",
				Help: "Delegated login attempts by outcome",
			},
			[]string{"outcome"},
		),
		ProviderRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keyhole_provider_request_duration_seconds",
				Help:    "Identity provider round trip duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		LogoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyhole_logouts_total",
				Help: "Logouts by whether the provider session was ended too",
			},
			[]string{"provider"},
		),
		FloodDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyhole_flood_decisions_total",
				Help: "Flood guard decisions by result and reason",
			},
			[]string{"decision", "reason"},
		),
		HistoryOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyhole_history_operations_total",
				Help: "History store operations by result",
			},
			[]string{"operation", "status"},
		),
		HistoryOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keyhole_history_operation_duration_seconds",
				Help:    "History store operation duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.DelegationOutcomesTotal,
		m.ProviderRequestDuration,
		m.LogoutsTotal,
		m.FloodDecisionsTotal,
		m.HistoryOperationsTotal,
		m.HistoryOperationDuration,
	)

	return m
}

// ObserveDelegation counts one delegation outcome. Safe on a nil receiver.
func (m *Metrics) ObserveDelegation(outcome string) {
	if m == nil {
		return
	}
	m.DelegationOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveProvider records the duration of one provider round trip
func (m *Metrics) ObserveProvider(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.ProviderRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveLogout counts a logout
func (m *Metrics) ObserveLogout(provider bool) {
	if m == nil {
		return
	}
	m.LogoutsTotal.WithLabelValues(strconv.FormatBool(provider)).Inc()
}

// ObserveFlood counts one flood guard decision
func (m *Metrics) ObserveFlood(decision, reason string) {
	if m == nil {
		return
	}
	m.FloodDecisionsTotal.WithLabelValues(decision, reason).Inc()
}

// ObserveHistory records a history store operation
func (m *Metrics) ObserveHistory(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.HistoryOperationsTotal.WithLabelValues(operation, status).Inc()
	m.HistoryOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// The route label comes from routeOf so that query strings and per-user
// paths do not explode label cardinality.
func HTTPMetricsMiddleware(metrics *Metrics, routeOf func(*http.Request) string) func(http.Handler) http.Handler {
	if routeOf == nil {
		routeOf = func(r *http.Request) string { return r.URL.Path }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeOf(r)
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
