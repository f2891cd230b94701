// Package metrics holds the Prometheus collectors of the service.
// Collectors register with the default registry served at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	// indexCallsTotal counts index backend calls by operation and outcome
	indexCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsync_index_calls_total",
			Help: "Total calls to the index backend",
		},
		[]string{"op", "outcome"},
	)

	indexCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docsync_index_call_duration_seconds",
			Help:    "Duration of index backend calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"op"},
	)

	// degradedResponsesTotal counts responses served without live index data
	degradedResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsync_degraded_responses_total",
			Help: "Total responses served while the index backend was unavailable",
		},
		[]string{"op"},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsync_uploads_total",
			Help: "Total uploads by result (indexed, unindexed, rejected)",
		},
		[]string{"result"},
	)

	advisoryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsync_advisory_failures_total",
			Help: "Total failed best-effort cleanup steps after a committed delete",
		},
		[]string{"step"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsync_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docsync_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// ObserveIndexCall records one index backend call
func ObserveIndexCall(op string, start time.Time, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	indexCallsTotal.WithLabelValues(op, outcome).Inc()
	indexCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// RecordDegraded records a response served in degraded mode
func RecordDegraded(op string) {
	degradedResponsesTotal.WithLabelValues(op).Inc()
}

// RecordUpload records an upload result
func RecordUpload(result string) {
	uploadsTotal.WithLabelValues(result).Inc()
}

// RecordAdvisoryFailure records a failed cleanup step
func RecordAdvisoryFailure(step string) {
	advisoryFailuresTotal.WithLabelValues(step).Inc()
}

// Middleware records request count and duration per route template
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := routeLabel(r)
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// routeLabel uses the mux template so ids do not explode cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return "/api/other"
	}
	return "other"
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
