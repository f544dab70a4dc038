// Package metrics provides Prometheus instrumentation for the score engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ScoresCalculated counts score computations, partitioned by asset class.
	ScoresCalculated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matador_scores_calculated_total",
		Help: "Total number of pitch scores calculated",
	}, []string{"class"})

	// ScoreLatency tracks end-to-end score computation latency.
	ScoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matador_score_latency_seconds",
		Help:    "Pitch score computation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"class"})

	// ScoreFailures counts failed score computations by reason.
	ScoreFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matador_score_failures_total",
		Help: "Total number of failed score computations",
	}, []string{"reason"})

	// ProviderRequests counts outbound asset-data requests by provider.
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matador_provider_requests_total",
		Help: "Total asset data provider requests",
	}, []string{"provider", "outcome"})

	// KarmaEventsApplied counts karma ledger events by kind.
	KarmaEventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matador_karma_events_total",
		Help: "Total karma events applied",
	}, []string{"kind"})

	// TierTransitions counts credibility tier changes.
	TierTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matador_tier_transitions_total",
		Help: "Total credibility tier transitions",
	}, []string{"to"})

	// ActivePitches tracks the number of pitches in active status.
	ActivePitches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "matador_active_pitches",
		Help: "Number of currently active pitches",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "matador_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matador_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matador_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
