// Package metrics provides Prometheus instrumentation for the PnL
// engine. Counters live on an injected Metrics struct rather than
// process-wide singletons, so collaborators (notably the price feed)
// receive the instance they report through.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all engine instrumentation.
type Metrics struct {
	// RowsIngested counts CSV rows accepted, partitioned by outcome
	// (new, duplicate, canceled).
	RowsIngested *prometheus.CounterVec

	// MatchPasses counts completed matching passes per outcome
	// (balanced, attributed, failed).
	MatchPasses *prometheus.CounterVec

	// MatchLatency tracks matching pass duration per asset group.
	MatchLatency prometheus.Histogram

	// UnmatchedSells gauges residual sell quantity flagged for review.
	UnmatchedSells prometheus.Gauge

	// PriceFeedCalls counts outbound quote API calls by result.
	PriceFeedCalls *prometheus.CounterVec

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients prometheus.Gauge

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers all collectors with reg and returns the Metrics handle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RowsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pnl_rows_ingested_total",
			Help: "CSV rows processed at ingestion",
		}, []string{"outcome"}),
		MatchPasses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pnl_match_passes_total",
			Help: "Completed FIFO matching passes",
		}, []string{"outcome"}),
		MatchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pnl_match_pass_duration_seconds",
			Help:    "FIFO matching pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		UnmatchedSells: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pnl_unmatched_sell_quantity",
			Help: "Residual sell quantity with no available buy lots",
		}),
		PriceFeedCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pnl_price_feed_calls_total",
			Help: "Outbound price feed API calls",
		}, []string{"result"}),
		WebSocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pnl_websocket_clients",
			Help: "Number of connected WebSocket clients",
		}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pnl_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pnl_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"method", "path"}),
	}
}

// Handler returns the Prometheus metrics HTTP handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Middleware returns an HTTP middleware that records request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
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
