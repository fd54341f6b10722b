// Package metrics provides Prometheus instrumentation for the stats engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ChartUpdatesTotal counts update calls by chart, mode and outcome.
	ChartUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stats_chart_updates_total",
		Help: "Total number of chart updates",
	}, []string{"chart", "mode", "result"})

	// ChartUpdateDuration tracks the wall time of an update, including
	// time spent waiting on a shared computation.
	ChartUpdateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stats_chart_update_duration_seconds",
		Help:    "Chart update duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"chart", "mode"})

	// ChartSharedUpdates counts callers served by another caller's
	// in-flight update instead of running their own.
	ChartSharedUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stats_chart_shared_updates_total",
		Help: "Updates that joined an in-flight computation",
	}, []string{"chart"})

	// ChartRowsWritten counts rows persisted per chart.
	ChartRowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stats_chart_rows_written_total",
		Help: "Series rows upserted or replaced",
	}, []string{"chart"})

	// ChartCheckpoint exposes the newest persisted date as a unix timestamp.
	ChartCheckpoint = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stats_chart_checkpoint_timestamp_seconds",
		Help: "Newest persisted date per chart",
	}, []string{"chart"})

	// UpdatesInFlight tracks running chart computations.
	UpdatesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stats_updates_in_flight",
		Help: "Number of chart computations currently running",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stats_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stats_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stats_http_request_duration_seconds",
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
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
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

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
