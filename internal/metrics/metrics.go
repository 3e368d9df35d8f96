// Package metrics provides Prometheus instrumentation for the pool engine.
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
	// PoolsCreated counts pools appended to the registry.
	PoolsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memepool_pools_created_total",
		Help: "Total number of pools created",
	})

	// Joins counts accepted deposits.
	Joins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memepool_joins_total",
		Help: "Total number of participants that joined a pool",
	})

	// SwapBatches counts batch conversions by outcome ("ok", "failed").
	SwapBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memepool_swap_batches_total",
		Help: "Batch conversions attempted, by outcome",
	}, []string{"outcome"})

	// SwapBatchSize observes how many legs each batch carried.
	SwapBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "memepool_swap_batch_legs",
		Help:    "Number of legs per batch conversion",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
	})

	// WinnersDeclared counts completed rankings.
	WinnersDeclared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memepool_winners_declared_total",
		Help: "Total number of pools with a declared winner",
	})

	// Payouts counts value movements out of escrow by kind.
	Payouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memepool_payouts_total",
		Help: "Payouts settled out of escrow, by kind",
	}, []string{"kind"})

	// PayoutFailures counts settlements the escrow refused.
	PayoutFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memepool_payout_failures_total",
		Help: "Payout settlements that failed, by kind",
	}, []string{"kind"})

	// OperationLatency tracks engine operation latency.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "memepool_operation_latency_seconds",
		Help:    "Pool engine operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memepool_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memepool_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "memepool_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObserveOp records the latency of an engine operation started at start.
func ObserveOp(op string, start time.Time) {
	OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

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
