// Package metrics provides Prometheus instrumentation for the protocol
// core.
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
	// SettlementsTotal counts executed settlements, partitioned by outcome.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elision_settlements_total",
		Help: "Total number of settlements executed",
	}, []string{"outcome"})

	// SettlementLatency is a histogram of settlement execution latency.
	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "elision_settlement_latency_seconds",
		Help:    "Settlement execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// Liquidations counts positions routed to liquidation.
	Liquidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elision_liquidations_total",
		Help: "Positions liquidated at settlement",
	})

	// OpenPositions tracks the number of open collateralized positions.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "elision_open_positions",
		Help: "Number of currently open positions",
	})

	// PoolReserve tracks pool reserves per pair and asset.
	PoolReserve = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "elision_pool_reserve",
		Help: "Pool reserve per asset",
	}, []string{"pair", "asset"})

	// TrackingSupply tracks outstanding tracking-token supply per pool.
	TrackingSupply = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "elision_tracking_supply",
		Help: "Outstanding tracking-token supply per pool",
	}, []string{"pair"})

	// SwapVolume tracks cumulative swap input volume per pair and asset.
	SwapVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elision_swap_volume_total",
		Help: "Cumulative swap input volume",
	}, []string{"pair", "asset"})

	// CollateralRejections counts operations rejected by the MCR check.
	CollateralRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elision_collateral_rejections_total",
		Help: "Operations rejected by the minimum collateralization check",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "elision_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "elision_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "elision_http_request_duration_seconds",
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
