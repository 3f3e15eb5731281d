// Package metrics provides Prometheus instrumentation for the fantasy engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SettlementsTotal counts status transitions into open, by outcome
	// (ok, failed, locked).
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ppe_settlements_total",
		Help: "Total number of round settlements attempted",
	}, []string{"outcome"})

	// SettlementDuration tracks how long a committed settlement took.
	SettlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ppe_settlement_duration_seconds",
		Help:    "Round settlement duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// SettlementUsersScored is the number of users credited by the last settlement.
	SettlementUsersScored = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ppe_settlement_users_scored",
		Help: "Users credited with points in the last settlement",
	})

	// MarketOpen is 1 while lineups may be edited.
	MarketOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ppe_market_open",
		Help: "1 when the market is open, 0 when closed",
	})

	// LineupsSaved counts accepted lineup saves.
	LineupsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ppe_lineups_saved_total",
		Help: "Total lineups saved",
	})

	// StatsUpdates counts player stat overwrites.
	StatsUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ppe_stats_updates_total",
		Help: "Total player stats updates",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ppe_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ppe_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ppe_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// SetMarketOpen mirrors the market flag into the gauge.
func SetMarketOpen(open bool) {
	if open {
		MarketOpen.Set(1)
		return
	}
	MarketOpen.Set(0)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
// The chi wrapper keeps http.Hijacker available for WebSocket upgrades.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		duration := time.Since(start).Seconds()

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern uses the matched chi route to avoid high cardinality
// (emails and player IDs live in the path).
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
