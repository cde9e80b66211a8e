// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Heat fetch outcomes.
const (
	HeatApplied  = "applied"
	HeatStale    = "stale"
	HeatFailed   = "failed"
	HeatCanceled = "canceled"
)

var (
	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grid_upstream_requests_total",
		Help: "Upstream dataset requests by operation and result",
	}, []string{"op", "result"})
	UpstreamDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "grid_upstream_duration_ms",
		Help:    "Upstream request duration in milliseconds",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"op"})
	HeatFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grid_heat_fetch_total",
		Help: "Per-year heat fetch completions by outcome",
	}, []string{"outcome"})
	HeatCacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grid_heat_cache_hits_total",
		Help: "Heat cache hits by tier",
	}, []string{"tier"})
	HeatCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grid_heat_cache_misses_total",
		Help: "Heat cache misses across all tiers",
	})
	FrameLoadTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grid_frame_load_total",
		Help: "Frame set loads by result",
	}, []string{"result"})
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "grid_sessions_active",
		Help: "Currently mounted playback sessions",
	})
	TicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grid_playback_ticks_total",
		Help: "Auto-advance ticks applied across sessions",
	})
)

func init() {
	prometheus.MustRegister(UpstreamRequestsTotal)
	prometheus.MustRegister(UpstreamDurationMs)
	prometheus.MustRegister(HeatFetchTotal)
	prometheus.MustRegister(HeatCacheHitsTotal)
	prometheus.MustRegister(HeatCacheMissesTotal)
	prometheus.MustRegister(FrameLoadTotal)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(TicksTotal)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
