// Package metrics – Prometheus metrics for observability.
//
// One event is recorded per reconnect attempt, per flush batch (row count,
// duration, per-target failures) and per symbol recovery outcome, plus
// running trade/parse-drop counters. Registered in init() and served at
// /metrics when the metrics endpoint is enabled.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReconnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cvd_ws_reconnect_attempts_total",
			Help: "WebSocket reconnect attempts per symbol",
		},
		[]string{"symbol"},
	)

	TradesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cvd_trades_total",
			Help: "Parsed aggTrade events applied to the state store",
		},
		[]string{"symbol"},
	)

	ParseDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cvd_parse_drops_total",
			Help: "Messages dropped because they could not be parsed",
		},
		[]string{"symbol"},
	)

	FlushRows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cvd_flush_rows_total",
			Help: "Snapshot rows handed to the persistence engine",
		},
	)

	FlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cvd_flush_duration_seconds",
			Help:    "Duration of one snapshot-and-persist pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	FlushTargetFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cvd_flush_target_failures_total",
			Help: "Persistence failures per target (aggregated, persymbol, archive)",
		},
		[]string{"target"},
	)

	RecoveryOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cvd_recovery_outcomes_total",
			Help: "Startup recovery outcomes per source (persymbol, aggregated, coldstart)",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(
		ReconnectAttempts,
		TradesProcessed,
		ParseDrops,
		FlushRows,
		FlushDuration,
		FlushTargetFailures,
		RecoveryOutcomes,
	)
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
