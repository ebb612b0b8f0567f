// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_decisions_total",
		Help: "Decisions fused, by category.",
	}, []string{"category"})

	VetoesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_vetoes_total",
		Help: "Risk vetoes, by reason.",
	}, []string{"reason"})

	ApprovalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_approvals_total",
		Help: "Pending-approval resolutions, by outcome.",
	}, []string{"outcome"})

	OpenTrades = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_open_trades",
		Help: "Open trade count from risk state.",
	})

	DailyPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_daily_pnl_usd",
		Help: "Daily realized P&L from risk state.",
	})

	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "engine_cycle_duration_seconds",
		Help:    "Wall time of one full decision cycle.",
		Buckets: prometheus.DefBuckets,
	}, []string{"symbol"})
)
