// Package metrics provides Prometheus instrumentation for the trading engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts executed trades, partitioned by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptosim_trades_total",
		Help: "Total number of trades executed",
	}, []string{"side"})

	// TradeFailuresTotal counts rejected trades by error code.
	TradeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptosim_trade_failures_total",
		Help: "Total number of rejected trades",
	}, []string{"code"})

	// TradeLatency tracks trade execution latency.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cryptosim_trade_latency_seconds",
		Help:    "Trade execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// ReconcileRunsTotal counts reconciliation passes by outcome.
	ReconcileRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptosim_reconcile_runs_total",
		Help: "Total reconciliation passes by outcome",
	}, []string{"outcome"})

	// ReconcileDuration tracks how long each reconciliation pass takes.
	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cryptosim_reconcile_duration_seconds",
		Help:    "Reconciliation pass duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// HoldingsRepriced counts holdings touched by reconciliation price updates.
	HoldingsRepriced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cryptosim_holdings_repriced_total",
		Help: "Holdings updated with a fresh market price",
	})

	// OrphansRemoved counts rows deleted by the reconciliation cleanup step.
	OrphansRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cryptosim_orphans_removed_total",
		Help: "Orphaned or invalid holding rows removed by cleanup",
	})

	// MarketFetchesTotal counts upstream market data fetches by result.
	MarketFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptosim_market_fetches_total",
		Help: "Upstream market data fetches",
	}, []string{"result"})

	// MarketCacheHits counts cache hits by tier (fresh or stale).
	MarketCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptosim_market_cache_hits_total",
		Help: "Market data cache hits by tier",
	}, []string{"tier"})

	// RateLimitWaits counts callers delayed by the rolling rate-limit window.
	RateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cryptosim_rate_limit_waits_total",
		Help: "Market data calls delayed by the rate limiter",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
