// Package metrics provides Prometheus metrics for the pricing and trading loop.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// TradingMetrics collects and exposes the daemon's Prometheus metrics.
type TradingMetrics struct {
	registry *prometheus.Registry

	// Model metrics
	TicksTotal      *prometheus.CounterVec
	ComputeDuration *prometheus.HistogramVec
	WinProbability  *prometheus.GaugeVec
	FairPrice       *prometheus.GaugeVec
	ServeProb       *prometheus.GaugeVec

	// Signal metrics
	SignalsTotal *prometheus.CounterVec
	SignalEdge   *prometheus.HistogramVec

	// Order metrics
	OrdersTotal  *prometheus.CounterVec
	OrderRetries *prometheus.CounterVec
	OrderSize    *prometheus.HistogramVec

	// Position metrics
	PositionSize  *prometheus.GaugeVec
	UnrealizedPnL *prometheus.GaugeVec
	RealizedPnL   *prometheus.GaugeVec

	// Feed and guardrail metrics
	FeedReconnects   *prometheus.CounterVec
	StaleQuotes      *prometheus.CounterVec
	InvalidScores    *prometheus.CounterVec
	GuardrailHalts   *prometheus.CounterVec
	ActiveMatches    *prometheus.GaugeVec
	MatchesCompleted *prometheus.CounterVec
}

// NewTradingMetrics creates a new metrics collector on its own registry.
func NewTradingMetrics() *TradingMetrics {
	registry := prometheus.NewRegistry()

	tm := &TradingMetrics{
		registry: registry,

		// Model metrics
		TicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tennis_ticks_total",
				Help: "Score ticks processed",
			},
			[]string{"match"},
		),
		ComputeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tennis_compute_duration_seconds",
				Help:    "Time to price one score tick",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us to ~400ms
			},
			[]string{"match"},
		),
		WinProbability: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tennis_win_probability",
				Help: "Latest model match-win probability (0-1)",
			},
			[]string{"match"},
		),
		FairPrice: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tennis_fair_price_cents",
				Help: "Latest model fair price in cents",
			},
			[]string{"market"},
		),
		ServeProb: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tennis_serve_point_probability",
				Help: "Current serve-point win probability per player",
			},
			[]string{"match", "player"},
		),

		// Signal metrics
		SignalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tennis_signals_total",
				Help: "Trading signals generated",
			},
			[]string{"action"},
		),
		SignalEdge: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tennis_signal_edge_cents",
				Help:    "Model edge over market mid in cents",
				Buckets: prometheus.LinearBuckets(-10, 2, 11), // -10 to +10
			},
			[]string{"action"},
		),

		// Order metrics
		OrdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tennis_orders_total",
				Help: "Orders submitted, by status",
			},
			[]string{"status"},
		),
		OrderRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tennis_order_retries_total",
				Help: "Order submissions retried after a failure",
			},
			[]string{},
		),
		OrderSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tennis_order_size_contracts",
				Help:    "Order size in contracts",
				Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 25, 50},
			},
			[]string{"action"},
		),

		// Position metrics
		PositionSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tennis_position_contracts",
				Help: "Signed open position per market",
			},
			[]string{"market"},
		),
		UnrealizedPnL: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tennis_unrealized_pnl_cents",
				Help: "Unrealized P&L per market in cents",
			},
			[]string{"market"},
		),
		RealizedPnL: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tennis_realized_pnl_cents",
				Help: "Realized P&L per market in cents (can be negative)",
			},
			[]string{"market"},
		),

		// Feed and guardrail metrics
		FeedReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tennis_feed_reconnects_total",
				Help: "Score feed reconnections",
			},
			[]string{"match"},
		),
		StaleQuotes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tennis_stale_quotes_total",
				Help: "Ticks held because the quote was stale or unusable",
			},
			[]string{"market"},
		),
		InvalidScores: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tennis_invalid_score_updates_total",
				Help: "Score updates rejected as impossible transitions",
			},
			[]string{"match"},
		),
		GuardrailHalts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tennis_guardrail_halts_total",
				Help: "Trading halts, by guardrail",
			},
			[]string{"reason"},
		),
		ActiveMatches: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tennis_active_matches",
				Help: "Matches currently being traded",
			},
			[]string{},
		),
		MatchesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tennis_matches_completed_total",
				Help: "Matches that reached a decided state",
			},
			[]string{},
		),
	}

	tm.registerAll()

	return tm
}

func (tm *TradingMetrics) registerAll() {
	tm.registry.MustRegister(
		tm.TicksTotal,
		tm.ComputeDuration,
		tm.WinProbability,
		tm.FairPrice,
		tm.ServeProb,
		tm.SignalsTotal,
		tm.SignalEdge,
		tm.OrdersTotal,
		tm.OrderRetries,
		tm.OrderSize,
		tm.PositionSize,
		tm.UnrealizedPnL,
		tm.RealizedPnL,
		tm.FeedReconnects,
		tm.StaleQuotes,
		tm.InvalidScores,
		tm.GuardrailHalts,
		tm.ActiveMatches,
		tm.MatchesCompleted,
	)
}

// Registry returns the prometheus registry.
func (tm *TradingMetrics) Registry() *prometheus.Registry {
	return tm.registry
}

// --- Helper methods for recording metrics ---

// RecordTick records one priced score tick.
func (tm *TradingMetrics) RecordTick(match string, winProb float64, fairCents int64, durationSec float64) {
	tm.TicksTotal.WithLabelValues(match).Inc()
	tm.WinProbability.WithLabelValues(match).Set(winProb)
	tm.FairPrice.WithLabelValues(match).Set(float64(fairCents))
	if durationSec > 0 {
		tm.ComputeDuration.WithLabelValues(match).Observe(durationSec)
	}
}

// RecordServeProbs records both players' serve-point probabilities.
func (tm *TradingMetrics) RecordServeProbs(match string, pA, pB float64) {
	tm.ServeProb.WithLabelValues(match, "a").Set(pA)
	tm.ServeProb.WithLabelValues(match, "b").Set(pB)
}

// RecordSignal records a trading signal.
func (tm *TradingMetrics) RecordSignal(action string, edgeCents float64, contracts int64) {
	tm.SignalsTotal.WithLabelValues(action).Inc()
	tm.SignalEdge.WithLabelValues(action).Observe(edgeCents)
	if contracts > 0 {
		tm.OrderSize.WithLabelValues(action).Observe(float64(contracts))
	}
}

// RecordOrder records an order outcome.
func (tm *TradingMetrics) RecordOrder(status string) {
	tm.OrdersTotal.WithLabelValues(status).Inc()
}

// RecordOrderRetry records a retried submission.
func (tm *TradingMetrics) RecordOrderRetry() {
	tm.OrderRetries.WithLabelValues().Inc()
}

// UpdatePosition updates position metrics for one market.
func (tm *TradingMetrics) UpdatePosition(market string, contracts int64, unrealizedCents, realizedCents float64) {
	tm.PositionSize.WithLabelValues(market).Set(float64(contracts))
	tm.UnrealizedPnL.WithLabelValues(market).Set(unrealizedCents)
	tm.RealizedPnL.WithLabelValues(market).Set(realizedCents)
}

// RecordFeedReconnect records a score feed reconnection.
func (tm *TradingMetrics) RecordFeedReconnect(match string) {
	tm.FeedReconnects.WithLabelValues(match).Inc()
}

// RecordStaleQuote records a tick held on quote staleness.
func (tm *TradingMetrics) RecordStaleQuote(market string) {
	tm.StaleQuotes.WithLabelValues(market).Inc()
}

// RecordInvalidScore records a rejected score transition.
func (tm *TradingMetrics) RecordInvalidScore(match string) {
	tm.InvalidScores.WithLabelValues(match).Inc()
}

// RecordGuardrailHalt records a trading halt.
func (tm *TradingMetrics) RecordGuardrailHalt(reason string) {
	tm.GuardrailHalts.WithLabelValues(reason).Inc()
}

// UpdateActiveMatches updates the live match count.
func (tm *TradingMetrics) UpdateActiveMatches(count int) {
	tm.ActiveMatches.WithLabelValues().Set(float64(count))
}

// RecordMatchCompleted records a match reaching a decided state.
func (tm *TradingMetrics) RecordMatchCompleted() {
	tm.MatchesCompleted.WithLabelValues().Inc()
}

// --- Decimal helpers ---

// DecimalToFloat64 safely converts decimal.Decimal to float64 for metrics.
func DecimalToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// Global instance for convenience
var defaultMetrics *TradingMetrics
var once sync.Once

// Default returns the default global metrics instance.
func Default() *TradingMetrics {
	once.Do(func() {
		defaultMetrics = NewTradingMetrics()
	})
	return defaultMetrics
}
