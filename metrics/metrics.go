package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for PulseTrader metrics
var Registry = prometheus.NewRegistry()

var (
	// ============================================
	// Account / stock engine
	// ============================================

	AccountEquity = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "pulsetrader",
		Subsystem: "account",
		Name:      "equity_usd",
		Help:      "Brokerage account equity in USD",
	})

	OpenStockPositions = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "pulsetrader",
		Subsystem: "stocks",
		Name:      "open_positions",
		Help:      "Number of open stock positions",
	})

	OrdersSubmitted = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsetrader",
		Subsystem: "stocks",
		Name:      "orders_total",
		Help:      "Orders submitted by side",
	}, []string{"side", "asset_class"})

	// ============================================
	// DEX paper book
	// ============================================

	DexPaperBalance = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "pulsetrader",
		Subsystem: "dex",
		Name:      "paper_balance_sol",
		Help:      "DEX paper balance in SOL",
	})

	DexOpenPositions = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "pulsetrader",
		Subsystem: "dex",
		Name:      "open_positions",
		Help:      "Open DEX paper positions",
	})

	DexRealizedPnL = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "pulsetrader",
		Subsystem: "dex",
		Name:      "realized_pnl_sol",
		Help:      "Cumulative realized DEX P&L in SOL",
	})

	DexTradesTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsetrader",
		Subsystem: "dex",
		Name:      "trades_total",
		Help:      "Completed DEX paper trades by exit reason",
	}, []string{"reason", "tier"})

	DexCircuitBreakerActive = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "pulsetrader",
		Subsystem: "dex",
		Name:      "circuit_breaker_active",
		Help:      "1 when the DEX circuit breaker is armed",
	})

	// ============================================
	// Crisis / LLM / loop
	// ============================================

	CrisisLevel = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "pulsetrader",
		Subsystem: "crisis",
		Name:      "level",
		Help:      "Current crisis level 0-3",
	})

	LLMCostUSD = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "pulsetrader",
		Subsystem: "llm",
		Name:      "cost_usd_total",
		Help:      "Cumulative LLM spend in USD",
	})

	LLMCallsTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsetrader",
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "LLM calls by model and outcome",
	}, []string{"model", "outcome"})

	TickDuration = promauto.With(Registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: "pulsetrader",
		Subsystem: "loop",
		Name:      "tick_duration_seconds",
		Help:      "Core loop tick duration",
		Buckets:   prometheus.DefBuckets,
	})

	PhaseErrors = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsetrader",
		Subsystem: "loop",
		Name:      "phase_errors_total",
		Help:      "Skipped phases by name",
	}, []string{"phase"})
)
