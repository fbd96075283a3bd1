package dex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"PulseTrader/state"
)

func ledger(pnls ...float64) *state.DexBook {
	var b state.DexBook
	b.Reset(10)
	for _, pnl := range pnls {
		b.TradeHistory = append(b.TradeHistory, state.DexTradeRecord{
			PnLSol: pnl,
			PnLPct: pnl * 100, // entry of 1 SOL per trade keeps the math legible
		})
	}
	return &b
}

func TestPerformanceEmptyLedger(t *testing.T) {
	m := Performance(ledger(), time.Now())
	assert.Zero(t, m.TotalTrades)
	assert.Zero(t, m.WinRate)
}

func TestPerformanceWinRateAndExpectancy(t *testing.T) {
	// Two wins of +10%, two losses of -5%.
	m := Performance(ledger(0.1, 0.1, -0.05, -0.05), time.Now())
	assert.Equal(t, 4, m.TotalTrades)
	assert.InDelta(t, 0.5, m.WinRate, 1e-9)
	assert.InDelta(t, 10, m.AvgWinPct, 1e-9)
	assert.InDelta(t, -5, m.AvgLossPct, 1e-9)
	// expectancy = 0.5*10 - 0.5*5 = 2.5
	assert.InDelta(t, 2.5, m.Expectancy, 1e-9)
	// profit factor = 0.2 / 0.1 = 2
	assert.InDelta(t, 2, m.ProfitFactor, 1e-9)
}

func TestPerformanceProfitFactorCap(t *testing.T) {
	m := Performance(ledger(0.1, 0.2), time.Now())
	assert.Equal(t, 999.0, m.ProfitFactor)
}

func TestDrawdownStats(t *testing.T) {
	var b state.DexBook
	b.Reset(10)
	now := time.Now()
	values := []float64{10, 12, 9, 8, 11, 13, 10}
	for i, v := range values {
		b.PortfolioHistory = append(b.PortfolioHistory, state.PortfolioSnapshot{
			Timestamp:     now.Add(time.Duration(i) * time.Hour),
			TotalValueSol: v,
		})
	}
	maxPct, maxHours, currentPct := drawdownStats(b.PortfolioHistory)
	// Worst: 12 -> 8 = 33.3%.
	assert.InDelta(t, 33.33, maxPct, 0.01)
	assert.Greater(t, maxHours, 0.0)
	// Current: 13 -> 10 = 23.1%.
	assert.InDelta(t, 23.08, currentPct, 0.01)
}
