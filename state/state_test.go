package state

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSignalsDropsOldSortsAndCaps(t *testing.T) {
	st := New()
	now := time.Now()

	var incoming []Signal
	incoming = append(incoming, Signal{Symbol: "OLD", WeightedSentiment: 0.99, Timestamp: now.Add(-25 * time.Hour)})
	for i := 0; i < 250; i++ {
		incoming = append(incoming, Signal{
			Symbol:            fmt.Sprintf("S%d", i),
			WeightedSentiment: float64(i) / 250,
			Timestamp:         now.Add(-time.Minute),
		})
	}
	st.MergeSignals(incoming, now)

	assert.Len(t, st.Signals, SignalCacheCap)
	for _, sig := range st.Signals {
		assert.NotEqual(t, "OLD", sig.Symbol)
	}
	// Sorted by |weighted sentiment| descending.
	for i := 1; i < len(st.Signals); i++ {
		assert.GreaterOrEqual(t,
			abs(st.Signals[i-1].WeightedSentiment),
			abs(st.Signals[i].WeightedSentiment))
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func TestAppendLogRingCap(t *testing.T) {
	st := New()
	for i := 0; i < LogRingCap+50; i++ {
		st.AppendLog("info", "test", fmt.Sprintf("entry %d", i))
	}
	assert.Len(t, st.Logs, LogRingCap)
	assert.Contains(t, st.Logs[len(st.Logs)-1].Message, fmt.Sprintf("entry %d", LogRingCap+49))
}

func TestCostTrackerMonotonic(t *testing.T) {
	var c CostTracker
	c.Add(0.5, 100, 50)
	c.Add(-1, -5, -5) // ignored deltas
	c.Add(0.25, 10, 5)

	assert.Equal(t, 0.75, c.TotalUSD)
	assert.Equal(t, 3, c.APICalls)
	assert.Equal(t, int64(110), c.InputTokens)
	assert.Equal(t, int64(55), c.OutputTokens)
}

func TestStateRoundTrip(t *testing.T) {
	st := New()
	now := time.Now().UTC().Truncate(time.Second)
	st.Enabled = true
	st.Signals = []Signal{{Symbol: "AAPL", WeightedSentiment: 0.4, Timestamp: now}}
	st.PositionEntries["AAPL"] = &PositionEntry{EntryTime: now, EntryPrice: 190, Reason: "test"}
	st.Dex.Positions["tok"] = &DexPosition{
		TokenAddress: "tok", Symbol: "WIF", EntryPrice: 0.01, EntrySol: 0.5,
		EntryTime: now, TokenAmount: 100, PeakPrice: 0.012, TierName: TierLottery,
	}
	st.Cost.Add(1.5, 100, 200)

	data, err := json.Marshal(st)
	require.NoError(t, err)

	loaded := New()
	require.NoError(t, json.Unmarshal(data, loaded))
	loaded.EnsureMaps()

	assert.Equal(t, st.Enabled, loaded.Enabled)
	assert.Equal(t, st.Signals, loaded.Signals)
	assert.Equal(t, st.PositionEntries["AAPL"].EntryPrice, loaded.PositionEntries["AAPL"].EntryPrice)
	assert.Equal(t, st.Dex.Positions["tok"].TokenAmount, loaded.Dex.Positions["tok"].TokenAmount)
	assert.Equal(t, st.Cost, loaded.Cost)
}

func TestRepairDropsCorruptDexPositions(t *testing.T) {
	st := New()
	st.Dex.Positions["bad"] = &DexPosition{TokenAddress: "bad", TokenAmount: 0, EntryPrice: 1}
	st.Dex.Positions["good"] = &DexPosition{TokenAddress: "good", TokenAmount: 10, EntryPrice: 1, PeakPrice: 0.5}
	notes := st.Repair()

	assert.NotEmpty(t, notes)
	assert.NotContains(t, st.Dex.Positions, "bad")
	// Peak snaps up to entry.
	assert.Equal(t, 1.0, st.Dex.Positions["good"].PeakPrice)
}

func TestRepairNegativeBalance(t *testing.T) {
	st := New()
	st.Dex.PaperBalanceSol = -3
	st.Repair()
	assert.Equal(t, st.Config.DexPaperStartingBalanceSol, st.Dex.PaperBalanceSol)
}

func TestDexBookResetAndTierCount(t *testing.T) {
	var b DexBook
	b.Reset(10)
	assert.Equal(t, 10.0, b.PaperBalanceSol)
	b.Positions["a"] = &DexPosition{TierName: TierLottery}
	b.Positions["b"] = &DexPosition{TierName: TierLottery}
	b.Positions["c"] = &DexPosition{TierName: TierEarly}
	assert.Equal(t, 2, b.TierCount(TierLottery))
	assert.Equal(t, 1, b.TierCount(TierEarly))

	b.Reset(5)
	assert.Empty(t, b.Positions)
	assert.Equal(t, 5.0, b.PaperBalanceSol)
}

func TestAppendSnapshotDrawdownGuard(t *testing.T) {
	var b DexBook
	b.Reset(10)
	now := time.Now()

	dd, lifted := b.AppendSnapshot(PortfolioSnapshot{Timestamp: now, TotalValueSol: 10}, 30)
	assert.False(t, lifted)
	assert.Zero(t, dd)

	dd, _ = b.AppendSnapshot(PortfolioSnapshot{Timestamp: now, TotalValueSol: 6.5}, 30)
	assert.InDelta(t, 35, dd, 0.01)
	assert.True(t, b.DrawdownPaused)

	// New high water mark lifts the pause.
	_, lifted = b.AppendSnapshot(PortfolioSnapshot{Timestamp: now, TotalValueSol: 10.5}, 30)
	assert.True(t, lifted)
	assert.False(t, b.DrawdownPaused)
}

func TestAppendSnapshotHistoryCap(t *testing.T) {
	var b DexBook
	b.Reset(10)
	now := time.Now()
	for i := 0; i < PortfolioHistoryCap+20; i++ {
		b.AppendSnapshot(PortfolioSnapshot{Timestamp: now, TotalValueSol: 10}, 30)
	}
	assert.Len(t, b.PortfolioHistory, PortfolioHistoryCap)
}

func TestRecordOutcomeStreaks(t *testing.T) {
	var b DexBook
	b.Reset(10)
	b.RecordOutcome(-1)
	b.RecordOutcome(-1)
	b.RecordOutcome(1)
	b.RecordOutcome(-1)

	assert.Equal(t, 1, b.CurrentLossStreak)
	assert.Equal(t, 2, b.MaxLossStreak)
	assert.Equal(t, 1, b.MaxWinStreak)
}
