package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"PulseTrader/state"
)

func nyTime(t *testing.T, weekday time.Weekday, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// 2026-07-06 is a Monday.
	base := time.Date(2026, 7, 6, hour, minute, 0, 0, loc)
	return base.AddDate(0, 0, int(weekday-time.Monday))
}

func TestPremarketWindow(t *testing.T) {
	assert.True(t, inPremarketWindow(nyTime(t, time.Monday, 9, 25)))
	assert.True(t, inPremarketWindow(nyTime(t, time.Friday, 9, 29)))
	assert.False(t, inPremarketWindow(nyTime(t, time.Monday, 9, 24)))
	assert.False(t, inPremarketWindow(nyTime(t, time.Monday, 9, 30)))
	assert.False(t, inPremarketWindow(nyTime(t, time.Saturday, 9, 27)))
	assert.False(t, inPremarketWindow(nyTime(t, time.Sunday, 9, 27)))
}

func TestOpeningWindow(t *testing.T) {
	assert.True(t, inOpeningWindow(nyTime(t, time.Monday, 9, 30)))
	assert.True(t, inOpeningWindow(nyTime(t, time.Monday, 9, 32)))
	assert.False(t, inOpeningWindow(nyTime(t, time.Monday, 9, 33)))
	assert.False(t, inOpeningWindow(nyTime(t, time.Monday, 10, 0)))
}

func TestMergeSignalsReplacesSameSymbolSource(t *testing.T) {
	st := state.New()
	now := time.Now()
	st.Signals = []state.Signal{
		{Symbol: "NVDA", Source: "forum", WeightedSentiment: 0.2, Volume: 5, Timestamp: now.Add(-time.Hour)},
		{Symbol: "AAPL", Source: "forum", WeightedSentiment: 0.4, Volume: 3, Timestamp: now.Add(-time.Hour)},
	}

	mergeSignals(st, []state.Signal{
		{Symbol: "NVDA", Source: "forum", WeightedSentiment: 0.9, Volume: 20, Timestamp: now},
	}, now)

	// Fresh NVDA replaced the stale one; AAPL survived.
	assert.Len(t, st.Signals, 2)
	for _, sig := range st.Signals {
		if sig.Symbol == "NVDA" {
			assert.Equal(t, 0.9, sig.WeightedSentiment)
		}
	}
	// Social history recorded for the incoming signal.
	latest, ok := st.LatestSocial("NVDA")
	assert.True(t, ok)
	assert.Equal(t, 20, latest.Volume)
}
