package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulseTrader/config"
	"PulseTrader/state"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFirstBootWritesDefaults(t *testing.T) {
	s := openTestStore(t)
	st, err := s.Load()
	require.NoError(t, err)
	assert.False(t, st.Enabled)
	assert.Equal(t, config.Default(), st.Config)
	assert.Equal(t, st.Config.DexPaperStartingBalanceSol, st.Dex.PaperBalanceSol)
}

// P10: serialize-then-load is an identity modulo default-fill migration.
func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	st, err := s.Load()
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	st.Enabled = true
	st.Config.DexEnabled = true
	st.Signals = []state.Signal{{Symbol: "NVDA", WeightedSentiment: 0.7, Timestamp: now}}
	st.PositionEntries["NVDA"] = &state.PositionEntry{EntryTime: now, EntryPrice: 100, Reason: "test"}
	st.Dex.Positions["tok"] = &state.DexPosition{
		TokenAddress: "tok", Symbol: "WIF", EntryPrice: 0.01, EntrySol: 0.5,
		EntryTime: now, TokenAmount: 100, PeakPrice: 0.02, TierName: state.TierEarly,
	}
	st.Cost.Add(2.5, 1000, 500)
	require.NoError(t, s.Save(st))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.True(t, loaded.Enabled)
	assert.True(t, loaded.Config.DexEnabled)
	assert.Equal(t, st.Signals, loaded.Signals)
	assert.Equal(t, st.PositionEntries["NVDA"].EntryPrice, loaded.PositionEntries["NVDA"].EntryPrice)
	assert.Equal(t, st.Dex.Positions["tok"].TierName, loaded.Dex.Positions["tok"].TierName)
	assert.Equal(t, st.Cost, loaded.Cost)
}

func TestLoadRepairsCorruptPositions(t *testing.T) {
	s := openTestStore(t)
	st, err := s.Load()
	require.NoError(t, err)

	st.Dex.Positions["bad"] = &state.DexPosition{TokenAddress: "bad", TokenAmount: 0, EntryPrice: 0}
	require.NoError(t, s.Save(st))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.NotContains(t, loaded.Dex.Positions, "bad")
}

func TestSaveIsAtomicReplace(t *testing.T) {
	s := openTestStore(t)
	st, err := s.Load()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		st.AppendLog("info", "tick", "n")
		require.NoError(t, s.Save(st))
	}
	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, loaded.Logs, 5)
}
