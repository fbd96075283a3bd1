package dex

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"PulseTrader/state"
)

func TestLegitimacyScore(t *testing.T) {
	assert.Equal(t, 0.0, LegitimacyScore(state.LegitimacySignals{}))
	assert.Equal(t, 100.0, LegitimacyScore(state.LegitimacySignals{
		HasWebsite: true, HasTwitter: true, HasTelegram: true, BoostCount: 10, SellsExist: true,
	}))
	// Boost contribution caps at 20.
	assert.Equal(t, 20.0, LegitimacyScore(state.LegitimacySignals{BoostCount: 50}))
	assert.Equal(t, 6.0, LegitimacyScore(state.LegitimacySignals{BoostCount: 3}))
}

func TestMomentumScoreFloorsAtZero(t *testing.T) {
	sig := state.DexMomentumSignal{
		Change24h: -50, Change1h: -90, Change6h: -30,
		LiquidityUsd: 500, BuyRatio1h: 0.1, BuyRatio24h: 0.1,
	}
	assert.Equal(t, 0.0, MomentumScore(sig))
}

func TestMomentumScoreRewardsConsistentMomentum(t *testing.T) {
	strong := state.DexMomentumSignal{
		Change24h: 80, Change1h: 15, Change6h: 40, Change5m: 5,
		Volume24h: 200_000, Volume6h: 80_000,
		LiquidityUsd: 100_000, BuyRatio1h: 0.65, BuyRatio24h: 0.6,
		TxnCount24h: 800, TierName: state.TierEstablished, AgeDays: 7,
	}
	weak := strong
	weak.Change6h = -5
	weak.Change1h = -2
	weak.BuyRatio1h = 0.4

	assert.Greater(t, MomentumScore(strong), MomentumScore(weak))
	assert.Greater(t, MomentumScore(strong), 60.0)
}

func TestMomentumScoreSpikePenalty(t *testing.T) {
	base := state.DexMomentumSignal{
		Change24h: 40, Change6h: 10, LiquidityUsd: 50_000,
		Volume24h: 50_000, BuyRatio1h: 0.5, BuyRatio24h: 0.5, TxnCount24h: 200,
	}
	spiky := base
	spiky.Change1h = 90 // far out of line with the 6h trajectory

	calm := base
	calm.Change1h = 5

	// The spike's raw 1h contribution is capped at 15 (11.25 above the calm
	// move); only the penalty keeps it within 5 points of the calm score.
	assert.Less(t, MomentumScore(spiky), MomentumScore(calm)+5)
}
