package dex

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulseTrader/config"
	"PulseTrader/dexmarket"
	"PulseTrader/state"
)

func makePair(t *testing.T, ageHours float64, price float64, now time.Time) dexmarket.Pair {
	t.Helper()
	var p dexmarket.Pair
	p.ChainID = "solana"
	p.PairAddress = "pair-addr"
	p.PairCreatedAt = now.Add(-time.Duration(ageHours * float64(time.Hour))).UnixMilli()
	p.BaseToken.Address = "token-addr"
	p.BaseToken.Symbol = "TEST"
	p.PriceUsd = strconv.FormatFloat(price, 'f', -1, 64)
	return p
}

// A 4h-old token pumping +60% in 5m and +8% in 1h qualifies for both
// breakout and lottery; the more conservative lottery tier wins.
func TestTierSelectionLotteryBeatsBreakout(t *testing.T) {
	cfg := config.Default()
	cfg.DexLotteryEnabled = true
	cfg.DexBreakoutEnabled = true
	now := time.Now()

	pair := makePair(t, 4, 0.002, now)
	pair.PriceChange.M5 = 60
	pair.PriceChange.H1 = 8
	pair.Liquidity.Usd = 20_000
	pair.Volume.H24 = 50_000
	pair.Txns.H24.Buys = 100
	pair.Txns.H24.Sells = 40

	signals := BuildSignals([]dexmarket.Pair{pair}, cfg, now)
	require.Len(t, signals, 1)
	assert.Equal(t, state.TierLottery, signals[0].TierName)
	assert.Equal(t, 0.02, cfg.DexLotteryPositionSol)
}

func TestHoneypotGateRejectsNoSells(t *testing.T) {
	cfg := config.Default()
	now := time.Now()

	pair := makePair(t, 4, 0.002, now)
	pair.PriceChange.H1 = 10
	pair.Liquidity.Usd = 20_000
	pair.Volume.H24 = 50_000
	pair.Txns.H24.Buys = 100
	pair.Txns.H24.Sells = 0 // nobody has ever sold

	assert.Empty(t, BuildSignals([]dexmarket.Pair{pair}, cfg, now))
}

func TestTierAgeWindows(t *testing.T) {
	cfg := config.Default()
	now := time.Now()

	// 8-day-old token with standard momentum lands in established.
	pair := makePair(t, 8*24, 0.5, now)
	pair.PriceChange.H24 = 25
	pair.Liquidity.Usd = 100_000
	pair.Volume.H24 = 60_000
	pair.Txns.H24.Buys = 300
	pair.Txns.H24.Sells = 200

	signals := BuildSignals([]dexmarket.Pair{pair}, cfg, now)
	require.Len(t, signals, 1)
	assert.Equal(t, state.TierEstablished, signals[0].TierName)

	// 20-day-old token is out of every window.
	old := makePair(t, 20*24, 0.5, now)
	old.PriceChange.H24 = 25
	old.Liquidity.Usd = 100_000
	old.Volume.H24 = 60_000
	old.Txns.H24.Sells = 200
	assert.Empty(t, BuildSignals([]dexmarket.Pair{old}, cfg, now))
}

func TestEarlyTierRequiresLegitimacy(t *testing.T) {
	cfg := config.Default()
	now := time.Now()

	pair := makePair(t, 24, 0.01, now)
	pair.PriceChange.H24 = 40
	pair.Liquidity.Usd = 50_000
	pair.Volume.H24 = 30_000
	pair.Txns.H24.Buys = 200
	pair.Txns.H24.Sells = 100
	// No website/socials: legitimacy = 10 (sells exist) < default 40.
	assert.Empty(t, BuildSignals([]dexmarket.Pair{pair}, cfg, now))

	pair.Info = &dexmarket.PairInfo{
		Websites: []dexmarket.PairLink{{URL: "https://example.com"}},
		Socials:  []dexmarket.PairLink{{Type: "twitter"}},
	}

	signals := BuildSignals([]dexmarket.Pair{pair}, cfg, now)
	require.Len(t, signals, 1)
	assert.Equal(t, state.TierEarly, signals[0].TierName)
}

func TestBuildSignalsSkipsForeignChainsAndUnknownAge(t *testing.T) {
	cfg := config.Default()
	now := time.Now()

	eth := makePair(t, 4, 1, now)
	eth.ChainID = "ethereum"

	noAge := makePair(t, 4, 1, now)
	noAge.PairCreatedAt = 0

	assert.Empty(t, BuildSignals([]dexmarket.Pair{eth, noAge}, cfg, now))
}

func TestBuildSignalsSortedByMomentum(t *testing.T) {
	cfg := config.Default()
	now := time.Now()

	weak := makePair(t, 8*24, 0.5, now)
	weak.BaseToken.Address = "weak"
	weak.PriceChange.H24 = 12
	weak.Liquidity.Usd = 60_000
	weak.Volume.H24 = 30_000
	weak.Txns.H24.Sells = 50

	strong := makePair(t, 7*24, 0.5, now)
	strong.BaseToken.Address = "strong"
	strong.PriceChange.H24 = 90
	strong.PriceChange.H6 = 30
	strong.PriceChange.H1 = 10
	strong.Liquidity.Usd = 200_000
	strong.Volume.H24 = 300_000
	strong.Txns.H24.Buys = 500
	strong.Txns.H24.Sells = 300

	signals := BuildSignals([]dexmarket.Pair{weak, strong}, cfg, now)
	require.Len(t, signals, 2)
	assert.Equal(t, "strong", signals[0].TokenAddress)
}
