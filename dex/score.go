package dex

import (
	"math"

	"PulseTrader/state"
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// LegitimacyScore combines web presence, paid boosts and the honeypot
// tell-tale (sells exist) into 0-100.
func LegitimacyScore(bits state.LegitimacySignals) float64 {
	score := 0.0
	if bits.HasWebsite {
		score += 25
	}
	if bits.HasTwitter {
		score += 25
	}
	if bits.HasTelegram {
		score += 20
	}
	score += math.Min(20, 2*float64(bits.BoostCount))
	if bits.SellsExist {
		score += 10
	}
	return score
}

// MomentumScore sums the component scores described below. The raw sum can
// reach 120; negatives floor at 0.
//
//	price      <=25  24h change / 4
//	recent     <=15  1h change * 0.75
//	consistent <=15  6h and 1h agreeing
//	liquidity  <=15  log10(liq/$10k) * 7.5
//	volume     <=10  24h volume / liquidity
//	vol accel  <=5   6h volume vs 24h/4
//	buy tilt   [-10,+10]
//	organic    <=10  txns per $ of volume
//	volatility [-10,0] spike penalty
//	tier bonus [-15,+15]
func MomentumScore(sig state.DexMomentumSignal) float64 {
	priceScore := clamp(sig.Change24h/4, 0, 25)
	recentScore := clamp(sig.Change1h*0.75, 0, 15)

	consistencyScore := 0.0
	switch {
	case sig.Change6h > 0 && sig.Change1h > 0:
		consistencyScore = 15
	case sig.Change6h > 0:
		consistencyScore = 5 // trend intact, last hour fading
	}

	liqScore := 0.0
	if sig.LiquidityUsd > 0 {
		liqScore = clamp(math.Log10(sig.LiquidityUsd/10_000)*7.5, 0, 15)
	}

	volumeScore := 0.0
	if sig.LiquidityUsd > 0 {
		volumeScore = clamp(sig.Volume24h/sig.LiquidityUsd*2.5, 0, 10)
	}

	volAccelScore := 0.0
	if sig.Volume24h > 0 {
		quarterly := sig.Volume24h / 4
		if quarterly > 0 && sig.Volume6h > quarterly {
			volAccelScore = clamp((sig.Volume6h/quarterly-1)*5, 0, 5)
		}
	}

	buyScore := clamp(((sig.BuyRatio24h-0.5)+(sig.BuyRatio1h-0.5))*20, -10, 10)

	organicScore := 0.0
	if sig.Volume24h > 0 {
		// Many small transactions per dollar of volume reads as organic flow;
		// a handful of whale prints does not.
		txnsPerK := float64(sig.TxnCount24h) / (sig.Volume24h / 1000)
		organicScore = clamp(txnsPerK*2, 0, 10)
	}

	// Spike detector: a 1h move far out of line with the 6h trajectory is
	// usually a single wallet, not momentum.
	volatilityPenalty := 0.0
	scaled6h := math.Abs(sig.Change6h) / 3
	if math.Abs(sig.Change1h) > scaled6h+20 {
		volatilityPenalty = -clamp((math.Abs(sig.Change1h)-scaled6h-20)/5, 0, 10)
	}

	tierBonus := 0.0
	switch sig.TierName {
	case state.TierMicrospray, state.TierLottery, state.TierBreakout:
		tierBonus = clamp(sig.Change5m/4, -15, 15)
	case state.TierEarly:
		tierBonus = clamp((sig.Legitimacy-50)*0.3, -15, 15)
	case state.TierEstablished:
		// 7-day sweetspot: old enough to have survived, young enough to run.
		tierBonus = clamp(15-math.Abs(sig.AgeDays-7)*3, -15, 15)
	}

	total := priceScore + recentScore + consistencyScore + liqScore + volumeScore +
		volAccelScore + buyScore + organicScore + volatilityPenalty + tierBonus
	if total < 0 {
		return 0
	}
	return total
}
