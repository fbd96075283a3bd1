package trading

import (
	"fmt"
	"math"
	"time"

	"PulseTrader/market"
	"PulseTrader/state"
)

// AnalyzeStaleness scores a held position 0-100 from four components:
// time held, price action, social-volume decay, and social silence. A
// position never scores before the minimum hold window.
func AnalyzeStaleness(st *state.AgentState, pos market.Position, entry *state.PositionEntry, now time.Time) *state.StalenessAnalysis {
	cfg := st.Config
	held := now.Sub(entry.EntryTime)
	analysis := &state.StalenessAnalysis{Timestamp: now}

	if held.Hours() < cfg.StaleMinHoldHours {
		analysis.Reason = fmt.Sprintf("held %.1fh < min %.1fh", held.Hours(), cfg.StaleMinHoldHours)
		return analysis
	}

	heldDays := held.Hours() / 24
	basis := pos.MarketValue - pos.UnrealizedPL
	plPct := 0.0
	if basis != 0 {
		plPct = pos.UnrealizedPL / basis * 100
	}

	// Time component: up to 40, linear between mid and max hold days.
	if heldDays > cfg.StaleMidHoldDays {
		span := cfg.StaleMaxHoldDays - cfg.StaleMidHoldDays
		if span <= 0 {
			analysis.TimePoints = 40
		} else {
			analysis.TimePoints = math.Min(40, (heldDays-cfg.StaleMidHoldDays)/span*40)
		}
	}

	// Price-action component: up to 30. Losses score by magnitude; a small
	// gain past mid hold is also dead money.
	if plPct < 0 {
		analysis.PricePoints = math.Min(30, math.Abs(plPct)*3)
	} else if plPct < cfg.StaleMinGainPct && heldDays > cfg.StaleMidHoldDays {
		analysis.PricePoints = 15
	}

	// Volume-decay component: up to 30 when current social volume collapsed
	// relative to entry.
	currentVolume := 0
	if latest, ok := st.LatestSocial(pos.Symbol); ok {
		currentVolume = latest.Volume
	}
	if entry.EntryVolume > 0 && float64(currentVolume) <= cfg.StaleSocialVolumeDecay*float64(entry.EntryVolume) {
		analysis.VolumePoints = 30
	}

	// Silence component: no social observation at all for N hours. Capped at
	// the remaining budget to 100.
	if latest, ok := st.LatestSocial(pos.Symbol); !ok || now.Sub(latest.Timestamp).Hours() >= cfg.StaleNoMentionHours {
		budget := 100 - analysis.TimePoints - analysis.PricePoints - analysis.VolumePoints
		analysis.SilencePoints = math.Max(0, math.Min(15, budget))
	}

	analysis.Score = analysis.TimePoints + analysis.PricePoints + analysis.VolumePoints + analysis.SilencePoints
	analysis.IsStale = analysis.Score >= 70 ||
		(heldDays >= cfg.StaleMaxHoldDays && plPct < cfg.StaleMinGainPct)
	analysis.Reason = fmt.Sprintf("score %.0f (time %.0f, price %.0f, volume %.0f, silence %.0f), held %.1fd, P&L %+.1f%%",
		analysis.Score, analysis.TimePoints, analysis.PricePoints, analysis.VolumePoints, analysis.SilencePoints, heldDays, plPct)
	return analysis
}
