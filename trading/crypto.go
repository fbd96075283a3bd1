package trading

import (
	"context"
	"fmt"
	"sort"
	"time"

	"PulseTrader/market"
	"PulseTrader/state"
)

// RunCryptoCycle is the 24/7 crypto loop: exits on held crypto, then entries
// from positive-sentiment crypto signals, strongest momentum first, vetted
// by research.
func (e *Engine) RunCryptoCycle(ctx context.Context, st *state.AgentState, account *market.Account, positions []market.Position, now time.Time) {
	heldCrypto := 0
	held := make(map[string]bool)
	for _, pos := range positions {
		if pos.AssetClass != "crypto" {
			continue
		}
		heldCrypto++
		held[pos.Symbol] = true

		pl := plPct(pos)
		reason := ""
		if pl >= st.Config.CryptoTakeProfitPct {
			reason = fmt.Sprintf("crypto take profit at %+.1f%%", pl)
		} else if pl <= -st.Config.CryptoStopLossPct {
			reason = fmt.Sprintf("crypto stop loss at %+.1f%%", pl)
		}
		if reason != "" {
			e.closeStock(ctx, st, pos, reason)
			heldCrypto--
			delete(held, pos.Symbol)
		}
	}

	maxConcurrent := len(st.Config.CryptoSymbols)
	if maxConcurrent > 3 {
		maxConcurrent = 3
	}
	if heldCrypto >= maxConcurrent {
		return
	}

	var candidates []state.Signal
	for _, sig := range st.Signals {
		if sig.IsCrypto && sig.Sentiment > 0 && !held[sig.Symbol] {
			candidates = append(candidates, sig)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].MomentumPct > candidates[j].MomentumPct
	})
	if len(candidates) > 2 {
		candidates = candidates[:2]
	}

	for _, sig := range candidates {
		if heldCrypto >= maxConcurrent {
			return
		}
		res := e.Researcher.ResearchCrypto(ctx, st, sig, sig.Price)
		if res == nil || res.Verdict != state.VerdictBuy || res.Confidence < st.Config.MinAnalystConfidence {
			continue
		}
		if e.ExecuteBuy(ctx, st, sig.Symbol, res.Confidence, account.Cash, true, res.Reasoning) {
			st.PositionEntries[sig.Symbol] = &state.PositionEntry{
				EntryTime:      now,
				EntryPrice:     sig.Price,
				EntrySentiment: sig.Sentiment,
				EntryVolume:    sig.Volume,
				Sources:        []string{sig.Source},
				Reason:         res.Reasoning,
			}
			heldCrypto++
		}
	}
}
