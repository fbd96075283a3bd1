package trading

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"PulseTrader/gather"
	"PulseTrader/logger"
	"PulseTrader/market"
	"PulseTrader/metrics"
	"PulseTrader/notify"
	"PulseTrader/research"
	"PulseTrader/state"
)

// Engine runs the stock/options/crypto trading loops against the brokerage.
type Engine struct {
	Brokerage  market.Brokerage
	Data       market.MarketData
	CryptoData market.MarketData
	Options    market.OptionsData
	Researcher *research.Researcher
	News       gather.NewsSource
	Notifier   notify.Sink
}

// plPct computes profit percent against cost basis from the brokerage view.
func plPct(pos market.Position) float64 {
	basis := pos.MarketValue - pos.UnrealizedPL
	if basis == 0 {
		return 0
	}
	return pos.UnrealizedPL / basis * 100
}

// RunAnalystCycle is the market-hours stock loop: exits first, then entries
// from researched candidates, then the batch analyst's recommendations.
func (e *Engine) RunAnalystCycle(ctx context.Context, st *state.AgentState, account *market.Account, positions []market.Position, now time.Time) {
	// Entries whose position was closed outside the agent (manually, or by
	// the brokerage) are dropped each cycle.
	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		held[p.Symbol] = true
	}
	for symbol := range st.PositionEntries {
		if !held[symbol] {
			delete(st.PositionEntries, symbol)
			delete(st.PositionResearch, symbol)
			delete(st.StalenessAnalysis, symbol)
		}
	}

	positions = e.checkStockExits(ctx, st, positions, now)

	report := e.Researcher.Analyze(ctx, st, account, positions)
	st.LastAnalystRun = now

	e.checkStockEntries(ctx, st, account, positions, now)
	if report != nil {
		e.processRecommendations(ctx, st, report, account, positions, now)
	}
}

// checkStockExits closes positions on take-profit, stop-loss or staleness.
// Returns the surviving positions.
func (e *Engine) checkStockExits(ctx context.Context, st *state.AgentState, positions []market.Position, now time.Time) []market.Position {
	// Level-1 stress trades with a tighter stop.
	stopLoss := st.Config.StopLossPct
	if st.Crisis.Level == 1 && st.Config.CrisisLevel1StopLossPct > 0 && st.Config.CrisisLevel1StopLossPct < stopLoss {
		stopLoss = st.Config.CrisisLevel1StopLossPct
	}

	var remaining []market.Position
	for _, pos := range positions {
		if pos.AssetClass == "us_option" {
			remaining = append(remaining, pos)
			continue
		}
		pl := plPct(pos)

		reason := ""
		switch {
		case pl >= st.Config.TakeProfitPct:
			reason = fmt.Sprintf("take profit at %+.1f%%", pl)
		case pl <= -stopLoss:
			reason = fmt.Sprintf("stop loss at %+.1f%%", pl)
		case st.Config.StalePositionEnabled:
			if entry, ok := st.PositionEntries[pos.Symbol]; ok {
				analysis := AnalyzeStaleness(st, pos, entry, now)
				st.StalenessAnalysis[pos.Symbol] = analysis
				if analysis.IsStale {
					reason = "stale: " + analysis.Reason
				}
			}
		}
		if reason == "" {
			remaining = append(remaining, pos)
			continue
		}
		e.closeStock(ctx, st, pos, reason)
	}
	return remaining
}

func (e *Engine) closeStock(ctx context.Context, st *state.AgentState, pos market.Position, reason string) {
	if err := e.Brokerage.ClosePosition(ctx, pos.Symbol); err != nil {
		st.AppendLog("error", "close_failed", fmt.Sprintf("%s: %v", pos.Symbol, err))
		logger.Errorf("🛑 Close failed for %s: %v", pos.Symbol, err)
		return
	}
	metrics.OrdersSubmitted.WithLabelValues("sell", pos.AssetClass).Inc()
	delete(st.PositionEntries, pos.Symbol)
	delete(st.PositionResearch, pos.Symbol)
	delete(st.StalenessAnalysis, pos.Symbol)
	st.AppendLog("info", "trade_exit", fmt.Sprintf("%s: %s", pos.Symbol, reason))
	logger.Infof("💰 Closed %s: %s", pos.Symbol, reason)
	if e.Notifier != nil {
		e.Notifier.Send(notify.AlertEvent{
			Kind:    notify.KindTradeExit,
			Message: fmt.Sprintf("Closed %s: %s", pos.Symbol, reason),
			Payload: map[string]interface{}{"symbol": pos.Symbol, "reason": reason, "pl_pct": plPct(pos)},
		})
	}
}

// checkStockEntries enters the strongest researched BUY candidates.
func (e *Engine) checkStockEntries(ctx context.Context, st *state.AgentState, account *market.Account, positions []market.Position, now time.Time) {
	if len(positions) >= st.Config.MaxPositions {
		return
	}
	if len(st.Signals) == 0 {
		return
	}

	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		held[p.Symbol] = true
	}

	type candidate struct {
		symbol     string
		confidence float64
		quality    state.EntryQuality
		reason     string
		sentiment  float64
		volume     int
		sources    []string
	}
	var candidates []candidate
	for symbol, res := range st.SignalResearch {
		if res.Verdict != state.VerdictBuy || res.Confidence < st.Config.MinAnalystConfidence {
			continue
		}
		if held[symbol] {
			continue
		}
		var sig *state.Signal
		for i := range st.Signals {
			if st.Signals[i].Symbol == symbol {
				sig = &st.Signals[i]
				break
			}
		}
		if sig != nil && sig.IsCrypto {
			continue // crypto entries run in their own engine
		}
		if !st.Config.StocksEnabled {
			continue
		}
		c := candidate{symbol: symbol, confidence: res.Confidence, quality: res.EntryQuality, reason: res.Reasoning}
		if sig != nil {
			c.sentiment = sig.WeightedSentiment
			c.volume = sig.Volume
			c.sources = []string{sig.Source}
		}
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].confidence > candidates[j].confidence })
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}

	openSlots := st.Config.MaxPositions - len(positions)
	for _, c := range candidates {
		if openSlots <= 0 {
			return
		}
		confidence := c.confidence
		if st.Config.TwitterConfirmationEnabled {
			confidence = applyTwitterConfirmation(st, c.symbol, confidence)
			if confidence < st.Config.MinAnalystConfidence {
				st.AppendLog("info", "entry_skipped",
					fmt.Sprintf("%s: confidence %.2f below threshold after news check", c.symbol, confidence))
				continue
			}
		}

		// Excellent setups with very high confidence also try an options
		// leg; a failed leg never cancels the share entry.
		if st.Config.OptionsEnabled &&
			confidence >= st.Config.OptionsMinConfidence &&
			c.quality == state.QualityExcellent {
			if err := e.TryOptionsEntry(ctx, st, c.symbol, "bullish"); err != nil {
				logger.Warnf("📜 Options entry skipped for %s: %v", c.symbol, err)
			}
		}

		if e.ExecuteBuy(ctx, st, c.symbol, confidence, account.Cash, false, c.reason) {
			st.PositionEntries[c.symbol] = &state.PositionEntry{
				EntryTime:      now,
				EntrySentiment: c.sentiment,
				EntryVolume:    c.volume,
				Sources:        c.sources,
				Reason:         c.reason,
			}
			openSlots--
		}
	}
}

// processRecommendations executes the batch analyst's SELLs and BUYs.
// SELLs honor the minimum hold window; BUYs reuse the standard buy gate.
func (e *Engine) processRecommendations(ctx context.Context, st *state.AgentState, report *state.AnalystReport, account *market.Account, positions []market.Position, now time.Time) {
	held := make(map[string]*market.Position, len(positions))
	for i := range positions {
		held[positions[i].Symbol] = &positions[i]
	}

	minHold := time.Duration(st.Config.LLMMinHoldMinutes) * time.Minute
	openCount := len(positions)

	for _, rec := range report.Recommendations {
		symbol := strings.ToUpper(rec.Symbol)
		switch rec.Action {
		case "SELL":
			pos, ok := held[symbol]
			if !ok {
				continue
			}
			if entry, ok := st.PositionEntries[symbol]; ok && now.Sub(entry.EntryTime) < minHold {
				st.AppendLog("info", "sell_deferred",
					fmt.Sprintf("%s: held %.0fm < min %dm", symbol, now.Sub(entry.EntryTime).Minutes(), st.Config.LLMMinHoldMinutes))
				continue
			}
			e.closeStock(ctx, st, *pos, "analyst: "+rec.Reasoning)
			delete(held, symbol)
			openCount--

		case "BUY":
			if held[symbol] != nil {
				continue
			}
			if _, researched := st.SignalResearch[symbol]; researched {
				continue // already handled by the entry phase
			}
			if openCount >= st.Config.MaxPositions {
				continue
			}
			if e.ExecuteBuy(ctx, st, symbol, rec.Confidence, account.Cash, false, "analyst: "+rec.Reasoning) {
				st.PositionEntries[symbol] = &state.PositionEntry{
					EntryTime: now,
					Reason:    "analyst: " + rec.Reasoning,
				}
				openCount++
			}
		}
	}
}

// ReResearchPositions refreshes the held-position research for entries older
// than the position TTL (the researcher enforces the TTL itself).
func (e *Engine) ReResearchPositions(ctx context.Context, st *state.AgentState, positions []market.Position) {
	for _, pos := range positions {
		if pos.AssetClass == "us_option" {
			continue
		}
		e.Researcher.ResearchPosition(ctx, st, pos.Symbol, pos.CurrentPrice)
	}
}

// PullHeadlines fetches breaking-news stances for held symbols, respecting
// the daily read budget.
func (e *Engine) PullHeadlines(ctx context.Context, st *state.AgentState, positions []market.Position, now time.Time) {
	if e.News == nil || !st.Config.TwitterConfirmationEnabled {
		return
	}
	if now.Sub(st.TwitterReadsResetAt) >= 24*time.Hour {
		st.TwitterReadsToday = 0
		st.TwitterReadsResetAt = now
	}
	for _, pos := range positions {
		if st.TwitterReadsToday >= st.Config.TwitterDailyReadLimit {
			return
		}
		if cached, ok := st.TwitterConfirmations[pos.Symbol]; ok && now.Sub(cached.Timestamp) < time.Hour {
			continue
		}
		headlines, err := e.News.Headlines(ctx, pos.Symbol, 3)
		st.TwitterReadsToday++
		if err != nil || len(headlines) == 0 {
			continue
		}
		sentiment := gather.LexiconSentiment(strings.Join(headlines, " "))
		stance := "neutral"
		if sentiment > 0.2 {
			stance = "confirms"
		} else if sentiment < -0.2 {
			stance = "contradicts"
		}
		st.TwitterConfirmations[pos.Symbol] = &state.TwitterConfirmation{
			Stance:    stance,
			Headline:  headlines[0],
			Timestamp: now,
		}
	}
}
