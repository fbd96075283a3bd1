package dex

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"PulseTrader/config"
	"PulseTrader/logger"
	"PulseTrader/metrics"
	"PulseTrader/notify"
	"PulseTrader/state"
)

// minViableSizeSol is the floor below which a concentration-capped entry is
// not worth the gas.
const minViableSizeSol = 0.01

// missedScanLimit forces a lost_momentum exit on a red position the scanner
// has stopped seeing.
const missedScanLimit = 10

// Engine owns the DEX paper book: entries, exits, cooldowns, circuit
// breaker and drawdown guard. All prices inside one Run come from the same
// signal snapshot and the same SOL/USD value.
type Engine struct {
	Chart    *ChartGate
	Notifier notify.Sink
}

// Run executes one DEX cycle: exits first, then gated entries.
func (e *Engine) Run(ctx context.Context, st *state.AgentState, solUsd float64, now time.Time) {
	cfg := st.Config
	book := &st.Dex
	if !cfg.DexEnabled || len(book.Signals) == 0 {
		return
	}

	bySymbol := signalIndex(book.Signals)

	e.checkExits(st, bySymbol, solUsd, now)

	if len(book.Positions) >= cfg.DexMaxPositions {
		return
	}
	if !e.breakerAllows(st, bySymbol, now) {
		return
	}
	if book.DrawdownPaused {
		return
	}

	// Stale cooldown records fall off after a day regardless of outcome.
	for token, rec := range book.StopLossCooldowns {
		if now.Sub(rec.ExitTime) > 24*time.Hour {
			delete(book.StopLossCooldowns, token)
		}
	}

	// Candidates: strong momentum, not held, past the cooldown gate.
	var candidates []state.DexMomentumSignal
	for _, sig := range book.Signals {
		if sig.MomentumScore < cfg.DexMinMomentumScore {
			continue
		}
		if _, held := book.Positions[sig.TokenAddress]; held {
			continue
		}
		if !e.cooldownAllows(st, sig, now) {
			continue
		}
		candidates = append(candidates, sig)
		if len(candidates) == 3 {
			break
		}
	}

	for _, sig := range candidates {
		if len(book.Positions) >= cfg.DexMaxPositions {
			return
		}
		e.tryEnter(ctx, st, sig, solUsd, now)
	}
}

func signalIndex(signals []state.DexMomentumSignal) map[string]*state.DexMomentumSignal {
	idx := make(map[string]*state.DexMomentumSignal, len(signals))
	for i := range signals {
		idx[signals[i].TokenAddress] = &signals[i]
	}
	return idx
}

// ============================================================================
// Circuit breaker
// ============================================================================

// breakerAllows reports whether new entries may proceed, clearing the
// breaker early when an open position recovered or a fresh signal is strong
// enough to justify re-entry.
func (e *Engine) breakerAllows(st *state.AgentState, bySymbol map[string]*state.DexMomentumSignal, now time.Time) bool {
	book := &st.Dex
	cfg := st.Config
	if !book.CircuitBreakerUntil.After(now) {
		return true
	}

	minCooldown := time.Duration(cfg.DexBreakerMinCooldownMinutes * float64(time.Minute))
	if now.Before(book.CircuitBreakerArmed.Add(minCooldown)) {
		return false
	}

	recovered := false
	for token, pos := range book.Positions {
		if sig, ok := bySymbol[token]; ok && sig.PriceUsd > pos.EntryPrice {
			recovered = true
			break
		}
	}
	strongSignal := false
	if !recovered {
		for _, sig := range book.Signals {
			if _, held := book.Positions[sig.TokenAddress]; held {
				continue
			}
			if sig.MomentumScore >= cfg.DexReentryMinMomentum {
				strongSignal = true
				break
			}
		}
	}
	if !recovered && !strongSignal {
		return false
	}

	book.CircuitBreakerUntil = time.Time{}
	book.RecentStopLosses = nil
	reason := "open position recovered"
	if strongSignal {
		reason = "strong re-entry signal"
	}
	st.AppendLog("info", "circuit_breaker_cleared", reason)
	logger.Infof("⚡ Circuit breaker cleared early: %s", reason)
	metrics.DexCircuitBreakerActive.Set(0)
	return true
}

// ============================================================================
// Cooldown gate
// ============================================================================

// cooldownAllows applies the price-based re-entry gate. Passing the gate
// deletes the cooldown record.
func (e *Engine) cooldownAllows(st *state.AgentState, sig state.DexMomentumSignal, now time.Time) bool {
	book := &st.Dex
	cfg := st.Config
	rec, ok := book.StopLossCooldowns[sig.TokenAddress]
	if !ok {
		return true
	}

	clear := func(event, msg string) bool {
		delete(book.StopLossCooldowns, sig.TokenAddress)
		st.AppendLog("info", event, msg)
		logger.Infof("🔓 %s", msg)
		return true
	}

	if rec.ExitPrice > 0 && sig.PriceUsd >= rec.ExitPrice*(1+cfg.DexReentryRecoveryPct/100) {
		return clear("cooldown_cleared_price_recovery",
			fmt.Sprintf("%s recovered to %.6g (exit %.6g)", sig.Symbol, sig.PriceUsd, rec.ExitPrice))
	}
	if sig.MomentumScore >= cfg.DexReentryMinMomentum && now.Sub(rec.ExitTime) >= 5*time.Minute {
		return clear("cooldown_cleared_momentum",
			fmt.Sprintf("%s momentum %.0f with %.0fm elapsed", sig.Symbol, sig.MomentumScore, now.Sub(rec.ExitTime).Minutes()))
	}
	if !now.Before(rec.FallbackExpiry) {
		return clear("cooldown_expired", fmt.Sprintf("%s cooldown expired", sig.Symbol))
	}
	return false
}

// ============================================================================
// Entries
// ============================================================================

func (e *Engine) tryEnter(ctx context.Context, st *state.AgentState, sig state.DexMomentumSignal, solUsd float64, now time.Time) {
	cfg := st.Config
	book := &st.Dex

	// Per-tier concurrency caps apply to the high-churn tiers.
	switch sig.TierName {
	case state.TierMicrospray:
		if book.TierCount(state.TierMicrospray) >= cfg.DexMicrosprayMaxPositions {
			return
		}
	case state.TierBreakout:
		if book.TierCount(state.TierBreakout) >= cfg.DexBreakoutMaxPositions {
			return
		}
	case state.TierLottery:
		if book.TierCount(state.TierLottery) >= cfg.DexLotteryMaxPositions {
			return
		}
	}

	// Chart gate. Provider trouble never rejects; a scored read below the
	// threshold does.
	if cfg.DexChartAnalysisEnabled && e.Chart != nil && e.Chart.Provider != nil {
		analysis, err := e.Chart.Analyze(ctx, sig.PairAddress, sig.AgeHours)
		if err != nil {
			logger.Warnf("📉 Chart gate unavailable for %s: %v", sig.Symbol, err)
		} else if analysis != nil && analysis.EntryScore < cfg.DexChartMinEntryScore {
			st.AppendLog("info", "dex_entry_rejected",
				fmt.Sprintf("%s chart entry score %.0f below %.0f", sig.Symbol, analysis.EntryScore, cfg.DexChartMinEntryScore))
			return
		}
	}

	size := e.tierSize(st, sig.TierName)
	if size <= 0 {
		return
	}

	// Concentration cap against total book value.
	openValueSol := 0.0
	bySymbol := signalIndex(book.Signals)
	for token, pos := range book.Positions {
		price := pos.EntryPrice
		if s, ok := bySymbol[token]; ok {
			price = s.PriceUsd
		}
		openValueSol += pos.TokenAmount * price / solUsd
	}
	maxSize := (book.PaperBalanceSol + openValueSol) * cfg.DexMaxSinglePositionPct / 100
	if size > maxSize {
		if maxSize < minViableSizeSol {
			st.AppendLog("info", "dex_entry_rejected",
				fmt.Sprintf("%s concentration cap leaves %.4f SOL, below viable minimum", sig.Symbol, maxSize))
			return
		}
		size = maxSize
	}

	// The paper balance must survive size plus gas; a trade that would push
	// it negative is rejected before any mutation.
	if book.PaperBalanceSol < size+cfg.DexGasFeeSol {
		st.AppendLog("warn", "dex_entry_rejected",
			fmt.Sprintf("%s insufficient paper balance %.4f for %.4f + gas", sig.Symbol, book.PaperBalanceSol, size))
		return
	}

	positionUsd := size * solUsd
	slip := Slippage(cfg.DexSlippageModel, positionUsd, sig.LiquidityUsd)
	entryPrice := sig.PriceUsd * (1 + slip)
	if entryPrice <= 0 || math.IsNaN(entryPrice) {
		return
	}
	tokenAmount := positionUsd / entryPrice

	book.Positions[sig.TokenAddress] = &state.DexPosition{
		TokenAddress:   sig.TokenAddress,
		Symbol:         sig.Symbol,
		EntryPrice:     entryPrice,
		EntrySol:       size,
		EntryTime:      now,
		TokenAmount:    tokenAmount,
		PeakPrice:      entryPrice,
		EntryMomentum:  sig.MomentumScore,
		EntryLiquidity: sig.LiquidityUsd,
		TierName:       sig.TierName,
	}
	book.PaperBalanceSol -= size
	book.PaperBalanceSol -= cfg.DexGasFeeSol

	metrics.DexOpenPositions.Set(float64(len(book.Positions)))
	metrics.DexPaperBalance.Set(book.PaperBalanceSol)
	st.AppendLog("info", "dex_entry", fmt.Sprintf("%s [%s] %.4f SOL @ %.6g (momentum %.0f, slippage %.2f%%)",
		sig.Symbol, sig.TierName, size, entryPrice, sig.MomentumScore, slip*100))
	logger.Infof("🪙 DEX entry: %s [%s] %.4f SOL @ %.6g", sig.Symbol, sig.TierName, size, entryPrice)
	if e.Notifier != nil {
		e.Notifier.Send(notify.AlertEvent{
			Kind:    notify.KindTradeEntry,
			Message: fmt.Sprintf("DEX entry %s (%s) %.4f SOL", sig.Symbol, sig.TierName, size),
			Payload: map[string]interface{}{"symbol": sig.Symbol, "tier": string(sig.TierName), "size_sol": size},
		})
	}
}

// tierSize returns the SOL size for a tier. Fixed sizes for the high-churn
// tiers, balance-proportional for early/established.
func (e *Engine) tierSize(st *state.AgentState, tier state.Tier) float64 {
	cfg := st.Config
	book := &st.Dex
	switch tier {
	case state.TierMicrospray:
		return cfg.DexMicrosprayPositionSol
	case state.TierBreakout:
		return cfg.DexBreakoutPositionSol
	case state.TierLottery:
		return cfg.DexLotteryPositionSol
	case state.TierEarly:
		size := book.PaperBalanceSol * (cfg.DexPositionSizePct / 100) * (cfg.DexEarlyPositionSizePct / 100)
		return math.Min(size, cfg.DexMaxPositionSol)
	case state.TierEstablished:
		size := book.PaperBalanceSol * cfg.DexPositionSizePct / 100
		return math.Min(size, cfg.DexMaxPositionSol)
	}
	return 0
}

// ============================================================================
// Exits
// ============================================================================

func (e *Engine) checkExits(st *state.AgentState, bySymbol map[string]*state.DexMomentumSignal, solUsd float64, now time.Time) {
	cfg := st.Config
	book := &st.Dex

	for token, pos := range book.Positions {
		sig := bySymbol[token]

		currentPrice := pos.EntryPrice
		liquidity := pos.EntryLiquidity
		momentum := pos.EntryMomentum
		if sig != nil {
			currentPrice = sig.PriceUsd
			liquidity = sig.LiquidityUsd
			momentum = sig.MomentumScore
		}
		if currentPrice > pos.PeakPrice {
			pos.PeakPrice = currentPrice
		}
		pl := (currentPrice - pos.EntryPrice) / pos.EntryPrice * 100

		// A position too large for the pool cannot exit cleanly; the
		// lost-momentum exits wait for that, the trailing and fixed stops do not.
		positionValueUsd := pos.TokenAmount * currentPrice
		liquiditySafe := liquidity <= 0 || positionValueUsd/liquidity < 0.2

		// a) Scanner dropped the token.
		if sig == nil {
			pos.MissedScans++
			if pl <= 0 && pos.MissedScans >= missedScanLimit && liquiditySafe {
				e.executeExit(st, pos, currentPrice, liquidity, solUsd, state.ExitLostMomentum, now)
				continue
			}
		} else {
			pos.MissedScans = 0
		}

		// b) Momentum decay while underwater.
		if sig != nil && pos.EntryMomentum > 0 && momentum < 0.4*pos.EntryMomentum {
			if pl < 0 && liquiditySafe {
				e.executeExit(st, pos, currentPrice, liquidity, solUsd, state.ExitLostMomentum, now)
				continue
			}
			st.AppendLog("info", "dex_momentum_decay",
				fmt.Sprintf("%s momentum %.0f vs entry %.0f, P&L %+.1f%%, holding", pos.Symbol, momentum, pos.EntryMomentum, pl))
		}

		// c) Trailing stop. Arming needs a meaningful peak: a recorded peak
		// below entry*1.05 is a tracking artifact, not a gain.
		activation := cfg.DexTrailingStopActivationPct
		distance := cfg.DexTrailingStopDistancePct
		switch pos.TierName {
		case state.TierMicrospray, state.TierBreakout, state.TierLottery:
			activation = cfg.DexLotteryTrailingActivation
			distance = 20
		}
		peakGainPct := (pos.PeakPrice - pos.EntryPrice) / pos.EntryPrice * 100
		armed := peakGainPct >= activation && pos.PeakPrice >= pos.EntryPrice*1.05
		if armed && currentPrice <= pos.PeakPrice*(1-distance/100) {
			e.executeExit(st, pos, currentPrice, liquidity, solUsd, state.ExitTrailingStop, now)
			continue
		}

		// d) Fixed stop loss, regardless of liquidity safety.
		if pl <= -tierStopLoss(cfg, pos.TierName) {
			e.executeExit(st, pos, currentPrice, liquidity, solUsd, state.ExitStopLoss, now)
		}
	}
}

// tierStopLoss picks the tier's stop distance, falling back to the global
// one when the tier key is unset.
func tierStopLoss(cfg config.AgentConfig, tier state.Tier) float64 {
	var sl float64
	switch tier {
	case state.TierMicrospray:
		sl = cfg.DexMicrosprayStopLossPct
	case state.TierBreakout:
		sl = cfg.DexBreakoutStopLossPct
	case state.TierLottery:
		sl = cfg.DexLotteryStopLossPct
	case state.TierEarly:
		sl = cfg.DexEarlyStopLossPct
	case state.TierEstablished:
		sl = cfg.DexEstablishedStopLossPct
	}
	if sl <= 0 {
		sl = cfg.DexStopLossPct
	}
	return sl
}

// executeExit closes one position: cooldown record, slippage, ledger append,
// balance update, streaks, breaker arming, map delete. The ledger append and
// the map delete are one atomic pair.
func (e *Engine) executeExit(st *state.AgentState, pos *state.DexPosition, signalPrice, liquidity, solUsd float64, reason state.ExitReason, now time.Time) {
	cfg := st.Config
	book := &st.Dex

	if reason == state.ExitStopLoss || reason == state.ExitTrailingStop {
		book.StopLossCooldowns[pos.TokenAddress] = &state.CooldownRecord{
			ExitPrice:      signalPrice,
			ExitTime:       now,
			FallbackExpiry: now.Add(time.Duration(cfg.DexStopLossCooldownHours * float64(time.Hour))),
		}
	}

	positionUsd := pos.TokenAmount * signalPrice
	slip := Slippage(cfg.DexSlippageModel, positionUsd, liquidity)
	exitPrice := signalPrice * (1 - slip)
	actualPlPct := (exitPrice - pos.EntryPrice) / pos.EntryPrice * 100
	pnlSol := pos.EntrySol * actualPlPct / 100

	book.TradeHistory = append(book.TradeHistory, state.DexTradeRecord{
		ID:           uuid.New().String(),
		TokenAddress: pos.TokenAddress,
		Symbol:       pos.Symbol,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    exitPrice,
		EntrySol:     pos.EntrySol,
		EntryTime:    pos.EntryTime,
		ExitTime:     now,
		PnLPct:       actualPlPct,
		PnLSol:       pnlSol,
		Reason:       reason,
		TierName:     pos.TierName,
	})

	book.RealizedPnLSol += pnlSol
	book.PaperBalanceSol += pos.EntrySol + pnlSol - cfg.DexGasFeeSol
	if book.PaperBalanceSol < 0 {
		// Gas on a near-total loss can overshoot; the paper book floors at
		// zero rather than going margin-negative.
		book.PaperBalanceSol = 0
	}
	book.RecordOutcome(pnlSol)

	if reason == state.ExitStopLoss {
		book.RecentStopLosses = append(book.RecentStopLosses, now)
		window := time.Duration(cfg.DexCircuitBreakerWindowHours * float64(time.Hour))
		recent := book.RecentStopLosses[:0]
		for _, t := range book.RecentStopLosses {
			if now.Sub(t) <= window {
				recent = append(recent, t)
			}
		}
		book.RecentStopLosses = recent
		if len(recent) >= cfg.DexCircuitBreakerLosses && !book.CircuitBreakerUntil.After(now) {
			book.CircuitBreakerUntil = now.Add(time.Duration(cfg.DexCircuitBreakerPauseHours * float64(time.Hour)))
			book.CircuitBreakerArmed = now
			st.AppendLog("warn", "circuit_breaker_armed",
				fmt.Sprintf("%d stop losses within %.0fh, pausing entries until %s",
					len(recent), cfg.DexCircuitBreakerWindowHours, book.CircuitBreakerUntil.Format(time.RFC3339)))
			logger.Warnf("⚡ Circuit breaker armed until %s", book.CircuitBreakerUntil.Format(time.RFC3339))
			metrics.DexCircuitBreakerActive.Set(1)
		}
	}

	delete(book.Positions, pos.TokenAddress)

	metrics.DexTradesTotal.WithLabelValues(string(reason), string(pos.TierName)).Inc()
	metrics.DexOpenPositions.Set(float64(len(book.Positions)))
	metrics.DexPaperBalance.Set(book.PaperBalanceSol)
	metrics.DexRealizedPnL.Set(book.RealizedPnLSol)

	st.AppendLog("info", "dex_exit", fmt.Sprintf("%s [%s] %s: %+.1f%% (%+.4f SOL)",
		pos.Symbol, pos.TierName, reason, actualPlPct, pnlSol))
	logger.Infof("🪙 DEX exit: %s [%s] %s %+.1f%% (%+.4f SOL)", pos.Symbol, pos.TierName, reason, actualPlPct, pnlSol)
	if e.Notifier != nil {
		e.Notifier.Send(notify.AlertEvent{
			Kind:    notify.KindTradeExit,
			Message: fmt.Sprintf("DEX exit %s (%s) %+.1f%%", pos.Symbol, reason, actualPlPct),
			Payload: map[string]interface{}{"symbol": pos.Symbol, "reason": string(reason), "pnl_sol": pnlSol},
		})
	}
}

// LiquidateAll closes every open position at its latest known price with a
// manual exit reason (crisis Level 3 action).
func (e *Engine) LiquidateAll(st *state.AgentState, solUsd float64, now time.Time) {
	bySymbol := signalIndex(st.Dex.Signals)
	for token, pos := range st.Dex.Positions {
		price := pos.EntryPrice
		liquidity := pos.EntryLiquidity
		if sig, ok := bySymbol[token]; ok {
			price = sig.PriceUsd
			liquidity = sig.LiquidityUsd
		}
		e.executeExit(st, pos, price, liquidity, solUsd, state.ExitManual, now)
	}
}

// Snapshot appends the portfolio history point and drives the drawdown
// guard.
func (e *Engine) Snapshot(st *state.AgentState, solUsd float64, now time.Time) {
	book := &st.Dex
	bySymbol := signalIndex(book.Signals)

	positionValueSol := 0.0
	for token, pos := range book.Positions {
		price := pos.EntryPrice
		if sig, ok := bySymbol[token]; ok {
			price = sig.PriceUsd
		}
		positionValueSol += pos.TokenAmount * price / solUsd
	}

	total := book.PaperBalanceSol + positionValueSol
	drawdown, lifted := book.AppendSnapshot(state.PortfolioSnapshot{
		Timestamp:        now,
		TotalValueSol:    total,
		PaperBalanceSol:  book.PaperBalanceSol,
		PositionValueSol: positionValueSol,
		RealizedPnLSol:   book.RealizedPnLSol,
	}, st.Config.DexMaxDrawdownPct)

	if lifted {
		st.AppendLog("info", "drawdown_pause_lifted", fmt.Sprintf("new high water mark %.4f SOL", total))
		logger.Infof("🌊 Drawdown pause lifted at %.4f SOL", total)
	} else if book.DrawdownPaused && drawdown >= st.Config.DexMaxDrawdownPct {
		st.AppendLog("warn", "drawdown_paused",
			fmt.Sprintf("drawdown %.1f%% >= %.1f%%, entries paused", drawdown, st.Config.DexMaxDrawdownPct))
	}
}
