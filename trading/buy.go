package trading

import (
	"context"
	"fmt"
	"math"
	"strings"

	"PulseTrader/crisis"
	"PulseTrader/logger"
	"PulseTrader/market"
	"PulseTrader/metrics"
	"PulseTrader/notify"
	"PulseTrader/state"
)

// ExecuteBuy is the single buy contract for stocks and crypto. Any
// pre-flight failure logs a buy_blocked event and returns false with no
// mutation anywhere.
func (e *Engine) ExecuteBuy(ctx context.Context, st *state.AgentState, symbol string, confidence float64, cash float64, isCrypto bool, reason string) bool {
	blocked := func(why string) bool {
		st.AppendLog("warn", "buy_blocked", fmt.Sprintf("%s: %s", symbol, why))
		logger.Warnf("🛑 Buy blocked for %s: %s", symbol, why)
		return false
	}

	if strings.TrimSpace(symbol) == "" {
		return blocked("empty symbol")
	}
	if cash <= 0 {
		return blocked("no cash available")
	}
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) || confidence <= 0 || confidence > 1 {
		return blocked(fmt.Sprintf("confidence %v out of range", confidence))
	}
	if st.Crisis.Level >= 2 && !st.Crisis.ManualOverride {
		return blocked(fmt.Sprintf("crisis level %d", st.Crisis.Level))
	}

	// OTC feeds produce pathological quotes; only major exchanges trade.
	if !isCrypto {
		asset, err := e.Brokerage.GetAsset(ctx, symbol)
		if err != nil {
			return blocked(fmt.Sprintf("asset lookup failed: %v", err))
		}
		allowed := false
		for _, ex := range st.Config.AllowedExchanges {
			if strings.EqualFold(asset.Exchange, ex) {
				allowed = true
				break
			}
		}
		if !allowed {
			return blocked(fmt.Sprintf("exchange %q not allowed", asset.Exchange))
		}
	}

	sizePct := math.Min(20, st.Config.PositionSizePctOfCash)
	multiplier := crisis.Multiplier(st.Crisis.Level)
	if st.Crisis.Level == 1 && st.Config.CrisisLevel1SizeReductionPct > 0 {
		multiplier = (100 - st.Config.CrisisLevel1SizeReductionPct) / 100
	}
	if st.Crisis.ManualOverride {
		multiplier = 1.0
	}
	maxValue := st.Config.MaxPositionValue
	if isCrypto && st.Config.CryptoMaxPositionValue > 0 {
		maxValue = st.Config.CryptoMaxPositionValue
	}
	positionUsd := math.Min(cash*sizePct/100*confidence*multiplier, maxValue*multiplier)

	if math.IsNaN(positionUsd) || math.IsInf(positionUsd, 0) {
		return blocked("position size not finite")
	}
	if positionUsd < 10 {
		return blocked(fmt.Sprintf("position size $%.2f below minimum", positionUsd))
	}
	if positionUsd > maxValue*1.01 {
		return blocked(fmt.Sprintf("position size $%.2f exceeds cap $%.2f", positionUsd, maxValue))
	}

	tif := "day"
	assetClass := "us_equity"
	if isCrypto {
		tif = "gtc"
		assetClass = "crypto"
	}
	notional := math.Round(positionUsd*100) / 100

	_, err := e.Brokerage.CreateOrder(ctx, market.OrderRequest{
		Symbol:      symbol,
		Notional:    notional,
		Side:        "buy",
		Type:        "market",
		TimeInForce: tif,
	})
	if err != nil {
		st.AppendLog("error", "buy_failed", fmt.Sprintf("%s: %v", symbol, err))
		logger.Errorf("🛑 Buy order failed for %s: %v", symbol, err)
		return false
	}

	metrics.OrdersSubmitted.WithLabelValues("buy", assetClass).Inc()
	st.AppendLog("info", "trade_entry", fmt.Sprintf("%s $%.2f (confidence %.2f): %s", symbol, notional, confidence, reason))
	logger.Infof("✅ Bought %s for $%.2f (confidence %.2f)", symbol, notional, confidence)
	if e.Notifier != nil {
		e.Notifier.Send(notify.AlertEvent{
			Kind:    notify.KindTradeEntry,
			Message: fmt.Sprintf("Bought %s for $%.2f", symbol, notional),
			Payload: map[string]interface{}{"symbol": symbol, "notional": notional, "confidence": confidence, "reason": reason},
		})
	}
	return true
}

// applyTwitterConfirmation nudges confidence by the cached breaking-news
// stance: confirmation boosts 15% (capped at 1.0), contradiction trims 15%.
func applyTwitterConfirmation(st *state.AgentState, symbol string, confidence float64) float64 {
	conf, ok := st.TwitterConfirmations[symbol]
	if !ok {
		return confidence
	}
	switch conf.Stance {
	case "confirms":
		return math.Min(1.0, confidence*1.15)
	case "contradicts":
		return confidence * 0.85
	}
	return confidence
}
