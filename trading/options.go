package trading

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"PulseTrader/logger"
	"PulseTrader/market"
	"PulseTrader/metrics"
	"PulseTrader/state"
)

// TryOptionsEntry selects and buys one contract for a directional view.
// Non-blocking for the caller: any failure is returned as an error and the
// share entry proceeds regardless.
func (e *Engine) TryOptionsEntry(ctx context.Context, st *state.AgentState, symbol, direction string) error {
	if e.Options == nil {
		return fmt.Errorf("options data provider not configured")
	}
	cfg := st.Config

	expirations, err := e.Options.GetExpirations(ctx, symbol)
	if err != nil {
		return fmt.Errorf("expirations fetch failed: %w", err)
	}
	now := time.Now()
	var inWindow []time.Time
	for _, exp := range expirations {
		dte := int(exp.Sub(now).Hours() / 24)
		if dte >= cfg.OptionsMinDTE && dte <= cfg.OptionsMaxDTE {
			inWindow = append(inWindow, exp)
		}
	}
	if len(inWindow) == 0 {
		return fmt.Errorf("no expirations in %d-%d DTE", cfg.OptionsMinDTE, cfg.OptionsMaxDTE)
	}
	midDTE := float64(cfg.OptionsMinDTE+cfg.OptionsMaxDTE) / 2
	sort.Slice(inWindow, func(i, j int) bool {
		di := math.Abs(inWindow[i].Sub(now).Hours()/24 - midDTE)
		dj := math.Abs(inWindow[j].Sub(now).Hours()/24 - midDTE)
		return di < dj
	})
	expiration := inWindow[0]

	chain, err := e.Options.GetChain(ctx, symbol, expiration)
	if err != nil {
		return fmt.Errorf("chain fetch failed: %w", err)
	}
	contracts := chain.Calls
	if direction == "bearish" {
		contracts = chain.Puts
	}
	if len(contracts) == 0 {
		return fmt.Errorf("empty %s chain", direction)
	}

	snap, err := e.Data.GetSnapshot(ctx, symbol)
	if err != nil {
		return fmt.Errorf("underlying snapshot failed: %w", err)
	}
	underlying := snap.LatestPrice
	if underlying <= 0 {
		return fmt.Errorf("no underlying price")
	}

	// Target strike biased toward the configured delta band: 0.6% OTM per
	// 0.10 of delta below a 0.50-delta ATM strike.
	targetDelta := (cfg.OptionsMinDelta + cfg.OptionsMaxDelta) / 2
	bias := (0.5 - targetDelta) * 0.06
	target := underlying * (1 + bias)
	if direction == "bearish" {
		target = underlying * (1 - bias)
	}
	sort.Slice(contracts, func(i, j int) bool {
		return math.Abs(contracts[i].Strike-target) < math.Abs(contracts[j].Strike-target)
	})

	account, err := e.Brokerage.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("account fetch failed: %w", err)
	}

	limit := 5
	if len(contracts) < limit {
		limit = len(contracts)
	}
	for _, contract := range contracts[:limit] {
		osnap, err := e.Options.GetOptionSnapshot(ctx, contract.Symbol)
		if err != nil {
			continue
		}
		delta := math.Abs(osnap.Delta)
		if delta < cfg.OptionsMinDelta || delta > cfg.OptionsMaxDelta {
			continue
		}
		if osnap.Bid <= 0 || osnap.Ask <= 0 {
			continue
		}
		if (osnap.Ask-osnap.Bid)/osnap.Ask > 0.10 {
			continue // spread too wide to trade
		}

		midPrice := (osnap.Bid + osnap.Ask) / 2
		maxContracts := int(account.Equity * cfg.OptionsMaxPctPerTrade / 100 / (midPrice * 100))
		if maxContracts < 1 {
			return fmt.Errorf("equity too small for one contract of %s", contract.Symbol)
		}

		_, err = e.Brokerage.CreateOrder(ctx, market.OrderRequest{
			Symbol:      contract.Symbol,
			Qty:         float64(maxContracts),
			Side:        "buy",
			Type:        "limit",
			TimeInForce: "day",
			LimitPrice:  math.Round(midPrice*100) / 100,
		})
		if err != nil {
			return fmt.Errorf("options order failed: %w", err)
		}
		metrics.OrdersSubmitted.WithLabelValues("buy", "us_option").Inc()
		st.AppendLog("info", "options_entry",
			fmt.Sprintf("%s x%d @ %.2f (delta %.2f)", contract.Symbol, maxContracts, midPrice, osnap.Delta))
		logger.Infof("📜 Options entry: %s x%d @ %.2f", contract.Symbol, maxContracts, midPrice)
		return nil
	}
	return fmt.Errorf("no contract passed the delta/spread filters")
}

// CheckOptionsExits applies the fixed options TP/SL against entry price.
func (e *Engine) CheckOptionsExits(ctx context.Context, st *state.AgentState, positions []market.Position) {
	for _, pos := range positions {
		if pos.AssetClass != "us_option" {
			continue
		}
		if pos.AvgEntryPrice <= 0 {
			continue
		}
		pl := (pos.CurrentPrice - pos.AvgEntryPrice) / pos.AvgEntryPrice * 100
		reason := ""
		if pl >= st.Config.OptionsTakeProfitPct {
			reason = fmt.Sprintf("options take profit at %+.1f%%", pl)
		} else if pl <= -st.Config.OptionsStopLossPct {
			reason = fmt.Sprintf("options stop loss at %+.1f%%", pl)
		}
		if reason == "" {
			continue
		}
		e.closeStock(ctx, st, pos, reason)
	}
}
