package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"PulseTrader/logger"
	"PulseTrader/state"
)

// planMaxAge discards plans that somehow survive past the open.
const planMaxAge = 600 * time.Second

// buildPremarketPlan researches the strongest signals and stores the
// analyst's plan for execution at the open.
func (a *Agent) buildPremarketPlan(ctx context.Context, now time.Time) error {
	st := a.State
	a.Researcher.ResearchTopSignals(ctx, st, 10)

	account, positions, err := a.fetchAccountAndPositions(ctx)
	if err != nil {
		return err
	}
	report := a.Researcher.Analyze(ctx, st, account, positions)
	if report == nil {
		return fmt.Errorf("analyst returned no plan")
	}

	st.PremarketPlan = &state.PremarketPlan{CreatedAt: now, Report: report}
	st.AppendLog("info", "premarket_plan",
		fmt.Sprintf("%d recommendations: %s", len(report.Recommendations), report.MarketSummary))
	logger.Infof("🌅 Pre-market plan built with %d recommendations", len(report.Recommendations))
	return nil
}

// executePremarketPlan runs the plan once at the open: SELLs first, then
// BUYs under the position cap. Stale plans are discarded unexecuted.
func (a *Agent) executePremarketPlan(ctx context.Context, now time.Time) error {
	st := a.State
	plan := st.PremarketPlan
	st.PremarketPlan = nil

	if plan == nil || plan.Report == nil {
		return nil
	}
	if now.Sub(plan.CreatedAt) > planMaxAge {
		st.AppendLog("warn", "premarket_plan_stale",
			fmt.Sprintf("plan aged %.0fs, discarded", now.Sub(plan.CreatedAt).Seconds()))
		return nil
	}

	account, positions, err := a.fetchAccountAndPositions(ctx)
	if err != nil {
		return err
	}
	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		held[p.Symbol] = true
	}
	openCount := len(positions)

	for _, rec := range plan.Report.Recommendations {
		if rec.Action != "SELL" {
			continue
		}
		symbol := strings.ToUpper(rec.Symbol)
		if !held[symbol] {
			continue
		}
		if err := a.Brokerage.ClosePosition(ctx, symbol); err != nil {
			logger.Errorf("🌅 Plan SELL failed for %s: %v", symbol, err)
			continue
		}
		delete(st.PositionEntries, symbol)
		delete(held, symbol)
		openCount--
		st.AppendLog("info", "trade_exit", fmt.Sprintf("%s: pre-market plan: %s", symbol, rec.Reasoning))
	}

	for _, rec := range plan.Report.Recommendations {
		if rec.Action != "BUY" {
			continue
		}
		symbol := strings.ToUpper(rec.Symbol)
		if held[symbol] || openCount >= st.Config.MaxPositions {
			continue
		}
		if a.Trade.ExecuteBuy(ctx, st, symbol, rec.Confidence, account.Cash, false, "pre-market plan: "+rec.Reasoning) {
			st.PositionEntries[symbol] = &state.PositionEntry{
				EntryTime: now,
				Reason:    "pre-market plan: " + rec.Reasoning,
			}
			held[symbol] = true
			openCount++
		}
	}

	st.AppendLog("info", "premarket_executed", plan.Report.MarketSummary)
	logger.Info("🌅 Pre-market plan executed")
	return nil
}
