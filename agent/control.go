package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PulseTrader/config"
	"PulseTrader/dex"
	"PulseTrader/logger"
	"PulseTrader/market"
	"PulseTrader/notify"
	"PulseTrader/state"
)

// Control operations. Each runs inside the loop's exclusion via Do, which
// also persists, so the single-writer property holds for the control plane.

// Enable turns the agent on.
func (a *Agent) Enable(ctx context.Context) error {
	return a.Do(ctx, func(_ context.Context, st *state.AgentState) {
		st.Enabled = true
		st.AppendLog("info", "agent_enabled", "agent enabled")
		logger.Info("▶️  Agent enabled")
	})
}

// Disable turns the agent off. Open positions are left alone.
func (a *Agent) Disable(ctx context.Context) error {
	return a.Do(ctx, func(_ context.Context, st *state.AgentState) {
		st.Enabled = false
		st.AppendLog("info", "agent_disabled", "agent disabled")
		logger.Info("⏸️  Agent disabled")
	})
}

// Kill is the hard stop: disable, clear the signal cache and plan, keep the
// ledger and open positions.
func (a *Agent) Kill(ctx context.Context) error {
	return a.Do(ctx, func(_ context.Context, st *state.AgentState) {
		st.Enabled = false
		st.Signals = nil
		st.PremarketPlan = nil
		st.AppendLog("warn", "kill_switch_activated", "kill switch activated")
		logger.Warn("☠️  Kill switch activated")
		if a.Notifier != nil {
			a.Notifier.Send(notify.AlertEvent{
				Kind:    notify.KindKillSwitch,
				Message: "Kill switch activated",
			})
		}
	})
}

// PatchConfig shallow-merges a JSON patch into the config. Returns the
// resulting config and whether the LLM selector changed (the caller
// re-initializes the provider).
func (a *Agent) PatchConfig(ctx context.Context, patch json.RawMessage) (config.AgentConfig, bool, error) {
	var out config.AgentConfig
	llmChanged := false
	var patchErr error
	err := a.Do(ctx, func(_ context.Context, st *state.AgentState) {
		next, notes, err := config.Patch(st.Config, patch)
		if err != nil {
			patchErr = err
			return
		}
		llmChanged = next.LLMProvider != st.Config.LLMProvider ||
			next.LLMBaseURL != st.Config.LLMBaseURL
		st.Config = next
		out = next
		for _, note := range notes {
			st.AppendLog("warn", "config_repair", note)
		}
		st.AppendLog("info", "config_updated", "config patched")
	})
	if err != nil {
		return out, false, err
	}
	return out, llmChanged, patchErr
}

// DexReset zeros the DEX paper book back to the configured starting balance.
func (a *Agent) DexReset(ctx context.Context) error {
	return a.Do(ctx, func(_ context.Context, st *state.AgentState) {
		st.Dex.Reset(st.Config.DexPaperStartingBalanceSol)
		st.AppendLog("info", "dex_reset",
			fmt.Sprintf("paper book reset to %.4f SOL", st.Config.DexPaperStartingBalanceSol))
		logger.Infof("🪙 DEX paper book reset to %.4f SOL", st.Config.DexPaperStartingBalanceSol)
	})
}

// DexClearCooldowns drops every re-entry cooldown.
func (a *Agent) DexClearCooldowns(ctx context.Context) error {
	return a.Do(ctx, func(_ context.Context, st *state.AgentState) {
		n := len(st.Dex.StopLossCooldowns)
		st.Dex.StopLossCooldowns = make(map[string]*state.CooldownRecord)
		st.AppendLog("info", "dex_cooldowns_cleared", fmt.Sprintf("%d cooldowns cleared", n))
	})
}

// DexClearBreaker disarms the circuit breaker.
func (a *Agent) DexClearBreaker(ctx context.Context) error {
	return a.Do(ctx, func(_ context.Context, st *state.AgentState) {
		st.Dex.CircuitBreakerUntil = time.Time{}
		st.Dex.RecentStopLosses = nil
		st.AppendLog("info", "circuit_breaker_cleared", "cleared by operator")
	})
}

// CrisisToggle sets the manual override and, while the override holds, an
// explicit level.
func (a *Agent) CrisisToggle(ctx context.Context, override bool, level *int) error {
	return a.Do(ctx, func(_ context.Context, st *state.AgentState) {
		st.Crisis.ManualOverride = override
		if override && level != nil && *level >= 0 && *level <= 3 {
			st.Crisis.Level = *level
			st.Crisis.LastLevelChange = time.Now()
		}
		st.AppendLog("info", "crisis_override",
			fmt.Sprintf("manual override %v, level %d", override, st.Crisis.Level))
	})
}

// CrisisCheckNow forces an immediate indicator fetch and re-evaluation.
func (a *Agent) CrisisCheckNow(ctx context.Context) (int, error) {
	level := 0
	err := a.Do(ctx, func(ctx context.Context, st *state.AgentState) {
		level = a.Crisis.Check(ctx, st, time.Now())
	})
	return level, err
}

// ============================================================================
// Status
// ============================================================================

// Status is the merged view served by GET /status.
type Status struct {
	Enabled   bool                                  `json:"enabled"`
	Account   *market.Account                       `json:"account"`
	Positions []market.Position                     `json:"positions"`
	Clock     *market.Clock                         `json:"clock"`
	Config    config.AgentConfig                    `json:"config"`
	Signals   []state.Signal                        `json:"signals"`
	Logs      []state.LogEntry                      `json:"logs"`
	Cost      state.CostTracker                     `json:"cost_tracker"`
	Research  map[string]*state.SignalResearch      `json:"signal_research"`
	PositionResearch map[string]*state.SignalResearch `json:"position_research"`
	Staleness map[string]*state.StalenessAnalysis   `json:"staleness_analysis"`
	Entries   map[string]*state.PositionEntry       `json:"position_entries"`
	Plan      *state.PremarketPlan                  `json:"premarket_plan"`
	Dex       DexStatus                             `json:"dex"`
	Crisis    state.CrisisState                     `json:"crisis"`
}

// DexStatus is the DEX book with live-valued positions and metrics.
type DexStatus struct {
	Book      state.DexBook          `json:"book"`
	Positions []DexPositionView      `json:"positions"`
	Metrics   dex.PerformanceMetrics `json:"metrics"`
}

// DexPositionView is an open position marked to the latest signal price.
type DexPositionView struct {
	state.DexPosition
	CurrentPrice float64 `json:"current_price"`
	PnLPct       float64 `json:"pnl_pct"`
	ValueSol     float64 `json:"value_sol"`
}

// BuildStatus assembles the status snapshot. Provider reads happen outside
// the exclusion; the state copy happens inside it.
func (a *Agent) BuildStatus(ctx context.Context) (*Status, error) {
	cctx, cancel := context.WithTimeout(ctx, providerDeadline)
	defer cancel()

	// Tolerant: a dead brokerage still yields a status page.
	account, err := a.Brokerage.GetAccount(cctx)
	if err != nil {
		logger.Warnf("📊 Status: account fetch failed: %v", err)
	}
	positions, err := a.Brokerage.GetPositions(cctx)
	if err != nil {
		logger.Warnf("📊 Status: positions fetch failed: %v", err)
	}
	clock, err := a.Brokerage.GetClock(cctx)
	if err != nil {
		logger.Warnf("📊 Status: clock fetch failed: %v", err)
	}
	solUsd := market.SolUsdPrice(cctx, a.SolFetch)

	status := &Status{Account: account, Positions: positions, Clock: clock}
	err = a.Do(ctx, func(_ context.Context, st *state.AgentState) {
		status.Enabled = st.Enabled
		status.Config = st.Config
		status.Cost = st.Cost
		status.Research = st.SignalResearch
		status.PositionResearch = st.PositionResearch
		status.Staleness = st.StalenessAnalysis
		status.Entries = st.PositionEntries
		status.Plan = st.PremarketPlan
		status.Crisis = st.Crisis

		if n := len(st.Signals); n > 100 {
			status.Signals = append([]state.Signal(nil), st.Signals[:100]...)
		} else {
			status.Signals = append([]state.Signal(nil), st.Signals...)
		}
		if n := len(st.Logs); n > 100 {
			status.Logs = append([]state.LogEntry(nil), st.Logs[n-100:]...)
		} else {
			status.Logs = append([]state.LogEntry(nil), st.Logs...)
		}

		bySymbol := make(map[string]float64, len(st.Dex.Signals))
		for _, sig := range st.Dex.Signals {
			bySymbol[sig.TokenAddress] = sig.PriceUsd
		}
		views := make([]DexPositionView, 0, len(st.Dex.Positions))
		for token, pos := range st.Dex.Positions {
			price := pos.EntryPrice
			if p, ok := bySymbol[token]; ok {
				price = p
			}
			views = append(views, DexPositionView{
				DexPosition:  *pos,
				CurrentPrice: price,
				PnLPct:       (price - pos.EntryPrice) / pos.EntryPrice * 100,
				ValueSol:     pos.TokenAmount * price / solUsd,
			})
		}
		status.Dex = DexStatus{
			Book:      st.Dex,
			Positions: views,
			Metrics:   dex.Performance(&st.Dex, time.Now()),
		}
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}
