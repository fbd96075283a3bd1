package agent

import (
	"context"
	"fmt"
	"time"

	"PulseTrader/crisis"
	"PulseTrader/dex"
	"PulseTrader/gather"
	"PulseTrader/logger"
	"PulseTrader/market"
	"PulseTrader/metrics"
	"PulseTrader/notify"
	"PulseTrader/research"
	"PulseTrader/state"
	"PulseTrader/store"
	"PulseTrader/trading"
)

const (
	providerDeadline = 10 * time.Second
	phaseDeadline    = 25 * time.Second
)

// Agent owns the state and runs the core loop. Single writer: exactly one
// goroutine (Run) touches the state, serving both timer ticks and control
// commands from the same channel select.
type Agent struct {
	State *state.AgentState
	Store *store.Store

	Brokerage  market.Brokerage
	Data       market.MarketData
	Gatherer   *gather.Gatherer
	Researcher *research.Researcher
	Trade      *trading.Engine
	DexScanner *dex.Scanner
	DexEngine  *dex.Engine
	Crisis     *crisis.Monitor
	Notifier   notify.Sink
	SolFetch   market.SolPriceFetcher

	commands chan command
	nyLoc    *time.Location
}

type command struct {
	fn   func(ctx context.Context, st *state.AgentState)
	done chan struct{}
}

// New wires an agent. The state must already be loaded.
func New(st *state.AgentState, db *store.Store) *Agent {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &Agent{
		State:    st,
		Store:    db,
		commands: make(chan command),
		nyLoc:    loc,
	}
}

// Do executes fn inside the loop's exclusion and persists afterwards. It
// blocks until the current phase finishes and fn has run.
func (a *Agent) Do(ctx context.Context, fn func(ctx context.Context, st *state.AgentState)) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case a.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the core loop. It exits when ctx is cancelled, persisting first.
func (a *Agent) Run(ctx context.Context) {
	interval := time.Duration(a.State.Config.TickIntervalMs) * time.Millisecond
	timer := time.NewTimer(interval)
	defer timer.Stop()

	logger.Infof("🚀 Agent loop started (tick every %v)", interval)

	for {
		select {
		case <-ctx.Done():
			a.persist()
			logger.Info("🛑 Agent loop stopped")
			return

		case cmd := <-a.commands:
			cmd.fn(ctx, a.State)
			a.persist()
			close(cmd.done)

		case <-timer.C:
			a.tick(ctx)
			// The interval may have been patched mid-flight.
			interval = time.Duration(a.State.Config.TickIntervalMs) * time.Millisecond
			timer.Reset(interval)
		}
	}
}

// tick runs one atomic scheduler pass. State is always persisted at the
// end, even when a phase fails, so logs and cost accounting survive.
func (a *Agent) tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		a.persist()
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	st := a.State
	if !st.Enabled {
		return
	}
	now := time.Now()

	clock := a.fetchClock(ctx)

	// Crisis precedes all trading; engines see this tick's level.
	if st.Config.CrisisModeEnabled {
		interval := time.Duration(st.Config.CrisisCheckIntervalMs) * time.Millisecond
		if now.Sub(st.LastCrisisCheck) >= interval {
			level := a.runCrisisPhase(ctx, now)
			if level == 3 && !st.Crisis.ManualOverride {
				return // liquidation already ran; rest of the tick is skipped
			}
		}
	}

	if now.Sub(st.LastDataGatherRun) >= time.Duration(st.Config.DataPollIntervalMs)*time.Millisecond {
		a.runPhase(ctx, "gather", func(ctx context.Context) error {
			incoming := a.Gatherer.Run(ctx, st.Config, now)
			mergeSignals(st, incoming, now)
			st.LastDataGatherRun = now
			return nil
		})
	}

	if now.Sub(st.LastResearchRun) >= time.Duration(st.Config.ResearchIntervalMs)*time.Millisecond {
		a.runPhase(ctx, "research", func(ctx context.Context) error {
			a.Researcher.ResearchTopSignals(ctx, st, 10)
			st.LastResearchRun = now
			return nil
		})
	}

	localNow := now.In(a.nyLoc)
	if inPremarketWindow(localNow) && st.PremarketPlan == nil {
		a.runPhase(ctx, "premarket_plan", func(ctx context.Context) error {
			return a.buildPremarketPlan(ctx, now)
		})
	}

	if st.Config.CryptoEnabled {
		a.runPhase(ctx, "crypto", func(ctx context.Context) error {
			account, positions, err := a.fetchAccountAndPositions(ctx)
			if err != nil {
				return err
			}
			a.Trade.RunCryptoCycle(ctx, st, account, positions, now)
			return nil
		})
	}

	if st.Config.DexEnabled {
		a.runPhase(ctx, "dex", func(ctx context.Context) error {
			if now.Sub(st.LastDexScan) >= time.Duration(st.Config.DexScanIntervalMs)*time.Millisecond {
				scanCtx, cancel := context.WithTimeout(ctx, phaseDeadline)
				signals := a.DexScanner.Scan(scanCtx, st.Config, now)
				cancel()
				if len(signals) > 0 {
					st.Dex.Signals = signals
				}
				st.LastDexScan = now
			}
			// One SOL/USD read per tick: every DEX computation below sees the
			// same conversion.
			solUsd := market.SolUsdPrice(ctx, a.SolFetch)
			a.DexEngine.Run(ctx, st, solUsd, now)
			a.DexEngine.Snapshot(st, solUsd, now)
			return nil
		})
	}

	if clock != nil && clock.IsOpen {
		a.runMarketHoursWork(ctx, localNow, now)
	}
}

func (a *Agent) runMarketHoursWork(ctx context.Context, localNow, now time.Time) {
	st := a.State

	if inOpeningWindow(localNow) && st.PremarketPlan != nil {
		a.runPhase(ctx, "premarket_execute", func(ctx context.Context) error {
			return a.executePremarketPlan(ctx, now)
		})
	}

	if now.Sub(st.LastAnalystRun) >= time.Duration(st.Config.AnalystIntervalMs)*time.Millisecond {
		a.runPhase(ctx, "analyst", func(ctx context.Context) error {
			account, positions, err := a.fetchAccountAndPositions(ctx)
			if err != nil {
				return err
			}
			a.Trade.RunAnalystCycle(ctx, st, account, positions, now)
			return nil
		})
	}

	a.runPhase(ctx, "position_research", func(ctx context.Context) error {
		_, positions, err := a.fetchAccountAndPositions(ctx)
		if err != nil {
			return err
		}
		a.Trade.ReResearchPositions(ctx, st, positions)
		a.Trade.CheckOptionsExits(ctx, st, positions)
		a.Trade.PullHeadlines(ctx, st, positions, now)
		metrics.OpenStockPositions.Set(float64(len(positions)))
		return nil
	})
}

// runCrisisPhase evaluates indicators and applies the level actions.
// Returns the effective level.
func (a *Agent) runCrisisPhase(ctx context.Context, now time.Time) int {
	st := a.State
	level := 0
	a.runPhase(ctx, "crisis", func(ctx context.Context) error {
		level = a.Crisis.Check(ctx, st, now)

		switch {
		case level >= 3 && !st.Crisis.ManualOverride:
			a.liquidateEverything(ctx, now)
		case level == 2 && !st.Crisis.ManualOverride:
			a.closeLosersForCrisis(ctx, now)
		}
		return nil
	})
	return level
}

// liquidateEverything is the Level-3 action: every stock position and every
// DEX paper position is closed immediately.
func (a *Agent) liquidateEverything(ctx context.Context, now time.Time) {
	st := a.State
	positions, err := a.Brokerage.GetPositions(ctx)
	if err != nil {
		logger.Errorf("🚨 Level 3 liquidation: positions fetch failed: %v", err)
	}
	for _, pos := range positions {
		if err := a.Brokerage.ClosePosition(ctx, pos.Symbol); err != nil {
			logger.Errorf("🚨 Level 3 liquidation failed for %s: %v", pos.Symbol, err)
			continue
		}
		st.Crisis.ClosedSymbols = append(st.Crisis.ClosedSymbols, pos.Symbol)
		delete(st.PositionEntries, pos.Symbol)
		st.AppendLog("warn", "CRISIS_LEVEL_3_LIQUIDATION", pos.Symbol)
	}
	solUsd := market.SolUsdPrice(ctx, a.SolFetch)
	a.DexEngine.LiquidateAll(st, solUsd, now)
	logger.Warnf("🚨 Level 3: liquidated %d stock positions and all DEX positions", len(positions))
}

// closeLosersForCrisis is the Level-2 action: positions below the
// minimum-profit-to-hold threshold are closed; winners ride.
func (a *Agent) closeLosersForCrisis(ctx context.Context, now time.Time) {
	st := a.State
	positions, err := a.Brokerage.GetPositions(ctx)
	if err != nil {
		logger.Errorf("🚨 Level 2 action: positions fetch failed: %v", err)
		return
	}
	for _, pos := range positions {
		basis := pos.MarketValue - pos.UnrealizedPL
		pl := 0.0
		if basis != 0 {
			pl = pos.UnrealizedPL / basis * 100
		}
		if pl >= st.Config.CrisisLevel2MinProfitToHold {
			continue
		}
		if err := a.Brokerage.ClosePosition(ctx, pos.Symbol); err != nil {
			logger.Errorf("🚨 Level 2 close failed for %s: %v", pos.Symbol, err)
			continue
		}
		st.Crisis.ClosedSymbols = append(st.Crisis.ClosedSymbols, pos.Symbol)
		delete(st.PositionEntries, pos.Symbol)
		st.AppendLog("warn", "crisis_level2_close",
			fmt.Sprintf("%s at %+.1f%% below hold threshold %+.1f%%", pos.Symbol, pl, st.Config.CrisisLevel2MinProfitToHold))
	}
}

// runPhase bounds one phase with the tick deadline and converts failures
// into a skipped phase. Mutations inside a failing phase are the phase's own
// responsibility; engines stage their mutations so an early error leaves
// state untouched.
func (a *Agent) runPhase(ctx context.Context, name string, fn func(ctx context.Context) error) {
	phaseCtx, cancel := context.WithTimeout(ctx, phaseDeadline)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			metrics.PhaseErrors.WithLabelValues(name).Inc()
			a.State.AppendLog("error", "phase_panic", fmt.Sprintf("%s: %v", name, r))
			logger.Errorf("💥 Phase %s panicked: %v", name, r)
		}
	}()
	if err := fn(phaseCtx); err != nil {
		metrics.PhaseErrors.WithLabelValues(name).Inc()
		a.State.AppendLog("error", "phase_error", fmt.Sprintf("%s: %v", name, err))
		logger.Errorf("⚠️  Phase %s skipped: %v", name, err)
	}
}

func (a *Agent) fetchClock(ctx context.Context) *market.Clock {
	cctx, cancel := context.WithTimeout(ctx, providerDeadline)
	defer cancel()
	clock, err := a.Brokerage.GetClock(cctx)
	if err != nil {
		logger.Warnf("⏰ Clock fetch failed: %v", err)
		return nil
	}
	return clock
}

func (a *Agent) fetchAccountAndPositions(ctx context.Context) (*market.Account, []market.Position, error) {
	cctx, cancel := context.WithTimeout(ctx, providerDeadline)
	defer cancel()
	account, err := a.Brokerage.GetAccount(cctx)
	if err != nil {
		return nil, nil, fmt.Errorf("account fetch failed: %w", err)
	}
	positions, err := a.Brokerage.GetPositions(cctx)
	if err != nil {
		return nil, nil, fmt.Errorf("positions fetch failed: %w", err)
	}
	metrics.AccountEquity.Set(account.Equity)
	return account, positions, nil
}

func (a *Agent) persist() {
	if err := a.Store.Save(a.State); err != nil {
		logger.Errorf("💾 State persist failed: %v", err)
	}
}

// mergeSignals folds a gather batch into the cache: fresh observations
// replace stale ones for the same symbol/source pair, then the standard
// merge policy (24h age, |sentiment| order, cap 200) applies. Social volume
// history is recorded per symbol as a side effect.
func mergeSignals(st *state.AgentState, incoming []state.Signal, now time.Time) {
	type key struct{ symbol, source string }
	fresh := make(map[key]bool, len(incoming))
	for _, sig := range incoming {
		fresh[key{sig.Symbol, sig.Source}] = true
		st.RecordSocial(sig.Symbol, state.SocialPoint{
			Timestamp: sig.Timestamp,
			Volume:    sig.Volume,
			Sentiment: sig.WeightedSentiment,
		})
	}
	merged := incoming
	for _, sig := range st.Signals {
		if !fresh[key{sig.Symbol, sig.Source}] {
			merged = append(merged, sig)
		}
	}
	st.MergeSignals(merged, now)
}

// inPremarketWindow is Mon-Fri 09:25-09:29 America/New_York.
func inPremarketWindow(local time.Time) bool {
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= 9*60+25 && minutes <= 9*60+29
}

// inOpeningWindow is 09:30-09:32 local.
func inOpeningWindow(local time.Time) bool {
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= 9*60+30 && minutes <= 9*60+32
}
