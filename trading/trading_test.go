package trading

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulseTrader/market"
	"PulseTrader/mcp"
	"PulseTrader/research"
	"PulseTrader/state"
)

// fakeBrokerage records orders and serves canned data.
type fakeBrokerage struct {
	account   market.Account
	positions []market.Position
	assets    map[string]market.Asset
	orders    []market.OrderRequest
	closed    []string
	orderErr  error
}

func (f *fakeBrokerage) GetAccount(context.Context) (*market.Account, error) {
	a := f.account
	return &a, nil
}

func (f *fakeBrokerage) GetPositions(context.Context) ([]market.Position, error) {
	return f.positions, nil
}

func (f *fakeBrokerage) GetClock(context.Context) (*market.Clock, error) {
	return &market.Clock{IsOpen: true, Timestamp: time.Now()}, nil
}

func (f *fakeBrokerage) GetAsset(_ context.Context, symbol string) (*market.Asset, error) {
	if a, ok := f.assets[symbol]; ok {
		return &a, nil
	}
	return nil, fmt.Errorf("unknown asset %s", symbol)
}

func (f *fakeBrokerage) CreateOrder(_ context.Context, req market.OrderRequest) (*market.Order, error) {
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	f.orders = append(f.orders, req)
	return &market.Order{ID: "order-1", Symbol: req.Symbol, Status: "accepted"}, nil
}

func (f *fakeBrokerage) ClosePosition(_ context.Context, symbol string) error {
	f.closed = append(f.closed, symbol)
	return nil
}

// fakeLLM returns a fixed payload.
type fakeLLM struct {
	content string
	err     error
}

func (f *fakeLLM) Complete(context.Context, mcp.CompletionRequest) (*mcp.Completion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &mcp.Completion{Content: f.content, Usage: mcp.Usage{PromptTokens: 100, CompletionTokens: 50}}, nil
}

func newEngine(fb *fakeBrokerage, llmContent string) *Engine {
	return &Engine{
		Brokerage:  fb,
		Researcher: &research.Researcher{LLM: &fakeLLM{content: llmContent}},
	}
}

func nyseAsset(symbol string) map[string]market.Asset {
	return map[string]market.Asset{symbol: {Symbol: symbol, Exchange: "NASDAQ", Tradable: true}}
}

// ============================================================================
// Buy contract
// ============================================================================

// Happy path from the sizing contract: $5000 cash, 20% sizing, 0.8
// confidence, $1000 cap -> notional 800.00.
func TestExecuteBuySizing(t *testing.T) {
	st := state.New()
	st.Config.MaxPositions = 3
	st.Config.MaxPositionValue = 1000
	st.Config.PositionSizePctOfCash = 20
	fb := &fakeBrokerage{assets: nyseAsset("NVDA")}
	e := newEngine(fb, "")

	ok := e.ExecuteBuy(context.Background(), st, "NVDA", 0.8, 5000, false, "test")
	require.True(t, ok)
	require.Len(t, fb.orders, 1)
	assert.Equal(t, 800.00, fb.orders[0].Notional)
	assert.Equal(t, "day", fb.orders[0].TimeInForce)
	assert.Equal(t, "market", fb.orders[0].Type)
}

func TestExecuteBuyCapLimitsNotional(t *testing.T) {
	st := state.New()
	st.Config.MaxPositionValue = 500
	fb := &fakeBrokerage{assets: nyseAsset("NVDA")}
	e := newEngine(fb, "")

	require.True(t, e.ExecuteBuy(context.Background(), st, "NVDA", 1.0, 50_000, false, "test"))
	assert.Equal(t, 500.00, fb.orders[0].Notional)
}

func TestExecuteBuyCryptoUsesGtc(t *testing.T) {
	st := state.New()
	fb := &fakeBrokerage{}
	e := newEngine(fb, "")

	require.True(t, e.ExecuteBuy(context.Background(), st, "BTCUSD", 0.9, 5000, true, "test"))
	assert.Equal(t, "gtc", fb.orders[0].TimeInForce)
}

func TestExecuteBuyPreflightBlocks(t *testing.T) {
	st := state.New()
	fb := &fakeBrokerage{assets: nyseAsset("NVDA")}
	e := newEngine(fb, "")
	ctx := context.Background()

	assert.False(t, e.ExecuteBuy(ctx, st, "", 0.8, 5000, false, "test"))
	assert.False(t, e.ExecuteBuy(ctx, st, "NVDA", 0.8, 0, false, "test"))
	assert.False(t, e.ExecuteBuy(ctx, st, "NVDA", 0, 5000, false, "test"))
	assert.False(t, e.ExecuteBuy(ctx, st, "NVDA", 1.5, 5000, false, "test"))
	assert.Empty(t, fb.orders)

	// Each block leaves a buy_blocked log event and no mutation.
	blocked := 0
	for _, entry := range st.Logs {
		if entry.Event == "buy_blocked" {
			blocked++
		}
	}
	assert.Equal(t, 4, blocked)
}

func TestExecuteBuyCrisisLevelTwoBlocks(t *testing.T) {
	st := state.New()
	st.Crisis.Level = 2
	fb := &fakeBrokerage{assets: nyseAsset("NVDA")}
	e := newEngine(fb, "")

	assert.False(t, e.ExecuteBuy(context.Background(), st, "NVDA", 0.8, 5000, false, "test"))

	// Manual override lifts the block.
	st.Crisis.ManualOverride = true
	assert.True(t, e.ExecuteBuy(context.Background(), st, "NVDA", 0.8, 5000, false, "test"))
}

func TestExecuteBuyCrisisLevelOneHalvesSize(t *testing.T) {
	st := state.New()
	st.Crisis.Level = 1
	st.Config.MaxPositionValue = 1000
	st.Config.PositionSizePctOfCash = 20
	fb := &fakeBrokerage{assets: nyseAsset("NVDA")}
	e := newEngine(fb, "")

	require.True(t, e.ExecuteBuy(context.Background(), st, "NVDA", 0.8, 5000, false, "test"))
	assert.Equal(t, 400.00, fb.orders[0].Notional)
}

func TestExecuteBuyRejectsOTCExchange(t *testing.T) {
	st := state.New()
	fb := &fakeBrokerage{assets: map[string]market.Asset{
		"SKETCH": {Symbol: "SKETCH", Exchange: "OTC", Tradable: true},
	}}
	e := newEngine(fb, "")
	assert.False(t, e.ExecuteBuy(context.Background(), st, "SKETCH", 0.9, 5000, false, "test"))
}

func TestExecuteBuyTinyPositionRejected(t *testing.T) {
	st := state.New()
	fb := &fakeBrokerage{assets: nyseAsset("NVDA")}
	e := newEngine(fb, "")
	// 20% of $60 at 0.7 confidence is $8.40 < $10.
	assert.False(t, e.ExecuteBuy(context.Background(), st, "NVDA", 0.7, 60, false, "test"))
}

func TestTwitterConfirmationBoostCapsAtOne(t *testing.T) {
	st := state.New()
	st.TwitterConfirmations["NVDA"] = &state.TwitterConfirmation{Stance: "confirms"}
	assert.Equal(t, 1.0, applyTwitterConfirmation(st, "NVDA", 0.95))
	assert.InDelta(t, 0.92, applyTwitterConfirmation(st, "NVDA", 0.8), 1e-9)

	st.TwitterConfirmations["NVDA"].Stance = "contradicts"
	assert.InDelta(t, 0.68, applyTwitterConfirmation(st, "NVDA", 0.8), 1e-9)
}

// ============================================================================
// Exits
// ============================================================================

func position(symbol string, marketValue, unrealized float64) market.Position {
	return market.Position{
		Symbol:       symbol,
		Qty:          10,
		Side:         "long",
		MarketValue:  marketValue,
		UnrealizedPL: unrealized,
		AssetClass:   "us_equity",
	}
}

// Take profit fires at exactly the boundary (inclusive).
func TestExitTakeProfitInclusiveBoundary(t *testing.T) {
	st := state.New()
	st.Config.TakeProfitPct = 10
	fb := &fakeBrokerage{}
	e := newEngine(fb, "")

	// basis 1000, P&L +100 -> exactly +10%.
	remaining := e.checkStockExits(context.Background(), st, []market.Position{position("NVDA", 1100, 100)}, time.Now())
	assert.Empty(t, remaining)
	assert.Equal(t, []string{"NVDA"}, fb.closed)
}

func TestExitStopLoss(t *testing.T) {
	st := state.New()
	st.Config.StopLossPct = 5
	fb := &fakeBrokerage{}
	e := newEngine(fb, "")

	remaining := e.checkStockExits(context.Background(), st, []market.Position{position("NVDA", 940, -60)}, time.Now())
	assert.Empty(t, remaining)
	assert.Equal(t, []string{"NVDA"}, fb.closed)
}

func TestExitHoldsInBetween(t *testing.T) {
	st := state.New()
	st.Config.StalePositionEnabled = false
	fb := &fakeBrokerage{}
	e := newEngine(fb, "")

	remaining := e.checkStockExits(context.Background(), st, []market.Position{position("NVDA", 1020, 20)}, time.Now())
	assert.Len(t, remaining, 1)
	assert.Empty(t, fb.closed)
}

// ============================================================================
// Staleness
// ============================================================================

func TestStalenessRespectsMinHold(t *testing.T) {
	st := state.New()
	now := time.Now()
	entry := &state.PositionEntry{EntryTime: now.Add(-2 * time.Hour), EntryVolume: 100}
	analysis := AnalyzeStaleness(st, position("NVDA", 900, -100), entry, now)
	assert.False(t, analysis.IsStale)
	assert.Zero(t, analysis.Score)
}

func TestStalenessOldLoserIsStale(t *testing.T) {
	st := state.New()
	now := time.Now()
	// 8 days held, underwater, social volume collapsed, no recent mentions.
	entry := &state.PositionEntry{EntryTime: now.Add(-8 * 24 * time.Hour), EntryVolume: 100}
	analysis := AnalyzeStaleness(st, position("NVDA", 920, -80), entry, now)
	assert.True(t, analysis.IsStale)
	assert.GreaterOrEqual(t, analysis.Score, 70.0)
}

func TestStalenessMaxHoldWithWeakGain(t *testing.T) {
	st := state.New()
	st.Config.StaleMinGainPct = 2
	now := time.Now()
	// Past max hold days with a +0.5% gain: stale via the second condition.
	entry := &state.PositionEntry{EntryTime: now.Add(-8 * 24 * time.Hour), EntryVolume: 0}
	st.RecordSocial("NVDA", state.SocialPoint{Timestamp: now, Volume: 50})
	analysis := AnalyzeStaleness(st, position("NVDA", 1005, 5), entry, now)
	assert.True(t, analysis.IsStale)
}

func TestStalenessFreshWinnerNotStale(t *testing.T) {
	st := state.New()
	now := time.Now()
	entry := &state.PositionEntry{EntryTime: now.Add(-30 * time.Hour), EntryVolume: 100}
	st.RecordSocial("NVDA", state.SocialPoint{Timestamp: now, Volume: 120})
	analysis := AnalyzeStaleness(st, position("NVDA", 1150, 150), entry, now)
	assert.False(t, analysis.IsStale)
}

// ============================================================================
// Crypto engine
// ============================================================================

func cryptoResearch(confidence float64) string {
	return fmt.Sprintf(`{"verdict":"BUY","confidence":%.2f,"entry_quality":"good","reasoning":"momentum","red_flags":[],"catalysts":[]}`, confidence)
}

func TestCryptoCycleEntersTopMomentum(t *testing.T) {
	st := state.New()
	st.Config.CryptoEnabled = true
	st.Config.MinAnalystConfidence = 0.7
	now := time.Now()
	st.Signals = []state.Signal{
		{Symbol: "SOLUSD", IsCrypto: true, Sentiment: 0.6, MomentumPct: 8, Price: 150, Timestamp: now},
		{Symbol: "BTCUSD", IsCrypto: true, Sentiment: 0.4, MomentumPct: 4, Price: 60000, Timestamp: now},
	}
	fb := &fakeBrokerage{account: market.Account{Cash: 5000}}
	e := newEngine(fb, cryptoResearch(0.8))

	e.RunCryptoCycle(context.Background(), st, &market.Account{Cash: 5000}, nil, now)
	require.NotEmpty(t, fb.orders)
	assert.Equal(t, "SOLUSD", fb.orders[0].Symbol)
	assert.Contains(t, st.PositionEntries, "SOLUSD")
}

func TestCryptoCycleExits(t *testing.T) {
	st := state.New()
	st.Config.CryptoTakeProfitPct = 8
	fb := &fakeBrokerage{}
	e := newEngine(fb, "")

	pos := market.Position{Symbol: "ETHUSD", MarketValue: 1090, UnrealizedPL: 90, AssetClass: "crypto"}
	e.RunCryptoCycle(context.Background(), st, &market.Account{Cash: 1000}, []market.Position{pos}, time.Now())
	assert.Equal(t, []string{"ETHUSD"}, fb.closed)
}

func TestCryptoCycleLowConfidenceSkipped(t *testing.T) {
	st := state.New()
	st.Config.MinAnalystConfidence = 0.7
	now := time.Now()
	st.Signals = []state.Signal{
		{Symbol: "SOLUSD", IsCrypto: true, Sentiment: 0.6, MomentumPct: 8, Price: 150, Timestamp: now},
	}
	fb := &fakeBrokerage{}
	e := newEngine(fb, cryptoResearch(0.5))

	e.RunCryptoCycle(context.Background(), st, &market.Account{Cash: 5000}, nil, now)
	assert.Empty(t, fb.orders)
}

// ============================================================================
// Entry phase (S1 shape)
// ============================================================================

func TestEntryPhaseBuysResearchedCandidate(t *testing.T) {
	st := state.New()
	st.Config.MaxPositions = 3
	st.Config.MaxPositionValue = 1000
	st.Config.PositionSizePctOfCash = 20
	st.Config.MinAnalystConfidence = 0.7
	now := time.Now()

	st.Signals = []state.Signal{{Symbol: "NVDA", Source: "forum", WeightedSentiment: 0.5, Volume: 12, Timestamp: now}}
	st.SignalResearch["NVDA"] = &state.SignalResearch{
		Verdict: state.VerdictBuy, Confidence: 0.8, EntryQuality: state.QualityExcellent,
		Reasoning: "strong setup", Timestamp: now,
	}

	fb := &fakeBrokerage{account: market.Account{Cash: 5000}, assets: nyseAsset("NVDA")}
	e := newEngine(fb, "")

	e.checkStockEntries(context.Background(), st, &market.Account{Cash: 5000}, nil, now)
	require.Len(t, fb.orders, 1)
	assert.Equal(t, 800.00, fb.orders[0].Notional)
	require.Contains(t, st.PositionEntries, "NVDA")
	assert.Equal(t, "strong setup", st.PositionEntries["NVDA"].Reason)
}

// B1: at the position cap the entry phase does nothing.
func TestEntryPhaseBlockedAtCap(t *testing.T) {
	st := state.New()
	st.Config.MaxPositions = 1
	now := time.Now()
	st.Signals = []state.Signal{{Symbol: "NVDA", WeightedSentiment: 0.5, Timestamp: now}}
	st.SignalResearch["NVDA"] = &state.SignalResearch{Verdict: state.VerdictBuy, Confidence: 0.9, Timestamp: now}

	fb := &fakeBrokerage{assets: nyseAsset("NVDA")}
	e := newEngine(fb, "")
	held := []market.Position{position("AAPL", 1000, 0)}

	e.checkStockEntries(context.Background(), st, &market.Account{Cash: 5000}, held, now)
	assert.Empty(t, fb.orders)
}

func TestRecommendationSellGatedByMinHold(t *testing.T) {
	st := state.New()
	st.Config.LLMMinHoldMinutes = 30
	now := time.Now()
	st.PositionEntries["NVDA"] = &state.PositionEntry{EntryTime: now.Add(-10 * time.Minute)}

	fb := &fakeBrokerage{}
	e := newEngine(fb, "")
	report := &state.AnalystReport{Recommendations: []state.Recommendation{
		{Action: "SELL", Symbol: "NVDA", Confidence: 0.9, Reasoning: "over"},
	}}
	e.processRecommendations(context.Background(), st, report, &market.Account{Cash: 1000},
		[]market.Position{position("NVDA", 1000, 0)}, now)
	assert.Empty(t, fb.closed)

	// Past the hold window the SELL executes.
	st.PositionEntries["NVDA"].EntryTime = now.Add(-45 * time.Minute)
	e.processRecommendations(context.Background(), st, report, &market.Account{Cash: 1000},
		[]market.Position{position("NVDA", 1000, 0)}, now)
	assert.Equal(t, []string{"NVDA"}, fb.closed)
}
