package research

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulseTrader/market"
	"PulseTrader/mcp"
	"PulseTrader/state"
)

type fakeLLM struct {
	content string
	err     error
	calls   int
}

func (f *fakeLLM) Complete(context.Context, mcp.CompletionRequest) (*mcp.Completion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &mcp.Completion{Content: f.content, Usage: mcp.Usage{PromptTokens: 200, CompletionTokens: 80}}, nil
}

const goodResearch = `{"verdict":"BUY","confidence":0.82,"entry_quality":"good","reasoning":"volume surge","red_flags":["meme"],"catalysts":["earnings"]}`

func TestParseSignalResearch(t *testing.T) {
	res := parseSignalResearch(goodResearch)
	require.NotNil(t, res)
	assert.Equal(t, state.VerdictBuy, res.Verdict)
	assert.Equal(t, 0.82, res.Confidence)
	assert.Equal(t, state.QualityGood, res.EntryQuality)
	assert.Equal(t, []string{"meme"}, res.RedFlags)
}

func TestParseSignalResearchToleratesCodeFence(t *testing.T) {
	res := parseSignalResearch("```json\n" + goodResearch + "\n```")
	require.NotNil(t, res)
	assert.Equal(t, state.VerdictBuy, res.Verdict)
}

// Malformed or out-of-range responses are nil, never a default verdict.
func TestParseSignalResearchStrict(t *testing.T) {
	assert.Nil(t, parseSignalResearch("not json at all"))
	assert.Nil(t, parseSignalResearch(`{"verdict":"MAYBE","confidence":0.5}`))
	assert.Nil(t, parseSignalResearch(`{"verdict":"BUY","confidence":1.7}`))
	assert.Nil(t, parseSignalResearch(`{"verdict":"BUY","confidence":-0.2}`))
}

func TestParseSignalResearchUnknownQualityDowngraded(t *testing.T) {
	res := parseSignalResearch(`{"verdict":"WAIT","confidence":0.4,"entry_quality":"stellar"}`)
	require.NotNil(t, res)
	assert.Equal(t, state.QualityPoor, res.EntryQuality)
}

func TestResearchSignalCacheHit(t *testing.T) {
	st := state.New()
	llm := &fakeLLM{content: goodResearch}
	r := &Researcher{LLM: llm}
	sig := state.Signal{Symbol: "NVDA", WeightedSentiment: 0.5}

	first := r.ResearchSignal(context.Background(), st, sig, 100)
	require.NotNil(t, first)
	second := r.ResearchSignal(context.Background(), st, sig, 100)
	assert.Same(t, first, second)
	assert.Equal(t, 1, llm.calls)

	// An expired entry refreshes.
	st.SignalResearch["NVDA"].Timestamp = time.Now().Add(-5 * time.Minute)
	r.ResearchSignal(context.Background(), st, sig, 100)
	assert.Equal(t, 2, llm.calls)
}

func TestResearchSignalRecordsCost(t *testing.T) {
	st := state.New()
	r := &Researcher{LLM: &fakeLLM{content: goodResearch}}
	before := st.Cost.TotalUSD
	r.ResearchSignal(context.Background(), st, state.Signal{Symbol: "NVDA"}, 100)

	assert.Greater(t, st.Cost.TotalUSD, before)
	assert.Equal(t, 1, st.Cost.APICalls)
	assert.Equal(t, int64(200), st.Cost.InputTokens)
	assert.Equal(t, int64(80), st.Cost.OutputTokens)
}

func TestResearchSignalFailureYieldsNil(t *testing.T) {
	st := state.New()
	r := &Researcher{LLM: &fakeLLM{err: context.DeadlineExceeded}}
	assert.Nil(t, r.ResearchSignal(context.Background(), st, state.Signal{Symbol: "NVDA"}, 100))
	assert.NotContains(t, st.SignalResearch, "NVDA")
}

func TestParseAnalystReportDropsMalformedRows(t *testing.T) {
	report := parseAnalystReport(`{
		"recommendations": [
			{"action": "buy", "symbol": "NVDA", "confidence": 0.8, "reasoning": "x"},
			{"action": "PANIC", "symbol": "TSLA", "confidence": 0.9},
			{"action": "SELL", "symbol": "", "confidence": 0.9},
			{"action": "HOLD", "symbol": "AAPL", "confidence": 2.0}
		],
		"market_summary": "mixed",
		"high_conviction_plays": ["NVDA"]
	}`)
	require.NotNil(t, report)
	require.Len(t, report.Recommendations, 1)
	assert.Equal(t, "BUY", report.Recommendations[0].Action)
	assert.Equal(t, "mixed", report.MarketSummary)
}

func TestAnalyzeReturnsNilOnUnparseable(t *testing.T) {
	st := state.New()
	r := &Researcher{LLM: &fakeLLM{content: "the market felt bearish today"}}
	report := r.Analyze(context.Background(), st, &market.Account{Cash: 1000, Equity: 1000}, nil)
	assert.Nil(t, report)
}

func TestMostExpensiveFallbackPricing(t *testing.T) {
	usage := mcp.Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000}
	known := mcp.Cost("gpt-4o-mini", usage)
	unknown := mcp.Cost("mystery-model-9000", usage)
	assert.Greater(t, unknown, known)
}
