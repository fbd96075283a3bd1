package research

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"PulseTrader/logger"
	"PulseTrader/market"
	"PulseTrader/mcp"
	"PulseTrader/metrics"
	"PulseTrader/state"
)

const (
	signalResearchTTL   = 180 * time.Second
	cryptoResearchTTL   = 300 * time.Second
	positionResearchTTL = 300 * time.Second
)

// Researcher runs both LLM passes: cheap per-signal verdicts and the smart
// batch analyst. Every call is accounted against the state cost tracker.
type Researcher struct {
	LLM mcp.LLM
}

// ============================================================================
// Per-signal research
// ============================================================================

// ResearchSignal returns the cached verdict for a symbol, calling the cheap
// model on a cache miss. A malformed or failed response yields nil, which
// callers must read as "skip this opportunity".
func (r *Researcher) ResearchSignal(ctx context.Context, st *state.AgentState, sig state.Signal, price float64) *state.SignalResearch {
	if cached, ok := st.SignalResearch[sig.Symbol]; ok {
		if time.Since(cached.Timestamp) < signalResearchTTL {
			return cached
		}
	}
	res := r.callSignalResearch(ctx, st, sig, price, st.Config.ResearchModel)
	if res != nil {
		st.SignalResearch[sig.Symbol] = res
	}
	return res
}

// ResearchCrypto is the crypto variant with a longer TTL.
func (r *Researcher) ResearchCrypto(ctx context.Context, st *state.AgentState, sig state.Signal, price float64) *state.SignalResearch {
	if cached, ok := st.SignalResearch[sig.Symbol]; ok {
		if time.Since(cached.Timestamp) < cryptoResearchTTL {
			return cached
		}
	}
	res := r.callSignalResearch(ctx, st, sig, price, st.Config.ResearchModel)
	if res != nil {
		st.SignalResearch[sig.Symbol] = res
	}
	return res
}

// ResearchPosition refreshes the held-position view when the cached entry is
// older than the position TTL.
func (r *Researcher) ResearchPosition(ctx context.Context, st *state.AgentState, symbol string, price float64) *state.SignalResearch {
	if cached, ok := st.PositionResearch[symbol]; ok {
		if time.Since(cached.Timestamp) < positionResearchTTL {
			return cached
		}
	}
	sig := state.Signal{Symbol: symbol}
	for _, s := range st.Signals {
		if s.Symbol == symbol {
			sig = s
			break
		}
	}
	res := r.callSignalResearch(ctx, st, sig, price, st.Config.ResearchModel)
	if res != nil {
		st.PositionResearch[symbol] = res
	}
	return res
}

func (r *Researcher) callSignalResearch(ctx context.Context, st *state.AgentState, sig state.Signal, price float64, model string) *state.SignalResearch {
	userPrompt := fmt.Sprintf(
		`Evaluate this trading signal and answer in strict JSON.
Symbol: %s
Weighted sentiment: %.3f
Social volume: %d
Sources: %s
Current price: %.4f

Respond with exactly:
{"verdict": "BUY"|"SKIP"|"WAIT", "confidence": 0.0-1.0, "entry_quality": "excellent"|"good"|"fair"|"poor", "reasoning": "...", "red_flags": [], "catalysts": []}`,
		sig.Symbol, sig.WeightedSentiment, sig.Volume, sig.Source, price)

	completion, err := r.LLM.Complete(ctx, mcp.CompletionRequest{
		Model: model,
		Messages: []mcp.Message{
			{Role: "system", Content: "You are a skeptical equity research assistant. Answer only with the requested JSON object."},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   st.Config.LLMMaxTokens,
		Temperature: 0.2,
		JSONObject:  true,
	})
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues(model, "error").Inc()
		logger.Warnf("🤖 Signal research failed for %s: %v", sig.Symbol, err)
		return nil
	}
	recordCost(st, model, completion.Usage)

	res := parseSignalResearch(completion.Content)
	if res == nil {
		metrics.LLMCallsTotal.WithLabelValues(model, "parse_error").Inc()
		logger.Warnf("🤖 Unparseable research for %s", sig.Symbol)
		return nil
	}
	metrics.LLMCallsTotal.WithLabelValues(model, "ok").Inc()
	res.Timestamp = time.Now()
	return res
}

// parseSignalResearch is strict: anything malformed or out of range is nil,
// never a default verdict.
func parseSignalResearch(content string) *state.SignalResearch {
	var raw struct {
		Verdict      string   `json:"verdict"`
		Confidence   float64  `json:"confidence"`
		EntryQuality string   `json:"entry_quality"`
		Reasoning    string   `json:"reasoning"`
		RedFlags     []string `json:"red_flags"`
		Catalysts    []string `json:"catalysts"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &raw); err != nil {
		return nil
	}

	verdict := state.Verdict(strings.ToUpper(raw.Verdict))
	switch verdict {
	case state.VerdictBuy, state.VerdictSkip, state.VerdictWait:
	default:
		return nil
	}
	if math.IsNaN(raw.Confidence) || raw.Confidence < 0 || raw.Confidence > 1 {
		return nil
	}
	quality := state.EntryQuality(strings.ToLower(raw.EntryQuality))
	switch quality {
	case state.QualityExcellent, state.QualityGood, state.QualityFair, state.QualityPoor:
	default:
		quality = state.QualityPoor
	}

	return &state.SignalResearch{
		Verdict:      verdict,
		Confidence:   raw.Confidence,
		EntryQuality: quality,
		Reasoning:    raw.Reasoning,
		RedFlags:     raw.RedFlags,
		Catalysts:    raw.Catalysts,
	}
}

// ============================================================================
// Batch analyst
// ============================================================================

type analystPosition struct {
	Symbol       string  `json:"symbol"`
	PnLPct       float64 `json:"pnl_pct"`
	MarketValue  float64 `json:"market_value"`
	HoldHours    float64 `json:"hold_hours"`
}

// Analyze runs the smart-model batch pass over the account, positions and
// the strongest candidates. Returns nil on any failure; a nil report means
// no recommendations, never defaults.
func (r *Researcher) Analyze(ctx context.Context, st *state.AgentState, account *market.Account, positions []market.Position) *state.AnalystReport {
	model := st.Config.AnalystModel

	// Compact position view with hold time from the entry map.
	posView := make([]analystPosition, 0, len(positions))
	for _, p := range positions {
		holdHours := 0.0
		if entry, ok := st.PositionEntries[p.Symbol]; ok {
			holdHours = time.Since(entry.EntryTime).Hours()
		}
		basis := p.MarketValue - p.UnrealizedPL
		plPct := 0.0
		if basis != 0 {
			plPct = p.UnrealizedPL / basis * 100
		}
		posView = append(posView, analystPosition{
			Symbol: p.Symbol, PnLPct: plPct, MarketValue: p.MarketValue, HoldHours: holdHours,
		})
	}

	// Top aggregated candidates (cap 10) plus raw signal lines (cap 20).
	candidates := topCandidates(st, 10)
	rawLines := make([]string, 0, 20)
	for i, sig := range st.Signals {
		if i >= 20 {
			break
		}
		rawLines = append(rawLines, fmt.Sprintf("%s %s sentiment=%.2f volume=%d",
			sig.Symbol, sig.Source, sig.WeightedSentiment, sig.Volume))
	}

	posJSON, _ := json.Marshal(posView)
	candJSON, _ := json.Marshal(candidates)
	userPrompt := fmt.Sprintf(
		`Account: cash=%.2f equity=%.2f
Positions: %s
Candidates: %s
Raw signals:
%s

Respond with exactly:
{"recommendations": [{"action": "BUY"|"SELL"|"HOLD", "symbol": "...", "confidence": 0.0-1.0, "reasoning": "...", "suggested_size_pct": 0}], "market_summary": "...", "high_conviction_plays": []}`,
		account.Cash, account.Equity, posJSON, candJSON, strings.Join(rawLines, "\n"))

	completion, err := r.LLM.Complete(ctx, mcp.CompletionRequest{
		Model: model,
		Messages: []mcp.Message{
			{Role: "system", Content: "You are a disciplined portfolio analyst. Recommend at most a handful of actions. Answer only with the requested JSON object."},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   st.Config.LLMMaxTokens * 2,
		Temperature: 0.3,
		JSONObject:  true,
	})
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues(model, "error").Inc()
		logger.Warnf("🤖 Analyst pass failed: %v", err)
		return nil
	}
	recordCost(st, model, completion.Usage)

	report := parseAnalystReport(completion.Content)
	if report == nil {
		metrics.LLMCallsTotal.WithLabelValues(model, "parse_error").Inc()
		logger.Warn("🤖 Unparseable analyst report")
		return nil
	}
	metrics.LLMCallsTotal.WithLabelValues(model, "ok").Inc()
	report.Timestamp = time.Now()
	return report
}

func parseAnalystReport(content string) *state.AnalystReport {
	var raw state.AnalystReport
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &raw); err != nil {
		return nil
	}
	// Drop malformed rows instead of failing the whole report.
	valid := raw.Recommendations[:0]
	for _, rec := range raw.Recommendations {
		action := strings.ToUpper(rec.Action)
		if action != "BUY" && action != "SELL" && action != "HOLD" {
			continue
		}
		if rec.Symbol == "" || math.IsNaN(rec.Confidence) || rec.Confidence < 0 || rec.Confidence > 1 {
			continue
		}
		rec.Action = action
		valid = append(valid, rec)
	}
	raw.Recommendations = valid
	return &raw
}

// ResearchTopSignals researches the strongest N cached signals (pre-market
// planner input).
func (r *Researcher) ResearchTopSignals(ctx context.Context, st *state.AgentState, n int) {
	count := 0
	for _, sig := range st.Signals {
		if count >= n {
			break
		}
		if sig.IsCrypto {
			continue
		}
		if math.Abs(sig.WeightedSentiment) < st.Config.MinSentimentScore {
			continue // cache is sorted by |sentiment|; nothing further qualifies
		}
		r.ResearchSignal(ctx, st, sig, sig.Price)
		count++
	}
}

// candidateView is the aggregated per-symbol candidate line for the analyst.
type candidateView struct {
	Symbol    string  `json:"symbol"`
	Sentiment float64 `json:"sentiment"`
	Volume    int     `json:"volume"`
	Sources   string  `json:"sources"`
	Verdict   string  `json:"verdict,omitempty"`
}

func topCandidates(st *state.AgentState, n int) []candidateView {
	bySymbol := make(map[string]*candidateView)
	for _, sig := range st.Signals {
		c := bySymbol[sig.Symbol]
		if c == nil {
			c = &candidateView{Symbol: sig.Symbol}
			bySymbol[sig.Symbol] = c
		}
		c.Sentiment += sig.WeightedSentiment
		c.Volume += sig.Volume
		if !strings.Contains(c.Sources, sig.Source) {
			if c.Sources != "" {
				c.Sources += ","
			}
			c.Sources += sig.Source
		}
		if res, ok := st.SignalResearch[sig.Symbol]; ok {
			c.Verdict = string(res.Verdict)
		}
	}
	out := make([]candidateView, 0, len(bySymbol))
	for _, c := range bySymbol {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return math.Abs(out[i].Sentiment) > math.Abs(out[j].Sentiment)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// ============================================================================
// Helpers
// ============================================================================

func recordCost(st *state.AgentState, model string, usage mcp.Usage) {
	cost := mcp.Cost(model, usage)
	st.Cost.Add(cost, usage.PromptTokens, usage.CompletionTokens)
	metrics.LLMCostUSD.Set(st.Cost.TotalUSD)
}

// extractJSONObject tolerates models that wrap JSON in code fences.
func extractJSONObject(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
