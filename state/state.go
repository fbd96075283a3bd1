package state

import (
	"math"
	"sort"
	"time"

	"PulseTrader/config"
)

const (
	SignalCacheCap     = 200
	SignalMaxAge       = 24 * time.Hour
	LogRingCap         = 500
	PortfolioHistoryCap = 100
)

// Verdict is the per-signal LLM research verdict.
type Verdict string

const (
	VerdictBuy  Verdict = "BUY"
	VerdictSkip Verdict = "SKIP"
	VerdictWait Verdict = "WAIT"
)

// EntryQuality grades how clean the entry looks.
type EntryQuality string

const (
	QualityExcellent EntryQuality = "excellent"
	QualityGood      EntryQuality = "good"
	QualityFair      EntryQuality = "fair"
	QualityPoor      EntryQuality = "poor"
)

// Signal is one scored observation of interest from one source.
type Signal struct {
	Symbol            string    `json:"symbol"`
	Source            string    `json:"source"`
	Sentiment         float64   `json:"sentiment"`          // raw, [-1, +1]
	WeightedSentiment float64   `json:"weighted_sentiment"` // after source weight x freshness x engagement
	Volume            int       `json:"volume"`             // message/post count behind the signal
	Timestamp         time.Time `json:"timestamp"`
	Reason            string    `json:"reason,omitempty"`
	Upvotes           int       `json:"upvotes,omitempty"`
	MomentumPct       float64   `json:"momentum_pct,omitempty"`
	IsCrypto          bool      `json:"is_crypto,omitempty"`
	Price             float64   `json:"price,omitempty"`
}

// SignalResearch is a cached LLM verdict for one symbol.
type SignalResearch struct {
	Verdict      Verdict      `json:"verdict"`
	Confidence   float64      `json:"confidence"`
	EntryQuality EntryQuality `json:"entry_quality"`
	Reasoning    string       `json:"reasoning"`
	RedFlags     []string     `json:"red_flags"`
	Catalysts    []string     `json:"catalysts"`
	Timestamp    time.Time    `json:"timestamp"`
}

// Recommendation is one line of the batch analyst output.
type Recommendation struct {
	Action           string  `json:"action"` // BUY | SELL | HOLD
	Symbol           string  `json:"symbol"`
	Confidence       float64 `json:"confidence"`
	Reasoning        string  `json:"reasoning"`
	SuggestedSizePct float64 `json:"suggested_size_pct,omitempty"`
}

// AnalystReport is the batch analyst output.
type AnalystReport struct {
	Recommendations     []Recommendation `json:"recommendations"`
	MarketSummary       string           `json:"market_summary"`
	HighConvictionPlays []string         `json:"high_conviction_plays"`
	Timestamp           time.Time        `json:"timestamp"`
}

// PremarketPlan is the 09:25 plan, executed once at the open.
type PremarketPlan struct {
	CreatedAt time.Time      `json:"created_at"`
	Report    *AnalystReport `json:"report"`
}

// PositionEntry is the agent-side record of why a position was opened.
type PositionEntry struct {
	EntryTime      time.Time `json:"entry_time"`
	EntryPrice     float64   `json:"entry_price"`
	EntrySentiment float64   `json:"entry_sentiment"`
	EntryVolume    int       `json:"entry_volume"` // social volume at entry
	Sources        []string  `json:"sources"`
	Reason         string    `json:"reason"`
	PeakPrice      float64   `json:"peak_price"`
	PeakSentiment  float64   `json:"peak_sentiment"`
}

// StalenessAnalysis is the cached result of the staleness scorer.
type StalenessAnalysis struct {
	Score        float64   `json:"score"` // 0-100
	IsStale      bool      `json:"is_stale"`
	TimePoints   float64   `json:"time_points"`
	PricePoints  float64   `json:"price_points"`
	VolumePoints float64   `json:"volume_points"`
	SilencePoints float64  `json:"silence_points"`
	Reason       string    `json:"reason"`
	Timestamp    time.Time `json:"timestamp"`
}

// TwitterConfirmation caches a breaking-news sentiment read for a symbol.
type TwitterConfirmation struct {
	Stance    string    `json:"stance"` // "confirms" | "contradicts" | "neutral"
	Headline  string    `json:"headline,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SocialPoint is one point of a symbol's social-volume history.
type SocialPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Volume    int       `json:"volume"`
	Sentiment float64   `json:"sentiment"`
}

// CostTracker accumulates LLM spend. Monotonically nondecreasing.
type CostTracker struct {
	TotalUSD     float64 `json:"total_usd"`
	APICalls     int     `json:"api_calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
}

// Add records one LLM call. Negative or NaN deltas are ignored so the
// counters never move backwards.
func (c *CostTracker) Add(usd float64, inTokens, outTokens int64) {
	if !math.IsNaN(usd) && !math.IsInf(usd, 0) && usd > 0 {
		c.TotalUSD += usd
	}
	c.APICalls++
	if inTokens > 0 {
		c.InputTokens += inTokens
	}
	if outTokens > 0 {
		c.OutputTokens += outTokens
	}
}

// LogEntry is one row of the persistent log ring buffer.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Event     string    `json:"event"`
	Message   string    `json:"message"`
}

// CrisisState mirrors the latest macro evaluation.
type CrisisState struct {
	Level           int              `json:"level"` // 0-3
	Indicators      CrisisIndicators `json:"indicators"`
	Triggered       []string         `json:"triggered"`
	PausedUntil     time.Time        `json:"paused_until"`
	LastLevelChange time.Time        `json:"last_level_change"`
	ClosedSymbols   []string         `json:"closed_symbols"`
	ManualOverride  bool             `json:"manual_override"`
	LastAlerts      map[int]time.Time `json:"last_alerts,omitempty"` // level -> last alert time
}

// CrisisIndicators is the latest indicator snapshot. Nil means the source
// did not answer; the scorer skips nil indicators.
type CrisisIndicators struct {
	VIX                   *float64 `json:"vix"`
	HYSpreadBps           *float64 `json:"hy_spread_bps"`
	YieldCurve2s10s       *float64 `json:"yield_curve_2s10s"`
	TedSpread             *float64 `json:"ted_spread"`
	DXY                   *float64 `json:"dxy"`
	USDJPY                *float64 `json:"usdjpy"`
	KREWeeklyPct          *float64 `json:"kre_weekly_pct"`
	SilverWeeklyPct       *float64 `json:"silver_weekly_pct"`
	FedBalanceSheetWeekly *float64 `json:"fed_balance_sheet_weekly_pct"`
	BTCWeeklyPct          *float64 `json:"btc_weekly_pct"`
	USDTPeg               *float64 `json:"usdt_peg"`
	GoldSilverRatio       *float64 `json:"gold_silver_ratio"`
	StocksAbove200MAPct   *float64 `json:"stocks_above_200ma_pct"`
	GoldPrice             *float64 `json:"gold_price"`
	SilverPrice           *float64 `json:"silver_price"`
	SPXPrice              *float64 `json:"spx_price"`
	BTCPrice              *float64 `json:"btc_price"`
}

// AgentState is the single persistent snapshot. One writer at a time: the
// scheduler goroutine, which also executes control-plane mutations.
type AgentState struct {
	Enabled bool               `json:"enabled"`
	Config  config.AgentConfig `json:"config"`

	Signals          []Signal                      `json:"signals"`
	PositionEntries  map[string]*PositionEntry     `json:"position_entries"`
	SocialHistory    map[string][]SocialPoint      `json:"social_history"`
	Logs             []LogEntry                    `json:"logs"`
	Cost             CostTracker                   `json:"cost_tracker"`

	LastDataGatherRun time.Time `json:"last_data_gather_run"`
	LastResearchRun   time.Time `json:"last_research_run"`
	LastAnalystRun    time.Time `json:"last_analyst_run"`
	LastCrisisCheck   time.Time `json:"last_crisis_check"`
	LastDexScan       time.Time `json:"last_dex_scan"`

	SignalResearch    map[string]*SignalResearch    `json:"signal_research"`
	PositionResearch  map[string]*SignalResearch    `json:"position_research"`
	StalenessAnalysis map[string]*StalenessAnalysis `json:"staleness_analysis"`

	TwitterConfirmations map[string]*TwitterConfirmation `json:"twitter_confirmations"`
	TwitterReadsToday    int                             `json:"twitter_reads_today"`
	TwitterReadsResetAt  time.Time                       `json:"twitter_reads_reset_at"`

	PremarketPlan *PremarketPlan `json:"premarket_plan"`

	Dex    DexBook     `json:"dex"`
	Crisis CrisisState `json:"crisis"`
}

// New returns a first-boot state with default config.
func New() *AgentState {
	cfg := config.Default()
	st := &AgentState{
		Enabled:              false,
		Config:               cfg,
		PositionEntries:      make(map[string]*PositionEntry),
		SocialHistory:        make(map[string][]SocialPoint),
		SignalResearch:       make(map[string]*SignalResearch),
		PositionResearch:     make(map[string]*SignalResearch),
		StalenessAnalysis:    make(map[string]*StalenessAnalysis),
		TwitterConfirmations: make(map[string]*TwitterConfirmation),
	}
	st.Dex.Reset(cfg.DexPaperStartingBalanceSol)
	st.Crisis.LastAlerts = make(map[int]time.Time)
	return st
}

// EnsureMaps re-creates nil maps after deserialization of old snapshots.
func (s *AgentState) EnsureMaps() {
	if s.PositionEntries == nil {
		s.PositionEntries = make(map[string]*PositionEntry)
	}
	if s.SocialHistory == nil {
		s.SocialHistory = make(map[string][]SocialPoint)
	}
	if s.SignalResearch == nil {
		s.SignalResearch = make(map[string]*SignalResearch)
	}
	if s.PositionResearch == nil {
		s.PositionResearch = make(map[string]*SignalResearch)
	}
	if s.StalenessAnalysis == nil {
		s.StalenessAnalysis = make(map[string]*StalenessAnalysis)
	}
	if s.TwitterConfirmations == nil {
		s.TwitterConfirmations = make(map[string]*TwitterConfirmation)
	}
	if s.Crisis.LastAlerts == nil {
		s.Crisis.LastAlerts = make(map[int]time.Time)
	}
	s.Dex.ensureMaps()
}

// AppendLog pushes one entry into the ring buffer (cap 500, oldest dropped).
func (s *AgentState) AppendLog(level, event, message string) {
	s.Logs = append(s.Logs, LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Event:     event,
		Message:   message,
	})
	if len(s.Logs) > LogRingCap {
		s.Logs = s.Logs[len(s.Logs)-LogRingCap:]
	}
}

// MergeSignals replaces the cache with the freshest view: incoming signals
// are concatenated, entries older than 24h dropped, the rest sorted by
// |weighted sentiment| descending and truncated to 200.
func (s *AgentState) MergeSignals(incoming []Signal, now time.Time) {
	merged := make([]Signal, 0, len(incoming))
	cutoff := now.Add(-SignalMaxAge)
	for _, sig := range incoming {
		if sig.Timestamp.After(cutoff) {
			merged = append(merged, sig)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return math.Abs(merged[i].WeightedSentiment) > math.Abs(merged[j].WeightedSentiment)
	})
	if len(merged) > SignalCacheCap {
		merged = merged[:SignalCacheCap]
	}
	s.Signals = merged
}

// RecordSocial appends a social-volume observation for a symbol, keeping a
// bounded 7-day window per symbol.
func (s *AgentState) RecordSocial(symbol string, p SocialPoint) {
	hist := append(s.SocialHistory[symbol], p)
	cutoff := p.Timestamp.Add(-7 * 24 * time.Hour)
	for len(hist) > 0 && hist[0].Timestamp.Before(cutoff) {
		hist = hist[1:]
	}
	s.SocialHistory[symbol] = hist
}

// LatestSocial returns the most recent social observation for symbol.
func (s *AgentState) LatestSocial(symbol string) (SocialPoint, bool) {
	hist := s.SocialHistory[symbol]
	if len(hist) == 0 {
		return SocialPoint{}, false
	}
	return hist[len(hist)-1], true
}

// Repair resets corrupt numeric fields to safe values at load time and
// returns a note per fix. Stored JSON cannot carry NaN, but partial writes
// from older versions could leave negative balances or counters.
func (s *AgentState) Repair() []string {
	var notes []string
	if math.IsNaN(s.Dex.PaperBalanceSol) || math.IsInf(s.Dex.PaperBalanceSol, 0) || s.Dex.PaperBalanceSol < 0 {
		notes = append(notes, "state: dex paper balance repaired to starting balance")
		s.Dex.PaperBalanceSol = s.Config.DexPaperStartingBalanceSol
	}
	if s.Dex.PeakBalanceSol < s.Dex.PaperBalanceSol {
		s.Dex.PeakBalanceSol = s.Dex.PaperBalanceSol
	}
	if math.IsNaN(s.Cost.TotalUSD) || s.Cost.TotalUSD < 0 {
		notes = append(notes, "state: cost tracker repaired to zero")
		s.Cost = CostTracker{}
	}
	for addr, pos := range s.Dex.Positions {
		if pos == nil || pos.TokenAmount <= 0 || pos.EntryPrice <= 0 {
			notes = append(notes, "state: dropped corrupt dex position "+addr)
			delete(s.Dex.Positions, addr)
			continue
		}
		if pos.PeakPrice < pos.EntryPrice {
			pos.PeakPrice = pos.EntryPrice
		}
	}
	return notes
}
