package config

import (
	"encoding/json"
	"fmt"
	"math"
)

// AgentConfig is the full set of tunable knobs for the agent. It is persisted
// inside the state snapshot and patched at runtime via POST /config, so every
// field carries a stable snake_case JSON key. Patch semantics are a shallow
// merge by key; unknown keys are ignored.
type AgentConfig struct {
	// ============================================================================
	// Scheduling
	// ============================================================================
	TickIntervalMs       int  `json:"tick_interval_ms"`        // core loop cadence (default 30s)
	DataPollIntervalMs   int  `json:"data_poll_interval_ms"`   // gatherer cadence
	AnalystIntervalMs    int  `json:"analyst_interval_ms"`     // batch analyst cadence
	ResearchIntervalMs   int  `json:"research_interval_ms"`    // per-signal research cadence
	CrisisCheckIntervalMs int `json:"crisis_check_interval_ms"`
	CrisisModeEnabled    bool `json:"crisis_mode_enabled"`

	// ============================================================================
	// Stock risk
	// ============================================================================
	StocksEnabled         bool     `json:"stocks_enabled"`
	MaxPositionValue      float64  `json:"max_position_value"`       // USD cap per position
	MaxPositions          int      `json:"max_positions"`            // CODE ENFORCED
	PositionSizePctOfCash float64  `json:"position_size_pct_of_cash"`
	TakeProfitPct         float64  `json:"take_profit_pct"`
	StopLossPct           float64  `json:"stop_loss_pct"`
	MinSentimentScore     float64  `json:"min_sentiment_score"`
	MinAnalystConfidence  float64  `json:"min_analyst_confidence"`
	LLMMinHoldMinutes     int      `json:"llm_min_hold_minutes"` // SELL recommendations younger than this are ignored
	AllowedExchanges      []string `json:"allowed_exchanges"`

	// ============================================================================
	// Stale position policy
	// ============================================================================
	StalePositionEnabled   bool    `json:"stale_position_enabled"`
	StaleMinHoldHours      float64 `json:"stale_min_hold_hours"`
	StaleMidHoldDays       float64 `json:"stale_mid_hold_days"`
	StaleMaxHoldDays       float64 `json:"stale_max_hold_days"`
	StaleMinGainPct        float64 `json:"stale_min_gain_pct"`
	StaleSocialVolumeDecay float64 `json:"stale_social_volume_decay"` // ratio of entry volume that counts as decayed
	StaleNoMentionHours    float64 `json:"stale_no_mention_hours"`    // fourth component: silence on social feeds

	// ============================================================================
	// LLM
	// ============================================================================
	LLMProvider     string  `json:"llm_provider"` // "openai" or any OpenAI-compatible endpoint
	LLMBaseURL      string  `json:"llm_base_url"`
	ResearchModel   string  `json:"research_model"` // cheap model for per-signal verdicts
	AnalystModel    string  `json:"analyst_model"`  // smart model for the batch pass
	LLMMaxTokens    int     `json:"llm_max_tokens"`
	LLMBudgetUSD    float64 `json:"llm_budget_usd"` // soft monthly budget, informational

	// ============================================================================
	// Twitter confirmation
	// ============================================================================
	TwitterConfirmationEnabled bool `json:"twitter_confirmation_enabled"`
	TwitterDailyReadLimit      int  `json:"twitter_daily_read_limit"`

	// ============================================================================
	// Options
	// ============================================================================
	OptionsEnabled        bool    `json:"options_enabled"`
	OptionsMinDTE         int     `json:"options_min_dte"`
	OptionsMaxDTE         int     `json:"options_max_dte"`
	OptionsMinDelta       float64 `json:"options_min_delta"`
	OptionsMaxDelta       float64 `json:"options_max_delta"`
	OptionsTakeProfitPct  float64 `json:"options_take_profit_pct"`
	OptionsStopLossPct    float64 `json:"options_stop_loss_pct"`
	OptionsMinConfidence  float64 `json:"options_min_confidence"`
	OptionsMaxPctPerTrade float64 `json:"options_max_pct_per_trade"` // % of equity per contract position

	// ============================================================================
	// Crypto
	// ============================================================================
	CryptoEnabled           bool     `json:"crypto_enabled"`
	CryptoSymbols           []string `json:"crypto_symbols"`
	CryptoMomentumThreshold float64  `json:"crypto_momentum_threshold"` // abs % vs prev daily close
	CryptoTakeProfitPct     float64  `json:"crypto_take_profit_pct"`
	CryptoStopLossPct       float64  `json:"crypto_stop_loss_pct"`
	CryptoMaxPositionValue  float64  `json:"crypto_max_position_value"`

	// ============================================================================
	// DEX — global
	// ============================================================================
	DexEnabled                  bool    `json:"dex_enabled"`
	DexPaperStartingBalanceSol  float64 `json:"dex_paper_starting_balance_sol"`
	DexMaxPositions             int     `json:"dex_max_positions"`
	DexPositionSizePct          float64 `json:"dex_position_size_pct"` // % of paper balance (established tier)
	DexMaxPositionSol           float64 `json:"dex_max_position_sol"`
	DexStopLossPct              float64 `json:"dex_stop_loss_pct"`
	DexTrailingStopActivationPct float64 `json:"dex_trailing_stop_activation_pct"`
	DexTrailingStopDistancePct  float64 `json:"dex_trailing_stop_distance_pct"`
	DexLotteryTrailingActivation float64 `json:"dex_lottery_trailing_activation"` // high-risk tiers
	DexMinMomentumScore         float64 `json:"dex_min_momentum_score"`
	DexSlippageModel            string  `json:"dex_slippage_model"` // "none" | "conservative" | "realistic"
	DexGasFeeSol                float64 `json:"dex_gas_fee_sol"`
	DexMaxDrawdownPct           float64 `json:"dex_max_drawdown_pct"`
	DexMaxSinglePositionPct     float64 `json:"dex_max_single_position_pct"` // concentration cap
	DexCircuitBreakerLosses     int     `json:"dex_circuit_breaker_losses"`
	DexCircuitBreakerWindowHours float64 `json:"dex_circuit_breaker_window_hours"`
	DexCircuitBreakerPauseHours float64 `json:"dex_circuit_breaker_pause_hours"`
	DexBreakerMinCooldownMinutes float64 `json:"dex_breaker_min_cooldown_minutes"`
	DexReentryRecoveryPct       float64 `json:"dex_reentry_recovery_pct"`
	DexReentryMinMomentum       float64 `json:"dex_reentry_min_momentum"`
	DexStopLossCooldownHours    float64 `json:"dex_stop_loss_cooldown_hours"`
	DexChartAnalysisEnabled     bool    `json:"dex_chart_analysis_enabled"`
	DexChartMinEntryScore       float64 `json:"dex_chart_min_entry_score"`
	DexScanIntervalMs           int     `json:"dex_scan_interval_ms"`

	// ============================================================================
	// DEX — tiers
	// ============================================================================
	DexMicrosprayEnabled       bool    `json:"dex_microspray_enabled"`
	DexMicrosprayPositionSol   float64 `json:"dex_microspray_position_sol"`
	DexMicrosprayMaxPositions  int     `json:"dex_microspray_max_positions"`
	DexMicrosprayStopLossPct   float64 `json:"dex_microspray_stop_loss_pct"`
	DexMicrosprayMinLiquidity  float64 `json:"dex_microspray_min_liquidity"`
	DexMicrosprayMinVolume     float64 `json:"dex_microspray_min_volume"`
	DexMicrosprayMinAgeMinutes float64 `json:"dex_microspray_min_age_minutes"`
	DexMicrosprayMaxAgeHours   float64 `json:"dex_microspray_max_age_hours"`

	DexBreakoutEnabled      bool    `json:"dex_breakout_enabled"`
	DexBreakoutPositionSol  float64 `json:"dex_breakout_position_sol"`
	DexBreakoutMaxPositions int     `json:"dex_breakout_max_positions"`
	DexBreakoutStopLossPct  float64 `json:"dex_breakout_stop_loss_pct"`
	DexBreakoutMinLiquidity float64 `json:"dex_breakout_min_liquidity"`
	DexBreakoutMinVolume    float64 `json:"dex_breakout_min_volume"`
	DexBreakoutMin5mPump    float64 `json:"dex_breakout_min_5m_pump"` // 5-minute change %
	DexBreakoutMinAgeHours  float64 `json:"dex_breakout_min_age_hours"`
	DexBreakoutMaxAgeHours  float64 `json:"dex_breakout_max_age_hours"`

	DexLotteryEnabled      bool    `json:"dex_lottery_enabled"`
	DexLotteryPositionSol  float64 `json:"dex_lottery_position_sol"`
	DexLotteryMaxPositions int     `json:"dex_lottery_max_positions"`
	DexLotteryStopLossPct  float64 `json:"dex_lottery_stop_loss_pct"`
	DexLotteryMinLiquidity float64 `json:"dex_lottery_min_liquidity"`
	DexLotteryMinVolume    float64 `json:"dex_lottery_min_volume"`
	DexLotteryMin1hChange  float64 `json:"dex_lottery_min_1h_change"`
	DexLotteryMinAgeHours  float64 `json:"dex_lottery_min_age_hours"`
	DexLotteryMaxAgeHours  float64 `json:"dex_lottery_max_age_hours"`

	DexEarlyEnabled         bool    `json:"dex_early_enabled"`
	DexEarlyPositionSizePct float64 `json:"dex_early_position_size_pct"` // % of the standard size
	DexEarlyStopLossPct     float64 `json:"dex_early_stop_loss_pct"`
	DexEarlyMinLiquidity    float64 `json:"dex_early_min_liquidity"`
	DexEarlyMinVolume       float64 `json:"dex_early_min_volume"`
	DexEarlyMinLegitimacy   float64 `json:"dex_early_min_legitimacy"`
	DexEarlyMin24hChange    float64 `json:"dex_early_min_24h_change"`
	DexEarlyMinAgeHours     float64 `json:"dex_early_min_age_hours"`
	DexEarlyMaxAgeDays      float64 `json:"dex_early_max_age_days"`

	DexEstablishedEnabled      bool    `json:"dex_established_enabled"`
	DexEstablishedStopLossPct  float64 `json:"dex_established_stop_loss_pct"`
	DexEstablishedMinLiquidity float64 `json:"dex_established_min_liquidity"`
	DexEstablishedMinVolume    float64 `json:"dex_established_min_volume"`
	DexEstablishedMin24hChange float64 `json:"dex_established_min_24h_change"`
	DexEstablishedMinAgeDays   float64 `json:"dex_established_min_age_days"`
	DexEstablishedMaxAgeDays   float64 `json:"dex_established_max_age_days"`

	// Legacy DEX keys. Older snapshots carried one global age/liquidity/volume
	// filter; when a stored snapshot has these but lacks the tier-specific
	// keys, migration fills the tier keys from them (tier keys always win).
	DexMinAgeDays    *float64 `json:"dex_min_age_days,omitempty"`
	DexMaxAgeDays    *float64 `json:"dex_max_age_days,omitempty"`
	DexMinLiquidity  *float64 `json:"dex_min_liquidity,omitempty"`
	DexMinVolume24h  *float64 `json:"dex_min_volume_24h,omitempty"`

	// ============================================================================
	// Crisis thresholds
	// ============================================================================
	VixElevated              float64 `json:"vix_elevated"`
	VixHigh                  float64 `json:"vix_high"`
	VixCritical              float64 `json:"vix_critical"`
	HySpreadWarning          float64 `json:"hy_spread_warning"`  // bps
	HySpreadCritical         float64 `json:"hy_spread_critical"` // bps
	BtcWeeklyDropPct         float64 `json:"btc_weekly_drop_pct"` // critical threshold, negative
	StablecoinDepegThreshold float64 `json:"stablecoin_depeg_threshold"`
	GoldSilverRatioLow       float64 `json:"gold_silver_ratio_low"`
	StocksAbove200maWarning  float64 `json:"stocks_above_200ma_warning"`
	StocksAbove200maCritical float64 `json:"stocks_above_200ma_critical"`
	YieldCurveInversionWarning  float64 `json:"yield_curve_inversion_warning"`
	YieldCurveInversionCritical float64 `json:"yield_curve_inversion_critical"`
	TedSpreadWarning         float64 `json:"ted_spread_warning"`
	TedSpreadCritical        float64 `json:"ted_spread_critical"`
	DxyElevated              float64 `json:"dxy_elevated"`
	DxyCritical              float64 `json:"dxy_critical"`
	UsdjpyWarning            float64 `json:"usdjpy_warning"`
	UsdjpyCritical           float64 `json:"usdjpy_critical"`
	KreWeeklyWarning         float64 `json:"kre_weekly_warning"`
	KreWeeklyCritical        float64 `json:"kre_weekly_critical"`
	SilverWeeklyWarning      float64 `json:"silver_weekly_warning"`
	SilverWeeklyCritical     float64 `json:"silver_weekly_critical"`
	FedBalanceSheetWeeklyWarning  float64 `json:"fed_balance_sheet_weekly_warning"`
	FedBalanceSheetWeeklyCritical float64 `json:"fed_balance_sheet_weekly_critical"`
	CrisisLevel1SizeReductionPct  float64 `json:"crisis_level1_size_reduction_pct"`
	CrisisLevel1StopLossPct       float64 `json:"crisis_level1_stop_loss_pct"`
	CrisisLevel2MinProfitToHold   float64 `json:"crisis_level2_min_profit_to_hold"`
	CrisisAlertCooldownMinutes    float64 `json:"crisis_alert_cooldown_minutes"`

	// ============================================================================
	// Gatherer sources
	// ============================================================================
	ForumSubgroups        []string `json:"forum_subgroups"`
	ForumSourceWeight     float64  `json:"forum_source_weight"`
	StocktwitsSourceWeight float64 `json:"stocktwits_source_weight"`
	TickerBlacklist       []string `json:"ticker_blacklist"` // user additions on top of the built-in set
}

// Default returns the configuration written on first boot.
func Default() AgentConfig {
	return AgentConfig{
		TickIntervalMs:        30_000,
		DataPollIntervalMs:    300_000,
		AnalystIntervalMs:     600_000,
		ResearchIntervalMs:    120_000,
		CrisisCheckIntervalMs: 900_000,
		CrisisModeEnabled:     true,

		StocksEnabled:         true,
		MaxPositionValue:      1000,
		MaxPositions:          3,
		PositionSizePctOfCash: 20,
		TakeProfitPct:         10,
		StopLossPct:           5,
		MinSentimentScore:     0.3,
		MinAnalystConfidence:  0.7,
		LLMMinHoldMinutes:     30,
		AllowedExchanges:      []string{"NYSE", "NASDAQ", "ARCA", "AMEX", "BATS"},

		StalePositionEnabled:   true,
		StaleMinHoldHours:      24,
		StaleMidHoldDays:       3,
		StaleMaxHoldDays:       7,
		StaleMinGainPct:        2,
		StaleSocialVolumeDecay: 0.3,
		StaleNoMentionHours:    12,

		LLMProvider:   "openai",
		LLMBaseURL:    "https://api.openai.com/v1",
		ResearchModel: "gpt-4o-mini",
		AnalystModel:  "gpt-4o",
		LLMMaxTokens:  1200,
		LLMBudgetUSD:  50,

		TwitterConfirmationEnabled: false,
		TwitterDailyReadLimit:      100,

		OptionsEnabled:        false,
		OptionsMinDTE:         14,
		OptionsMaxDTE:         45,
		OptionsMinDelta:       0.35,
		OptionsMaxDelta:       0.65,
		OptionsTakeProfitPct:  50,
		OptionsStopLossPct:    30,
		OptionsMinConfidence:  0.85,
		OptionsMaxPctPerTrade: 5,

		CryptoEnabled:           false,
		CryptoSymbols:           []string{"BTCUSD", "ETHUSD", "SOLUSD"},
		CryptoMomentumThreshold: 3,
		CryptoTakeProfitPct:     8,
		CryptoStopLossPct:       4,
		CryptoMaxPositionValue:  500,

		DexEnabled:                   false,
		DexPaperStartingBalanceSol:   10,
		DexMaxPositions:              5,
		DexPositionSizePct:           10,
		DexMaxPositionSol:            1,
		DexStopLossPct:               25,
		DexTrailingStopActivationPct: 30,
		DexTrailingStopDistancePct:   15,
		DexLotteryTrailingActivation: 40,
		DexMinMomentumScore:          60,
		DexSlippageModel:             "realistic",
		DexGasFeeSol:                 0.001,
		DexMaxDrawdownPct:            30,
		DexMaxSinglePositionPct:      25,
		DexCircuitBreakerLosses:      3,
		DexCircuitBreakerWindowHours: 1,
		DexCircuitBreakerPauseHours:  1,
		DexBreakerMinCooldownMinutes: 15,
		DexReentryRecoveryPct:        15,
		DexReentryMinMomentum:        75,
		DexStopLossCooldownHours:     4,
		DexChartAnalysisEnabled:      true,
		DexChartMinEntryScore:        30,
		DexScanIntervalMs:            30_000,

		DexMicrosprayEnabled:       false,
		DexMicrosprayPositionSol:   0.01,
		DexMicrosprayMaxPositions:  2,
		DexMicrosprayStopLossPct:   35,
		DexMicrosprayMinLiquidity:  5000,
		DexMicrosprayMinVolume:     2000,
		DexMicrosprayMinAgeMinutes: 30,
		DexMicrosprayMaxAgeHours:   2,

		DexBreakoutEnabled:      true,
		DexBreakoutPositionSol:  0.02,
		DexBreakoutMaxPositions: 2,
		DexBreakoutStopLossPct:  30,
		DexBreakoutMinLiquidity: 10_000,
		DexBreakoutMinVolume:    5000,
		DexBreakoutMin5mPump:    30,
		DexBreakoutMinAgeHours:  2,
		DexBreakoutMaxAgeHours:  6,

		DexLotteryEnabled:      true,
		DexLotteryPositionSol:  0.02,
		DexLotteryMaxPositions: 2,
		DexLotteryStopLossPct:  30,
		DexLotteryMinLiquidity: 15_000,
		DexLotteryMinVolume:    7500,
		DexLotteryMin1hChange:  5,
		DexLotteryMinAgeHours:  1,
		DexLotteryMaxAgeHours:  6,

		DexEarlyEnabled:         true,
		DexEarlyPositionSizePct: 50,
		DexEarlyStopLossPct:     25,
		DexEarlyMinLiquidity:    25_000,
		DexEarlyMinVolume:       10_000,
		DexEarlyMinLegitimacy:   40,
		DexEarlyMin24hChange:    20,
		DexEarlyMinAgeHours:     6,
		DexEarlyMaxAgeDays:      3,

		DexEstablishedEnabled:      true,
		DexEstablishedStopLossPct:  20,
		DexEstablishedMinLiquidity: 50_000,
		DexEstablishedMinVolume:    25_000,
		DexEstablishedMin24hChange: 10,
		DexEstablishedMinAgeDays:   3,
		DexEstablishedMaxAgeDays:   14,

		VixElevated:              20,
		VixHigh:                  28,
		VixCritical:              35,
		HySpreadWarning:          400,
		HySpreadCritical:         500,
		BtcWeeklyDropPct:         -20,
		StablecoinDepegThreshold: 0.985,
		GoldSilverRatioLow:       65,
		StocksAbove200maWarning:  40,
		StocksAbove200maCritical: 25,
		YieldCurveInversionWarning:  0,
		YieldCurveInversionCritical: -0.5,
		TedSpreadWarning:         0.5,
		TedSpreadCritical:        1.0,
		DxyElevated:              105,
		DxyCritical:              110,
		UsdjpyWarning:            140,
		UsdjpyCritical:           130,
		KreWeeklyWarning:         -5,
		KreWeeklyCritical:        -10,
		SilverWeeklyWarning:      8,
		SilverWeeklyCritical:     15,
		FedBalanceSheetWeeklyWarning:  1,
		FedBalanceSheetWeeklyCritical: 2,
		CrisisLevel1SizeReductionPct:  50,
		CrisisLevel1StopLossPct:       3,
		CrisisLevel2MinProfitToHold:   0,
		CrisisAlertCooldownMinutes:    5,

		ForumSubgroups:         []string{"wallstreetbets", "stocks", "investing"},
		ForumSourceWeight:      1.0,
		StocktwitsSourceWeight: 0.8,
		TickerBlacklist:        []string{},
	}
}

// Migrate fills a stored config JSON against the current schema: every known
// key missing or null in the snapshot gets its default, unknown keys are
// dropped, and the legacy global DEX filters seed absent tier-specific keys.
// The returned notes describe each repair for the log ring.
func Migrate(raw json.RawMessage) (AgentConfig, []string) {
	def := Default()
	if len(raw) == 0 {
		return def, nil
	}

	var stored map[string]json.RawMessage
	if err := json.Unmarshal(raw, &stored); err != nil {
		return def, []string{fmt.Sprintf("config snapshot unreadable, reset to defaults: %v", err)}
	}

	defJSON, _ := json.Marshal(def)
	var merged map[string]json.RawMessage
	_ = json.Unmarshal(defJSON, &merged)

	var notes []string
	for key := range merged {
		v, ok := stored[key]
		if !ok || string(v) == "null" {
			continue // keep default
		}
		merged[key] = v
	}

	// Legacy global DEX filters seed tier keys the snapshot does not carry.
	applyLegacy := func(legacyKey string, tierKeys ...string) {
		v, ok := stored[legacyKey]
		if !ok || string(v) == "null" {
			return
		}
		for _, tk := range tierKeys {
			if _, has := stored[tk]; !has {
				merged[tk] = v
				notes = append(notes, fmt.Sprintf("config: %s seeded from legacy %s", tk, legacyKey))
			}
		}
	}
	applyLegacy("dex_min_liquidity",
		"dex_microspray_min_liquidity", "dex_breakout_min_liquidity", "dex_lottery_min_liquidity",
		"dex_early_min_liquidity", "dex_established_min_liquidity")
	applyLegacy("dex_min_volume_24h",
		"dex_microspray_min_volume", "dex_breakout_min_volume", "dex_lottery_min_volume",
		"dex_early_min_volume", "dex_established_min_volume")
	applyLegacy("dex_min_age_days", "dex_established_min_age_days")
	applyLegacy("dex_max_age_days", "dex_established_max_age_days")

	mergedJSON, _ := json.Marshal(merged)
	cfg := Default()
	if err := json.Unmarshal(mergedJSON, &cfg); err != nil {
		return Default(), append(notes, fmt.Sprintf("config merge failed, reset to defaults: %v", err))
	}

	notes = append(notes, sanitize(&cfg)...)
	return cfg, notes
}

// Patch shallow-merges a JSON object into cfg (POST /config semantics).
func Patch(cfg AgentConfig, patch json.RawMessage) (AgentConfig, []string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(patch, &obj); err != nil {
		return cfg, nil, fmt.Errorf("invalid config patch: %w", err)
	}
	cur, _ := json.Marshal(cfg)
	var merged map[string]json.RawMessage
	_ = json.Unmarshal(cur, &merged)
	for key, v := range obj {
		if _, known := merged[key]; known && string(v) != "null" {
			merged[key] = v
		}
	}
	mergedJSON, _ := json.Marshal(merged)
	next := cfg
	if err := json.Unmarshal(mergedJSON, &next); err != nil {
		return cfg, nil, fmt.Errorf("config patch rejected: %w", err)
	}
	notes := sanitize(&next)
	return next, notes, nil
}

// sanitize repairs corrupt scalars (NaN, non-positive intervals, out-of-range
// percentages) back to their defaults. Each scalar repair is reported; empty
// exchange, crypto-symbol and subgroup lists are refilled without a note.
func sanitize(cfg *AgentConfig) []string {
	def := Default()
	var notes []string

	fixF := func(name string, v *float64, bad func(float64) bool, d float64) {
		if bad(*v) {
			notes = append(notes, fmt.Sprintf("config: %s repaired %v -> %v", name, *v, d))
			*v = d
		}
	}
	nanOrNeg := func(f float64) bool { return math.IsNaN(f) || math.IsInf(f, 0) || f < 0 }
	nanOrNonPos := func(f float64) bool { return math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 }

	if cfg.TickIntervalMs <= 0 {
		notes = append(notes, fmt.Sprintf("config: tick_interval_ms repaired %d -> %d", cfg.TickIntervalMs, def.TickIntervalMs))
		cfg.TickIntervalMs = def.TickIntervalMs
	}
	if cfg.DataPollIntervalMs <= 0 {
		cfg.DataPollIntervalMs = def.DataPollIntervalMs
		notes = append(notes, "config: data_poll_interval_ms repaired")
	}
	if cfg.AnalystIntervalMs <= 0 {
		cfg.AnalystIntervalMs = def.AnalystIntervalMs
		notes = append(notes, "config: analyst_interval_ms repaired")
	}
	if cfg.ResearchIntervalMs <= 0 {
		cfg.ResearchIntervalMs = def.ResearchIntervalMs
		notes = append(notes, "config: research_interval_ms repaired")
	}
	if cfg.CrisisCheckIntervalMs <= 0 {
		cfg.CrisisCheckIntervalMs = def.CrisisCheckIntervalMs
		notes = append(notes, "config: crisis_check_interval_ms repaired")
	}
	if cfg.MaxPositions < 0 {
		cfg.MaxPositions = def.MaxPositions
		notes = append(notes, "config: max_positions repaired")
	}
	if cfg.DexMaxPositions < 0 {
		cfg.DexMaxPositions = def.DexMaxPositions
		notes = append(notes, "config: dex_max_positions repaired")
	}

	fixF("max_position_value", &cfg.MaxPositionValue, nanOrNonPos, def.MaxPositionValue)
	fixF("position_size_pct_of_cash", &cfg.PositionSizePctOfCash, nanOrNonPos, def.PositionSizePctOfCash)
	fixF("take_profit_pct", &cfg.TakeProfitPct, nanOrNonPos, def.TakeProfitPct)
	fixF("stop_loss_pct", &cfg.StopLossPct, nanOrNonPos, def.StopLossPct)
	fixF("min_analyst_confidence", &cfg.MinAnalystConfidence, func(f float64) bool {
		return math.IsNaN(f) || f <= 0 || f > 1
	}, def.MinAnalystConfidence)
	fixF("dex_paper_starting_balance_sol", &cfg.DexPaperStartingBalanceSol, nanOrNonPos, def.DexPaperStartingBalanceSol)
	fixF("dex_stop_loss_pct", &cfg.DexStopLossPct, nanOrNonPos, def.DexStopLossPct)
	fixF("dex_gas_fee_sol", &cfg.DexGasFeeSol, nanOrNeg, def.DexGasFeeSol)
	fixF("dex_max_drawdown_pct", &cfg.DexMaxDrawdownPct, nanOrNonPos, def.DexMaxDrawdownPct)
	fixF("dex_max_single_position_pct", &cfg.DexMaxSinglePositionPct, nanOrNonPos, def.DexMaxSinglePositionPct)

	switch cfg.DexSlippageModel {
	case "none", "conservative", "realistic":
	default:
		notes = append(notes, fmt.Sprintf("config: dex_slippage_model repaired %q -> %q", cfg.DexSlippageModel, def.DexSlippageModel))
		cfg.DexSlippageModel = def.DexSlippageModel
	}

	if len(cfg.AllowedExchanges) == 0 {
		cfg.AllowedExchanges = def.AllowedExchanges
	}
	if len(cfg.CryptoSymbols) == 0 {
		cfg.CryptoSymbols = def.CryptoSymbols
	}
	if len(cfg.ForumSubgroups) == 0 {
		cfg.ForumSubgroups = def.ForumSubgroups
	}
	return notes
}
