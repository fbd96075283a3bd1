package state

import "time"

// Tier is the DEX age-band category. Ordered from most speculative to most
// conservative; classification picks the most conservative tier a candidate
// qualifies for.
type Tier string

const (
	TierMicrospray  Tier = "microspray"
	TierBreakout    Tier = "breakout"
	TierLottery     Tier = "lottery"
	TierEarly       Tier = "early"
	TierEstablished Tier = "established"
)

// TierPriority ranks tiers for final selection (higher wins).
func TierPriority(t Tier) int {
	switch t {
	case TierEstablished:
		return 5
	case TierEarly:
		return 4
	case TierLottery:
		return 3
	case TierBreakout:
		return 2
	case TierMicrospray:
		return 1
	}
	return 0
}

// ExitReason tags a completed DEX trade.
type ExitReason string

const (
	ExitTakeProfit   ExitReason = "take_profit"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitLostMomentum ExitReason = "lost_momentum"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitManual       ExitReason = "manual"
)

// LegitimacySignals are the boolean inputs to the legitimacy score.
type LegitimacySignals struct {
	HasWebsite  bool `json:"has_website"`
	HasTwitter  bool `json:"has_twitter"`
	HasTelegram bool `json:"has_telegram"`
	BoostCount  int  `json:"boost_count"`
	SellsExist  bool `json:"sells_exist"`
}

// DexMomentumSignal is one scanner candidate with its scores.
type DexMomentumSignal struct {
	TokenAddress   string  `json:"token_address"`
	PairAddress    string  `json:"pair_address"`
	Symbol         string  `json:"symbol"`
	PriceUsd       float64 `json:"price_usd"`
	Change5m       float64 `json:"change_5m"`
	Change1h       float64 `json:"change_1h"`
	Change6h       float64 `json:"change_6h"`
	Change24h      float64 `json:"change_24h"`
	Volume5m       float64 `json:"volume_5m"`
	Volume1h       float64 `json:"volume_1h"`
	Volume6h       float64 `json:"volume_6h"`
	Volume24h      float64 `json:"volume_24h"`
	LiquidityUsd   float64 `json:"liquidity_usd"`
	MarketCap      float64 `json:"market_cap"`
	AgeHours       float64 `json:"age_hours"`
	AgeDays        float64 `json:"age_days"`
	BuyRatio1h     float64 `json:"buy_ratio_1h"`  // buys / (buys+sells), 0.5 = balanced
	BuyRatio24h    float64 `json:"buy_ratio_24h"`
	TxnCount24h    int     `json:"txn_count_24h"`
	Sells24h       int     `json:"sells_24h"`
	MomentumScore  float64 `json:"momentum_score"`
	Legitimacy     float64 `json:"legitimacy_score"` // 0-100
	LegitimacyBits LegitimacySignals `json:"legitimacy_signals"`
	TierName       Tier    `json:"tier"`
}

// DexPosition is one open paper position, keyed by token address.
type DexPosition struct {
	TokenAddress   string    `json:"token_address"`
	Symbol         string    `json:"symbol"`
	EntryPrice     float64   `json:"entry_price"` // post-slippage
	EntrySol       float64   `json:"entry_sol"`
	EntryTime      time.Time `json:"entry_time"`
	TokenAmount    float64   `json:"token_amount"`
	PeakPrice      float64   `json:"peak_price"`
	EntryMomentum  float64   `json:"entry_momentum"`
	EntryLiquidity float64   `json:"entry_liquidity"`
	TierName       Tier      `json:"tier"`
	MissedScans    int       `json:"missed_scans"`
}

// DexTradeRecord is one row of the append-only trade ledger.
type DexTradeRecord struct {
	ID           string     `json:"id"`
	TokenAddress string     `json:"token_address"`
	Symbol       string     `json:"symbol"`
	EntryPrice   float64    `json:"entry_price"`
	ExitPrice    float64    `json:"exit_price"` // post-slippage
	EntrySol     float64    `json:"entry_sol"`
	EntryTime    time.Time  `json:"entry_time"`
	ExitTime     time.Time  `json:"exit_time"`
	PnLPct       float64    `json:"pnl_pct"`
	PnLSol       float64    `json:"pnl_sol"`
	Reason       ExitReason `json:"exit_reason"`
	TierName     Tier       `json:"tier"`
}

// CooldownRecord gates re-entry after a stop or trailing exit.
type CooldownRecord struct {
	ExitPrice      float64   `json:"exit_price"` // pre-slippage signal price at exit
	ExitTime       time.Time `json:"exit_time"`
	FallbackExpiry time.Time `json:"fallback_expiry"`
}

// PortfolioSnapshot is one point of the DEX value history (cap 100).
type PortfolioSnapshot struct {
	Timestamp        time.Time `json:"timestamp"`
	TotalValueSol    float64   `json:"total_value_sol"`
	PaperBalanceSol  float64   `json:"paper_balance_sol"`
	PositionValueSol float64   `json:"position_value_sol"`
	RealizedPnLSol   float64   `json:"realized_pnl_sol"`
}

// DexBook is the whole paper-trading sub-state.
type DexBook struct {
	Signals             []DexMomentumSignal        `json:"signals"`
	Positions           map[string]*DexPosition    `json:"positions"`
	TradeHistory        []DexTradeRecord           `json:"trade_history"`
	RealizedPnLSol      float64                    `json:"realized_pnl_sol"`
	PaperBalanceSol     float64                    `json:"paper_balance_sol"`
	PortfolioHistory    []PortfolioSnapshot        `json:"portfolio_history"`
	PeakValueSol        float64                    `json:"peak_value_sol"` // high-water mark of total value
	PeakBalanceSol      float64                    `json:"peak_balance_sol"`
	DrawdownPaused      bool                       `json:"drawdown_paused"`
	RecentStopLosses    []time.Time                `json:"recent_stop_losses"`
	CircuitBreakerUntil time.Time                  `json:"circuit_breaker_until"`
	CircuitBreakerArmed time.Time                  `json:"circuit_breaker_armed_at"`
	StopLossCooldowns   map[string]*CooldownRecord `json:"stop_loss_cooldowns"`
	CurrentLossStreak   int                        `json:"current_loss_streak"`
	MaxLossStreak       int                        `json:"max_loss_streak"`
	CurrentWinStreak    int                        `json:"current_win_streak"`
	MaxWinStreak        int                        `json:"max_win_streak"`
}

func (b *DexBook) ensureMaps() {
	if b.Positions == nil {
		b.Positions = make(map[string]*DexPosition)
	}
	if b.StopLossCooldowns == nil {
		b.StopLossCooldowns = make(map[string]*CooldownRecord)
	}
}

// Reset zeros the book back to a fresh paper balance. The trade ledger is
// cleared too: reset means a new experiment.
func (b *DexBook) Reset(startingBalance float64) {
	*b = DexBook{
		PaperBalanceSol: startingBalance,
		PeakValueSol:    startingBalance,
		PeakBalanceSol:  startingBalance,
	}
	b.ensureMaps()
}

// TierCount returns the number of open positions in a tier.
func (b *DexBook) TierCount(t Tier) int {
	n := 0
	for _, p := range b.Positions {
		if p.TierName == t {
			n++
		}
	}
	return n
}

// AppendSnapshot records the current portfolio value and maintains the
// drawdown high-water mark. Returns (drawdownPct, pauseJustLifted).
func (b *DexBook) AppendSnapshot(snap PortfolioSnapshot, maxDrawdownPct float64) (float64, bool) {
	b.PortfolioHistory = append(b.PortfolioHistory, snap)
	if len(b.PortfolioHistory) > PortfolioHistoryCap {
		b.PortfolioHistory = b.PortfolioHistory[len(b.PortfolioHistory)-PortfolioHistoryCap:]
	}

	lifted := false
	if snap.TotalValueSol >= b.PeakValueSol {
		b.PeakValueSol = snap.TotalValueSol
		if b.DrawdownPaused {
			b.DrawdownPaused = false
			lifted = true
		}
		return 0, lifted
	}

	drawdownPct := 0.0
	if b.PeakValueSol > 0 {
		drawdownPct = (b.PeakValueSol - snap.TotalValueSol) / b.PeakValueSol * 100
	}
	if drawdownPct >= maxDrawdownPct {
		b.DrawdownPaused = true
	}
	return drawdownPct, false
}

// RecordOutcome updates streak counters after a completed trade.
func (b *DexBook) RecordOutcome(pnlSol float64) {
	if pnlSol > 0 {
		b.CurrentWinStreak++
		b.CurrentLossStreak = 0
		if b.CurrentWinStreak > b.MaxWinStreak {
			b.MaxWinStreak = b.CurrentWinStreak
		}
	} else if pnlSol < 0 {
		b.CurrentLossStreak++
		b.CurrentWinStreak = 0
		if b.CurrentLossStreak > b.MaxLossStreak {
			b.MaxLossStreak = b.CurrentLossStreak
		}
	}
	if b.PaperBalanceSol > b.PeakBalanceSol {
		b.PeakBalanceSol = b.PaperBalanceSol
	}
}
