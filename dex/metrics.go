package dex

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"PulseTrader/state"
)

// PerformanceMetrics summarizes the trade ledger for the status endpoint.
type PerformanceMetrics struct {
	TotalTrades        int     `json:"total_trades"`
	WinRate            float64 `json:"win_rate"` // 0-1
	AvgWinPct          float64 `json:"avg_win_pct"`
	AvgLossPct         float64 `json:"avg_loss_pct"`
	Expectancy         float64 `json:"expectancy"`
	ProfitFactor       float64 `json:"profit_factor"` // capped at 999 for display
	Sharpe             float64 `json:"sharpe"`
	MaxConsecutiveLosses int   `json:"max_consecutive_losses"`
	CurrentLossStreak  int     `json:"current_loss_streak"`
	MaxDrawdownPct     float64 `json:"max_drawdown_pct"`
	MaxDrawdownHours   float64 `json:"max_drawdown_hours"`
	CurrentDrawdownPct float64 `json:"current_drawdown_pct"`
	BreakerActive      bool    `json:"breaker_active"`
	DrawdownPaused     bool    `json:"drawdown_paused"`
	PeakValueSol       float64 `json:"peak_value_sol"`
}

// Performance computes the ledger metrics.
func Performance(book *state.DexBook, now time.Time) PerformanceMetrics {
	m := PerformanceMetrics{
		TotalTrades:          len(book.TradeHistory),
		MaxConsecutiveLosses: book.MaxLossStreak,
		CurrentLossStreak:    book.CurrentLossStreak,
		BreakerActive:        book.CircuitBreakerUntil.After(now),
		DrawdownPaused:       book.DrawdownPaused,
		PeakValueSol:         book.PeakValueSol,
	}
	if len(book.TradeHistory) == 0 {
		return m
	}

	var wins, losses int
	var winPctSum, lossPctSum, winSol, lossSol float64
	returns := make([]float64, 0, len(book.TradeHistory))
	for _, tr := range book.TradeHistory {
		returns = append(returns, tr.PnLPct/100)
		if tr.PnLSol > 0 {
			wins++
			winPctSum += tr.PnLPct
			winSol += tr.PnLSol
		} else if tr.PnLSol < 0 {
			losses++
			lossPctSum += tr.PnLPct
			lossSol += tr.PnLSol
		}
	}

	m.WinRate = float64(wins) / float64(len(book.TradeHistory))
	if wins > 0 {
		m.AvgWinPct = winPctSum / float64(wins)
	}
	if losses > 0 {
		m.AvgLossPct = lossPctSum / float64(losses)
	}
	m.Expectancy = m.WinRate*m.AvgWinPct - (1-m.WinRate)*math.Abs(m.AvgLossPct)

	if lossSol < 0 {
		m.ProfitFactor = winSol / math.Abs(lossSol)
		if m.ProfitFactor > 999 {
			m.ProfitFactor = 999
		}
	} else if winSol > 0 {
		m.ProfitFactor = 999
	}

	if len(returns) > 1 {
		mean := stat.Mean(returns, nil)
		sd := stat.StdDev(returns, nil)
		if sd > 0 {
			m.Sharpe = mean / sd
		}
	}

	m.MaxDrawdownPct, m.MaxDrawdownHours, m.CurrentDrawdownPct = drawdownStats(book.PortfolioHistory)
	return m
}

// drawdownStats walks the portfolio history for max/current drawdown and the
// longest underwater stretch.
func drawdownStats(history []state.PortfolioSnapshot) (maxPct, maxHours, currentPct float64) {
	if len(history) == 0 {
		return 0, 0, 0
	}
	peak := history[0].TotalValueSol
	peakTime := history[0].Timestamp
	for _, snap := range history {
		if snap.TotalValueSol >= peak {
			peak = snap.TotalValueSol
			peakTime = snap.Timestamp
			continue
		}
		if peak > 0 {
			dd := (peak - snap.TotalValueSol) / peak * 100
			if dd > maxPct {
				maxPct = dd
			}
			if h := snap.Timestamp.Sub(peakTime).Hours(); h > maxHours {
				maxHours = h
			}
		}
	}
	last := history[len(history)-1]
	if peak > 0 && last.TotalValueSol < peak {
		currentPct = (peak - last.TotalValueSol) / peak * 100
	}
	return maxPct, maxHours, currentPct
}
