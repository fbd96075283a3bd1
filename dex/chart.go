package dex

import (
	"context"
	"errors"
	"math"

	talib "github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"PulseTrader/dexmarket"
	"PulseTrader/logger"
)

// ChartAnalysis is the entry-quality read on a token's recent candles.
type ChartAnalysis struct {
	Patterns           []string `json:"patterns"`
	Trend              string   `json:"trend"`               // "up" | "down" | "sideways"
	Volatility         float64  `json:"volatility"`          // stdev of candle returns
	VolumeProfile      string   `json:"volume_profile"`      // "accumulation" | "distribution" | "neutral"
	VolumeConfirmation string   `json:"volume_confirmation"` // "confirmed" | "diverging" | "climax"
	RSI                float64  `json:"rsi"`
	MomentumQuality    string   `json:"momentum_quality"` // "fresh" | "extended" | "exhausted"
	BreakoutQuality    string   `json:"breakout_quality"` // "strong" | "weak" | "failed" | "none"
	Support            float64  `json:"support"`
	Resistance         float64  `json:"resistance"`
	EntryScore         float64  `json:"entry_score"` // 0-100
	Recommendation     string   `json:"recommendation"`
}

// ChartGate scores candle history before a DEX entry. Provider errors never
// reject an entry: no data means no gate.
type ChartGate struct {
	Provider dexmarket.ChartProvider
}

// Analyze fetches candles and scores the setup. Returns (nil, nil) when the
// token is too new or history is too thin for a meaningful read.
func (g *ChartGate) Analyze(ctx context.Context, pairAddress string, ageHours float64) (*ChartAnalysis, error) {
	interval := "15m"
	if ageHours < 3 {
		interval = "5m"
	}
	candles, err := g.Provider.GetOHLCV(ctx, pairAddress, interval, 50)
	if err != nil {
		if errors.Is(err, dexmarket.ErrTokenTooNew) {
			return nil, nil
		}
		return nil, err
	}
	if len(candles) < 10 {
		logger.Debugf("📉 %s: only %d candles, skipping chart gate", pairAddress, len(candles))
		return nil, nil
	}
	return analyzeCandles(candles), nil
}

func analyzeCandles(candles []dexmarket.Candle) *ChartAnalysis {
	n := len(candles)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	lows := make([]float64, n)
	highs := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
		lows[i] = c.Low
		highs[i] = c.High
	}

	a := &ChartAnalysis{}

	// Trend: 5-candle average vs 15-candle average.
	shortAvg := mean(closes[maxInt(0, n-5):])
	longAvg := mean(closes[maxInt(0, n-15):])
	switch {
	case longAvg > 0 && shortAvg > longAvg*1.02:
		a.Trend = "up"
	case longAvg > 0 && shortAvg < longAvg*0.98:
		a.Trend = "down"
	default:
		a.Trend = "sideways"
	}

	// Volatility from candle-to-candle returns.
	returns := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if closes[i-1] > 0 {
			returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
		}
	}
	if len(returns) > 1 {
		a.Volatility = stat.StdDev(returns, nil)
	}

	// Volume profile: up-candle volume vs down-candle volume.
	var upVol, downVol float64
	for i := 1; i < n; i++ {
		if closes[i] >= closes[i-1] {
			upVol += volumes[i]
		} else {
			downVol += volumes[i]
		}
	}
	switch {
	case upVol > downVol*1.3:
		a.VolumeProfile = "accumulation"
	case downVol > upVol*1.3:
		a.VolumeProfile = "distribution"
	default:
		a.VolumeProfile = "neutral"
	}

	// Volume confirmation: recent volume vs baseline.
	recentVol := mean(volumes[maxInt(0, n-5):])
	baseVol := mean(volumes[:maxInt(1, n-5)])
	switch {
	case baseVol > 0 && recentVol > baseVol*4:
		a.VolumeConfirmation = "climax"
	case baseVol > 0 && recentVol > baseVol*1.2 && a.Trend == "up":
		a.VolumeConfirmation = "confirmed"
	default:
		a.VolumeConfirmation = "diverging"
	}

	// RSI over min(14, n-1) periods.
	period := 14
	if n-1 < period {
		period = n - 1
	}
	if period >= 2 {
		rsi := talib.Rsi(closes, period)
		if last := rsi[len(rsi)-1]; !math.IsNaN(last) {
			a.RSI = last
		}
	}

	// Momentum quality from RSI and trend age.
	totalMove := 0.0
	if closes[0] > 0 {
		totalMove = (closes[n-1] - closes[0]) / closes[0] * 100
	}
	switch {
	case a.RSI > 0 && a.RSI < 60 && a.Trend == "up":
		a.MomentumQuality = "fresh"
	case a.RSI >= 60 && a.RSI < 80:
		a.MomentumQuality = "extended"
	case a.RSI >= 80 || totalMove > 150:
		a.MomentumQuality = "exhausted"
	default:
		a.MomentumQuality = "fresh"
	}

	// Support/resistance from the recent lookback.
	lookback := maxInt(0, n-20)
	a.Support = minOf(lows[lookback:])
	a.Resistance = maxOf(highs[lookback:])

	// Patterns.
	last := closes[n-1]
	if a.VolumeProfile == "accumulation" && a.Trend != "down" {
		a.Patterns = append(a.Patterns, "accumulation")
	}
	if a.Volatility > 0 && a.Volatility < 0.02 && a.Trend == "sideways" {
		a.Patterns = append(a.Patterns, "consolidation")
	}
	if higherLows(lows[maxInt(0, n-8):]) {
		a.Patterns = append(a.Patterns, "higher_lows")
	}
	if lowerHighs(highs[maxInt(0, n-8):]) {
		a.Patterns = append(a.Patterns, "lower_highs")
	}
	if baseVol > 0 && recentVol > baseVol*3 {
		a.Patterns = append(a.Patterns, "volume_spike")
	}
	if dipRecovered(closes) {
		a.Patterns = append(a.Patterns, "dip_recovery")
	}
	if a.MomentumQuality == "exhausted" {
		a.Patterns = append(a.Patterns, "overextended")
	}
	if a.Support > 0 && last <= a.Support*1.05 && a.Trend != "down" {
		a.Patterns = append(a.Patterns, "support_bounce")
	}

	// Breakout quality: closing above prior resistance.
	priorRes := maxOf(highs[maxInt(0, n-20) : n-3])
	switch {
	case priorRes > 0 && last > priorRes && a.VolumeConfirmation == "confirmed":
		a.BreakoutQuality = "strong"
		a.Patterns = append(a.Patterns, "accumulation_breakout")
	case priorRes > 0 && last > priorRes:
		a.BreakoutQuality = "weak"
	case priorRes > 0 && maxOf(highs[n-3:]) > priorRes && last < priorRes:
		a.BreakoutQuality = "failed"
	default:
		a.BreakoutQuality = "none"
	}

	a.EntryScore = entryScore(a)
	a.Recommendation = a.bandedRecommendation()
	return a
}

// bandedRecommendation maps the entry score to a recommendation.
func (a *ChartAnalysis) bandedRecommendation() string {
	switch {
	case a.EntryScore >= 70:
		return "strong_buy"
	case a.EntryScore >= 50:
		return "buy"
	case a.EntryScore >= 30:
		return "wait"
	default:
		return "avoid"
	}
}

// entryScore is a weighted sum of the signal reads, clamped to 0-100.
func entryScore(a *ChartAnalysis) float64 {
	score := 30.0 // neutral baseline

	switch a.Trend {
	case "up":
		score += 15
	case "down":
		score -= 15
	}
	switch a.VolumeProfile {
	case "accumulation":
		score += 10
	case "distribution":
		score -= 10
	}
	switch a.VolumeConfirmation {
	case "confirmed":
		score += 10
	case "climax":
		score -= 5
	}
	switch a.MomentumQuality {
	case "fresh":
		score += 15
	case "exhausted":
		score -= 20
	}
	switch a.BreakoutQuality {
	case "strong":
		score += 15
	case "failed":
		score -= 15
	}
	for _, p := range a.Patterns {
		switch p {
		case "higher_lows", "support_bounce", "dip_recovery":
			score += 5
		case "lower_highs", "overextended":
			score -= 10
		}
	}
	if a.RSI >= 80 {
		score -= 10
	}
	return clamp(score, 0, 100)
}

// ============================================================================
// Small candle helpers
// ============================================================================

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return stat.Mean(v, nil)
}

func minOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	m := v[0]
	for _, x := range v[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func higherLows(lows []float64) bool {
	if len(lows) < 4 {
		return false
	}
	half := len(lows) / 2
	return minOf(lows[half:]) > minOf(lows[:half])
}

func lowerHighs(highs []float64) bool {
	if len(highs) < 4 {
		return false
	}
	half := len(highs) / 2
	return maxOf(highs[half:]) < maxOf(highs[:half])
}

// dipRecovered detects a drawdown of 10%+ that has reclaimed most of the dip.
func dipRecovered(closes []float64) bool {
	n := len(closes)
	if n < 6 {
		return false
	}
	peak := maxOf(closes[:n-3])
	trough := minOf(closes[n/2:])
	last := closes[n-1]
	if peak <= 0 || trough >= peak*0.9 {
		return false
	}
	return last > trough+(peak-trough)*0.6
}
