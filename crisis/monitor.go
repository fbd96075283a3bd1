package crisis

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"PulseTrader/config"
	"PulseTrader/logger"
	"PulseTrader/metrics"
	"PulseTrader/notify"
	"PulseTrader/state"
)

// MacroData serves the macro indicators. Each method answers one indicator;
// a failing source returns an error and the monitor records nil for it —
// errors never escape the monitor.
type MacroData interface {
	VIX(ctx context.Context) (float64, error)
	HYSpreadBps(ctx context.Context) (float64, error)
	YieldCurve2s10s(ctx context.Context) (float64, error)
	TedSpread(ctx context.Context) (float64, error)
	DXY(ctx context.Context) (float64, error)
	USDJPY(ctx context.Context) (float64, error)
	KREWeeklyPct(ctx context.Context) (float64, error)
	SilverWeeklyPct(ctx context.Context) (float64, error)
	FedBalanceSheetWeeklyPct(ctx context.Context) (float64, error)
	BTCWeeklyPct(ctx context.Context) (float64, error)
	USDTPeg(ctx context.Context) (float64, error)
	GoldSilverRatio(ctx context.Context) (float64, error)
	StocksAbove200MAPct(ctx context.Context) (float64, error)
}

// Monitor fetches indicators, scores them and maintains the crisis state.
type Monitor struct {
	Macro    MacroData
	Notifier notify.Sink
}

// Multiplier maps a crisis level to the position-size multiplier.
func Multiplier(level int) float64 {
	switch level {
	case 0:
		return 1.0
	case 1:
		return 0.5
	default:
		return 0.0
	}
}

// FetchIndicators fans out to every source in parallel; nil marks a source
// that did not answer.
func (m *Monitor) FetchIndicators(ctx context.Context) state.CrisisIndicators {
	var ind state.CrisisIndicators
	var wg sync.WaitGroup

	fetch := func(dst **float64, name string, fn func(context.Context) (float64, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := fn(ctx)
			if err != nil {
				logger.Debugf("🌡️  %s unavailable: %v", name, err)
				return
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return
			}
			*dst = &v
		}()
	}

	fetch(&ind.VIX, "VIX", m.Macro.VIX)
	fetch(&ind.HYSpreadBps, "HY spread", m.Macro.HYSpreadBps)
	fetch(&ind.YieldCurve2s10s, "2s10s", m.Macro.YieldCurve2s10s)
	fetch(&ind.TedSpread, "TED", m.Macro.TedSpread)
	fetch(&ind.DXY, "DXY", m.Macro.DXY)
	fetch(&ind.USDJPY, "USDJPY", m.Macro.USDJPY)
	fetch(&ind.KREWeeklyPct, "KRE weekly", m.Macro.KREWeeklyPct)
	fetch(&ind.SilverWeeklyPct, "silver weekly", m.Macro.SilverWeeklyPct)
	fetch(&ind.FedBalanceSheetWeekly, "Fed balance sheet", m.Macro.FedBalanceSheetWeeklyPct)
	fetch(&ind.BTCWeeklyPct, "BTC weekly", m.Macro.BTCWeeklyPct)
	fetch(&ind.USDTPeg, "USDT peg", m.Macro.USDTPeg)
	fetch(&ind.GoldSilverRatio, "gold/silver", m.Macro.GoldSilverRatio)
	fetch(&ind.StocksAbove200MAPct, "breadth", m.Macro.StocksAbove200MAPct)

	wg.Wait()
	return ind
}

// Evaluate scores an indicator snapshot against the configured thresholds.
// Nil indicators are skipped. Band boundaries are inclusive: a value exactly
// at a threshold triggers it.
func Evaluate(ind state.CrisisIndicators, cfg config.AgentConfig) (int, []string) {
	score := 0
	var triggered []string

	add := func(points int, desc string) {
		score += points
		triggered = append(triggered, desc)
	}

	if v := ind.VIX; v != nil {
		switch {
		case *v >= cfg.VixCritical:
			add(3, fmt.Sprintf("VIX %.1f >= critical %.1f", *v, cfg.VixCritical))
		case *v >= cfg.VixHigh:
			add(2, fmt.Sprintf("VIX %.1f >= high %.1f", *v, cfg.VixHigh))
		case *v >= cfg.VixElevated:
			add(1, fmt.Sprintf("VIX %.1f >= elevated %.1f", *v, cfg.VixElevated))
		}
	}
	if v := ind.HYSpreadBps; v != nil {
		switch {
		case *v >= cfg.HySpreadCritical:
			add(2, fmt.Sprintf("HY spread %.0fbps >= critical %.0f", *v, cfg.HySpreadCritical))
		case *v >= cfg.HySpreadWarning:
			add(1, fmt.Sprintf("HY spread %.0fbps >= warning %.0f", *v, cfg.HySpreadWarning))
		}
	}
	if v := ind.BTCWeeklyPct; v != nil {
		switch {
		case *v <= cfg.BtcWeeklyDropPct:
			add(2, fmt.Sprintf("BTC weekly %.1f%% <= critical %.1f%%", *v, cfg.BtcWeeklyDropPct))
		case *v <= -10:
			add(1, fmt.Sprintf("BTC weekly %.1f%% <= -10%%", *v))
		}
	}
	if v := ind.USDTPeg; v != nil && *v < cfg.StablecoinDepegThreshold {
		add(2, fmt.Sprintf("USDT peg %.4f < %.4f", *v, cfg.StablecoinDepegThreshold))
	}
	if v := ind.GoldSilverRatio; v != nil && *v < cfg.GoldSilverRatioLow {
		add(2, fmt.Sprintf("gold/silver ratio %.1f < %.1f", *v, cfg.GoldSilverRatioLow))
	}
	if v := ind.StocksAbove200MAPct; v != nil {
		switch {
		case *v < cfg.StocksAbove200maCritical:
			add(2, fmt.Sprintf("stocks above 200MA %.1f%% < critical %.1f%%", *v, cfg.StocksAbove200maCritical))
		case *v < cfg.StocksAbove200maWarning:
			add(1, fmt.Sprintf("stocks above 200MA %.1f%% < warning %.1f%%", *v, cfg.StocksAbove200maWarning))
		}
	}
	if v := ind.YieldCurve2s10s; v != nil {
		switch {
		case *v <= cfg.YieldCurveInversionCritical:
			add(2, fmt.Sprintf("2s10s %.2f <= critical %.2f", *v, cfg.YieldCurveInversionCritical))
		case *v <= cfg.YieldCurveInversionWarning:
			add(1, fmt.Sprintf("2s10s %.2f <= warning %.2f", *v, cfg.YieldCurveInversionWarning))
		}
	}
	if v := ind.TedSpread; v != nil {
		switch {
		case *v >= cfg.TedSpreadCritical:
			add(2, fmt.Sprintf("TED %.2f >= critical %.2f", *v, cfg.TedSpreadCritical))
		case *v >= cfg.TedSpreadWarning:
			add(1, fmt.Sprintf("TED %.2f >= warning %.2f", *v, cfg.TedSpreadWarning))
		}
	}
	if v := ind.DXY; v != nil {
		switch {
		case *v >= cfg.DxyCritical:
			add(2, fmt.Sprintf("DXY %.1f >= critical %.1f", *v, cfg.DxyCritical))
		case *v >= cfg.DxyElevated:
			add(1, fmt.Sprintf("DXY %.1f >= elevated %.1f", *v, cfg.DxyElevated))
		}
	}
	if v := ind.USDJPY; v != nil {
		switch {
		case *v <= cfg.UsdjpyCritical:
			add(2, fmt.Sprintf("USDJPY %.1f <= critical %.1f", *v, cfg.UsdjpyCritical))
		case *v <= cfg.UsdjpyWarning:
			add(1, fmt.Sprintf("USDJPY %.1f <= warning %.1f", *v, cfg.UsdjpyWarning))
		}
	}
	if v := ind.KREWeeklyPct; v != nil {
		switch {
		case *v <= cfg.KreWeeklyCritical:
			add(2, fmt.Sprintf("KRE weekly %.1f%% <= critical %.1f%%", *v, cfg.KreWeeklyCritical))
		case *v <= cfg.KreWeeklyWarning:
			add(1, fmt.Sprintf("KRE weekly %.1f%% <= warning %.1f%%", *v, cfg.KreWeeklyWarning))
		}
	}
	if v := ind.SilverWeeklyPct; v != nil {
		switch {
		case *v >= cfg.SilverWeeklyCritical:
			add(2, fmt.Sprintf("silver weekly %.1f%% >= critical %.1f%%", *v, cfg.SilverWeeklyCritical))
		case *v >= cfg.SilverWeeklyWarning:
			add(1, fmt.Sprintf("silver weekly %.1f%% >= warning %.1f%%", *v, cfg.SilverWeeklyWarning))
		}
	}
	if v := ind.FedBalanceSheetWeekly; v != nil {
		abs := math.Abs(*v)
		switch {
		case abs >= cfg.FedBalanceSheetWeeklyCritical:
			add(2, fmt.Sprintf("Fed balance sheet weekly %.2f%% >= critical %.2f%%", *v, cfg.FedBalanceSheetWeeklyCritical))
		case abs >= cfg.FedBalanceSheetWeeklyWarning:
			add(1, fmt.Sprintf("Fed balance sheet weekly %.2f%% >= warning %.2f%%", *v, cfg.FedBalanceSheetWeeklyWarning))
		}
	}
	return score, triggered
}

// LevelForScore maps a score to a level with inclusive band boundaries.
func LevelForScore(score int) int {
	switch {
	case score >= 6:
		return 3
	case score >= 4:
		return 2
	case score >= 2:
		return 1
	default:
		return 0
	}
}

// Check fetches, scores and applies the result to the crisis state. It
// returns the effective level for this tick. When the operator holds a
// manual override, indicators are recorded but the level is left alone.
func (m *Monitor) Check(ctx context.Context, st *state.AgentState, now time.Time) int {
	ind := m.FetchIndicators(ctx)
	score, triggered := Evaluate(ind, st.Config)
	level := LevelForScore(score)

	st.Crisis.Indicators = ind
	st.Crisis.Triggered = triggered
	st.LastCrisisCheck = now

	if st.Crisis.ManualOverride {
		metrics.CrisisLevel.Set(float64(st.Crisis.Level))
		return st.Crisis.Level
	}

	if level != st.Crisis.Level {
		prev := st.Crisis.Level
		st.Crisis.Level = level
		st.Crisis.LastLevelChange = now
		st.AppendLog("warn", "crisis_level_change",
			fmt.Sprintf("crisis level %d -> %d (score %d)", prev, level, score))
		logger.Warnf("🚨 Crisis level %d -> %d (score %d, %d indicators triggered)", prev, level, score, len(triggered))
		m.alert(st, level, prev, now)
	}
	metrics.CrisisLevel.Set(float64(level))
	return st.Crisis.Level
}

// alert emits one level-change event, rate-limited per level.
func (m *Monitor) alert(st *state.AgentState, level, prev int, now time.Time) {
	if m.Notifier == nil {
		return
	}
	cooldown := time.Duration(st.Config.CrisisAlertCooldownMinutes) * time.Minute
	if last, ok := st.Crisis.LastAlerts[level]; ok && now.Sub(last) < cooldown {
		return
	}
	st.Crisis.LastAlerts[level] = now
	m.Notifier.Send(notify.AlertEvent{
		Kind:    notify.KindCrisisLevelChange,
		Message: fmt.Sprintf("Crisis level changed %d -> %d", prev, level),
		Payload: map[string]interface{}{
			"level":     level,
			"previous":  prev,
			"triggered": st.Crisis.Triggered,
		},
	})
}
