package crisis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"PulseTrader/config"
	"PulseTrader/state"
)

func f(v float64) *float64 { return &v }

// S4: VIX 50, HY 650bps, BTC weekly -25%, USDT 0.97 scores 3+2+2+2 = 9,
// which is Level 3.
func TestEvaluateSevereStress(t *testing.T) {
	cfg := config.Default()
	ind := state.CrisisIndicators{
		VIX:          f(50),
		HYSpreadBps:  f(650),
		BTCWeeklyPct: f(-25),
		USDTPeg:      f(0.97),
	}
	score, triggered := Evaluate(ind, cfg)
	assert.Equal(t, 9, score)
	assert.Len(t, triggered, 4)
	assert.Equal(t, 3, LevelForScore(score))
}

func TestEvaluateNilIndicatorsSkipped(t *testing.T) {
	score, triggered := Evaluate(state.CrisisIndicators{}, config.Default())
	assert.Zero(t, score)
	assert.Empty(t, triggered)
}

// B3: exact band boundaries pick the higher band.
func TestLevelBandBoundariesInclusive(t *testing.T) {
	assert.Equal(t, 0, LevelForScore(1))
	assert.Equal(t, 1, LevelForScore(2))
	assert.Equal(t, 1, LevelForScore(3))
	assert.Equal(t, 2, LevelForScore(4))
	assert.Equal(t, 2, LevelForScore(5))
	assert.Equal(t, 3, LevelForScore(6))
	assert.Equal(t, 3, LevelForScore(20))
}

func TestEvaluateThresholdBoundaryInclusive(t *testing.T) {
	cfg := config.Default()
	// VIX exactly at elevated threshold triggers the warning point.
	score, _ := Evaluate(state.CrisisIndicators{VIX: f(cfg.VixElevated)}, cfg)
	assert.Equal(t, 1, score)
	// VIX exactly at critical threshold takes the 3-point band.
	score, _ = Evaluate(state.CrisisIndicators{VIX: f(cfg.VixCritical)}, cfg)
	assert.Equal(t, 3, score)
}

func TestEvaluateDirectionalIndicators(t *testing.T) {
	cfg := config.Default()

	// Inverted yield curve at the critical threshold.
	score, _ := Evaluate(state.CrisisIndicators{YieldCurve2s10s: f(-0.5)}, cfg)
	assert.Equal(t, 2, score)

	// USDJPY collapse (carry unwind) reads low-is-bad.
	score, _ = Evaluate(state.CrisisIndicators{USDJPY: f(125)}, cfg)
	assert.Equal(t, 2, score)

	// Fed balance sheet swings count by magnitude in both directions.
	score, _ = Evaluate(state.CrisisIndicators{FedBalanceSheetWeekly: f(-2.5)}, cfg)
	assert.Equal(t, 2, score)
}

func TestMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, Multiplier(0))
	assert.Equal(t, 0.5, Multiplier(1))
	assert.Equal(t, 0.0, Multiplier(2))
	assert.Equal(t, 0.0, Multiplier(3))
}

// fakeMacro answers every indicator with the same canned values.
type fakeMacro struct {
	vix float64
}

func (m *fakeMacro) VIX(context.Context) (float64, error)              { return m.vix, nil }
func (m *fakeMacro) HYSpreadBps(context.Context) (float64, error)      { return 300, nil }
func (m *fakeMacro) YieldCurve2s10s(context.Context) (float64, error)  { return 0.5, nil }
func (m *fakeMacro) TedSpread(context.Context) (float64, error)        { return 0.2, nil }
func (m *fakeMacro) DXY(context.Context) (float64, error)              { return 100, nil }
func (m *fakeMacro) USDJPY(context.Context) (float64, error)           { return 150, nil }
func (m *fakeMacro) KREWeeklyPct(context.Context) (float64, error)     { return 0, nil }
func (m *fakeMacro) SilverWeeklyPct(context.Context) (float64, error)  { return 1, nil }
func (m *fakeMacro) FedBalanceSheetWeeklyPct(context.Context) (float64, error) { return 0.1, nil }
func (m *fakeMacro) BTCWeeklyPct(context.Context) (float64, error)     { return 2, nil }
func (m *fakeMacro) USDTPeg(context.Context) (float64, error)          { return 1.0, nil }
func (m *fakeMacro) GoldSilverRatio(context.Context) (float64, error)  { return 80, nil }
func (m *fakeMacro) StocksAbove200MAPct(context.Context) (float64, error) { return 60, nil }

func TestCheckTransitionsLevelAndLogs(t *testing.T) {
	st := state.New()
	monitor := &Monitor{Macro: &fakeMacro{vix: 36}} // critical VIX alone = 3 points -> level 1
	level := monitor.Check(context.Background(), st, time.Now())

	assert.Equal(t, 1, level)
	assert.Equal(t, 1, st.Crisis.Level)
	assert.NotEmpty(t, st.Crisis.Triggered)
	assert.False(t, st.Crisis.LastLevelChange.IsZero())
}

func TestCheckManualOverrideFreezesLevel(t *testing.T) {
	st := state.New()
	st.Crisis.ManualOverride = true
	st.Crisis.Level = 2
	monitor := &Monitor{Macro: &fakeMacro{vix: 10}} // calm markets
	level := monitor.Check(context.Background(), st, time.Now())

	assert.Equal(t, 2, level)
	assert.Equal(t, 2, st.Crisis.Level)
	// Indicators still recorded for the dashboard.
	assert.NotNil(t, st.Crisis.Indicators.VIX)
}
