package dex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulseTrader/dexmarket"
)

func candleRamp(prices []float64, volume float64) []dexmarket.Candle {
	candles := make([]dexmarket.Candle, len(prices))
	for i, p := range prices {
		candles[i] = dexmarket.Candle{
			Timestamp: int64(i * 300),
			Open:      p, High: p * 1.01, Low: p * 0.99, Close: p,
			Volume: volume,
		}
	}
	return candles
}

func TestAnalyzeCandlesUptrendBeatsDowntrend(t *testing.T) {
	// Zigzag climb: two steps up, one small step back, so RSI stays off the
	// exhausted band.
	up := make([]float64, 30)
	price := 1.0
	for i := range up {
		if i%3 == 2 {
			price *= 0.988
		} else {
			price *= 1.015
		}
		up[i] = price
	}
	upCandles := candleRamp(up, 1000)
	for i := 25; i < 30; i++ {
		upCandles[i].Volume = 1500
	}

	down := make([]float64, 30)
	for i := range down {
		down[i] = 2.0 - float64(i)*0.03
	}

	a := analyzeCandles(upCandles)
	b := analyzeCandles(candleRamp(down, 1000))

	assert.Equal(t, "up", a.Trend)
	assert.Equal(t, "down", b.Trend)
	assert.Greater(t, a.EntryScore, b.EntryScore)
	assert.GreaterOrEqual(t, a.EntryScore, 40.0)
}

func TestAnalyzeCandlesDowntrendAvoided(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 2.0 - float64(i)*0.03
	}
	a := analyzeCandles(candleRamp(prices, 1000))
	assert.Equal(t, "down", a.Trend)
	assert.Less(t, a.EntryScore, 50.0)
}

func TestRecommendationBands(t *testing.T) {
	assert.Equal(t, "strong_buy", (&ChartAnalysis{EntryScore: 70}).bandedRecommendation())
	assert.Equal(t, "buy", (&ChartAnalysis{EntryScore: 50}).bandedRecommendation())
	assert.Equal(t, "wait", (&ChartAnalysis{EntryScore: 30}).bandedRecommendation())
	assert.Equal(t, "avoid", (&ChartAnalysis{EntryScore: 29}).bandedRecommendation())
}

// too-new tokens and thin history mean "no gate", not rejection.
type fakeChartProvider struct {
	candles []dexmarket.Candle
	err     error
}

func (f *fakeChartProvider) GetOHLCV(context.Context, string, string, int) ([]dexmarket.Candle, error) {
	return f.candles, f.err
}

func TestChartGateTooNewIsNoGate(t *testing.T) {
	g := &ChartGate{Provider: &fakeChartProvider{err: dexmarket.ErrTokenTooNew}}
	a, err := g.Analyze(context.Background(), "pair", 1)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestChartGateThinHistoryIsNoGate(t *testing.T) {
	g := &ChartGate{Provider: &fakeChartProvider{candles: candleRamp([]float64{1, 2, 3}, 10)}}
	a, err := g.Analyze(context.Background(), "pair", 1)
	require.NoError(t, err)
	assert.Nil(t, a)
}
