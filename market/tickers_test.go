package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTickersCashtags(t *testing.T) {
	got := ExtractTickers("Loading up on $NVDA and $TSLA today", nil)
	assert.Equal(t, []string{"NVDA", "TSLA"}, got)
}

func TestExtractTickersBareNeedsContext(t *testing.T) {
	// No trading keywords: bare symbols are ignored.
	assert.Empty(t, ExtractTickers("NVDA had an event", nil))
	// With context words they count.
	got := ExtractTickers("buy NVDA calls before earnings", nil)
	assert.Contains(t, got, "NVDA")
}

func TestExtractTickersBlacklists(t *testing.T) {
	got := ExtractTickers("$DD on $CEO and $GME, buy shares", nil)
	assert.NotContains(t, got, "DD")
	assert.NotContains(t, got, "CEO")
	assert.Contains(t, got, "GME")

	got = ExtractTickers("$GME to the moon", []string{"GME"})
	assert.NotContains(t, got, "GME")
}

type fakeBrokerage struct {
	Brokerage
	assets map[string]*Asset
	calls  int
}

func (f *fakeBrokerage) GetAsset(_ context.Context, symbol string) (*Asset, error) {
	f.calls++
	if a, ok := f.assets[symbol]; ok {
		return a, nil
	}
	return &Asset{Symbol: symbol, Tradable: false}, nil
}

func TestTickerValidatorCachesAssetLookups(t *testing.T) {
	fb := &fakeBrokerage{assets: map[string]*Asset{
		"GME": {Symbol: "GME", Exchange: "NYSE", Tradable: true},
	}}
	v := NewTickerValidator(fb)

	assert.True(t, v.IsValid(context.Background(), "GME"))
	assert.True(t, v.IsValid(context.Background(), "GME"))
	assert.False(t, v.IsValid(context.Background(), "ZZZQ"))
	assert.False(t, v.IsValid(context.Background(), "ZZZQ"))
	// One lookup per distinct symbol; both outcomes cached.
	assert.Equal(t, 2, fb.calls)
}

func TestNormalizeCryptoSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", NormalizeCryptoSymbol("BTCUSD"))
	assert.Equal(t, "BTCUSDT", NormalizeCryptoSymbol("BTC/USD"))
	assert.Equal(t, "SOLUSDT", NormalizeCryptoSymbol("solusdt"))
}

func TestSolUsdPriceFallbackAndCache(t *testing.T) {
	ResetSolPriceCache()
	defer ResetSolPriceCache()

	// Every fetch failing yields the fallback constant.
	failing := func(context.Context) (float64, error) { return 0, context.DeadlineExceeded }
	assert.Equal(t, 200.0, SolUsdPrice(context.Background(), failing))

	calls := 0
	fetch := func(context.Context) (float64, error) { calls++; return 150, nil }
	assert.Equal(t, 150.0, SolUsdPrice(context.Background(), fetch))
	// Second read inside the TTL hits the cache.
	assert.Equal(t, 150.0, SolUsdPrice(context.Background(), fetch))
	assert.Equal(t, 1, calls)
}
