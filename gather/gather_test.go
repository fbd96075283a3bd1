package gather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulseTrader/config"
	"PulseTrader/market"
)

type fakeTrending struct {
	symbols  []string
	messages map[string][]SocialMessage
	err      error
}

func (f *fakeTrending) Trending(context.Context, int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.symbols, nil
}

func (f *fakeTrending) Messages(_ context.Context, symbol string, _ int) ([]SocialMessage, error) {
	return f.messages[symbol], nil
}

type fakeForum struct {
	posts map[string][]ForumPost
}

func (f *fakeForum) HotPosts(_ context.Context, subgroup string, _ int) ([]ForumPost, error) {
	return f.posts[subgroup], nil
}

type fakeCrypto struct {
	snaps map[string]*market.Snapshot
}

func (f *fakeCrypto) GetSnapshot(context.Context, string) (*market.Snapshot, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeCrypto) GetCryptoSnapshot(_ context.Context, symbol string) (*market.Snapshot, error) {
	if s, ok := f.snaps[symbol]; ok {
		return s, nil
	}
	return nil, errors.New("no snapshot")
}

func TestTrendingGathererScoresMessages(t *testing.T) {
	now := time.Now()
	g := &Gatherer{Trending: &fakeTrending{
		symbols: []string{"NVDA"},
		messages: map[string][]SocialMessage{
			"NVDA": {
				{Sentiment: "Bullish", CreatedAt: now},
				{Sentiment: "Bullish", CreatedAt: now},
				{Sentiment: "Bearish", CreatedAt: now},
			},
		},
	}}
	signals := g.Run(context.Background(), config.Default(), now)

	require.Len(t, signals, 1)
	sig := signals[0]
	assert.Equal(t, "NVDA", sig.Symbol)
	assert.Equal(t, "stocktwits", sig.Source)
	assert.Equal(t, 3, sig.Volume)
	assert.Greater(t, sig.WeightedSentiment, 0.0)
	assert.InDelta(t, 1.0/3.0, sig.Sentiment, 1e-9)
}

func TestForumGathererAggregatesPerTicker(t *testing.T) {
	now := time.Now()
	cfg := config.Default()
	cfg.ForumSubgroups = []string{"wallstreetbets"}
	g := &Gatherer{Forum: &fakeForum{posts: map[string][]ForumPost{
		"wallstreetbets": {
			{Title: "$GME squeeze is on, buy calls", Flair: "DD", Subgroup: "wallstreetbets", CreatedAt: now, Upvotes: 500, Comments: 100},
			{Title: "$GME to the moon", Flair: "Meme", Subgroup: "wallstreetbets", CreatedAt: now, Upvotes: 50, Comments: 10},
		},
	}}}

	signals := g.Run(context.Background(), cfg, now)
	require.Len(t, signals, 1)
	sig := signals[0]
	assert.Equal(t, "GME", sig.Symbol)
	assert.Equal(t, "forum", sig.Source)
	assert.Equal(t, 2, sig.Volume)
	assert.Equal(t, 550, sig.Upvotes)
	assert.Contains(t, sig.Reason, "DD")
}

func TestCryptoGathererThreshold(t *testing.T) {
	now := time.Now()
	cfg := config.Default()
	cfg.CryptoEnabled = true
	cfg.CryptoSymbols = []string{"BTCUSD", "ETHUSD"}
	cfg.CryptoMomentumThreshold = 3

	g := &Gatherer{Crypto: &fakeCrypto{snaps: map[string]*market.Snapshot{
		"BTCUSD": {Symbol: "BTCUSD", LatestPrice: 105, PrevDailyClose: 100}, // +5%
		"ETHUSD": {Symbol: "ETHUSD", LatestPrice: 101, PrevDailyClose: 100}, // +1%, below threshold
	}}}

	signals := g.Run(context.Background(), cfg, now)
	require.Len(t, signals, 1)
	assert.Equal(t, "BTCUSD", signals[0].Symbol)
	assert.True(t, signals[0].IsCrypto)
	assert.InDelta(t, 5, signals[0].MomentumPct, 1e-9)
}

func TestGathererFailsSoft(t *testing.T) {
	now := time.Now()
	cfg := config.Default()
	cfg.CryptoEnabled = true
	g := &Gatherer{
		Trending: &fakeTrending{err: errors.New("upstream down")},
		Crypto: &fakeCrypto{snaps: map[string]*market.Snapshot{
			"BTCUSD": {LatestPrice: 110, PrevDailyClose: 100},
		}},
	}
	cfg.CryptoSymbols = []string{"BTCUSD"}

	// The failing trending source never aborts the phase.
	signals := g.Run(context.Background(), cfg, now)
	require.Len(t, signals, 1)
	assert.Equal(t, "BTCUSD", signals[0].Symbol)
}
