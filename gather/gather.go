package gather

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"PulseTrader/config"
	"PulseTrader/logger"
	"PulseTrader/market"
	"PulseTrader/state"
)

// Gatherer pulls sentiment signals from every configured source. Sources
// fail soft: an erroring source is demoted for the tick, never aborting the
// phase.
type Gatherer struct {
	Trending  TrendingSource
	Forum     ForumSource
	Crypto    market.MarketData
	Validator *market.TickerValidator
}

// Run fans out to all enabled sources and returns the merged signal batch.
// The caller folds the batch into the state cache via MergeSignals.
func (g *Gatherer) Run(ctx context.Context, cfg config.AgentConfig, now time.Time) []state.Signal {
	var (
		mu      sync.Mutex
		signals []state.Signal
		wg      sync.WaitGroup
	)
	collect := func(batch []state.Signal) {
		mu.Lock()
		signals = append(signals, batch...)
		mu.Unlock()
	}

	if g.Trending != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch, err := g.gatherTrending(ctx, cfg, now)
			if err != nil {
				var blocked ErrBlocked
				if errors.As(err, &blocked) {
					logger.Warnf("📡 Trending source skipped: %v", err)
				} else {
					logger.Errorf("📡 Trending gatherer failed: %v", err)
				}
				return
			}
			collect(batch)
		}()
	}

	if g.Forum != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch, err := g.gatherForum(ctx, cfg, now)
			if err != nil {
				logger.Errorf("📡 Forum gatherer failed: %v", err)
				return
			}
			collect(batch)
		}()
	}

	if cfg.CryptoEnabled && g.Crypto != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch, err := g.gatherCryptoMomentum(ctx, cfg, now)
			if err != nil {
				logger.Errorf("📡 Crypto momentum gatherer failed: %v", err)
				return
			}
			collect(batch)
		}()
	}

	wg.Wait()
	return signals
}

// ============================================================================
// Stocktwits-style trending gatherer
// ============================================================================

func (g *Gatherer) gatherTrending(ctx context.Context, cfg config.AgentConfig, now time.Time) ([]state.Signal, error) {
	symbols, err := g.Trending.Trending(ctx, 15)
	if err != nil {
		return nil, err
	}

	var signals []state.Signal
	for _, symbol := range symbols {
		messages, err := g.Trending.Messages(ctx, symbol, 30)
		if err != nil {
			var blocked ErrBlocked
			if errors.As(err, &blocked) {
				return signals, nil // degrade the rest of the source, keep what we have
			}
			logger.Warnf("📡 Messages fetch failed for %s: %v", symbol, err)
			continue
		}
		if len(messages) == 0 {
			continue
		}

		var bullish, bearish int
		var weighted float64
		for _, msg := range messages {
			score := 0.0
			switch msg.Sentiment {
			case "Bullish":
				bullish++
				score = 1
			case "Bearish":
				bearish++
				score = -1
			default:
				score = LexiconSentiment(msg.Body)
				if score > 0.2 {
					bullish++
				} else if score < -0.2 {
					bearish++
				}
			}
			weighted += score * TimeDecay(msg.CreatedAt, now)
		}
		weighted = weighted / float64(len(messages)) * cfg.StocktwitsSourceWeight

		raw := 0.0
		if bullish+bearish > 0 {
			raw = float64(bullish-bearish) / float64(bullish+bearish)
		}
		signals = append(signals, state.Signal{
			Symbol:            symbol,
			Source:            "stocktwits",
			Sentiment:         raw,
			WeightedSentiment: weighted,
			Volume:            len(messages),
			Timestamp:         now,
			Reason:            fmt.Sprintf("trending: %d bullish / %d bearish of %d messages", bullish, bearish, len(messages)),
		})
	}
	return signals, nil
}

// ============================================================================
// Forum gatherer
// ============================================================================

type tickerAgg struct {
	weighted   float64
	raw        float64
	posts      int
	upvotes    int
	comments   int
	bestFlair  string
	bestFlairW float64
	freshest   time.Time
	subgroups  map[string]bool
}

func (g *Gatherer) gatherForum(ctx context.Context, cfg config.AgentConfig, now time.Time) ([]state.Signal, error) {
	agg := make(map[string]*tickerAgg)

	for _, sub := range cfg.ForumSubgroups {
		posts, err := g.Forum.HotPosts(ctx, sub, 25)
		if err != nil {
			logger.Warnf("📡 Forum fetch failed for %s: %v", sub, err)
			continue
		}
		for _, post := range posts {
			text := post.Title + " " + post.Body
			tickers := market.ExtractTickers(text, cfg.TickerBlacklist)
			if len(tickers) == 0 {
				continue
			}
			sentiment := LexiconSentiment(text)
			quality := TimeDecay(post.CreatedAt, now) *
				EngagementMultiplier(post.Upvotes, post.Comments) *
				FlairMultiplier(post.Flair) *
				cfg.ForumSourceWeight

			for _, symbol := range tickers {
				if g.Validator != nil && !g.Validator.IsValid(ctx, symbol) {
					continue
				}
				a := agg[symbol]
				if a == nil {
					a = &tickerAgg{subgroups: make(map[string]bool)}
					agg[symbol] = a
				}
				a.weighted += sentiment * quality
				a.raw += sentiment
				a.posts++
				a.upvotes += post.Upvotes
				a.comments += post.Comments
				a.subgroups[post.Subgroup] = true
				if fw := FlairMultiplier(post.Flair); fw > a.bestFlairW {
					a.bestFlairW = fw
					a.bestFlair = post.Flair
				}
				if post.CreatedAt.After(a.freshest) {
					a.freshest = post.CreatedAt
				}
			}
		}
	}

	signals := make([]state.Signal, 0, len(agg))
	for symbol, a := range agg {
		subs := make([]string, 0, len(a.subgroups))
		for s := range a.subgroups {
			subs = append(subs, s)
		}
		sort.Strings(subs)
		signals = append(signals, state.Signal{
			Symbol:            symbol,
			Source:            "forum",
			Sentiment:         a.raw / float64(a.posts),
			WeightedSentiment: a.weighted / float64(a.posts),
			Volume:            a.posts,
			Upvotes:           a.upvotes,
			Timestamp:         now,
			Reason: fmt.Sprintf("%d posts in %s, best flair %q, %d upvotes",
				a.posts, strings.Join(subs, "+"), a.bestFlair, a.upvotes),
		})
	}
	return signals, nil
}

// ============================================================================
// Crypto momentum gatherer
// ============================================================================

func (g *Gatherer) gatherCryptoMomentum(ctx context.Context, cfg config.AgentConfig, now time.Time) ([]state.Signal, error) {
	var signals []state.Signal
	for _, symbol := range cfg.CryptoSymbols {
		snap, err := g.Crypto.GetCryptoSnapshot(ctx, symbol)
		if err != nil {
			logger.Warnf("📡 Crypto snapshot failed for %s: %v", symbol, err)
			continue
		}
		if snap.PrevDailyClose <= 0 {
			continue
		}
		momentum := (snap.LatestPrice - snap.PrevDailyClose) / snap.PrevDailyClose * 100
		if math.Abs(momentum) < cfg.CryptoMomentumThreshold {
			continue
		}
		sentiment := math.Max(-1, math.Min(1, momentum/10))
		signals = append(signals, state.Signal{
			Symbol:            symbol,
			Source:            "crypto_momentum",
			Sentiment:         sentiment,
			WeightedSentiment: sentiment,
			Volume:            1,
			MomentumPct:       momentum,
			IsCrypto:          true,
			Price:             snap.LatestPrice,
			Timestamp:         now,
			Reason:            fmt.Sprintf("24h momentum %+.1f%%", momentum),
		})
	}
	return signals, nil
}
