package dex

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"PulseTrader/config"
	"PulseTrader/dexmarket"
	"PulseTrader/logger"
	"PulseTrader/state"
)

// searchSeeds are the free-text discovery terms unioned with the feeds.
var searchSeeds = []string{"pump", "moon", "sol", "meme"}

// Scanner unions the discovery feeds, resolves pairs and produces scored,
// tier-classified momentum signals.
type Scanner struct {
	Client dexmarket.Scanner
}

// Scan returns the new signal list, momentum-descending. Individual feed
// failures degrade coverage for the tick, never the scan itself.
func (s *Scanner) Scan(ctx context.Context, cfg config.AgentConfig, now time.Time) []state.DexMomentumSignal {
	addresses := s.collectCandidates(ctx)
	var pairs []dexmarket.Pair

	if len(addresses) > 0 {
		resolved, err := s.Client.GetPairs(ctx, "solana", addresses)
		if err != nil {
			logger.Warnf("🔎 Pair resolution failed: %v", err)
		}
		pairs = append(pairs, resolved...)
	}
	for _, term := range searchSeeds {
		found, err := s.Client.Search(ctx, term)
		if err != nil {
			logger.Warnf("🔎 Search %q failed: %v", term, err)
			continue
		}
		pairs = append(pairs, found...)
	}

	return BuildSignals(pairs, cfg, now)
}

// collectCandidates unions the five profile feeds, deduped by token address.
func (s *Scanner) collectCandidates(ctx context.Context) []string {
	feeds := []struct {
		name string
		fn   func(context.Context) ([]dexmarket.TokenProfile, error)
	}{
		{"latest-profiles", s.Client.LatestProfiles},
		{"latest-boosts", s.Client.LatestBoosts},
		{"top-boosts", s.Client.TopBoosts},
		{"community-takeovers", s.Client.CommunityTakeovers},
		{"latest-ads", s.Client.LatestAds},
	}

	var mu sync.Mutex
	seen := make(map[string]bool)
	var addresses []string
	var wg sync.WaitGroup

	for _, feed := range feeds {
		wg.Add(1)
		go func(name string, fn func(context.Context) ([]dexmarket.TokenProfile, error)) {
			defer wg.Done()
			profiles, err := fn(ctx)
			if err != nil {
				logger.Warnf("🔎 Feed %s failed: %v", name, err)
				return
			}
			mu.Lock()
			for _, p := range profiles {
				if !seen[p.TokenAddress] {
					seen[p.TokenAddress] = true
					addresses = append(addresses, p.TokenAddress)
				}
			}
			mu.Unlock()
		}(feed.name, feed.fn)
	}
	wg.Wait()
	return addresses
}

// BuildSignals filters, tier-classifies and scores raw pairs.
func BuildSignals(pairs []dexmarket.Pair, cfg config.AgentConfig, now time.Time) []state.DexMomentumSignal {
	seen := make(map[string]bool)
	var signals []state.DexMomentumSignal

	for i := range pairs {
		pair := &pairs[i]
		if !strings.EqualFold(pair.ChainID, "solana") {
			continue
		}
		if pair.PairCreatedAt == 0 {
			continue
		}
		if seen[pair.BaseToken.Address] {
			continue
		}

		created := time.UnixMilli(pair.PairCreatedAt)
		ageMinutes := now.Sub(created).Minutes()
		ageHours := ageMinutes / 60
		ageDays := ageHours / 24

		price, err := strconv.ParseFloat(pair.PriceUsd, 64)
		if err != nil || price <= 0 {
			continue
		}

		sig := state.DexMomentumSignal{
			TokenAddress: pair.BaseToken.Address,
			PairAddress:  pair.PairAddress,
			Symbol:       pair.BaseToken.Symbol,
			PriceUsd:     price,
			Change5m:     pair.PriceChange.M5,
			Change1h:     pair.PriceChange.H1,
			Change6h:     pair.PriceChange.H6,
			Change24h:    pair.PriceChange.H24,
			Volume5m:     pair.Volume.M5,
			Volume1h:     pair.Volume.H1,
			Volume6h:     pair.Volume.H6,
			Volume24h:    pair.Volume.H24,
			LiquidityUsd: pair.Liquidity.Usd,
			MarketCap:    pair.MarketCap,
			AgeHours:     ageHours,
			AgeDays:      ageDays,
			TxnCount24h:  pair.Txns.H24.Buys + pair.Txns.H24.Sells,
			Sells24h:     pair.Txns.H24.Sells,
		}
		if total := pair.Txns.H1.Buys + pair.Txns.H1.Sells; total > 0 {
			sig.BuyRatio1h = float64(pair.Txns.H1.Buys) / float64(total)
		}
		if total := sig.TxnCount24h; total > 0 {
			sig.BuyRatio24h = float64(pair.Txns.H24.Buys) / float64(total)
		}
		sig.LegitimacyBits = state.LegitimacySignals{
			HasWebsite:  pair.HasWebsite(),
			HasTwitter:  pair.HasSocial("twitter"),
			HasTelegram: pair.HasSocial("telegram"),
			BoostCount:  pair.BoostCount(),
			SellsExist:  pair.Txns.H24.Sells > 0,
		}
		sig.Legitimacy = LegitimacyScore(sig.LegitimacyBits)

		tier, ok := classifyTier(&sig, ageMinutes, cfg)
		if !ok {
			continue
		}
		sig.TierName = tier
		sig.MomentumScore = MomentumScore(sig)

		seen[sig.TokenAddress] = true
		signals = append(signals, sig)
	}

	sort.Slice(signals, func(i, j int) bool {
		return signals[i].MomentumScore > signals[j].MomentumScore
	})
	return signals
}

// classifyTier gathers every tier the candidate qualifies for and keeps the
// most conservative. Age windows are inclusive of the lower bound, exclusive
// of the upper.
func classifyTier(sig *state.DexMomentumSignal, ageMinutes float64, cfg config.AgentConfig) (state.Tier, bool) {
	ageHours := ageMinutes / 60
	ageDays := ageHours / 24
	var best state.Tier
	found := false
	consider := func(t state.Tier) {
		if !found || state.TierPriority(t) > state.TierPriority(best) {
			best = t
			found = true
		}
	}

	// Honeypot gate: a pool where nobody has ever sold is a pool nobody can
	// sell into.
	minSells := func(t state.Tier) int {
		switch t {
		case state.TierMicrospray:
			return 3
		case state.TierLottery, state.TierBreakout:
			return 5
		default:
			return 10
		}
	}

	if cfg.DexMicrosprayEnabled &&
		ageMinutes >= cfg.DexMicrosprayMinAgeMinutes && ageHours < cfg.DexMicrosprayMaxAgeHours &&
		sig.LiquidityUsd >= cfg.DexMicrosprayMinLiquidity &&
		sig.Volume24h >= cfg.DexMicrosprayMinVolume &&
		sig.Sells24h >= minSells(state.TierMicrospray) {
		consider(state.TierMicrospray)
	}

	if cfg.DexBreakoutEnabled &&
		ageHours >= cfg.DexBreakoutMinAgeHours && ageHours < cfg.DexBreakoutMaxAgeHours &&
		sig.Change5m >= cfg.DexBreakoutMin5mPump &&
		sig.LiquidityUsd >= cfg.DexBreakoutMinLiquidity &&
		sig.Volume24h >= cfg.DexBreakoutMinVolume &&
		sig.Sells24h >= minSells(state.TierBreakout) {
		consider(state.TierBreakout)
	}

	if cfg.DexLotteryEnabled &&
		ageHours >= cfg.DexLotteryMinAgeHours && ageHours < cfg.DexLotteryMaxAgeHours &&
		sig.Change1h >= cfg.DexLotteryMin1hChange &&
		sig.LiquidityUsd >= cfg.DexLotteryMinLiquidity &&
		sig.Volume24h >= cfg.DexLotteryMinVolume &&
		sig.Sells24h >= minSells(state.TierLottery) {
		consider(state.TierLottery)
	}

	if cfg.DexEarlyEnabled &&
		ageHours >= cfg.DexEarlyMinAgeHours && ageDays < cfg.DexEarlyMaxAgeDays &&
		sig.Legitimacy >= cfg.DexEarlyMinLegitimacy &&
		sig.Change24h >= cfg.DexEarlyMin24hChange &&
		sig.LiquidityUsd >= cfg.DexEarlyMinLiquidity &&
		sig.Volume24h >= cfg.DexEarlyMinVolume &&
		sig.Sells24h >= minSells(state.TierEarly) {
		consider(state.TierEarly)
	}

	if cfg.DexEstablishedEnabled &&
		ageDays >= cfg.DexEstablishedMinAgeDays && ageDays < cfg.DexEstablishedMaxAgeDays &&
		sig.Change24h >= cfg.DexEstablishedMin24hChange &&
		sig.LiquidityUsd >= cfg.DexEstablishedMinLiquidity &&
		sig.Volume24h >= cfg.DexEstablishedMinVolume &&
		sig.Sells24h >= minSells(state.TierEstablished) {
		consider(state.TierEstablished)
	}

	return best, found
}
