package market

import (
	"context"
	"sync"
	"time"

	"PulseTrader/logger"
)

// solUsdFallback is used when every fetch fails; better a stale constant
// than a zero that wipes token-amount math.
const solUsdFallback = 200.0

const solPriceTTL = 5 * time.Minute

// solPriceCache is process-wide: SOL/USD is an idempotent read-heavy value
// and every subsystem must see the same number within a tick.
var solPriceCache = struct {
	sync.Mutex
	price     float64
	fetchedAt time.Time
}{}

// SolPriceFetcher fetches the current SOL/USD price.
type SolPriceFetcher func(ctx context.Context) (float64, error)

// SolUsdPrice returns the cached SOL/USD price, refreshing through fetch
// when the 5-minute TTL has lapsed. On fetch failure the previous value is
// kept, or the fallback constant if none exists yet.
func SolUsdPrice(ctx context.Context, fetch SolPriceFetcher) float64 {
	solPriceCache.Lock()
	defer solPriceCache.Unlock()

	if solPriceCache.price > 0 && time.Since(solPriceCache.fetchedAt) < solPriceTTL {
		return solPriceCache.price
	}

	if fetch != nil {
		if price, err := fetch(ctx); err == nil && price > 0 {
			solPriceCache.price = price
			solPriceCache.fetchedAt = time.Now()
			return price
		} else if err != nil {
			logger.Warnf("⚠️  SOL/USD fetch failed: %v", err)
		}
	}
	if solPriceCache.price > 0 {
		return solPriceCache.price
	}
	return solUsdFallback
}

// ResetSolPriceCache clears the cache (test helper).
func ResetSolPriceCache() {
	solPriceCache.Lock()
	defer solPriceCache.Unlock()
	solPriceCache.price = 0
	solPriceCache.fetchedAt = time.Time{}
}

// BinanceSolFetcher adapts the crypto data client into a SolPriceFetcher.
func BinanceSolFetcher(data MarketData) SolPriceFetcher {
	return func(ctx context.Context) (float64, error) {
		snap, err := data.GetCryptoSnapshot(ctx, "SOLUSD")
		if err != nil {
			return 0, err
		}
		return snap.LatestPrice, nil
	}
}
