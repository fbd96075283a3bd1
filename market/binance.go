package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
)

// BinanceData serves 24/7 crypto snapshots through Binance spot market data.
// Symbols arrive in brokerage form ("BTCUSD", "BTC/USD") and are normalized
// to Binance pairs ("BTCUSDT").
type BinanceData struct {
	client *binance.Client
}

// NewBinanceData creates a market-data-only client; keys may be empty since
// the endpoints used are public.
func NewBinanceData(apiKey, secretKey string) *BinanceData {
	return &BinanceData{client: binance.NewClient(apiKey, secretKey)}
}

// NormalizeCryptoSymbol maps brokerage crypto symbols to Binance pairs.
func NormalizeCryptoSymbol(symbol string) string {
	s := strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
	s = strings.TrimSuffix(s, "USDT")
	s = strings.TrimSuffix(s, "USD")
	return s + "USDT"
}

func (b *BinanceData) GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	return nil, fmt.Errorf("stock snapshots are not served by the crypto data client")
}

// GetCryptoSnapshot returns the latest price and the previous daily close.
func (b *BinanceData) GetCryptoSnapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	pair := NormalizeCryptoSymbol(symbol)

	prices, err := b.client.NewListPricesService().Symbol(pair).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s price: %w", pair, err)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("no price for %s", pair)
	}
	latest, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return nil, fmt.Errorf("bad price for %s: %w", pair, err)
	}

	// Previous daily bar: last two daily klines, take the completed one.
	klines, err := b.client.NewKlinesService().Symbol(pair).Interval("1d").Limit(2).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s daily bars: %w", pair, err)
	}
	if len(klines) == 0 {
		return nil, fmt.Errorf("no daily bars for %s", pair)
	}
	prev := klines[0]
	prevClose, _ := strconv.ParseFloat(prev.Close, 64)
	prevVolume, _ := strconv.ParseFloat(prev.Volume, 64)

	return &Snapshot{
		Symbol:          symbol,
		LatestPrice:     latest,
		PrevDailyClose:  prevClose,
		PrevDailyVolume: prevVolume,
		Timestamp:       time.Now(),
	}, nil
}
