package dexmarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"PulseTrader/logger"
)

// ErrTokenTooNew marks a 400 from the chart provider: the pool has no
// candle history yet. Callers treat it as "no gate", not a failure.
var ErrTokenTooNew = errors.New("token too new for chart data")

// ChartProvider serves OHLCV candles for a token.
type ChartProvider interface {
	GetOHLCV(ctx context.Context, tokenAddress, interval string, limit int) ([]Candle, error)
}

const chartMinInterval = 2500 * time.Millisecond

// ChartClient is a GeckoTerminal-style OHLCV client with its own throttle
// and explicit 429 backoff (5s, 10s, 15s).
type ChartClient struct {
	baseURL string
	http    *retryablehttp.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// NewChartClient creates a chart client.
func NewChartClient(baseURL string) *ChartClient {
	if baseURL == "" {
		baseURL = "https://api.geckoterminal.com/api/v2"
	}
	rc := retryablehttp.NewClient()
	// Retries are handled explicitly below so the 429 backoff schedule is
	// exact; the retryable client only papers over connection resets.
	rc.RetryMax = 1
	rc.CheckRetry = func(ctx context.Context, _ *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil
	return &ChartClient{baseURL: baseURL, http: rc}
}

func (c *ChartClient) throttle() {
	c.mu.Lock()
	wait := chartMinInterval - time.Since(c.lastRequest)
	if wait > 0 {
		c.lastRequest = c.lastRequest.Add(chartMinInterval)
	} else {
		c.lastRequest = time.Now()
	}
	c.mu.Unlock()
	if wait > 0 {
		time.Sleep(wait)
	}
}

// GetOHLCV fetches candles. interval is "5m" or "15m".
func (c *ChartClient) GetOHLCV(ctx context.Context, tokenAddress, interval string, limit int) ([]Candle, error) {
	timeframe, aggregate := "minute", "5"
	if interval == "15m" {
		aggregate = "15"
	}
	path := fmt.Sprintf("/networks/solana/pools/%s/ohlcv/%s?aggregate=%s&limit=%d",
		tokenAddress, timeframe, aggregate, limit)

	backoffs := []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}
	for attempt := 0; ; attempt++ {
		c.throttle()
		candles, status, err := c.fetch(ctx, path)
		switch {
		case err != nil:
			return nil, err
		case status == http.StatusOK:
			return candles, nil
		case status == http.StatusBadRequest:
			return nil, ErrTokenTooNew
		case status == http.StatusTooManyRequests && attempt < len(backoffs):
			logger.Warnf("📉 Chart provider rate limited, backing off %v", backoffs[attempt])
			select {
			case <-time.After(backoffs[attempt]):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		default:
			return nil, fmt.Errorf("chart provider error (status %d)", status)
		}
	}
}

func (c *ChartClient) fetch(ctx context.Context, path string) ([]Candle, int, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("chart request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read chart response: %w", err)
	}

	// Upstream shape: data.attributes.ohlcv_list = [[ts, o, h, l, c, v], ...]
	var raw struct {
		Data struct {
			Attributes struct {
				OhlcvList [][]float64 `json:"ohlcv_list"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, 0, fmt.Errorf("failed to parse chart response: %w", err)
	}

	candles := make([]Candle, 0, len(raw.Data.Attributes.OhlcvList))
	for _, row := range raw.Data.Attributes.OhlcvList {
		if len(row) < 6 {
			continue
		}
		candles = append(candles, Candle{
			Timestamp: int64(row[0]),
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
		})
	}
	// Upstream returns newest first; engines want oldest first.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, http.StatusOK, nil
}
