package crisis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// MacroClient is the reference MacroData implementation: market quotes from
// a Yahoo-style chart API, rate series from a FRED-style series API. Every
// method answers exactly one indicator; callers tolerate failures.
type MacroClient struct {
	quoteURL string
	fredURL  string
	fredKey  string
	http     *http.Client
}

// NewMacroClient creates a macro client. fredKey may be empty; the FRED
// indicators then report as unavailable.
func NewMacroClient(fredKey string) *MacroClient {
	return &MacroClient{
		quoteURL: "https://query1.finance.yahoo.com/v8/finance/chart",
		fredURL:  "https://api.stlouisfed.org/fred/series/observations",
		fredKey:  fredKey,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// quote fetches the latest close for one symbol; days>0 also returns the
// close days back (for weekly deltas).
func (c *MacroClient) quote(ctx context.Context, symbol string, days int) (latest, past float64, err error) {
	rng := "5d"
	if days >= 5 {
		rng = "1mo"
	}
	u := fmt.Sprintf("%s/%s?range=%s&interval=1d", c.quoteURL, url.PathEscape(symbol), rng)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; pulsetrader)")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("quote error for %s (status %d)", symbol, resp.StatusCode)
	}

	var raw struct {
		Chart struct {
			Result []struct {
				Indicators struct {
					Quote []struct {
						Close []*float64 `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
		} `json:"chart"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, 0, fmt.Errorf("failed to parse quote for %s: %w", symbol, err)
	}
	if len(raw.Chart.Result) == 0 || len(raw.Chart.Result[0].Indicators.Quote) == 0 {
		return 0, 0, fmt.Errorf("no data for %s", symbol)
	}

	closes := raw.Chart.Result[0].Indicators.Quote[0].Close
	var valid []float64
	for _, p := range closes {
		if p != nil {
			valid = append(valid, *p)
		}
	}
	if len(valid) == 0 {
		return 0, 0, fmt.Errorf("no closes for %s", symbol)
	}
	latest = valid[len(valid)-1]
	idx := len(valid) - 1 - days
	if idx < 0 {
		idx = 0
	}
	past = valid[idx]
	return latest, past, nil
}

// weeklyPct returns the trailing-5-session percent change.
func (c *MacroClient) weeklyPct(ctx context.Context, symbol string) (float64, error) {
	latest, past, err := c.quote(ctx, symbol, 5)
	if err != nil {
		return 0, err
	}
	if past == 0 {
		return 0, fmt.Errorf("no baseline for %s", symbol)
	}
	return (latest - past) / past * 100, nil
}

// fredLatest fetches the newest observation of one FRED series, optionally
// with the observation n rows back.
func (c *MacroClient) fredLatest(ctx context.Context, series string, back int) (latest, past float64, err error) {
	if c.fredKey == "" {
		return 0, 0, fmt.Errorf("FRED key not configured")
	}
	u := fmt.Sprintf("%s?series_id=%s&api_key=%s&file_type=json&sort_order=desc&limit=%d",
		c.fredURL, url.QueryEscape(series), url.QueryEscape(c.fredKey), back+1)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return 0, 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("FRED request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("FRED error for %s (status %d)", series, resp.StatusCode)
	}

	var raw struct {
		Observations []struct {
			Value string `json:"value"`
		} `json:"observations"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, 0, fmt.Errorf("failed to parse FRED %s: %w", series, err)
	}
	parse := func(s string) (float64, error) {
		var v float64
		_, err := fmt.Sscanf(s, "%f", &v)
		return v, err
	}
	if len(raw.Observations) == 0 {
		return 0, 0, fmt.Errorf("no observations for %s", series)
	}
	latest, err = parse(raw.Observations[0].Value)
	if err != nil {
		return 0, 0, err
	}
	if back > 0 && len(raw.Observations) > back {
		past, _ = parse(raw.Observations[back].Value)
	}
	return latest, past, nil
}

// ============================================================================
// MacroData implementation
// ============================================================================

func (c *MacroClient) VIX(ctx context.Context) (float64, error) {
	latest, _, err := c.quote(ctx, "^VIX", 0)
	return latest, err
}

func (c *MacroClient) HYSpreadBps(ctx context.Context) (float64, error) {
	latest, _, err := c.fredLatest(ctx, "BAMLH0A0HYM2", 0)
	return latest * 100, err // series is in percent
}

func (c *MacroClient) YieldCurve2s10s(ctx context.Context) (float64, error) {
	latest, _, err := c.fredLatest(ctx, "T10Y2Y", 0)
	return latest, err
}

func (c *MacroClient) TedSpread(ctx context.Context) (float64, error) {
	latest, _, err := c.fredLatest(ctx, "TEDRATE", 0)
	return latest, err
}

func (c *MacroClient) DXY(ctx context.Context) (float64, error) {
	latest, _, err := c.quote(ctx, "DX-Y.NYB", 0)
	return latest, err
}

func (c *MacroClient) USDJPY(ctx context.Context) (float64, error) {
	latest, _, err := c.quote(ctx, "USDJPY=X", 0)
	return latest, err
}

func (c *MacroClient) KREWeeklyPct(ctx context.Context) (float64, error) {
	return c.weeklyPct(ctx, "KRE")
}

func (c *MacroClient) SilverWeeklyPct(ctx context.Context) (float64, error) {
	return c.weeklyPct(ctx, "SI=F")
}

func (c *MacroClient) FedBalanceSheetWeeklyPct(ctx context.Context) (float64, error) {
	latest, past, err := c.fredLatest(ctx, "WALCL", 1)
	if err != nil {
		return 0, err
	}
	if past == 0 {
		return 0, fmt.Errorf("no baseline WALCL observation")
	}
	return (latest - past) / past * 100, nil
}

func (c *MacroClient) BTCWeeklyPct(ctx context.Context) (float64, error) {
	return c.weeklyPct(ctx, "BTC-USD")
}

func (c *MacroClient) USDTPeg(ctx context.Context) (float64, error) {
	latest, _, err := c.quote(ctx, "USDT-USD", 0)
	return latest, err
}

func (c *MacroClient) GoldSilverRatio(ctx context.Context) (float64, error) {
	gold, _, err := c.quote(ctx, "GC=F", 0)
	if err != nil {
		return 0, err
	}
	silver, _, err := c.quote(ctx, "SI=F", 0)
	if err != nil {
		return 0, err
	}
	if silver == 0 {
		return 0, fmt.Errorf("silver quote is zero")
	}
	return gold / silver, nil
}

func (c *MacroClient) StocksAbove200MAPct(ctx context.Context) (float64, error) {
	// S5TH is the S&P 500 percent-above-200MA index.
	latest, _, err := c.quote(ctx, "^S5TH", 0)
	return latest, err
}
