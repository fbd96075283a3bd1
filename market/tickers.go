package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"PulseTrader/logger"
)

// Pre-compiled ticker patterns. $SYMBOL always counts; a bare SYMBOL only
// counts when trading context words appear nearby, which kills most of the
// all-caps noise.
var (
	reCashtag    = regexp.MustCompile(`\$([A-Z]{1,5})\b`)
	reBareTicker = regexp.MustCompile(`\b([A-Z]{2,5})\b`)

	tradingKeywords = []string{
		"calls", "puts", "shares", "stock", "buy", "sell", "long", "short",
		"moon", "dip", "earnings", "squeeze", "hold", "yolo", "position",
	}
)

// builtinBlacklist kills the common English words and finance jargon that
// look like tickers.
var builtinBlacklist = map[string]bool{
	"A": true, "I": true, "DD": true, "CEO": true, "CFO": true, "IPO": true,
	"ETF": true, "YOLO": true, "FOMO": true, "ATH": true, "IMO": true,
	"EOD": true, "OTM": true, "ITM": true, "WSB": true, "USA": true,
	"FDA": true, "SEC": true, "NYSE": true, "API": true, "EPS": true,
	"PE": true, "AI": true, "EV": true, "IT": true, "ALL": true, "ARE": true,
	"FOR": true, "ON": true, "NOW": true, "GO": true, "BE": true, "SO": true,
	"OR": true, "CAN": true, "ONE": true, "OUT": true, "BIG": true,
	"NEW": true, "GOOD": true, "BEST": true, "EDIT": true, "TLDR": true,
	"USD": true, "GDP": true, "CPI": true, "FED": true, "FYI": true,
	"LOL": true, "WTF": true, "RIP": true, "HODL": true, "THE": true,
}

// ExtractTickers pulls candidate symbols from free text. userBlacklist adds
// to the built-in set.
func ExtractTickers(text string, userBlacklist []string) []string {
	blocked := func(sym string) bool {
		if builtinBlacklist[sym] {
			return true
		}
		for _, b := range userBlacklist {
			if strings.EqualFold(b, sym) {
				return true
			}
		}
		return false
	}

	seen := make(map[string]bool)
	var out []string
	add := func(sym string) {
		if !seen[sym] && !blocked(sym) {
			seen[sym] = true
			out = append(out, sym)
		}
	}

	for _, m := range reCashtag.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}

	// Bare tickers need trading context in the same text.
	lower := strings.ToLower(text)
	hasContext := false
	for _, kw := range tradingKeywords {
		if strings.Contains(lower, kw) {
			hasContext = true
			break
		}
	}
	if hasContext {
		for _, m := range reBareTicker.FindAllStringSubmatch(text, -1) {
			add(m[1])
		}
	}
	return out
}

// TickerValidator answers "is this a real tradable symbol" with two tiers:
// the SEC company-tickers set refreshed daily, then an on-demand brokerage
// asset lookup whose result (either way) is cached per symbol.
type TickerValidator struct {
	mu         sync.Mutex
	secSet     map[string]bool
	secFetched time.Time
	assetCache map[string]bool
	brokerage  Brokerage
	secURL     string
	http       *http.Client
}

// NewTickerValidator creates a validator backed by brokerage lookups.
func NewTickerValidator(brokerage Brokerage) *TickerValidator {
	return &TickerValidator{
		secSet:     make(map[string]bool),
		assetCache: make(map[string]bool),
		brokerage:  brokerage,
		secURL:     "https://www.sec.gov/files/company_tickers.json",
		http:       &http.Client{Timeout: 15 * time.Second},
	}
}

// IsValid reports whether symbol is tradable.
func (v *TickerValidator) IsValid(ctx context.Context, symbol string) bool {
	symbol = strings.ToUpper(symbol)

	v.mu.Lock()
	if v.secSet[symbol] {
		v.mu.Unlock()
		return true
	}
	if cached, ok := v.assetCache[symbol]; ok {
		v.mu.Unlock()
		return cached
	}
	v.mu.Unlock()

	if v.brokerage == nil {
		return false
	}
	asset, err := v.brokerage.GetAsset(ctx, symbol)
	valid := err == nil && asset != nil && asset.Tradable

	v.mu.Lock()
	v.assetCache[symbol] = valid
	v.mu.Unlock()
	return valid
}

// RefreshSEC reloads the SEC common-tickers set. Wired to a daily cron job.
func (v *TickerValidator) RefreshSEC(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", v.secURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "pulsetrader research agent")
	resp, err := v.http.Do(req)
	if err != nil {
		return fmt.Errorf("SEC tickers fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("SEC tickers fetch failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var raw map[string]struct {
		Ticker string `json:"ticker"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("failed to parse SEC tickers: %w", err)
	}

	set := make(map[string]bool, len(raw))
	for _, row := range raw {
		set[strings.ToUpper(row.Ticker)] = true
	}

	v.mu.Lock()
	v.secSet = set
	v.secFetched = time.Now()
	v.mu.Unlock()
	logger.Infof("📇 SEC ticker set refreshed: %d symbols", len(set))
	return nil
}
