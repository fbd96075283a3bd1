package dexmarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Scanner is the DEX discovery provider interface the engine consumes.
type Scanner interface {
	LatestProfiles(ctx context.Context) ([]TokenProfile, error)
	LatestBoosts(ctx context.Context) ([]TokenProfile, error)
	TopBoosts(ctx context.Context) ([]TokenProfile, error)
	CommunityTakeovers(ctx context.Context) ([]TokenProfile, error)
	LatestAds(ctx context.Context) ([]TokenProfile, error)
	Search(ctx context.Context, term string) ([]Pair, error)
	GetPairs(ctx context.Context, chain string, tokenAddresses []string) ([]Pair, error)
}

// scannerMinInterval is the upstream's politeness budget.
const scannerMinInterval = 1100 * time.Millisecond

// ScannerClient is a Dexscreener-style client. Throttle state lives on the
// client value so separate instances (and tests) never share a limiter.
type ScannerClient struct {
	baseURL string
	http    *retryablehttp.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// NewScannerClient creates a scanner client against the public API.
func NewScannerClient(baseURL string) *ScannerClient {
	if baseURL == "" {
		baseURL = "https://api.dexscreener.com"
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 1 * time.Second
	rc.RetryWaitMax = 4 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil
	return &ScannerClient{baseURL: baseURL, http: rc}
}

// throttle blocks until the minimum inter-request gap has passed.
func (c *ScannerClient) throttle() {
	c.mu.Lock()
	wait := scannerMinInterval - time.Since(c.lastRequest)
	if wait > 0 {
		c.lastRequest = c.lastRequest.Add(scannerMinInterval)
	} else {
		c.lastRequest = time.Now()
	}
	c.mu.Unlock()
	if wait > 0 {
		time.Sleep(wait)
	}
}

func (c *ScannerClient) get(ctx context.Context, path string, out interface{}) error {
	c.throttle()
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("scanner request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read scanner response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("scanner error (status %d): %s", resp.StatusCode, string(body[:min(len(body), 200)]))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse scanner response: %w", err)
	}
	return nil
}

func (c *ScannerClient) profileFeed(ctx context.Context, path string) ([]TokenProfile, error) {
	var profiles []TokenProfile
	if err := c.get(ctx, path, &profiles); err != nil {
		return nil, err
	}
	// Only Solana candidates interest the engine.
	out := profiles[:0]
	for _, p := range profiles {
		if p.ChainID == "solana" {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *ScannerClient) LatestProfiles(ctx context.Context) ([]TokenProfile, error) {
	return c.profileFeed(ctx, "/token-profiles/latest/v1")
}

func (c *ScannerClient) LatestBoosts(ctx context.Context) ([]TokenProfile, error) {
	return c.profileFeed(ctx, "/token-boosts/latest/v1")
}

func (c *ScannerClient) TopBoosts(ctx context.Context) ([]TokenProfile, error) {
	return c.profileFeed(ctx, "/token-boosts/top/v1")
}

func (c *ScannerClient) CommunityTakeovers(ctx context.Context) ([]TokenProfile, error) {
	return c.profileFeed(ctx, "/community-takeovers/latest/v1")
}

func (c *ScannerClient) LatestAds(ctx context.Context) ([]TokenProfile, error) {
	return c.profileFeed(ctx, "/token-ads/latest/v1")
}

func (c *ScannerClient) Search(ctx context.Context, term string) ([]Pair, error) {
	var result struct {
		Pairs []Pair `json:"pairs"`
	}
	if err := c.get(ctx, "/latest/dex/search?q="+url.QueryEscape(term), &result); err != nil {
		return nil, err
	}
	return result.Pairs, nil
}

// GetPairs resolves token addresses to their pairs. The upstream caps at 30
// addresses per call; chunk accordingly.
func (c *ScannerClient) GetPairs(ctx context.Context, chain string, tokenAddresses []string) ([]Pair, error) {
	var all []Pair
	for start := 0; start < len(tokenAddresses); start += 30 {
		end := min(start+30, len(tokenAddresses))
		chunk := strings.Join(tokenAddresses[start:end], ",")
		var pairs []Pair
		if err := c.get(ctx, "/tokens/v1/"+chain+"/"+chunk, &pairs); err != nil {
			return all, err
		}
		all = append(all, pairs...)
	}
	return all, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
