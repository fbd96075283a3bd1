package gather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// StocktwitsClient is the reference TrendingSource against the public
// Stocktwits API.
type StocktwitsClient struct {
	baseURL string
	http    *http.Client
}

func NewStocktwitsClient() *StocktwitsClient {
	return &StocktwitsClient{
		baseURL: "https://api.stocktwits.com/api/2",
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *StocktwitsClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; pulsetrader)")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("stocktwits request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnavailableForLegalReasons {
		return ErrBlocked{Source: "stocktwits"}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stocktwits error (status %d)", resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}

func (c *StocktwitsClient) Trending(ctx context.Context, limit int) ([]string, error) {
	var raw struct {
		Symbols []struct {
			Symbol string `json:"symbol"`
		} `json:"symbols"`
	}
	if err := c.get(ctx, fmt.Sprintf("/trending/symbols.json?limit=%d", limit), &raw); err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(raw.Symbols))
	for _, s := range raw.Symbols {
		symbols = append(symbols, s.Symbol)
	}
	return symbols, nil
}

func (c *StocktwitsClient) Messages(ctx context.Context, symbol string, limit int) ([]SocialMessage, error) {
	var raw struct {
		Messages []struct {
			Body      string `json:"body"`
			CreatedAt string `json:"created_at"`
			Entities  struct {
				Sentiment *struct {
					Basic string `json:"basic"`
				} `json:"sentiment"`
			} `json:"entities"`
			Likes struct {
				Total int `json:"total"`
			} `json:"likes"`
		} `json:"messages"`
	}
	path := fmt.Sprintf("/streams/symbol/%s.json?limit=%d", url.PathEscape(symbol), limit)
	if err := c.get(ctx, path, &raw); err != nil {
		return nil, err
	}

	messages := make([]SocialMessage, 0, len(raw.Messages))
	for _, m := range raw.Messages {
		createdAt, _ := time.Parse("2006-01-02T15:04:05Z", m.CreatedAt)
		sentiment := ""
		if m.Entities.Sentiment != nil {
			sentiment = m.Entities.Sentiment.Basic
		}
		messages = append(messages, SocialMessage{
			Body:      m.Body,
			Sentiment: sentiment,
			CreatedAt: createdAt,
			Likes:     m.Likes.Total,
		})
	}
	return messages, nil
}
