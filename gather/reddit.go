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

// RedditClient is the reference ForumSource against the public listing API.
type RedditClient struct {
	baseURL string
	http    *http.Client
}

func NewRedditClient() *RedditClient {
	return &RedditClient{
		baseURL: "https://www.reddit.com",
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *RedditClient) HotPosts(ctx context.Context, subgroup string, limit int) ([]ForumPost, error) {
	path := fmt.Sprintf("%s/r/%s/hot.json?limit=%d", c.baseURL, url.PathEscape(subgroup), limit)
	req, err := http.NewRequestWithContext(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "pulsetrader research agent 1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forum request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return nil, ErrBlocked{Source: "forum"}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forum error (status %d)", resp.StatusCode)
	}

	var raw struct {
		Data struct {
			Children []struct {
				Data struct {
					Title       string  `json:"title"`
					Selftext    string  `json:"selftext"`
					LinkFlair   string  `json:"link_flair_text"`
					CreatedUTC  float64 `json:"created_utc"`
					Ups         int     `json:"ups"`
					NumComments int     `json:"num_comments"`
					Stickied    bool    `json:"stickied"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse forum response: %w", err)
	}

	posts := make([]ForumPost, 0, len(raw.Data.Children))
	for _, child := range raw.Data.Children {
		d := child.Data
		if d.Stickied {
			continue
		}
		posts = append(posts, ForumPost{
			Title:     d.Title,
			Body:      d.Selftext,
			Flair:     d.LinkFlair,
			Subgroup:  subgroup,
			CreatedAt: time.Unix(int64(d.CreatedUTC), 0),
			Upvotes:   d.Ups,
			Comments:  d.NumComments,
		})
	}
	return posts, nil
}
