package gather

import (
	"context"
	"time"
)

// SocialMessage is one message from a trending-symbols feed.
type SocialMessage struct {
	Body      string
	Sentiment string // "Bullish" | "Bearish" | "" when untagged
	CreatedAt time.Time
	Likes     int
}

// TrendingSource is a Stocktwits-style feed: trending symbols plus recent
// messages per symbol.
type TrendingSource interface {
	Trending(ctx context.Context, limit int) ([]string, error)
	Messages(ctx context.Context, symbol string, limit int) ([]SocialMessage, error)
}

// ForumPost is one post from a discussion-board feed.
type ForumPost struct {
	Title     string
	Body      string
	Flair     string
	Subgroup  string
	CreatedAt time.Time
	Upvotes   int
	Comments  int
}

// ForumSource is a discussion-board feed: hot posts per subgroup.
type ForumSource interface {
	HotPosts(ctx context.Context, subgroup string, limit int) ([]ForumPost, error)
}

// NewsSource serves breaking-news headlines for a symbol (Twitter-style).
type NewsSource interface {
	Headlines(ctx context.Context, symbol string, limit int) ([]string, error)
}

// ErrBlocked marks a 403-class response: the source is skipped for the
// tick, never failing the phase.
type ErrBlocked struct{ Source string }

func (e ErrBlocked) Error() string { return e.Source + " blocked the request" }
