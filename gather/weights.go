package gather

import (
	"math"
	"strings"
	"time"
)

// decayHalfLifeMinutes halves a post's weight every two hours.
const decayHalfLifeMinutes = 120.0

// TimeDecay maps post age to a freshness multiplier, clamped to [0.2, 1.0].
func TimeDecay(postedAt, now time.Time) float64 {
	ageMinutes := now.Sub(postedAt).Minutes()
	if ageMinutes < 0 {
		ageMinutes = 0
	}
	decay := math.Pow(0.5, ageMinutes/decayHalfLifeMinutes)
	if decay < 0.2 {
		return 0.2
	}
	if decay > 1.0 {
		return 1.0
	}
	return decay
}

// upvoteMultiplier is a stepwise engagement bracket.
func upvoteMultiplier(upvotes int) float64 {
	switch {
	case upvotes >= 1000:
		return 1.5
	case upvotes >= 500:
		return 1.3
	case upvotes >= 200:
		return 1.2
	case upvotes >= 100:
		return 1.1
	case upvotes >= 50:
		return 1.0
	default:
		return 0.8
	}
}

func commentMultiplier(comments int) float64 {
	switch {
	case comments >= 500:
		return 1.5
	case comments >= 200:
		return 1.3
	case comments >= 100:
		return 1.2
	case comments >= 50:
		return 1.1
	case comments >= 20:
		return 1.0
	default:
		return 0.8
	}
}

// EngagementMultiplier averages the upvote and comment brackets.
func EngagementMultiplier(upvotes, comments int) float64 {
	return (upvoteMultiplier(upvotes) + commentMultiplier(comments)) / 2
}

// flairMultipliers ranks post flairs by historical signal quality.
var flairMultipliers = map[string]float64{
	"DD":               1.5,
	"Technical Analysis": 1.3,
	"TA":               1.3,
	"News":             1.2,
	"Discussion":       1.0,
	"Daily Discussion": 0.7,
	"YOLO":             0.6,
	"Gain":             0.5,
	"Loss":             0.5,
	"Meme":             0.4,
	"Shitpost":         0.3,
}

// FlairMultiplier looks up a flair's weight, defaulting to 1.0.
func FlairMultiplier(flair string) float64 {
	if m, ok := flairMultipliers[flair]; ok {
		return m
	}
	return 1.0
}

// bullishWords / bearishWords form the keyword lexicon for forum posts.
var bullishWords = []string{
	"moon", "rocket", "calls", "buy", "long", "bullish", "squeeze", "breakout",
	"undervalued", "rally", "pump", "gains", "winner", "beat", "upgrade",
}

var bearishWords = []string{
	"puts", "short", "sell", "bearish", "crash", "dump", "overvalued", "drill",
	"bagholder", "tank", "miss", "downgrade", "bankrupt", "rug",
}

// LexiconSentiment scores text in [-1, +1] from keyword hits.
func LexiconSentiment(text string) float64 {
	lower := strings.ToLower(text)
	var bull, bear int
	for _, w := range bullishWords {
		if strings.Contains(lower, w) {
			bull++
		}
	}
	for _, w := range bearishWords {
		if strings.Contains(lower, w) {
			bear++
		}
	}
	total := bull + bear
	if total == 0 {
		return 0
	}
	score := float64(bull-bear) / float64(total)
	// Scale by hit density so a single word does not read as full conviction.
	confidence := math.Min(1.0, float64(total)/4.0)
	return score * confidence
}
