package dexmarket

// Pair is the scanner's view of one trading pair (Dexscreener-shaped).
type Pair struct {
	ChainID       string `json:"chainId"`
	PairAddress   string `json:"pairAddress"`
	PairCreatedAt int64  `json:"pairCreatedAt"` // unix millis, 0 = unknown
	BaseToken     struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUsd    string `json:"priceUsd"` // string per upstream API
	PriceChange struct {
		M5  float64 `json:"m5"`
		H1  float64 `json:"h1"`
		H6  float64 `json:"h6"`
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Volume struct {
		M5  float64 `json:"m5"`
		H1  float64 `json:"h1"`
		H6  float64 `json:"h6"`
		H24 float64 `json:"h24"`
	} `json:"volume"`
	Liquidity struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
	MarketCap float64 `json:"marketCap"`
	Txns      struct {
		H1 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h1"`
		H24 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
	Info   *PairInfo   `json:"info,omitempty"`
	Boosts *PairBoosts `json:"boosts,omitempty"`
}

// PairInfo carries the pair's web presence.
type PairInfo struct {
	Websites []PairLink `json:"websites"`
	Socials  []PairLink `json:"socials"`
}

// PairLink is one website or social entry.
type PairLink struct {
	Type string `json:"type,omitempty"`
	URL  string `json:"url"`
}

// PairBoosts carries paid-boost status.
type PairBoosts struct {
	Active int `json:"active"`
}

// HasWebsite reports whether the pair lists a website.
func (p *Pair) HasWebsite() bool {
	return p.Info != nil && len(p.Info.Websites) > 0
}

// HasSocial reports whether the pair lists a social of the given type
// ("twitter", "telegram").
func (p *Pair) HasSocial(kind string) bool {
	if p.Info == nil {
		return false
	}
	for _, s := range p.Info.Socials {
		if s.Type == kind {
			return true
		}
	}
	return false
}

// BoostCount returns the active boost count.
func (p *Pair) BoostCount() int {
	if p.Boosts == nil {
		return 0
	}
	return p.Boosts.Active
}

// TokenProfile is one row of the profile/boost/takeover/ad feeds.
type TokenProfile struct {
	ChainID      string `json:"chainId"`
	TokenAddress string `json:"tokenAddress"`
}

// Candle is one OHLCV bar from the chart provider.
type Candle struct {
	Timestamp int64   `json:"timestamp"` // unix seconds
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}
