package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"PulseTrader/logger"
)

// AlpacaClient is the reference Brokerage/MarketData/OptionsData
// implementation against an Alpaca-style REST API.
type AlpacaClient struct {
	apiKey    string
	secretKey string
	baseURL   string // trading API
	dataURL   string // market data API
	http      *http.Client

	clockMu      sync.Mutex
	clockCache   *Clock
	clockFetched time.Time
}

// NewAlpacaClient creates a client. isPaper selects the paper trading host.
func NewAlpacaClient(apiKey, secretKey string, isPaper bool) *AlpacaClient {
	baseURL := "https://api.alpaca.markets"
	if isPaper {
		baseURL = "https://paper-api.alpaca.markets"
	}
	return &AlpacaClient{
		apiKey:    apiKey,
		secretKey: secretKey,
		baseURL:   baseURL,
		dataURL:   "https://data.alpaca.markets",
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *AlpacaClient) doRequest(ctx context.Context, method, host, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, host+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// parseFloat reads Alpaca's string-encoded numbers.
func parseFloat(v interface{}) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case float64:
		return t
	}
	return 0
}

func (c *AlpacaClient) GetAccount(ctx context.Context) (*Account, error) {
	resp, err := c.doRequest(ctx, "GET", c.baseURL, "/v2/account", nil)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse account response: %w", err)
	}
	return &Account{
		Equity:      parseFloat(raw["equity"]),
		Cash:        parseFloat(raw["cash"]),
		BuyingPower: parseFloat(raw["buying_power"]),
	}, nil
}

func (c *AlpacaClient) GetPositions(ctx context.Context) ([]Position, error) {
	resp, err := c.doRequest(ctx, "GET", c.baseURL, "/v2/positions", nil)
	if err != nil {
		return nil, err
	}
	var raw []map[string]interface{}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse positions response: %w", err)
	}

	result := make([]Position, 0, len(raw))
	for _, pos := range raw {
		symbol, _ := pos["symbol"].(string)
		qty := parseFloat(pos["qty"])
		side := "long"
		if qty < 0 {
			side = "short"
			qty = -qty
		}
		assetClass, _ := pos["asset_class"].(string)
		result = append(result, Position{
			Symbol:        symbol,
			Qty:           qty,
			Side:          side,
			MarketValue:   parseFloat(pos["market_value"]),
			UnrealizedPL:  parseFloat(pos["unrealized_pl"]),
			CurrentPrice:  parseFloat(pos["current_price"]),
			AvgEntryPrice: parseFloat(pos["avg_entry_price"]),
			AssetClass:    assetClass,
		})
	}
	return result, nil
}

// GetClock caches for 30s: the loop asks every tick and the answer barely
// moves.
func (c *AlpacaClient) GetClock(ctx context.Context) (*Clock, error) {
	c.clockMu.Lock()
	if c.clockCache != nil && time.Since(c.clockFetched) < 30*time.Second {
		cached := c.clockCache
		c.clockMu.Unlock()
		return cached, nil
	}
	c.clockMu.Unlock()

	resp, err := c.doRequest(ctx, "GET", c.baseURL, "/v2/clock", nil)
	if err != nil {
		return nil, err
	}
	var raw struct {
		IsOpen    bool      `json:"is_open"`
		Timestamp time.Time `json:"timestamp"`
		NextOpen  time.Time `json:"next_open"`
		NextClose time.Time `json:"next_close"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse clock response: %w", err)
	}
	clock := &Clock{IsOpen: raw.IsOpen, Timestamp: raw.Timestamp, NextOpen: raw.NextOpen, NextClose: raw.NextClose}
	c.clockMu.Lock()
	c.clockCache = clock
	c.clockFetched = time.Now()
	c.clockMu.Unlock()
	return clock, nil
}

func (c *AlpacaClient) GetAsset(ctx context.Context, symbol string) (*Asset, error) {
	resp, err := c.doRequest(ctx, "GET", c.baseURL, "/v2/assets/"+url.PathEscape(symbol), nil)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Symbol   string `json:"symbol"`
		Exchange string `json:"exchange"`
		Tradable bool   `json:"tradable"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse asset response: %w", err)
	}
	return &Asset{Symbol: raw.Symbol, Exchange: raw.Exchange, Tradable: raw.Tradable}, nil
}

func (c *AlpacaClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	order := map[string]interface{}{
		"symbol":          req.Symbol,
		"side":            req.Side,
		"type":            req.Type,
		"time_in_force":   req.TimeInForce,
		"client_order_id": uuid.New().String(),
	}
	if req.Notional > 0 {
		order["notional"] = strconv.FormatFloat(req.Notional, 'f', 2, 64)
	} else {
		order["qty"] = strconv.FormatFloat(req.Qty, 'f', -1, 64)
	}
	if req.Type == "limit" {
		order["limit_price"] = strconv.FormatFloat(req.LimitPrice, 'f', 2, 64)
	}

	resp, err := c.doRequest(ctx, "POST", c.baseURL, "/v2/orders", order)
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}
	var raw struct {
		ID       string `json:"id"`
		ClientID string `json:"client_order_id"`
		Symbol   string `json:"symbol"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse order response: %w", err)
	}
	logger.Infof("🏦 [Alpaca] Order submitted: %s %s %s", req.Side, req.Symbol, raw.Status)
	return &Order{ID: raw.ID, ClientID: raw.ClientID, Symbol: raw.Symbol, Status: raw.Status}, nil
}

func (c *AlpacaClient) ClosePosition(ctx context.Context, symbol string) error {
	_, err := c.doRequest(ctx, "DELETE", c.baseURL, "/v2/positions/"+url.PathEscape(symbol), nil)
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", symbol, err)
	}
	logger.Infof("🏦 [Alpaca] Position closed: %s", symbol)
	return nil
}

// GetSnapshot fetches the stock snapshot (latest trade + previous daily bar).
func (c *AlpacaClient) GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	resp, err := c.doRequest(ctx, "GET", c.dataURL, "/v2/stocks/"+url.PathEscape(symbol)+"/snapshot", nil)
	if err != nil {
		return nil, err
	}
	var raw struct {
		LatestTrade struct {
			Price float64 `json:"p"`
		} `json:"latestTrade"`
		PrevDailyBar struct {
			Close  float64 `json:"c"`
			Volume float64 `json:"v"`
		} `json:"prevDailyBar"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot response: %w", err)
	}
	return &Snapshot{
		Symbol:          symbol,
		LatestPrice:     raw.LatestTrade.Price,
		PrevDailyClose:  raw.PrevDailyBar.Close,
		PrevDailyVolume: raw.PrevDailyBar.Volume,
		Timestamp:       time.Now(),
	}, nil
}

// GetCryptoSnapshot is served by the crypto data client; the Alpaca stock
// client does not implement it.
func (c *AlpacaClient) GetCryptoSnapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	return nil, fmt.Errorf("crypto snapshots are not served by the stock data client")
}

// ============================================================================
// Options data
// ============================================================================

func (c *AlpacaClient) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	resp, err := c.doRequest(ctx, "GET", c.baseURL,
		"/v2/options/contracts?underlying_symbols="+url.QueryEscape(symbol)+"&limit=500", nil)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Contracts []struct {
			ExpirationDate string `json:"expiration_date"`
		} `json:"option_contracts"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse contracts response: %w", err)
	}
	seen := make(map[string]bool)
	var expirations []time.Time
	for _, ct := range raw.Contracts {
		if seen[ct.ExpirationDate] {
			continue
		}
		seen[ct.ExpirationDate] = true
		if t, err := time.Parse("2006-01-02", ct.ExpirationDate); err == nil {
			expirations = append(expirations, t)
		}
	}
	return expirations, nil
}

func (c *AlpacaClient) GetChain(ctx context.Context, symbol string, expiration time.Time) (*OptionChain, error) {
	resp, err := c.doRequest(ctx, "GET", c.baseURL,
		"/v2/options/contracts?underlying_symbols="+url.QueryEscape(symbol)+
			"&expiration_date="+expiration.Format("2006-01-02")+"&limit=500", nil)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Contracts []struct {
			Symbol         string `json:"symbol"`
			Type           string `json:"type"`
			StrikePrice    string `json:"strike_price"`
			ExpirationDate string `json:"expiration_date"`
		} `json:"option_contracts"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse chain response: %w", err)
	}
	chain := &OptionChain{}
	for _, ct := range raw.Contracts {
		strike, _ := strconv.ParseFloat(ct.StrikePrice, 64)
		exp, _ := time.Parse("2006-01-02", ct.ExpirationDate)
		contract := OptionContract{
			Symbol:     ct.Symbol,
			Underlying: symbol,
			Strike:     strike,
			Expiration: exp,
			Type:       ct.Type,
		}
		if ct.Type == "call" {
			chain.Calls = append(chain.Calls, contract)
		} else {
			chain.Puts = append(chain.Puts, contract)
		}
	}
	return chain, nil
}

func (c *AlpacaClient) GetOptionSnapshot(ctx context.Context, optionSymbol string) (*OptionSnapshot, error) {
	resp, err := c.doRequest(ctx, "GET", c.dataURL,
		"/v1beta1/options/snapshots?symbols="+url.QueryEscape(optionSymbol), nil)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Snapshots map[string]struct {
			LatestQuote struct {
				Bid float64 `json:"bp"`
				Ask float64 `json:"ap"`
			} `json:"latestQuote"`
			Greeks struct {
				Delta float64 `json:"delta"`
				Gamma float64 `json:"gamma"`
				Theta float64 `json:"theta"`
			} `json:"greeks"`
			IV float64 `json:"impliedVolatility"`
		} `json:"snapshots"`
	}
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse option snapshot: %w", err)
	}
	snap, ok := raw.Snapshots[optionSymbol]
	if !ok {
		return nil, fmt.Errorf("no snapshot for %s", optionSymbol)
	}
	return &OptionSnapshot{
		Symbol: optionSymbol,
		Bid:    snap.LatestQuote.Bid,
		Ask:    snap.LatestQuote.Ask,
		Delta:  snap.Greeks.Delta,
		Gamma:  snap.Greeks.Gamma,
		Theta:  snap.Greeks.Theta,
		IV:     snap.IV,
	}, nil
}
