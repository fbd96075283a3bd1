package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"PulseTrader/logger"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"` // "system" | "user" | "assistant"
	Content string `json:"content"`
}

// Usage is the token accounting returned by the provider.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// CompletionRequest is the single LLM contract the core depends on.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	JSONObject  bool // request response_format: json_object
}

// Completion is the provider answer plus usage.
type Completion struct {
	Content string
	Usage   Usage
}

// LLM is the provider interface consumed by the research layer.
type LLM interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Client talks to any OpenAI-compatible chat-completions endpoint.
type Client struct {
	APIKey  string
	BaseURL string
	http    *http.Client
}

// NewClient creates an LLM client. baseURL must point at the /v1 root.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	c := &Client{
		APIKey:  apiKey,
		BaseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	if len(apiKey) > 8 {
		logger.Infof("🤖 [MCP] LLM API key: %s...%s, base: %s", apiKey[:4], apiKey[len(apiKey)-4:], baseURL)
	}
	return c
}

// Complete performs one chat completion. Every call carries the caller's
// context deadline; the core passes 10s per provider call.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	body := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if req.JSONObject {
		body["response_format"] = map[string]string{"type": "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("LLM request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read LLM response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("LLM API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 300))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage Usage `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("LLM response has no choices")
	}

	return &Completion{
		Content: parsed.Choices[0].Message.Content,
		Usage:   parsed.Usage,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
