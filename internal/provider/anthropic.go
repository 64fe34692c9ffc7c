package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicDefaultBase = "https://api.anthropic.com"
	anthropicVersion     = "2023-06-01"
	anthropicMaxTokens   = 2048
)

// anthropicClient speaks the Anthropic messages API. It does not
// implement Streamer; the engine falls back to blocking generation.
type anthropicClient struct {
	baseURL string
	headers map[string]string
	client  *http.Client
}

// NewAnthropic returns a provider backed by the Anthropic messages API.
func NewAnthropic(apiKey, baseURL string, timeout time.Duration) Provider {
	if baseURL == "" {
		baseURL = anthropicDefaultBase
	}
	return &anthropicClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: map[string]string{
			"x-api-key":         apiKey,
			"anthropic-version": anthropicVersion,
		},
		client: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: timeout},
		},
	}
}

// Name implements Provider.
func (c *anthropicClient) Name() string { return "anthropic" }

// Generate implements Provider.
func (c *anthropicClient) Generate(ctx context.Context, req Request) (Result, error) {
	// The messages API takes system text as a top-level field, not as
	// a message role.
	var system []string
	msgs := make([]Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		msgs = append(msgs, m)
	}

	body := map[string]any{
		"model":      req.Model,
		"max_tokens": anthropicMaxTokens,
		"messages":   msgs,
	}
	if len(system) > 0 {
		body["system"] = strings.Join(system, "\n")
	}

	resp, err := postJSON(ctx, c.client, "anthropic", c.baseURL+"/v1/messages", c.headers, body)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("anthropic: decode response: %w", err)
	}

	res := Result{Raw: payload}
	blocks, ok := payload["content"].([]any)
	if !ok {
		res.Content = compactJSON(payload)
		return res, nil
	}

	var content strings.Builder
	var thinking []string
	for _, raw := range blocks {
		block, _ := raw.(map[string]any)
		text, _ := block["text"].(string)
		switch block["type"] {
		case "text":
			content.WriteString(text)
		case "thinking", "reasoning":
			thinking = append(thinking, text)
		}
	}
	res.Content = content.String()
	res.Reasoning = strings.Join(thinking, "\n")
	return res, nil
}
