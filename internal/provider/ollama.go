package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const ollamaDefaultBase = "http://localhost:11434"

// ollamaClient speaks the native Ollama chat API. Responses stream as
// newline-delimited JSON rather than SSE.
type ollamaClient struct {
	baseURL string
	client  *http.Client
}

// NewOllama returns a provider backed by a local Ollama daemon.
func NewOllama(baseURL string, timeout time.Duration) Provider {
	if baseURL == "" {
		baseURL = ollamaDefaultBase
	}
	return &ollamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: timeout},
		},
	}
}

// Name implements Provider.
func (c *ollamaClient) Name() string { return "ollama" }

// Generate implements Provider.
func (c *ollamaClient) Generate(ctx context.Context, req Request) (Result, error) {
	resp, err := postJSON(ctx, c.client, "ollama", c.baseURL+"/api/chat", nil, c.buildBody(req, false))
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("ollama: decode response: %w", err)
	}

	res := Result{Raw: payload}
	msg, _ := payload["message"].(map[string]any)
	if content, ok := msg["content"].(string); ok {
		res.Content = content
	} else {
		res.Content = compactJSON(payload)
	}
	return res, nil
}

// GenerateStream implements Streamer.
func (c *ollamaClient) GenerateStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	resp, err := postJSON(ctx, c.client, "ollama", c.baseURL+"/api/chat", nil, c.buildBody(req, true))
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamEvent, 16)
	go c.readStream(ctx, resp.Body, ch)
	return ch, nil
}

func (c *ollamaClient) buildBody(req Request, stream bool) map[string]any {
	return map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   stream,
	}
}

// readStream decodes newline-delimited JSON events until done:true or
// the transport drops, then emits the single final event.
func (c *ollamaClient) readStream(ctx context.Context, body io.ReadCloser, ch chan<- StreamEvent) {
	defer close(ch)
	defer body.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			body.Close()
		case <-done:
		}
	}()

	var (
		content strings.Builder
		rawLast map[string]any
	)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var evt map[string]any
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			continue
		}
		rawLast = evt
		msg, _ := evt["message"].(map[string]any)
		if text, _ := msg["content"].(string); text != "" {
			content.WriteString(text)
			select {
			case ch <- StreamEvent{Delta: text}:
			case <-ctx.Done():
				return
			}
		}
		if doneFlag, _ := evt["done"].(bool); doneFlag {
			break
		}
	}

	final := Result{Content: content.String()}
	if rawLast != nil {
		final.Raw = rawLast
	}
	select {
	case ch <- StreamEvent{Final: &final}:
	case <-ctx.Done():
	}
}
