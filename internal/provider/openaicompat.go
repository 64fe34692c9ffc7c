package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// reasoningHints are model-name fragments that suggest the model
// emits reasoning traces when asked.
var reasoningHints = []string{"o3", "o4", "reason"}

// maxErrorBody caps how much of an error response body is kept.
const maxErrorBody = 4096

// chatClient speaks the OpenAI chat completions wire. OpenAI,
// OpenRouter, and LM Studio all use it; they differ only in base URL,
// auth headers, reasoning hints, and streaming quirks.
type chatClient struct {
	name    string
	baseURL string
	headers map[string]string
	hints   []string

	// snapshotStream enables handling for local servers that put
	// whole-message snapshots and cumulative reasoning strings into
	// stream chunks instead of proper deltas.
	snapshotStream bool

	client *http.Client
}

func newChatClient(name, baseURL string, timeout time.Duration) *chatClient {
	return &chatClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: map[string]string{},
		hints:   reasoningHints,
		// A global client timeout would kill long-running streams.
		// The header timeout bounds connection setup; request
		// contexts handle the rest.
		client: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: timeout},
		},
	}
}

// Name implements Provider.
func (c *chatClient) Name() string { return c.name }

// Generate implements Provider.
func (c *chatClient) Generate(ctx context.Context, req Request) (Result, error) {
	resp, err := postJSON(ctx, c.client, c.name, c.endpoint(), c.headers, c.buildBody(req, false))
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("%s: decode response: %w", c.name, err)
	}

	res := Result{Raw: payload}
	content, reasoning, ok := chatMessage(payload)
	if !ok {
		// Unusable shape. Hand the whole payload back as text so the
		// conversation records what the server actually said.
		res.Content = compactJSON(payload)
		return res, nil
	}
	res.Content = content
	res.Reasoning = reasoning
	return res, nil
}

// GenerateStream implements Streamer.
func (c *chatClient) GenerateStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	resp, err := postJSON(ctx, c.client, c.name, c.endpoint(), c.headers, c.buildBody(req, true))
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamEvent, 16)
	go c.readStream(ctx, resp.Body, ch)
	return ch, nil
}

func (c *chatClient) endpoint() string {
	return c.baseURL + "/v1/chat/completions"
}

func (c *chatClient) buildBody(req Request, stream bool) map[string]any {
	body := map[string]any{
		"model":       req.Model,
		"messages":    req.Messages,
		"temperature": 0,
	}
	if stream {
		body["stream"] = true
	}
	if wantReasoning(req.Reasoning, req.Model, c.hints) {
		effort := req.ReasoningEffort
		if effort == "" {
			effort = "medium"
		}
		body["reasoning"] = map[string]string{"effort": effort}
	}
	return body
}

// readStream decodes SSE chunks until [DONE] or the transport drops,
// then emits the single final event. Cancelling the context closes
// the body to unblock the scanner.
func (c *chatClient) readStream(ctx context.Context, body io.ReadCloser, ch chan<- StreamEvent) {
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

	send := func(ev StreamEvent) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var (
		content        strings.Builder
		reasoning      strings.Builder
		rawLast        map[string]any
		finalReasoning *string
	)

	// Large assistant turns produce very long SSE lines.
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		data, ok := sseData(scanner.Text())
		if !ok {
			continue
		}
		if data == "[DONE]" {
			break
		}
		var chunk map[string]any
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		rawLast = chunk
		choices, _ := chunk["choices"].([]any)
		if len(choices) == 0 {
			continue
		}
		choice, _ := choices[0].(map[string]any)
		if choice == nil {
			continue
		}

		if c.snapshotStream {
			// Whole-message snapshots already carry the full text;
			// emitting them as deltas would duplicate output.
			if msg, _ := choice["message"].(map[string]any); len(msg) > 0 {
				if text, _ := msg["content"].(string); text != "" {
					content.WriteString(text)
				}
				if r, ok := msg["reasoning"].(string); ok {
					finalReasoning = &r
				}
			}
		}

		delta, _ := choice["delta"].(map[string]any)
		if text, _ := delta["content"].(string); text != "" {
			content.WriteString(text)
			if !send(StreamEvent{Delta: text}) {
				return
			}
		}
		if r, ok := delta["reasoning"].(string); ok && r != "" {
			if c.snapshotStream {
				// Cumulative reasoning strings: emit only the unseen
				// suffix.
				if seen := reasoning.String(); strings.HasPrefix(r, seen) {
					r = r[len(seen):]
				}
			}
			if r != "" {
				reasoning.WriteString(r)
				if !send(StreamEvent{ReasoningDelta: r}) {
					return
				}
			}
		}
		if !c.snapshotStream {
			if rc, _ := choice["reasoning_content"].([]any); len(rc) > 0 {
				if r := reasoningText(rc, ""); r != "" {
					reasoning.WriteString(r)
					if !send(StreamEvent{ReasoningDelta: r}) {
						return
					}
				}
			}
		}
	}

	// Transport errors land here as well: the final event still
	// carries whatever accumulated, so the conversation can go on.
	final := Result{Content: content.String(), Reasoning: reasoning.String()}
	if finalReasoning != nil {
		final.Reasoning = *finalReasoning
	}
	if rawLast != nil {
		final.Raw = rawLast
	}
	send(StreamEvent{Final: &final})
}

// sseData extracts the payload of an SSE data line. Both "data: " and
// "data:" prefixes occur in the wild.
func sseData(line string) (string, bool) {
	switch {
	case strings.HasPrefix(line, "data: "):
		return strings.TrimSpace(strings.TrimPrefix(line, "data: ")), true
	case strings.HasPrefix(line, "data:"):
		return strings.TrimSpace(strings.TrimPrefix(line, "data:")), true
	}
	return "", false
}

// chatMessage pulls assistant text and any reasoning trace out of a
// chat completions payload. ok is false when the payload carries no
// usable choice.
func chatMessage(payload map[string]any) (content, reasoning string, ok bool) {
	choices, _ := payload["choices"].([]any)
	if len(choices) == 0 {
		return "", "", false
	}
	choice, _ := choices[0].(map[string]any)
	if choice == nil {
		return "", "", false
	}
	msg, _ := choice["message"].(map[string]any)
	content, _ = msg["content"].(string)
	rc := msg["reasoning"]
	if rc == nil {
		rc = msg["reasoning_content"]
	}
	if rc == nil {
		rc = choice["reasoning_content"]
	}
	return content, reasoningText(rc, "\n"), true
}

// reasoningText flattens the shapes servers use for reasoning traces:
// a plain string, or a list of {text: ...} blocks.
func reasoningText(v any, sep string) string {
	switch rc := v.(type) {
	case string:
		return rc
	case []any:
		parts := make([]string, 0, len(rc))
		for _, item := range rc {
			switch b := item.(type) {
			case map[string]any:
				text, _ := b["text"].(string)
				parts = append(parts, text)
			case string:
				parts = append(parts, b)
			}
		}
		return strings.Join(parts, sep)
	}
	return ""
}

// wantReasoning decides whether to request a reasoning trace. A nil
// flag falls back to sniffing the model name.
func wantReasoning(flag *bool, model string, hints []string) bool {
	if flag != nil {
		return *flag
	}
	lower := strings.ToLower(model)
	for _, h := range hints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// postJSON issues a JSON POST and verifies a 200 response. Non-200
// responses are drained and returned as *HTTPError so callers can
// surface the body.
func postJSON(ctx context.Context, client *http.Client, name, url string, headers map[string]string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		// Do not dress caller cancellation up as a provider failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &HTTPError{Provider: name, Status: resp.StatusCode, Body: string(raw)}
	}
	return resp, nil
}
