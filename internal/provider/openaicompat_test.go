package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestChat(t *testing.T, baseURL string) *chatClient {
	t.Helper()
	c := newChatClient("openai", baseURL, 5*time.Second)
	c.headers["Authorization"] = "Bearer test-key"
	return c
}

// collect drains a stream and returns the pieces, failing the test if
// the final event is missing or duplicated.
func collect(t *testing.T, ch <-chan StreamEvent) (deltas, reasonings []string, final *Result) {
	t.Helper()
	for ev := range ch {
		switch {
		case ev.Final != nil:
			if final != nil {
				t.Fatal("stream emitted a second final event")
			}
			final = ev.Final
		case ev.Delta != "":
			deltas = append(deltas, ev.Delta)
		case ev.ReasoningDelta != "":
			reasonings = append(reasonings, ev.ReasoningDelta)
		}
	}
	if final == nil {
		t.Fatal("stream ended without a final event")
	}
	return deltas, reasonings, final
}

func TestChatGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s, want /v1/chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q, want %q", auth, "Bearer test-key")
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["model"] != "gpt-4o" {
			t.Errorf("model = %v, want gpt-4o", body["model"])
		}
		if body["temperature"] != float64(0) {
			t.Errorf("temperature = %v, want 0", body["temperature"])
		}
		if _, ok := body["stream"]; ok {
			t.Error("sync request must not set stream")
		}

		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Hello!","reasoning":"because"}}]}`)
	}))
	defer srv.Close()

	c := newTestChat(t, srv.URL)
	res, err := c.Generate(context.Background(), Request{
		Model:    "gpt-4o",
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Content != "Hello!" {
		t.Errorf("Content = %q, want %q", res.Content, "Hello!")
	}
	if res.Reasoning != "because" {
		t.Errorf("Reasoning = %q, want %q", res.Reasoning, "because")
	}
	if res.Raw == nil {
		t.Error("Raw payload not retained")
	}
}

func TestChatGenerateReasoningContentList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"},"reasoning_content":[{"text":"first"},{"text":"second"}]}]}`)
	}))
	defer srv.Close()

	c := newTestChat(t, srv.URL)
	res, err := c.Generate(context.Background(), Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Reasoning != "first\nsecond" {
		t.Errorf("Reasoning = %q, want %q", res.Reasoning, "first\nsecond")
	}
}

func TestChatGenerateUnusableShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"error":{"message":"boom"}}`)
	}))
	defer srv.Close()

	c := newTestChat(t, srv.URL)
	res, err := c.Generate(context.Background(), Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Content != `{"error":{"message":"boom"}}` {
		t.Errorf("Content = %q, want raw payload JSON", res.Content)
	}
}

func TestChatGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"upstream exploded"}`)
	}))
	defer srv.Close()

	c := newTestChat(t, srv.URL)
	_, err := c.Generate(context.Background(), Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error type = %T, want *HTTPError", err)
	}
	if httpErr.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", httpErr.Status)
	}
	if !strings.Contains(httpErr.Body, "upstream exploded") {
		t.Errorf("Body = %q, want upstream payload", httpErr.Body)
	}
}

func TestChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["stream"] != true {
			t.Errorf("stream = %v, want true", body["stream"])
		}

		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"reasoning\":\"hmm\"}}]}\n\n")
		fmt.Fprint(w, ": keepalive comment\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := newTestChat(t, srv.URL)
	ch, err := c.GenerateStream(context.Background(), Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	deltas, reasonings, final := collect(t, ch)
	if got, want := strings.Join(deltas, ""), "Hello"; got != want {
		t.Errorf("deltas = %q, want %q", got, want)
	}
	if got, want := strings.Join(reasonings, ""), "hmm"; got != want {
		t.Errorf("reasoning deltas = %q, want %q", got, want)
	}
	if final.Content != "Hello" {
		t.Errorf("final Content = %q, want %q", final.Content, "Hello")
	}
	if final.Reasoning != "hmm" {
		t.Errorf("final Reasoning = %q, want %q", final.Reasoning, "hmm")
	}
	if final.Raw == nil {
		t.Error("final Raw not retained")
	}
}

func TestChatStreamZeroDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := newTestChat(t, srv.URL)
	ch, err := c.GenerateStream(context.Background(), Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	deltas, _, final := collect(t, ch)
	if len(deltas) != 0 {
		t.Errorf("deltas = %v, want none", deltas)
	}
	if final.Content != "" {
		t.Errorf("final Content = %q, want empty", final.Content)
	}
}

func TestChatStreamTransportDrop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// No [DONE]; the connection just ends.
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"par\"}}]}\n\n")
	}))
	defer srv.Close()

	c := newTestChat(t, srv.URL)
	ch, err := c.GenerateStream(context.Background(), Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	_, _, final := collect(t, ch)
	if final.Content != "par" {
		t.Errorf("final Content = %q, want accumulated %q", final.Content, "par")
	}
}

func TestChatStreamHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"bad key"}`)
	}))
	defer srv.Close()

	c := newTestChat(t, srv.URL)
	_, err := c.GenerateStream(context.Background(), Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if httpErr.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", httpErr.Status)
	}
}

func TestSnapshotStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// A whole-message snapshot followed by cumulative reasoning
		// strings, the way local servers misbehave.
		fmt.Fprint(w, "data: {\"choices\":[{\"message\":{\"content\":\"Hi there\",\"reasoning\":\"full think\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"reasoning\":\"ab\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"reasoning\":\"abcd\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := newTestChat(t, srv.URL)
	c.snapshotStream = true
	ch, err := c.GenerateStream(context.Background(), Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	deltas, reasonings, final := collect(t, ch)
	if len(deltas) != 0 {
		t.Errorf("snapshot content leaked as deltas: %v", deltas)
	}
	if got, want := strings.Join(reasonings, "|"), "ab|cd"; got != want {
		t.Errorf("reasoning deltas = %q, want %q", got, want)
	}
	if final.Content != "Hi there" {
		t.Errorf("final Content = %q, want %q", final.Content, "Hi there")
	}
	if final.Reasoning != "full think" {
		t.Errorf("final Reasoning = %q, want snapshot value %q", final.Reasoning, "full think")
	}
}

func TestSnapshotStreamNonPrefixReasoning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"reasoning\":\"ab\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"reasoning\":\"zz\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := newTestChat(t, srv.URL)
	c.snapshotStream = true
	ch, err := c.GenerateStream(context.Background(), Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	_, reasonings, final := collect(t, ch)
	if got, want := strings.Join(reasonings, "|"), "ab|zz"; got != want {
		t.Errorf("reasoning deltas = %q, want %q", got, want)
	}
	if final.Reasoning != "abzz" {
		t.Errorf("final Reasoning = %q, want %q", final.Reasoning, "abzz")
	}
}

func TestBuildBodyReasoning(t *testing.T) {
	on, off := true, false
	tests := []struct {
		name   string
		flag   *bool
		model  string
		hints  []string
		effort string
		want   string // expected effort, "" means no reasoning field
	}{
		{name: "forced on", flag: &on, model: "gpt-4o", hints: reasoningHints, want: "medium"},
		{name: "forced on custom effort", flag: &on, model: "gpt-4o", hints: reasoningHints, effort: "high", want: "high"},
		{name: "forced off reasoning model", flag: &off, model: "o3-mini", hints: reasoningHints, want: ""},
		{name: "auto plain model", flag: nil, model: "gpt-4o", hints: reasoningHints, want: ""},
		{name: "auto o3", flag: nil, model: "O3-mini", hints: reasoningHints, want: "medium"},
		{name: "auto think hint", flag: nil, model: "qwen-thinking", hints: []string{"o3", "o4", "reason", "think"}, want: "medium"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &chatClient{hints: tt.hints}
			body := c.buildBody(Request{Model: tt.model, Reasoning: tt.flag, ReasoningEffort: tt.effort}, false)
			r, ok := body["reasoning"].(map[string]string)
			if tt.want == "" {
				if ok {
					t.Fatalf("reasoning = %v, want absent", r)
				}
				return
			}
			if !ok {
				t.Fatal("reasoning field absent")
			}
			if r["effort"] != tt.want {
				t.Errorf("effort = %q, want %q", r["effort"], tt.want)
			}
		})
	}
}

func TestSSEData(t *testing.T) {
	tests := []struct {
		line string
		want string
		ok   bool
	}{
		{line: "data: hello", want: "hello", ok: true},
		{line: "data:hello", want: "hello", ok: true},
		{line: "data: [DONE]", want: "[DONE]", ok: true},
		{line: ": comment", ok: false},
		{line: "event: done", ok: false},
		{line: "", ok: false},
	}
	for _, tt := range tests {
		got, ok := sseData(tt.line)
		if ok != tt.ok || got != tt.want {
			t.Errorf("sseData(%q) = %q, %v, want %q, %v", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}

func TestReasoningText(t *testing.T) {
	tests := []struct {
		name string
		v    any
		sep  string
		want string
	}{
		{name: "string", v: "plain", sep: "\n", want: "plain"},
		{name: "blocks", v: []any{map[string]any{"text": "a"}, map[string]any{"text": "b"}}, sep: "\n", want: "a\nb"},
		{name: "blocks no sep", v: []any{map[string]any{"text": "a"}, map[string]any{"text": "b"}}, sep: "", want: "ab"},
		{name: "mixed", v: []any{map[string]any{"text": "a"}, "b"}, sep: "\n", want: "a\nb"},
		{name: "nil", v: nil, sep: "\n", want: ""},
		{name: "number", v: 42, sep: "\n", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reasoningText(tt.v, tt.sep); got != tt.want {
				t.Errorf("reasoningText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpenRouterHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("HTTP-Referer"); got != "https://example.com" {
			t.Errorf("HTTP-Referer = %q, want https://example.com", got)
		}
		if got := r.Header.Get("X-Title"); got != "agentd" {
			t.Errorf("X-Title = %q, want agentd", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer rk" {
			t.Errorf("Authorization = %q, want Bearer rk", got)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	p := NewOpenRouter(OpenRouterOptions{
		APIKey:  "rk",
		BaseURL: srv.URL,
		Referer: "https://example.com",
		AppName: "agentd",
	}, time.Second)

	if _, err := p.Generate(context.Background(), Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
}

func TestConstructorDefaults(t *testing.T) {
	or := NewOpenRouter(OpenRouterOptions{APIKey: "k"}, time.Second).(*chatClient)
	if or.baseURL != openRouterDefaultBase {
		t.Errorf("openrouter baseURL = %q, want %q", or.baseURL, openRouterDefaultBase)
	}
	if _, ok := or.headers["HTTP-Referer"]; ok {
		t.Error("referer header set without a configured referer")
	}

	lm := NewLMStudio("", time.Second).(*chatClient)
	if lm.baseURL != lmStudioDefaultBase {
		t.Errorf("lmstudio baseURL = %q, want %q", lm.baseURL, lmStudioDefaultBase)
	}
	if !lm.snapshotStream {
		t.Error("lmstudio must enable snapshot stream handling")
	}
	if _, ok := lm.headers["Authorization"]; ok {
		t.Error("lmstudio must not send an Authorization header")
	}

	oa := NewOpenAI("k", "", time.Second).(*chatClient)
	if oa.baseURL != openAIDefaultBase {
		t.Errorf("openai baseURL = %q, want %q", oa.baseURL, openAIDefaultBase)
	}
}
