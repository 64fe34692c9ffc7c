package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/agentd-dev/agentd/internal/config"
	"github.com/agentd-dev/agentd/internal/engine"
	"github.com/agentd-dev/agentd/internal/metrics"
	"github.com/agentd-dev/agentd/internal/provider"
	"github.com/agentd-dev/agentd/internal/tool"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider replays scripted results in order.
type fakeProvider struct {
	results []provider.Result
	calls   int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(_ context.Context, _ provider.Request) (provider.Result, error) {
	i := f.calls
	f.calls++
	if i < len(f.results) {
		return f.results[i], nil
	}
	return provider.Result{}, nil
}

// fakeStreamer streams scripted event sequences, one per turn.
type fakeStreamer struct {
	fakeProvider
	turns [][]provider.StreamEvent
	turn  int
}

func (f *fakeStreamer) GenerateStream(_ context.Context, _ provider.Request) (<-chan provider.StreamEvent, error) {
	i := f.turn
	f.turn++
	ch := make(chan provider.StreamEvent)
	go func() {
		defer close(ch)
		if i < len(f.turns) {
			for _, ev := range f.turns[i] {
				ch <- ev
			}
		}
	}()
	return ch, nil
}

func finalTurn(content string) provider.Result {
	return provider.Result{Content: `{"type":"final","content":` + strconv.Quote(content) + `}`}
}

func toolTurn(id, name, argsJSON string) provider.Result {
	return provider.Result{Content: fmt.Sprintf(`{"type":"tool","id":%q,"tool":%q,"args":%s}`, id, name, argsJSON)}
}

func testServer(t *testing.T, p provider.Provider) (*Server, string) {
	t.Helper()
	cfg := &config.Config{
		Model:           "test-model",
		Approval:        config.ApprovalOnRequest,
		MaxSteps:        8,
		Stream:          true,
		ReasoningEffort: "medium",
		WorkspaceRoot:   t.TempDir(),
	}
	env := tool.Env{
		WorkspaceRoot: cfg.WorkspaceRoot,
		ConfigDir:     filepath.Join(cfg.WorkspaceRoot, ".agentic"),
		ToolTimeout:   10 * time.Second,
	}
	sess := engine.New(p, cfg, tool.Builtins(), env, engine.Options{Log: discardLogger()})
	srv := New(sess, Options{Log: discardLogger(), Version: "test"})
	return srv, cfg.WorkspaceRoot
}

type chatResponse struct {
	Result  map[string]any   `json:"result"`
	Events  []map[string]any `json:"events"`
	Pending map[string]any   `json:"pending"`
	Error   string           `json:"error"`
}

func postJSON(t *testing.T, ts *httptest.Server, path, body string) (*http.Response, chatResponse) {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var out chatResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("decode %s response %q: %v", path, data, err)
		}
	}
	return resp, out
}

func findEvent(events []map[string]any, typ string) map[string]any {
	for _, ev := range events {
		if ev["type"] == typ {
			return ev
		}
	}
	return nil
}

func TestIndexServesUI(t *testing.T) {
	srv, _ := testServer(t, &fakeProvider{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, path := range []string{"/", "/index.html"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("GET %s content type = %q", path, ct)
		}
		if !strings.Contains(string(body), "/api/chat_stream") {
			t.Errorf("GET %s body does not drive the SSE endpoint", path)
		}
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t, &fakeProvider{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if string(body) != "Not Found" {
		t.Errorf("body = %q, want Not Found", body)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, &fakeProvider{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || health.Version != "test" {
		t.Errorf("health = %+v", health)
	}
	if health.PendingApproval {
		t.Error("fresh session reports a pending approval")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	p := &fakeProvider{results: []provider.Result{finalTurn("hi")}}
	cfg := &config.Config{
		Model:           "test-model",
		Approval:        config.ApprovalNever,
		MaxSteps:        4,
		ReasoningEffort: "medium",
		WorkspaceRoot:   t.TempDir(),
	}
	env := tool.Env{WorkspaceRoot: cfg.WorkspaceRoot, ToolTimeout: 10 * time.Second}
	m := metrics.New()
	sess := engine.New(p, cfg, tool.Builtins(), env, engine.Options{Log: discardLogger(), Metrics: m})
	srv := New(sess, Options{Log: discardLogger(), Metrics: m})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	postJSON(t, ts, "/api/chat", `{"input":"hi"}`)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "agentd_provider_requests_total") {
		t.Error("metrics output missing provider counter")
	}
}

func TestChatDefersApproval(t *testing.T) {
	p := &fakeProvider{results: []provider.Result{
		toolTurn("t1", "write_file", `{"path":"x","content":"y"}`),
	}}
	srv, ws := testServer(t, p)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, out := postJSON(t, ts, "/api/chat", `{"input":"write"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	approvalEv := findEvent(out.Events, "approval")
	if approvalEv == nil {
		t.Fatalf("no approval event in %v", out.Events)
	}
	token, _ := approvalEv["token"].(string)
	if token == "" {
		t.Error("approval event missing token")
	}
	if approvalEv["auto"] != nil {
		t.Error("approval marked auto without auto-approve")
	}
	if out.Pending == nil || out.Pending["token"] != token {
		t.Errorf("pending = %v, want token %q", out.Pending, token)
	}
	if findEvent(out.Events, "tool_result") != nil {
		t.Error("deferred call produced a tool_result")
	}
	if _, err := os.Stat(filepath.Join(ws, "x")); !os.IsNotExist(err) {
		t.Error("deferred write_file ran")
	}
}

func TestChatAutoApprove(t *testing.T) {
	p := &fakeProvider{results: []provider.Result{
		toolTurn("t1", "write_file", `{"path":"x","content":"y"}`),
		finalTurn("written"),
	}}
	srv, ws := testServer(t, p)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	postJSON(t, ts, "/api/auto_approve", `{"auto_approve":true}`)
	_, out := postJSON(t, ts, "/api/chat", `{"input":"write"}`)

	approvalEv := findEvent(out.Events, "approval")
	if approvalEv == nil || approvalEv["auto"] != true {
		t.Fatalf("approval event = %v, want auto=true", approvalEv)
	}
	if findEvent(out.Events, "tool_result") == nil {
		t.Error("auto-approved call missing tool_result")
	}
	if finalEv := findEvent(out.Events, "final"); finalEv == nil || finalEv["content"] != "written" {
		t.Errorf("final event = %v", finalEv)
	}
	if out.Pending != nil {
		t.Errorf("pending = %v, want null", out.Pending)
	}
	data, err := os.ReadFile(filepath.Join(ws, "x"))
	if err != nil || string(data) != "y" {
		t.Errorf("auto-approved write_file did not run: %q, %v", data, err)
	}
}

func TestApproveResumesDeliberation(t *testing.T) {
	p := &fakeProvider{results: []provider.Result{
		toolTurn("t1", "write_file", `{"path":"x","content":"y"}`),
		finalTurn("after approval"),
	}}
	srv, ws := testServer(t, p)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	_, chat := postJSON(t, ts, "/api/chat", `{"input":"write"}`)
	token, _ := chat.Pending["token"].(string)
	if token == "" {
		t.Fatalf("no pending token in %v", chat.Pending)
	}

	_, out := postJSON(t, ts, "/api/approve", `{"token":`+strconv.Quote(token)+`,"approve":true}`)
	if out.Result["approved"] != true {
		t.Fatalf("result = %v", out.Result)
	}
	if findEvent(out.Events, "tool_result") == nil {
		t.Error("approved call missing tool_result event")
	}
	if finalEv := findEvent(out.Events, "final"); finalEv == nil || finalEv["content"] != "after approval" {
		t.Errorf("final event = %v", finalEv)
	}
	if out.Pending != nil {
		t.Errorf("pending = %v, want null", out.Pending)
	}
	if data, err := os.ReadFile(filepath.Join(ws, "x")); err != nil || string(data) != "y" {
		t.Errorf("approved write_file did not run: %q, %v", data, err)
	}
}

func TestApproveDeny(t *testing.T) {
	p := &fakeProvider{results: []provider.Result{
		toolTurn("t1", "write_file", `{"path":"x","content":"y"}`),
	}}
	srv, ws := testServer(t, p)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	_, chat := postJSON(t, ts, "/api/chat", `{"input":"write"}`)
	token, _ := chat.Pending["token"].(string)

	_, out := postJSON(t, ts, "/api/approve", `{"token":`+strconv.Quote(token)+`,"approve":false}`)
	if out.Result["approved"] != false {
		t.Fatalf("result = %v", out.Result)
	}
	if out.Pending != nil {
		t.Errorf("pending = %v, want null", out.Pending)
	}
	if _, err := os.Stat(filepath.Join(ws, "x")); !os.IsNotExist(err) {
		t.Error("denied write_file ran")
	}
}

func TestChatWhilePendingRejected(t *testing.T) {
	p := &fakeProvider{results: []provider.Result{
		toolTurn("t1", "write_file", `{"path":"x","content":"y"}`),
		finalTurn("after resolve"),
	}}
	srv, _ := testServer(t, p)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	_, first := postJSON(t, ts, "/api/chat", `{"input":"write"}`)
	token, _ := first.Pending["token"].(string)
	if token == "" {
		t.Fatalf("no pending token in %v", first.Pending)
	}

	resp, second := postJSON(t, ts, "/api/chat", `{"input":"another task"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if second.Error != "approval pending; resolve it first" {
		t.Errorf("error = %q", second.Error)
	}
	if len(second.Events) != 0 {
		t.Errorf("rejected chat produced events: %v", second.Events)
	}
	if second.Pending == nil || second.Pending["token"] != token {
		t.Errorf("pending = %v, want token %q", second.Pending, token)
	}
	if p.calls != 1 {
		t.Errorf("provider calls = %d, want 1", p.calls)
	}

	_, out := postJSON(t, ts, "/api/approve", `{"token":`+strconv.Quote(token)+`,"approve":true}`)
	if finalEv := findEvent(out.Events, "final"); finalEv == nil || finalEv["content"] != "after resolve" {
		t.Errorf("final event after resolve = %v", finalEv)
	}
}

func TestApproveUnknownToken(t *testing.T) {
	srv, _ := testServer(t, &fakeProvider{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	_, out := postJSON(t, ts, "/api/approve", `{"token":"bogus","approve":true}`)
	if out.Result["error"] != "no matching pending approval" {
		t.Errorf("result = %v", out.Result)
	}
}

func TestBadJSONBodies(t *testing.T) {
	srv, _ := testServer(t, &fakeProvider{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, path := range []string{"/api/chat", "/api/approve", "/api/auto_approve"} {
		resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader("{"))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("POST %s status = %d, want 400", path, resp.StatusCode)
		}
		if string(body) != "Bad JSON" {
			t.Errorf("POST %s body = %q, want Bad JSON", path, body)
		}
	}
}

func TestAutoApproveToggle(t *testing.T) {
	srv, _ := testServer(t, &fakeProvider{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	get := func() bool {
		t.Helper()
		resp, err := http.Get(ts.URL + "/api/auto_approve")
		if err != nil {
			t.Fatalf("GET /api/auto_approve: %v", err)
		}
		defer resp.Body.Close()
		var out struct {
			AutoApprove bool `json:"auto_approve"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return out.AutoApprove
	}

	if get() {
		t.Error("auto-approve starts on")
	}
	postJSON(t, ts, "/api/auto_approve", `{"auto_approve":true}`)
	if !get() {
		t.Error("auto-approve did not turn on")
	}
	// Non-boolean values leave the setting untouched.
	postJSON(t, ts, "/api/auto_approve", `{"auto_approve":"nope"}`)
	if !get() {
		t.Error("non-boolean value changed the setting")
	}
	postJSON(t, ts, "/api/auto_approve", `{"auto_approve":false}`)
	if get() {
		t.Error("auto-approve did not turn off")
	}
}
