package cli

import (
	"errors"
	"strings"
	"testing"

	"github.com/agentd-dev/agentd/internal/events"
)

func testSink(showRaw bool) (*Sink, *strings.Builder) {
	var out strings.Builder
	s := NewSink(&out, showRaw)
	return s, &out
}

func TestSinkToolEvents(t *testing.T) {
	s, out := testSink(false)

	s.ToolCall("read_file", "t1", map[string]any{"path": "a.txt"}, "")
	s.ToolCall("run_shell", "t2", map[string]any{"cmd": "ls"}, "list files")
	s.ToolResult("t1", map[string]any{"content": "hi"})

	got := out.String()
	for _, want := range []string{
		"[tool call] id=t1 tool=read_file args={\"path\":\"a.txt\"}",
		"note=list files",
		"[tool result] id=t1 -> {\"content\":\"hi\"}",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(strings.SplitN(got, "\n", 2)[0], "note=") {
		t.Errorf("note printed for empty note:\n%s", got)
	}
}

func TestSinkApprovalAuto(t *testing.T) {
	s, out := testSink(false)
	s.confirm = func(events.ApprovalRequest) (bool, error) {
		t.Fatal("confirm called with auto-approve on")
		return false, nil
	}
	s.SetAutoApprove(true)

	d := s.ApprovalRequired(events.ApprovalRequest{Tool: "run_shell", ID: "t1", Reason: "risky"})
	if d != events.DecisionApprove {
		t.Errorf("decision = %v, want approve", d)
	}
	if !strings.Contains(out.String(), "auto-approve=ON") {
		t.Errorf("auto approval not announced:\n%s", out.String())
	}
}

func TestSinkApprovalConfirm(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
		err  error
		want events.Decision
	}{
		{"approved", true, nil, events.DecisionApprove},
		{"denied", false, nil, events.DecisionDeny},
		{"prompt failure denies", false, errors.New("no tty"), events.DecisionDeny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, out := testSink(false)
			s.confirm = func(events.ApprovalRequest) (bool, error) { return tt.ok, tt.err }

			d := s.ApprovalRequired(events.ApprovalRequest{Tool: "write_file", ID: "t1", Reason: "write"})
			if d != tt.want {
				t.Errorf("decision = %v, want %v", d, tt.want)
			}
			if tt.err != nil && !strings.Contains(out.String(), "prompt failed") {
				t.Errorf("prompt failure not reported:\n%s", out.String())
			}
		})
	}
}

func TestSinkStreamPrefix(t *testing.T) {
	s, out := testSink(false)

	s.StreamText("hel")
	s.StreamText("lo")
	s.Final("hello")
	s.StreamText("again")

	got := out.String()
	if n := strings.Count(got, "assistant> hel"); n != 1 {
		t.Errorf("first turn prefix count = %d, want 1:\n%s", n, got)
	}
	// Final resets the prefix state for the next turn.
	if !strings.Contains(got, "assistant> again") {
		t.Errorf("second turn not re-prefixed:\n%s", got)
	}
}

func TestSinkRawVerboseOnly(t *testing.T) {
	quiet, quietOut := testSink(false)
	quiet.Raw(map[string]any{"model": "m"})
	quiet.AssistantRaw(`{"type":"final"}`)
	if quietOut.String() != "" {
		t.Errorf("quiet sink printed: %q", quietOut.String())
	}

	verbose, verboseOut := testSink(true)
	verbose.Raw(map[string]any{"model": "m"})
	verbose.AssistantRaw(`{"type":"final"}`)
	got := verboseOut.String()
	if !strings.Contains(got, "[raw]") || !strings.Contains(got, `"model": "m"`) {
		t.Errorf("raw payload missing:\n%s", got)
	}
	if !strings.Contains(got, "[assistant]") {
		t.Errorf("assistant turn missing:\n%s", got)
	}
}

func TestSinkReasoningSkipsEmpty(t *testing.T) {
	s, out := testSink(false)
	s.Reasoning("")
	if out.String() != "" {
		t.Errorf("empty reasoning printed: %q", out.String())
	}
	s.Reasoning("thinking")
	if !strings.Contains(out.String(), "[reasoning] thinking") {
		t.Errorf("reasoning missing:\n%s", out.String())
	}
}
