// Package cli renders engine events on a terminal and runs the
// interactive chat loop.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"

	"github.com/agentd-dev/agentd/internal/events"
	"github.com/agentd-dev/agentd/internal/extract"
)

const (
	resultClip = 4000
	rawClip    = 12000
)

// Sink prints engine events for an interactive user. Approval requests
// open a confirm prompt unless auto-approve is on. The engine calls a
// sink from one goroutine per deliberation, so no locking is needed.
type Sink struct {
	out     io.Writer
	showRaw bool
	auto    bool

	// confirm is swapped out in tests; the default opens a huh form
	// on the terminal.
	confirm func(req events.ApprovalRequest) (bool, error)

	streamStarted       bool
	streamReasonStarted bool
}

var _ events.Sink = (*Sink)(nil)

// NewSink creates a terminal sink writing to out (os.Stdout when nil).
// showRaw additionally prints assistant protocol turns and raw provider
// payloads.
func NewSink(out io.Writer, showRaw bool) *Sink {
	if out == nil {
		out = os.Stdout
	}
	return &Sink{out: out, showRaw: showRaw, confirm: confirmPrompt}
}

// SetAutoApprove flips the auto-approve switch.
func (s *Sink) SetAutoApprove(on bool) { s.auto = on }

// AutoApprove reports the current auto-approve state.
func (s *Sink) AutoApprove() bool { return s.auto }

func (s *Sink) AssistantRaw(text string) {
	if s.showRaw && text != "" {
		fmt.Fprintln(s.out, "[assistant]", text)
	}
}

func (s *Sink) ToolCall(tool, id string, args map[string]any, note string) {
	line := fmt.Sprintf("[tool call] id=%s tool=%s args=%s", id, tool, compactJSON(args))
	if note != "" {
		line += " note=" + note
	}
	fmt.Fprintln(s.out, line)
}

func (s *Sink) ToolResult(id string, result map[string]any) {
	fmt.Fprintf(s.out, "[tool result] id=%s -> %s\n", id, extract.Truncate(compactJSON(result), resultClip))
}

func (s *Sink) ApprovalRequired(req events.ApprovalRequest) events.Decision {
	fmt.Fprintf(s.out, "[approval] tool=%s id=%s reason=%s args=%s\n", req.Tool, req.ID, req.Reason, compactJSON(req.Args))
	if s.auto {
		fmt.Fprintln(s.out, "[approval] auto-approve=ON -> approved")
		return events.DecisionApprove
	}
	ok, err := s.confirm(req)
	if err != nil {
		// No usable terminal. Denying is the safe answer.
		fmt.Fprintf(s.out, "[approval] prompt failed (%v) -> denied\n", err)
		return events.DecisionDeny
	}
	if ok {
		return events.DecisionApprove
	}
	return events.DecisionDeny
}

func (s *Sink) Final(content string) {
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, "assistant>", content)
	s.streamStarted = false
	s.streamReasonStarted = false
}

func (s *Sink) Reasoning(text string) {
	if text != "" {
		fmt.Fprintln(s.out, "[reasoning]", extract.Truncate(text, rawClip))
	}
}

func (s *Sink) Raw(data any) {
	if !s.showRaw || data == nil {
		return
	}
	pretty, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		pretty = []byte(fmt.Sprint(data))
	}
	fmt.Fprintln(s.out, "[raw]", extract.Truncate(string(pretty), rawClip))
}

func (s *Sink) StreamText(delta string) {
	if !s.streamStarted {
		fmt.Fprint(s.out, "assistant> ")
		s.streamStarted = true
	}
	fmt.Fprint(s.out, delta)
}

func (s *Sink) StreamReasoning(delta string) {
	if !s.streamReasonStarted {
		fmt.Fprint(s.out, "\nreasoning> ")
		s.streamReasonStarted = true
	}
	fmt.Fprint(s.out, delta)
}

func confirmPrompt(req events.ApprovalRequest) (bool, error) {
	ok := false
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Approve %s?", req.Tool)).
		Description(fmt.Sprintf("%s\nargs: %s", req.Reason, compactJSON(req.Args))).
		Affirmative("Approve").
		Negative("Deny").
		Value(&ok).
		Run()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
