// Package events defines the callback surface between the deliberation
// engine and its front ends (CLI, HTTP, recorders).
package events

// Decision is the three-valued outcome of an approval request. Defer means
// the decision arrives later through ResolveApproval with the issued token.
type Decision int

const (
	DecisionDeny Decision = iota
	DecisionApprove
	DecisionDefer
)

func (d Decision) String() string {
	switch d {
	case DecisionApprove:
		return "approve"
	case DecisionDefer:
		return "defer"
	default:
		return "deny"
	}
}

// ApprovalRequest describes a tool call awaiting a decision.
type ApprovalRequest struct {
	Tool   string
	ID     string
	Reason string
	Args   map[string]any
	Token  string
}

// Sink receives engine events in the order the engine produces them and
// answers approval requests. Implementations are called from a single
// goroutine per deliberation.
type Sink interface {
	AssistantRaw(text string)
	ToolCall(tool, id string, args map[string]any, note string)
	ToolResult(id string, result map[string]any)
	ApprovalRequired(req ApprovalRequest) Decision
	Final(content string)
	Reasoning(text string)
	Raw(data any)
	StreamText(delta string)
	StreamReasoning(delta string)
}

// NullSink discards every event and denies every approval request. It is
// the safe sink for headless runs.
type NullSink struct{}

var _ Sink = NullSink{}

func (NullSink) AssistantRaw(string)                             {}
func (NullSink) ToolCall(string, string, map[string]any, string) {}
func (NullSink) ToolResult(string, map[string]any)               {}
func (NullSink) ApprovalRequired(ApprovalRequest) Decision       { return DecisionDeny }
func (NullSink) Final(string)                                    {}
func (NullSink) Reasoning(string)                                {}
func (NullSink) Raw(any)                                         {}
func (NullSink) StreamText(string)                               {}
func (NullSink) StreamReasoning(string)                          {}
