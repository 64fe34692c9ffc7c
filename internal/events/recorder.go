package events

// Recorder collects events as JSON-ready maps, in order. Approval requests
// are recorded and deferred so an external caller can resolve them by token.
// Not safe for concurrent use; each deliberation owns its recorder.
type Recorder struct {
	events []map[string]any
}

var _ Sink = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{}
}

// Events returns the recorded events. The slice is shared; callers must not
// mutate it while a deliberation is running.
func (r *Recorder) Events() []map[string]any {
	return r.events
}

func (r *Recorder) AssistantRaw(text string) {
	r.events = append(r.events, map[string]any{"type": "assistant_raw", "text": text})
}

func (r *Recorder) ToolCall(tool, id string, args map[string]any, note string) {
	ev := map[string]any{"type": "tool_call", "tool": tool, "id": id, "args": args}
	if note != "" {
		ev["note"] = note
	}
	r.events = append(r.events, ev)
}

func (r *Recorder) ToolResult(id string, result map[string]any) {
	r.events = append(r.events, map[string]any{"type": "tool_result", "id": id, "result": result})
}

func (r *Recorder) ApprovalRequired(req ApprovalRequest) Decision {
	r.events = append(r.events, map[string]any{
		"type":   "approval",
		"tool":   req.Tool,
		"id":     req.ID,
		"reason": req.Reason,
		"args":   req.Args,
		"token":  req.Token,
	})
	return DecisionDefer
}

func (r *Recorder) Final(content string) {
	r.events = append(r.events, map[string]any{"type": "final", "content": content})
}

func (r *Recorder) Reasoning(text string) {
	if text == "" {
		return
	}
	r.events = append(r.events, map[string]any{"type": "reasoning", "text": text})
}

func (r *Recorder) Raw(data any) {
	if data == nil {
		return
	}
	r.events = append(r.events, map[string]any{"type": "raw", "data": data})
}

func (r *Recorder) StreamText(delta string) {
	if delta == "" {
		return
	}
	r.events = append(r.events, map[string]any{"type": "assistant_delta", "text": delta})
}

func (r *Recorder) StreamReasoning(delta string) {
	if delta == "" {
		return
	}
	r.events = append(r.events, map[string]any{"type": "reasoning_delta", "text": delta})
}
