package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/agentd-dev/agentd/internal/events"
)

// sseWriter emits server-sent event frames, flushing after each one so
// the browser sees deltas as they are produced.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	flusher, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: flusher}
}

func (s *sseWriter) event(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data)
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// sseSink translates engine callbacks into SSE frames. The event name
// carries the type; the payload holds the fields. Approvals are always
// deferred so the browser can decide via POST /api/approve.
type sseSink struct {
	out *sseWriter
}

var _ events.Sink = (*sseSink)(nil)

func (s *sseSink) StreamText(delta string) {
	s.out.event("assistant_delta", map[string]any{"text": delta})
}

func (s *sseSink) StreamReasoning(delta string) {
	s.out.event("reasoning_delta", map[string]any{"text": delta})
}

func (s *sseSink) AssistantRaw(text string) {
	s.out.event("assistant_raw", map[string]any{"text": text})
}

func (s *sseSink) Reasoning(text string) {
	if text == "" {
		return
	}
	s.out.event("reasoning", map[string]any{"text": text})
}

func (s *sseSink) ToolCall(tool, id string, args map[string]any, note string) {
	var n any
	if note != "" {
		n = note
	}
	s.out.event("tool_call", map[string]any{"tool": tool, "id": id, "args": args, "note": n})
}

func (s *sseSink) ToolResult(id string, result map[string]any) {
	s.out.event("tool_result", map[string]any{"id": id, "result": result})
}

func (s *sseSink) ApprovalRequired(req events.ApprovalRequest) events.Decision {
	s.out.event("approval", map[string]any{
		"tool":   req.Tool,
		"id":     req.ID,
		"reason": req.Reason,
		"args":   req.Args,
		"token":  req.Token,
	})
	return events.DecisionDefer
}

func (s *sseSink) Final(content string) {
	s.out.event("final", map[string]any{"content": content})
}

func (s *sseSink) Raw(data any) {
	s.out.event("raw", data)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	input := r.URL.Query().Get("q")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sink := &sseSink{out: newSSEWriter(w)}

	s.chatMu.Lock()
	_, err := s.session.ChatStream(r.Context(), input, sink)
	s.chatMu.Unlock()
	if err != nil {
		s.log.Warn("chat stream failed", "error", err)
	}

	// done tells EventSource clients to close instead of reconnecting.
	sink.out.event("done", map[string]any{})
}
