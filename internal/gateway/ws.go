package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"github.com/agentd-dev/agentd/internal/engine"
	"github.com/agentd-dev/agentd/internal/events"
)

// wsRequest is one inbound WebSocket message.
type wsRequest struct {
	Type  string `json:"type"`
	Input string `json:"input"`
}

// wsEvent is one outbound WebSocket message. Type matches the SSE
// event names; Payload matches the SSE frame bodies.
type wsEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// wsSink translates engine callbacks into WebSocket envelopes.
// Approvals are deferred; clients resolve them via POST /api/approve.
type wsSink struct {
	ctx  context.Context
	conn *websocket.Conn
}

var _ events.Sink = (*wsSink)(nil)

func (s *wsSink) send(typ string, payload any) {
	data, err := json.Marshal(wsEvent{Type: typ, Payload: payload})
	if err != nil {
		return
	}
	_ = s.conn.Write(s.ctx, websocket.MessageText, data)
}

func (s *wsSink) StreamText(delta string) {
	s.send("assistant_delta", map[string]any{"text": delta})
}

func (s *wsSink) StreamReasoning(delta string) {
	s.send("reasoning_delta", map[string]any{"text": delta})
}

func (s *wsSink) AssistantRaw(text string) {
	s.send("assistant_raw", map[string]any{"text": text})
}

func (s *wsSink) Reasoning(text string) {
	if text == "" {
		return
	}
	s.send("reasoning", map[string]any{"text": text})
}

func (s *wsSink) ToolCall(tool, id string, args map[string]any, note string) {
	var n any
	if note != "" {
		n = note
	}
	s.send("tool_call", map[string]any{"tool": tool, "id": id, "args": args, "note": n})
}

func (s *wsSink) ToolResult(id string, result map[string]any) {
	s.send("tool_result", map[string]any{"id": id, "result": result})
}

func (s *wsSink) ApprovalRequired(req events.ApprovalRequest) events.Decision {
	s.send("approval", map[string]any{
		"tool":   req.Tool,
		"id":     req.ID,
		"reason": req.Reason,
		"args":   req.Args,
		"token":  req.Token,
	})
	return events.DecisionDefer
}

func (s *wsSink) Final(content string) {
	s.send("final", map[string]any{"content": content})
}

func (s *wsSink) Raw(data any) {
	s.send("raw", data)
}

// handleWS runs the WebSocket chat mirror: the client sends chat
// envelopes, the server streams the same event set the SSE endpoint
// produces and closes each turn with a done envelope carrying the
// pending approval, if any.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Error("websocket accept failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusInternalError, "unexpected close")
	}()

	ctx := r.Context()
	sink := &wsSink{ctx: ctx, conn: conn}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			sink.send("error", map[string]any{"message": "invalid message format"})
			continue
		}

		switch req.Type {
		case "chat":
			s.chatMu.Lock()
			_, err := s.session.ChatStream(ctx, req.Input, sink)
			pending := s.session.PendingInfo()
			s.chatMu.Unlock()
			if errors.Is(err, engine.ErrApprovalPending) {
				sink.send("error", map[string]any{"message": "approval pending; resolve it first"})
				sink.send("done", map[string]any{"pending": pending})
				continue
			}
			if err != nil {
				s.log.Warn("websocket chat failed", "error", err)
				return
			}
			sink.send("done", map[string]any{"pending": pending})

		default:
			sink.send("error", map[string]any{"message": "unknown message type " + req.Type})
		}
	}
}
