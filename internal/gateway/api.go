package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agentd-dev/agentd/internal/engine"
	"github.com/agentd-dev/agentd/internal/events"
)

// autoSink records events like the UI recorder but, when auto-approve
// is on, approves immediately and marks the recorded approval event.
type autoSink struct {
	*events.Recorder
	auto bool
}

func (a *autoSink) ApprovalRequired(req events.ApprovalRequest) events.Decision {
	dec := a.Recorder.ApprovalRequired(req)
	if !a.auto {
		return dec
	}
	// Recorder.Events shares its slice, so the approval event it just
	// appended can be tagged in place.
	evs := a.Recorder.Events()
	evs[len(evs)-1]["auto"] = true
	return events.DecisionApprove
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badJSON(w)
		return
	}

	sink := &autoSink{Recorder: events.NewRecorder(), auto: s.autoApprove.Load()}

	s.chatMu.Lock()
	_, err := s.session.ChatOnce(r.Context(), req.Input, sink)
	pending := s.session.PendingInfo()
	s.chatMu.Unlock()

	out := map[string]any{
		"events":  recorded(sink.Recorder),
		"pending": pending,
	}
	if err != nil {
		s.log.Warn("chat failed", "error", err)
		if errors.Is(err, engine.ErrApprovalPending) {
			out["error"] = "approval pending; resolve it first"
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token   string `json:"token"`
		Approve bool   `json:"approve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badJSON(w)
		return
	}

	sink := events.NewRecorder()

	s.chatMu.Lock()
	result := s.session.ResolveApproval(r.Context(), req.Token, req.Approve, sink)
	if approved, _ := result["approved"].(bool); approved {
		// The approved tool ran; hand the result back to the model so
		// deliberation picks up where the defer interrupted it.
		if _, err := s.session.ChatOnce(r.Context(), "", sink); err != nil {
			s.log.Warn("resume after approval failed", "error", err)
		}
	}
	pending := s.session.PendingInfo()
	s.chatMu.Unlock()

	writeJSON(w, map[string]any{
		"result":  result,
		"events":  recorded(sink),
		"pending": pending,
	})
}

func (s *Server) handleAutoApproveGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"auto_approve": s.autoApprove.Load()})
}

func (s *Server) handleAutoApprovePost(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badJSON(w)
		return
	}
	if v, ok := req["auto_approve"].(bool); ok {
		s.autoApprove.Store(v)
	}
	writeJSON(w, map[string]any{"auto_approve": s.autoApprove.Load()})
}

// recorded never returns nil so clients always see a JSON array.
func recorded(rec *events.Recorder) []map[string]any {
	if evs := rec.Events(); evs != nil {
		return evs
	}
	return []map[string]any{}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func badJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte("Bad JSON"))
}
