package engine

import (
	"context"

	"github.com/agentd-dev/agentd/internal/approval"
	"github.com/agentd-dev/agentd/internal/events"
	"github.com/agentd-dev/agentd/internal/provider"
	"github.com/agentd-dev/agentd/internal/risk"
)

// verdict is the arbiter's answer for one tool call.
type verdict int

const (
	verdictRun verdict = iota
	verdictDenied
	verdictDeferred
)

// PendingApproval is a deferred tool call waiting for ResolveApproval.
type PendingApproval struct {
	Token  string
	Tool   string
	ToolID string
	Args   map[string]any
}

// arbitrate decides whether a tool call runs now. Calls the policy does
// not gate run immediately; gated calls go to the sink, which approves,
// denies, or defers with the issued token.
func (s *Session) arbitrate(ctx context.Context, sink events.Sink, name, id string, args map[string]any) verdict {
	assessment := risk.Assess(s.cfg.Approval, name, args)
	if !assessment.NeedApproval {
		s.recordDecision(ctx, name, id, args, approval.OutcomeAuto, true, assessment.Reason)
		return verdictRun
	}

	token := s.newToken()
	decision := sink.ApprovalRequired(events.ApprovalRequest{
		Tool:   name,
		ID:     id,
		Reason: assessment.Reason,
		Args:   args,
		Token:  token,
	})
	switch decision {
	case events.DecisionApprove:
		s.recordDecision(ctx, name, id, args, approval.OutcomeApproved, true, assessment.Reason)
		return verdictRun
	case events.DecisionDefer:
		s.setPending(&PendingApproval{Token: token, Tool: name, ToolID: id, Args: args})
		s.recordDecision(ctx, name, id, args, approval.OutcomeDeferred, false, assessment.Reason)
		return verdictDeferred
	default:
		s.recordDecision(ctx, name, id, args, approval.OutcomeDenied, false, assessment.Reason)
		return verdictDenied
	}
}

// HasPendingApproval reports whether a deferred tool call is waiting.
func (s *Session) HasPendingApproval() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// PendingInfo describes the pending approval for API responses, nil
// when there is none.
func (s *Session) PendingInfo() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	return map[string]any{
		"token":   s.pending.Token,
		"tool":    s.pending.Tool,
		"tool_id": s.pending.ToolID,
		"args":    s.pending.Args,
	}
}

// ResolveApproval consumes the pending approval matching token. On
// approve the deferred tool runs and its result is fed back into the
// conversation; on deny the model is told to find another way. A stale
// or unknown token leaves any pending approval untouched.
func (s *Session) ResolveApproval(ctx context.Context, token string, approve bool, sink events.Sink) map[string]any {
	if sink == nil {
		sink = events.NullSink{}
	}
	pending := s.takePending(token)
	if pending == nil {
		return map[string]any{"error": "no matching pending approval"}
	}

	s.recordDecision(ctx, pending.Tool, pending.ToolID, pending.Args, approval.OutcomeResolved, approve, "resolved by token")
	if !approve {
		s.appendMessage(provider.Message{Role: provider.RoleUser, Content: deniedMessage(pending.Tool)})
		return map[string]any{"approved": false}
	}

	result := s.dispatch(ctx, pending.Tool, pending.Args)
	sink.ToolResult(pending.ToolID, result)
	s.appendToolResult(pending.ToolID, result)
	return map[string]any{"approved": true, "result": result}
}

func (s *Session) setPending(p *PendingApproval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = p
}

// takePending atomically claims the pending approval when the token
// matches.
func (s *Session) takePending(token string) *PendingApproval {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || s.pending.Token != token {
		return nil
	}
	p := s.pending
	s.pending = nil
	return p
}

// recordDecision writes one arbiter outcome to the history and the
// outcome counter. Best-effort: a failed insert only logs.
func (s *Session) recordDecision(ctx context.Context, tool, id string, args map[string]any, outcome string, approved bool, reason string) {
	s.metrics.CountApproval(outcome)
	if s.history == nil {
		return
	}
	err := s.history.Record(ctx, approval.Record{
		Tool:     tool,
		ToolID:   id,
		Args:     args,
		Outcome:  outcome,
		Approved: approved,
		Reason:   reason,
		Policy:   s.cfg.Approval,
	})
	if err != nil {
		s.log.Warn("approval history write failed", "tool", tool, "error", err)
	}
}
