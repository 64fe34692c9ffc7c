// Package engine runs the deliberation loop: provider turns in, tool
// dispatches out, until the model produces a final answer or the step
// budget runs dry.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentd-dev/agentd/internal/approval"
	"github.com/agentd-dev/agentd/internal/audit"
	"github.com/agentd-dev/agentd/internal/config"
	"github.com/agentd-dev/agentd/internal/events"
	"github.com/agentd-dev/agentd/internal/extract"
	"github.com/agentd-dev/agentd/internal/metrics"
	"github.com/agentd-dev/agentd/internal/provider"
	"github.com/agentd-dev/agentd/internal/telemetry"
	"github.com/agentd-dev/agentd/internal/tool"
)

// toolResultLimit caps the serialized tool result fed back to the model.
const toolResultLimit = 5000

// errCancelled aborts the current run after RequestCancel. It never
// leaves the package; a cancelled run returns empty output and no error.
var errCancelled = errors.New("engine: run cancelled")

// ErrApprovalPending rejects a new deliberation while a deferred tool
// call awaits ResolveApproval.
var ErrApprovalPending = errors.New("engine: approval pending")

// Options carries the collaborators a Session reports to. Every field
// may be nil.
type Options struct {
	Audit   *audit.Logger
	Metrics *metrics.Metrics
	History *approval.History
	Log     *slog.Logger
}

// Session is one conversation with the model. A session is not safe for
// concurrent deliberations; callers serialize ChatOnce/ChatStream/
// ResolveApproval. RequestCancel and the pending-approval accessors may
// be called from other goroutines while a deliberation runs.
type Session struct {
	provider provider.Provider
	cfg      *config.Config
	tools    *tool.Registry
	env      tool.Env

	audit    *audit.Logger
	metrics  *metrics.Metrics
	history  *approval.History
	log      *slog.Logger
	tracer   trace.Tracer
	newToken func() string

	mu       sync.Mutex
	messages []provider.Message
	pending  *PendingApproval

	cancelled atomic.Bool
}

// New creates a session seeded with the protocol system prompt for the
// registry's tool set.
func New(p provider.Provider, cfg *config.Config, tools *tool.Registry, env tool.Env, opts Options) *Session {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		provider: p,
		cfg:      cfg,
		tools:    tools,
		env:      env,
		audit:    opts.Audit,
		metrics:  opts.Metrics,
		history:  opts.History,
		log:      log,
		tracer:   telemetry.Tracer("engine"),
		newToken: uuid.NewString,
	}
	s.messages = []provider.Message{{Role: provider.RoleSystem, Content: systemPrompt(tools.Schema())}}
	return s
}

// Run executes one task to completion.
func (s *Session) Run(ctx context.Context, task string, sink events.Sink) (string, error) {
	return s.ChatOnce(ctx, "Task: "+task, sink)
}

// ChatOnce runs the deliberation loop with blocking provider calls.
func (s *Session) ChatOnce(ctx context.Context, input string, sink events.Sink) (string, error) {
	return s.deliberate(ctx, input, sink, nil)
}

// ChatStream runs the deliberation loop with streamed provider calls,
// resetting the cancel flag first. Providers without streaming, and
// sessions configured with stream off, fall back to the blocking path
// with the same input.
func (s *Session) ChatStream(ctx context.Context, input string, sink events.Sink) (string, error) {
	s.cancelled.Store(false)
	streamer, ok := s.provider.(provider.Streamer)
	if !ok || !s.cfg.Stream {
		return s.deliberate(ctx, input, sink, nil)
	}
	return s.deliberate(ctx, input, sink, streamer)
}

// RequestCancel flags the in-flight streaming run to stop at its next
// checkpoint. The flag is monotone until the next ChatStream.
func (s *Session) RequestCancel() {
	s.cancelled.Store(true)
}

// Messages returns a copy of the conversation so far.
func (s *Session) Messages() []provider.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]provider.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// deliberate is the loop both entry points share. A nil streamer selects
// blocking provider calls.
func (s *Session) deliberate(ctx context.Context, input string, sink events.Sink, streamer provider.Streamer) (string, error) {
	if sink == nil {
		sink = events.NullSink{}
	}
	// A deferred tool call owns the session until it is resolved;
	// ResolveApproval clears it before the resume deliberation starts.
	if s.HasPendingApproval() {
		return "", ErrApprovalPending
	}
	if input != "" {
		s.appendMessage(provider.Message{Role: provider.RoleUser, Content: input})
	}

	ctx, span := s.tracer.Start(ctx, "engine.deliberate", trace.WithAttributes(
		attribute.String("provider", s.provider.Name()),
		attribute.String("model", s.cfg.Model),
		attribute.Bool("stream", streamer != nil),
	))
	defer span.End()

	used := 0
	defer func() {
		span.SetAttributes(attribute.Int("steps", used))
		s.metrics.ObserveSteps(used)
	}()

	for step := 1; step <= s.cfg.MaxSteps; step++ {
		if s.cancelled.Load() {
			return "", nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		used = step
		res, err := s.generate(ctx, sink, streamer)
		if err != nil {
			if errors.Is(err, errCancelled) {
				return "", nil
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// Keep the loop alive: the model sees what the endpoint
			// actually said and can react to it.
			s.log.Warn("provider request failed", "provider", s.provider.Name(), "error", err)
			res = provider.Result{Content: errorContent(err)}
		}

		s.appendMessage(provider.Message{Role: provider.RoleAssistant, Content: res.Content})
		s.audit.LLM("assistant", res.Content, res.Reasoning, res.Raw)
		sink.Reasoning(res.Reasoning)
		if res.Raw != nil {
			sink.Raw(res.Raw)
		}
		sink.AssistantRaw(res.Content)

		obj, ok := extract.Object(res.Content)
		if !ok {
			s.appendMessage(provider.Message{Role: provider.RoleUser, Content: promptRetryJSON})
			continue
		}

		switch stringField(obj, "type") {
		case "final":
			content := stringField(obj, "content")
			sink.Final(content)
			return content, nil

		case "tool":
			name := stringField(obj, "tool")
			id := stringField(obj, "id")
			if id == "" {
				id = fmt.Sprintf("t%d", step)
			}
			args, _ := obj["args"].(map[string]any)
			if args == nil {
				args = map[string]any{}
			}
			sink.ToolCall(name, id, args, stringField(obj, "note"))

			switch s.arbitrate(ctx, sink, name, id, args) {
			case verdictDeferred:
				return "", nil
			case verdictDenied:
				s.appendMessage(provider.Message{Role: provider.RoleUser, Content: deniedMessage(name)})
				continue
			}

			result := s.dispatch(ctx, name, args)
			sink.ToolResult(id, result)
			s.appendToolResult(id, result)

		default:
			s.appendMessage(provider.Message{Role: provider.RoleUser, Content: promptRetryType})
		}
	}
	return "", nil
}

// generate performs one provider turn, streamed when a streamer is set.
func (s *Session) generate(ctx context.Context, sink events.Sink, streamer provider.Streamer) (provider.Result, error) {
	if streamer == nil {
		start := time.Now()
		res, err := s.provider.Generate(ctx, s.request())
		s.metrics.ObserveProvider(s.provider.Name(), time.Since(start), err)
		return res, err
	}
	return s.streamTurn(ctx, sink, streamer)
}

// streamTurn consumes one streamed provider turn. The cancel flag is
// checked before the stream opens and before each event; a flagged run
// tears the stream down and reports errCancelled. Assistant deltas
// accumulate silently: the protocol JSON is not for display, only
// reasoning deltas reach the sink.
func (s *Session) streamTurn(ctx context.Context, sink events.Sink, streamer provider.Streamer) (provider.Result, error) {
	if s.cancelled.Load() {
		return provider.Result{}, errCancelled
	}

	sctx, stop := context.WithCancel(ctx)
	defer stop()

	start := time.Now()
	ch, err := streamer.GenerateStream(sctx, s.request())
	if err != nil {
		s.metrics.ObserveProvider(s.provider.Name(), time.Since(start), err)
		return provider.Result{}, err
	}

	var text, reason strings.Builder
	var final provider.Result
	for ev := range ch {
		if s.cancelled.Load() {
			stop()
			for range ch {
			}
			return provider.Result{}, errCancelled
		}
		if ev.Delta != "" {
			text.WriteString(ev.Delta)
		}
		if ev.ReasoningDelta != "" {
			reason.WriteString(ev.ReasoningDelta)
			sink.StreamReasoning(ev.ReasoningDelta)
		}
		if ev.Final != nil {
			final = *ev.Final
		}
	}
	s.metrics.ObserveProvider(s.provider.Name(), time.Since(start), ctx.Err())
	if err := ctx.Err(); err != nil {
		return provider.Result{}, err
	}

	// Decoders may leave consolidation to the consumer.
	if final.Content == "" {
		final.Content = text.String()
	}
	if final.Reasoning == "" {
		final.Reasoning = reason.String()
	}
	return final, nil
}

func (s *Session) request() provider.Request {
	req := provider.Request{
		Model:           s.cfg.Model,
		Messages:        s.Messages(),
		ReasoningEffort: s.cfg.ReasoningEffort,
	}
	// Auto leaves the flag nil so providers sniff the model name.
	switch s.cfg.Reasoning {
	case config.ReasoningOff:
		off := false
		req.Reasoning = &off
	case config.ReasoningOn:
		on := true
		req.Reasoning = &on
	}
	return req
}

// dispatch runs one tool call and records it.
func (s *Session) dispatch(ctx context.Context, name string, args map[string]any) map[string]any {
	ctx, span := s.tracer.Start(ctx, "engine.tool", trace.WithAttributes(
		attribute.String("tool", name),
	))
	defer span.End()

	start := time.Now()
	result := s.tools.Dispatch(ctx, name, args, s.env)
	_, failed := result["error"]
	s.metrics.ObserveTool(name, time.Since(start), failed)
	s.audit.Tool(name, args, result)
	return result
}

func (s *Session) appendMessage(msg provider.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// appendToolResult feeds a dispatch result back as a user message so
// every provider sees it regardless of native tool-call support.
func (s *Session) appendToolResult(id string, result map[string]any) {
	summary := extract.Truncate(compactJSON(result), toolResultLimit)
	s.appendMessage(provider.Message{
		Role:    provider.RoleUser,
		Content: "TOOL_RESULT[" + id + "]: " + summary,
	})
}

func deniedMessage(tool string) string {
	return "Tool " + tool + " was denied by user. Provide alternative or ask clarification."
}

// errorContent turns a failed provider call into assistant text. HTTP
// errors surface the endpoint's raw payload.
func errorContent(err error) string {
	var httpErr *provider.HTTPError
	if errors.As(err, &httpErr) && httpErr.Body != "" {
		return httpErr.Body
	}
	return err.Error()
}

func stringField(obj map[string]any, key string) string {
	v, ok := obj[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
