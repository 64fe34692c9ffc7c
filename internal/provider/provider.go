// Package provider contains the LLM backends the agent can talk to.
// All of them speak plain HTTP with JSON payloads; no vendor SDKs are
// involved, so the wire behavior stays inspectable and testable with
// a stub server.
package provider

import (
	"context"
	"fmt"
)

// Role identifies the author of a conversation message.
type Role string

// Role constants for conversation messages.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in the conversation sent to a provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request carries one completion request. Reasoning is tri-state: nil
// lets the provider sniff the model name for reasoning hints, a
// non-nil value forces the trace on or off.
type Request struct {
	Model           string
	Messages        []Message
	Reasoning       *bool
	ReasoningEffort string
}

// Result is the consolidated output of one completion. Raw holds the
// provider's decoded payload (the last stream chunk for streamed
// completions) for logging and debugging.
type Result struct {
	Content   string
	Reasoning string
	Raw       any
}

// StreamEvent is one item of a streamed completion. Exactly one event
// carries Final and it is the last one; any number of delta events
// precede it.
type StreamEvent struct {
	Delta          string
	ReasoningDelta string
	Final          *Result
}

// Provider generates assistant turns from a conversation.
type Provider interface {
	// Name returns the provider identifier used in configuration.
	Name() string

	// Generate sends the conversation and returns the full response.
	Generate(ctx context.Context, req Request) (Result, error)
}

// Streamer is an optional interface for providers that support
// incremental delivery. Initial connection errors are returned
// directly. Mid-stream transport errors end the stream early; the
// final event still carries whatever text accumulated before the
// drop, so consumers always observe exactly one final on a started
// stream unless the context is cancelled.
type Streamer interface {
	GenerateStream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// HTTPError is returned when a provider endpoint answers with a
// non-200 status. Body holds the raw response payload so callers can
// surface what the server actually said.
type HTTPError struct {
	Provider string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.Status, e.Body)
}
