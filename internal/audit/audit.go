// Package audit writes the append-only JSONL logs that record every
// model exchange and tool dispatch. Event shapes are stable: external
// tooling parses these files.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger appends events to <dir>/llm.jsonl and <dir>/tool.jsonl.
// Writes are best-effort: logging must never take the agent down.
type Logger struct {
	dir      string
	redactor *Redactor
	now      func() time.Time
	mu       sync.Mutex
}

// Config configures a Logger.
type Config struct {
	// Dir is the log directory, created on first write.
	Dir string

	// Redactor, if non-nil, is applied to each serialized line before
	// it hits disk.
	Redactor *Redactor

	// Now overrides time.Now for testing.
	Now func() time.Time
}

// New creates a Logger.
func New(cfg Config) *Logger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Logger{dir: cfg.Dir, redactor: cfg.Redactor, now: now}
}

type llmEvent struct {
	TS        string  `json:"ts"`
	Direction string  `json:"direction"`
	Text      string  `json:"text"`
	Reasoning *string `json:"reasoning"`
	Raw       any     `json:"raw"`
}

type toolEvent struct {
	TS     string         `json:"ts"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
	Result map[string]any `json:"result"`
}

// LLM records one model exchange. An empty reasoning is written as
// null to keep the line shape stable.
func (l *Logger) LLM(direction, text, reasoning string, raw any) {
	if l == nil {
		return
	}
	ev := llmEvent{
		TS:        l.timestamp(),
		Direction: direction,
		Text:      text,
		Raw:       raw,
	}
	if reasoning != "" {
		ev.Reasoning = &reasoning
	}
	l.append("llm", ev)
}

// Tool records one tool dispatch with its full result.
func (l *Logger) Tool(tool string, args, result map[string]any) {
	if l == nil {
		return
	}
	l.append("tool", toolEvent{
		TS:     l.timestamp(),
		Tool:   tool,
		Args:   args,
		Result: result,
	})
}

func (l *Logger) timestamp() string {
	return l.now().UTC().Format(time.RFC3339Nano)
}

// append serializes the event, redacts the whole line, and appends it.
// Errors are dropped on the floor on purpose.
func (l *Logger) append(name string, event any) {
	if l.dir == "" {
		return
	}
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	if l.redactor != nil {
		line = []byte(l.redactor.Redact(string(line)))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(filepath.Join(l.dir, name+".jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(append(line, '\n'))
}
