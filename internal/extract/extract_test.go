package extract

import (
	"strings"
	"testing"
)

func TestObject(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantType string
		wantOK   bool
	}{
		{
			name:     "bare object",
			in:       `{"type":"final","content":"done"}`,
			wantType: "final",
			wantOK:   true,
		},
		{
			name:     "object inside prose",
			in:       "Sure, here you go: {\"type\":\"tool\",\"tool\":\"run_shell\"} as requested.",
			wantType: "tool",
			wantOK:   true,
		},
		{
			name:     "fenced json block",
			in:       "```json\n{\"type\":\"final\",\"content\":\"hi\"}\n```",
			wantType: "final",
			wantOK:   true,
		},
		{
			name:     "untagged fence",
			in:       "```\n{\"type\":\"tool\",\"id\":\"t1\"}\n```",
			wantType: "tool",
			wantOK:   true,
		},
		{
			name:     "fence wins over earlier braces",
			in:       "ignore {this} one\n```json\n{\"type\":\"final\",\"content\":\"x\"}\n```",
			wantType: "final",
			wantOK:   true,
		},
		{
			name:   "second fence parses",
			in:     "```\nnot json\n```\n```json\n{\"type\":\"final\",\"content\":\"x\"}\n```",
			wantOK: true, wantType: "final",
		},
		{
			name:   "array is not an object",
			in:     `[1, 2, 3]`,
			wantOK: false,
		},
		{
			name:   "null is not an object",
			in:     `null`,
			wantOK: false,
		},
		{
			name:   "no json at all",
			in:     "I could not decide what to do.",
			wantOK: false,
		},
		{
			name:   "broken braces",
			in:     "{\"type\": \"final\", ",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, ok := Object(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("Object(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got, _ := obj["type"].(string); got != tt.wantType {
				t.Errorf("type = %q, want %q", got, tt.wantType)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 100); got != "short" {
		t.Errorf("Truncate(short) = %q", got)
	}

	long := strings.Repeat("a", 50)
	got := Truncate(long, 10)
	if got != strings.Repeat("a", 10)+"...<truncated>" {
		t.Errorf("Truncate = %q", got)
	}

	// Never split a multi-byte rune.
	multi := strings.Repeat("é", 10) // 2 bytes each
	cut := Truncate(multi, 5)
	if !strings.HasSuffix(cut, "...<truncated>") {
		t.Fatalf("Truncate(multi) = %q, want marker", cut)
	}
	head := strings.TrimSuffix(cut, "...<truncated>")
	if head != strings.Repeat("é", 2) {
		t.Errorf("head = %q, want two runes", head)
	}
}
