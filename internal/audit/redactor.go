package audit

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// Redactor replaces secret values in strings with a placeholder. It
// combines regex matching for well-known API key formats with literal
// matching for credentials loaded at runtime. Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor creates a Redactor pre-loaded with patterns for common
// API key formats.
func NewRedactor() *Redactor {
	return &Redactor{patterns: defaultPatterns()}
}

// AddPattern adds a compiled regex pattern.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral adds a literal secret value to redact on sight. Empty
// strings are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Redact replaces all known secret patterns and literal values in s.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	return s
}

func defaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Anthropic: sk-ant-...
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-]{20,}`),
		// OpenRouter: sk-or-...
		regexp.MustCompile(`sk-or-[a-zA-Z0-9\-]{20,}`),
		// OpenAI: sk-...
		regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
		// GitHub tokens
		regexp.MustCompile(`(ghp_|gho_|ghs_|github_pat_)[a-zA-Z0-9_]{20,}`),
		// AWS access key id
		regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
	}
}
