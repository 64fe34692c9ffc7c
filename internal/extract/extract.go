// Package extract pulls structured protocol messages out of free-form
// assistant text.
package extract

import (
	"encoding/json"
	"regexp"
	"unicode/utf8"
)

var (
	fencePattern = regexp.MustCompile("```(?:json)?\\n([\\s\\S]*?)\\n```")
	bracePattern = regexp.MustCompile(`\{[\s\S]*\}`)
)

// Object returns the first JSON object found in text. Fenced code blocks
// (with an optional json tag) are tried in order; only when no fence exists
// does the outermost brace span get a chance. Arrays and scalars never match.
func Object(text string) (map[string]any, bool) {
	var candidates []string
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, m[1])
	}
	if len(candidates) == 0 {
		if m := bracePattern.FindString(text); m != "" {
			candidates = append(candidates, m)
		}
	}

	for _, c := range candidates {
		var obj map[string]any
		if err := json.Unmarshal([]byte(c), &obj); err == nil && obj != nil {
			return obj, true
		}
	}
	return nil, false
}

// Truncate caps s at limit bytes, backing up to a rune boundary, and marks
// the cut.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...<truncated>"
}
