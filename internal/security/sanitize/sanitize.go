// Package sanitize applies the deterministic text-cleaning transform every
// request body and query parameter passes through before business logic sees
// it. Pattern detection runs first on the raw input so audit logs capture the
// original payload; downstream code only ever sees sanitized values.
package sanitize

import "strings"

// DefaultMaxLength bounds sanitized strings unless the caller overrides it.
const DefaultMaxLength = 1000

var dangerous = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "", "&", "")

// String truncates s to maxLen runes, strips the characters <>"'&, collapses
// whitespace runs to a single space, and trims the ends. Idempotent:
// String(String(s, n), n) == String(s, n).
func String(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	runes := []rune(s)
	if len(runes) > maxLen {
		s = string(runes[:maxLen])
	}
	s = dangerous.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return s
}

// Map recursively sanitizes every string value in a keyed structure,
// preserving keys and passing non-string values through unchanged. Nested maps
// are walked depth-first. The input map is not mutated.
func Map(m map[string]any, maxLen int) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			out[k] = String(val, maxLen)
		case map[string]any:
			out[k] = Map(val, maxLen)
		default:
			out[k] = v
		}
	}
	return out
}
