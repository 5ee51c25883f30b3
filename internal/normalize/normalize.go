// Package normalize produces the canonical form of free-text transaction
// memos. Numeric fragments (account numbers, reference codes) are noise for
// pattern matching and are discarded before tokenization.
package normalize

import (
	"strings"
	"unicode"
)

// Memo strips digits, collapses every non-alphanumeric run to a single
// space, collapses redundant whitespace and upper-cases the result.
// Absent input yields "". Deterministic and idempotent.
func Memo(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true // swallow leading separators
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			// Dropped entirely, not replaced by a space: "CTA123456" and
			// "CTA" must normalize identically.
		case unicode.IsLetter(r) || r == '_':
			b.WriteRune(unicode.ToUpper(r))
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimSpace(b.String())
}

// Tokens splits a normalized memo on whitespace.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}
