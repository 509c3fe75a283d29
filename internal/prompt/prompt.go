// Package prompt has the small text helpers every prompt builder shares.
package prompt

import (
	"strings"
)

// Truncation markers appended when text is cut to a budget.
const (
	TruncatedMarker         = "... [truncated]"
	DocumentTruncatedMarker = "... [document truncated due to length]"
)

// Truncate cuts text to limit bytes and appends marker when it was cut.
// A non-positive limit disables truncation. The cut never splits a UTF-8
// sequence.
func Truncate(text string, limit int, marker string) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8Start(text[cut]) {
		cut--
	}
	return text[:cut] + marker
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }

// Blocks joins the non-empty blocks with a blank line between them.
func Blocks(blocks ...string) string {
	kept := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b = strings.TrimSpace(b); b != "" {
			kept = append(kept, b)
		}
	}
	return strings.Join(kept, "\n\n")
}

// If returns text when cond holds and "" otherwise.
func If(cond bool, text string) string {
	if cond {
		return text
	}
	return ""
}

// Labeled returns "LABEL: value", or "" for an empty value.
func Labeled(label, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return label + ": " + value
}
