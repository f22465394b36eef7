// Package logutil prepares untrusted text for the log.
//
// Appliance output and tunnel names come from the device, not from this
// service, so they pass through SanitizeForLog before being logged to keep a
// hostile or garbled response from forging log lines.
package logutil

import (
	"strings"
	"unicode/utf8"
)

// SanitizeForLog replaces newlines and tabs with spaces and drops other
// control characters.
func SanitizeForLog(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r < 32 || r == 127:
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Truncate shortens s to at most limit bytes, cutting on a rune boundary and
// appending "..." when anything was removed.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
