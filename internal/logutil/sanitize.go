// Package logutil cleans client-supplied strings (remote paths, file
// names, error details) before they reach a log line or audit record.
package logutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxFieldLen caps a sanitized value. Longer values are cut and marked.
const MaxFieldLen = 512

// SanitizeForLog replaces line breaks and tabs with spaces and drops other
// control characters, so a remote path cannot forge extra log entries.
func SanitizeForLog(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n', r == '\r', r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	return truncate(s, MaxFieldLen)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}
