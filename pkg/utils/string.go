package utils

import "unicode/utf8"

// Truncate shortens s to at most maxLen bytes for log output, backing off to
// a rune boundary and appending "..." when anything was cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := max(maxLen, 0)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// TruncateBytes is Truncate for raw payloads.
func TruncateBytes(b []byte, maxLen int) string {
	if n := max(maxLen, 0) + utf8.UTFMax; len(b) > n {
		b = b[:n]
	}
	return Truncate(string(b), maxLen)
}
