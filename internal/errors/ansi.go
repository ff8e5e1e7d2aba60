package errors

import (
	"regexp"
	"unicode/utf8"
)

// ansiEscape matches terminal escape sequences that build tools (docker,
// bazel, cargo) write into the log: CSI, OSC terminated by BEL or ST,
// DCS/PM/APC strings, and single-character escapes.
var ansiEscape = regexp.MustCompile(
	`\x1b\[[0-9;:<=>?]*[ -/]*[@-~]` +
		`|\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)?` +
		`|\x1b[PX^_][^\x1b]*\x1b\\` +
		`|\x1b[@-_]` +
		`|\x1b.` +
		`|\x1b\[?$`,
)

// StripANSI removes escape sequences so log tails print cleanly in CI.
func StripANSI(s string) string {
	if s == "" {
		return s
	}
	return ansiEscape.ReplaceAllString(s, "")
}

// stripCarriage keeps only the text after the last carriage return, which is
// what a terminal would show for progress-bar lines.
func stripCarriage(s string) string {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\r' {
			return s[i+1:]
		}
	}
	return s
}

// clip cuts s to at most n bytes, backing off to a rune boundary.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
