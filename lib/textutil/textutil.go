package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// CleanText trims a string and collapses inner whitespace runs into a
// single space, dropping non-printable runes along the way. Text pulled
// out of rendered markup tends to carry nbsp padding and stray newlines.
func CleanText(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c == ' ' {
			b.WriteRune(' ')
			continue
		}
		if unicode.IsPrint(c) {
			b.WriteRune(c)
		}
	}
	out := strings.Trim(b.String(), " \t\n")
	return whitespaceRegex.ReplaceAllString(out, " ")
}

// NormalizeHeader lowercases a column header and strips everything except
// letters and digits, so "C.A. 1" and "CA1" compare equal.
func NormalizeHeader(name string) string {
	name = strings.ToLower(name)
	var b strings.Builder
	for _, c := range name {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// MatchLabel reports whether a raw label cell matches any of the given
// keywords. The label is normalized the same way column headers are, so
// "Reg. No.:" matches the keyword "regno".
func MatchLabel(label string, keywords []string) bool {
	label = NormalizeHeader(label)
	for _, k := range keywords {
		if strings.Contains(label, k) {
			return true
		}
	}
	return false
}

var keyUnsafe = regexp.MustCompile(`[^a-z0-9_]+`)

// SanitizeKey turns arbitrary header text into a stable snake_case map key.
func SanitizeKey(s string) string {
	s = strings.ToLower(strings.Trim(s, " \t\n"))
	s = whitespaceRegex.ReplaceAllString(s, "_")
	s = keyUnsafe.ReplaceAllString(s, "")
	return strings.Trim(s, "_")
}
