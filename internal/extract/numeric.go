package extract

import (
	"strconv"
	"strings"
)

// ParseNumber coerces messy cell text ("12.5 pts", "78%") into a number.
// Empty or unparsable values yield nil, never zero: absence and zero are
// different facts and the distinction survives until persistence.
func ParseNumber(s string) *float64 {
	var b strings.Builder
	for _, c := range s {
		if (c >= '0' && c <= '9') || c == '.' || c == '-' {
			b.WriteRune(c)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}
