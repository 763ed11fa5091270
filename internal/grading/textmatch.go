package grading

import "strings"

// normalize trims surrounding whitespace and lowercases. Inner spacing and
// punctuation are significant.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = normalize(s)
	}
	return out
}
