package normalize

import (
	"regexp"
	"strings"
)

var (
	multiSpace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
)

// Description lowercases, drops punctuation, collapses whitespace, and trims
// the input so two renderings of the same text compare equal.
func Description(s string) string {
	s = strings.ToLower(s)
	s = punctuation.ReplaceAllString(s, " ")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Name lowercases, collapses whitespace, and trims the input.
func Name(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return multiSpace.ReplaceAllString(s, " ")
}
