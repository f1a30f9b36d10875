package normalize

import (
	"regexp"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)

// NoCodePrefix marks line items whose code could not be extracted.
const NoCodePrefix = "NO_CODE_"

// Code trims whitespace, uppercases, and strips non-alphanumeric characters.
// Placeholder codes pass through unchanged.
func Code(s string) string {
	s = strings.TrimSpace(s)
	if IsPlaceholderCode(s) {
		return s
	}
	return nonAlphanumeric.ReplaceAllString(strings.ToUpper(s), "")
}

// IsPlaceholderCode reports whether code was synthesized for an item with no code.
func IsPlaceholderCode(code string) bool {
	return strings.HasPrefix(code, NoCodePrefix)
}
