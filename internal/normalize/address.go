package normalize

import "regexp"

var zipRe = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)

// ZipFromAddress returns the five-digit US ZIP code found in addr, or "".
func ZipFromAddress(addr string) string {
	m := zipRe.FindStringSubmatch(addr)
	if m == nil {
		return ""
	}
	return m[1]
}
