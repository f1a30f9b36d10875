package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// stripFence removes a surrounding markdown code fence, which chat models
// add even when told not to.
func stripFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseVerdicts decodes a compare response: a JSON array whose elements
// are strings. An element whose first word is YES is true, NO is false,
// and anything else ("NOT SURE", "NEUTRAL") is nil. The caller checks the
// count against the request.
func ParseVerdicts(text string) ([]*bool, error) {
	raw := stripFence(text)
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elems); err != nil {
		return nil, &ShapeError{Kind: "compare", Reason: "not a JSON array", Raw: raw}
	}
	out := make([]*bool, len(elems))
	for i, e := range elems {
		var s string
		if err := json.Unmarshal(e, &s); err != nil {
			return nil, &ShapeError{Kind: "compare", Reason: fmt.Sprintf("element %d is not a string", i), Raw: raw}
		}
		switch firstWord(s) {
		case "YES":
			out[i] = boolPtr(true)
		case "NO":
			out[i] = boolPtr(false)
		}
	}
	return out, nil
}

// ParseAttribution decodes a justify response: a JSON object mapping
// procedure codes to arrays of diagnosis code strings.
func ParseAttribution(text string) (map[string][]string, error) {
	raw := stripFence(text)
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return nil, &ShapeError{Kind: "justify", Reason: "not a JSON object", Raw: raw}
	}
	out := make(map[string][]string, len(obj))
	for code, v := range obj {
		var diags []string
		if err := json.Unmarshal(v, &diags); err != nil {
			return nil, &ShapeError{Kind: "justify", Reason: fmt.Sprintf("value for %q is not an array of strings", code), Raw: raw}
		}
		out[strings.TrimSpace(code)] = diags
	}
	return out, nil
}

// firstWord returns the leading run of letters in s, upper-cased.
func firstWord(s string) string {
	s = strings.TrimSpace(s)
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	if end >= 0 {
		s = s[:end]
	}
	return strings.ToUpper(s)
}

func boolPtr(b bool) *bool { return &b }
