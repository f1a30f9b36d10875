// Package oracle defines the classification oracle the validation stage
// consults for semantic judgments, and an OpenAI-backed implementation.
package oracle

import (
	"context"
	"fmt"
)

// Pair is one description comparison: the text extracted from the bill
// against the reference table's canonical text.
type Pair struct {
	Extracted string
	Reference string
}

// Described is a code with the description the oracle should reason about.
type Described struct {
	Code        string
	Description string
}

// Oracle answers semantic questions about billing codes.
//
// CompareBatch returns one judgment per pair, in request order; a nil
// element means the oracle gave an answer it could not commit to.
// Justify returns, for each procedure code, the diagnosis codes that
// clinically support it.
type Oracle interface {
	CompareBatch(ctx context.Context, label string, pairs []Pair) ([]*bool, error)
	Justify(ctx context.Context, procedures, diagnoses []Described) (map[string][]string, error)
}

// ShapeError reports an oracle response that does not match the expected
// shape. It is never retried.
type ShapeError struct {
	Kind   string
	Reason string
	Raw    string
}

func (e *ShapeError) Error() string {
	raw := e.Raw
	if len(raw) > 120 {
		raw = raw[:120] + "..."
	}
	return fmt.Sprintf("malformed %s response: %s (raw=%q)", e.Kind, e.Reason, raw)
}

// Permanent marks shape errors as not retryable.
func (e *ShapeError) Permanent() bool { return true }
