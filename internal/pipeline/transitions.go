package pipeline

import (
	"errors"
	"fmt"

	"github.com/gyeh/billadj/internal/model"
)

// ErrInvalidTransition is returned for a status change the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrResultGone is returned for a terminal bill whose result was consumed
// or expired. The terminal record is written once and never rebuilt.
var ErrResultGone = errors.New("result consumed or expired")

// validTransitions lists, for each non-terminal status, the statuses a bill
// may move to next.
var validTransitions = map[model.Status][]model.Status{
	model.StatusExtracted:    {model.StatusValidating, model.StatusValidationFailed},
	model.StatusValidating:   {model.StatusValidated, model.StatusValidationFailed},
	model.StatusValidated:    {model.StatusAdjudicating, model.StatusAdjudicationFailed},
	model.StatusAdjudicating: {model.StatusAdjudicated, model.StatusAdjudicationFailed},
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to model.Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to model.Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// PipelineError wraps an error with the phase where it occurred.
type PipelineError struct {
	Phase string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
