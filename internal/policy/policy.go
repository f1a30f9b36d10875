// Package policy resolves a patient's active coverage policy.
package policy

import (
	"context"
	"errors"

	"github.com/gyeh/billadj/internal/model"
)

// ErrNotFound is returned when no active policy exists for a patient.
var ErrNotFound = errors.New("policy not found")

// WildcardPatient keys a policy that applies to any patient without one of their own.
const WildcardPatient = "*"

// Store looks up a patient's active policy.
type Store interface {
	Active(ctx context.Context, patientID, providerID string) (*model.Policy, error)
}

// NotFoundError wraps ErrNotFound with the patient it was looked up for.
type NotFoundError struct {
	PatientID string
}

func (e *NotFoundError) Error() string {
	return "no active policy for patient " + e.PatientID
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Permanent marks a missing policy as not retryable.
func (e *NotFoundError) Permanent() bool { return true }
