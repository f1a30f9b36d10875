package model

// Status is the persisted lifecycle state of a bill.
type Status string

const (
	StatusExtracted          Status = "EXTRACTED"
	StatusValidating         Status = "VALIDATING"
	StatusValidated          Status = "VALIDATED"
	StatusValidationFailed   Status = "VALIDATION_FAILED"
	StatusAdjudicating       Status = "ADJUDICATING"
	StatusAdjudicated        Status = "ADJUDICATED"
	StatusAdjudicationFailed Status = "ADJUDICATION_FAILED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusExtracted,
	StatusValidating,
	StatusValidated,
	StatusValidationFailed,
	StatusAdjudicating,
	StatusAdjudicated,
	StatusAdjudicationFailed,
}

// IsTerminal reports whether no further stage may run for a bill in s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusValidationFailed, StatusAdjudicated, StatusAdjudicationFailed:
		return true
	}
	return false
}

// IsFailure reports whether s is one of the *_FAILED terminals.
func (s Status) IsFailure() bool {
	return s == StatusValidationFailed || s == StatusAdjudicationFailed
}

// Rank orders statuses along the happy path so a stage can tell whether a
// bill is already past it. Failure terminals rank after the stage they end.
func (s Status) Rank() int {
	switch s {
	case StatusExtracted:
		return 0
	case StatusValidating:
		return 1
	case StatusValidated, StatusValidationFailed:
		return 2
	case StatusAdjudicating:
		return 3
	case StatusAdjudicated, StatusAdjudicationFailed:
		return 4
	}
	return -1
}

// ParseStatus returns the Status named by s, or ok=false.
func ParseStatus(s string) (Status, bool) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}
