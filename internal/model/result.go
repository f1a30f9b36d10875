package model

import "time"

// AdjudicationLine is the coverage determination for one line item.
// PatientCents + InsuranceCents always equals BilledCents.
type AdjudicationLine struct {
	Line              int    `json:"line"`
	Code              string `json:"procedure"`
	Description       string `json:"description"`
	BilledCents       int64  `json:"billed_cents"`
	Covered           bool   `json:"covered"`
	CoverageType      string `json:"coverage_type"`
	DeductibleApplies bool   `json:"deductible_applies"`
	DeductibleCents   int64  `json:"deductible_cents"`
	CopayCents        int64  `json:"copay_cents"`
	CoinsuranceBPS    int32  `json:"coinsurance_bps"`
	PatientCents      int64  `json:"patient_responsibility_cents"`
	InsuranceCents    int64  `json:"insurance_pays_cents"`
	LowConfidence     bool   `json:"low_confidence"`
	Explanation       string `json:"explanation"`
}

// Breakdown splits the patient's share by cause.
type Breakdown struct {
	CopayCents       int64 `json:"copay_cents"`
	DeductibleCents  int64 `json:"deductible_cents"`
	CoinsuranceCents int64 `json:"coinsurance_cents"`
	NotCoveredCents  int64 `json:"not_covered_cents"`
}

// Totals are the bill-level sums over all adjudicated lines.
type Totals struct {
	BilledCents    int64     `json:"total_billed_cents"`
	CoveredCents   int64     `json:"total_covered_cents"`
	PatientCents   int64     `json:"total_patient_owes_cents"`
	InsuranceCents int64     `json:"total_insurance_pays_cents"`
	Breakdown      Breakdown `json:"breakdown"`
}

// Result is the terminal record of a bill. It is written once per job.
type Result struct {
	JobID         string               `json:"job_id"`
	TableID       string               `json:"table_id"`
	Status        Status               `json:"status"`
	PolicyID      string               `json:"policy_id,omitempty"`
	AllValid      bool                 `json:"all_valid"`
	Validation    *ValidationReport    `json:"validation,omitempty"`
	Justification *JustificationResult `json:"justification,omitempty"`
	Lines         []AdjudicationLine   `json:"coverage_analysis,omitempty"`
	Totals        *Totals              `json:"totals,omitempty"`
	Notes         []string             `json:"notes,omitempty"`
	FailureReason string               `json:"failure_reason,omitempty"`
	CompletedAt   time.Time            `json:"completed_at"`
}
