package model

// Verdict is the outcome of checking one code.
type Verdict string

const (
	VerdictMatch         Verdict = "MATCH"
	VerdictMismatch      Verdict = "MISMATCH"
	VerdictNotFound      Verdict = "NOT_FOUND"
	VerdictIndeterminate Verdict = "INDETERMINATE"
)

// IssueKind classifies an open issue on a bill.
type IssueKind string

const (
	IssueNotFound         IssueKind = "NOT_FOUND"
	IssueMismatch         IssueKind = "MISMATCH"
	IssueIndeterminate    IssueKind = "INDETERMINATE"
	IssueNoDiagnosisBasis IssueKind = "NO_DIAGNOSIS_BASIS"
	IssueUnjustified      IssueKind = "UNJUSTIFIED"
	IssueNoProcedures     IssueKind = "NO_PROCEDURES"
)

// Issue is a domain outcome worth surfacing. Issues are results, not errors.
type Issue struct {
	Code   string    `json:"code,omitempty"`
	Kind   IssueKind `json:"kind"`
	Detail string    `json:"detail"`
}

// CodeVerdict is the validation outcome for one code.
type CodeVerdict struct {
	Code                 string  `json:"code"`
	Label                string  `json:"label"`
	Verdict              Verdict `json:"verdict"`
	ExtractedDescription string  `json:"extracted_description,omitempty"`
	ReferenceDescription string  `json:"reference_description,omitempty"`
	Detail               string  `json:"detail,omitempty"`
}

// ValidationReport aggregates per-code verdicts for a bill.
type ValidationReport struct {
	TableID  string        `json:"table_id"`
	Codes    []CodeVerdict `json:"codes"`
	Issues   []Issue       `json:"issues"`
	AllValid bool          `json:"all_valid"`
}

// VerdictFor returns the verdict recorded for code, or ok=false.
func (r *ValidationReport) VerdictFor(code string) (CodeVerdict, bool) {
	if r == nil {
		return CodeVerdict{}, false
	}
	for _, cv := range r.Codes {
		if cv.Code == code {
			return cv, true
		}
	}
	return CodeVerdict{}, false
}

// ProcedureJustification records whether one procedure is supported.
type ProcedureJustification struct {
	Code                string   `json:"code"`
	Justified           bool     `json:"justified"`
	SupportingDiagnoses []string `json:"supporting_diagnoses,omitempty"`
	Rationale           string   `json:"rationale"`
}

// JustificationResult is the per-bill justification outcome.
// UnjustifiedCodes is the ordered cpt_icd_justification_issue list.
type JustificationResult struct {
	Procedures       []ProcedureJustification `json:"procedures"`
	UnjustifiedCodes []string                 `json:"cpt_icd_justification_issue"`
	Indeterminate    bool                     `json:"indeterminate"`
	Issues           []Issue                  `json:"issues"`
}

// IsJustified reports whether code was attributed at least one diagnosis.
func (j *JustificationResult) IsJustified(code string) bool {
	if j == nil {
		return false
	}
	for _, p := range j.Procedures {
		if p.Code == code {
			return p.Justified
		}
	}
	return false
}

// StageRecord is the cached output of the validation stage.
type StageRecord struct {
	Validation    *ValidationReport    `json:"validation"`
	Justification *JustificationResult `json:"justification"`
}

// AllValid is true iff every code matched and no procedure is left
// unjustified or unresolved.
func (s *StageRecord) AllValid() bool {
	if s == nil || s.Validation == nil || s.Justification == nil {
		return false
	}
	return s.Validation.AllValid &&
		!s.Justification.Indeterminate &&
		len(s.Justification.UnjustifiedCodes) == 0
}
