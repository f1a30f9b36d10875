// Package adjudicate applies a coverage policy to a validated bill.
//
// Adjudicate is pure: the same bill, stage record and policy always yield
// the same lines, totals and notes. Line items are processed strictly in
// bill order, which is the tie-break for both the deductible accumulator
// and per-procedure limits.
package adjudicate

import (
	"fmt"
	"strings"

	"github.com/gyeh/billadj/internal/model"
	"github.com/gyeh/billadj/internal/normalize"
)

// Adjudication is the outcome of applying a policy to every line of a bill.
type Adjudication struct {
	Lines  []model.AdjudicationLine
	Totals model.Totals
	Notes  []string

	// DeductibleApplied is the total deductible consumed by this bill.
	// DeductibleSteps[i] is the cumulative amount after line i.
	DeductibleApplied int64
	DeductibleSteps   []int64
}

// ReconciliationError reports split amounts that do not add up.
type ReconciliationError struct {
	Line    int // -1 for bill-level totals
	Billed  int64
	Patient int64
	Insurer int64
}

func (e *ReconciliationError) Error() string {
	where := "bill totals"
	if e.Line >= 0 {
		where = fmt.Sprintf("line %d", e.Line)
	}
	return fmt.Sprintf("%s do not reconcile: patient %d + insurance %d != billed %d",
		where, e.Patient, e.Insurer, e.Billed)
}

// Permanent marks reconciliation failures as not retryable.
func (e *ReconciliationError) Permanent() bool { return true }

// Adjudicate produces one AdjudicationLine per line item, in order.
// stage may be nil, in which case every line is low confidence and no
// procedure counts as justified.
func Adjudicate(b *model.Bill, stage *model.StageRecord, p *model.Policy) (*Adjudication, error) {
	var report *model.ValidationReport
	var just *model.JustificationResult
	if stage != nil {
		report, just = stage.Validation, stage.Justification
	}

	network := p.NetworkFor(b.ProviderID)
	remaining := max(p.DeductibleRemainingCents, 0)
	used := make(map[string]int)
	adj := &Adjudication{}
	notes := newNoteSet()

	if !stage.AllValid() {
		notes.add(invalidNote(report, just))
	}

	for i, li := range b.Items {
		code := normalize.Code(li.Code)
		line := model.AdjudicationLine{
			Line:         i + 1,
			Code:         code,
			Description:  li.Description,
			BilledCents:  li.BilledCents,
			CoverageType: model.NotCovered,
		}

		if reason := lowConfidence(code, report, just); reason != "" {
			line.LowConfidence = true
			notes.add(fmt.Sprintf("Line %d (%s): %s; adjudicated on the billed amount.", i+1, code, reason))
		}

		if denial := deny(p, network, code, li, used, just); denial != "" {
			line.PatientCents = li.BilledCents
			line.Explanation = denial
		} else {
			used[code] += li.Units()
			line.Covered = true
			line.CoverageType = network
			line.CoinsuranceBPS = p.CoinsuranceFor(network)

			copay := min(max(p.Copays[code], 0), li.BilledCents)
			line.CopayCents = copay

			ded := min(li.BilledCents-copay, remaining)
			remaining -= ded
			adj.DeductibleApplied += ded
			line.DeductibleApplies = ded > 0
			line.DeductibleCents = ded

			line.InsuranceCents = normalize.ApplyBasisPoints(li.BilledCents-copay-ded, 10000-line.CoinsuranceBPS)
			line.PatientCents = li.BilledCents - line.InsuranceCents
			line.Explanation = coveredExplanation(network, copay, ded, line.CoinsuranceBPS)
		}
		adj.DeductibleSteps = append(adj.DeductibleSteps, adj.DeductibleApplied)
		adj.Lines = append(adj.Lines, line)
	}

	adj.Totals = totals(adj.Lines)
	if b.TotalCents > 0 && b.TotalCents != adj.Totals.BilledCents {
		notes.add(fmt.Sprintf("Line items sum to %s but the bill total is %s; adjudication uses the line items.",
			normalize.FormatCents(adj.Totals.BilledCents), normalize.FormatCents(b.TotalCents)))
	}
	if remaining == 0 && p.DeductibleRemainingCents > 0 {
		notes.add("The remaining deductible was met on this bill.")
	}
	adj.Notes = notes.list

	if err := reconcile(adj, b.BilledTotal()); err != nil {
		return nil, err
	}
	return adj, nil
}

// deny returns the reason a line is not covered, or "" when it is.
// Rules apply in order; the first that matches wins. used holds the units
// already covered per code and is not modified.
func deny(p *model.Policy, network, code string, li model.LineItem, used map[string]int, just *model.JustificationResult) string {
	switch {
	case p.Excludes(code):
		return "excluded by policy"
	case !p.Covers(code):
		return "procedure is not a covered service under this policy"
	case network == model.OutOfNetwork && !p.OutOfNetworkBenefit:
		return "out-of-network provider and the policy has no out-of-network benefit"
	case network == model.NotCovered:
		return "provider is not covered under this policy"
	}

	if p.RequiresPriorAuth(code) && strings.TrimSpace(li.AuthorizationRef) == "" {
		return "prior authorization required but none on file"
	}

	if limit, ok := p.ProcedureLimits[code]; ok {
		switch {
		case used[code] >= limit:
			return fmt.Sprintf("coverage limit of %d exhausted", limit)
		case used[code]+li.Units() > limit:
			return fmt.Sprintf("%d units billed but only %d of the coverage limit of %d remain",
				li.Units(), limit-used[code], limit)
		}
	}

	if p.MedicalNecessityRequired && !just.IsJustified(code) {
		return "not justified by any diagnosis on the bill"
	}
	return ""
}

func lowConfidence(code string, report *model.ValidationReport, just *model.JustificationResult) string {
	cv, ok := report.VerdictFor(code)
	switch {
	case !ok:
		return "code was not validated"
	case cv.Verdict != model.VerdictMatch:
		return fmt.Sprintf("code verdict is %s", cv.Verdict)
	case just != nil && just.Indeterminate:
		return "justification could not be determined"
	case just != nil && !just.IsJustified(code):
		return "no supporting diagnosis"
	}
	return ""
}

func coveredExplanation(network string, copay, ded int64, bps int32) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Covered %s.", network)
	if copay > 0 {
		fmt.Fprintf(&b, " %s copay.", normalize.FormatCents(copay))
	}
	if ded > 0 {
		fmt.Fprintf(&b, " %s applied to the deductible.", normalize.FormatCents(ded))
	}
	fmt.Fprintf(&b, " Patient coinsurance %s.", normalize.FormatBasisPoints(bps))
	return b.String()
}

// invalidNote explains why a bill failed validation. The justification
// issue leads, followed by every other issue.
func invalidNote(report *model.ValidationReport, just *model.JustificationResult) string {
	var parts []string
	if just != nil && len(just.UnjustifiedCodes) > 0 {
		parts = append(parts, fmt.Sprintf("CPT codes not justified by the diagnoses on the bill: %s.",
			strings.Join(just.UnjustifiedCodes, ", ")))
	}
	var issues []string
	if report != nil {
		for _, is := range report.Issues {
			issues = append(issues, is.Detail)
		}
	}
	if just != nil {
		for _, is := range just.Issues {
			if is.Kind != model.IssueUnjustified {
				issues = append(issues, is.Detail)
			}
		}
	}
	if len(issues) > 0 {
		parts = append(parts, strings.Join(issues, "; "))
	}
	reason := strings.Join(parts, " ")
	if reason == "" {
		reason = "See validation details."
	}
	return "The bill is invalid because: " + reason
}

func totals(lines []model.AdjudicationLine) model.Totals {
	var t model.Totals
	for _, l := range lines {
		t.BilledCents += l.BilledCents
		t.PatientCents += l.PatientCents
		t.InsuranceCents += l.InsuranceCents
		if l.Covered {
			t.CoveredCents += l.BilledCents
			t.Breakdown.CopayCents += l.CopayCents
			t.Breakdown.DeductibleCents += l.DeductibleCents
			t.Breakdown.CoinsuranceCents += l.PatientCents - l.DeductibleCents - l.CopayCents
		} else {
			t.Breakdown.NotCoveredCents += l.PatientCents
		}
	}
	return t
}

func reconcile(adj *Adjudication, billed int64) error {
	for _, l := range adj.Lines {
		if l.PatientCents+l.InsuranceCents != l.BilledCents || l.PatientCents < 0 || l.InsuranceCents < 0 {
			return &ReconciliationError{Line: l.Line, Billed: l.BilledCents, Patient: l.PatientCents, Insurer: l.InsuranceCents}
		}
	}
	t := adj.Totals
	bd := t.Breakdown
	if t.PatientCents+t.InsuranceCents != billed ||
		bd.CopayCents+bd.DeductibleCents+bd.CoinsuranceCents+bd.NotCoveredCents != t.PatientCents {
		return &ReconciliationError{Line: -1, Billed: billed, Patient: t.PatientCents, Insurer: t.InsuranceCents}
	}
	return nil
}

// noteSet keeps notes in insertion order without duplicates.
type noteSet struct {
	seen map[string]bool
	list []string
}

func newNoteSet() *noteSet { return &noteSet{seen: make(map[string]bool)} }

func (n *noteSet) add(s string) {
	if !n.seen[s] {
		n.seen[s] = true
		n.list = append(n.list, s)
	}
}
