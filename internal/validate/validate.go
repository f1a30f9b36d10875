// Package validate checks every code on a bill against the reference tables
// and asks the oracle whether the extracted descriptions agree with them.
package validate

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gyeh/billadj/internal/model"
	"github.com/gyeh/billadj/internal/normalize"
	"github.com/gyeh/billadj/internal/oracle"
	"github.com/gyeh/billadj/internal/refdata"
	"github.com/gyeh/billadj/internal/retry"
)

// DefaultChunkSize caps the pairs sent in one oracle comparison.
const DefaultChunkSize = 50

// Validator produces a ValidationReport for a bill.
type Validator struct {
	Refs      refdata.Store
	Oracle    oracle.Oracle
	Retry     retry.Config
	ChunkSize int
	Log       zerolog.Logger
}

// entry is one distinct code awaiting a verdict.
type entry struct {
	label     string
	code      string
	extracted string
	reference string
	verdict   model.Verdict
	detail    string
}

// Validate looks up each distinct code, compares descriptions in batched
// oracle calls and returns the per-code verdicts. Transient failures that
// outlast the retry budget degrade to INDETERMINATE verdicts; only a
// permanent reference store failure or cancellation is returned as an error.
func (v *Validator) Validate(ctx context.Context, b *model.Bill) (*model.ValidationReport, error) {
	log := v.Log.With().Str("table_id", b.TableID).Logger()
	entries := collect(b)

	for _, e := range entries {
		if err := v.lookup(ctx, e); err != nil {
			return nil, err
		}
	}

	if err := v.compare(ctx, log, entries); err != nil {
		return nil, err
	}

	report := &model.ValidationReport{TableID: b.TableID, AllValid: len(entries) > 0}
	procedures := 0
	for _, e := range entries {
		if e.label == model.LabelProcedure {
			procedures++
		}
		report.Codes = append(report.Codes, model.CodeVerdict{
			Code:                 e.code,
			Label:                e.label,
			Verdict:              e.verdict,
			ExtractedDescription: e.extracted,
			ReferenceDescription: e.reference,
			Detail:               e.detail,
		})
		if e.verdict != model.VerdictMatch {
			report.AllValid = false
			report.Issues = append(report.Issues, issueFor(e))
		}
	}
	if procedures == 0 {
		report.AllValid = false
		report.Issues = append(report.Issues, model.Issue{
			Kind:   model.IssueNoProcedures,
			Detail: "No CPT codes found.",
		})
	}

	log.Debug().
		Int("codes", len(entries)).
		Int("issues", len(report.Issues)).
		Bool("all_valid", report.AllValid).
		Msg("validation complete")
	return report, nil
}

// collect returns procedures first, then diagnoses, deduplicated per label
// with the first occurrence's description.
func collect(b *model.Bill) []*entry {
	var out []*entry
	seen := make(map[string]bool)
	add := func(label, code, desc string) {
		code = normalize.Code(code)
		if code == "" || seen[label+"|"+code] {
			return
		}
		seen[label+"|"+code] = true
		out = append(out, &entry{label: label, code: code, extracted: desc})
	}
	for _, li := range b.Items {
		add(model.LabelProcedure, li.Code, li.Description)
	}
	for _, d := range b.Diagnoses {
		add(model.LabelDiagnosis, d.Code, d.Description)
	}
	return out
}

type lookupResult struct {
	rc    model.ReferenceCode
	found bool
}

func (v *Validator) lookup(ctx context.Context, e *entry) error {
	if normalize.IsPlaceholderCode(e.code) {
		e.verdict = model.VerdictNotFound
		return nil
	}
	res, err := retry.Do(ctx, v.Retry, "refdata.lookup", func(ctx context.Context) (lookupResult, error) {
		rc, found, err := v.Refs.Lookup(ctx, e.label, e.code)
		return lookupResult{rc, found}, err
	})
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, retry.ErrExhausted):
		e.verdict = model.VerdictIndeterminate
		e.detail = "reference lookup unavailable"
		return nil
	default:
		return fmt.Errorf("lookup %s %s: %w", e.label, e.code, err)
	}

	if !res.found {
		e.verdict = model.VerdictNotFound
		return nil
	}
	e.reference = res.rc.Description
	switch {
	case normalize.Description(e.extracted) == "":
		// Nothing extracted to contradict the reference.
		e.verdict = model.VerdictMatch
		e.detail = "no extracted description"
	case normalize.Description(e.extracted) == normalize.Description(e.reference):
		e.verdict = model.VerdictMatch
	}
	return nil
}

// compare resolves every found entry still lacking a verdict, one oracle
// call per label chunk.
func (v *Validator) compare(ctx context.Context, log zerolog.Logger, entries []*entry) error {
	size := v.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	for _, label := range []string{model.LabelProcedure, model.LabelDiagnosis} {
		var pending []*entry
		for _, e := range entries {
			if e.label == label && e.verdict == "" {
				pending = append(pending, e)
			}
		}
		for start := 0; start < len(pending); start += size {
			end := min(start+size, len(pending))
			if err := v.compareChunk(ctx, log, label, pending[start:end]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *Validator) compareChunk(ctx context.Context, log zerolog.Logger, label string, chunk []*entry) error {
	pairs := make([]oracle.Pair, len(chunk))
	for i, e := range chunk {
		pairs[i] = oracle.Pair{Extracted: e.extracted, Reference: e.reference}
	}

	judgments, err := retry.Do(ctx, v.Retry, "oracle.compare", func(ctx context.Context) ([]*bool, error) {
		return v.Oracle.CompareBatch(ctx, label, pairs)
	})
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil && len(judgments) != len(chunk) {
		err = &oracle.ShapeError{
			Kind:   "compare",
			Reason: fmt.Sprintf("got %d judgments for %d pairs", len(judgments), len(chunk)),
		}
	}
	if err != nil {
		log.Warn().Err(err).Str("label", label).Int("pairs", len(chunk)).
			Msg("description comparison unavailable; marking chunk indeterminate")
		for _, e := range chunk {
			e.verdict = model.VerdictIndeterminate
			e.detail = "description comparison unavailable"
		}
		return nil
	}

	for i, j := range judgments {
		e := chunk[i]
		switch {
		case j == nil:
			e.verdict = model.VerdictIndeterminate
			e.detail = "oracle gave no usable judgment"
		case *j:
			e.verdict = model.VerdictMatch
		default:
			e.verdict = model.VerdictMismatch
			e.detail = "description mismatch"
		}
	}
	return nil
}

func issueFor(e *entry) model.Issue {
	is := model.Issue{Code: e.code}
	switch e.verdict {
	case model.VerdictNotFound:
		is.Kind = model.IssueNotFound
		if e.label == model.LabelProcedure {
			is.Detail = fmt.Sprintf("CPT %s not found in CPT reference table.", e.code)
		} else {
			is.Detail = fmt.Sprintf("ICD %s not found in reference table.", e.code)
		}
	case model.VerdictMismatch:
		is.Kind = model.IssueMismatch
		is.Detail = fmt.Sprintf("%s %s description mismatch.", e.label, e.code)
	default:
		is.Kind = model.IssueIndeterminate
		is.Detail = fmt.Sprintf("%s %s could not be verified: %s.", e.label, e.code, e.detail)
	}
	return is
}
