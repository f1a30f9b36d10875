package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gyeh/billadj/internal/adjudicate"
	"github.com/gyeh/billadj/internal/justify"
	"github.com/gyeh/billadj/internal/metrics"
	"github.com/gyeh/billadj/internal/model"
	"github.com/gyeh/billadj/internal/policy"
	"github.com/gyeh/billadj/internal/retry"
	"github.com/gyeh/billadj/internal/store"
	"github.com/gyeh/billadj/internal/validate"
)

// StageOutcome is what a stage handler hands back to the orchestrator: the
// status to move to and everything the terminal result needs.
type StageOutcome struct {
	Next   model.Status
	Reason string

	Record       *model.StageRecord
	Adjudication *adjudicate.Adjudication
	PolicyID     string

	// Cached is set when the bill was already past the stage and nothing
	// external was called.
	Cached bool
}

// Stage is one step of the bill lifecycle. Handlers never call each other.
type Stage interface {
	Name() string
	// InProgress is the status a bill holds while the stage runs.
	InProgress() model.Status
	Run(ctx context.Context, b *model.Bill) (StageOutcome, error)
}

// ValidationStage owns EXTRACTED and VALIDATING.
type ValidationStage struct {
	Bills     store.BillStore
	Validator *validate.Validator
	Checker   *justify.Checker
	Log       zerolog.Logger
}

func (s *ValidationStage) Name() string { return "validate" }

func (s *ValidationStage) InProgress() model.Status { return model.StatusValidating }

// Run checks the bill schema, then runs code validation and justification
// concurrently and caches both for the adjudication stage. A bill already
// past VALIDATING gets its cached record back without any external call.
func (s *ValidationStage) Run(ctx context.Context, b *model.Bill) (StageOutcome, error) {
	if b.Status.Rank() > model.StatusValidating.Rank() {
		rec, err := s.Bills.LoadStage(ctx, b.TableID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return StageOutcome{}, err
		}
		return StageOutcome{Next: b.Status, Reason: b.FailureReason, Record: rec, Cached: true}, nil
	}

	if err := b.Validate(); err != nil {
		var se *model.SchemaError
		if errors.As(err, &se) {
			return StageOutcome{Next: model.StatusValidationFailed, Reason: se.Error()}, nil
		}
		return StageOutcome{}, err
	}

	var report *model.ValidationReport
	var just *model.JustificationResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		report, err = s.Validator.Validate(gctx, b)
		return err
	})
	g.Go(func() error {
		var err error
		just, err = s.Checker.Check(gctx, b)
		return err
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return StageOutcome{}, ctx.Err()
		}
		if retry.Classify(err) == retry.Permanent {
			return StageOutcome{Next: model.StatusValidationFailed, Reason: err.Error()}, nil
		}
		return StageOutcome{}, err
	}

	rec := &model.StageRecord{Validation: report, Justification: just}
	if err := s.Bills.SaveStage(ctx, b.TableID, rec); err != nil {
		return StageOutcome{}, fmt.Errorf("save stage record: %w", err)
	}
	metrics.ObserveReport(report)

	s.Log.Info().
		Str("table_id", b.TableID).
		Bool("all_valid", rec.AllValid()).
		Int("issues", len(report.Issues)+len(just.Issues)).
		Msg("validation stage complete")
	return StageOutcome{Next: model.StatusValidated, Record: rec}, nil
}

// AdjudicationStage owns VALIDATED and ADJUDICATING.
type AdjudicationStage struct {
	Bills    store.BillStore
	Policies policy.Store
	Retry    retry.Config
	Log      zerolog.Logger
}

func (s *AdjudicationStage) Name() string { return "adjudicate" }

func (s *AdjudicationStage) InProgress() model.Status { return model.StatusAdjudicating }

// Run loads the patient's policy and applies it. A missing policy, an
// exhausted policy lookup or a reconciliation failure ends the bill in
// ADJUDICATION_FAILED; coverage denials are ordinary results.
func (s *AdjudicationStage) Run(ctx context.Context, b *model.Bill) (StageOutcome, error) {
	if b.Status.IsTerminal() || b.Status.Rank() > model.StatusAdjudicating.Rank() {
		return StageOutcome{Next: b.Status, Reason: b.FailureReason, Cached: true}, nil
	}
	if b.Status.Rank() < model.StatusValidated.Rank() {
		return StageOutcome{}, fmt.Errorf("%w: bill %s is %s, not yet validated", ErrInvalidTransition, b.TableID, b.Status)
	}

	rec, err := s.Bills.LoadStage(ctx, b.TableID)
	if errors.Is(err, store.ErrNotFound) {
		return StageOutcome{Next: model.StatusAdjudicationFailed, Reason: "validation record missing"}, nil
	}
	if err != nil {
		return StageOutcome{}, err
	}

	pol, err := retry.Do(ctx, s.Retry, "policy.active", func(ctx context.Context) (*model.Policy, error) {
		return s.Policies.Active(ctx, b.PatientID, b.ProviderID)
	})
	if err != nil {
		if ctx.Err() != nil {
			return StageOutcome{}, ctx.Err()
		}
		reason := fmt.Sprintf("policy lookup failed: %v", err)
		if errors.Is(err, policy.ErrNotFound) {
			reason = fmt.Sprintf("no active policy for patient %s", b.PatientID)
		}
		return StageOutcome{Next: model.StatusAdjudicationFailed, Reason: reason, Record: rec}, nil
	}

	adj, err := adjudicate.Adjudicate(b, rec, pol)
	if err != nil {
		return StageOutcome{Next: model.StatusAdjudicationFailed, Reason: err.Error(), Record: rec}, nil
	}

	s.Log.Info().
		Str("table_id", b.TableID).
		Str("policy_id", pol.PolicyID).
		Int64("patient_cents", adj.Totals.PatientCents).
		Int64("insurance_cents", adj.Totals.InsuranceCents).
		Msg("adjudication stage complete")
	return StageOutcome{Next: model.StatusAdjudicated, Record: rec, Adjudication: adj, PolicyID: pol.PolicyID}, nil
}
