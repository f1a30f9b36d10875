// Package pipeline drives bills through the persisted lifecycle
// EXTRACTED → VALIDATING → VALIDATED → ADJUDICATING → ADJUDICATED, with
// VALIDATION_FAILED and ADJUDICATION_FAILED as the failure terminals.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/billadj/internal/metrics"
	"github.com/gyeh/billadj/internal/model"
	"github.com/gyeh/billadj/internal/store"
)

// maxSteps bounds the status loop. A bill needs at most four transitions;
// the slack absorbs lost compare-and-set races.
const maxSteps = 16

// Orchestrator runs stage handlers and persists every transition. It holds
// the per-bill lock for the whole run, so at most one stage is in flight
// for a bill across every process sharing the Locker.
type Orchestrator struct {
	Bills        store.BillStore
	Results      store.ResultStore
	Locker       store.Locker
	Validation   Stage
	Adjudication Stage
	Log          zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) stageFor(s model.Status) Stage {
	switch s {
	case model.StatusExtracted, model.StatusValidating:
		return o.Validation
	case model.StatusValidated, model.StatusAdjudicating:
		return o.Adjudication
	}
	return nil
}

// Process advances the bill until it is terminal and returns its result.
// It is safe to call any number of times for the same bill: a terminal bill
// only has its result returned, and a lost transition race re-reads the
// bill and carries on from wherever the winner left it.
func (o *Orchestrator) Process(ctx context.Context, tableID string) (*model.Result, error) {
	log := o.Log.With().Str("table_id", tableID).Logger()
	start := time.Now()

	unlock, err := o.Locker.Lock(ctx, tableID)
	if err != nil {
		return nil, &PipelineError{Phase: "lock", Err: err}
	}
	defer unlock()

	metrics.BillsInflight.Inc()
	defer metrics.BillsInflight.Dec()

	summary := model.RunSummary{TableID: tableID}
	for step := 0; step < maxSteps; step++ {
		b, err := o.Bills.Get(ctx, tableID)
		if err != nil {
			return nil, &PipelineError{Phase: "load", Err: err}
		}
		summary.JobID = b.JobID

		if b.Status.IsTerminal() {
			res, err := o.ensureResult(ctx, b)
			if err != nil {
				return nil, &PipelineError{Phase: "result", Err: err}
			}
			summary.FinalStatus = b.Status
			summary.DurationTotal = time.Since(start)
			summarize(&summary, res)
			logSummary(log, summary)
			return res, nil
		}

		stage := o.stageFor(b.Status)
		if stage == nil {
			return nil, &PipelineError{Phase: "dispatch", Err: fmt.Errorf("no stage owns status %q", b.Status)}
		}

		if b.Status != stage.InProgress() {
			err := o.transition(ctx, b.TableID, b.Status, stage.InProgress(), "")
			if errors.Is(err, store.ErrStaleStatus) {
				continue
			}
			if err != nil {
				return nil, &PipelineError{Phase: stage.Name(), Err: err}
			}
			b.Status = stage.InProgress()
		}

		stageStart := time.Now()
		out, err := stage.Run(ctx, b)
		elapsed := time.Since(stageStart)
		metrics.StageDuration.WithLabelValues(stage.Name()).Observe(elapsed.Seconds())
		if err != nil {
			// The bill stays in its in-progress status and is resumed later.
			return nil, &PipelineError{Phase: stage.Name(), Err: err}
		}
		summary.StagesRun++
		if stage == o.Validation {
			summary.DurationValidate = elapsed
		} else {
			summary.DurationAdjudicate = elapsed
		}
		if out.Cached {
			continue
		}

		if out.Next.IsTerminal() {
			b.Status = out.Next
			b.FailureReason = out.Reason
			if err := o.putResult(ctx, buildResult(b, out, o.now())); err != nil {
				return nil, &PipelineError{Phase: stage.Name(), Err: err}
			}
		}

		err = o.transition(ctx, b.TableID, stage.InProgress(), out.Next, out.Reason)
		if err != nil && !errors.Is(err, store.ErrStaleStatus) {
			return nil, &PipelineError{Phase: stage.Name(), Err: err}
		}
	}
	return nil, &PipelineError{Phase: "dispatch", Err: fmt.Errorf("bill did not settle after %d steps", maxSteps)}
}

func (o *Orchestrator) transition(ctx context.Context, tableID string, from, to model.Status, reason string) error {
	if err := checkTransition(from, to); err != nil {
		return err
	}
	if err := o.Bills.Transition(ctx, tableID, from, to, reason); err != nil {
		return err
	}
	metrics.StageTransitions.WithLabelValues(string(from), string(to)).Inc()
	ev := o.Log.Info()
	if to.IsFailure() {
		ev = o.Log.Warn().Str("reason", reason)
	}
	ev.Str("table_id", tableID).Str("from", string(from)).Str("to", string(to)).Msg("status transition")
	return nil
}

// putResult writes r once; a result already on file wins.
func (o *Orchestrator) putResult(ctx context.Context, r *model.Result) error {
	err := o.Results.PutOnce(ctx, r)
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil
	}
	return err
}

// ensureResult returns the stored result for a terminal bill. The result
// is always written before the terminal transition, so a missing one was
// consumed or expired and is reported as ErrResultGone.
func (o *Orchestrator) ensureResult(ctx context.Context, b *model.Bill) (*model.Result, error) {
	res, err := o.Results.Get(ctx, b.JobID)
	if errors.Is(err, store.ErrNotReady) {
		return nil, fmt.Errorf("%w: job %s", ErrResultGone, b.JobID)
	}
	return res, err
}

// buildResult assembles the terminal record for b from a stage outcome.
func buildResult(b *model.Bill, out StageOutcome, now time.Time) *model.Result {
	r := &model.Result{
		JobID:       b.JobID,
		TableID:     b.TableID,
		Status:      out.Next,
		PolicyID:    out.PolicyID,
		CompletedAt: now,
	}
	if out.Record != nil {
		r.Validation = out.Record.Validation
		r.Justification = out.Record.Justification
		r.AllValid = out.Record.AllValid()
	}
	if out.Adjudication != nil {
		r.Lines = out.Adjudication.Lines
		totals := out.Adjudication.Totals
		r.Totals = &totals
		r.Notes = out.Adjudication.Notes
	}
	switch out.Next {
	case model.StatusValidationFailed:
		r.FailureReason = out.Reason
		r.Notes = append(r.Notes, "The bill is invalid because: "+out.Reason)
	case model.StatusAdjudicationFailed:
		r.FailureReason = out.Reason
		r.Notes = append(r.Notes, "The bill could not be adjudicated: "+out.Reason)
	}
	return r
}

func summarize(s *model.RunSummary, r *model.Result) {
	if r.Validation != nil {
		for _, cv := range r.Validation.Codes {
			s.CodesChecked++
			if cv.Verdict == model.VerdictMatch {
				s.CodesMatched++
			}
		}
	}
	if r.Justification != nil {
		s.Unjustified = len(r.Justification.UnjustifiedCodes)
	}
	for _, l := range r.Lines {
		if l.Covered {
			s.LinesCovered++
		}
	}
}

func logSummary(log zerolog.Logger, s model.RunSummary) {
	log.Info().
		Str("job_id", s.JobID).
		Str("status", string(s.FinalStatus)).
		Int("stages_run", s.StagesRun).
		Int("codes_checked", s.CodesChecked).
		Int("codes_matched", s.CodesMatched).
		Int("unjustified", s.Unjustified).
		Int("lines_covered", s.LinesCovered).
		Str("validate_duration", s.DurationValidate.String()).
		Str("adjudicate_duration", s.DurationAdjudicate.String()).
		Str("total_duration", s.DurationTotal.String()).
		Msg("bill processed")
}
