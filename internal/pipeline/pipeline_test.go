package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyeh/billadj/internal/justify"
	"github.com/gyeh/billadj/internal/model"
	"github.com/gyeh/billadj/internal/oracle"
	"github.com/gyeh/billadj/internal/oracle/oracletest"
	"github.com/gyeh/billadj/internal/policy"
	"github.com/gyeh/billadj/internal/refdata"
	"github.com/gyeh/billadj/internal/retry"
	"github.com/gyeh/billadj/internal/store"
	"github.com/gyeh/billadj/internal/validate"
)

type harness struct {
	bills    *store.MemoryBills
	results  *store.MemoryResults
	policies *policy.MemoryStore
	oracle   *oracletest.Func
	retries  atomic.Int64
	orch     *Orchestrator
}

func newHarness(t *testing.T, o *oracletest.Func) *harness {
	t.Helper()
	h := &harness{
		bills:   store.NewMemoryBills(),
		results: store.NewMemoryResults(),
		policies: policy.NewMemoryStore(&model.Policy{
			PolicyID:       "pol-1",
			PatientID:      "pat-1",
			DefaultNetwork: model.InNetwork,
			CoinsuranceBPS: 2000,
		}),
		oracle: o,
	}
	cfg := retry.Config{
		MaxRetries: 8,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
		OnRetry:    func(string, int, time.Duration, error) { h.retries.Add(1) },
	}
	refs := refdata.NewMemoryStore(
		model.ReferenceCode{Code: "99213", CodeType: "cpt", Description: "Office or other outpatient visit"},
		model.ReferenceCode{Code: "71046", CodeType: "cpt", Description: "Radiologic examination, chest; 2 views"},
		model.ReferenceCode{Code: "J209", CodeType: "icd10", Description: "Acute bronchitis, unspecified"},
	)
	log := zerolog.Nop()
	h.orch = &Orchestrator{
		Bills:   h.bills,
		Results: h.results,
		Locker:  store.NewLocalLocker(),
		Validation: &ValidationStage{
			Bills:     h.bills,
			Validator: &validate.Validator{Refs: refs, Oracle: o, Retry: cfg, Log: log},
			Checker:   &justify.Checker{Oracle: o, Retry: cfg, Log: log},
			Log:       log,
		},
		Adjudication: &AdjudicationStage{Bills: h.bills, Policies: h.policies, Retry: cfg, Log: log},
		Log:          log,
	}
	return h
}

func (h *harness) submit(t *testing.T, b *model.Bill) {
	t.Helper()
	require.NoError(t, h.bills.Create(context.Background(), b))
}

func officeVisit(id string) *model.Bill {
	return &model.Bill{
		TableID:   id,
		JobID:     "job-" + id,
		PatientID: "pat-1",
		Items: []model.LineItem{
			{Code: "99213", Description: "Office visit, established patient", BilledCents: 15000, Quantity: 1},
		},
		Diagnoses: []model.Diagnosis{{Code: "J209", Description: "Acute bronchitis", Principal: true}},
	}
}

func TestCoveredInNetworkBill(t *testing.T) {
	h := newHarness(t, &oracletest.Func{})
	h.submit(t, officeVisit("a"))

	res, err := h.orch.Process(context.Background(), "a")
	require.NoError(t, err)

	assert.Equal(t, model.StatusAdjudicated, res.Status)
	assert.Equal(t, "pol-1", res.PolicyID)
	assert.True(t, res.AllValid)
	require.Len(t, res.Lines, 1)
	assert.True(t, res.Lines[0].Covered)
	assert.EqualValues(t, 12000, res.Lines[0].InsuranceCents)
	assert.EqualValues(t, 3000, res.Lines[0].PatientCents)
	assert.Empty(t, res.Notes)

	var path []model.Status
	for _, tr := range h.bills.Transitions("a") {
		path = append(path, tr.To)
	}
	assert.Equal(t, []model.Status{
		model.StatusValidating, model.StatusValidated, model.StatusAdjudicating, model.StatusAdjudicated,
	}, path)

	stored, err := h.results.Get(context.Background(), "job-a")
	require.NoError(t, err)
	assert.Equal(t, res.Totals, stored.Totals)
}

func TestUnknownCodeStillAdjudicated(t *testing.T) {
	h := newHarness(t, &oracletest.Func{})
	b := officeVisit("b")
	b.Items = append(b.Items, model.LineItem{Code: "00000", Description: "Mystery service", BilledCents: 5000})
	h.submit(t, b)

	res, err := h.orch.Process(context.Background(), "b")
	require.NoError(t, err)

	assert.Equal(t, model.StatusAdjudicated, res.Status)
	assert.False(t, res.AllValid)
	cv, ok := res.Validation.VerdictFor("00000")
	require.True(t, ok)
	assert.Equal(t, model.VerdictNotFound, cv.Verdict)

	require.Len(t, res.Lines, 2)
	assert.True(t, res.Lines[1].LowConfidence)
	assert.EqualValues(t, 5000, res.Lines[1].PatientCents+res.Lines[1].InsuranceCents)
	require.NotEmpty(t, res.Notes)
	assert.True(t, strings.HasPrefix(res.Notes[0], "The bill is invalid because: "))
}

func TestThrottledOracleRetriedToSuccess(t *testing.T) {
	var calls atomic.Int64
	o := &oracletest.Func{
		CompareFn: func(ctx context.Context, label string, pairs []oracle.Pair) ([]*bool, error) {
			if calls.Add(1) <= 3 {
				return nil, errors.New("ThrottlingException: Rate exceeded")
			}
			return oracletest.AllYes(len(pairs)), nil
		},
	}
	h := newHarness(t, o)
	b := officeVisit("c")
	b.Diagnoses[0].Description = "" // only the procedure needs the oracle
	h.submit(t, b)

	res, err := h.orch.Process(context.Background(), "c")
	require.NoError(t, err)

	cv, _ := res.Validation.VerdictFor("99213")
	assert.Equal(t, model.VerdictMatch, cv.Verdict)
	assert.EqualValues(t, 4, calls.Load())
	assert.LessOrEqual(t, h.retries.Load(), int64(8))
	assert.Equal(t, model.StatusAdjudicated, res.Status)
}

func TestExhaustedRetriesMarkCodeIndeterminate(t *testing.T) {
	o := &oracletest.Func{
		CompareFn: func(ctx context.Context, label string, pairs []oracle.Pair) ([]*bool, error) {
			if label == model.LabelProcedure {
				return nil, errors.New("ServiceUnavailable")
			}
			return oracletest.AllYes(len(pairs)), nil
		},
	}
	h := newHarness(t, o)
	h.submit(t, officeVisit("d"))

	res, err := h.orch.Process(context.Background(), "d")
	require.NoError(t, err)

	cv, _ := res.Validation.VerdictFor("99213")
	assert.Equal(t, model.VerdictIndeterminate, cv.Verdict)
	dx, _ := res.Validation.VerdictFor("J209")
	assert.Equal(t, model.VerdictMatch, dx.Verdict)
	assert.Equal(t, model.StatusAdjudicated, res.Status)
	assert.True(t, res.Lines[0].LowConfidence)
	assert.False(t, res.AllValid)
}

func TestMissingPolicyFailsAdjudication(t *testing.T) {
	h := newHarness(t, &oracletest.Func{})
	b := officeVisit("np")
	b.PatientID = "pat-unknown"
	h.submit(t, b)

	res, err := h.orch.Process(context.Background(), "np")
	require.NoError(t, err)

	assert.Equal(t, model.StatusAdjudicationFailed, res.Status)
	assert.Contains(t, res.FailureReason, "no active policy")
	assert.NotNil(t, res.Validation, "validation output is kept on failure")

	got, err := h.bills.Get(context.Background(), "np")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAdjudicationFailed, got.Status)
	assert.Equal(t, res.FailureReason, got.FailureReason)
}

func TestSchemaViolationFailsValidation(t *testing.T) {
	o := &oracletest.Func{}
	h := newHarness(t, o)
	b := officeVisit("bad")
	b.Items[0].BilledCents = -100
	h.submit(t, b)

	res, err := h.orch.Process(context.Background(), "bad")
	require.NoError(t, err)

	assert.Equal(t, model.StatusValidationFailed, res.Status)
	assert.NotEmpty(t, res.FailureReason)
	require.NotEmpty(t, res.Notes)
	assert.True(t, strings.HasPrefix(res.Notes[0], "The bill is invalid because: "))
	assert.Zero(t, o.CompareCalls()+o.JustifyCalls())
}

func TestProcessIsIdempotent(t *testing.T) {
	o := &oracletest.Func{}
	h := newHarness(t, o)
	h.submit(t, officeVisit("i"))

	first, err := h.orch.Process(context.Background(), "i")
	require.NoError(t, err)
	calls := o.CompareCalls() + o.JustifyCalls()

	second, err := h.orch.Process(context.Background(), "i")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, calls, o.CompareCalls()+o.JustifyCalls(), "terminal bills make no external calls")
	assert.Len(t, h.bills.Transitions("i"), 4)
}

func TestConcurrentTriggersRunOnce(t *testing.T) {
	o := &oracletest.Func{}
	h := newHarness(t, o)
	h.submit(t, officeVisit("cc"))

	var wg sync.WaitGroup
	results := make([]*model.Result, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.orch.Process(context.Background(), "cc")
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
	assert.Equal(t, 1, o.JustifyCalls())
	assert.Len(t, h.bills.Transitions("cc"), 4)
}

func TestResumeFromInProgressStatus(t *testing.T) {
	h := newHarness(t, &oracletest.Func{})
	h.submit(t, officeVisit("r"))
	ctx := context.Background()
	// Simulate a worker that died mid-validation.
	require.NoError(t, h.bills.Transition(ctx, "r", model.StatusExtracted, model.StatusValidating, ""))

	res, err := h.orch.Process(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAdjudicated, res.Status)
}

func TestConsumedResultIsNotRebuilt(t *testing.T) {
	h := newHarness(t, &oracletest.Func{})
	h.submit(t, officeVisit("m"))
	ctx := context.Background()

	first, err := h.orch.Process(ctx, "m")
	require.NoError(t, err)
	require.Len(t, first.Lines, 1)
	require.NotNil(t, first.Totals)

	again, err := h.orch.Process(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, first, again, "terminal bills return the stored record")

	require.NoError(t, h.results.Delete(ctx, "job-m"))
	res, err := h.orch.Process(ctx, "m")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrResultGone)

	_, err = h.results.Get(ctx, "job-m")
	assert.ErrorIs(t, err, store.ErrNotReady, "no hollow record is written")
}

func TestValidationStageShortCircuits(t *testing.T) {
	o := &oracletest.Func{}
	h := newHarness(t, o)
	h.submit(t, officeVisit("s"))
	ctx := context.Background()
	_, err := h.orch.Process(ctx, "s")
	require.NoError(t, err)
	calls := o.CompareCalls()

	b, err := h.bills.Get(ctx, "s")
	require.NoError(t, err)
	out, err := h.orch.Validation.Run(ctx, b)
	require.NoError(t, err)
	assert.True(t, out.Cached)
	assert.Equal(t, model.StatusAdjudicated, out.Next)
	assert.Equal(t, calls, o.CompareCalls())

	out, err = h.orch.Adjudication.Run(ctx, b)
	require.NoError(t, err)
	assert.True(t, out.Cached)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to model.Status
		ok       bool
	}{
		{model.StatusExtracted, model.StatusValidating, true},
		{model.StatusValidating, model.StatusValidated, true},
		{model.StatusValidating, model.StatusValidationFailed, true},
		{model.StatusValidated, model.StatusAdjudicating, true},
		{model.StatusAdjudicating, model.StatusAdjudicated, true},
		{model.StatusAdjudicating, model.StatusAdjudicationFailed, true},
		{model.StatusExtracted, model.StatusAdjudicated, false},
		{model.StatusAdjudicated, model.StatusValidating, false},
		{model.StatusValidationFailed, model.StatusAdjudicating, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to), "%s → %s", tt.from, tt.to)
	}
	assert.ErrorIs(t, checkTransition(model.StatusAdjudicated, model.StatusValidating), ErrInvalidTransition)
}

func TestRunnerProcessesQueueAndResumes(t *testing.T) {
	h := newHarness(t, &oracletest.Func{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Left over from a previous run; picked up by Resume.
	h.submit(t, officeVisit("old"))

	r := NewRunner(h.orch, h.bills, 3, 0, zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	ids := []string{"q1", "q2", "q3", "q4"}
	for _, id := range ids {
		h.submit(t, officeVisit(id))
		require.NoError(t, r.Enqueue(ctx, id))
	}

	require.Eventually(t, func() bool {
		for _, id := range append(ids, "old") {
			if _, err := h.results.Get(ctx, "job-"+id); err != nil {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}
