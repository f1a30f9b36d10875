package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyeh/billadj/internal/model"
	"github.com/gyeh/billadj/internal/store"
)

type recordingQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *recordingQueue) Enqueue(ctx context.Context, tableID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, tableID)
	return nil
}

type harness struct {
	bills   *store.MemoryBills
	results *store.MemoryResults
	queue   *recordingQueue
	e       *echo.Echo
}

func newHarness() *harness {
	h := &harness{
		bills:   store.NewMemoryBills(),
		results: store.NewMemoryResults(),
		queue:   &recordingQueue{},
	}
	s := &Server{Bills: h.bills, Results: h.results, Queue: h.queue, Log: zerolog.Nop()}
	h.e = s.Echo()
	return h
}

func (h *harness) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

const extractionDoc = `{
  "patient_info": {"firstname": "Jane", "lastname": "Doe", "zipcode": "62704"},
  "hospital_info": {"name": "Springfield General"},
  "medical_bill_info": {"items": [{"code": "99213", "description": "Office visit", "bill": 150}], "balance_due": 150},
  "icd_10_codes": [{"code": "J20.9", "description": "Acute bronchitis"}]
}`

func TestSubmitExtraction(t *testing.T) {
	h := newHarness()
	rec := h.do(http.MethodPost, "/v1/bills", extractionDoc)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var got Submitted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.NotEmpty(t, got.TableID)
	assert.NotEmpty(t, got.JobID)
	assert.Equal(t, []string{got.TableID}, h.queue.ids)

	b, err := h.bills.Get(context.Background(), got.TableID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExtracted, b.Status)
	assert.Equal(t, int64(15000), b.TotalCents)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestSubmitCanonicalBill(t *testing.T) {
	h := newHarness()
	body := `{"table_id": "t-1", "job_id": "j-1", "patient_id": "pat-1",
	          "items": [{"code": "99213", "billed_cents": 10000, "quantity": 1}]}`
	rec := h.do(http.MethodPost, "/v1/bills", body)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"table_id": "t-1", "job_id": "j-1"}`, rec.Body.String())

	rec = h.do(http.MethodPost, "/v1/bills", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitRejectsMalformed(t *testing.T) {
	h := newHarness()
	rec := h.do(http.MethodPost, "/v1/bills", `{"items": [`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "decode")
	assert.Empty(t, h.queue.ids)
}

func TestSubmitRejectsUnreadableAmount(t *testing.T) {
	h := newHarness()
	rec := h.do(http.MethodPost, "/v1/bills", `{"medical_bill_info": {"items": [{"code": "99213", "bill": "N/A"}]}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unparseable amount")
	assert.Empty(t, h.queue.ids)
}

func TestSubmitSurvivesEnqueueFailure(t *testing.T) {
	h := newHarness()
	h.queue.err = errors.New("queue closed")
	rec := h.do(http.MethodPost, "/v1/bills", extractionDoc)
	require.Equal(t, http.StatusAccepted, rec.Code)

	ids, err := h.bills.ListByStatus(context.Background(), store.ActiveStatuses, 0)
	require.NoError(t, err)
	assert.Len(t, ids, 1, "stored bill waits for resume")
}

func TestGetBill(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	require.NoError(t, h.bills.Create(ctx, &model.Bill{TableID: "t-1", JobID: "j-1", PatientID: "p"}))
	require.NoError(t, h.bills.Transition(ctx, "t-1", model.StatusExtracted, model.StatusValidationFailed, "no items"))

	rec := h.do(http.MethodGet, "/v1/bills/t-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got BillStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, model.StatusValidationFailed, got.Status)
	assert.Equal(t, "no items", got.FailureReason)

	rec = h.do(http.MethodGet, "/v1/bills/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetResult(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	rec := h.do(http.MethodGet, "/v1/results/j-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error": "result not ready"}`, rec.Body.String())

	require.NoError(t, h.results.PutOnce(ctx, &model.Result{
		JobID:       "j-1",
		TableID:     "t-1",
		Status:      model.StatusAdjudicated,
		AllValid:    true,
		CompletedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}))

	rec = h.do(http.MethodGet, "/v1/results/j-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, model.StatusAdjudicated, got.Status)

	rec = h.do(http.MethodGet, "/v1/results/j-1?consume=true", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/v1/results/j-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "consumed results are gone")
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness()
	rec := h.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "billadj_bills_inflight")
}

func TestRecoveryMiddleware(t *testing.T) {
	h := newHarness()
	h.e.GET("/boom", func(c echo.Context) error { panic("boom") })
	rec := h.do(http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
