package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyeh/billadj/internal/metrics"
	"github.com/gyeh/billadj/internal/retry"
)

func TestParseVerdicts(t *testing.T) {
	got, err := ParseVerdicts("```json\n[\"YES\", \"no\", \"maybe\"]\n```")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, *got[0])
	assert.False(t, *got[1])
	assert.Nil(t, got[2])
}

func TestParseVerdicts_HedgesAreIndeterminate(t *testing.T) {
	got, err := ParseVerdicts(`["Yes.", "No, different service", "NOT SURE", "neutral", "Nope", "y", ""]`)
	require.NoError(t, err)
	require.Len(t, got, 7)
	assert.True(t, *got[0])
	assert.False(t, *got[1])
	for i := 2; i < len(got); i++ {
		assert.Nilf(t, got[i], "element %d", i)
	}
}

func TestParseVerdicts_ShapeErrors(t *testing.T) {
	for _, raw := range []string{`{"a": "YES"}`, `["YES", 3]`, `YES, NO`} {
		_, err := ParseVerdicts(raw)
		var se *ShapeError
		assert.Truef(t, errors.As(err, &se), "expected ShapeError for %q, got %v", raw, err)
		assert.Equal(t, retry.Permanent, retry.Classify(err))
	}
}

func TestParseAttribution(t *testing.T) {
	got, err := ParseAttribution(`{"99213": ["J209"], "71046": []}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"J209"}, got["99213"])
	assert.Empty(t, got["71046"])

	_, err = ParseAttribution(`{"99213": "J209"}`)
	var se *ShapeError
	assert.True(t, errors.As(err, &se))

	_, err = ParseAttribution(`null`)
	assert.True(t, errors.As(err, &se))
}

func TestComparePrompt_NumbersPairs(t *testing.T) {
	p := comparePrompt("CPT", []Pair{{"a", "b"}, {"c", "d"}})
	assert.Contains(t, p, "1. Description A: a")
	assert.Contains(t, p, "2. Description A: c")
	assert.Contains(t, p, "exactly 2 strings")
}

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 0,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	o, err := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1"}, zerolog.Nop())
	require.NoError(t, err)
	return o
}

func TestOpenAI_CompareBatch(t *testing.T) {
	var calls atomic.Int32
	o := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse(`["YES","NO"]`))
	})

	before := testutil.ToFloat64(metrics.OracleCalls.WithLabelValues("compare", "ok"))
	got, err := o.CompareBatch(context.Background(), "CPT", []Pair{{"x", "x"}, {"y", "z"}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, *got[0])
	assert.False(t, *got[1])
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.OracleCalls.WithLabelValues("compare", "ok")))
}

func TestOpenAI_ThrottleIsTransient(t *testing.T) {
	o := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"rate_limit_error"}}`))
	})

	_, err := o.CompareBatch(context.Background(), "CPT", []Pair{{"x", "x"}})
	require.Error(t, err)
	assert.Equal(t, retry.Transient, retry.Classify(err))
}

func TestOpenAI_AuthFailureIsPermanent(t *testing.T) {
	o := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	})

	_, err := o.Justify(context.Background(), []Described{{"99213", "visit"}}, []Described{{"J209", "bronchitis"}})
	require.Error(t, err)
	assert.Equal(t, retry.Permanent, retry.Classify(err))
}

func TestOpenAI_Justify(t *testing.T) {
	o := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse(`{"99213": ["J209"]}`))
	})

	got, err := o.Justify(context.Background(), []Described{{"99213", "visit"}}, []Described{{"J209", "bronchitis"}})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"99213": {"J209"}}, got)
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{}, zerolog.Nop())
	assert.Error(t, err)
}
