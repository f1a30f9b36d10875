// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gyeh/billadj/internal/model"
	"github.com/gyeh/billadj/internal/retry"
)

var (
	// StageDuration tracks how long each stage handler runs
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billadj_stage_duration_seconds",
			Help:    "Stage handler duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// StageTransitions counts persisted status transitions
	StageTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billadj_stage_transitions_total",
			Help: "Total number of bill status transitions",
		},
		[]string{"from", "to"},
	)

	// OracleCalls counts oracle requests by kind and outcome
	OracleCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billadj_oracle_calls_total",
			Help: "Total number of oracle calls",
		},
		[]string{"kind", "outcome"},
	)

	// RetryAttempts counts retries of externally fallible calls
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billadj_retry_attempts_total",
			Help: "Total number of retried calls",
		},
		[]string{"op"},
	)

	// Verdicts counts code verdicts
	Verdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billadj_verdicts_total",
			Help: "Total number of code verdicts",
		},
		[]string{"verdict"},
	)

	// BillsInflight tracks bills currently held by a worker
	BillsInflight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "billadj_bills_inflight",
			Help: "Bills currently being processed",
		},
	)

	// Pruned counts records removed by the retention sweep
	Pruned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billadj_pruned_total",
			Help: "Total number of records removed by retention",
		},
		[]string{"kind"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RetryHook returns a retry.Config OnRetry callback that counts and logs
// each retry.
func RetryHook(log zerolog.Logger) func(op string, attempt int, delay time.Duration, err error) {
	return func(op string, attempt int, delay time.Duration, err error) {
		RetryAttempts.WithLabelValues(op).Inc()
		log.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("retrying after transient error")
	}
}

// WithRetryHook returns cfg with RetryHook installed.
func WithRetryHook(cfg retry.Config, log zerolog.Logger) retry.Config {
	cfg.OnRetry = RetryHook(log)
	return cfg
}

// ObserveReport counts every verdict in r.
func ObserveReport(r *model.ValidationReport) {
	if r == nil {
		return
	}
	for _, cv := range r.Codes {
		Verdicts.WithLabelValues(string(cv.Verdict)).Inc()
	}
}
