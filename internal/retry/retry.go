package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// ErrExhausted matches any *ExhaustedError via errors.Is.
var ErrExhausted = errors.New("retries exhausted")

// Config defines retry behavior for one class of outbound call.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxJitter  time.Duration

	// OnRetry, when set, is called before each backoff wait.
	OnRetry func(op string, attempt int, delay time.Duration, err error)
}

// DefaultConfig mirrors the production oracle settings.
var DefaultConfig = Config{
	MaxRetries: 8,
	BaseDelay:  800 * time.Millisecond,
	MaxDelay:   20 * time.Second,
	MaxJitter:  600 * time.Millisecond,
}

// ExhaustedError is returned when every attempt failed with a transient error.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: failed after %d attempts: %v", e.Op, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Do calls fn until it succeeds, fails permanently, or MaxRetries retries
// have been spent. Waits honor ctx and never hold a lock or a thread.
func Do[T any](ctx context.Context, cfg Config, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if Classify(err) == Permanent {
			var pe *PermanentError
			if errors.As(err, &pe) {
				return zero, err
			}
			return zero, &PermanentError{Err: err}
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := Backoff(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(op, attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, &ExhaustedError{Op: op, Attempts: cfg.MaxRetries + 1, Last: lastErr}
}

// Backoff returns min(base*2^attempt + jitter, max).
func Backoff(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if cfg.MaxJitter > 0 {
		delay += float64(rand.Int64N(int64(cfg.MaxJitter)))
	}
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
