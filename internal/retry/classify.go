package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// Class is how a failed call should be treated.
type Class int

const (
	Transient Class = iota
	Permanent
)

func (c Class) String() string {
	if c == Transient {
		return "transient"
	}
	return "permanent"
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// permanenter is implemented by domain errors that must never be retried,
// whatever their message says.
type permanenter interface {
	Permanent() bool
}

// transientMarkers are lowercased substrings of provider error codes and
// messages that indicate throttling or a temporary outage.
var transientMarkers = []string{
	"throttl",
	"toomanyrequests",
	"too many requests",
	"rate limit",
	"serviceunavailable",
	"service unavailable",
	"internalfailure",
	"internalservererror",
	"requesttimeout",
	"limitexceeded",
	"connection reset",
	"connection refused",
	"broken pipe",
	"timeout",
	"timed out",
}

// transientSQLState reports whether a Postgres error code names a fault
// that can clear on its own: connection exceptions (class 08),
// serialization failures, deadlocks, too many connections and shutdowns.
func transientSQLState(code string) bool {
	if strings.HasPrefix(code, "08") {
		return true
	}
	switch code {
	case "40001", "40P01", "53300", "57P01", "57P02", "57P03":
		return true
	}
	return false
}

// Classify determines whether err is worth retrying.
func Classify(err error) Class {
	if err == nil {
		return Permanent
	}

	var te *TransientError
	if errors.As(err, &te) {
		return Transient
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return Permanent
	}
	var pm permanenter
	if errors.As(err, &pm) && pm.Permanent() {
		return Permanent
	}
	if errors.Is(err, context.Canceled) {
		return Permanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return Transient
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Transient
	}
	if pgconn.Timeout(err) {
		return Transient
	}
	var pge *pgconn.PgError
	if errors.As(err, &pge) {
		if transientSQLState(pge.Code) {
			return Transient
		}
		return Permanent
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		if code == 429 || code == 408 || code >= 500 {
			return Transient
		}
		if code >= 400 {
			return Permanent
		}
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return Transient
		}
	}
	return Permanent
}

// TransientError marks an error as retryable regardless of its text.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks an error as not retryable. Do wraps every
// permanent failure it surfaces in one.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// MarkTransient wraps err so Classify treats it as transient.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// MarkPermanent wraps err so Classify treats it as permanent.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}
