// Package store persists bills, their cached stage output, and terminal results.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/gyeh/billadj/internal/model"
)

var (
	// ErrNotFound means no bill (or stage record) exists for the key.
	ErrNotFound = errors.New("not found")
	// ErrNotReady means the job's result has not been written yet.
	ErrNotReady = errors.New("result not ready")
	// ErrStaleStatus means a compare-and-set transition lost the race: the
	// bill is no longer in the expected status.
	ErrStaleStatus = errors.New("stale bill status")
	// ErrAlreadyExists means a set-once record was already written.
	ErrAlreadyExists = errors.New("already exists")
)

// Transition is one recorded status change.
type Transition struct {
	TableID string
	From    model.Status
	To      model.Status
	Reason  string
	At      time.Time
}

// BillStore reads and mutates bills. Status only moves through Transition.
type BillStore interface {
	Create(ctx context.Context, b *model.Bill) error
	Get(ctx context.Context, tableID string) (*model.Bill, error)
	// Transition moves a bill from one status to another atomically and
	// returns ErrStaleStatus when the current status is not from.
	Transition(ctx context.Context, tableID string, from, to model.Status, reason string) error
	SaveStage(ctx context.Context, tableID string, rec *model.StageRecord) error
	LoadStage(ctx context.Context, tableID string) (*model.StageRecord, error)
	// DeleteTemporary drops a bill's line items, diagnoses, and stage cache.
	// The bill row and its result survive.
	DeleteTemporary(ctx context.Context, tableID string) error
	ListExpired(ctx context.Context, before time.Time, limit int) ([]string, error)
	ListByStatus(ctx context.Context, statuses []model.Status, limit int) ([]string, error)
}

// ResultStore holds terminal results keyed by job id.
type ResultStore interface {
	// PutOnce writes r unless a result for r.JobID exists, in which case it
	// returns ErrAlreadyExists and keeps the original.
	PutOnce(ctx context.Context, r *model.Result) error
	// Get returns ErrNotReady until a result has been written.
	Get(ctx context.Context, jobID string) (*model.Result, error)
	Delete(ctx context.Context, jobID string) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Locker serializes work on a key. unlock must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// TerminalStatuses lists the statuses eligible for retention cleanup.
var TerminalStatuses = []model.Status{
	model.StatusValidationFailed,
	model.StatusAdjudicated,
	model.StatusAdjudicationFailed,
}

// ActiveStatuses lists the statuses a restarted worker must resume.
var ActiveStatuses = []model.Status{
	model.StatusExtracted,
	model.StatusValidating,
	model.StatusValidated,
	model.StatusAdjudicating,
}

func statusStrings(ss []model.Status) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}
