package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gyeh/billadj/internal/store"
)

// DefaultWorkers is the bill concurrency when none is configured.
const DefaultWorkers = 8

// Runner feeds queued bills to the Orchestrator with bounded concurrency.
// Bills are independent; each one's retries and backoff waits happen in its
// own goroutine.
type Runner struct {
	orch    *Orchestrator
	bills   store.BillStore
	workers int
	queue   chan string
	log     zerolog.Logger
}

// NewRunner returns a Runner with a queue of queueSize pending table IDs.
func NewRunner(orch *Orchestrator, bills store.BillStore, workers, queueSize int, log zerolog.Logger) *Runner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = workers * 16
	}
	return &Runner{
		orch:    orch,
		bills:   bills,
		workers: workers,
		queue:   make(chan string, queueSize),
		log:     log.With().Str("component", "runner").Logger(),
	}
}

// Enqueue schedules a bill. It blocks while the queue is full.
func (r *Runner) Enqueue(ctx context.Context, tableID string) error {
	select {
	case r.queue <- tableID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resume enqueues every bill left in a non-terminal status, oldest first.
func (r *Runner) Resume(ctx context.Context) (int, error) {
	ids, err := r.bills.ListByStatus(ctx, store.ActiveStatuses, 0)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := r.Enqueue(ctx, id); err != nil {
			return 0, err
		}
	}
	if len(ids) > 0 {
		r.log.Info().Int("bills", len(ids)).Msg("resuming unfinished bills")
	}
	return len(ids), nil
}

// Run processes queued bills until ctx is done, then waits for in-flight
// bills to stop. Per-bill failures are logged, never returned; a bill that
// fails on infrastructure stays in its in-progress status for Resume.
func (r *Runner) Run(ctx context.Context) error {
	g := new(errgroup.Group)
	g.SetLimit(r.workers)

	go func() {
		if _, err := r.Resume(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Error().Err(err).Msg("resume failed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return nil
		case id := <-r.queue:
			g.Go(func() error {
				res, err := r.orch.Process(ctx, id)
				if err != nil {
					if ctx.Err() == nil {
						r.log.Error().Err(err).Str("table_id", id).Msg("bill processing failed")
					}
					return nil
				}
				r.log.Debug().Str("table_id", id).Str("status", string(res.Status)).Msg("bill done")
				return nil
			})
		}
	}
}
