// Package retention removes per-bill working data once a bill is finished.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gyeh/billadj/internal/metrics"
	"github.com/gyeh/billadj/internal/store"
)

// batchSize bounds how many bills one sweep step clears.
const batchSize = 500

// Pruner periodically deletes the line items, diagnoses and stage records of
// terminal bills older than Retention. Bill rows and terminal results stay;
// results are only removed once they are older than ResultTTL.
type Pruner struct {
	Bills     store.BillStore
	Results   store.ResultStore
	Retention time.Duration
	// ResultTTL of zero keeps results forever.
	ResultTTL time.Duration
	// Interval of zero derives the sweep period from Retention.
	Interval time.Duration
	Log      zerolog.Logger
}

// Stats reports what one sweep removed.
type Stats struct {
	Bills   int
	Results int64
}

// SweepInterval is retention/10 capped at an hour, and never below a minute.
func SweepInterval(retention time.Duration) time.Duration {
	d := min(retention/10, time.Hour)
	return max(d, time.Minute)
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (p *Pruner) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = SweepInterval(p.Retention)
	}
	log := p.Log.With().Str("component", "retention").Logger()
	log.Info().Dur("retention", p.Retention).Dur("interval", interval).Msg("pruner started")

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := p.PruneOnce(ctx, time.Now()); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("prune sweep failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// PruneOnce clears every bill that expired before now.
func (p *Pruner) PruneOnce(ctx context.Context, now time.Time) (Stats, error) {
	var st Stats
	start := time.Now()
	cutoff := now.Add(-p.Retention)

	for {
		ids, err := p.Bills.ListExpired(ctx, cutoff, batchSize)
		if err != nil {
			return st, fmt.Errorf("list expired bills: %w", err)
		}
		for _, id := range ids {
			if err := p.Bills.DeleteTemporary(ctx, id); err != nil {
				return st, fmt.Errorf("delete temporary records for %s: %w", id, err)
			}
			st.Bills++
		}
		metrics.Pruned.WithLabelValues("bill").Add(float64(len(ids)))
		if len(ids) < batchSize {
			break
		}
	}

	if p.ResultTTL > 0 && p.Results != nil {
		n, err := p.Results.DeleteOlderThan(ctx, now.Add(-p.ResultTTL))
		if err != nil {
			return st, fmt.Errorf("delete old results: %w", err)
		}
		st.Results = n
		metrics.Pruned.WithLabelValues("result").Add(float64(n))
	}

	if st.Bills > 0 || st.Results > 0 {
		p.Log.Info().
			Int("bills", st.Bills).
			Int64("results", st.Results).
			Dur("duration", time.Since(start)).
			Msg("retention sweep complete")
	}
	return st, nil
}
