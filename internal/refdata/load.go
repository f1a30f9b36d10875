package refdata

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/billadj/internal/db"
	"github.com/gyeh/billadj/internal/model"
	"github.com/gyeh/billadj/internal/normalize"
	"github.com/gyeh/billadj/internal/parquetread"
)

const copyBufferSize = 1024

// CopyParquet streams a reference-code Parquet file into reference_codes
// via COPY. Rows land in a temporary table first and are merged with an
// upsert, so reloading a file replaces descriptions in place.
func CopyParquet(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, path string) (*model.LoadSummary, error) {
	start := time.Now()

	sha, err := normalize.FileHash(path)
	if err != nil {
		return nil, err
	}

	reader, err := parquetread.Open(path)
	if err != nil {
		return nil, fmt.Errorf("refload open: %w", err)
	}
	defer reader.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `CREATE TEMP TABLE reference_codes_load (LIKE reference_codes) ON COMMIT DROP`); err != nil {
		return nil, fmt.Errorf("create load table: %w", err)
	}

	ch := make(chan *model.ReferenceCode, copyBufferSize)
	type readResult struct {
		stats parquetread.Stats
		err   error
	}
	done := make(chan readResult, 1)

	// Producer goroutine: read Parquet → normalize → push to channel
	go func() {
		defer close(ch)
		st, err := reader.Each(func(rc model.ReferenceCode) error {
			select {
			case ch <- &rc:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		done <- readResult{st, err}
	}()

	copied, copyErr := tx.CopyFrom(ctx,
		pgx.Identifier{"reference_codes_load"},
		model.ReferenceCopyColumns,
		db.NewChannelSource(ctx, ch),
	)
	if copyErr != nil {
		// Drain so the producer can exit.
		for range ch {
		}
	}
	rr := <-done
	if copyErr != nil {
		return nil, fmt.Errorf("copy reference codes: %w", copyErr)
	}
	if rr.err != nil {
		return nil, fmt.Errorf("read reference codes: %w", rr.err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO reference_codes (code, code_type, description, category)
		SELECT DISTINCT ON (code, code_type) code, code_type, description, category
		FROM reference_codes_load
		ON CONFLICT (code, code_type) DO UPDATE
		SET description = EXCLUDED.description,
		    category = EXCLUDED.category`)
	if err != nil {
		return nil, fmt.Errorf("merge reference codes: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	summary := &model.LoadSummary{
		FilePath:     path,
		FileSHA256:   sha,
		RowsRead:     rr.stats.RowsRead,
		RowsLoaded:   tag.RowsAffected(),
		RowsRejected: rr.stats.RowsRejected,
		Duration:     time.Since(start),
	}
	log.Info().
		Str("file", path).
		Int64("rows_read", summary.RowsRead).
		Int64("rows_copied", copied).
		Int64("rows_loaded", summary.RowsLoaded).
		Int64("rows_rejected", summary.RowsRejected).
		Str("duration", summary.Duration.String()).
		Msg("reference codes loaded")
	return summary, nil
}
