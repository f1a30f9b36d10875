package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gyeh/billadj/internal/model"
	embedsql "github.com/gyeh/billadj/internal/sql"
)

const pgUniqueViolation = "23505"

// PGBills implements BillStore on Postgres.
type PGBills struct {
	pool *pgxpool.Pool
}

// NewPGBills returns a Postgres-backed BillStore.
func NewPGBills(pool *pgxpool.Pool) *PGBills {
	return &PGBills{pool: pool}
}

// Create inserts the bill graph in one transaction.
func (s *PGBills) Create(ctx context.Context, b *model.Bill) error {
	status := b.Status
	if status == "" {
		status = model.StatusExtracted
	}
	created := b.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, embedsql.InsertBill,
		b.TableID, b.JobID, b.PatientID, b.ProviderID,
		b.SubtotalCents, b.DiscountCents, b.TaxCents, b.TotalCents,
		string(status), created)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert bill %s: %w", b.TableID, err)
	}

	batch := &pgx.Batch{}
	for i, li := range b.Items {
		batch.Queue(embedsql.InsertBillItem, b.TableID, i, li.Code, li.Description,
			li.BilledCents, li.Units(), li.Modifiers, li.AuthorizationRef)
	}
	for i, d := range b.Diagnoses {
		batch.Queue(embedsql.InsertBillDiagnosis, b.TableID, i, d.Code, d.Description, d.Principal)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert bill %s lines: %w", b.TableID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get loads the bill with its items and diagnoses in original order.
func (s *PGBills) Get(ctx context.Context, tableID string) (*model.Bill, error) {
	var b model.Bill
	var status string
	err := s.pool.QueryRow(ctx, embedsql.GetBill, tableID).Scan(
		&b.TableID, &b.JobID, &b.PatientID, &b.ProviderID,
		&b.SubtotalCents, &b.DiscountCents, &b.TaxCents, &b.TotalCents,
		&status, &b.FailureReason, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bill %s: %w", tableID, err)
	}
	b.Status = model.Status(status)

	rows, err := s.pool.Query(ctx, embedsql.GetBillItems, tableID)
	if err != nil {
		return nil, fmt.Errorf("get bill items %s: %w", tableID, err)
	}
	b.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.LineItem, error) {
		var li model.LineItem
		err := row.Scan(&li.Code, &li.Description, &li.BilledCents, &li.Quantity, &li.Modifiers, &li.AuthorizationRef)
		return li, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan bill items %s: %w", tableID, err)
	}

	rows, err = s.pool.Query(ctx, embedsql.GetBillDiagnoses, tableID)
	if err != nil {
		return nil, fmt.Errorf("get bill diagnoses %s: %w", tableID, err)
	}
	b.Diagnoses, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Diagnosis, error) {
		var d model.Diagnosis
		err := row.Scan(&d.Code, &d.Description, &d.Principal)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan bill diagnoses %s: %w", tableID, err)
	}
	return &b, nil
}

// Transition is a compare-and-set on bills.status; the audit row is written
// in the same transaction.
func (s *PGBills) Transition(ctx context.Context, tableID string, from, to model.Status, reason string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, embedsql.TransitionBill, tableID, string(from), string(to), reason)
	if err != nil {
		return fmt.Errorf("transition bill %s: %w", tableID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bills WHERE table_id = $1)`, tableID).Scan(&exists); err != nil {
			return fmt.Errorf("check bill %s: %w", tableID, err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrStaleStatus
	}
	if _, err := tx.Exec(ctx, embedsql.InsertTransition, tableID, string(from), string(to), reason); err != nil {
		return fmt.Errorf("record transition %s: %w", tableID, err)
	}
	return tx.Commit(ctx)
}

// SaveStage stores the validation stage output as jsonb.
func (s *PGBills) SaveStage(ctx context.Context, tableID string, rec *model.StageRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode stage record: %w", err)
	}
	if _, err := s.pool.Exec(ctx, embedsql.UpsertStageResult, tableID, doc); err != nil {
		return fmt.Errorf("save stage record %s: %w", tableID, err)
	}
	return nil
}

// LoadStage reads the cached validation stage output.
func (s *PGBills) LoadStage(ctx context.Context, tableID string) (*model.StageRecord, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, embedsql.GetStageResult, tableID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load stage record %s: %w", tableID, err)
	}
	var rec model.StageRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("decode stage record %s: %w", tableID, err)
	}
	return &rec, nil
}

// DeleteTemporary implements BillStore.
func (s *PGBills) DeleteTemporary(ctx context.Context, tableID string) error {
	if _, err := s.pool.Exec(ctx, embedsql.DeleteBillTemporary, tableID); err != nil {
		return fmt.Errorf("delete temporary records %s: %w", tableID, err)
	}
	return nil
}

// ListExpired implements BillStore.
func (s *PGBills) ListExpired(ctx context.Context, before time.Time, limit int) ([]string, error) {
	return s.listIDs(ctx, embedsql.ListExpiredBills, statusStrings(TerminalStatuses), before, limit)
}

// ListByStatus implements BillStore.
func (s *PGBills) ListByStatus(ctx context.Context, statuses []model.Status, limit int) ([]string, error) {
	return s.listIDs(ctx, embedsql.ListBillsByStatus, statusStrings(statuses), limit)
}

func (s *PGBills) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan bill ids: %w", err)
	}
	return ids, nil
}

// PGResults implements ResultStore on Postgres.
type PGResults struct {
	pool *pgxpool.Pool
}

// NewPGResults returns a Postgres-backed ResultStore.
func NewPGResults(pool *pgxpool.Pool) *PGResults {
	return &PGResults{pool: pool}
}

// PutOnce implements ResultStore with INSERT ... ON CONFLICT DO NOTHING.
func (s *PGResults) PutOnce(ctx context.Context, r *model.Result) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	tag, err := s.pool.Exec(ctx, embedsql.InsertResult, r.JobID, r.TableID, string(r.Status), doc, r.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert result %s: %w", r.JobID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Get implements ResultStore.
func (s *PGResults) Get(ctx context.Context, jobID string) (*model.Result, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, embedsql.GetResult, jobID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotReady
	}
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", jobID, err)
	}
	var r model.Result
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", jobID, err)
	}
	return &r, nil
}

// Delete implements ResultStore.
func (s *PGResults) Delete(ctx context.Context, jobID string) error {
	if _, err := s.pool.Exec(ctx, embedsql.DeleteResult, jobID); err != nil {
		return fmt.Errorf("delete result %s: %w", jobID, err)
	}
	return nil
}

// DeleteOlderThan implements ResultStore.
func (s *PGResults) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, embedsql.DeleteExpiredResults, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired results: %w", err)
	}
	return tag.RowsAffected(), nil
}
