package refdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gyeh/billadj/internal/model"
	embedsql "github.com/gyeh/billadj/internal/sql"
)

// PGStore reads reference codes from the reference_codes table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore returns a Postgres-backed Store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Lookup implements Store.
func (s *PGStore) Lookup(ctx context.Context, label, code string) (model.ReferenceCode, bool, error) {
	var rc model.ReferenceCode
	err := s.pool.QueryRow(ctx, embedsql.LookupReferenceCode, code, tablesFor(label)).
		Scan(&rc.Code, &rc.CodeType, &rc.Description, &rc.Category)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ReferenceCode{}, false, nil
	}
	if err != nil {
		return model.ReferenceCode{}, false, fmt.Errorf("lookup reference code %s: %w", code, err)
	}
	return rc, true, nil
}
