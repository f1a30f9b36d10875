package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gyeh/billadj/internal/model"
	embedsql "github.com/gyeh/billadj/internal/sql"
)

// PGStore keeps policy documents as jsonb in the policies table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore returns a Postgres-backed Store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Active implements Store.
func (s *PGStore) Active(ctx context.Context, patientID, providerID string) (*model.Policy, error) {
	for _, key := range []string{patientID, WildcardPatient} {
		var doc []byte
		err := s.pool.QueryRow(ctx, embedsql.GetPolicy, key).Scan(&doc)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get policy for %s: %w", patientID, err)
		}
		var p model.Policy
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, fmt.Errorf("decode policy for %s: %w", patientID, err)
		}
		return &p, nil
	}
	return nil, &NotFoundError{PatientID: patientID}
}

// Put upserts p keyed by its patient.
func (s *PGStore) Put(ctx context.Context, p *model.Policy) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	if _, err := s.pool.Exec(ctx, embedsql.UpsertPolicy, p.PatientID, p.PolicyID, doc); err != nil {
		return fmt.Errorf("upsert policy %s: %w", p.PolicyID, err)
	}
	return nil
}
