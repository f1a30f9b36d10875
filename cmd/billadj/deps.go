package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gyeh/billadj/internal/db"
	"github.com/gyeh/billadj/internal/justify"
	"github.com/gyeh/billadj/internal/metrics"
	"github.com/gyeh/billadj/internal/oracle"
	"github.com/gyeh/billadj/internal/pipeline"
	"github.com/gyeh/billadj/internal/policy"
	"github.com/gyeh/billadj/internal/refdata"
	"github.com/gyeh/billadj/internal/store"
	"github.com/gyeh/billadj/internal/validate"
)

// lockTTL bounds how long a crashed worker can hold a bill lease in Redis.
// Live holders renew the lease.
const lockTTL = 10 * time.Minute

// deps is everything a pipeline process needs, built from cfg.
type deps struct {
	pool *pgxpool.Pool
	rdb  *redis.Client

	bills    store.BillStore
	results  store.ResultStore
	locker   store.Locker
	refs     refdata.Store
	policies policy.Store
	oracle   oracle.Oracle
}

func (d *deps) Close() {
	if d.rdb != nil {
		d.rdb.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
}

// buildDeps picks Postgres when a DSN is configured and in-memory stores
// otherwise. Redis, when configured, holds results and bill locks.
func buildDeps(ctx context.Context, log zerolog.Logger, role string) (*deps, error) {
	d := &deps{}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	if cfg.DSN != "" {
		pool, err := db.NewPool(ctx, cfg.DSN, db.PoolOptions{
			MaxConns:         int32(cfg.Workers*2 + 4),
			MinConns:         2,
			StatementTimeout: 30 * time.Second,
			ApplicationName:  "billadj-" + role,
		})
		if err != nil {
			return nil, &depError{kind: "database", err: err}
		}
		d.pool = pool
		d.bills = store.NewPGBills(pool)
		d.results = store.NewPGResults(pool)
	} else {
		log.Warn().Msg("no DSN configured; bills and results are kept in memory")
		d.bills = store.NewMemoryBills()
		d.results = store.NewMemoryResults()
	}
	d.locker = store.NewLocalLocker()

	if cfg.RedisURL != "" {
		rdb, err := store.NewRedisClient(ctx, store.RedisConfig{URL: cfg.RedisURL})
		if err != nil {
			return nil, &depError{kind: "redis", err: err}
		}
		d.rdb = rdb
		d.results = store.NewRedisResults(rdb, "", cfg.ResultTTL)
		d.locker = store.NewRedisLocker(rdb, "", lockTTL, log)
	}

	switch {
	case cfg.ReferenceParquet != "":
		refs, st, err := refdata.LoadParquet(cfg.ReferenceParquet)
		if err != nil {
			return nil, &depError{kind: "config", err: err}
		}
		log.Info().Int64("rows_read", st.RowsRead).Int64("rows_rejected", st.RowsRejected).Int("codes", refs.Len()).Msg("reference table loaded")
		d.refs = refs
	case d.pool != nil:
		d.refs = refdata.NewPGStore(d.pool)
	default:
		return nil, &depError{kind: "config", err: fmt.Errorf("no reference data: set reference_parquet or --dsn")}
	}

	switch {
	case cfg.PolicyDir != "":
		pols, err := policy.LoadDir(cfg.PolicyDir)
		if err != nil {
			return nil, &depError{kind: "config", err: err}
		}
		log.Info().Int("policies", len(pols.All())).Msg("policies loaded")
		d.policies = pols
	case d.pool != nil:
		d.policies = policy.NewPGStore(d.pool)
	default:
		return nil, &depError{kind: "config", err: fmt.Errorf("no policies: set policy_dir or --dsn")}
	}

	o, err := oracle.NewOpenAI(oracle.OpenAIConfig{
		APIKey:  cfg.OpenAIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
		RPS:     cfg.OracleRPS,
	}, log)
	if err != nil {
		return nil, &depError{kind: "config", err: err}
	}
	d.oracle = o

	ok = true
	return d, nil
}

// orchestrator wires the stage handlers over d.
func (d *deps) orchestrator(log zerolog.Logger) *pipeline.Orchestrator {
	rc := metrics.WithRetryHook(cfg.RetryConfig(), log)
	return &pipeline.Orchestrator{
		Bills:   d.bills,
		Results: d.results,
		Locker:  d.locker,
		Validation: &pipeline.ValidationStage{
			Bills: d.bills,
			Validator: &validate.Validator{
				Refs:      d.refs,
				Oracle:    d.oracle,
				Retry:     rc,
				ChunkSize: cfg.ChunkSize,
				Log:       log,
			},
			Checker: &justify.Checker{Oracle: d.oracle, Retry: rc, Log: log},
			Log:     log,
		},
		Adjudication: &pipeline.AdjudicationStage{
			Bills:    d.bills,
			Policies: d.policies,
			Retry:    rc,
			Log:      log,
		},
		Log: log,
	}
}

// depError tags a setup failure with the exit code family it maps to.
type depError struct {
	kind string
	err  error
}

func (e *depError) Error() string { return e.kind + ": " + e.err.Error() }
func (e *depError) Unwrap() error { return e.err }
