package store_test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	goparquet "github.com/parquet-go/parquet-go"

	"github.com/gyeh/billadj/internal/db"
	"github.com/gyeh/billadj/internal/logging"
	"github.com/gyeh/billadj/internal/model"
	"github.com/gyeh/billadj/internal/policy"
	"github.com/gyeh/billadj/internal/refdata"
	"github.com/gyeh/billadj/internal/store"
)

const (
	testPort     = 15432
	testDB       = "billtest"
	testUser     = "postgres"
	testPassword = "postgres"
)

var (
	testDSN string
	pg      *embeddedpostgres.EmbeddedPostgres
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	testDSN = fmt.Sprintf("postgresql://%s:%s@localhost:%d/%s?sslmode=disable",
		testUser, testPassword, testPort, testDB)

	pg = embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(uint32(testPort)).
			Database(testDB).
			Username(testUser).
			Password(testPassword).
			Version(embeddedpostgres.V16).
			StartTimeout(30 * time.Second),
	)

	if err := pg.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start embedded postgres: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := pg.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to stop embedded postgres: %v\n", err)
	}

	os.Exit(code)
}

// setupDB connects, drops every table and reapplies migrations.
func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in -short mode")
	}
	ctx := context.Background()

	pool, err := db.NewPool(ctx, testDSN, db.PoolOptions{MaxConns: 8})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	for _, table := range []string{"results", "bill_transitions", "bill_stage_results",
		"bill_diagnoses", "bill_items", "bills", "policies", "reference_codes", "schema_migrations"} {
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			t.Fatalf("drop %s: %v", table, err)
		}
	}

	log := logging.Setup("text")
	if err := db.ApplyMigrations(ctx, pool, log); err != nil {
		pool.Close()
		t.Fatalf("migrations: %v", err)
	}

	t.Cleanup(func() { pool.Close() })
	return pool
}

func testBill(id string) *model.Bill {
	return &model.Bill{
		TableID:    id,
		JobID:      "job-" + id,
		PatientID:  "pat-1",
		ProviderID: "prov-1",
		Items: []model.LineItem{
			{Code: "99213", Description: "Office visit", BilledCents: 15000, Quantity: 1},
			{Code: "71046", Description: "Chest x-ray", BilledCents: 22050, Quantity: 2, Modifiers: []string{"26"}},
		},
		Diagnoses: []model.Diagnosis{
			{Code: "J209", Description: "Acute bronchitis", Principal: true},
		},
		TotalCents: 37050,
	}
}

func TestPGBills_Lifecycle(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	s := store.NewPGBills(pool)

	if err := s.Create(ctx, testBill("t1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, testBill("t1")); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("duplicate Create = %v, want ErrAlreadyExists", err)
	}

	b, err := s.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if b.Status != model.StatusExtracted {
		t.Errorf("status = %s, want EXTRACTED", b.Status)
	}
	if len(b.Items) != 2 || b.Items[1].Quantity != 2 || b.Items[1].Modifiers[0] != "26" {
		t.Errorf("items round trip: %+v", b.Items)
	}
	if len(b.Diagnoses) != 1 || !b.Diagnoses[0].Principal {
		t.Errorf("diagnoses round trip: %+v", b.Diagnoses)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}

	if err := s.Transition(ctx, "t1", model.StatusExtracted, model.StatusValidating, ""); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := s.Transition(ctx, "t1", model.StatusExtracted, model.StatusValidating, ""); !errors.Is(err, store.ErrStaleStatus) {
		t.Fatalf("stale Transition = %v, want ErrStaleStatus", err)
	}

	var audits int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM bill_transitions WHERE table_id = $1", "t1").Scan(&audits); err != nil {
		t.Fatalf("count transitions: %v", err)
	}
	if audits != 1 {
		t.Errorf("audit rows = %d, want 1", audits)
	}

	rec := &model.StageRecord{
		Validation: &model.ValidationReport{TableID: "t1", AllValid: true},
		Justification: &model.JustificationResult{
			Procedures: []model.ProcedureJustification{{Code: "99213", Justified: true, SupportingDiagnoses: []string{"J209"}}},
		},
	}
	if err := s.SaveStage(ctx, "t1", rec); err != nil {
		t.Fatalf("SaveStage: %v", err)
	}
	got, err := s.LoadStage(ctx, "t1")
	if err != nil {
		t.Fatalf("LoadStage: %v", err)
	}
	if !got.AllValid() || got.Justification.Procedures[0].SupportingDiagnoses[0] != "J209" {
		t.Errorf("stage round trip: %+v", got)
	}

	active, err := s.ListByStatus(ctx, store.ActiveStatuses, 10)
	if err != nil || len(active) != 1 || active[0] != "t1" {
		t.Errorf("ListByStatus = %v, %v", active, err)
	}
}

func TestPGBills_ExpiryDeletesTemporaryOnly(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	s := store.NewPGBills(pool)

	if err := s.Create(ctx, testBill("t1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Transition(ctx, "t1", model.StatusExtracted, model.StatusValidationFailed, "no codes"); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := s.SaveStage(ctx, "t1", &model.StageRecord{}); err != nil {
		t.Fatalf("SaveStage: %v", err)
	}

	ids, err := s.ListExpired(ctx, time.Now().Add(time.Minute), 10)
	if err != nil || len(ids) != 1 {
		t.Fatalf("ListExpired = %v, %v", ids, err)
	}
	if err := s.DeleteTemporary(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTemporary: %v", err)
	}

	b, err := s.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get after cleanup: %v", err)
	}
	if b.Status != model.StatusValidationFailed || b.FailureReason != "no codes" {
		t.Errorf("terminal state lost: %s %q", b.Status, b.FailureReason)
	}
	if len(b.Items) != 0 || len(b.Diagnoses) != 0 {
		t.Errorf("temporary rows survived cleanup")
	}
	if _, err := s.LoadStage(ctx, "t1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("LoadStage after cleanup = %v, want ErrNotFound", err)
	}
	ids, _ = s.ListExpired(ctx, time.Now().Add(time.Minute), 10)
	if len(ids) != 0 {
		t.Errorf("cleaned bill still listed: %v", ids)
	}
}

func TestPGResults_SetOnce(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	s := store.NewPGResults(pool)

	if _, err := s.Get(ctx, "job-1"); !errors.Is(err, store.ErrNotReady) {
		t.Fatalf("Get before write = %v, want ErrNotReady", err)
	}

	first := &model.Result{
		JobID: "job-1", TableID: "t1", Status: model.StatusAdjudicated, AllValid: true,
		Totals:      &model.Totals{BilledCents: 10000, PatientCents: 2000, InsuranceCents: 8000},
		CompletedAt: time.Now().Add(-48 * time.Hour),
	}
	if err := s.PutOnce(ctx, first); err != nil {
		t.Fatalf("PutOnce: %v", err)
	}
	second := &model.Result{JobID: "job-1", TableID: "t1", Status: model.StatusAdjudicationFailed}
	if err := s.PutOnce(ctx, second); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("second PutOnce = %v, want ErrAlreadyExists", err)
	}

	r, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Status != model.StatusAdjudicated || r.Totals.InsuranceCents != 8000 {
		t.Errorf("result = %+v", r)
	}

	n, err := s.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("DeleteOlderThan = %d, %v", n, err)
	}
	if _, err := s.Get(ctx, "job-1"); !errors.Is(err, store.ErrNotReady) {
		t.Errorf("Get after prune = %v, want ErrNotReady", err)
	}
}

func TestRefdata_CopyParquetAndLookup(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "ref.parquet")
	rows := []model.ReferenceCodeRow{
		{Code: "99213", CodeType: "CPT", Description: "Office or other outpatient visit"},
		{Code: "J1100", CodeType: "HCPCS", Description: "Injection, dexamethasone sodium phosphate"},
		{Code: "J20.9", CodeType: "ICD-10", Description: "Acute bronchitis, unspecified"},
		{Code: "", CodeType: "CPT", Description: "rejected: no code"},
	}
	if err := goparquet.WriteFile(path, rows); err != nil {
		t.Fatalf("write parquet: %v", err)
	}

	summary, err := refdata.CopyParquet(ctx, pool, logging.Setup("text"), path)
	if err != nil {
		t.Fatalf("CopyParquet: %v", err)
	}
	if summary.RowsLoaded != 3 || summary.RowsRejected != 1 {
		t.Errorf("summary loaded=%d rejected=%d, want 3/1", summary.RowsLoaded, summary.RowsRejected)
	}

	// A second load of the same file upserts instead of duplicating.
	if _, err := refdata.CopyParquet(ctx, pool, logging.Setup("text"), path); err != nil {
		t.Fatalf("reload: %v", err)
	}
	var n int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM reference_codes").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("reference rows = %d, want 3", n)
	}

	refs := refdata.NewPGStore(pool)
	rc, found, err := refs.Lookup(ctx, model.LabelProcedure, "J1100")
	if err != nil || !found {
		t.Fatalf("Lookup J1100 = %v, %v", found, err)
	}
	if rc.CodeType != model.CodeTypeHCPCS.Table {
		t.Errorf("code type = %q", rc.CodeType)
	}
	if _, found, _ := refs.Lookup(ctx, model.LabelDiagnosis, "J209"); !found {
		t.Error("ICD lookup by normalized code failed")
	}
	if _, found, _ := refs.Lookup(ctx, model.LabelDiagnosis, "99213"); found {
		t.Error("procedure code found in diagnosis table")
	}
}

func TestPolicy_PGStore(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	s := policy.NewPGStore(pool)

	if _, err := s.Active(ctx, "pat-1", "prov-1"); err == nil {
		t.Fatal("expected not found before any policy exists")
	}

	fallback := &model.Policy{PolicyID: "pol-default", PatientID: policy.WildcardPatient, CoinsuranceBPS: 3000}
	own := &model.Policy{
		PolicyID: "pol-1", PatientID: "pat-1", CoinsuranceBPS: 2000,
		DeductibleRemainingCents: 50000,
		ProcedureLimits:          map[string]int{"97110": 12},
	}
	for _, p := range []*model.Policy{fallback, own} {
		if err := s.Put(ctx, p); err != nil {
			t.Fatalf("Put %s: %v", p.PolicyID, err)
		}
	}

	p, err := s.Active(ctx, "pat-1", "prov-1")
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if p.PolicyID != "pol-1" || p.ProcedureLimits["97110"] != 12 || p.DeductibleRemainingCents != 50000 {
		t.Errorf("policy = %+v", p)
	}

	p, err = s.Active(ctx, "pat-2", "prov-1")
	if err != nil || p.PolicyID != "pol-default" {
		t.Errorf("wildcard fallback = %+v, %v", p, err)
	}
}

func TestMigrations_RecordedOnce(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	if err := db.ApplyMigrations(ctx, pool, logging.Setup("text")); err != nil {
		t.Fatalf("reapply: %v", err)
	}
	var n int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("schema_migrations rows = %d, want 3", n)
	}
}
