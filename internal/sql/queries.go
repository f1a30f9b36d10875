package sql

import (
	"embed"
)

// Migrations holds the schema DDL applied by db.ApplyMigrations.
//
//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed queries/lookup_reference_code.sql
var LookupReferenceCode string

//go:embed queries/get_policy.sql
var GetPolicy string

//go:embed queries/upsert_policy.sql
var UpsertPolicy string

//go:embed queries/insert_bill.sql
var InsertBill string

//go:embed queries/insert_bill_item.sql
var InsertBillItem string

//go:embed queries/insert_bill_diagnosis.sql
var InsertBillDiagnosis string

//go:embed queries/get_bill.sql
var GetBill string

//go:embed queries/get_bill_items.sql
var GetBillItems string

//go:embed queries/get_bill_diagnoses.sql
var GetBillDiagnoses string

//go:embed queries/transition_bill.sql
var TransitionBill string

//go:embed queries/insert_transition.sql
var InsertTransition string

//go:embed queries/upsert_stage_result.sql
var UpsertStageResult string

//go:embed queries/get_stage_result.sql
var GetStageResult string

//go:embed queries/delete_bill_temporary.sql
var DeleteBillTemporary string

//go:embed queries/list_expired_bills.sql
var ListExpiredBills string

//go:embed queries/list_bills_by_status.sql
var ListBillsByStatus string

//go:embed queries/insert_result.sql
var InsertResult string

//go:embed queries/get_result.sql
var GetResult string

//go:embed queries/delete_result.sql
var DeleteResult string

//go:embed queries/delete_expired_results.sql
var DeleteExpiredResults string
