package model

import (
	"errors"
	"strings"
	"testing"
)

func validBill() *Bill {
	return &Bill{
		TableID:   "t-1",
		JobID:     "j-1",
		PatientID: "p-1",
		Items: []LineItem{
			{Code: "99213", Description: "Office visit", BilledCents: 15000, Quantity: 1},
		},
		Diagnoses: []Diagnosis{
			{Code: "J209", Description: "Acute bronchitis", Principal: true},
		},
	}
}

func TestBillValidate_OK(t *testing.T) {
	if err := validBill().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestBillValidate_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *Bill)
		want   string
	}{
		{"missing table id", func(b *Bill) { b.TableID = "" }, "TableID is required"},
		{"negative amount", func(b *Bill) { b.Items[0].BilledCents = -1 }, "Items[0].BilledCents"},
		{"missing item code", func(b *Bill) { b.Items[0].Code = "" }, "Items[0].Code is required"},
		{"two principals", func(b *Bill) {
			b.Diagnoses = append(b.Diagnoses, Diagnosis{Code: "R05", Principal: true})
		}, "2 principal diagnoses"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBill()
			tt.mutate(b)
			err := b.Validate()
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("expected *SchemaError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestLineItemUnits(t *testing.T) {
	if got := (LineItem{}).Units(); got != 1 {
		t.Errorf("zero quantity: got %d units, want 1", got)
	}
	if got := (LineItem{Quantity: 3}).Units(); got != 3 {
		t.Errorf("got %d units, want 3", got)
	}
}

func TestProcedureCodes_DedupKeepsOrder(t *testing.T) {
	b := &Bill{Items: []LineItem{{Code: "B"}, {Code: "A"}, {Code: "B"}}}
	got := b.ProcedureCodes()
	if len(got) != 2 || got[0] != "B" || got[1] != "A" {
		t.Errorf("ProcedureCodes = %v", got)
	}
}

func TestStatusRankAndTerminal(t *testing.T) {
	if !StatusAdjudicated.IsTerminal() || !StatusValidationFailed.IsTerminal() {
		t.Error("expected terminal statuses")
	}
	if StatusValidated.IsTerminal() {
		t.Error("VALIDATED is not terminal")
	}
	if StatusValidated.Rank() <= StatusValidating.Rank() {
		t.Error("VALIDATED must rank after VALIDATING")
	}
	if _, ok := ParseStatus("BOGUS"); ok {
		t.Error("ParseStatus accepted unknown status")
	}
}

func TestPolicyNetworkAndCoverage(t *testing.T) {
	p := &Policy{
		DefaultNetwork:    InNetwork,
		ProviderNetwork:   map[string]string{"prov-x": OutOfNetwork},
		CoveredProcedures: []string{"99213"},
		Exclusions:        []string{"99213"},
	}
	if p.NetworkFor("prov-x") != OutOfNetwork {
		t.Error("expected out-of-network for prov-x")
	}
	if p.NetworkFor("other") != InNetwork {
		t.Error("expected default network")
	}
	if !p.Excludes("99213") || p.Covers("12345") {
		t.Error("unexpected coverage answers")
	}
	if !(&Policy{}).Covers("anything") {
		t.Error("empty covered set should cover everything")
	}
}

func TestProcedureCodeType(t *testing.T) {
	if ProcedureCodeType("J1100") != CodeTypeHCPCS {
		t.Error("J1100 should be HCPCS")
	}
	if ProcedureCodeType("99213") != CodeTypeCPT {
		t.Error("99213 should be CPT")
	}
}
