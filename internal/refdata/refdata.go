// Package refdata looks up canonical billing codes.
package refdata

import (
	"context"

	"github.com/gyeh/billadj/internal/model"
)

// Store resolves a code to its reference record. Reference data is
// read-mostly and safe for concurrent lookups.
type Store interface {
	// Lookup finds code among the tables for label (model.LabelProcedure or
	// model.LabelDiagnosis). found is false on a miss; err is reserved for
	// store failures.
	Lookup(ctx context.Context, label, code string) (rc model.ReferenceCode, found bool, err error)
}

// tablesFor returns the reference code_type values searched for label, in
// preference order.
func tablesFor(label string) []string {
	if label == model.LabelDiagnosis {
		return []string{model.CodeTypeICD10.Table}
	}
	return []string{model.CodeTypeCPT.Table, model.CodeTypeHCPCS.Table}
}
