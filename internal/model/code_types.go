package model

import "strings"

// CodeType represents one of the billing code systems a bill may carry.
type CodeType struct {
	Name  string // e.g. "CPT"
	Label string // oracle batch label, "CPT" for procedures and "ICD" for diagnoses
	Table string // reference table code_type value
}

var (
	CodeTypeCPT   = CodeType{Name: "CPT", Label: "CPT", Table: "cpt"}
	CodeTypeHCPCS = CodeType{Name: "HCPCS", Label: "CPT", Table: "hcpcs"}
	CodeTypeICD10 = CodeType{Name: "ICD-10", Label: "ICD", Table: "icd10"}
)

// AllCodeTypes lists the supported code types in canonical order.
var AllCodeTypes = []CodeType{CodeTypeCPT, CodeTypeHCPCS, CodeTypeICD10}

// Batch labels used to group oracle comparisons.
const (
	LabelProcedure = "CPT"
	LabelDiagnosis = "ICD"
)

// CodeTypeByName returns the CodeType for the given name or table value, or ok=false.
func CodeTypeByName(name string) (CodeType, bool) {
	for _, ct := range AllCodeTypes {
		if strings.EqualFold(ct.Name, name) || strings.EqualFold(ct.Table, name) {
			return ct, true
		}
	}
	return CodeType{}, false
}

// ProcedureCodeType guesses the procedure code system from the code shape:
// five digits (or four digits plus a letter) is CPT, a letter plus four
// digits is HCPCS Level II.
func ProcedureCodeType(code string) CodeType {
	if len(code) == 5 && code[0] >= 'A' && code[0] <= 'Z' {
		return CodeTypeHCPCS
	}
	return CodeTypeCPT
}
