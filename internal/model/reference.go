package model

// ReferenceCode is the canonical record for one billing code.
type ReferenceCode struct {
	Code        string `json:"code"`
	CodeType    string `json:"code_type"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

// ReferenceCodeRow mirrors the Parquet schema of a reference-code file.
type ReferenceCodeRow struct {
	Code        string  `parquet:"code"`
	CodeType    string  `parquet:"code_type"`
	Description string  `parquet:"description"`
	Category    *string `parquet:"category,optional"`
}

// ReferenceCopyColumns lists the reference_codes columns in COPY order.
var ReferenceCopyColumns = []string{"code", "code_type", "description", "category"}

// CopyValues returns the record's values in ReferenceCopyColumns order.
func (r *ReferenceCode) CopyValues() []any {
	var category *string
	if r.Category != "" {
		category = &r.Category
	}
	return []any{r.Code, r.CodeType, r.Description, category}
}
