package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Bill is the aggregate one pipeline run owns. TableID addresses the whole
// graph; Items and Diagnoses keep their extracted order.
type Bill struct {
	TableID    string `json:"table_id" validate:"required"`
	JobID      string `json:"job_id" validate:"required"`
	PatientID  string `json:"patient_id" validate:"required"`
	ProviderID string `json:"provider_id"`

	Items     []LineItem  `json:"items" validate:"dive"`
	Diagnoses []Diagnosis `json:"diagnoses" validate:"dive"`

	SubtotalCents int64 `json:"subtotal_cents"`
	DiscountCents int64 `json:"discount_cents"`
	TaxCents      int64 `json:"tax_cents"`
	TotalCents    int64 `json:"total_cents"`

	Status        Status    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// LineItem is one billed procedure.
type LineItem struct {
	Code             string   `json:"code" validate:"required"`
	Description      string   `json:"description"`
	BilledCents      int64    `json:"billed_cents" validate:"gte=0"`
	Quantity         int      `json:"quantity" validate:"gte=0"`
	Modifiers        []string `json:"modifiers,omitempty"`
	AuthorizationRef string   `json:"authorization_ref,omitempty"`
}

// Diagnosis is one diagnosis code on the bill.
type Diagnosis struct {
	Code        string `json:"code" validate:"required"`
	Description string `json:"description"`
	Principal   bool   `json:"principal"`
}

// Units returns the item quantity, treating zero as a single unit.
func (li LineItem) Units() int {
	if li.Quantity <= 0 {
		return 1
	}
	return li.Quantity
}

// SchemaError reports that an extracted bill does not satisfy the bill schema.
type SchemaError struct {
	TableID  string
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("bill %s: %s", e.TableID, strings.Join(e.Problems, "; "))
}

var billValidate = validator.New()

// Validate checks the bill against its schema and returns a *SchemaError
// listing every violation.
func (b *Bill) Validate() error {
	var problems []string

	if err := billValidate.Struct(b); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate bill: %w", err)
		}
		for _, fe := range verrs {
			problems = append(problems, describeFieldError(fe))
		}
	}

	principals := 0
	for _, d := range b.Diagnoses {
		if d.Principal {
			principals++
		}
	}
	if principals > 1 {
		problems = append(problems, fmt.Sprintf("%d principal diagnoses (at most one allowed)", principals))
	}

	if len(problems) > 0 {
		return &SchemaError{TableID: b.TableID, Problems: problems}
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Bill.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gte":
		return fmt.Sprintf("%s must be >= %s (got %v)", field, fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}

// ProcedureCodes returns the line item codes in line order, without duplicates.
func (b *Bill) ProcedureCodes() []string {
	seen := make(map[string]bool, len(b.Items))
	var out []string
	for _, li := range b.Items {
		if seen[li.Code] {
			continue
		}
		seen[li.Code] = true
		out = append(out, li.Code)
	}
	return out
}

// BilledTotal sums the billed amount of every line item.
func (b *Bill) BilledTotal() int64 {
	var sum int64
	for _, li := range b.Items {
		sum += li.BilledCents
	}
	return sum
}
