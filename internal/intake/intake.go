// Package intake turns submitted documents into EXTRACTED bills.
//
// Two shapes are accepted: the extraction document produced upstream from
// a scanned bill (patient_info, hospital_info, medical_bill_info,
// icd_10_codes), and a bill already in canonical form.
package intake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/gyeh/billadj/internal/model"
	"github.com/gyeh/billadj/internal/normalize"
)

// Party is a person or organization block of the extraction document.
type Party struct {
	FirstName *string `json:"firstname"`
	LastName  *string `json:"lastname"`
	Name      *string `json:"name"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
	City      *string `json:"city"`
	State     *string `json:"state"`
	Zipcode   *string `json:"zipcode"`
}

// ExtractedItem is one billed line as extracted.
type ExtractedItem struct {
	Code        *string `json:"code"`
	Description *string `json:"description"`
	Bill        any     `json:"bill"`
	Quantity    *int    `json:"quantity"`
}

// ExtractedCode is one diagnosis as extracted.
type ExtractedCode struct {
	Code        *string `json:"code"`
	Description *string `json:"description"`
}

// BillInfo is the medical_bill_info block.
type BillInfo struct {
	Items          []ExtractedItem `json:"items"`
	Subtotal       any             `json:"subtotal"`
	Discount       any             `json:"discount"`
	TaxRatePercent any             `json:"tax_rate_percent"`
	TotalTax       any             `json:"total_tax"`
	BalanceDue     any             `json:"balance_due"`
}

// Extraction is the upstream extraction document. JobID, PatientID and
// ProviderID are optional envelope fields that override derived values.
type Extraction struct {
	JobID      string `json:"job_id"`
	PatientID  string `json:"patient_id"`
	ProviderID string `json:"provider_id"`

	PatientInfo     Party           `json:"patient_info"`
	HospitalInfo    Party           `json:"hospital_info"`
	MedicalBillInfo BillInfo        `json:"medical_bill_info"`
	ICD10Codes      []ExtractedCode `json:"icd_10_codes"`
}

// Decode accepts either document shape and returns an EXTRACTED bill with
// fresh identifiers where none were supplied.
func Decode(raw []byte) (*model.Bill, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("decode submission: %w", err)
	}
	if _, ok := keys["medical_bill_info"]; ok {
		return FromExtraction("", raw)
	}
	return DecodeBill(raw)
}

// FromExtraction converts an extraction document into a bill. An empty
// jobID falls back to the document's job_id, then to a new UUID. Amounts
// that cannot be read as money are returned as a *model.SchemaError.
func FromExtraction(jobID string, raw []byte) (*model.Bill, error) {
	var ex Extraction
	if err := json.Unmarshal(raw, &ex); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}

	b := &model.Bill{
		TableID:    uuid.NewString(),
		JobID:      firstNonEmpty(jobID, ex.JobID, uuid.NewString()),
		PatientID:  ex.PatientID,
		ProviderID: ex.ProviderID,
		Status:     model.StatusExtracted,
	}
	if b.PatientID == "" {
		p := ex.PatientInfo
		b.PatientID = normalize.StableID("pat", str(p.FirstName), str(p.LastName), zipOf(p))
	}
	if b.ProviderID == "" {
		h := ex.HospitalInfo
		b.ProviderID = normalize.StableID("prov", str(h.Name), zipOf(h))
	}

	// A missing or blank amount reads as zero; anything else that is not
	// money is reported.
	var problems []string
	amount := func(field string, v any) int64 {
		if sv, isStr := v.(string); isStr && strings.TrimSpace(sv) == "" {
			return 0
		}
		cents, ok := normalize.AnyToCents(v)
		if !ok && v != nil {
			problems = append(problems, fmt.Sprintf("%s: unparseable amount %v", field, v))
		}
		return cents
	}

	m := ex.MedicalBillInfo
	for i, it := range m.Items {
		code := normalize.Code(str(it.Code))
		if code == "" {
			code = normalize.NoCodePrefix + uuid.NewString()
		}
		li := model.LineItem{
			Code:        code,
			Description: strings.TrimSpace(str(it.Description)),
			BilledCents: amount(fmt.Sprintf("items[%d].bill", i), it.Bill),
			Quantity:    1,
		}
		if it.Quantity != nil {
			li.Quantity = *it.Quantity
		}
		b.Items = append(b.Items, li)
	}

	for _, dx := range ex.ICD10Codes {
		code := normalize.Code(str(dx.Code))
		if code == "" {
			// A description alone cannot be looked up or attributed.
			continue
		}
		b.Diagnoses = append(b.Diagnoses, model.Diagnosis{
			Code:        code,
			Description: strings.TrimSpace(str(dx.Description)),
		})
	}

	b.SubtotalCents = amount("subtotal", m.Subtotal)
	b.DiscountCents = amount("discount", m.Discount)
	b.TaxCents = amount("total_tax", m.TotalTax)
	b.TotalCents = amount("balance_due", m.BalanceDue)
	if len(problems) > 0 {
		return nil, &model.SchemaError{TableID: b.TableID, Problems: problems}
	}
	return b, nil
}

// DecodeBill reads a canonical bill, normalizing its codes and filling in
// missing identifiers.
func DecodeBill(raw []byte) (*model.Bill, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var b model.Bill
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("decode bill: %w", err)
	}
	if b.TableID == "" {
		b.TableID = uuid.NewString()
	}
	if b.JobID == "" {
		b.JobID = uuid.NewString()
	}
	b.Status = model.StatusExtracted
	b.FailureReason = ""
	for i := range b.Items {
		if code := normalize.Code(b.Items[i].Code); code != "" {
			b.Items[i].Code = code
		} else {
			b.Items[i].Code = normalize.NoCodePrefix + uuid.NewString()
		}
	}
	for i := range b.Diagnoses {
		b.Diagnoses[i].Code = normalize.Code(b.Diagnoses[i].Code)
	}
	return &b, nil
}

func zipOf(p Party) string {
	if z := strings.TrimSpace(str(p.Zipcode)); z != "" {
		return z
	}
	return normalize.ZipFromAddress(str(p.Address))
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
