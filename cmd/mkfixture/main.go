// mkfixture writes a small reference-code Parquet fixture.
// Without --in it writes a built-in seed set; with --in it samples up to
// --rows rows from a full reference file, spread evenly across code types.
// Usage: go run ./cmd/mkfixture --in testdata/reference.parquet --out testdata/reference-small.parquet --rows 300
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	goparquet "github.com/parquet-go/parquet-go"

	"github.com/gyeh/billadj/internal/model"
)

func strPtr(s string) *string { return &s }

var seed = []model.ReferenceCodeRow{
	{Code: "99213", CodeType: "cpt", Description: "Office or other outpatient visit for the evaluation and management of an established patient, low complexity", Category: strPtr("E/M")},
	{Code: "99214", CodeType: "cpt", Description: "Office or other outpatient visit for the evaluation and management of an established patient, moderate complexity", Category: strPtr("E/M")},
	{Code: "85025", CodeType: "cpt", Description: "Complete blood count (CBC) with automated differential WBC count", Category: strPtr("Pathology")},
	{Code: "80053", CodeType: "cpt", Description: "Comprehensive metabolic panel", Category: strPtr("Pathology")},
	{Code: "71046", CodeType: "cpt", Description: "Radiologic examination, chest; 2 views", Category: strPtr("Radiology")},
	{Code: "93000", CodeType: "cpt", Description: "Electrocardiogram, routine ECG with at least 12 leads; with interpretation and report", Category: strPtr("Medicine")},
	{Code: "36415", CodeType: "cpt", Description: "Collection of venous blood by venipuncture", Category: strPtr("Pathology")},
	{Code: "J1100", CodeType: "hcpcs", Description: "Injection, dexamethasone sodium phosphate, 1 mg", Category: strPtr("Drugs")},
	{Code: "A4206", CodeType: "hcpcs", Description: "Syringe with needle, sterile, 1 cc or less, each", Category: strPtr("Supplies")},
	{Code: "J209", CodeType: "icd10", Description: "Acute bronchitis, unspecified"},
	{Code: "E119", CodeType: "icd10", Description: "Type 2 diabetes mellitus without complications"},
	{Code: "I10", CodeType: "icd10", Description: "Essential (primary) hypertension"},
	{Code: "R079", CodeType: "icd10", Description: "Chest pain, unspecified"},
	{Code: "Z0000", CodeType: "icd10", Description: "Encounter for general adult medical examination without abnormal findings"},
}

func main() {
	in := flag.String("in", "", "input reference parquet to sample (optional)")
	out := flag.String("out", "testdata/reference-small.parquet", "output parquet")
	maxRows := flag.Int("rows", 300, "max rows to output when sampling")
	flag.Parse()

	rows := seed
	if *in != "" {
		var err error
		rows, err = sample(*in, *maxRows)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sample: %v\n", err)
			os.Exit(1)
		}
	}

	outFile, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output: %v\n", err)
		os.Exit(1)
	}
	defer outFile.Close()

	writer := goparquet.NewGenericWriter[model.ReferenceCodeRow](outFile)
	if _, err := writer.Write(rows); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
	if err := writer.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close writer: %v\n", err)
		os.Exit(1)
	}

	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.CodeType]++
	}
	fmt.Printf("Wrote %d rows to %s\n", len(rows), *out)
	fmt.Println("Code distribution:")
	for _, ct := range model.AllCodeTypes {
		if c := counts[ct.Table]; c > 0 {
			fmt.Printf("  %-10s %d\n", ct.Name, c)
		}
	}
}

// sample keeps the first rows of each code type, up to maxRows/len(types)
// per type, and fills any remainder from whatever is left.
func sample(path string, maxRows int) ([]model.ReferenceCodeRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := goparquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	reader := goparquet.NewGenericReader[model.ReferenceCodeRow](pf)
	defer reader.Close()

	perType := maxRows / len(model.AllCodeTypes)
	buckets := make(map[string][]model.ReferenceCodeRow)
	var rest []model.ReferenceCodeRow

	buf := make([]model.ReferenceCodeRow, 1024)
	total := 0
	for {
		n, readErr := reader.Read(buf)
		for i := 0; i < n; i++ {
			total++
			row := buf[i]
			ct, ok := model.CodeTypeByName(row.CodeType)
			switch {
			case ok && len(buckets[ct.Table]) < perType:
				buckets[ct.Table] = append(buckets[ct.Table], row)
			case len(rest) < maxRows:
				rest = append(rest, row)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("read: %w", readErr)
		}
	}
	fmt.Printf("Scanned %d rows\n", total)

	var selected []model.ReferenceCodeRow
	for _, ct := range model.AllCodeTypes {
		selected = append(selected, buckets[ct.Table]...)
	}
	for _, row := range rest {
		if len(selected) >= maxRows {
			break
		}
		selected = append(selected, row)
	}
	return selected, nil
}
