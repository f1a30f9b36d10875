package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/billadj/internal/exitcode"
	"github.com/gyeh/billadj/internal/intake"
	"github.com/gyeh/billadj/internal/model"
	"github.com/gyeh/billadj/internal/normalize"
	"github.com/gyeh/billadj/internal/parquetread"
)

var (
	planBill      string
	planReference string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Dry-run checks of a bill document or reference file (no writes, no oracle calls)",
	RunE:  runPlan,
}

func init() {
	f := planCmd.Flags()
	f.StringVar(&planBill, "bill", "", "Path to an extraction or canonical bill JSON file")
	f.StringVar(&planReference, "reference", "", "Path to a reference-code Parquet file")
	planCmd.MarkFlagsOneRequired("bill", "reference")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	log := newLogger()

	if planReference != "" {
		if err := planReferenceFile(planReference); err != nil {
			log.Error().Err(err).Msg("reference check failed")
			os.Exit(exitcode.ConfigError)
		}
	}
	if planBill != "" {
		if err := planBillFile(planBill); err != nil {
			log.Error().Err(err).Msg("bill check failed")
			os.Exit(exitcode.BillFailed)
		}
	}
	return nil
}

func planReferenceFile(path string) error {
	sha, err := normalize.FileHash(path)
	if err != nil {
		return err
	}
	reader, err := parquetread.Open(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	byType := make(map[string]int64)
	st, err := reader.Each(func(rc model.ReferenceCode) error {
		byType[rc.CodeType]++
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Println("=== billadj plan: reference ===")
	fmt.Printf("File:       %s\n", path)
	fmt.Printf("SHA-256:    %s\n", sha)
	fmt.Printf("Total rows: %d\n", reader.NumRows())
	fmt.Printf("Rejected:   %d\n", st.RowsRejected)
	for _, ct := range model.AllCodeTypes {
		if n := byType[ct.Table]; n > 0 {
			fmt.Printf("  %-10s %d codes\n", ct.Name, n)
		}
	}
	fmt.Println("Schema validation: OK")
	return nil
}

func planBillFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read bill: %w", err)
	}
	b, err := intake.Decode(raw)
	if err != nil {
		return err
	}

	fmt.Println("=== billadj plan: bill ===")
	fmt.Printf("File:       %s\n", path)
	fmt.Printf("Patient:    %s\n", b.PatientID)
	fmt.Printf("Provider:   %s\n", b.ProviderID)
	fmt.Printf("Line items: %d (%d distinct codes)\n", len(b.Items), len(b.ProcedureCodes()))
	fmt.Printf("Diagnoses:  %d\n", len(b.Diagnoses))
	fmt.Printf("Billed:     %s (stated total %s)\n", normalize.FormatCents(b.BilledTotal()), normalize.FormatCents(b.TotalCents))
	for i, li := range b.Items {
		code := li.Code
		if normalize.IsPlaceholderCode(code) {
			code = "(none)"
		}
		fmt.Printf("  %2d  %-8s %10s  %s\n", i+1, code, normalize.FormatCents(li.BilledCents), li.Description)
	}

	if err := b.Validate(); err != nil {
		var se *model.SchemaError
		if errors.As(err, &se) {
			fmt.Println("Schema validation: FAILED")
			for _, p := range se.Problems {
				fmt.Printf("  - %s\n", p)
			}
		}
		return err
	}
	fmt.Println("Schema validation: OK")
	return nil
}
