package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/billadj/internal/db"
	"github.com/gyeh/billadj/internal/exitcode"
	"github.com/gyeh/billadj/internal/refdata"
)

var refloadFile string

var refloadCmd = &cobra.Command{
	Use:   "refload",
	Short: "Bulk-load a reference-code Parquet file into Postgres",
	RunE:  runRefload,
}

func init() {
	refloadCmd.Flags().StringVar(&refloadFile, "file", "", "Path to reference-code Parquet file (required)")
	_ = refloadCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(refloadCmd)
}

func runRefload(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	if err := cfg.ValidateWithDSN(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}
	if _, err := os.Stat(refloadFile); err != nil {
		log.Error().Err(err).Msg("file not accessible")
		os.Exit(exitcode.UsageError)
	}

	pool, err := db.NewPool(ctx, cfg.DSN, db.PoolOptions{})
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.DBConnError)
	}
	defer pool.Close()

	summary, err := refdata.CopyParquet(ctx, pool, log, refloadFile)
	if err != nil {
		log.Error().Err(err).Msg("reference load failed")
		os.Exit(exitcode.LoadError)
	}

	fmt.Printf("Reference load complete: %d rows read, %d loaded, %d rejected (%.1fs)\n",
		summary.RowsRead, summary.RowsLoaded, summary.RowsRejected, summary.Duration.Seconds())
	return nil
}
