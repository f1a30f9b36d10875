package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gyeh/billadj/internal/exitcode"
	"github.com/gyeh/billadj/internal/intake"
	"github.com/gyeh/billadj/internal/pipeline"
)

var (
	processFile   string
	processResume string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one bill through the full pipeline and print its result",
	RunE:  runProcess,
}

func init() {
	f := processCmd.Flags()
	f.StringVar(&processFile, "file", "", "Path to an extraction or canonical bill JSON file")
	f.StringVar(&processResume, "table-id", "", "Resume an already stored bill instead of submitting a file")
	processCmd.MarkFlagsOneRequired("file", "table-id")
	processCmd.MarkFlagsMutuallyExclusive("file", "table-id")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, log, "process")
	if err != nil {
		exitSetup(log, err)
	}
	defer d.Close()

	tableID := processResume
	if processFile != "" {
		raw, err := os.ReadFile(processFile)
		if err != nil {
			log.Error().Err(err).Msg("failed to read bill")
			os.Exit(exitcode.UsageError)
		}
		b, err := intake.Decode(raw)
		if err != nil {
			log.Error().Err(err).Msg("failed to decode bill")
			os.Exit(exitcode.BillFailed)
		}
		if err := d.bills.Create(ctx, b); err != nil {
			log.Error().Err(err).Msg("failed to store bill")
			os.Exit(exitcode.PipelineError)
		}
		tableID = b.TableID
		log.Info().Str("table_id", b.TableID).Str("job_id", b.JobID).Msg("bill submitted")
	}

	res, err := d.orchestrator(log).Process(ctx, tableID)
	if err != nil {
		var pe *pipeline.PipelineError
		if errors.Is(err, pipeline.ErrResultGone) {
			log.Error().Err(err).Str("table_id", tableID).Msg("bill is terminal but its result was consumed or expired")
		} else if errors.As(err, &pe) {
			log.Error().Err(pe.Err).Str("phase", pe.Phase).Str("table_id", tableID).Msg("pipeline failed; bill can be resumed")
		} else {
			log.Error().Err(err).Msg("pipeline failed")
		}
		os.Exit(exitcode.PipelineError)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if res.Status.IsFailure() {
		os.Exit(exitcode.BillFailed)
	}
	return nil
}
