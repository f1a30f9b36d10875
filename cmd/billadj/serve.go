package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gyeh/billadj/internal/api"
	"github.com/gyeh/billadj/internal/db"
	"github.com/gyeh/billadj/internal/exitcode"
	"github.com/gyeh/billadj/internal/pipeline"
	"github.com/gyeh/billadj/internal/retention"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the pipeline workers, and the retention pruner",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, log, "serve")
	if err != nil {
		exitSetup(log, err)
	}
	defer d.Close()

	runner := pipeline.NewRunner(d.orchestrator(log), d.bills, cfg.Workers, 0, log)
	pruner := &retention.Pruner{
		Bills:     d.bills,
		Results:   d.results,
		Retention: cfg.Retention,
		ResultTTL: cfg.ResultTTL,
		Log:       log,
	}

	srv := &api.Server{Bills: d.bills, Results: d.results, Queue: runner, Log: log}
	if d.pool != nil {
		srv.Health = db.HealthHandler(d.pool)
	}
	e := srv.Echo()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })
	if cfg.Retention > 0 {
		g.Go(func() error { return pruner.Run(gctx) })
	}
	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Msg("http server listening")
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(e)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(exitcode.ServerError)
	}
	log.Info().Msg("shutdown complete")
	return nil
}

func shutdown(e *echo.Echo) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return e.Shutdown(ctx)
}
