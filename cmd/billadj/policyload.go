package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/billadj/internal/db"
	"github.com/gyeh/billadj/internal/exitcode"
	"github.com/gyeh/billadj/internal/policy"
)

var policyDir string

var policyloadCmd = &cobra.Command{
	Use:   "policyload",
	Short: "Upsert every YAML policy document in a directory into Postgres",
	RunE:  runPolicyload,
}

func init() {
	policyloadCmd.Flags().StringVar(&policyDir, "dir", "", "Directory of policy YAML files (defaults to policy_dir)")
	rootCmd.AddCommand(policyloadCmd)
}

func runPolicyload(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	dir := policyDir
	if dir == "" {
		dir = cfg.PolicyDir
	}
	if dir == "" {
		log.Error().Msg("--dir or policy_dir is required")
		os.Exit(exitcode.UsageError)
	}
	if err := cfg.ValidateWithDSN(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	docs, err := policy.LoadDir(dir)
	if err != nil {
		log.Error().Err(err).Msg("failed to read policies")
		os.Exit(exitcode.ConfigError)
	}

	pool, err := db.NewPool(ctx, cfg.DSN, db.PoolOptions{})
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.DBConnError)
	}
	defer pool.Close()

	pg := policy.NewPGStore(pool)
	n := 0
	for _, p := range docs.All() {
		if err := pg.Put(ctx, p); err != nil {
			log.Error().Err(err).Str("policy_id", p.PolicyID).Msg("policy upsert failed")
			os.Exit(exitcode.LoadError)
		}
		n++
	}

	fmt.Printf("Policy load complete: %d policies from %s\n", n, dir)
	return nil
}
