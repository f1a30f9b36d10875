package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gyeh/billadj/internal/config"
	"github.com/gyeh/billadj/internal/logging"
)

var (
	cfg     *config.Config
	cfgPath string

	flagDSN       string
	flagLogFormat string
	flagRedisURL  string
)

var rootCmd = &cobra.Command{
	Use:          "billadj",
	Short:        "Medical bill validation and adjudication pipeline",
	Long:         "Validates extracted medical bills against reference code tables, checks that procedures are justified by diagnoses, and adjudicates them against the patient's policy.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		c, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		pf := cmd.Flags()
		if pf.Changed("dsn") {
			c.DSN = flagDSN
		}
		if pf.Changed("log-format") {
			c.LogFormat = flagLogFormat
		}
		if pf.Changed("redis-url") {
			c.RedisURL = flagRedisURL
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "Path to a YAML config file")
	pf.StringVar(&flagDSN, "dsn", "", "Postgres connection string (or set DATABASE_URL)")
	pf.StringVar(&flagLogFormat, "log-format", "text", "Log format: text or json")
	pf.StringVar(&flagRedisURL, "redis-url", "", "Redis URL for results and bill locks (or set REDIS_URL)")
}

// newLogger builds the process logger from cfg. Validate has already
// checked the level.
func newLogger() zerolog.Logger {
	log, _ := logging.New(cfg.LogFormat, cfg.LogLevel)
	return log
}
