package main

import (
	"errors"
	"os"

	"github.com/rs/zerolog"

	"github.com/gyeh/billadj/internal/exitcode"
)

// exitSetup logs a buildDeps failure and exits with the matching code.
func exitSetup(log zerolog.Logger, err error) {
	log.Error().Err(err).Msg("setup failed")
	var de *depError
	if errors.As(err, &de) {
		switch de.kind {
		case "database":
			os.Exit(exitcode.DBConnError)
		case "redis":
			os.Exit(exitcode.ServerError)
		}
	}
	os.Exit(exitcode.ConfigError)
}
