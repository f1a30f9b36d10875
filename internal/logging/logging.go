package logging

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Setup returns an info-level logger in the requested format.
// format can be "text" (human-friendly console) or "json" (structured).
func Setup(format string) zerolog.Logger {
	log, _ := New(format, "info")
	return log
}

// New returns a logger tagged with the service name. An unknown level is
// reported and the logger falls back to info.
func New(format, level string) (zerolog.Logger, error) {
	var log zerolog.Logger
	if format == "text" {
		log = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	} else {
		log = zerolog.New(os.Stderr)
	}
	log = log.With().Timestamp().Str("service", "billadj").Logger()

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return log.Level(zerolog.InfoLevel), fmt.Errorf("unknown log level %q", level)
	}
	return log.Level(lvl), nil
}
