package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns the application logger: JSON to stdout in production,
// human-readable console output everywhere else.
func New(environment string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	if environment == "production" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(writer).With().Timestamp().Logger().Level(zerolog.DebugLevel)
}
