package utils

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the process-wide structured logger: JSON to stdout,
// level from configuration. An unknown level falls back to info.
func NewLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}
