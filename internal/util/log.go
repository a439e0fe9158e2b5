package util

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger returns a JSON logger on w at the given level, falling back to info.
func NewLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(level))
}

// NewConsoleLogger renders human-readable lines, used when the command is not in JSON mode.
func NewConsoleLogger(w io.Writer, level string, noColor bool) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, NoColor: noColor, TimeFormat: "15:04:05"}
	return zerolog.New(out).With().Timestamp().Logger().Level(parseLevel(level))
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return lvl
}
