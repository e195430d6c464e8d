// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a logger writing JSON to stderr, or human-readable console
// output in development. Unknown levels fall back to info.
func New(env, level string) zerolog.Logger {
	return NewWriter(os.Stderr, env, level)
}

// NewWriter is New with an explicit destination.
func NewWriter(out io.Writer, env, level string) zerolog.Logger {
	if env == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	return zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Logger()
}

func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
