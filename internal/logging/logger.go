// Package logging configures the structured logger shared by every
// component of the node.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Format selects the log sink's output encoding.
type Format string

const (
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
)

// Config configures the root logger.
type Config struct {
	Level string // debug, info, warn, error, fatal
	Format Format
}

// New builds the root logger. Call once at process startup; derive
// per-component loggers from it with .With().Str("component", ...).Logger().
func New(cfg Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Format == FormatPretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	return zerolog.New(out).With().Timestamp().Str("service", "timeline-node").Logger()
}
