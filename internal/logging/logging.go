// Package logging builds the structured logger shared by the CLI and the pipeline.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config contains logger configuration options.
type Config struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string

	// Format is the output format (json, console).
	Format string

	// Output is the destination. Nil means stderr, keeping stdout for command results.
	Output io.Writer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
	}
}

// New creates a zerolog logger based on configuration.
func New(cfg Config) zerolog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if strings.ToLower(cfg.Format) == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.Kitchen,
		}
	}

	return zerolog.New(output).
		With().Timestamp().Logger().
		Level(ParseLevel(cfg.Level))
}

// ParseLevel converts a string log level to zerolog.Level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// WithEntity adds the mashed entity to a logger.
func WithEntity(logger zerolog.Logger, uri string) zerolog.Logger {
	return logger.With().Str("entity", uri).Logger()
}

// WithRun adds the run ID to a logger.
func WithRun(logger zerolog.Logger, runID string) zerolog.Logger {
	return logger.With().Str("run_id", runID).Logger()
}
