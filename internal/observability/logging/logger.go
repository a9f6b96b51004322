// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // RFC3339, Unix, etc.
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Logger returns the service-wide logger.
func Logger() zerolog.Logger {
	return log.Logger
}

// WithRun returns a logger with run context.
func WithRun(runId string) zerolog.Logger {
	return log.With().
		Str("runId", runId).
		Logger()
}

// WithChunk returns a logger with chunk context.
func WithChunk(runId string, chunkIndex int) zerolog.Logger {
	return log.With().
		Str("runId", runId).
		Int("chunkIndex", chunkIndex).
		Logger()
}

// WithBackend returns a logger with a transcription attempt context.
func WithBackend(runId string, chunkIndex int, backend string) zerolog.Logger {
	return log.With().
		Str("runId", runId).
		Int("chunkIndex", chunkIndex).
		Str("backend", backend).
		Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}
