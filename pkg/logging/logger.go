// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Service is added to every entry when set.
	Service string

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

// ParseLevel converts a level name to a zerolog level. Unknown names select info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a logger for component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ViewLogger creates a logger for component working on the named list view.
func ViewLogger(component, view string) zerolog.Logger {
	return log.With().Str("component", component).Str("view", view).Logger()
}

// Log Level Guidelines:
//
// Debug: page traffic
//   - Cache hits and stores (page cache and Redis tier)
//   - Stale completions discarded after a newer request
//   - Prefetched pages
//
// Info: lifecycle
//   - Completed queries with their record count
//   - Server startup/shutdown, store connections
//
// Warn: degraded but running
//   - Failed page or count fetches (the previous page stays visible)
//   - Redis errors (the fetch falls through to the source)
//   - Record API retries
//
// Error: the process cannot do its job
//   - Configuration errors
//   - Store or server startup failures
//
// Context Fields:
//   - component: loader, record-client, remote-cache, pager-proxy
//   - view: list view name
//   - page, page_size: page identity
//   - generation: reset counter of a loader
//   - collection: remote collection or table
//   - error_class: client, server, rate_limit, network
