// Package logging sets up the process-wide zerolog logger and hands out
// per-component child loggers.
//
// Levels are used as follows across the storefront packages:
//
//	debug  router decisions, cache hit/miss, cart transitions, shared fetches
//	info   controller install/activate, orders placed, startup and shutdown
//	warn   retries, cache writes that failed while the request was served,
//	       cart or error log persistence failures, offline fallbacks
//	error  API requests that failed after retries, install failures
//
// Common fields: component, endpoint, status, error_class, partition,
// cache_key, attempt, backoff, item_id, order_number, step.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a configured minimum level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

var zerologLevels = map[LogLevel]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
}

// levelAliases maps accepted spellings from config files and env vars.
var levelAliases = map[string]LogLevel{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// ParseLevel reads a level from configuration. Unknown values give LevelInfo.
func ParseLevel(s string) LogLevel {
	if level, ok := levelAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return level
	}
	return LevelInfo
}

// Zerolog returns the zerolog level, defaulting to info.
func (l LogLevel) Zerolog() zerolog.Level {
	if level, ok := zerologLevels[ParseLevel(string(l))]; ok {
		return level
	}
	return zerolog.InfoLevel
}

// Config holds logger configuration.
type Config struct {
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Output defaults to os.Stderr when nil.
	Output io.Writer

	// Service, when set, is attached to every record.
	Service string
}

// DefaultConfig logs JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup installs the logger described by cfg as log.Logger, sets the global
// level and returns the logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level.Zerolog())

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}

	log.Logger = ctx.Logger()
	return log.Logger
}

// NewLogger derives a child of the global logger tagged with component.
// Call it after Setup; earlier loggers keep the previous output.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
