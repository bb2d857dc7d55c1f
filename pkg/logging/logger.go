// Package logging configures the process-wide zerolog logger and hands out
// component loggers for the cache, rate limiter, client and loader.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Environment variables read by FromEnv.
const (
	EnvLevel  = "LOG_LEVEL"
	EnvPretty = "LOG_PRETTY"
)

// Config holds logger configuration.
type Config struct {
	Level LogLevel `json:"level"`

	// Pretty switches from JSON lines to console output.
	Pretty bool `json:"pretty"`

	Output io.Writer `json:"-"`
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// FromEnv overlays LOG_LEVEL and LOG_PRETTY onto cfg. Unset or unparsable
// values leave the field unchanged.
func FromEnv(cfg Config, getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvLevel)); v != "" {
		cfg.Level = LogLevel(strings.ToLower(v))
	}
	if v := getenv(EnvPretty); v != "" {
		if pretty, err := strconv.ParseBool(v); err == nil {
			cfg.Pretty = pretty
		}
	}
	return cfg
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
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

// NewLogger creates a logger tagged with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Component returns a pointer to a component logger, suitable for the
// Logger fields of the package configs.
func Component(component string) *zerolog.Logger {
	logger := NewLogger(component)
	return &logger
}

// Level guidelines:
//
// Debug: cache hit/miss, conditional requests, dropped draft items, each
// page fetched and each reveal.
//
// Info: initial page loaded, criteria changes, server startup/shutdown.
//
// Warn: entity resolution failures, rate limit throttling, cache errors,
// filter fields of the wrong shape.
//
// Error: initial load failures, critical rate limit blocks, configuration
// errors.
//
// Common fields: component, collection, endpoint, offset, limit, status,
// error_class, duration, etag.
