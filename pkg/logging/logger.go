// Package logging configures structured zerolog output for the bridge
// client, its cache backends and the proxy command.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a textual log level as it appears in configuration files.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Component names used with NewLogger.
const (
	ComponentClient  = "ps-client"
	ComponentCache   = "ps-cache"
	ComponentSession = "ps-session"
	ComponentProxy   = "ps-proxy"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level written.
	Level LogLevel `yaml:"level"`

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool `yaml:"pretty"`

	// Output defaults to os.Stderr.
	Output io.Writer `yaml:"-"`
}

// DefaultConfig returns JSON output at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel maps a LogLevel to zerolog; unknown values fall back to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger derives a logger tagged with the given component from the
// global logger.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug:
//   - cache lookups (hit/miss, url, etag)
//   - conditional requests sent
//   - XML dispatch routing (content or error envelope)
//
// Info:
//   - entries stored in or replaced in the cache
//   - 304 Not Modified revalidations
//   - proxy startup/shutdown
//
// Warn:
//   - cache backend failures (the request falls back to the network)
//   - revalidations answered with an unexpected status
//   - stale sessions dropped before a request
//
// Error:
//   - connection failures
//   - configuration errors
//
// Context fields:
//   - url: canonical request URL
//   - method: HTTP method
//   - status_code: HTTP status code
//   - status: response status class
//   - etag: entity tag
//   - size: payload size in bytes
//   - backend: cache backend name
