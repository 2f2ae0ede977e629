// Package logging builds the leveled loggers used across the server.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/pion/logging"
)

// ParseLevel maps a LOG_LEVEL value to a pion log level. Unknown values fall
// back to info.
func ParseLevel(s string) logging.LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "off", "none":
		return logging.LogLevelDisabled
	case "error":
		return logging.LogLevelError
	case "warn", "warning":
		return logging.LogLevelWarn
	case "debug":
		return logging.LogLevelDebug
	case "trace":
		return logging.LogLevelTrace
	default:
		return logging.LogLevelInfo
	}
}

// NewFactory returns a logger factory writing to w (stderr when nil) at the
// given level for every scope.
func NewFactory(level string, w io.Writer) *logging.DefaultLoggerFactory {
	if w == nil {
		w = os.Stderr
	}
	return &logging.DefaultLoggerFactory{
		Writer:          w,
		DefaultLogLevel: ParseLevel(level),
		ScopeLevels:     map[string]logging.LogLevel{},
	}
}

// Discard is a factory for tests that silences everything.
func Discard() *logging.DefaultLoggerFactory {
	return NewFactory("disabled", io.Discard)
}
