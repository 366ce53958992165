package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// TraceLevel indicates a log message's level of criticality
	TraceLevel = "trace"
	// DebugLevel indicates a log message's level of criticality
	DebugLevel = "debug"
	// InfoLevel indicates a log message's level of criticality
	InfoLevel = "info"
	// WarnLevel indicates a log message's level of criticality
	WarnLevel = "warn"
	// ErrorLevel indicates a log message's level of criticality
	ErrorLevel = "error"
)

// ParseLevel translates a level name to a zerolog.Level, defaulting to InfoLevel
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// New builds a JSON logger at the given level. A nil writer logs to stderr.
func New(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// NewConsole builds a human-readable logger, for interactive use
func NewConsole(level string) zerolog.Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// Component tags a logger with the name of the component using it
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// OrNop dereferences an optional logger, falling back to a disabled one
func OrNop(l *zerolog.Logger) zerolog.Logger {
	if l == nil {
		return zerolog.Nop()
	}
	return *l
}
