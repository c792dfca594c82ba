// Package logger builds the service-wide zerolog logger. Production
// environments emit JSON; everything else gets the console writer.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	Level       string // trace | debug | info | warn | error (default info)
	Environment string // production | staging | development
	ServiceName string
	Version     string
}

// Logger wraps zerolog.Logger so call sites can pass either the wrapper or the
// embedded logger down to components that only need zerolog.
type Logger struct {
	zerolog.Logger
}

// New builds a logger with the service identity attached to every event.
func New(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var out zerolog.Logger
	if cfg.Environment == "production" || cfg.Environment == "staging" {
		out = zerolog.New(os.Stdout)
	} else {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	out = out.Level(level).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Logger()

	return &Logger{Logger: out}
}

// WithComponent returns a child logger tagged with a component name.
func (l *Logger) WithComponent(name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
