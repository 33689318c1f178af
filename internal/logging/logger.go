// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

// Package logging is FleetMan's process-wide zerolog front door.
//
// main() calls Init once; every other package logs through the helpers here
// or through a component child logger:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logger := logging.WithComponent("notify.registry")
//	logger.Info().Int("connections", n).Msg("Registry ready")
//
// Request-scoped code should prefer logging.Ctx(ctx), which picks up the
// request and correlation IDs placed in the context by the middleware.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls global logger behavior.
type Config struct {
	// Level is the minimum emitted level: trace, debug, info, warn, error,
	// fatal, panic, or disabled. Unknown values fall back to info.
	Level string

	// Format selects "json" (default) or "console" output.
	Format string

	// Caller adds file:line to every record.
	Caller bool

	// Timestamp adds a timestamp to every record.
	Timestamp bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

var (
	mu  sync.RWMutex
	log zerolog.Logger
)

//nolint:gochecknoinits // packages may log before main() reaches Init
func init() {
	configure(Config{Level: "info", Format: "json", Timestamp: true, Output: os.Stderr})
}

// Init reconfigures the global logger. Safe to call more than once; tests
// use it to silence or capture output.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	configure(cfg)
}

func configure(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	var w io.Writer = out
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	l := zerolog.New(w)
	if cfg.Timestamp {
		l = l.With().Timestamp().Logger()
	}
	if cfg.Caller {
		l = l.With().Caller().Logger()
	}
	log = l
}

var levelNames = map[string]zerolog.Level{
	"trace":    zerolog.TraceLevel,
	"debug":    zerolog.DebugLevel,
	"info":     zerolog.InfoLevel,
	"warn":     zerolog.WarnLevel,
	"warning":  zerolog.WarnLevel,
	"error":    zerolog.ErrorLevel,
	"fatal":    zerolog.FatalLevel,
	"panic":    zerolog.PanicLevel,
	"disabled": zerolog.Disabled,
}

func parseLevel(name string) zerolog.Level {
	if level, ok := levelNames[strings.ToLower(name)]; ok {
		return level
	}
	return zerolog.InfoLevel
}

// Logger returns a copy of the global logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// With opens a child-logger context on the global logger.
func With() zerolog.Context {
	return Logger().With()
}

// WithComponent returns a child logger tagged with a component field.
// Long-lived objects grab one at construction time.
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}

// Debug starts a debug-level record on the global logger.
func Debug() *zerolog.Event {
	logger := Logger()
	return logger.Debug()
}

// Info starts an info-level record on the global logger.
func Info() *zerolog.Event {
	logger := Logger()
	return logger.Info()
}

// Warn starts a warn-level record on the global logger.
func Warn() *zerolog.Event {
	logger := Logger()
	return logger.Warn()
}

// Error starts an error-level record on the global logger.
func Error() *zerolog.Event {
	logger := Logger()
	return logger.Error()
}

// NewTestLogger returns a standalone logger writing to w, independent of
// the global configuration.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
