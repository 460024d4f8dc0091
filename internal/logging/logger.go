// Package logging provides the structured logger shared by every component
// of the transfer engine.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with the console formatting the rest of the engine expects.
type Logger struct {
	zlog zerolog.Logger
}

// New creates a logger writing to w at the given verbosity (§3 container handle
// field `verbosity`: 0 = warn/error only, 1 = info, 2+ = debug).
func New(w io.Writer, verbosity int) *Logger {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.WarnLevel
	switch {
	case verbosity >= 2:
		level = zerolog.DebugLevel
	case verbosity == 1:
		level = zerolog.InfoLevel
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{zlog: zlog}
}

// Default returns a logger at warn verbosity writing to stderr.
func Default() *Logger {
	return New(os.Stderr, 0)
}

func (l *Logger) Info() *zerolog.Event  { return l.zlog.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zlog.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }
func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }

// With returns a child logger builder for attaching fields such as
// container/blob names to every subsequent line.
func (l *Logger) With() zerolog.Context { return l.zlog.With() }

// Named returns a child logger tagged with a "component" field, used so log
// lines from the retry loop, the refresh protocol, and the upload/download
// engines are distinguishable at verbosity>=1.
func (l *Logger) Named(component string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", component).Logger()}
}
