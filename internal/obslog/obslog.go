// Package obslog wraps zerolog behind a small façade so the rest of the
// tree depends on one package instead of the raw library, and every
// event-per-line log keeps a terse register for state transitions.
package obslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the core's structured logger. Zero value is not usable; use New.
type Logger struct {
	z zerolog.Logger
}

// New builds a console-friendly logger writing to w (use os.Stdout in production).
func New(w io.Writer, component string) *Logger {
	if w == nil {
		w = os.Stdout
	}
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	z := zerolog.New(cw).With().Timestamp().Str("component", component).Logger()
	return &Logger{z: z}
}

// NewJSON builds a production JSON logger (no console formatting overhead).
func NewJSON(w io.Writer, component string) *Logger {
	if w == nil {
		w = os.Stdout
	}
	z := zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	return &Logger{z: z}
}

// With returns a child logger scoped to a sub-component, mirroring the
// per-module log prefixing used throughout this codebase.
func (l *Logger) With(sub string) *Logger {
	return &Logger{z: l.z.With().Str("sub", sub).Logger()}
}

func (l *Logger) Debug(msg string, kv ...any) { l.event(l.z.Debug(), msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.event(l.z.Info(), msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.event(l.z.Warn(), msg, kv...) }
func (l *Logger) Error(err error, msg string, kv ...any) {
	l.event(l.z.Error().Err(err), msg, kv...)
}

func (l *Logger) event(e *zerolog.Event, msg string, kv ...any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}
