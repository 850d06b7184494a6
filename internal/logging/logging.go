// Package logging provides the structured loggers used across shame-go.
// It wraps zerolog rather than hand-rolling a leveled logger, per the
// stack the rest of the retrieved example corpus uses ahead of a
// network daemon.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the leveled, field-structured logging surface used by
// every shame-go component. It is a thin facade over zerolog so
// callers never import zerolog directly.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	// With returns a derived Logger with an additional field attached
	// to every subsequent record.
	With(key string, value any) Logger
}

type zlog struct {
	z zerolog.Logger
}

// New builds a Logger writing to w at the given level. level accepts
// zerolog level names ("debug", "info", "warn", "error"); an unknown
// or empty level defaults to "info".
func New(w io.Writer, level string) Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	z := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &zlog{z: z}
}

// Console builds a human-readable console Logger over os.Stderr,
// suitable for cmd/ entrypoints running in a terminal.
func Console(level string) Logger {
	cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	z := zerolog.New(cw).Level(lvl).With().Timestamp().Logger()
	return &zlog{z: z}
}

// Nop returns a Logger that discards everything, used as a safe
// default when a component is constructed without one.
func Nop() Logger {
	return &zlog{z: zerolog.Nop()}
}

func (l *zlog) event(e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}

func (l *zlog) Debug(msg string, kv ...any) { l.event(l.z.Debug(), msg, kv) }
func (l *zlog) Info(msg string, kv ...any)  { l.event(l.z.Info(), msg, kv) }
func (l *zlog) Warn(msg string, kv ...any)  { l.event(l.z.Warn(), msg, kv) }
func (l *zlog) Error(msg string, kv ...any) { l.event(l.z.Error(), msg, kv) }

func (l *zlog) With(key string, value any) Logger {
	return &zlog{z: l.z.With().Interface(key, value).Logger()}
}
