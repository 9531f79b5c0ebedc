// Package logging provides the leveled logger used across the installer. It is
// a thin wrapper around zerolog so that callers only deal with printf-style
// methods.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	ErrorLevel Level = iota
	WarnLevel
	InfoLevel
	DebugLevel
)

// LevelIds maps levels to their command line names.
var LevelIds = map[Level][]string{
	ErrorLevel: {"error"},
	WarnLevel:  {"warn"},
	InfoLevel:  {"info"},
	DebugLevel: {"debug"},
}

type Format int

const (
	TextFormat Format = iota
	JSONFormat
)

var FormatIds = map[Format][]string{
	TextFormat: {"text"},
	JSONFormat: {"json"},
}

type Config struct {
	Level   Level
	Format  Format
	Output  io.Writer // Defaults to os.Stderr.
	NoColor bool
}

type Logger struct {
	log zerolog.Logger
}

func NewLogger(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if cfg.Format == TextFormat {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    cfg.NoColor,
			TimeFormat: time.TimeOnly,
		}
	}

	return &Logger{log: zerolog.New(out).Level(cfg.Level.zerolog()).With().Timestamp().Logger()}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{log: zerolog.Nop()}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case ErrorLevel:
		return zerolog.ErrorLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case DebugLevel:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) Debugf(format string, args ...any) {
	l.log.Debug().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.log.Info().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.log.Warn().Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.log.Error().Msg(fmt.Sprintf(format, args...))
}

// Noticef logs a warning that the configured level cannot filter out.
func (l *Logger) Noticef(format string, args ...any) {
	l.log.Log().Str(zerolog.LevelFieldName, zerolog.WarnLevel.String()).Msg(fmt.Sprintf(format, args...))
}

// With returns a child logger carrying the given key/value pair on every line.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{log: l.log.With().Str(key, value).Logger()}
}
