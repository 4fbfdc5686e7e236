package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog behind a small structured-field facade.
type Logger struct {
	zl zerolog.Logger
}

type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	Output string // stdout, stderr, or file path
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer
	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not open log file: %w", err)
		}
		output = file
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339Nano}
	}

	zl := zerolog.New(output).With().Timestamp().Logger()
	return &Logger{zl: zl}, nil
}

// Nop returns a logger that discards everything; used in tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger carrying the given fields on every event.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = f.AddToCtx(ctx)
	}
	return &Logger{zl: ctx.Logger()}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.emit(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.emit(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.emit(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.emit(l.zl.Error(), msg, fields) }

func (l *Logger) emit(ev *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		f.AddTo(ev)
	}
	ev.Msg(msg)
}

// Field is one structured log attribute.
type Field interface {
	AddTo(ev *zerolog.Event)
	AddToCtx(ctx zerolog.Context) zerolog.Context
	KeyValue() (string, interface{})
}

type field struct {
	key   string
	value interface{}
}

func (f field) KeyValue() (string, interface{}) { return f.key, f.value }

func (f field) AddTo(ev *zerolog.Event) {
	switch v := f.value.(type) {
	case string:
		ev.Str(f.key, v)
	case int:
		ev.Int(f.key, v)
	case int64:
		ev.Int64(f.key, v)
	case float64:
		ev.Float64(f.key, v)
	case bool:
		ev.Bool(f.key, v)
	case time.Duration:
		ev.Dur(f.key, v)
	case error:
		ev.AnErr(f.key, v)
	default:
		ev.Interface(f.key, v)
	}
}

func (f field) AddToCtx(ctx zerolog.Context) zerolog.Context {
	switch v := f.value.(type) {
	case string:
		return ctx.Str(f.key, v)
	case int:
		return ctx.Int(f.key, v)
	case int64:
		return ctx.Int64(f.key, v)
	case float64:
		return ctx.Float64(f.key, v)
	case bool:
		return ctx.Bool(f.key, v)
	default:
		return ctx.Interface(f.key, v)
	}
}

// Field constructors.

func String(key, value string) Field            { return field{key, value} }
func Int(key string, value int) Field           { return field{key, value} }
func Int64(key string, value int64) Field       { return field{key, value} }
func Float64(key string, value float64) Field   { return field{key, value} }
func Bool(key string, value bool) Field         { return field{key, value} }
func Dur(key string, value time.Duration) Field { return field{key, value} }
func Any(key string, value interface{}) Field   { return field{key, value} }
func Error(err error) Field                     { return field{"error", err} }
