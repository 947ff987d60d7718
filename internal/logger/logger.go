// Package logger is a thin structured-logging facade over zerolog. Components
// depend on the Logger interface so tests can pass NewNop.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging surface used across the pipeline. Key/value pairs
// alternate in kv.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Err(err error, msg string, kv ...any)
	With(kv ...any) Logger
}

// Options selects level and writers. Writer accepts "console" and "file".
type Options struct {
	Level   string
	Writer  []string
	File    string
	MaxSize int // megabytes per rotated file
}

type zlogger struct {
	z zerolog.Logger
}

// New builds a Logger from opts. An empty writer list logs to stderr.
func New(opts Options) Logger {
	var writers []io.Writer
	for _, w := range opts.Writer {
		switch w {
		case "console":
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
		case "file":
			if opts.File == "" {
				continue
			}
			maxSize := opts.MaxSize
			if maxSize <= 0 {
				maxSize = 20
			}
			writers = append(writers, &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    maxSize,
				MaxBackups: 3,
				MaxAge:     14,
				Compress:   true,
			})
		}
	}
	var out io.Writer = os.Stderr
	if len(writers) == 1 {
		out = writers[0]
	} else if len(writers) > 1 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	z := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &zlogger{z: z}
}

// NewNop returns a Logger that discards everything.
func NewNop() Logger {
	return &zlogger{z: zerolog.Nop()}
}

func (l *zlogger) Debug(msg string, kv ...any) { emit(l.z.Debug(), msg, kv) }
func (l *zlogger) Info(msg string, kv ...any)  { emit(l.z.Info(), msg, kv) }
func (l *zlogger) Warn(msg string, kv ...any)  { emit(l.z.Warn(), msg, kv) }

func (l *zlogger) Err(err error, msg string, kv ...any) {
	emit(l.z.Error().Err(err), msg, kv)
}

func (l *zlogger) With(kv ...any) Logger {
	ctx := l.z.With()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, kv[i+1])
	}
	return &zlogger{z: ctx.Logger()}
}

func emit(e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}
