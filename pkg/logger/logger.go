package logger

import (
	"context"
	"fmt"
	multi "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

const defaultLogFile = "logs/main.log"

var levels = []struct {
	name  string
	label string
	level slog.Level
}{
	{"trace", "TRACE", LevelTrace},
	{"debug", "DEBUG", slog.LevelDebug},
	{"info", "INFO", slog.LevelInfo},
	{"warn", "WARN", slog.LevelWarn},
	{"error", "ERROR", slog.LevelError},
	{"fatal", "FATAL", LevelFatal},
}

type Logger interface {
	SetLogLevel(levelStr string)
	GetLogLevel() string

	// With returns a logger that adds args to every record and shares the level.
	With(args ...any) Logger

	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, err error, args ...any)
	Fatal(msg string, err error, args ...any)
}

type SlogLogger struct {
	log   *slog.Logger
	level *slog.LevelVar
}

// New writes human-readable lines to stdout and JSON lines to a rotating file.
func New(logFile string) *SlogLogger {
	if logFile == "" {
		logFile = defaultLogFile
	}

	level := &slog.LevelVar{}
	opts := handlerOptions(level, true)

	file := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    64,
		MaxBackups: 32,
		MaxAge:     30,
		Compress:   true,
	}

	return &SlogLogger{
		log: slog.New(multi.Fanout(
			slog.NewTextHandler(os.Stdout, opts),
			slog.NewJSONHandler(file, opts),
		)),
		level: level,
	}
}

// NewWithWriter logs text lines to w only. Used by tests and one-shot CLI commands.
func NewWithWriter(w io.Writer) *SlogLogger {
	level := &slog.LevelVar{}
	return &SlogLogger{
		log:   slog.New(slog.NewTextHandler(w, handlerOptions(level, false))),
		level: level,
	}
}

func handlerOptions(level *slog.LevelVar, addSource bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		AddSource: addSource,
		Level:     level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(levelLabel(lvl))
				}
			case slog.SourceKey:
				a.Value = slog.StringValue(callerOutsideLogger(10))
			}
			return a
		},
	}
}

func levelLabel(lvl slog.Level) string {
	for _, l := range levels {
		if l.level == lvl {
			return l.label
		}
	}
	return lvl.String()
}

// SetLogLevel falls back to info for unknown names.
func (l *SlogLogger) SetLogLevel(levelStr string) {
	for _, lv := range levels {
		if lv.name == strings.ToLower(levelStr) {
			l.level.Set(lv.level)
			return
		}
	}
	l.level.Set(slog.LevelInfo)
}

func (l *SlogLogger) GetLogLevel() string {
	current := l.level.Level()
	for _, lv := range levels {
		if lv.level == current {
			return lv.name
		}
	}
	return "info"
}

func (l *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{log: l.log.With(args...), level: l.level}
}

func (l *SlogLogger) Trace(msg string, args ...any) {
	l.log.Log(context.Background(), LevelTrace, msg, args...)
}

func (l *SlogLogger) Debug(msg string, args ...any) {
	l.log.Debug(msg, args...)
}

func (l *SlogLogger) Info(msg string, args ...any) {
	l.log.Info(msg, args...)
}

func (l *SlogLogger) Warn(msg string, args ...any) {
	l.log.Warn(msg, args...)
}

func (l *SlogLogger) Error(msg string, err error, args ...any) {
	l.log.Error(msg, withErr(err, args)...)
}

func (l *SlogLogger) Fatal(msg string, err error, args ...any) {
	l.log.Log(context.Background(), LevelFatal, msg, withErr(err, args)...)
	os.Exit(1)
}

func withErr(err error, args []any) []any {
	if err == nil {
		return args
	}
	return append([]any{slog.String("error", err.Error())}, args...)
}

func callerOutsideLogger(skip int) string {
	for i := skip; ; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if !strings.Contains(file, "logger") {
			return fmt.Sprintf("%s:%d", file, line)
		}
	}
	return "unknown"
}
