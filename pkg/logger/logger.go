package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var slogLevels = map[Level]slog.Level{
	DEBUG: slog.LevelDebug,
	INFO:  slog.LevelInfo,
	WARN:  slog.LevelWarn,
	ERROR: slog.LevelError,
}

type Logger struct {
	mu     sync.Mutex
	level  *slog.LevelVar
	handle *slog.Logger
}

var defaultLogger = New(os.Stdout, INFO, "text")

// New builds a logger writing text or json records to out.
func New(out io.Writer, level Level, format string) *Logger {
	if out == nil {
		out = os.Stdout
	}
	lv := new(slog.LevelVar)
	lv.Set(slogLevels[level])
	return &Logger{
		level:  lv,
		handle: slog.New(newHandler(out, format, lv)),
	}
}

func newHandler(out io.Writer, format string, lv *slog.LevelVar) slog.Handler {
	opts := &slog.HandlerOptions{Level: lv}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

// ParseLevel maps "debug", "info", "warn" and "error" to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func SetLevel(level Level) {
	defaultLogger.level.Set(slogLevels[level])
}

// SetOutput redirects the default logger, keeping its level.
func SetOutput(w io.Writer, format string) {
	defaultLogger.mu.Lock()
	defaultLogger.handle = slog.New(newHandler(w, format, defaultLogger.level))
	defaultLogger.mu.Unlock()
}

func (l *Logger) log(level Level, format string, v ...interface{}) {
	l.mu.Lock()
	h := l.handle
	l.mu.Unlock()

	lv := slogLevels[level]
	if !h.Enabled(context.Background(), lv) {
		return
	}
	h.Log(context.Background(), lv, fmt.Sprintf(format, v...))
}

// With returns a child logger carrying the given key/value attributes.
func (l *Logger) With(args ...any) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{level: l.level, handle: l.handle.With(args...)}
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.log(DEBUG, format, v...)
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.log(INFO, format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.log(WARN, format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.log(ERROR, format, v...)
}

// Global functions
func Debug(format string, v ...interface{}) {
	defaultLogger.log(DEBUG, format, v...)
}

func Info(format string, v ...interface{}) {
	defaultLogger.log(INFO, format, v...)
}

func Warn(format string, v ...interface{}) {
	defaultLogger.log(WARN, format, v...)
}

func Error(format string, v ...interface{}) {
	defaultLogger.log(ERROR, format, v...)
}

// With returns a child of the default logger.
func With(args ...any) *Logger {
	return defaultLogger.With(args...)
}

// Init routes the standard log package and slog's default through the default logger.
func Init(level, format string) {
	SetLevel(ParseLevel(level))
	SetOutput(os.Stdout, format)

	defaultLogger.mu.Lock()
	slog.SetDefault(defaultLogger.handle)
	defaultLogger.mu.Unlock()
	log.SetFlags(0)
}
