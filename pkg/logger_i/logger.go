package logger_i

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/akolanti/MedExtract/internal/config"
)

type Logger struct {
	section string
	inner   *slog.Logger
}

// Init installs the process logger: JSON in production, text otherwise, unless
// LOG_FORMAT says which. LOG_LEVEL overrides the default level.
func Init() {
	settings := config.Get()
	Configure(os.Stdout, settings.LogLevel, settings.LogFormat)
}

func Configure(w io.Writer, level, format string) {
	options := &slog.HandlerOptions{Level: ParseLevel(level)}

	if format == "" && config.IS_PROD {
		format = "json"
	}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, options)
	} else {
		handler = slog.NewTextHandler(w, options)
	}
	slog.SetDefault(slog.New(handler))
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else is
// debug in development and the production level otherwise.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if config.IS_PROD {
		return config.LOG_LEVEL_PROD
	}
	return slog.LevelDebug
}

// NewLogger is safe at package init: the handler is resolved when a record is written,
// so loggers created before Init still follow it.
func NewLogger(section string) *Logger {
	return &Logger{section: section}
}

func (l *Logger) handle() *slog.Logger {
	if l.inner != nil {
		return l.inner
	}
	return slog.Default().With("component", l.section)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	inner := l.handle()
	if !inner.Enabled(context.Background(), level) {
		return
	}
	inner.Log(context.Background(), level, msg, args...)
}

// With binds args to the handler installed at call time.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		section: l.section,
		inner:   l.handle().With(args...),
	}
}

// WithTrace attaches the trace id carried by ctx, if any.
func (l *Logger) WithTrace(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	if trace, ok := ctx.Value(config.TRACE_ID_KEY).(string); ok && trace != "" {
		return l.With(config.TRACE_ID_KEY, trace)
	}
	return l
}
