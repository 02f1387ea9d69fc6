package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Logger is a slog.Logger that stamps every record with the component that
// emitted it.
type Logger struct {
	*slog.Logger
	component string
}

// Config selects the level, component and handler of a new Logger. A nil
// Handler means text on stdout at Level.
type Config struct {
	Level     slog.Level
	Component string
	Handler   slog.Handler
}

var levels = map[string]slog.Level{
	"":        slog.LevelInfo,
	"info":    slog.LevelInfo,
	"debug":   slog.LevelDebug,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel maps a LOG_LEVEL value to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(level))]; ok {
		return l, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

func New(cfg Config) *Logger {
	h := cfg.Handler
	if h == nil {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level})
	}
	return &Logger{Logger: slog.New(h), component: cfg.Component}
}

// Default returns a component logger backed by slog.Default at the time of the
// call. Construct components after SetDefault.
func Default(component string) *Logger {
	return &Logger{Logger: slog.Default(), component: component}
}

// SetDefault installs logger as the process-wide slog default.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}

// WithComponent returns a logger sharing l's handler and attributes under a
// different component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger, component: component}
}

// With returns a logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), component: l.component}
}

func (l *Logger) Component() string { return l.component }

func (l *Logger) emit(ctx context.Context, level slog.Level, msg string, args []any) {
	l.Logger.Log(ctx, level, msg, append([]any{FieldComponent, l.component}, args...)...)
}

func (l *Logger) Debug(msg string, args ...any) { l.emit(context.Background(), slog.LevelDebug, msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.emit(context.Background(), slog.LevelInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.emit(context.Background(), slog.LevelWarn, msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.emit(context.Background(), slog.LevelError, msg, args) }

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, slog.LevelDebug, msg, args)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, slog.LevelInfo, msg, args)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, slog.LevelWarn, msg, args)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, slog.LevelError, msg, args)
}
