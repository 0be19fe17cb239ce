package audit

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"
)

// Logger emits audit events: one record per successful mutation or handled
// failure, each carrying a unique event id and an action name. It is an
// observability side effect only; callers never branch on its outcome.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With("component", "audit")}
}

func (l *Logger) Event(ctx context.Context, action string, attrs ...slog.Attr) {
	l.logger.LogAttrs(ctx, slog.LevelInfo, action, append(baseAttrs(action), attrs...)...)
}

func (l *Logger) Failure(ctx context.Context, action string, err error, attrs ...slog.Attr) {
	attrs = append(attrs, slog.String("error_message", err.Error()))
	l.logger.LogAttrs(ctx, slog.LevelError, action, append(baseAttrs(action), attrs...)...)
}

// FailureWithStack is used for unhandled errors, where the stack of the
// emitting goroutine is part of the event.
func (l *Logger) FailureWithStack(ctx context.Context, action string, err error, attrs ...slog.Attr) {
	attrs = append(attrs, slog.String("stack_trace", string(debug.Stack())))
	l.Failure(ctx, action, err, attrs...)
}

func baseAttrs(action string) []slog.Attr {
	return []slog.Attr{
		slog.String("event_id", uuid.NewString()),
		slog.String("action", action),
	}
}
