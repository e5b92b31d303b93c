package datasource

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with datasource-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithOrigin adds an origin field naming the source kind
// ("local", "memory", "func", "s3", "minio").
func (l *Logger) WithOrigin(origin string) *Logger {
	return &Logger{
		Logger: l.Logger.With("origin", origin),
	}
}

// WithPath adds a path field to the logger.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// LogOpen logs a handle open.
func (l *Logger) LogOpen(ctx context.Context, kind HandleKind, writable bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"mode", kind.String(),
			"writable", writable,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "handle opened",
			"mode", kind.String(),
			"writable", writable,
		)
	}
}

// LogCommit logs a close-time commit of a writable handle.
func (l *Logger) LogCommit(ctx context.Context, bytes int64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"bytes", bytes,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "content committed",
			"bytes", bytes,
			"duration", duration,
		)
	}
}

// LogTransfer logs a chunked transfer.
func (l *Logger) LogTransfer(ctx context.Context, bytes int64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "transfer failed",
			"bytes", bytes,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "transfer completed",
			"bytes", bytes,
			"duration", duration,
		)
	}
}
