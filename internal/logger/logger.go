// Package logger provides structured logging setup using slog. Diagnostic
// output only; user-visible monitor output goes through the echo sink.
package logger

import (
	"context"
	"log/slog"
	"os"
)

// pathspecKey is the context key for the task pathspec being worked on.
type pathspecKey struct{}

// New creates a new structured JSON logger writing to stderr, keeping
// stdout free for echoed task output.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// WithPathspec returns a new context carrying the task pathspec.
func WithPathspec(ctx context.Context, pathspec string) context.Context {
	return context.WithValue(ctx, pathspecKey{}, pathspec)
}

// PathspecFromContext extracts the task pathspec from the context.
func PathspecFromContext(ctx context.Context) string {
	if v := ctx.Value(pathspecKey{}); v != nil {
		return v.(string)
	}
	return ""
}

// FromContext returns a logger with context fields (task pathspec, etc.)
// attached.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if pathspec := PathspecFromContext(ctx); pathspec != "" {
		return base.With("task", pathspec)
	}
	return base
}
