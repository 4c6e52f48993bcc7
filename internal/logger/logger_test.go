package logger

import (
	"context"
	"testing"
)

func TestWithPathspec_And_PathspecFromContext(t *testing.T) {
	ctx := context.Background()
	pathspec := "LinearFlow/1771/start/3212"

	// Initially empty
	if got := PathspecFromContext(ctx); got != "" {
		t.Errorf("PathspecFromContext() on empty ctx = %v, want empty", got)
	}

	// After setting
	ctx = WithPathspec(ctx, pathspec)
	if got := PathspecFromContext(ctx); got != pathspec {
		t.Errorf("PathspecFromContext() = %v, want %v", got, pathspec)
	}
}

func TestFromContext_WithPathspec(t *testing.T) {
	base := New()
	ctx := context.Background()

	// Without pathspec - should return base logger (not nil)
	logger := FromContext(ctx, base)
	if logger == nil {
		t.Error("FromContext() returned nil")
	}

	// With pathspec - should return logger with task attached
	ctx = WithPathspec(ctx, "LinearFlow/1771/start/3212")
	loggerWithTask := FromContext(ctx, base)
	if loggerWithTask == nil {
		t.Error("FromContext() with pathspec returned nil")
	}
}

func TestNew_ReturnsLogger(t *testing.T) {
	logger := New()
	if logger == nil {
		t.Error("New() returned nil")
	}
}
