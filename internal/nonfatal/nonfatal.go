// Package nonfatal runs best-effort side effects. A failure is logged and
// counted but never returned to the caller.
package nonfatal

import (
	"context"
	"log/slog"

	"github.com/rushabhsmehta/tour-messaging/internal/metrics"
)

// Do runs fn and reports whether it succeeded.
func Do(ctx context.Context, op string, fn func(context.Context) error) bool {
	if err := fn(ctx); err != nil {
		slog.Warn("non-fatal side effect failed", "op", op, "err", err)
		metrics.NonFatalDropped(op)
		return false
	}
	return true
}

// Value is Do for side effects that produce a result. The zero value is
// returned on failure.
func Value[T any](ctx context.Context, op string, fn func(context.Context) (T, error)) (T, bool) {
	v, err := fn(ctx)
	if err != nil {
		slog.Warn("non-fatal side effect failed", "op", op, "err", err)
		metrics.NonFatalDropped(op)
		var zero T
		return zero, false
	}
	return v, true
}
