package workflow

import (
	"context"
	"errors"

	"ferry/internal/failure"
	"ferry/internal/ratelimit"
	"ferry/internal/retry"
)

// guardedCall tracks one API operation run through a limiter and the retry
// controller.
type guardedCall struct {
	calls   int
	lastErr error
}

// guarded runs fn behind limiter with retries. The limiter wait honours ctx;
// fn itself receives a context detached from ctx so a call on the wire is
// never abandoned.
func guarded[T any](ctx context.Context, g *guardedCall, controller *retry.Controller, limiter *ratelimit.Limiter, op string, fn func(context.Context) (T, error)) (T, error) {
	return retry.Call(ctx, controller, op, func(callCtx context.Context) (T, error) {
		if err := limiter.Acquire(ctx); err != nil {
			var zero T
			return zero, err
		}
		g.calls++
		result, err := fn(callCtx)
		if err != nil {
			g.lastErr = err
		}
		return result, err
	})
}

// interrupted reports whether err stems from ctx ending rather than from
// the provider.
func interrupted(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// responseBody extracts the raw provider response carried by err.
func responseBody(err error) string {
	var classified *failure.Error
	if errors.As(err, &classified) {
		return classified.Body
	}
	return ""
}
