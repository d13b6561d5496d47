// Package retry runs API calls with exponential backoff keyed to the failure
// classification from package failure.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ferry/internal/failure"
	"ferry/internal/logging"
)

// DefaultMaxDelay caps backoff when a Controller leaves MaxDelay unset.
const DefaultMaxDelay = 300 * time.Second

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// Controller retries retryable failures. MaxAttempts counts additional
// attempts after the first, so a call runs at most MaxAttempts+1 times.
type Controller struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	SkipRetries bool

	Logger  *slog.Logger
	Sleep   Sleeper
	OnRetry func(op string, kind failure.Kind)
}

// Do runs fn until it succeeds, fails permanently, or attempts run out.
//
// fn receives a context detached from ctx's cancellation so a call that has
// started always completes on its own terms. ctx still interrupts backoff
// waits; an interrupted wait returns the last call error joined with
// ctx.Err().
func (c *Controller) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	_, err := Call(ctx, c, op, func(callCtx context.Context) (struct{}, error) {
		return struct{}{}, fn(callCtx)
	})
	return err
}

// Call is Do for operations that return a value.
func Call[T any](ctx context.Context, c *Controller, op string, fn func(context.Context) (T, error)) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx := context.WithoutCancel(ctx)
	attempts := c.attempts()

	var zero T
	for attempt := 1; ; attempt++ {
		result, err := fn(callCtx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || (errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil) {
			return zero, err
		}
		kind := failure.KindOf(err)
		if !kind.Retryable() || attempt >= attempts {
			return zero, err
		}

		delay := c.backoffDelay(attempt)
		c.logRetry(op, attempt, attempts, kind, delay, err)
		if c.OnRetry != nil {
			c.OnRetry(op, kind)
		}
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return zero, fmt.Errorf("%w (retry interrupted: %w)", err, sleepErr)
		}
	}
}

func (c *Controller) attempts() int {
	if c == nil || c.SkipRetries || c.MaxAttempts <= 0 {
		return 1
	}
	return c.MaxAttempts + 1
}

// BackoffDelay returns the wait after the given 1-based failed attempt:
// base, base*2, base*4, ... capped at the maximum delay.
func (c *Controller) BackoffDelay(attempt int) time.Duration {
	return c.backoffDelay(attempt)
}

func (c *Controller) backoffDelay(attempt int) time.Duration {
	if c == nil || c.BaseDelay <= 0 {
		return 0
	}
	maxDelay := c.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := c.BaseDelay
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (c *Controller) sleep(ctx context.Context, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}
	if c.Sleep != nil {
		if err := c.Sleep(ctx, delay); err != nil {
			return err
		}
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Controller) logRetry(op string, attempt, attempts int, kind failure.Kind, delay time.Duration, err error) {
	if c.Logger == nil {
		return
	}
	c.Logger.Warn("api call failed, retrying",
		logging.String("op", op),
		logging.Int(logging.FieldAttempt, attempt),
		logging.Int("max_attempts", attempts),
		logging.String(logging.FieldErrorKind, string(kind)),
		logging.Duration("backoff", delay),
		logging.Error(err),
		logging.String(logging.FieldEventType, "api_retry"),
		logging.String(logging.FieldErrorHint, "transient provider or network failure; will retry"),
	)
}
