package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ferry/internal/failure"
	"ferry/internal/ingest"
	"ferry/internal/logging"
	"ferry/internal/records"
	"ferry/internal/retry"
)

// StopReason explains why RunVerification returned.
type StopReason string

const (
	StopNoneRemaining StopReason = "none_remaining"
	StopStalled       StopReason = "stalled"
	StopTimeout       StopReason = "timeout"
	StopMaxIterations StopReason = "max_iterations"
	StopInterrupted   StopReason = "interrupted"
)

// VerifyOptions overrides the configured poller timing when fields are
// positive.
type VerifyOptions struct {
	Interval      time.Duration
	Timeout       time.Duration
	MaxIterations int
	SkipRetries   bool
}

// VerifySummary counts the work done by one RunVerification call. Changed
// counts processing status transitions; Completed and Failed count records
// that reached those terminal statuses during the run.
type VerifySummary struct {
	Iterations int        `json:"iterations"`
	Checked    int        `json:"checked"`
	Changed    int        `json:"changed"`
	Completed  int        `json:"completed"`
	Failed     int        `json:"failed"`
	Errors     int        `json:"errors"`
	Remaining  int        `json:"remaining"`
	StopReason StopReason `json:"stop_reason"`
}

// mapProviderStatus translates the provider's status vocabulary. Unknown
// values map to pending and report false.
func mapProviderStatus(raw string) (records.ProcessingStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING":
		return records.ProcessingPending, true
	case "PROCESSING":
		return records.ProcessingProcessing, true
	case "SUCCESS":
		return records.ProcessingCompleted, true
	case "FAILED":
		return records.ProcessingFailed, true
	default:
		return records.ProcessingPending, false
	}
}

// RunVerification polls processing status for uploaded records until none
// remain, an iteration changes nothing, the timeout elapses or the
// iteration cap is reached. Per-record errors are logged and counted; they
// never abort the batch.
func (m *Manager) RunVerification(ctx context.Context, opts VerifyOptions) (VerifySummary, error) {
	if _, ok := logging.RunIDFromContext(ctx); !ok {
		ctx = logging.WithRunID(ctx, uuid.NewString())
	}
	logger := m.runLogger(ctx)
	m.setRunning(true)
	defer m.setRunning(false)

	interval := opts.Interval
	if interval <= 0 {
		interval = m.cfg.VerifyInterval()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = m.cfg.VerifyTimeout()
	}
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = m.cfg.Verify.MaxIterations
	}
	deadline := m.now().Add(timeout)
	// loopCtx bounds limiter and backoff waits by the same budget as the loop.
	loopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	controller := m.retryController(logger, opts.SkipRetries)
	controller.Sleep = m.sleepUntil(deadline)

	// stopReason tells a caller cancellation apart from the budget running out.
	stopReason := func() StopReason {
		if ctx.Err() == nil && (loopCtx.Err() != nil || !m.now().Before(deadline)) {
			return StopTimeout
		}
		return StopInterrupted
	}

	var summary VerifySummary
	finish := func(reason StopReason, err error) (VerifySummary, error) {
		summary.StopReason = reason
		if remaining, listErr := m.store.ListAwaitingVerification(context.WithoutCancel(ctx)); listErr == nil {
			summary.Remaining = len(remaining)
		}
		logger.Info("verification finished",
			logging.String(logging.FieldEventType, "verify_complete"),
			logging.String("stop_reason", string(reason)),
			logging.Int("iterations", summary.Iterations),
			logging.Int("checked", summary.Checked),
			logging.Int("changed", summary.Changed),
			logging.Int("completed", summary.Completed),
			logging.Int("failed", summary.Failed),
			logging.Int("errors", summary.Errors),
			logging.Int("remaining", summary.Remaining),
		)
		return summary, err
	}

	for {
		if ctx.Err() != nil {
			return finish(StopInterrupted, nil)
		}
		awaiting, err := m.store.ListAwaitingVerification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return finish(StopInterrupted, nil)
			}
			return finish(StopInterrupted, fmt.Errorf("list records awaiting verification: %w", err))
		}
		if len(awaiting) == 0 {
			return finish(StopNoneRemaining, nil)
		}
		if maxIterations > 0 && summary.Iterations >= maxIterations {
			return finish(StopMaxIterations, nil)
		}
		if loopCtx.Err() != nil || !m.now().Before(deadline) {
			return finish(stopReason(), nil)
		}

		summary.Iterations++
		logger.Debug("verification iteration",
			logging.Int("iteration", summary.Iterations),
			logging.Int("records", len(awaiting)),
		)

		changed := 0
		for _, rec := range awaiting {
			if ctx.Err() != nil {
				return finish(StopInterrupted, nil)
			}
			if loopCtx.Err() != nil || !m.now().Before(deadline) {
				return finish(stopReason(), nil)
			}
			status, didChange, err := m.checkRecord(loopCtx, logger, rec, controller)
			if err != nil {
				if interrupted(loopCtx, err) {
					return finish(stopReason(), nil)
				}
				summary.Errors++
				if !m.now().Before(deadline) {
					return finish(StopTimeout, nil)
				}
				continue
			}
			summary.Checked++
			if !didChange {
				continue
			}
			changed++
			summary.Changed++
			switch status {
			case records.ProcessingCompleted:
				summary.Completed++
			case records.ProcessingFailed:
				summary.Failed++
			}
		}

		if changed == 0 {
			if !m.now().Before(deadline) {
				return finish(StopTimeout, nil)
			}
			logging.WarnWithContext(logger, "verification stalled; no status changed this iteration", "verify_stalled",
				logging.Int("iteration", summary.Iterations),
				logging.Int("records", len(awaiting)),
				logging.String(logging.FieldErrorHint, "run verify again later to pick up remaining records"),
				logging.String(logging.FieldImpact, "some records are still processing"),
			)
			return finish(StopStalled, nil)
		}

		wait := interval
		if remaining := deadline.Sub(m.now()); remaining < wait {
			wait = remaining
		}
		if err := m.wait(loopCtx, wait); err != nil {
			return finish(stopReason(), nil)
		}
	}
}

// sleepUntil returns a backoff sleeper that never waits past deadline. A
// wait that would cross it sleeps the remainder and reports
// context.DeadlineExceeded so the retry loop gives up.
func (m *Manager) sleepUntil(deadline time.Time) retry.Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		remaining := deadline.Sub(m.now())
		if remaining <= 0 {
			return context.DeadlineExceeded
		}
		if d < remaining {
			return m.wait(ctx, d)
		}
		if err := m.wait(ctx, remaining); err != nil {
			return err
		}
		return context.DeadlineExceeded
	}
}

// checkRecord polls one record and applies the result. It always stamps
// last_checked_at, including when the check itself failed.
func (m *Manager) checkRecord(ctx context.Context, logger *slog.Logger, rec *records.Record, controller *retry.Controller) (records.ProcessingStatus, bool, error) {
	persistCtx := context.WithoutCancel(ctx)
	logger = logger.With(logging.RemoteID(rec.RemoteID))

	if rec.ExternalID == "" {
		err := fmt.Errorf("record %s has no external id", rec.RemoteID)
		logging.WarnWithContext(logger, "cannot verify record without external id", "verify_missing_external_id",
			logging.Error(err),
			logging.String(logging.FieldImpact, "record skipped this iteration"),
		)
		return "", false, err
	}

	call := &guardedCall{}
	result, err := guarded(ctx, call, controller, m.statusLimiter, "check_status", func(callCtx context.Context) (ingest.StatusResult, error) {
		return m.client.CheckStatus(callCtx, rec.ExternalID)
	})
	if err != nil {
		if interrupted(ctx, err) && call.calls == 0 {
			return "", false, err
		}
		if markErr := m.store.MarkChecked(persistCtx, rec.RemoteID, responseBody(err)); markErr != nil {
			logger.Warn("failed to stamp status check", logging.Error(markErr))
		}
		if interrupted(ctx, err) {
			return "", false, err
		}
		logging.WarnWithContext(logger, "status check failed", "verify_check_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, failure.KindOf(err).String()),
			logging.String("external_id", rec.ExternalID),
			logging.String(logging.FieldImpact, "record will be checked again next iteration"),
		)
		return "", false, err
	}

	status, known := mapProviderStatus(result.Status)
	if !known {
		logging.WarnWithContext(logger, "unknown provider status treated as pending", "verify_unknown_status",
			logging.String("provider_status", result.Status),
			logging.String(logging.FieldErrorHint, "the provider may have added a status; review its API changes"),
		)
	}
	m.metrics.ObserveStatusCheck(status)

	changed, err := m.store.UpdateProcessing(persistCtx, records.ProcessingUpdate{
		RemoteID:  rec.RemoteID,
		Status:    status,
		PageCount: result.PageCount,
		Response:  result.Raw,
	})
	if err != nil {
		m.setLastError(err)
		logger.Error("failed to persist status check",
			logging.Error(err),
			logging.String("from", rec.ProcessingStatus.String()),
			logging.String("to", status.String()),
			logging.String(logging.FieldEventType, "verify_persist_failed"),
		)
		return status, false, err
	}
	if changed {
		rec.ProcessingStatus = status
		m.setLastRecord(rec)
		logger.Info("processing status changed",
			logging.String(logging.FieldEventType, "processing_status_changed"),
			logging.String("status", status.String()),
		)
	}
	return status, changed, nil
}
