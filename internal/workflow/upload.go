package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"ferry/internal/config"
	"ferry/internal/failure"
	"ferry/internal/ingest"
	"ferry/internal/logging"
	"ferry/internal/records"
	"ferry/internal/retry"
)

// UploadOptions controls one RunUploads call.
type UploadOptions struct {
	// Workers overrides workflow.workers when positive.
	Workers int
	// SkipRetries disables backoff retries and leaves failed records alone.
	SkipRetries bool
	// RemoteID restricts the run to a single record.
	RemoteID string
}

// UploadSummary counts the outcome of one upload run. New and Retried count
// claimed records by whether they had been attempted before. Failed matches
// the records left in the failed state, including those whose call failed
// before cancellation cut its retries short; those are also counted in
// Interrupted, next to claims released back to pending untouched.
type UploadSummary struct {
	New             int `json:"new"`
	Retried         int `json:"retried"`
	Succeeded       int `json:"succeeded"`
	Failed          int `json:"failed"`
	Interrupted     int `json:"interrupted"`
	AlreadyComplete int `json:"already_complete"`
}

type uploadOutcome int

const (
	outcomeSucceeded uploadOutcome = iota
	outcomeFailed
	outcomeReleased
	outcomeInterrupted
)

func (o uploadOutcome) metricLabel() string {
	switch o {
	case outcomeSucceeded:
		return "succeeded"
	case outcomeReleased:
		return "released"
	case outcomeInterrupted:
		return "interrupted"
	default:
		return "failed"
	}
}

type uploadTally struct {
	mu      sync.Mutex
	summary UploadSummary
	err     error
}

func (t *uploadTally) add(rec *records.Record, outcome uploadOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec.AttemptCount > 1 {
		t.summary.Retried++
	} else {
		t.summary.New++
	}
	switch outcome {
	case outcomeSucceeded:
		t.summary.Succeeded++
	case outcomeFailed:
		t.summary.Failed++
	case outcomeInterrupted:
		t.summary.Failed++
		t.summary.Interrupted++
	case outcomeReleased:
		t.summary.Interrupted++
	}
}

func (t *uploadTally) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		t.err = err
	}
}

func (t *uploadTally) result() (UploadSummary, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.summary, t.err
}

// RunUploads uploads every claimable record and returns when none are left
// or ctx ends. Pending records are always claimable; failed records are
// retried once per run unless SkipRetries is set. Cancellation is not an
// error: the summary reports what finished and unclaimed records stay
// pending.
func (m *Manager) RunUploads(ctx context.Context, opts UploadOptions) (UploadSummary, error) {
	if _, ok := logging.RunIDFromContext(ctx); !ok {
		ctx = logging.WithRunID(ctx, uuid.NewString())
	}
	logger := m.runLogger(ctx)
	m.setRunning(true)
	defer m.setRunning(false)

	tally := &uploadTally{}
	controller := m.retryController(logger, opts.SkipRetries)

	if opts.RemoteID != "" {
		if err := m.uploadSpecific(ctx, logger, opts, controller, tally); err != nil {
			return tally.summary, err
		}
		return tally.result()
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = m.cfg.Workflow.Workers
	}
	workers = min(max(workers, config.MinWorkers), config.MaxWorkers)

	claim := records.ClaimOptions{IncludeFailed: !opts.SkipRetries, FailedBefore: time.Now()}
	logger.Info(
		"upload run started",
		logging.String(logging.FieldEventType, "upload_run_start"),
		logging.Int("workers", workers),
		logging.Bool("skip_retries", opts.SkipRetries),
	)
	start := time.Now()

	var wg sync.WaitGroup
	for id := 1; id <= workers; id++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			m.uploadWorker(ctx, logger.With(logging.Int(logging.FieldWorker, workerID)), claim, controller, tally)
		}(id)
	}
	wg.Wait()

	summary, err := tally.result()
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "upload_run_complete"),
		logging.Int("new", summary.New),
		logging.Int("retried", summary.Retried),
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failed", summary.Failed),
		logging.Int("interrupted", summary.Interrupted),
		logging.Duration("duration", time.Since(start)),
	}
	if ctx.Err() != nil {
		attrs = append(attrs, logging.Bool("cancelled", true))
	}
	logger.Info("upload run finished", logging.Args(attrs...)...)
	return summary, err
}

func (m *Manager) uploadWorker(ctx context.Context, logger *slog.Logger, claim records.ClaimOptions, controller *retry.Controller, tally *uploadTally) {
	for {
		if ctx.Err() != nil {
			return
		}
		rec, err := m.store.ClaimNext(ctx, claim)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setLastError(err)
			logger.Error("failed to claim next record",
				logging.Error(err),
				logging.String(logging.FieldEventType, "claim_failed"),
				logging.String(logging.FieldErrorHint, "check record database access"),
			)
			tally.fail(fmt.Errorf("claim next record: %w", err))
			return
		}
		if rec == nil {
			return
		}
		outcome := m.processRecord(ctx, logger, rec, controller)
		tally.add(rec, outcome)
	}
}

func (m *Manager) uploadSpecific(ctx context.Context, logger *slog.Logger, opts UploadOptions, controller *retry.Controller, tally *uploadTally) error {
	rec, err := m.store.Claim(ctx, opts.RemoteID, !opts.SkipRetries)
	if errors.Is(err, records.ErrNotClaimable) && rec != nil && rec.UploadStatus == records.UploadCompleted {
		logger.Info("record already uploaded",
			logging.RemoteID(rec.RemoteID),
			logging.String(logging.FieldEventType, "upload_already_complete"),
			logging.String("external_id", rec.ExternalID),
		)
		tally.mu.Lock()
		tally.summary.AlreadyComplete++
		tally.mu.Unlock()
		return nil
	}
	if err != nil {
		return err
	}
	tally.add(rec, m.processRecord(ctx, logger, rec, controller))
	return nil
}

// processRecord uploads one claimed record. Panics are recovered and the
// record is marked failed so sibling workers keep going.
func (m *Manager) processRecord(ctx context.Context, logger *slog.Logger, rec *records.Record, controller *retry.Controller) (outcome uploadOutcome) {
	ctx = logging.WithRemoteID(ctx, rec.RemoteID)
	logger = logger.With(logging.RemoteID(rec.RemoteID))

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("upload panicked: %v", r)
			m.setLastError(err)
			logging.ErrorWithContext(logger, "record upload panicked", "upload_panic",
				logging.Error(err),
				logging.String("stack", string(debug.Stack())),
				logging.Alert("upload_panic"),
				logging.String(logging.FieldErrorHint, "report this failure; the record was marked failed"),
			)
			m.persistFailure(context.WithoutCancel(ctx), logger, rec.RemoteID, err.Error(), "")
			outcome = outcomeFailed
		}
		m.metrics.ObserveUpload(outcome.metricLabel())
	}()

	return m.upload(ctx, logger, rec, controller)
}

func (m *Manager) upload(ctx context.Context, logger *slog.Logger, rec *records.Record, controller *retry.Controller) uploadOutcome {
	persistCtx := context.WithoutCancel(ctx)
	logger.Debug("upload started",
		logging.String(logging.FieldEventType, "upload_start"),
		logging.Int(logging.FieldAttempt, rec.AttemptCount),
	)

	call := &guardedCall{}
	result, err := guarded(ctx, call, controller, m.uploadLimiter, "upload", func(callCtx context.Context) (ingest.UploadResult, error) {
		return m.client.Upload(callCtx, rec.URL, m.cfg.API.DestinationFolderID)
	})

	switch {
	case err == nil:
		if markErr := m.store.MarkUploaded(persistCtx, rec.RemoteID, result.ExternalID, result.Raw); markErr != nil {
			m.setLastError(markErr)
			logging.ErrorWithContext(logger, "failed to persist upload result", "upload_persist_failed",
				logging.Error(markErr),
				logging.String("external_id", result.ExternalID),
				logging.Alert("upload_unrecorded"),
				logging.String(logging.FieldErrorHint, "the file was uploaded but not recorded; it will be uploaded again next run"),
			)
			return outcomeFailed
		}
		rec.UploadStatus = records.UploadCompleted
		rec.ExternalID = result.ExternalID
		m.setLastRecord(rec)
		logger.Info("upload completed",
			logging.String(logging.FieldEventType, "upload_complete"),
			logging.String("external_id", result.ExternalID),
			logging.Int(logging.FieldAttempt, rec.AttemptCount),
		)
		return outcomeSucceeded

	case interrupted(ctx, err) && call.calls == 0:
		if relErr := m.store.ReleaseClaim(persistCtx, rec.RemoteID); relErr != nil {
			logger.Warn("failed to release claim", logging.Error(relErr))
		}
		logger.Info("upload interrupted before any call; record returned to pending",
			logging.String(logging.FieldEventType, "upload_released"),
		)
		return outcomeReleased

	case interrupted(ctx, err):
		cause := call.lastErr
		if cause == nil {
			cause = err
		}
		m.persistFailure(persistCtx, logger, rec.RemoteID, cause.Error(), responseBody(cause))
		logger.Info("upload interrupted during retries; last error recorded",
			logging.String(logging.FieldEventType, "upload_interrupted"),
			logging.String(logging.FieldErrorKind, failure.KindOf(cause).String()),
			logging.Error(cause),
		)
		return outcomeInterrupted

	default:
		m.setLastError(err)
		m.persistFailure(persistCtx, logger, rec.RemoteID, err.Error(), responseBody(err))
		kind := failure.KindOf(err)
		logging.WarnWithContext(logger, "upload failed", "upload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, kind.String()),
			logging.Int("api_calls", call.calls),
			logging.String(logging.FieldErrorHint, uploadHint(kind)),
			logging.String(logging.FieldImpact, "record marked failed; it is retried on the next run"),
		)
		return outcomeFailed
	}
}

func (m *Manager) persistFailure(ctx context.Context, logger *slog.Logger, remoteID, message, response string) {
	if err := m.store.MarkUploadFailed(ctx, remoteID, message, response); err != nil {
		logger.Error("failed to persist upload failure",
			logging.Error(err),
			logging.String(logging.FieldEventType, "upload_persist_failed"),
			logging.String(logging.FieldErrorHint, "check record database access"),
		)
	}
}

func uploadHint(kind failure.Kind) string {
	switch kind {
	case failure.KindAuthentication:
		return "check api.api_key and folder permissions"
	case failure.KindValidation:
		return "the provider rejected the file; inspect last_error and upload_response"
	case failure.KindTransient, failure.KindNetwork:
		return "provider or network unavailable after retries"
	default:
		return "inspect upload_response for the provider's answer"
	}
}
