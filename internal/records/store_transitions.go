package records

import (
	"context"
	"fmt"
)

// ClaimNext atomically moves the next claimable record to uploading and
// returns it. Records are picked in discovery order. It returns (nil, nil)
// when nothing is claimable.
func (s *Store) ClaimNext(ctx context.Context, opts ClaimOptions) (*Record, error) {
	now := formatTime(s.timestamp())
	failedCutoff := now
	if !opts.FailedBefore.IsZero() {
		failedCutoff = formatTime(opts.FailedBefore)
	}
	rec, err := s.queryRecordWithRetry(
		ctx,
		`UPDATE file_records
         SET upload_status = ?, attempt_count = attempt_count + 1, attempted_at = ?, updated_at = ?
         WHERE seq = (
             SELECT seq FROM file_records
             WHERE upload_status = ?
                OR (? AND upload_status = ? AND (attempted_at IS NULL OR attempted_at < ?))
             ORDER BY discovered_at, seq
             LIMIT 1
         ) AND upload_status IN (?, ?)
         RETURNING `+recordColumns,
		UploadUploading, now, now,
		UploadPending,
		opts.IncludeFailed, UploadFailed, failedCutoff,
		UploadPending, UploadFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("claim next record: %w", err)
	}
	return rec, nil
}

// Claim moves one named record to uploading. A pending record is always
// claimable; a failed record only when includeFailed is set. When the record
// exists but cannot be claimed, its current state is returned together with
// ErrNotClaimable.
func (s *Store) Claim(ctx context.Context, remoteID string, includeFailed bool) (*Record, error) {
	now := formatTime(s.timestamp())
	rec, err := s.queryRecordWithRetry(
		ctx,
		`UPDATE file_records
         SET upload_status = ?, attempt_count = attempt_count + 1, attempted_at = ?, updated_at = ?
         WHERE remote_id = ? AND (upload_status = ? OR (? AND upload_status = ?))
         RETURNING `+recordColumns,
		UploadUploading, now, now,
		remoteID, UploadPending, includeFailed, UploadFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("claim record %s: %w", remoteID, err)
	}
	if rec != nil {
		return rec, nil
	}

	current, err := s.Get(ctx, remoteID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, remoteID)
	}
	return current, fmt.Errorf("%w: %s is %s", ErrNotClaimable, remoteID, current.UploadStatus)
}

// MarkUploaded records a successful upload: the provider id and raw response
// are stored, processing starts as pending and any earlier error is cleared.
func (s *Store) MarkUploaded(ctx context.Context, remoteID, externalID, response string) error {
	now := formatTime(s.timestamp())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE file_records
         SET upload_status = ?, processing_status = ?, external_id = ?, upload_response = ?,
             last_error = NULL, uploaded_at = ?, updated_at = ?
         WHERE remote_id = ? AND upload_status = ? AND processing_status IS NULL`,
		UploadCompleted, ProcessingPending, nullableString(externalID), nullableString(response),
		now, now,
		remoteID, UploadUploading,
	)
	if err != nil {
		return fmt.Errorf("mark uploaded %s: %w", remoteID, err)
	}
	return s.expectUploadTransition(ctx, res, remoteID, UploadCompleted)
}

// MarkUploadFailed records a failed upload attempt. Processing state is left untouched.
func (s *Store) MarkUploadFailed(ctx context.Context, remoteID, message, response string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE file_records
         SET upload_status = ?, last_error = ?, upload_response = ?, updated_at = ?
         WHERE remote_id = ? AND upload_status = ?`,
		UploadFailed, nullableString(message), nullableString(response), formatTime(s.timestamp()),
		remoteID, UploadUploading,
	)
	if err != nil {
		return fmt.Errorf("mark upload failed %s: %w", remoteID, err)
	}
	return s.expectUploadTransition(ctx, res, remoteID, UploadFailed)
}

// ReleaseClaim returns an uploading record to pending when it was claimed
// but no API call was made.
func (s *Store) ReleaseClaim(ctx context.Context, remoteID string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE file_records
         SET upload_status = ?, attempt_count = MAX(attempt_count - 1, 0), updated_at = ?
         WHERE remote_id = ? AND upload_status = ?`,
		UploadPending, formatTime(s.timestamp()),
		remoteID, UploadUploading,
	)
	if err != nil {
		return fmt.Errorf("release claim %s: %w", remoteID, err)
	}
	return s.expectUploadTransition(ctx, res, remoteID, UploadPending)
}

// ResetStuckUploads returns records left in uploading by an interrupted
// process to pending. Callers must hold the data directory lock.
func (s *Store) ResetStuckUploads(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE file_records SET upload_status = ?, updated_at = ? WHERE upload_status = ?`,
		UploadPending, formatTime(s.timestamp()), UploadUploading,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck uploads: %w", err)
	}
	return res.RowsAffected()
}

// ListAwaitingVerification returns uploaded records whose processing has not
// reached a terminal status, oldest upload first.
func (s *Store) ListAwaitingVerification(ctx context.Context) ([]*Record, error) {
	open := []any{UploadCompleted, ProcessingPending, ProcessingProcessing}
	return s.queryRecords(
		ctx,
		`SELECT `+recordColumns+` FROM file_records
         WHERE upload_status = ? AND processing_status IN (`+makePlaceholders(len(open)-1)+`)
         ORDER BY uploaded_at, seq`,
		open...,
	)
}

// UpdateProcessing applies a status check result. It always stamps
// last_checked_at and the raw response; changed reports whether the
// processing status moved. Page count and completed_at are only written when
// processing completes.
func (s *Store) UpdateProcessing(ctx context.Context, update ProcessingUpdate) (bool, error) {
	current, err := s.Get(ctx, update.RemoteID)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, fmt.Errorf("%w: %s", ErrNotFound, update.RemoteID)
	}
	if current.UploadStatus != UploadCompleted {
		return false, illegalTransition("processing_status", update.RemoteID, current.ProcessingStatus, update.Status)
	}

	now := formatTime(s.timestamp())
	if current.ProcessingStatus == update.Status {
		if err := s.MarkChecked(ctx, update.RemoteID, update.Response); err != nil {
			return false, err
		}
		return false, nil
	}
	if !current.ProcessingStatus.CanTransition(update.Status) {
		return false, illegalTransition("processing_status", update.RemoteID, current.ProcessingStatus, update.Status)
	}

	var (
		pageCount   any
		completedAt any
	)
	if update.Status == ProcessingCompleted {
		pageCount = nullableInt(update.PageCount)
		completedAt = now
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE file_records
         SET processing_status = ?, verification_response = ?, last_checked_at = ?, updated_at = ?,
             page_count = ?, completed_at = COALESCE(?, completed_at)
         WHERE remote_id = ? AND upload_status = ? AND processing_status = ?`,
		update.Status, nullableString(update.Response), now, now,
		pageCount, completedAt,
		update.RemoteID, UploadCompleted, current.ProcessingStatus,
	)
	if err != nil {
		return false, fmt.Errorf("update processing %s: %w", update.RemoteID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update processing %s: %w", update.RemoteID, err)
	}
	if affected == 0 {
		return false, illegalTransition("processing_status", update.RemoteID, current.ProcessingStatus, update.Status)
	}
	return true, nil
}

// MarkChecked stamps last_checked_at and the raw verification response
// without touching processing status.
func (s *Store) MarkChecked(ctx context.Context, remoteID, response string) error {
	now := formatTime(s.timestamp())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE file_records
         SET verification_response = COALESCE(?, verification_response), last_checked_at = ?, updated_at = ?
         WHERE remote_id = ?`,
		nullableString(response), now, now, remoteID,
	)
	if err != nil {
		return fmt.Errorf("mark checked %s: %w", remoteID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark checked %s: %w", remoteID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, remoteID)
	}
	return nil
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

// expectUploadTransition turns a zero-row guarded update into ErrNotFound or
// ErrIllegalTransition depending on the record's current state.
func (s *Store) expectUploadTransition(ctx context.Context, res rowsAffecter, remoteID string, to UploadStatus) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", remoteID, err)
	}
	if affected > 0 {
		return nil
	}
	current, err := s.Get(ctx, remoteID)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, remoteID)
	}
	return illegalTransition("upload_status", remoteID, current.UploadStatus, to)
}
