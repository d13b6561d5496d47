package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Insert stores a newly discovered record. An existing remote_id is left
// untouched and Insert reports false. On success rec is refreshed with the
// stored row, including Seq and DiscoveredAt.
func (s *Store) Insert(ctx context.Context, rec *Record) (bool, error) {
	if rec == nil {
		return false, errors.New("record is nil")
	}
	if strings.TrimSpace(rec.RemoteID) == "" {
		return false, errors.New("record remote_id is required")
	}
	if strings.TrimSpace(rec.URL) == "" {
		return false, fmt.Errorf("record %s: url is required", rec.RemoteID)
	}

	now := s.timestamp()
	discovered := rec.DiscoveredAt
	if discovered.IsZero() {
		discovered = now
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO file_records (
            remote_id, name, url, size, content_type, created_time, modified_time,
            fingerprint, duplicate_of_remote_id, duplicate_policy,
            upload_status, attempt_count, discovered_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
        ON CONFLICT(remote_id) DO NOTHING`,
		rec.RemoteID,
		nullableString(rec.Name),
		rec.URL,
		nullableInt64(rec.Size),
		nullableString(rec.ContentType),
		nullableTime(rec.CreatedTime),
		nullableTime(rec.ModifiedTime),
		nullableString(rec.Fingerprint),
		nullableString(rec.DuplicateOf),
		nullableString(rec.DuplicatePolicy),
		UploadPending,
		formatTime(discovered),
		formatTime(now),
	)
	if err != nil {
		return false, fmt.Errorf("insert record %s: %w", rec.RemoteID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert record %s: %w", rec.RemoteID, err)
	}
	if affected == 0 {
		return false, nil
	}

	stored, err := s.Get(ctx, rec.RemoteID)
	if err != nil {
		return true, err
	}
	if stored != nil {
		*rec = *stored
	}
	return true, nil
}

// Get fetches a record by remote_id. A missing record returns (nil, nil).
func (s *Store) Get(ctx context.Context, remoteID string) (*Record, error) {
	rec, err := s.queryRecordWithRetry(ctx, `SELECT `+recordColumns+` FROM file_records WHERE remote_id = ?`, remoteID)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// FindByFingerprint returns the earliest-discovered record sharing fp, ties
// broken by insertion order, ignoring the record named by excludingRemoteID.
func (s *Store) FindByFingerprint(ctx context.Context, fp, excludingRemoteID string) (*Record, error) {
	if fp == "" {
		return nil, nil
	}
	rec, err := s.queryRecordWithRetry(
		ctx,
		`SELECT `+recordColumns+` FROM file_records
         WHERE fingerprint = ? AND remote_id <> ?
         ORDER BY discovered_at, seq
         LIMIT 1`,
		fp,
		excludingRemoteID,
	)
	if err != nil {
		return nil, fmt.Errorf("find by fingerprint: %w", err)
	}
	return rec, nil
}

// List returns records matching filter in discovery order.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Record, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.UploadStatus != "" {
		clauses = append(clauses, "upload_status = ?")
		args = append(args, filter.UploadStatus)
	}
	if filter.ProcessingStatus != nil {
		if *filter.ProcessingStatus == ProcessingNone {
			clauses = append(clauses, "processing_status IS NULL")
		} else {
			clauses = append(clauses, "processing_status = ?")
			args = append(args, *filter.ProcessingStatus)
		}
	}
	if filter.DuplicatesOnly {
		clauses = append(clauses, "duplicate_of_remote_id IS NOT NULL")
	}

	query := `SELECT ` + recordColumns + ` FROM file_records`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY discovered_at, seq"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return s.queryRecords(ctx, query, args...)
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*Record, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Remove deletes a record. Duplicates that referenced it keep their link.
func (s *Store) Remove(ctx context.Context, remoteID string) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM file_records WHERE remote_id = ?`, remoteID)
	if err != nil {
		return fmt.Errorf("remove record %s: %w", remoteID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove record %s: %w", remoteID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, remoteID)
	}
	return nil
}

// Stats returns record counts grouped by upload and processing status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	stats := Stats{
		ByUpload:     make(map[UploadStatus]int),
		ByProcessing: make(map[ProcessingStatus]int),
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT upload_status, COALESCE(processing_status, ''), COUNT(1)
        FROM file_records
        GROUP BY upload_status, processing_status
        ORDER BY upload_status, processing_status`)
	if err != nil {
		return Stats{}, fmt.Errorf("record stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			upload     UploadStatus
			processing ProcessingStatus
			count      int
		)
		if err := rows.Scan(&upload, &processing, &count); err != nil {
			return Stats{}, fmt.Errorf("scan stats: %w", err)
		}
		stats.Total += count
		stats.ByUpload[upload] += count
		stats.ByProcessing[processing] += count
		stats.Pairs = append(stats.Pairs, StatusPair{Upload: upload, Processing: processing, Count: count})
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	if err := rows.Close(); err != nil {
		return Stats{}, err
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM file_records WHERE duplicate_of_remote_id IS NOT NULL`,
	).Scan(&stats.Duplicates); err != nil {
		return Stats{}, fmt.Errorf("count duplicates: %w", err)
	}
	return stats, nil
}
