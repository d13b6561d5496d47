package records

import (
	"database/sql"
	"time"
)

// timeLayout is fixed width so string comparison in SQL matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const recordColumns = "seq, remote_id, name, url, size, content_type, created_time, modified_time, fingerprint, duplicate_of_remote_id, duplicate_policy, external_id, upload_status, processing_status, last_error, upload_response, verification_response, page_count, attempt_count, discovered_at, attempted_at, uploaded_at, completed_at, last_checked_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		seq              int64
		remoteID         string
		name             sql.NullString
		url              string
		size             sql.NullInt64
		contentType      sql.NullString
		createdRaw       sql.NullString
		modifiedRaw      sql.NullString
		fingerprint      sql.NullString
		duplicateOf      sql.NullString
		duplicatePolicy  sql.NullString
		externalID       sql.NullString
		uploadStatus     string
		processingStatus sql.NullString
		lastError        sql.NullString
		uploadResponse   sql.NullString
		verifyResponse   sql.NullString
		pageCount        sql.NullInt64
		attemptCount     int
		discoveredRaw    string
		attemptedRaw     sql.NullString
		uploadedRaw      sql.NullString
		completedRaw     sql.NullString
		checkedRaw       sql.NullString
		updatedRaw       string
	)

	if err := scanner.Scan(
		&seq,
		&remoteID,
		&name,
		&url,
		&size,
		&contentType,
		&createdRaw,
		&modifiedRaw,
		&fingerprint,
		&duplicateOf,
		&duplicatePolicy,
		&externalID,
		&uploadStatus,
		&processingStatus,
		&lastError,
		&uploadResponse,
		&verifyResponse,
		&pageCount,
		&attemptCount,
		&discoveredRaw,
		&attemptedRaw,
		&uploadedRaw,
		&completedRaw,
		&checkedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	rec := &Record{
		Seq:                  seq,
		RemoteID:             remoteID,
		Name:                 name.String,
		URL:                  url,
		ContentType:          contentType.String,
		CreatedTime:          parseNullableTime(createdRaw),
		ModifiedTime:         parseNullableTime(modifiedRaw),
		Fingerprint:          fingerprint.String,
		DuplicateOf:          duplicateOf.String,
		DuplicatePolicy:      duplicatePolicy.String,
		ExternalID:           externalID.String,
		UploadStatus:         UploadStatus(uploadStatus),
		ProcessingStatus:     ProcessingStatus(processingStatus.String),
		LastError:            lastError.String,
		UploadResponse:       uploadResponse.String,
		VerificationResponse: verifyResponse.String,
		AttemptCount:         attemptCount,
		AttemptedAt:          parseNullableTime(attemptedRaw),
		UploadedAt:           parseNullableTime(uploadedRaw),
		CompletedAt:          parseNullableTime(completedRaw),
		LastCheckedAt:        parseNullableTime(checkedRaw),
	}
	if size.Valid {
		v := size.Int64
		rec.Size = &v
	}
	if pageCount.Valid {
		v := int(pageCount.Int64)
		rec.PageCount = &v
	}
	if t, err := time.Parse(timeLayout, discoveredRaw); err == nil {
		rec.DiscoveredAt = t
	}
	if t, err := time.Parse(timeLayout, updatedRaw); err == nil {
		rec.UpdatedAt = t
	}
	return rec, nil
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return formatTime(*value)
}

func nullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, raw.String)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, raw.String); err != nil {
			return nil
		}
	}
	return &t
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
