package api

import (
	"encoding/json"
	"time"

	"ferry/internal/records"
)

// FromRecord converts a stored record to its API representation.
func FromRecord(rec *records.Record) Record {
	if rec == nil {
		return Record{}
	}
	return Record{
		Seq:                  rec.Seq,
		RemoteID:             rec.RemoteID,
		Name:                 rec.Name,
		URL:                  rec.URL,
		Size:                 rec.Size,
		ContentType:          rec.ContentType,
		CreatedTime:          formatOptional(rec.CreatedTime),
		ModifiedTime:         formatOptional(rec.ModifiedTime),
		Fingerprint:          rec.Fingerprint,
		DuplicateOf:          rec.DuplicateOf,
		DuplicatePolicy:      rec.DuplicatePolicy,
		ExternalID:           rec.ExternalID,
		UploadStatus:         rec.UploadStatus.String(),
		ProcessingStatus:     rec.ProcessingStatus.String(),
		LastError:            rec.LastError,
		UploadResponse:       rawPayload(rec.UploadResponse),
		VerificationResponse: rawPayload(rec.VerificationResponse),
		PageCount:            rec.PageCount,
		AttemptCount:         rec.AttemptCount,
		DiscoveredAt:         formatTime(rec.DiscoveredAt),
		AttemptedAt:          formatOptional(rec.AttemptedAt),
		UploadedAt:           formatOptional(rec.UploadedAt),
		CompletedAt:          formatOptional(rec.CompletedAt),
		LastCheckedAt:        formatOptional(rec.LastCheckedAt),
		UpdatedAt:            formatTime(rec.UpdatedAt),
	}
}

// FromRecords converts a slice of records, preserving order.
func FromRecords(recs []*records.Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		out = append(out, FromRecord(rec))
	}
	return out
}

// FromStats converts store counts. Every known status is present in the
// maps, with zero for statuses no record currently has.
func FromStats(stats records.Stats) StatsResponse {
	resp := StatsResponse{
		Total:        stats.Total,
		Duplicates:   stats.Duplicates,
		ByUpload:     make(map[string]int),
		ByProcessing: make(map[string]int),
		Pairs:        make([]StatusPair, 0, len(stats.Pairs)),
	}
	for _, status := range records.UploadStatuses() {
		resp.ByUpload[status.String()] = stats.ByUpload[status]
	}
	resp.ByProcessing[records.ProcessingNone.String()] = stats.ByProcessing[records.ProcessingNone]
	for _, status := range records.ProcessingStatuses() {
		resp.ByProcessing[status.String()] = stats.ByProcessing[status]
	}
	for _, pair := range stats.Pairs {
		resp.Pairs = append(resp.Pairs, StatusPair{
			Upload:     pair.Upload.String(),
			Processing: pair.Processing.String(),
			Count:      pair.Count,
		})
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// rawPayload passes stored JSON through untouched and quotes anything else.
func rawPayload(raw string) json.RawMessage {
	if raw == "" {
		return nil
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	quoted, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	return quoted
}
