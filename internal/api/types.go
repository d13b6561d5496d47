package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Record describes a file record in a transport-friendly format.
type Record struct {
	Seq                  int64           `json:"seq"`
	RemoteID             string          `json:"remoteId"`
	Name                 string          `json:"name"`
	URL                  string          `json:"url"`
	Size                 *int64          `json:"size,omitempty"`
	ContentType          string          `json:"contentType,omitempty"`
	CreatedTime          string          `json:"createdTime,omitempty"`
	ModifiedTime         string          `json:"modifiedTime,omitempty"`
	Fingerprint          string          `json:"fingerprint,omitempty"`
	DuplicateOf          string          `json:"duplicateOf,omitempty"`
	DuplicatePolicy      string          `json:"duplicatePolicy,omitempty"`
	ExternalID           string          `json:"externalId,omitempty"`
	UploadStatus         string          `json:"uploadStatus"`
	ProcessingStatus     string          `json:"processingStatus"`
	LastError            string          `json:"lastError,omitempty"`
	UploadResponse       json.RawMessage `json:"uploadResponse,omitempty"`
	VerificationResponse json.RawMessage `json:"verificationResponse,omitempty"`
	PageCount            *int            `json:"pageCount,omitempty"`
	AttemptCount         int             `json:"attemptCount"`
	DiscoveredAt         string          `json:"discoveredAt,omitempty"`
	AttemptedAt          string          `json:"attemptedAt,omitempty"`
	UploadedAt           string          `json:"uploadedAt,omitempty"`
	CompletedAt          string          `json:"completedAt,omitempty"`
	LastCheckedAt        string          `json:"lastCheckedAt,omitempty"`
	UpdatedAt            string          `json:"updatedAt,omitempty"`
}

// StatusPair counts records sharing an upload/processing combination.
type StatusPair struct {
	Upload     string `json:"upload"`
	Processing string `json:"processing"`
	Count      int    `json:"count"`
}

// StatsResponse provides normalized record counts.
type StatsResponse struct {
	Total        int            `json:"total"`
	Duplicates   int            `json:"duplicates"`
	ByUpload     map[string]int `json:"byUpload"`
	ByProcessing map[string]int `json:"byProcessing"`
	Pairs        []StatusPair   `json:"pairs"`
}

// RecordListResponse wraps a collection of records.
type RecordListResponse struct {
	Records []Record `json:"records"`
}

// RecordResponse wraps a single record.
type RecordResponse struct {
	Record Record `json:"record"`
}

// HealthResponse reports liveness and the database location.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// ErrorResponse is returned for every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}
