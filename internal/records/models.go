package records

import (
	"fmt"
	"strings"
	"time"
)

// UploadStatus tracks a record through the upload phase.
type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadUploading UploadStatus = "uploading"
	UploadCompleted UploadStatus = "completed"
	UploadFailed    UploadStatus = "failed"
)

var allUploadStatuses = []UploadStatus{
	UploadPending,
	UploadUploading,
	UploadCompleted,
	UploadFailed,
}

// UploadStatuses returns every upload status in lifecycle order.
func UploadStatuses() []UploadStatus {
	out := make([]UploadStatus, len(allUploadStatuses))
	copy(out, allUploadStatuses)
	return out
}

// ParseUploadStatus normalizes a user-provided upload status.
func ParseUploadStatus(value string) (UploadStatus, bool) {
	normalized := UploadStatus(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allUploadStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

func (s UploadStatus) String() string { return string(s) }

// CanTransition reports whether the upload lifecycle allows moving from s to next.
func (s UploadStatus) CanTransition(next UploadStatus) bool {
	switch s {
	case UploadPending:
		return next == UploadUploading
	case UploadFailed:
		return next == UploadUploading
	case UploadUploading:
		return next == UploadCompleted || next == UploadFailed || next == UploadPending
	case UploadCompleted:
		return false
	default:
		return false
	}
}

// ProcessingStatus tracks provider-side processing once an upload succeeded.
// The zero value means processing has not started.
type ProcessingStatus string

const (
	ProcessingNone       ProcessingStatus = ""
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingProcessing ProcessingStatus = "processing"
	ProcessingCompleted  ProcessingStatus = "completed"
	ProcessingFailed     ProcessingStatus = "failed"
)

var allProcessingStatuses = []ProcessingStatus{
	ProcessingPending,
	ProcessingProcessing,
	ProcessingCompleted,
	ProcessingFailed,
}

// ProcessingStatuses returns every non-empty processing status.
func ProcessingStatuses() []ProcessingStatus {
	out := make([]ProcessingStatus, len(allProcessingStatuses))
	copy(out, allProcessingStatuses)
	return out
}

// ParseProcessingStatus normalizes a user-provided processing status.
// "none" selects records whose processing has not started.
func ParseProcessingStatus(value string) (ProcessingStatus, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "none" {
		return ProcessingNone, true
	}
	for _, status := range allProcessingStatuses {
		if string(status) == normalized {
			return status, true
		}
	}
	return "", false
}

// Terminal reports whether no further processing transitions are possible.
func (s ProcessingStatus) Terminal() bool {
	return s == ProcessingCompleted || s == ProcessingFailed
}

// CanTransition reports whether the processing lifecycle allows moving from
// s to next. Staying in the same status is not a transition.
func (s ProcessingStatus) CanTransition(next ProcessingStatus) bool {
	switch s {
	case ProcessingNone:
		return next == ProcessingPending
	case ProcessingPending:
		return next == ProcessingProcessing || next == ProcessingCompleted || next == ProcessingFailed
	case ProcessingProcessing:
		return next == ProcessingPending || next == ProcessingCompleted || next == ProcessingFailed
	case ProcessingCompleted, ProcessingFailed:
		return false
	default:
		return false
	}
}

// String renders the empty status as "none" for display.
func (s ProcessingStatus) String() string {
	if s == ProcessingNone {
		return "none"
	}
	return string(s)
}

func illegalTransition(field, remoteID string, from, to fmt.Stringer) error {
	return fmt.Errorf("%w: %s %s -> %s for %s", ErrIllegalTransition, field, from, to, remoteID)
}

// Record is one discovered remote file.
type Record struct {
	Seq          int64
	RemoteID     string
	Name         string
	URL          string
	Size         *int64
	ContentType  string
	CreatedTime  *time.Time
	ModifiedTime *time.Time

	Fingerprint     string
	DuplicateOf     string
	DuplicatePolicy string

	ExternalID           string
	UploadStatus         UploadStatus
	ProcessingStatus     ProcessingStatus
	LastError            string
	UploadResponse       string
	VerificationResponse string
	PageCount            *int
	AttemptCount         int

	DiscoveredAt  time.Time
	AttemptedAt   *time.Time
	UploadedAt    *time.Time
	CompletedAt   *time.Time
	LastCheckedAt *time.Time
	UpdatedAt     time.Time
}

// IsDuplicate reports whether the record was linked to an earlier original.
func (r *Record) IsDuplicate() bool {
	return r != nil && r.DuplicateOf != ""
}

// ClaimOptions controls which records ClaimNext may pick.
type ClaimOptions struct {
	// IncludeFailed makes failed records claimable alongside pending ones.
	IncludeFailed bool
	// FailedBefore limits failed records to those last attempted before this
	// instant, so a single run retries each failure at most once.
	FailedBefore time.Time
}

// ProcessingUpdate is the outcome of one provider status check.
type ProcessingUpdate struct {
	RemoteID  string
	Status    ProcessingStatus
	PageCount *int
	Response  string
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	UploadStatus     UploadStatus
	ProcessingStatus *ProcessingStatus
	DuplicatesOnly   bool
	Limit            int
}

// StatusPair counts records sharing one upload/processing combination.
type StatusPair struct {
	Upload     UploadStatus
	Processing ProcessingStatus
	Count      int
}

// Stats aggregates record counts for reporting.
type Stats struct {
	Total        int
	Duplicates   int
	ByUpload     map[UploadStatus]int
	ByProcessing map[ProcessingStatus]int
	Pairs        []StatusPair
}
