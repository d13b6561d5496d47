package logging

const (
	// FieldComponent names the subsystem emitting the log line.
	FieldComponent = "component"
	// FieldRemoteID identifies the file record being processed.
	FieldRemoteID = "remote_id"
	// FieldRunID correlates every line written by one CLI invocation.
	FieldRunID = "run_id"
	// FieldWorker is the upload worker index.
	FieldWorker = "worker"
	// FieldEventType classifies the event for filtering (upload_failed, verify_stalled, ...).
	FieldEventType = "event_type"
	// FieldErrorHint is a short next-step suggestion for operators.
	FieldErrorHint = "error_hint"
	// FieldErrorKind is the failure classification of an API error.
	FieldErrorKind = "error_kind"
	// FieldAttempt is the 1-based attempt number of a retried call.
	FieldAttempt = "attempt"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags anomalies that should stand out.
	FieldAlert = "alert"
)
