// Package logging builds the slog loggers used by ferry.
//
// Console output is a compact human-readable line per event with the
// component and record subject up front; JSON output follows the same field
// keys so log files can be filtered by remote_id, run_id, or event_type.
// When a data directory is configured the persistent log file always receives
// JSON, regardless of the console format.
//
// Components should obtain loggers through NewComponentLogger and attach
// per-record fields with WithContext so every line carries the same shape.
package logging
