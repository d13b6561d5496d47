// Package api defines the read-only status API: wire-format types,
// converters from records, and the chi-based HTTP server that exposes them.
//
// # Routes
//
//	GET /health                  liveness
//	GET /api/stats               counts by upload/processing status
//	GET /api/records             records, filtered by ?upload=, ?processing=, ?duplicates=, ?limit=
//	GET /api/records/{remoteID}  one record
//	GET /metrics                 Prometheus exposition
//
// DTOs use camelCase JSON tags. Status enums are exposed as lowercase
// strings, with "none" for a record whose processing has not started.
// Timestamps use RFC3339 with milliseconds. Stored provider responses are
// passed through as json.RawMessage when they are valid JSON.
package api
