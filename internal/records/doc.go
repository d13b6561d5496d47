// Package records persists discovered remote files in SQLite and exposes the
// operations that move them through the upload and processing lifecycles.
//
// Each row is keyed by the source system's remote_id. Upload and processing
// state are tagged enums whose CanTransition methods define every legal move;
// the store's UPDATE statements guard on the prior state so an illegal
// transition never reaches disk and surfaces as ErrIllegalTransition instead.
//
// Claims are a single UPDATE ... RETURNING so two workers can never hold the
// same record. Timestamps are stored as fixed-width UTC text, which keeps
// lexical ordering identical to chronological ordering for the discovery-order
// queries that choose duplicate originals and the next record to upload.
//
// Schema changes bump schemaVersion in schema.go; an existing database with a
// different version is rejected with ErrSchemaMismatch.
package records
