// Command ferry moves documents discovered in a remote folder into a
// document-ingestion API and tracks each one until the provider finishes
// processing it.
//
// Every command works against the SQLite database in the configured data
// directory, so a run can be interrupted at any point and resumed by
// running the same command again. Commands that change record state hold
// an exclusive lock on <data_dir>/ferry.lock for their duration; read-only
// commands (status, records list/show, serve) do not.
//
// Typical usage:
//
//	ferry discover --manifest files.json
//	ferry upload
//	ferry verify
//
// or all three at once with `ferry run --manifest files.json`.
package main
