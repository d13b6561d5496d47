// Package workflow drives file records through upload and verification.
//
// RunUploads starts a bounded pool of workers. Each worker claims the next
// claimable record from the store (an atomic pending|failed -> uploading
// transition), calls the ingestion API through the shared upload rate
// limiter and the retry controller, and persists the outcome. A panic or
// unexpected error is confined to the record that caused it.
//
// RunVerification polls the provider for every uploaded record whose
// processing has not reached a terminal status, through the same guarded
// call stack, until nothing is left, an iteration changes nothing, the
// wall-clock budget runs out or the iteration cap is reached.
//
// Cancellation is cooperative: workers stop claiming once ctx ends, calls
// already on the wire finish on a detached context, and their results are
// persisted before the run returns.
package workflow
