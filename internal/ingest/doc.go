// Package ingest talks to the document ingestion API.
//
// Client is the seam the workflow depends on; HTTPClient is the production
// implementation. Every error returned by HTTPClient is a *failure.Error so
// callers can decide retry eligibility without inspecting transport details.
package ingest
