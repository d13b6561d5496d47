package testsupport

import (
	"context"
	"fmt"
	"sync"

	"ferry/internal/ingest"
)

// FakeClient is an in-memory ingest.Client. Unless overridden, uploads
// succeed with an id derived from the source URL and every status check
// reports SUCCESS with one page.
type FakeClient struct {
	mu sync.Mutex

	UploadFunc func(ctx context.Context, sourceURL, folderID string) (ingest.UploadResult, error)
	StatusFunc func(ctx context.Context, externalID string) (ingest.StatusResult, error)

	uploads  map[string]int
	statuses map[string]int
}

var _ ingest.Client = (*FakeClient)(nil)

// NewFakeClient returns a FakeClient with default behaviour.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		uploads:  make(map[string]int),
		statuses: make(map[string]int),
	}
}

func (f *FakeClient) Upload(ctx context.Context, sourceURL, folderID string) (ingest.UploadResult, error) {
	f.mu.Lock()
	if f.uploads == nil {
		f.uploads = make(map[string]int)
	}
	f.uploads[sourceURL]++
	fn := f.UploadFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, sourceURL, folderID)
	}
	id := "ext-" + sourceURL
	return ingest.UploadResult{ExternalID: id, Raw: fmt.Sprintf(`{"id":%q}`, id)}, nil
}

func (f *FakeClient) CheckStatus(ctx context.Context, externalID string) (ingest.StatusResult, error) {
	f.mu.Lock()
	if f.statuses == nil {
		f.statuses = make(map[string]int)
	}
	f.statuses[externalID]++
	fn := f.StatusFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, externalID)
	}
	pages := 1
	return ingest.StatusResult{Status: "SUCCESS", PageCount: &pages, Raw: `{"status":"SUCCESS","page_count":1}`}, nil
}

// UploadCalls returns how often Upload was invoked for sourceURL.
func (f *FakeClient) UploadCalls(sourceURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads[sourceURL]
}

// TotalUploads returns the number of Upload invocations.
func (f *FakeClient) TotalUploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.uploads {
		total += n
	}
	return total
}

// StatusCalls returns how often CheckStatus was invoked for externalID.
func (f *FakeClient) StatusCalls(externalID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[externalID]
}

// TotalStatusChecks returns the number of CheckStatus invocations.
func (f *FakeClient) TotalStatusChecks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.statuses {
		total += n
	}
	return total
}
