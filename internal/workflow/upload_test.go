package workflow_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"ferry/internal/failure"
	"ferry/internal/ingest"
	"ferry/internal/records"
	"ferry/internal/testsupport"
	"ferry/internal/workflow"
)

func transientErr() error {
	return failure.FromStatus("upload", 503, []byte(`{"error":"busy"}`))
}

func TestRunUploadsProcessesEveryPendingRecord(t *testing.T) {
	h := newHarness(t, []testsupport.ConfigOption{testsupport.WithWorkers(3)})
	ids := []string{"a", "b", "c", "d", "e"}
	h.seed(t, ids...)

	summary, err := h.mgr.RunUploads(context.Background(), workflow.UploadOptions{})
	if err != nil {
		t.Fatalf("RunUploads: %v", err)
	}
	if summary.New != 5 || summary.Succeeded != 5 || summary.Failed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	for _, id := range ids {
		rec := testsupport.MustGet(t, h.store, id)
		if rec.UploadStatus != records.UploadCompleted || rec.ProcessingStatus != records.ProcessingPending {
			t.Fatalf("%s: unexpected state %s/%s", id, rec.UploadStatus, rec.ProcessingStatus)
		}
		if rec.ExternalID != externalIDFor(id) {
			t.Fatalf("%s: unexpected external id %q", id, rec.ExternalID)
		}
		if n := h.client.UploadCalls(urlFor(id)); n != 1 {
			t.Fatalf("%s uploaded %d times", id, n)
		}
	}
}

func TestRunUploadsResumesWithoutReuploading(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, "done", "broken")

	h.client.UploadFunc = func(ctx context.Context, sourceURL, folderID string) (ingest.UploadResult, error) {
		if sourceURL == urlFor("broken") {
			return ingest.UploadResult{}, failure.FromStatus("upload", 422, []byte(`{"error":"unsupported"}`))
		}
		return ingest.UploadResult{ExternalID: "x-" + sourceURL, Raw: `{}`}, nil
	}
	first, err := h.mgr.RunUploads(context.Background(), workflow.UploadOptions{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Succeeded != 1 || first.Failed != 1 {
		t.Fatalf("unexpected first summary %+v", first)
	}

	second, err := h.mgr.RunUploads(context.Background(), workflow.UploadOptions{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Retried != 1 || second.New != 0 {
		t.Fatalf("expected only the failed record to be retried, got %+v", second)
	}
	if n := h.client.UploadCalls(urlFor("done")); n != 1 {
		t.Fatalf("completed record re-uploaded: %d calls", n)
	}
	if n := h.client.UploadCalls(urlFor("broken")); n != 2 {
		t.Fatalf("expected failed record to be retried once per run, got %d calls", n)
	}
}

func TestSuccessfulRetryClearsLastError(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, "a")

	var calls atomic.Int32
	h.client.UploadFunc = func(ctx context.Context, sourceURL, folderID string) (ingest.UploadResult, error) {
		if calls.Add(1) == 1 {
			return ingest.UploadResult{}, failure.FromStatus("upload", 400, []byte(`{"error":"bad"}`))
		}
		return ingest.UploadResult{ExternalID: "ok", Raw: `{"id":"ok"}`}, nil
	}

	if _, err := h.mgr.RunUploads(context.Background(), workflow.UploadOptions{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	failed := testsupport.MustGet(t, h.store, "a")
	if failed.UploadStatus != records.UploadFailed || !strings.Contains(failed.LastError, "validation") {
		t.Fatalf("expected classified failure, got %s %q", failed.UploadStatus, failed.LastError)
	}
	if failed.UploadResponse != `{"error":"bad"}` {
		t.Fatalf("expected raw response to be stored, got %q", failed.UploadResponse)
	}

	if _, err := h.mgr.RunUploads(context.Background(), workflow.UploadOptions{}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	done := testsupport.MustGet(t, h.store, "a")
	if done.UploadStatus != records.UploadCompleted || done.LastError != "" {
		t.Fatalf("expected cleared error after success, got %s %q", done.UploadStatus, done.LastError)
	}
}

func TestTransientFailuresAreRetriedWithinRun(t *testing.T) {
	h := newHarness(t, []testsupport.ConfigOption{testsupport.WithRetries(3)})
	h.seed(t, "a")

	var calls atomic.Int32
	h.client.UploadFunc = func(ctx context.Context, sourceURL, folderID string) (ingest.UploadResult, error) {
		if calls.Add(1) < 3 {
			return ingest.UploadResult{}, transientErr()
		}
		return ingest.UploadResult{ExternalID: "ok"}, nil
	}
	summary, err := h.mgr.RunUploads(context.Background(), workflow.UploadOptions{})
	if err != nil {
		t.Fatalf("RunUploads: %v", err)
	}
	if summary.Succeeded != 1 || calls.Load() != 3 {
		t.Fatalf("expected success on third call, got %+v after %d calls", summary, calls.Load())
	}
}

func TestSkipRetriesMakesOneAttempt(t *testing.T) {
	h := newHarness(t, []testsupport.ConfigOption{testsupport.WithRetries(3)})
	h.seed(t, "a")
	h.client.UploadFunc = func(ctx context.Context, sourceURL, folderID string) (ingest.UploadResult, error) {
		return ingest.UploadResult{}, transientErr()
	}

	summary, err := h.mgr.RunUploads(context.Background(), workflow.UploadOptions{SkipRetries: true})
	if err != nil {
		t.Fatalf("RunUploads: %v", err)
	}
	if summary.Failed != 1 || h.client.TotalUploads() != 1 {
		t.Fatalf("expected a single failed call, got %+v after %d calls", summary, h.client.TotalUploads())
	}

	again, err := h.mgr.RunUploads(context.Background(), workflow.UploadOptions{SkipRetries: true})
	if err != nil {
		t.Fatalf("RunUploads: %v", err)
	}
	if again != (workflow.UploadSummary{}) || h.client.TotalUploads() != 1 {
		t.Fatalf("failed record must be left alone with skip retries, got %+v", again)
	}
}

func TestPanicIsConfinedToOneRecord(t *testing.T) {
	h := newHarness(t, []testsupport.ConfigOption{testsupport.WithWorkers(2)})
	h.seed(t, "a", "boom", "c")
	h.client.UploadFunc = func(ctx context.Context, sourceURL, folderID string) (ingest.UploadResult, error) {
		if sourceURL == urlFor("boom") {
			panic("provider client exploded")
		}
		return ingest.UploadResult{ExternalID: "ok-" + sourceURL}, nil
	}

	summary, err := h.mgr.RunUploads(context.Background(), workflow.UploadOptions{})
	if err != nil {
		t.Fatalf("RunUploads: %v", err)
	}
	if summary.Succeeded != 2 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	boom := testsupport.MustGet(t, h.store, "boom")
	if boom.UploadStatus != records.UploadFailed || !strings.Contains(boom.LastError, "panicked") {
		t.Fatalf("expected panicking record to be failed, got %s %q", boom.UploadStatus, boom.LastError)
	}
}

func TestSpecificRecordSelector(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, "a", "b")

	summary, err := h.mgr.RunUploads(context.Background(), workflow.UploadOptions{RemoteID: "b"})
	if err != nil {
		t.Fatalf("RunUploads: %v", err)
	}
	if summary.Succeeded != 1 || h.client.UploadCalls(urlFor("a")) != 0 {
		t.Fatalf("expected only b to be uploaded, got %+v", summary)
	}

	again, err := h.mgr.RunUploads(context.Background(), workflow.UploadOptions{RemoteID: "b"})
	if err != nil {
		t.Fatalf("RunUploads: %v", err)
	}
	if again.AlreadyComplete != 1 || h.client.UploadCalls(urlFor("b")) != 1 {
		t.Fatalf("completed record must not be re-uploaded, got %+v", again)
	}

	if _, err := h.mgr.RunUploads(context.Background(), workflow.UploadOptions{RemoteID: "missing"}); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSpecificFailedRecordHonoursSkipRetries(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, "a")
	h.client.UploadFunc = func(ctx context.Context, sourceURL, folderID string) (ingest.UploadResult, error) {
		return ingest.UploadResult{}, failure.FromStatus("upload", 404, nil)
	}
	if _, err := h.mgr.RunUploads(context.Background(), workflow.UploadOptions{RemoteID: "a"}); err != nil {
		t.Fatalf("RunUploads: %v", err)
	}
	if _, err := h.mgr.RunUploads(context.Background(), workflow.UploadOptions{RemoteID: "a", SkipRetries: true}); !errors.Is(err, records.ErrNotClaimable) {
		t.Fatalf("expected ErrNotClaimable with skip retries, got %v", err)
	}
}

func TestCancelledRunLeavesUnclaimedRecordsPending(t *testing.T) {
	h := newHarness(t, []testsupport.ConfigOption{testsupport.WithWorkers(1)})
	h.seed(t, "a", "b", "c")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.client.UploadFunc = func(callCtx context.Context, sourceURL, folderID string) (ingest.UploadResult, error) {
		cancel()
		if callCtx.Err() != nil {
			t.Error("in-flight call must not observe run cancellation")
		}
		return ingest.UploadResult{ExternalID: "ok"}, nil
	}

	summary, err := h.mgr.RunUploads(ctx, workflow.UploadOptions{})
	if err != nil {
		t.Fatalf("RunUploads: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("expected the in-flight upload to finish, got %+v", summary)
	}
	if a := testsupport.MustGet(t, h.store, "a"); a.UploadStatus != records.UploadCompleted {
		t.Fatalf("expected a completed, got %s", a.UploadStatus)
	}
	for _, id := range []string{"b", "c"} {
		if rec := testsupport.MustGet(t, h.store, id); rec.UploadStatus != records.UploadPending {
			t.Fatalf("%s: expected pending, got %s", id, rec.UploadStatus)
		}
	}
}

func TestCancelDuringBackoffRecordsLastError(t *testing.T) {
	h := newHarness(t, []testsupport.ConfigOption{testsupport.WithRetries(3)})
	h.seed(t, "a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.client.UploadFunc = func(context.Context, string, string) (ingest.UploadResult, error) {
		cancel()
		return ingest.UploadResult{}, transientErr()
	}

	summary, err := h.mgr.RunUploads(ctx, workflow.UploadOptions{})
	if err != nil {
		t.Fatalf("RunUploads: %v", err)
	}
	if summary.Interrupted != 1 || h.client.TotalUploads() != 1 {
		t.Fatalf("expected one interrupted record after one call, got %+v", summary)
	}
	if summary.Failed != 1 || summary.Succeeded != 0 {
		t.Fatalf("a record persisted as failed must count as failed, got %+v", summary)
	}
	rec := testsupport.MustGet(t, h.store, "a")
	if rec.UploadStatus != records.UploadFailed || !strings.Contains(rec.LastError, "transient") {
		t.Fatalf("expected the provider error to be recorded, got %s %q", rec.UploadStatus, rec.LastError)
	}
}

func TestCancelWhileWaitingForLimiterReleasesClaim(t *testing.T) {
	h := newHarness(t, []testsupport.ConfigOption{testsupport.WithWorkers(2)})
	h.cfg.RateLimit.UploadRPM = 1
	h.seed(t, "a", "b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int32
	h.client.UploadFunc = func(context.Context, string, string) (ingest.UploadResult, error) {
		calls.Add(1)
		cancel()
		return ingest.UploadResult{ExternalID: "ok"}, nil
	}
	// At one upload per minute the second worker is parked in the limiter
	// when the first call cancels the run.
	mgr := workflow.NewManager(h.cfg, h.store, h.client, nil, workflow.WithSleeper(noSleep))
	summary, err := mgr.RunUploads(ctx, workflow.UploadOptions{})
	if err != nil {
		t.Fatalf("RunUploads: %v", err)
	}
	if calls.Load() != 1 || summary.Succeeded != 1 {
		t.Fatalf("expected exactly one upload, got %+v after %d calls", summary, calls.Load())
	}
	if summary.Interrupted != 1 || summary.Failed != 0 {
		t.Fatalf("a released claim is interrupted but not failed, got %+v", summary)
	}

	var pending *records.Record
	for _, id := range []string{"a", "b"} {
		if rec := testsupport.MustGet(t, h.store, id); rec.UploadStatus == records.UploadPending {
			pending = rec
		}
	}
	if pending == nil {
		t.Fatal("expected the record without an API call to be back in pending")
	}
	if pending.AttemptCount != 0 {
		t.Fatalf("released claim should not count as an attempt, got %d", pending.AttemptCount)
	}
}
