package discovery_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ferry/internal/discovery"
	"ferry/internal/fingerprint"
	"ferry/internal/logging"
	"ferry/internal/records"
	"ferry/internal/testsupport"
)

func int64Ptr(v int64) *int64 { return &v }

func newService(t *testing.T, store *records.Store, opts ...discovery.Option) *discovery.Service {
	t.Helper()
	detector, err := fingerprint.NewDetector(store, 16)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	tick := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	opts = append([]discovery.Option{discovery.WithClock(clock)}, opts...)
	svc, err := discovery.NewService(store, detector, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestDecodeAcceptsArrayAndLines(t *testing.T) {
	array := `[
  {"remote_id": "a", "name": "a.pdf", "url": "https://x/a", "size": 10, "content_type": "application/pdf"},
  {"remote_id": "b", "name": "b.pdf", "url": "https://x/b", "modified_time": "2026-01-02T03:04:05Z"}
]`
	got, err := discovery.Decode(strings.NewReader(array))
	if err != nil {
		t.Fatalf("Decode array: %v", err)
	}
	if len(got) != 2 || got[0].Size == nil || *got[0].Size != 10 || got[1].ModifiedTime == nil {
		t.Fatalf("unexpected array decode %+v", got)
	}

	lines := "\xEF\xBB\xBF{\"remote_id\":\"a\",\"url\":\"https://x/a\"}\n\n{\"remote_id\":\"b\",\"url\":\"https://x/b\"}\n"
	got, err = discovery.Decode(strings.NewReader(lines))
	if err != nil {
		t.Fatalf("Decode lines: %v", err)
	}
	if len(got) != 2 || got[1].RemoteID != "b" {
		t.Fatalf("unexpected lines decode %+v", got)
	}

	if got, err := discovery.Decode(strings.NewReader("  \n")); err != nil || len(got) != 0 {
		t.Fatalf("expected empty manifest, got %v, %v", got, err)
	}
	if _, err := discovery.Decode(strings.NewReader("{\"remote_id\":\"a\"}\n{oops")); err == nil {
		t.Fatal("expected decode error for malformed line")
	}
}

func TestDecodeFileReadsWrittenManifest(t *testing.T) {
	path := testsupport.WriteManifest(t, filepath.Join(t.TempDir(), "manifest.json"), []discovery.Descriptor{
		{RemoteID: "a", Name: "a.pdf", URL: "https://x/a", Size: int64Ptr(5)},
	})
	got, err := discovery.DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if len(got) != 1 || got[0].RemoteID != "a" {
		t.Fatalf("unexpected descriptors %+v", got)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	svc := newService(t, store)

	manifest := []discovery.Descriptor{
		{RemoteID: "a", Name: "Report.pdf", URL: "https://x/a", Size: int64Ptr(100), ContentType: "application/pdf"},
		{RemoteID: "b", Name: "report.PDF", URL: "https://x/b", Size: int64Ptr(100), ContentType: "application/pdf"},
		{RemoteID: "c", Name: "other.pdf", URL: "https://x/c"},
		{RemoteID: "", URL: "https://x/none"},
		{RemoteID: "d", Name: "d.pdf"},
	}

	first, err := svc.Ingest(ctx, manifest, fingerprint.PolicyTrack)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	want := discovery.Summary{Seen: 5, Inserted: 3, Duplicates: 1, Invalid: 2}
	if first != want {
		t.Fatalf("first run summary = %+v, want %+v", first, want)
	}

	b := testsupport.MustGet(t, store, "b")
	if b.DuplicateOf != "a" || b.DuplicatePolicy != "track" {
		t.Fatalf("expected b linked to a under track, got %q/%q", b.DuplicateOf, b.DuplicatePolicy)
	}
	if c := testsupport.MustGet(t, store, "c"); c.Fingerprint != "" || c.IsDuplicate() {
		t.Fatalf("record without size must not be fingerprinted, got %#v", c)
	}

	second, err := svc.Ingest(ctx, manifest, fingerprint.PolicyTrack)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	want = discovery.Summary{Seen: 5, Existing: 3, Invalid: 2}
	if second != want {
		t.Fatalf("second run summary = %+v, want %+v", second, want)
	}
	if b := testsupport.MustGet(t, store, "b"); b.DuplicateOf != "a" {
		t.Fatalf("re-discovery changed the original to %q", b.DuplicateOf)
	}
}

func TestIngestSkipPolicyDropsDuplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	var outcomes []discovery.Outcome
	svc := newService(t, store, discovery.WithObserver(func(o discovery.Outcome) {
		outcomes = append(outcomes, o)
	}))

	manifest := []discovery.Descriptor{
		{RemoteID: "a", Name: "x.pdf", URL: "https://x/a", Size: int64Ptr(1)},
		{RemoteID: "b", Name: "X.pdf", URL: "https://x/b", Size: int64Ptr(1)},
	}
	summary, err := svc.Ingest(ctx, manifest, fingerprint.PolicySkip)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if summary.Inserted != 1 || summary.Duplicates != 1 || summary.Skipped != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if rec, _ := store.Get(ctx, "b"); rec != nil {
		t.Fatal("skipped duplicate must not be stored")
	}
	wantOutcomes := []discovery.Outcome{discovery.OutcomeInserted, discovery.OutcomeDuplicate, discovery.OutcomeSkipped}
	if len(outcomes) != len(wantOutcomes) {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
	for i := range wantOutcomes {
		if outcomes[i] != wantOutcomes[i] {
			t.Fatalf("outcome %d = %s, want %s", i, outcomes[i], wantOutcomes[i])
		}
	}
}

func TestIngestContentTypeSeparatesDuplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	svc := newService(t, store)

	manifest := []discovery.Descriptor{
		{RemoteID: "a", Name: "x", URL: "https://x/a", Size: int64Ptr(1), ContentType: "text/plain"},
		{RemoteID: "b", Name: "x", URL: "https://x/b", Size: int64Ptr(1), ContentType: "text/csv"},
	}
	summary, err := svc.Ingest(context.Background(), manifest, fingerprint.PolicyUpload)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if summary.Duplicates != 0 || summary.Inserted != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestRemoveForgetsFingerprint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	svc := newService(t, store)

	first := []discovery.Descriptor{{RemoteID: "a", Name: "x", URL: "https://x/a", Size: int64Ptr(1)}}
	if _, err := svc.Ingest(ctx, first, fingerprint.PolicyUpload); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := svc.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := svc.Remove(ctx, "a"); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	second := []discovery.Descriptor{{RemoteID: "b", Name: "x", URL: "https://x/b", Size: int64Ptr(1)}}
	summary, err := svc.Ingest(ctx, second, fingerprint.PolicyUpload)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if summary.Duplicates != 0 {
		t.Fatalf("removed original must not be matched, got %+v", summary)
	}
}

func TestIngestStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	svc := newService(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Ingest(ctx, []discovery.Descriptor{{RemoteID: "a", URL: "https://x/a"}}, fingerprint.PolicyUpload)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
