package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ferry/internal/api"
	"ferry/internal/metrics"
	"ferry/internal/records"
	"ferry/internal/testsupport"
)

type fixture struct {
	store   *records.Store
	metrics *metrics.Metrics
	server  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	m := metrics.New()
	srv := api.NewServer("127.0.0.1:0", store.Path(), store, m, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{store: store, metrics: m, server: ts}
}

func (f *fixture) seedUploaded(t *testing.T, remoteID string, at time.Time) {
	t.Helper()
	testsupport.NewRecord(t, f.store, remoteID, at)
	ctx := context.Background()
	if _, err := f.store.Claim(ctx, remoteID, false); err != nil {
		t.Fatalf("claim %s: %v", remoteID, err)
	}
	if err := f.store.MarkUploaded(ctx, remoteID, "ext-"+remoteID, `{"id":"ext-`+remoteID+`"}`); err != nil {
		t.Fatalf("mark uploaded %s: %v", remoteID, err)
	}
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s: status %d, want %d (%s)", url, resp.StatusCode, wantStatus, body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("GET %s: content type %q", url, ct)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	var health api.HealthResponse
	getJSON(t, f.server.URL+"/health", http.StatusOK, &health)
	if health.Status != "ok" || health.Database != f.store.Path() {
		t.Fatalf("unexpected health payload: %+v", health)
	}
}

func TestStatsCountsEveryStatus(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	testsupport.NewRecord(t, f.store, "a", base)
	testsupport.NewRecord(t, f.store, "b", base.Add(time.Second))
	f.seedUploaded(t, "c", base.Add(2*time.Second))

	var stats api.StatsResponse
	getJSON(t, f.server.URL+"/api/stats", http.StatusOK, &stats)
	if stats.Total != 3 {
		t.Fatalf("expected 3 records, got %d", stats.Total)
	}
	if stats.ByUpload["pending"] != 2 || stats.ByUpload["completed"] != 1 || stats.ByUpload["failed"] != 0 {
		t.Fatalf("unexpected upload counts: %+v", stats.ByUpload)
	}
	if _, ok := stats.ByUpload["uploading"]; !ok {
		t.Fatal("expected zero entry for uploading")
	}
	if stats.ByProcessing["none"] != 2 || stats.ByProcessing["pending"] != 1 {
		t.Fatalf("unexpected processing counts: %+v", stats.ByProcessing)
	}
}

func TestRecordsListAndFilters(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	testsupport.NewRecord(t, f.store, "a", base)
	f.seedUploaded(t, "b", base.Add(time.Second))

	var all api.RecordListResponse
	getJSON(t, f.server.URL+"/api/records", http.StatusOK, &all)
	if len(all.Records) != 2 || all.Records[0].RemoteID != "a" || all.Records[1].RemoteID != "b" {
		t.Fatalf("unexpected records: %+v", all.Records)
	}

	var completed api.RecordListResponse
	getJSON(t, f.server.URL+"/api/records?upload=completed", http.StatusOK, &completed)
	if len(completed.Records) != 1 || completed.Records[0].RemoteID != "b" {
		t.Fatalf("unexpected completed records: %+v", completed.Records)
	}
	if completed.Records[0].ProcessingStatus != "pending" || completed.Records[0].ExternalID != "ext-b" {
		t.Fatalf("unexpected completed record: %+v", completed.Records[0])
	}

	var none api.RecordListResponse
	getJSON(t, f.server.URL+"/api/records?processing=none", http.StatusOK, &none)
	if len(none.Records) != 1 || none.Records[0].RemoteID != "a" {
		t.Fatalf("unexpected unprocessed records: %+v", none.Records)
	}

	var limited api.RecordListResponse
	getJSON(t, f.server.URL+"/api/records?limit=1", http.StatusOK, &limited)
	if len(limited.Records) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited.Records))
	}

	var dups api.RecordListResponse
	getJSON(t, f.server.URL+"/api/records?duplicates=true", http.StatusOK, &dups)
	if dups.Records == nil || len(dups.Records) != 0 {
		t.Fatalf("expected empty duplicate list, got %+v", dups.Records)
	}
}

func TestRecordsRejectsInvalidFilters(t *testing.T) {
	f := newFixture(t)
	for _, query := range []string{"upload=done", "processing=queued", "duplicates=maybe", "limit=-1"} {
		var body api.ErrorResponse
		getJSON(t, f.server.URL+"/api/records?"+query, http.StatusBadRequest, &body)
		if body.Error == "" {
			t.Fatalf("%s: expected error message", query)
		}
	}
}

func TestRecordDetail(t *testing.T) {
	f := newFixture(t)
	f.seedUploaded(t, "doc-1", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	var resp api.RecordResponse
	getJSON(t, f.server.URL+"/api/records/doc-1", http.StatusOK, &resp)
	if resp.Record.RemoteID != "doc-1" || resp.Record.UploadStatus != "completed" {
		t.Fatalf("unexpected record: %+v", resp.Record)
	}
	if string(resp.Record.UploadResponse) != `{"id":"ext-doc-1"}` {
		t.Fatalf("expected raw upload response, got %s", resp.Record.UploadResponse)
	}
	if resp.Record.DiscoveredAt != "2026-01-02T03:04:05.000Z" {
		t.Fatalf("unexpected discoveredAt: %q", resp.Record.DiscoveredAt)
	}

	var missing api.ErrorResponse
	getJSON(t, f.server.URL+"/api/records/nope", http.StatusNotFound, &missing)
	if missing.Error != "record not found" {
		t.Fatalf("unexpected error body: %+v", missing)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	f := newFixture(t)
	getJSON(t, f.server.URL+"/api/nothing", http.StatusNotFound, nil)

	resp, err := http.Post(f.server.URL+"/api/records", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	f := newFixture(t)
	testsupport.NewRecord(t, f.store, "a", time.Time{})
	getJSON(t, f.server.URL+"/api/stats", http.StatusOK, nil)
	getJSON(t, f.server.URL+"/api/records/a", http.StatusOK, nil)

	resp, err := http.Get(f.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)
	for _, want := range []string{
		`ferry_http_requests_total{method="GET",route="/api/stats",status="200"} 1`,
		`ferry_http_requests_total{method="GET",route="/api/records/{remoteID}",status="200"} 1`,
		`ferry_records{processing_status="none",upload_status="pending"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

type failingReader struct{}

func (failingReader) List(context.Context, records.Filter) ([]*records.Record, error) {
	return nil, errors.New("disk gone")
}

func (failingReader) Get(context.Context, string) (*records.Record, error) {
	return nil, errors.New("disk gone")
}

func (failingReader) Stats(context.Context) (records.Stats, error) {
	return records.Stats{}, errors.New("disk gone")
}

func TestStoreErrorsReturn500(t *testing.T) {
	srv := api.NewServer("", "", failingReader{}, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, path := range []string{"/api/stats", "/api/records", "/api/records/x"} {
		var body api.ErrorResponse
		getJSON(t, ts.URL+path, http.StatusInternalServerError, &body)
		if body.Error != "disk gone" {
			t.Fatalf("%s: unexpected error body %+v", path, body)
		}
	}
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics, got %d", resp.StatusCode)
	}
}

func TestStartServesUntilCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	srv := api.NewServer("127.0.0.1:0", store.Path(), store, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	var health api.HealthResponse
	getJSON(t, "http://"+srv.Addr()+"/health", http.StatusOK, &health)
	cancel()
	srv.Shutdown()
}
