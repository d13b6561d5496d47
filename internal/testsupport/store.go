package testsupport

import (
	"context"
	"testing"
	"time"

	"ferry/internal/config"
	"ferry/internal/records"
)

// MustOpenStore opens a records.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *records.Store {
	t.Helper()

	store, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRecord inserts a pending record with the given id. discoveredAt orders
// records deterministically; pass the zero time to use the current time.
func NewRecord(t testing.TB, store *records.Store, remoteID string, discoveredAt time.Time) *records.Record {
	t.Helper()

	size := int64(1024)
	rec := &records.Record{
		RemoteID:     remoteID,
		Name:         remoteID + ".pdf",
		URL:          "https://files.example/" + remoteID,
		Size:         &size,
		ContentType:  "application/pdf",
		DiscoveredAt: discoveredAt,
	}
	inserted, err := store.Insert(context.Background(), rec)
	if err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	if !inserted {
		t.Fatalf("store.Insert: %s already exists", remoteID)
	}
	return rec
}

// MustGet fetches a record that the test expects to exist.
func MustGet(t testing.TB, store *records.Store, remoteID string) *records.Record {
	t.Helper()

	rec, err := store.Get(context.Background(), remoteID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if rec == nil {
		t.Fatalf("record %s not found", remoteID)
	}
	return rec
}
