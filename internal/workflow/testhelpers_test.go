package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"ferry/internal/config"
	"ferry/internal/logging"
	"ferry/internal/records"
	"ferry/internal/testsupport"
	"ferry/internal/workflow"
)

var epoch = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func noSleep(context.Context, time.Duration) error { return nil }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

type harness struct {
	cfg    *config.Config
	store  *records.Store
	client *testsupport.FakeClient
	mgr    *workflow.Manager
}

func newHarness(t *testing.T, cfgOpts []testsupport.ConfigOption, opts ...workflow.ManagerOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, cfgOpts...)
	store := testsupport.MustOpenStore(t, cfg)
	client := testsupport.NewFakeClient()
	opts = append([]workflow.ManagerOption{workflow.WithSleeper(noSleep)}, opts...)
	mgr := workflow.NewManager(cfg, store, client, logging.NewNop(), opts...)
	return &harness{cfg: cfg, store: store, client: client, mgr: mgr}
}

func (h *harness) seed(t *testing.T, ids ...string) {
	t.Helper()
	for i, id := range ids {
		testsupport.NewRecord(t, h.store, id, epoch.Add(time.Duration(i)*time.Second))
	}
}

func urlFor(id string) string { return "https://files.example/" + id }

func externalIDFor(id string) string { return "ext-" + urlFor(id) }
