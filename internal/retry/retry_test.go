package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"ferry/internal/failure"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func transientErr() error {
	return failure.FromStatus("upload", 503, []byte("unavailable"))
}

func TestDoRetriesTransientUpToBound(t *testing.T) {
	rec := &sleepRecorder{}
	var retried []failure.Kind
	ctrl := &Controller{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Second,
		MaxDelay:    300 * time.Second,
		Sleep:       rec.sleep,
		OnRetry:     func(_ string, kind failure.Kind) { retried = append(retried, kind) },
	}

	calls := 0
	err := ctrl.Do(context.Background(), "upload", func(context.Context) error {
		calls++
		return transientErr()
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if failure.KindOf(err) != failure.KindTransient {
		t.Fatalf("expected last transient error, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls (1 + 3 retries), got %d", calls)
	}
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
	if len(rec.delays) != len(want) {
		t.Fatalf("expected %d sleeps (none after final attempt), got %v", len(want), rec.delays)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Fatalf("sleep %d = %s, want %s", i, rec.delays[i], want[i])
		}
	}
	if len(retried) != 3 {
		t.Fatalf("expected 3 retry notifications, got %d", len(retried))
	}
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	permanent := []error{
		failure.FromStatus("upload", 422, nil),
		failure.FromStatus("upload", 401, nil),
		failure.Malformed("upload", []byte("oops"), errors.New("decode")),
		errors.New("unclassified"),
	}
	for _, perm := range permanent {
		rec := &sleepRecorder{}
		ctrl := &Controller{MaxAttempts: 3, BaseDelay: time.Second, Sleep: rec.sleep}
		calls := 0
		err := ctrl.Do(context.Background(), "upload", func(context.Context) error {
			calls++
			return perm
		})
		if !errors.Is(err, perm) {
			t.Fatalf("expected original error %v, got %v", perm, err)
		}
		if calls != 1 {
			t.Fatalf("%v: expected exactly one call, got %d", perm, calls)
		}
		if len(rec.delays) != 0 {
			t.Fatalf("%v: expected no sleeps, got %v", perm, rec.delays)
		}
	}
}

func TestSkipRetriesMakesSingleAttempt(t *testing.T) {
	rec := &sleepRecorder{}
	ctrl := &Controller{MaxAttempts: 5, BaseDelay: time.Second, SkipRetries: true, Sleep: rec.sleep}
	calls := 0
	_ = ctrl.Do(context.Background(), "upload", func(context.Context) error {
		calls++
		return transientErr()
	})
	if calls != 1 || len(rec.delays) != 0 {
		t.Fatalf("expected single attempt without sleep, got calls=%d sleeps=%v", calls, rec.delays)
	}
}

func TestCallReturnsValueAfterRecovery(t *testing.T) {
	rec := &sleepRecorder{}
	ctrl := &Controller{MaxAttempts: 3, BaseDelay: time.Second, Sleep: rec.sleep}
	calls := 0
	got, err := Call(context.Background(), ctrl, "status", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &failure.Error{Kind: failure.KindNetwork, Op: "status"}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Fatalf("unexpected result %q after %d calls", got, calls)
	}
}

func TestBackoffDelayIsCapped(t *testing.T) {
	ctrl := &Controller{BaseDelay: 5 * time.Second, MaxDelay: 300 * time.Second}
	cases := map[int]time.Duration{
		1:  5 * time.Second,
		2:  10 * time.Second,
		6:  160 * time.Second,
		7:  300 * time.Second,
		40: 300 * time.Second,
	}
	for attempt, want := range cases {
		if got := ctrl.BackoffDelay(attempt); got != want {
			t.Errorf("BackoffDelay(%d) = %s, want %s", attempt, got, want)
		}
	}
	unset := &Controller{BaseDelay: time.Hour}
	if got := unset.BackoffDelay(1); got != DefaultMaxDelay {
		t.Fatalf("expected default cap %s, got %s", DefaultMaxDelay, got)
	}
}

func TestCancelledBackoffReturnsLastError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ctrl := &Controller{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Sleep: func(context.Context, time.Duration) error {
			cancel()
			return context.Canceled
		},
	}
	calls := 0
	err := ctrl.Do(ctx, "upload", func(callCtx context.Context) error {
		calls++
		if callCtx.Err() != nil {
			t.Fatal("call context must not be cancelled by the run context")
		}
		return transientErr()
	})
	if calls != 1 {
		t.Fatalf("expected a single call before interruption, got %d", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation in error chain, got %v", err)
	}
	if failure.KindOf(err) != failure.KindTransient {
		t.Fatalf("expected last API error preserved, got %v", err)
	}
}
