package ratelimit

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestAcquireSpacesConsecutiveCalls(t *testing.T) {
	limiter := New("status", 120)
	ctx := context.Background()

	start := time.Now()
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire returned error: %v", err)
	}
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("second Acquire returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 500*time.Millisecond {
		t.Fatalf("expected at least 500ms between grants, got %s", elapsed)
	}
}

func TestAcquireOrdersConcurrentCallers(t *testing.T) {
	limiter := New("upload", 1200) // 50ms spacing
	ctx := context.Background()

	var (
		mu     sync.Mutex
		grants []time.Time
		wg     sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Acquire(ctx); err != nil {
				t.Errorf("Acquire returned error: %v", err)
				return
			}
			mu.Lock()
			grants = append(grants, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(grants, func(i, j int) bool { return grants[i].Before(grants[j]) })
	total := grants[len(grants)-1].Sub(grants[0])
	if total < 3*45*time.Millisecond {
		t.Fatalf("expected grants spread over ~150ms, got %s", total)
	}
}

func TestAcquireHonorsCancellation(t *testing.T) {
	limiter := New("upload", 1) // one per minute
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire returned error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := limiter.Acquire(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("cancellation did not interrupt the wait")
	}
}

func TestDisabledLimiterNeverWaits(t *testing.T) {
	var observed int
	limiter := New("status", 0, WithObserver(func(string, time.Duration) { observed++ }))
	for i := 0; i < 100; i++ {
		if err := limiter.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire returned error: %v", err)
		}
	}
	if observed != 0 {
		t.Fatalf("disabled limiter should not observe waits, got %d", observed)
	}
}

func TestObserverReportsReservedWait(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var waits []time.Duration
	limiter := New("status", 60,
		WithClock(func() time.Time { return base }),
		WithObserver(func(_ string, waited time.Duration) { waits = append(waits, waited) }),
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_ = limiter.Acquire(ctx)
	_ = limiter.Acquire(ctx)
	_ = limiter.Acquire(ctx)

	want := []time.Duration{0, time.Second, 2 * time.Second}
	for i, w := range want {
		if waits[i] != w {
			t.Fatalf("wait %d = %s, want %s", i, waits[i], w)
		}
	}
}
