// Package ratelimit spaces calls to one external endpoint family.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter grants calls no closer together than a fixed interval. It is safe
// for concurrent use; grants are handed out in the order callers reserve them.
type Limiter struct {
	name     string
	interval time.Duration

	mu   sync.Mutex
	next time.Time

	now     func() time.Time
	observe func(name string, waited time.Duration)
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithObserver registers a hook that receives every wait duration.
func WithObserver(observe func(name string, waited time.Duration)) Option {
	return func(l *Limiter) {
		l.observe = observe
	}
}

// New builds a limiter allowing requestsPerMinute calls per minute.
// A non-positive rate disables limiting.
func New(name string, requestsPerMinute int, opts ...Option) *Limiter {
	l := &Limiter{name: name, now: time.Now}
	if requestsPerMinute > 0 {
		l.interval = time.Minute / time.Duration(requestsPerMinute)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the endpoint family this limiter guards.
func (l *Limiter) Name() string {
	if l == nil {
		return ""
	}
	return l.name
}

// Interval returns the minimum spacing between grants.
func (l *Limiter) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}

// Acquire blocks until the caller may issue its call. If ctx ends while
// waiting, the reserved slot is still consumed and ctx.Err() is returned.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l == nil || l.interval <= 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	l.mu.Lock()
	now := l.now()
	slot := l.next
	if slot.Before(now) {
		slot = now
	}
	l.next = slot.Add(l.interval)
	l.mu.Unlock()

	wait := slot.Sub(now)
	if l.observe != nil {
		l.observe(l.name, wait)
	}
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
