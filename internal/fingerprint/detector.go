package fingerprint

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"ferry/internal/records"
)

// DefaultCacheSize bounds the number of fingerprints remembered per Detector.
const DefaultCacheSize = 4096

// Finder looks up the earliest record carrying a fingerprint.
type Finder interface {
	FindByFingerprint(ctx context.Context, fp, excludingRemoteID string) (*records.Record, error)
}

// Detector resolves duplicates against the store and caches each
// fingerprint's original for the lifetime of the Detector.
type Detector struct {
	finder   Finder
	cache    *lru.Cache[string, *records.Record]
	observer func(hit bool)
}

// Option configures a Detector.
type Option func(*Detector)

// WithObserver registers a callback invoked on every cache lookup.
func WithObserver(fn func(hit bool)) Option {
	return func(d *Detector) { d.observer = fn }
}

// NewDetector builds a Detector with an LRU cache of the given size.
func NewDetector(finder Finder, size int, opts ...Option) (*Detector, error) {
	if finder == nil {
		return nil, fmt.Errorf("fingerprint finder is required")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *records.Record](size)
	if err != nil {
		return nil, fmt.Errorf("create fingerprint cache: %w", err)
	}
	d := &Detector{finder: finder, cache: cache}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// FindDuplicate returns the original record for fp, or nil when fp is empty
// or no other record carries it. The original is the earliest-discovered
// record, ties broken by insertion order.
func (d *Detector) FindDuplicate(ctx context.Context, fp, excludingRemoteID string) (*records.Record, error) {
	if fp == "" {
		return nil, nil
	}
	original, ok := d.cache.Get(fp)
	if ok {
		d.observe(true)
	} else {
		d.observe(false)
		var err error
		original, err = d.finder.FindByFingerprint(ctx, fp, "")
		if err != nil {
			return nil, err
		}
		if original == nil {
			return nil, nil
		}
		d.cache.Add(fp, original)
	}
	if original.RemoteID != excludingRemoteID {
		return original, nil
	}
	// The candidate is itself the original; the next record in line is the
	// answer but is never cached.
	return d.finder.FindByFingerprint(ctx, fp, excludingRemoteID)
}

// Remember records rec as the original for its fingerprint unless one is
// already known.
func (d *Detector) Remember(rec *records.Record) {
	if rec == nil || rec.Fingerprint == "" {
		return
	}
	d.cache.ContainsOrAdd(rec.Fingerprint, rec)
}

// Forget drops any cached original for fp.
func (d *Detector) Forget(fp string) {
	d.cache.Remove(fp)
}

func (d *Detector) observe(hit bool) {
	if d.observer != nil {
		d.observer(hit)
	}
}
