package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ferry/internal/fingerprint"
	"ferry/internal/logging"
	"ferry/internal/records"
)

// Outcome labels what happened to one descriptor.
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeExisting  Outcome = "existing"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeInvalid   Outcome = "invalid"
)

// Summary counts the outcome of one Ingest call. Duplicates counts every
// descriptor matched to an earlier original; those dropped by the skip policy
// are also counted in Skipped, the rest in Inserted.
type Summary struct {
	Seen       int `json:"seen"`
	Inserted   int `json:"inserted"`
	Existing   int `json:"existing"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
	Invalid    int `json:"invalid"`
}

// Service inserts discovered files into the store.
type Service struct {
	store    *records.Store
	detector *fingerprint.Detector
	logger   *slog.Logger
	now      func() time.Time
	observer func(Outcome)
}

// Option configures a Service.
type Option func(*Service)

// WithObserver registers a callback invoked once per descriptor outcome;
// duplicates report both OutcomeDuplicate and their final outcome.
func WithObserver(fn func(Outcome)) Option {
	return func(s *Service) { s.observer = fn }
}

// WithClock overrides the discovery timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds a discovery service over store using detector for
// duplicate resolution.
func NewService(store *records.Store, detector *fingerprint.Detector, logger *slog.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("discovery requires a record store")
	}
	if detector == nil {
		return nil, fmt.Errorf("discovery requires a fingerprint detector")
	}
	s := &Service{
		store:    store,
		detector: detector,
		logger:   logging.NewComponentLogger(logger, "discovery"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ingest stores every new descriptor. Descriptors whose remote_id is already
// known are left untouched, so repeated runs never change which record is
// the original of a duplicate group.
func (s *Service) Ingest(ctx context.Context, descriptors []Descriptor, policy fingerprint.Policy) (Summary, error) {
	var summary Summary
	for _, d := range descriptors {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Seen++

		outcome, err := s.ingestOne(ctx, d, policy)
		if err != nil {
			return summary, err
		}
		switch outcome {
		case OutcomeInvalid:
			summary.Invalid++
		case OutcomeExisting:
			summary.Existing++
		case OutcomeSkipped:
			summary.Duplicates++
			summary.Skipped++
		case OutcomeDuplicate:
			summary.Duplicates++
			summary.Inserted++
		case OutcomeInserted:
			summary.Inserted++
		}
	}

	s.logger.Info(
		"discovery complete",
		logging.String(logging.FieldEventType, "discovery_complete"),
		logging.String("policy", policy.String()),
		logging.Int("seen", summary.Seen),
		logging.Int("inserted", summary.Inserted),
		logging.Int("existing", summary.Existing),
		logging.Int("duplicates", summary.Duplicates),
		logging.Int("skipped", summary.Skipped),
		logging.Int("invalid", summary.Invalid),
	)
	return summary, nil
}

func (s *Service) ingestOne(ctx context.Context, d Descriptor, policy fingerprint.Policy) (Outcome, error) {
	if err := d.Validate(); err != nil {
		logging.WarnWithContext(
			s.logger,
			"invalid descriptor ignored",
			"descriptor_invalid",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "every manifest entry needs remote_id and url"),
			logging.String(logging.FieldImpact, "file was not queued"),
		)
		s.observe(OutcomeInvalid)
		return OutcomeInvalid, nil
	}
	remoteID := strings.TrimSpace(d.RemoteID)

	existing, err := s.store.Get(ctx, remoteID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		s.observe(OutcomeExisting)
		return OutcomeExisting, nil
	}

	rec := &records.Record{
		RemoteID:     remoteID,
		Name:         d.Name,
		URL:          strings.TrimSpace(d.URL),
		Size:         d.Size,
		ContentType:  strings.TrimSpace(d.ContentType),
		CreatedTime:  d.CreatedTime,
		ModifiedTime: d.ModifiedTime,
		DiscoveredAt: s.now(),
	}
	fp, ok := fingerprint.Compute(rec.Size, rec.Name, rec.ContentType)
	if ok {
		rec.Fingerprint = fp
	}

	original, err := s.detector.FindDuplicate(ctx, fp, remoteID)
	if err != nil {
		return "", fmt.Errorf("find duplicate for %s: %w", remoteID, err)
	}
	outcome := OutcomeInserted
	if original != nil {
		s.observe(OutcomeDuplicate)
		logger := s.logger.With(logging.RemoteID(remoteID))
		if !policy.Persists() {
			logger.Info(
				"duplicate skipped",
				logging.String(logging.FieldEventType, "duplicate_skipped"),
				logging.String("original", original.RemoteID),
			)
			s.observe(OutcomeSkipped)
			return OutcomeSkipped, nil
		}
		rec.DuplicateOf = original.RemoteID
		rec.DuplicatePolicy = policy.String()
		logger.Debug(
			"duplicate linked",
			logging.String(logging.FieldEventType, "duplicate_linked"),
			logging.String("original", original.RemoteID),
			logging.String("policy", policy.String()),
		)
		outcome = OutcomeDuplicate
	}

	inserted, err := s.store.Insert(ctx, rec)
	if err != nil {
		return "", err
	}
	if !inserted {
		s.observe(OutcomeExisting)
		return OutcomeExisting, nil
	}
	if original == nil {
		s.detector.Remember(rec)
	}
	s.observe(OutcomeInserted)
	return outcome, nil
}

// Remove deletes a record and drops its fingerprint from the duplicate cache.
func (s *Service) Remove(ctx context.Context, remoteID string) error {
	rec, err := s.store.Get(ctx, remoteID)
	if err != nil {
		return err
	}
	if err := s.store.Remove(ctx, remoteID); err != nil {
		return err
	}
	if rec != nil && rec.Fingerprint != "" {
		s.detector.Forget(rec.Fingerprint)
	}
	s.logger.Info("record removed",
		logging.String(logging.FieldEventType, "record_removed"),
		logging.RemoteID(remoteID),
	)
	return nil
}

func (s *Service) observe(outcome Outcome) {
	if s.observer != nil {
		s.observer(outcome)
	}
}
