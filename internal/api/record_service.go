package api

import (
	"context"

	"ferry/internal/records"
)

// RecordReader abstracts the store reads needed by the API.
type RecordReader interface {
	List(ctx context.Context, filter records.Filter) ([]*records.Record, error)
	Get(ctx context.Context, remoteID string) (*records.Record, error)
	Stats(ctx context.Context) (records.Stats, error)
}

// RecordService exposes read-only record operations returning API DTOs.
type RecordService struct {
	store RecordReader
}

// NewRecordService constructs a RecordService around the provided reader.
func NewRecordService(store RecordReader) *RecordService {
	if store == nil {
		return nil
	}
	return &RecordService{store: store}
}

// List returns records matching filter.
func (s *RecordService) List(ctx context.Context, filter records.Filter) ([]Record, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	recs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromRecords(recs), nil
}

// Stats returns normalized record counts.
func (s *RecordService) Stats(ctx context.Context) (StatsResponse, error) {
	if s == nil || s.store == nil {
		return FromStats(records.Stats{}), nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return StatsResponse{}, err
	}
	return FromStats(stats), nil
}

// Describe fetches a single record. A missing record returns (nil, nil).
func (s *RecordService) Describe(ctx context.Context, remoteID string) (*Record, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	rec, err := s.store.Get(ctx, remoteID)
	if err != nil || rec == nil {
		return nil, err
	}
	dto := FromRecord(rec)
	return &dto, nil
}
