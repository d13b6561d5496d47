package workflow

import (
	"context"

	"ferry/internal/logging"
	"ferry/internal/records"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool
	LastError  string
	LastRecord *records.Record
	Stats      records.Stats
}

// Status returns the latest workflow information and refreshes the record
// gauges.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastRecord := m.lastRecord
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read record stats", logging.Error(err))
	} else {
		m.metrics.SetRecordStats(stats)
	}

	summary := StatusSummary{Running: running, Stats: stats}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastRecord != nil {
		copy := *lastRecord
		summary.LastRecord = &copy
	}
	return summary
}

func (m *Manager) setRunning(running bool) {
	m.mu.Lock()
	m.running = running
	m.mu.Unlock()
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastRecord(rec *records.Record) {
	m.mu.Lock()
	if rec != nil {
		copy := *rec
		m.lastRecord = &copy
	} else {
		m.lastRecord = nil
	}
	m.mu.Unlock()
}
