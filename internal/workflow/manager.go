package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ferry/internal/config"
	"ferry/internal/ingest"
	"ferry/internal/logging"
	"ferry/internal/metrics"
	"ferry/internal/ratelimit"
	"ferry/internal/records"
	"ferry/internal/retry"
)

const (
	uploadLimiterName = "upload"
	statusLimiterName = "status"
)

// Manager coordinates uploads and verification for one process. Both rate
// limiters are shared by every worker the Manager starts.
type Manager struct {
	cfg     *config.Config
	store   *records.Store
	client  ingest.Client
	logger  *slog.Logger
	metrics *metrics.Metrics

	uploadLimiter *ratelimit.Limiter
	statusLimiter *ratelimit.Limiter

	sleep retry.Sleeper
	now   func() time.Time

	mu         sync.RWMutex
	running    bool
	lastErr    error
	lastRecord *records.Record
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithMetrics records workflow activity on m.
func WithMetrics(m *metrics.Metrics) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithSleeper replaces the wait used for retry backoff and between
// verification iterations.
func WithSleeper(sleep retry.Sleeper) ManagerOption {
	return func(mgr *Manager) { mgr.sleep = sleep }
}

// WithClock overrides the clock used for verification deadlines.
func WithClock(now func() time.Time) ManagerOption {
	return func(mgr *Manager) {
		if now != nil {
			mgr.now = now
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *records.Store, client ingest.Client, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:    cfg,
		store:  store,
		client: client,
		logger: logging.NewComponentLogger(logger, "workflow"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.uploadLimiter = ratelimit.New(uploadLimiterName, cfg.RateLimit.UploadRPM, ratelimit.WithObserver(m.metrics.ObserveRateLimitWait))
	m.statusLimiter = ratelimit.New(statusLimiterName, cfg.RateLimit.StatusRPM, ratelimit.WithObserver(m.metrics.ObserveRateLimitWait))
	return m
}

func (m *Manager) retryController(logger *slog.Logger, skipRetries bool) *retry.Controller {
	return &retry.Controller{
		MaxAttempts: m.cfg.Retry.MaxAttempts,
		BaseDelay:   m.cfg.RetryBaseDelay(),
		MaxDelay:    m.cfg.RetryMaxDelay(),
		SkipRetries: skipRetries,
		Logger:      logger,
		Sleep:       m.sleep,
		OnRetry:     m.metrics.ObserveRetry,
	}
}

func (m *Manager) runLogger(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, m.logger)
}

// wait pauses for d or until ctx ends.
func (m *Manager) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if m.sleep != nil {
		if err := m.sleep(ctx, d); err != nil {
			return err
		}
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
