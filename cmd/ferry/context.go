package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ferry/internal/config"
	"ferry/internal/discovery"
	"ferry/internal/fingerprint"
	"ferry/internal/ingest"
	"ferry/internal/logging"
	"ferry/internal/metrics"
	"ferry/internal/records"
	"ferry/internal/workflow"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	// newClient builds the ingestion client; tests swap it for a fake.
	newClient func(*config.Config) ingest.Client
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
		newClient: func(cfg *config.Config) ingest.Client {
			return ingest.NewHTTPClient(ingest.ConfigFromApp(cfg))
		},
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.configPath = resolved
		c.configExists = exists
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// session bundles the resources one command invocation works with.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *records.Store
	metrics *metrics.Metrics
	lock    *runLock
	logs    io.Closer
}

// openSession loads config, opens the store and, when exclusive is set,
// takes the run lock first so two writers never share the database.
func (c *commandContext) openSession(exclusive bool) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, logs, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	s := &session{cfg: cfg, logger: logger, metrics: metrics.New(), logs: logs}
	if exclusive {
		lock, err := acquireRunLock(cfg.LockPath())
		if err != nil {
			s.close()
			return nil, err
		}
		s.lock = lock
	}

	store, err := records.Open(cfg)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("open record store: %w", err)
	}
	s.store = store
	return s, nil
}

func (s *session) close() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("failed to close record store", logging.Error(err))
		}
	}
	if s.lock != nil {
		if err := s.lock.Release(); err != nil {
			s.logger.Warn("failed to release run lock", logging.Error(err))
		}
	}
	if s.logs != nil {
		if err := s.logs.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "ferry: close log file: %v\n", err)
		}
		s.logs = nil
	}
}

func (s *session) discoveryService() (*discovery.Service, error) {
	detector, err := fingerprint.NewDetector(
		s.store,
		s.cfg.Discovery.FingerprintCacheSize,
		fingerprint.WithObserver(s.metrics.ObserveDuplicateLookup),
	)
	if err != nil {
		return nil, fmt.Errorf("fingerprint detector: %w", err)
	}
	return discovery.NewService(s.store, detector, s.logger, discovery.WithObserver(func(outcome discovery.Outcome) {
		s.metrics.ObserveDiscovery(string(outcome))
	}))
}

func (s *session) manager(client ingest.Client) *workflow.Manager {
	return workflow.NewManager(s.cfg, s.store, client, s.logger, workflow.WithMetrics(s.metrics))
}

// resetStuck returns records left in uploading by a killed run to pending.
// Callers must hold the run lock.
func (s *session) resetStuck(ctx context.Context) error {
	reset, err := s.store.ResetStuckUploads(ctx)
	if err != nil {
		return fmt.Errorf("reset stuck uploads: %w", err)
	}
	if reset > 0 {
		logging.WarnWithContext(s.logger, "reclaimed uploads left by an interrupted run", "stuck_uploads_reset",
			logging.Int64("count", reset),
			logging.String(logging.FieldErrorHint, "a previous run exited before finishing these uploads"),
		)
	}
	return nil
}

// flushMetrics refreshes the record gauges and writes the textfile export
// when one is configured.
func (s *session) flushMetrics(ctx context.Context) {
	if s.cfg.Metrics.Textfile == "" {
		return
	}
	if stats, err := s.store.Stats(ctx); err == nil {
		s.metrics.SetRecordStats(stats)
	}
	path, err := config.ExpandPath(s.cfg.Metrics.Textfile)
	if err == nil {
		err = s.metrics.WriteTextfile(path)
	}
	if err != nil {
		s.logger.Warn("failed to write metrics textfile", logging.Error(err))
	}
}

// runContext wires SIGINT and SIGTERM to cancellation and tags the context
// with a fresh run id.
func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	return logging.WithRunID(ctx, uuid.NewString()), stop
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
