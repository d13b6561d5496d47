package testsupport

import (
	"path/filepath"
	"testing"

	"ferry/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with a unique temp data directory per
// test, fake credentials, and fast retry and verification timings.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.API.BaseURL = "http://127.0.0.1:0"
	cfgVal.API.APIKey = "test"
	cfgVal.API.DestinationFolderID = "folder-test"
	cfgVal.RateLimit.UploadRPM = 60000
	cfgVal.RateLimit.StatusRPM = 60000
	cfgVal.Retry.BaseDelaySeconds = 0
	cfgVal.Verify.IntervalSeconds = 1
	cfgVal.Verify.TimeoutSeconds = 30
	cfgVal.Server.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithWorkers overrides the upload worker count.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.Workers = n
	}
}

// WithRetries overrides the retry budget.
func WithRetries(maxAttempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Retry.MaxAttempts = maxAttempts
	}
}

// WithBaseURL points the ingestion client at a test server.
func WithBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.BaseURL = url
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
