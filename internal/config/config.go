package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/sys/unix"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
}

// API contains connection settings for the ingestion API.
type API struct {
	BaseURL             string `toml:"base_url"`
	APIKey              string `toml:"api_key"`
	DestinationFolderID string `toml:"destination_folder_id"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	UserAgent           string `toml:"user_agent"`
}

// RateLimit contains per-endpoint request budgets.
type RateLimit struct {
	UploadRPM int `toml:"upload_rpm"`
	StatusRPM int `toml:"status_rpm"`
}

// Retry contains the backoff policy applied to retryable API failures.
type Retry struct {
	MaxAttempts      int `toml:"max_attempts"`
	BaseDelaySeconds int `toml:"base_delay_seconds"`
	MaxDelaySeconds  int `toml:"max_delay_seconds"`
}

// Workflow contains upload worker pool settings.
type Workflow struct {
	Workers int `toml:"workers"`
}

// Verify contains verification poller timing.
type Verify struct {
	IntervalSeconds int `toml:"interval_seconds"`
	TimeoutSeconds  int `toml:"timeout_seconds"`
	MaxIterations   int `toml:"max_iterations"`
}

// Discovery contains duplicate handling defaults for manifest ingestion.
type Discovery struct {
	DuplicatePolicy      string `toml:"duplicate_policy"`
	FingerprintCacheSize int    `toml:"fingerprint_cache_size"`
}

// Server contains the read-only status API bind address.
type Server struct {
	Bind string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics contains optional Prometheus export settings.
type Metrics struct {
	Textfile string `toml:"textfile"`
}

// Config encapsulates all configuration values for ferry.
//
// Configuration sections by subsystem:
//   - Paths: data directory holding the database, lock, and log file
//   - API: ingestion API endpoint, credentials, and destination folder
//   - RateLimit: requests per minute for the upload and status endpoints
//   - Retry: exponential backoff bounds for transient failures
//   - Workflow: upload worker pool size
//   - Verify: verification poller interval, timeout, and iteration cap
//   - Discovery: duplicate policy and fingerprint cache size
//   - Server: status API bind address
//   - Logging: log format and level
//   - Metrics: Prometheus textfile export
type Config struct {
	Paths     Paths     `toml:"paths"`
	API       API       `toml:"api"`
	RateLimit RateLimit `toml:"rate_limit"`
	Retry     Retry     `toml:"retry"`
	Workflow  Workflow  `toml:"workflow"`
	Verify    Verify    `toml:"verify"`
	Discovery Discovery `toml:"discovery"`
	Server    Server    `toml:"server"`
	Logging   Logging   `toml:"logging"`
	Metrics   Metrics   `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/ferry/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("ferry.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data directory and verifies it is writable.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.DataDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.DataDir, err)
	}
	if err := unix.Access(c.Paths.DataDir, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("data directory %q is not writable: %w", c.Paths.DataDir, err)
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "ferry.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "ferry.lock")
}

// LogPath returns the persistent log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.DataDir, "ferry.log")
}

// APITimeout returns the per-call HTTP timeout.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the first backoff delay.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelaySeconds) * time.Second
}

// RetryMaxDelay returns the backoff ceiling.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelaySeconds) * time.Second
}

// VerifyInterval returns the delay between verification iterations.
func (c *Config) VerifyInterval() time.Duration {
	return time.Duration(c.Verify.IntervalSeconds) * time.Second
}

// VerifyTimeout returns the verification wall-clock budget.
func (c *Config) VerifyTimeout() time.Duration {
	return time.Duration(c.Verify.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
