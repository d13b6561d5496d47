package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ferry/internal/config"
)

func TestLoadDefaultConfigUsesEnvAndExpandsPaths(t *testing.T) {
	t.Setenv("FERRY_API_KEY", "test-key")
	t.Setenv("FERRY_DESTINATION_FOLDER", "folder-1")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "ferry")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "ferry.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.API.APIKey != "test-key" {
		t.Fatalf("expected API key from env, got %q", cfg.API.APIKey)
	}
	if cfg.API.DestinationFolderID != "folder-1" {
		t.Fatalf("expected folder from env, got %q", cfg.API.DestinationFolderID)
	}
	if err := cfg.RequireCredentials(); err != nil {
		t.Fatalf("RequireCredentials returned error: %v", err)
	}
	if cfg.Workflow.Workers != config.Default().Workflow.Workers {
		t.Fatalf("unexpected workers: %d", cfg.Workflow.Workers)
	}
	if cfg.Retry.MaxDelaySeconds != 300 {
		t.Fatalf("expected 300s backoff ceiling, got %d", cfg.Retry.MaxDelaySeconds)
	}
	if cfg.Discovery.DuplicatePolicy != "upload" {
		t.Fatalf("unexpected duplicate policy: %q", cfg.Discovery.DuplicatePolicy)
	}
}

func TestLoadParsesFileAndNormalizes(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "ferry.toml")
	body := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"

[api]
base_url = "https://api.example.test/v2/"
api_key = "  secret  "
destination_folder_id = "dest"

[workflow]
workers = 8

[discovery]
duplicate_policy = " TRACK "

[logging]
format = "JSON"
level = "Debug"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected file %q to be used, got %q (exists=%v)", path, resolved, exists)
	}
	if cfg.API.BaseURL != "https://api.example.test/v2" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.API.BaseURL)
	}
	if cfg.API.APIKey != "secret" {
		t.Fatalf("expected trimmed api key, got %q", cfg.API.APIKey)
	}
	if cfg.Workflow.Workers != 8 {
		t.Fatalf("expected 8 workers, got %d", cfg.Workflow.Workers)
	}
	if cfg.Discovery.DuplicatePolicy != "track" {
		t.Fatalf("expected normalized policy, got %q", cfg.Discovery.DuplicatePolicy)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging settings: %+v", cfg.Logging)
	}
}

func TestValidateRejectsOutOfRangeValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero workers", func(c *config.Config) { c.Workflow.Workers = 0 }, "workflow.workers"},
		{"too many workers", func(c *config.Config) { c.Workflow.Workers = config.MaxWorkers + 1 }, "workflow.workers"},
		{"zero upload rpm", func(c *config.Config) { c.RateLimit.UploadRPM = 0 }, "rate_limit.upload_rpm"},
		{"negative retries", func(c *config.Config) { c.Retry.MaxAttempts = -1 }, "retry.max_attempts"},
		{"too many retries", func(c *config.Config) { c.Retry.MaxAttempts = config.MaxRetryAttempts + 1 }, "retry.max_attempts"},
		{"base above max", func(c *config.Config) { c.Retry.BaseDelaySeconds = 600 }, "retry.base_delay_seconds"},
		{"unknown policy", func(c *config.Config) { c.Discovery.DuplicatePolicy = "merge" }, "discovery.duplicate_policy"},
		{"relative base url", func(c *config.Config) { c.API.BaseURL = "ingest.local" }, "api.base_url"},
		{"timeout below interval", func(c *config.Config) { c.Verify.TimeoutSeconds = 1 }, "verify.timeout_seconds"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestRequireCredentials(t *testing.T) {
	cfg := config.Default()
	if err := cfg.RequireCredentials(); err == nil || !strings.Contains(err.Error(), "api.api_key") {
		t.Fatalf("expected missing api key error, got %v", err)
	}
	cfg.API.APIKey = "key"
	if err := cfg.RequireCredentials(); err == nil || !strings.Contains(err.Error(), "destination_folder_id") {
		t.Fatalf("expected missing folder error, got %v", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load of sample config failed: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if cfg.Workflow.Workers != config.Default().Workflow.Workers {
		t.Fatalf("sample workers drifted from defaults: %d", cfg.Workflow.Workers)
	}
}
