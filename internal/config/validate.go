package config

import (
	"errors"
	"fmt"
	"net/url"
)

var duplicatePolicies = map[string]struct{}{
	"skip":    {},
	"upload":  {},
	"replace": {},
	"track":   {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateRateLimit(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateVerify(); err != nil {
		return err
	}
	if err := c.validateDiscovery(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateAPI() error {
	parsed, err := url.Parse(c.API.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("api.base_url %q must be an absolute URL", c.API.BaseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("api.base_url scheme %q must be http or https", parsed.Scheme)
	}
	if c.API.TimeoutSeconds <= 0 {
		return errors.New("api.timeout_seconds must be positive")
	}
	return nil
}

// RequireCredentials reports whether the settings needed to call the ingestion
// API are present. Commands that only read the database skip this check.
func (c *Config) RequireCredentials() error {
	if c.API.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/ferry/config.toml"
		}
		return fmt.Errorf("api.api_key is required. Set FERRY_API_KEY env var or edit %s (create with 'ferry config init')", defaultPath)
	}
	if c.API.DestinationFolderID == "" {
		return errors.New("api.destination_folder_id is required. Set FERRY_DESTINATION_FOLDER env var or edit the config file")
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	return ensurePositiveMap(map[string]int{
		"rate_limit.upload_rpm": c.RateLimit.UploadRPM,
		"rate_limit.status_rpm": c.RateLimit.StatusRPM,
	})
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts < 0 || c.Retry.MaxAttempts > MaxRetryAttempts {
		return fmt.Errorf("retry.max_attempts must be between 0 and %d, got %d", MaxRetryAttempts, c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelaySeconds < 0 {
		return errors.New("retry.base_delay_seconds must not be negative")
	}
	if c.Retry.MaxDelaySeconds <= 0 {
		return errors.New("retry.max_delay_seconds must be positive")
	}
	if c.Retry.BaseDelaySeconds > c.Retry.MaxDelaySeconds {
		return errors.New("retry.base_delay_seconds must not exceed retry.max_delay_seconds")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.Workers < MinWorkers || c.Workflow.Workers > MaxWorkers {
		return fmt.Errorf("workflow.workers must be between %d and %d, got %d", MinWorkers, MaxWorkers, c.Workflow.Workers)
	}
	return nil
}

func (c *Config) validateVerify() error {
	if err := ensurePositiveMap(map[string]int{
		"verify.interval_seconds": c.Verify.IntervalSeconds,
		"verify.timeout_seconds":  c.Verify.TimeoutSeconds,
		"verify.max_iterations":   c.Verify.MaxIterations,
	}); err != nil {
		return err
	}
	if c.Verify.TimeoutSeconds < c.Verify.IntervalSeconds {
		return errors.New("verify.timeout_seconds must be at least verify.interval_seconds")
	}
	return nil
}

func (c *Config) validateDiscovery() error {
	if _, ok := duplicatePolicies[c.Discovery.DuplicatePolicy]; !ok {
		return fmt.Errorf("discovery.duplicate_policy %q must be one of skip, upload, replace, track", c.Discovery.DuplicatePolicy)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn, or error", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
