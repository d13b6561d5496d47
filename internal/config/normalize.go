package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeDiscovery()
	c.normalizeServer()
	c.normalizeLogging()
	return c.normalizeMetrics()
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	if c.API.APIKey == "" {
		if value, ok := os.LookupEnv("FERRY_API_KEY"); ok {
			c.API.APIKey = value
		}
	}
	if value, ok := os.LookupEnv("FERRY_API_BASE_URL"); ok && strings.TrimSpace(value) != "" {
		c.API.BaseURL = value
	}
	if c.API.DestinationFolderID == "" {
		if value, ok := os.LookupEnv("FERRY_DESTINATION_FOLDER"); ok {
			c.API.DestinationFolderID = value
		}
	}
	c.API.APIKey = strings.TrimSpace(c.API.APIKey)
	c.API.DestinationFolderID = strings.TrimSpace(c.API.DestinationFolderID)
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultAPIBaseURL
	}
	c.API.UserAgent = strings.TrimSpace(c.API.UserAgent)
	if c.API.UserAgent == "" {
		c.API.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeDiscovery() {
	c.Discovery.DuplicatePolicy = strings.ToLower(strings.TrimSpace(c.Discovery.DuplicatePolicy))
	if c.Discovery.DuplicatePolicy == "" {
		c.Discovery.DuplicatePolicy = defaultDuplicatePolicy
	}
	if c.Discovery.FingerprintCacheSize <= 0 {
		c.Discovery.FingerprintCacheSize = defaultFingerprintCacheSize
	}
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeMetrics() error {
	if strings.TrimSpace(c.Metrics.Textfile) == "" {
		c.Metrics.Textfile = ""
		return nil
	}
	var err error
	if c.Metrics.Textfile, err = expandPath(strings.TrimSpace(c.Metrics.Textfile)); err != nil {
		return fmt.Errorf("metrics.textfile: %w", err)
	}
	return nil
}
