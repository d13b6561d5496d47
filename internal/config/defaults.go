package config

const (
	defaultDataDir              = "~/.local/share/ferry"
	defaultAPIBaseURL           = "https://ingest.example.com/v1"
	defaultAPITimeoutSeconds    = 60
	defaultUserAgent            = "ferry/dev"
	defaultUploadRPM            = 60
	defaultStatusRPM            = 120
	defaultRetryMaxAttempts     = 3
	defaultRetryBaseDelay       = 5
	defaultRetryMaxDelay        = 300
	defaultWorkers              = 4
	defaultVerifyInterval       = 30
	defaultVerifyTimeout        = 1800
	defaultVerifyMaxIterations  = 500
	defaultDuplicatePolicy      = "upload"
	defaultFingerprintCacheSize = 4096
	defaultServerBind           = "127.0.0.1:7531"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"

	// MinWorkers and MaxWorkers bound workflow.workers.
	MinWorkers = 1
	MaxWorkers = 16

	// MaxRetryAttempts bounds retry.max_attempts.
	MaxRetryAttempts = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		API: API{
			BaseURL:        defaultAPIBaseURL,
			TimeoutSeconds: defaultAPITimeoutSeconds,
			UserAgent:      defaultUserAgent,
		},
		RateLimit: RateLimit{
			UploadRPM: defaultUploadRPM,
			StatusRPM: defaultStatusRPM,
		},
		Retry: Retry{
			MaxAttempts:      defaultRetryMaxAttempts,
			BaseDelaySeconds: defaultRetryBaseDelay,
			MaxDelaySeconds:  defaultRetryMaxDelay,
		},
		Workflow: Workflow{
			Workers: defaultWorkers,
		},
		Verify: Verify{
			IntervalSeconds: defaultVerifyInterval,
			TimeoutSeconds:  defaultVerifyTimeout,
			MaxIterations:   defaultVerifyMaxIterations,
		},
		Discovery: Discovery{
			DuplicatePolicy:      defaultDuplicatePolicy,
			FingerprintCacheSize: defaultFingerprintCacheSize,
		},
		Server: Server{
			Bind: defaultServerBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
