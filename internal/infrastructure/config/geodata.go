package config

import "time"

// GeodataConfig holds the external mapping provider configuration
type GeodataConfig struct {
	// Provider base URL; empty switches the service to the offline
	// Haversine fallback only.
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`

	Timeout time.Duration `mapstructure:"timeout"`

	// Provider request rate limiting
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Circuit breaker settings
	Breaker BreakerConfig `mapstructure:"breaker"`

	// Matrix cache TTL
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// Maximum matrix rows fetched in a single provider request
	MaxRowsPerRequest int `mapstructure:"max_rows_per_request" validate:"min=0"`
}

// BreakerConfig holds circuit breaker thresholds
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold" validate:"min=1"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
}
