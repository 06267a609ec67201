package config

import "time"

// ServerConfig holds the HTTP/WebSocket server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`

	// Per-client request rate limiting
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Allowed CORS origins; "*" allows any
	CORSOrigins []string `mapstructure:"cors_origins"`

	// WebSocket heartbeat interval
	WSHeartbeat time.Duration `mapstructure:"ws_heartbeat"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	PIDFile         string        `mapstructure:"pid_file"`
}

// RateLimitConfig holds token-bucket rate limit settings
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`
	Burst             int     `mapstructure:"burst" validate:"min=0"`
}
