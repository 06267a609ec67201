package config

import "time"

// DatabaseConfig selects and tunes the route store backend.
type DatabaseConfig struct {
	// Type is "postgres" for deployments or "sqlite" for local runs.
	Type string `mapstructure:"type" validate:"required,oneof=postgres sqlite"`

	// URL is a full connection string and takes precedence over the
	// individual postgres fields, matching DATABASE_URL hosting conventions.
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode" validate:"omitempty,oneof=disable require verify-ca verify-full"`

	// Path is the sqlite file, or ":memory:".
	Path string `mapstructure:"path"`

	Pool PoolConfig `mapstructure:"pool"`
}

// PoolConfig bounds the postgres connection pool.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open" validate:"min=1"`
	MaxIdle     int           `mapstructure:"max_idle" validate:"min=1"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}
