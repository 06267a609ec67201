package config

import "time"

// SimulationConfig holds the condition simulator configuration
type SimulationConfig struct {
	// Start the simulator with the daemon
	Enabled bool `mapstructure:"enabled"`

	// Tick period of the simulation loop
	UpdateInterval time.Duration `mapstructure:"update_interval"`

	// Time acceleration factor
	Speed float64 `mapstructure:"speed" validate:"min=0"`

	// Seed for the random source; 0 seeds from the clock
	Seed int64 `mapstructure:"seed"`

	MinEventDuration time.Duration `mapstructure:"min_event_duration"`
	MaxEventDuration time.Duration `mapstructure:"max_event_duration"`
}
