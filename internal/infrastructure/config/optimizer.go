package config

import "time"

// OptimizerConfig holds the adaptive optimization loop configuration
type OptimizerConfig struct {
	// Period of the active-route monitoring scan
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`

	// Lateness at the current stop that fires a delay trigger
	DelayThreshold time.Duration `mapstructure:"delay_threshold"`

	// Traffic factor above which a traffic trigger fires
	TrafficThreshold float64 `mapstructure:"traffic_threshold" validate:"min=0"`

	// Minimum gap between re-solves of the same route
	Cooldown time.Duration `mapstructure:"cooldown"`

	// Relative objective improvement a global re-solve must achieve
	GlobalMargin float64 `mapstructure:"global_margin" validate:"min=0,max=1"`

	// Wall-clock budget of an emergency re-assignment
	EmergencyTimeLimit time.Duration `mapstructure:"emergency_time_limit"`

	// How long a route may sit in the reoptimizing status before the
	// watchdog escalates
	StuckDeadline time.Duration `mapstructure:"stuck_deadline"`

	// How far an unassigned urgent order may be from a route to trigger it
	UrgentRadiusKm float64 `mapstructure:"urgent_radius_km" validate:"min=0"`
}
