package config

import "time"

// SolverConfig holds the VRPTW solver configuration
type SolverConfig struct {
	// Wall-clock budget of a full solve
	TimeLimit time.Duration `mapstructure:"time_limit"`

	// Wall-clock budget of an intra-route segment re-solve
	SegmentTimeLimit time.Duration `mapstructure:"segment_time_limit"`

	// Objective weights: travel cost, waiting time, adaptation penalty.
	// Normalized to sum to one before use.
	Alpha float64 `mapstructure:"alpha" validate:"min=0"`
	Beta  float64 `mapstructure:"beta" validate:"min=0"`
	Gamma float64 `mapstructure:"gamma" validate:"min=0"`
}
