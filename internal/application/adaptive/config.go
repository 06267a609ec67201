package adaptive

import (
	"time"

	"github.com/openfleet/lastmile/internal/domain/routing"
)

// Config tunes the adaptive optimization loop.
type Config struct {
	// MonitorInterval is the period of the active-route scan.
	MonitorInterval time.Duration
	// DelayThreshold is the lateness at the current stop that fires a delay
	// trigger.
	DelayThreshold time.Duration
	// TrafficThreshold is the traffic factor above which a traffic trigger fires.
	TrafficThreshold float64
	// Cooldown suppresses repeated re-solves of the same route. Immediate
	// triggers bypass it.
	Cooldown time.Duration
	// GlobalMargin is the relative objective improvement a global re-solve
	// must achieve to be committed.
	GlobalMargin float64
	// SegmentTimeLimit bounds a local intra-route re-solve.
	SegmentTimeLimit time.Duration
	// EmergencyTimeLimit bounds the re-assignment solve after a breakdown.
	EmergencyTimeLimit time.Duration
	// StuckDeadline is how long a route may sit in the reoptimizing status
	// before the watchdog forces it back to active and escalates.
	StuckDeadline time.Duration
	// UrgentRadiusKm bounds how far an unassigned urgent order may be from a
	// route to trigger it.
	UrgentRadiusKm float64

	Weights routing.ObjectiveWeights
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MonitorInterval:    60 * time.Second,
		DelayThreshold:     15 * time.Minute,
		TrafficThreshold:   1.5,
		Cooldown:           30 * time.Minute,
		GlobalMargin:       0.01,
		SegmentTimeLimit:   5 * time.Second,
		EmergencyTimeLimit: 30 * time.Second,
		StuckDeadline:      5 * time.Minute,
		UrgentRadiusKm:     5,
		Weights:            routing.ObjectiveWeights{Alpha: 0.6, Beta: 0.3, Gamma: 0.1},
	}
}

// withDefaults fills zero fields with the production defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = d.MonitorInterval
	}
	if c.DelayThreshold <= 0 {
		c.DelayThreshold = d.DelayThreshold
	}
	if c.TrafficThreshold <= 0 {
		c.TrafficThreshold = d.TrafficThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.GlobalMargin <= 0 {
		c.GlobalMargin = d.GlobalMargin
	}
	if c.SegmentTimeLimit <= 0 {
		c.SegmentTimeLimit = d.SegmentTimeLimit
	}
	if c.EmergencyTimeLimit <= 0 {
		c.EmergencyTimeLimit = d.EmergencyTimeLimit
	}
	if c.StuckDeadline <= 0 {
		c.StuckDeadline = d.StuckDeadline
	}
	if c.UrgentRadiusKm <= 0 {
		c.UrgentRadiusKm = d.UrgentRadiusKm
	}
	if c.Weights.Alpha+c.Weights.Beta+c.Weights.Gamma <= 0 {
		c.Weights = d.Weights
	}
	return c
}

// Recorder receives optimizer metrics. The zero implementation discards them.
type Recorder interface {
	ReoptimizationStarted(strategy Strategy)
	ReoptimizationCompleted(strategy Strategy, outcome string, elapsed time.Duration)
	CooldownSkipped()
}

type nopRecorder struct{}

func (nopRecorder) ReoptimizationStarted(Strategy)                          {}
func (nopRecorder) ReoptimizationCompleted(Strategy, string, time.Duration) {}
func (nopRecorder) CooldownSkipped()                                        {}

// Outcome labels reported to the recorder.
const (
	OutcomeCommitted     = "committed"
	OutcomeNoImprovement = "no_improvement"
	OutcomeRejected      = "rejected"
	OutcomeFailed        = "failed"
	OutcomeEscalated     = "escalated"
)
