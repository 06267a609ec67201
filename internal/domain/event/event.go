package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/openfleet/lastmile/internal/domain/shared"
)

// Kind identifies the real-time event type.
type Kind string

const (
	KindTrafficDelay             Kind = "traffic_delay"
	KindVehicleBreakdown         Kind = "vehicle_breakdown"
	KindDriverUnavailable        Kind = "driver_unavailable"
	KindNewUrgentOrder           Kind = "new_urgent_order"
	KindCustomerReschedule       Kind = "customer_reschedule"
	KindWeather                  Kind = "weather"
	KindRoadClosure              Kind = "road_closure"
	KindRouteStarted             Kind = "route_started"
	KindStopCompleted            Kind = "stop_completed"
	KindDeliveryFailed           Kind = "delivery_failed"
	KindReoptimizationTriggered  Kind = "reoptimization_triggered"
	KindReoptimizationCompleted  Kind = "reoptimization_completed"
	KindReoptimizationFailed     Kind = "reoptimization_failed"
	KindReoptimizationRejected   Kind = "reoptimization_rejected"
	KindManualIntervention       Kind = "manual_intervention"
	KindGPSDeviation             Kind = "gps_deviation"
	KindTimeWindowViolation      Kind = "time_window_violation"
)

// Severity grades event impact.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank maps severity to an ordinal for comparisons.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Status tracks the event lifecycle.
type Status string

const (
	StatusActive    Status = "active"
	StatusResolved  Status = "resolved"
	StatusIgnored   Status = "ignored"
	StatusEscalated Status = "escalated"
)

// Event is a real-time occurrence flowing through the bus. Events hold only
// entity ids, never strong references.
type Event struct {
	ID        string             `json:"id"`
	Kind      Kind               `json:"kind"`
	Severity  Severity           `json:"severity"`
	Status    Status             `json:"status"`
	Timestamp time.Time          `json:"timestamp"`
	Location  *shared.Coordinate `json:"location,omitempty"`

	RouteID   string `json:"route_id,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	VehicleID string `json:"vehicle_id,omitempty"`
	DriverID  string `json:"driver_id,omitempty"`

	EstimatedDelayMinutes  int  `json:"estimated_delay_minutes,omitempty"`
	TriggersReoptimization bool `json:"triggers_reoptimization"`

	// Payload carries kind-specific details as an opaque JSON object.
	Payload map[string]interface{} `json:"payload,omitempty"`

	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// New creates an active event of the given kind and severity stamped now.
func New(kind Kind, severity Severity, now time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Severity:  severity,
		Status:    StatusActive,
		Timestamp: now.UTC(),
		Payload:   map[string]interface{}{},
	}
}

// Resolve marks the event resolved at the given time.
func (e *Event) Resolve(now time.Time) {
	t := now.UTC()
	e.Status = StatusResolved
	e.ResolvedAt = &t
}

// IsDisruption reports whether the kind describes an external disruption
// rather than a progress or bookkeeping notification.
func (e Event) IsDisruption() bool {
	switch e.Kind {
	case KindTrafficDelay, KindVehicleBreakdown, KindDriverUnavailable,
		KindNewUrgentOrder, KindCustomerReschedule, KindWeather, KindRoadClosure:
		return true
	}
	return false
}
