package dispatch

import (
	"fmt"
	"time"

	"github.com/openfleet/lastmile/internal/domain/shared"
)

// OrderPriority represents delivery urgency
type OrderPriority string

const (
	PriorityLow    OrderPriority = "low"
	PriorityMedium OrderPriority = "medium"
	PriorityHigh   OrderPriority = "high"
	PriorityUrgent OrderPriority = "urgent"
)

// Rank maps priority to an ordinal for comparisons (urgent highest).
func (p OrderPriority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether the priority ranks at or above other.
func (p OrderPriority) AtLeast(other OrderPriority) bool {
	return p.Rank() >= other.Rank()
}

// OrderStatus represents order lifecycle state
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusAssigned  OrderStatus = "assigned"
	OrderStatusInTransit OrderStatus = "in_transit"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order represents a single customer delivery.
//
// Invariants:
// - Time window start precedes end
// - Weight and volume are non-negative
// - An order is referenced by at most one active stop
type Order struct {
	ID              string
	Coordinate      shared.Coordinate
	TimeWindow      shared.TimeWindow
	WeightKg        float64
	VolumeM3        float64
	ServiceDuration time.Duration
	Priority        OrderPriority
	Status          OrderStatus
	Fragile         bool
	HighValue       bool

	// Back-references, set when the order is placed on a stop.
	DriverID string
	StopID   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrder creates an order with validation.
func NewOrder(id string, coord shared.Coordinate, window shared.TimeWindow, weightKg, volumeM3 float64, service time.Duration, priority OrderPriority) (*Order, error) {
	if id == "" {
		return nil, shared.NewValidationError("id", "cannot be empty")
	}
	if weightKg < 0 {
		return nil, shared.NewValidationError("weight_kg", fmt.Sprintf("cannot be negative: %f", weightKg))
	}
	if volumeM3 < 0 {
		return nil, shared.NewValidationError("volume_m3", fmt.Sprintf("cannot be negative: %f", volumeM3))
	}
	if service < 0 {
		return nil, shared.NewValidationError("service_duration", "cannot be negative")
	}
	if !window.Start.Before(window.End) {
		return nil, shared.NewValidationError("time_window", "start must precede end")
	}
	if priority == "" {
		priority = PriorityMedium
	}

	return &Order{
		ID:              id,
		Coordinate:      coord,
		TimeWindow:      window,
		WeightKg:        weightKg,
		VolumeM3:        volumeM3,
		ServiceDuration: service,
		Priority:        priority,
		Status:          OrderStatusPending,
	}, nil
}

// Assign marks the order as placed on a stop.
func (o *Order) Assign(stopID, driverID string) error {
	if o.Status != OrderStatusPending && o.Status != OrderStatusAssigned {
		return shared.NewDomainError(shared.KindConflictingUpdate,
			fmt.Sprintf("order %s cannot be assigned in status %s", o.ID, o.Status))
	}
	o.Status = OrderStatusAssigned
	o.StopID = stopID
	o.DriverID = driverID
	return nil
}

// Detach clears the stop link, returning the order to the unassigned pool.
// Used by the emergency strategy when a route is disrupted.
func (o *Order) Detach() {
	o.Status = OrderStatusPending
	o.StopID = ""
	o.DriverID = ""
}

// IsTerminal reports whether the order reached a final state.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusDelivered, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// Demand returns the order's capacity demand pair.
func (o *Order) Demand() (weightKg, volumeM3 float64) {
	return o.WeightKg, o.VolumeM3
}

func (o *Order) String() string {
	return fmt.Sprintf("Order(id=%s, priority=%s, status=%s, window=%s)", o.ID, o.Priority, o.Status, o.TimeWindow)
}
