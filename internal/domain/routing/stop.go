package routing

import (
	"fmt"
	"time"

	"github.com/openfleet/lastmile/internal/domain/shared"
)

// StopKind distinguishes depot bookends, deliveries and driver breaks.
type StopKind string

const (
	StopKindDepot    StopKind = "depot"
	StopKindDelivery StopKind = "delivery"
	StopKindBreak    StopKind = "break"
)

// StopStatus represents stop execution state
type StopStatus string

const (
	StopStatusPending     StopStatus = "pending"
	StopStatusApproaching StopStatus = "approaching"
	StopStatusArrived     StopStatus = "arrived"
	StopStatusInProgress  StopStatus = "in_progress"
	StopStatusCompleted   StopStatus = "completed"
	StopStatusFailed      StopStatus = "failed"
	StopStatusSkipped     StopStatus = "skipped"
)

// Stop is a single visit on a route.
//
// Invariants:
// - Sequence values on a route are strictly increasing 0..n-1 with no gaps
// - PlannedArrival does not exceed PlannedDeparture
// - OrderID is empty exactly for depot and break stops
type Stop struct {
	ID      string
	RouteID string
	OrderID string
	Kind    StopKind

	Sequence   int
	Coordinate shared.Coordinate

	PlannedArrival   time.Time
	PlannedDeparture time.Time
	ActualArrival    *time.Time
	ActualDeparture  *time.Time

	Status StopStatus

	// Leg from the previous stop.
	DistanceFromPrevKm float64
	TravelFromPrev     time.Duration

	// Demand carried for the order at this stop (zero for depot/break).
	WeightKg float64
	VolumeM3 float64
}

// NewStop creates a stop with validation.
func NewStop(id, routeID string, kind StopKind, sequence int, coord shared.Coordinate) (*Stop, error) {
	if id == "" {
		return nil, shared.NewValidationError("id", "cannot be empty")
	}
	if sequence < 0 {
		return nil, shared.NewValidationError("sequence", fmt.Sprintf("cannot be negative: %d", sequence))
	}
	return &Stop{
		ID:         id,
		RouteID:    routeID,
		Kind:       kind,
		Sequence:   sequence,
		Coordinate: coord,
		Status:     StopStatusPending,
	}, nil
}

// SetSchedule assigns the planned arrival/departure pair with validation.
func (s *Stop) SetSchedule(arrival, departure time.Time) error {
	if departure.Before(arrival) {
		return shared.NewValidationError("planned_departure",
			fmt.Sprintf("precedes planned arrival for stop %s", s.ID))
	}
	s.PlannedArrival = arrival.UTC()
	s.PlannedDeparture = departure.UTC()
	return nil
}

// IsFinished reports whether the stop has been executed (successfully or not).
func (s *Stop) IsFinished() bool {
	switch s.Status {
	case StopStatusCompleted, StopStatusFailed, StopStatusSkipped:
		return true
	}
	return false
}

// IsMutable reports whether the adaptive optimizer may still reorder this stop.
func (s *Stop) IsMutable() bool {
	return s.Status == StopStatusPending
}

func (s *Stop) String() string {
	return fmt.Sprintf("Stop(seq=%d, kind=%s, order=%s, status=%s)", s.Sequence, s.Kind, s.OrderID, s.Status)
}
