package routing

import (
	"fmt"
	"time"

	"github.com/openfleet/lastmile/internal/domain/shared"
)

// RouteStatus represents route execution status
type RouteStatus string

const (
	RouteStatusPlanned      RouteStatus = "planned"
	RouteStatusActive       RouteStatus = "active"
	RouteStatusCompleted    RouteStatus = "completed"
	RouteStatusCancelled    RouteStatus = "cancelled"
	RouteStatusDisrupted    RouteStatus = "disrupted"
	RouteStatusReoptimizing RouteStatus = "reoptimizing"
)

// Route aggregate root - a planned tour for one vehicle/driver pair.
// The route exclusively owns its Stops; orders are referenced by id only.
//
// Invariants:
// - Stops form a closed tour: sequence 0 and sequence n-1 are depot stops
// - Sum of stop demand never exceeds vehicle capacity
// - CurrentStopIndex is monotonically non-decreasing
// - Stops below CurrentStopIndex are never mutated
type Route struct {
	ID          string
	VehicleID   string
	DriverID    string
	PlannedDate time.Time

	PlannedStart time.Time
	PlannedEnd   time.Time

	TotalDistanceKm float64
	TotalDuration   time.Duration
	TotalWeightKg   float64
	TotalVolumeM3   float64

	Status           RouteStatus
	CurrentStopIndex int

	ReoptimizationCount int
	// AdaptationCount feeds the solver's adaptation objective term. It is
	// per-route: zero on a static solve, stamped with the re-solve round by
	// the committing strategy.
	AdaptationCount   int
	OptimizationScore float64
	LastReoptimizedAt *time.Time

	Stops []*Stop

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRoute creates an empty planned route.
func NewRoute(id, vehicleID, driverID string, plannedDate time.Time) (*Route, error) {
	if id == "" {
		return nil, shared.NewValidationError("id", "cannot be empty")
	}
	if vehicleID == "" {
		return nil, shared.NewValidationError("vehicle_id", "cannot be empty")
	}
	if driverID == "" {
		return nil, shared.NewValidationError("driver_id", "cannot be empty")
	}
	return &Route{
		ID:          id,
		VehicleID:   vehicleID,
		DriverID:    driverID,
		PlannedDate: plannedDate.UTC(),
		Status:      RouteStatusPlanned,
	}, nil
}

// Validate checks the structural invariants of a fully built route.
func (r *Route) Validate() error {
	if len(r.Stops) < 2 {
		return fmt.Errorf("route %s must have at least depot bookends, has %d stops", r.ID, len(r.Stops))
	}
	for i, stop := range r.Stops {
		if stop.Sequence != i {
			return fmt.Errorf("route %s: stop at position %d has sequence %d", r.ID, i, stop.Sequence)
		}
	}
	if r.Stops[0].Kind != StopKindDepot {
		return fmt.Errorf("route %s: first stop must be depot, is %s", r.ID, r.Stops[0].Kind)
	}
	if r.Stops[len(r.Stops)-1].Kind != StopKindDepot {
		return fmt.Errorf("route %s: last stop must be depot, is %s", r.ID, r.Stops[len(r.Stops)-1].Kind)
	}
	return nil
}

// IsActive reports whether the route is in a monitorable state.
func (r *Route) IsActive() bool {
	return r.Status == RouteStatusPlanned || r.Status == RouteStatusActive
}

// DeliveryStops returns the non-depot, non-break stops in sequence order.
func (r *Route) DeliveryStops() []*Stop {
	stops := make([]*Stop, 0, len(r.Stops))
	for _, s := range r.Stops {
		if s.Kind == StopKindDelivery {
			stops = append(stops, s)
		}
	}
	return stops
}

// RemainingStops returns stops at or after the current index that are still
// pending. These are the only stops a re-solve may reorder.
func (r *Route) RemainingStops() []*Stop {
	var remaining []*Stop
	for _, s := range r.Stops {
		if s.Sequence >= r.CurrentStopIndex && s.IsMutable() {
			remaining = append(remaining, s)
		}
	}
	return remaining
}

// CurrentStop returns the stop at the current index, or nil past the end.
func (r *Route) CurrentStop() *Stop {
	if r.CurrentStopIndex < len(r.Stops) {
		return r.Stops[r.CurrentStopIndex]
	}
	return nil
}

// AdvanceTo moves the current stop index forward. Moving backward violates
// invariant I4 and is rejected.
func (r *Route) AdvanceTo(index int) error {
	if index < r.CurrentStopIndex {
		return shared.NewDomainError(shared.KindConflictingUpdate,
			fmt.Sprintf("route %s: current stop index cannot move backward (%d -> %d)", r.ID, r.CurrentStopIndex, index))
	}
	if index > len(r.Stops) {
		return shared.NewValidationError("current_stop_index", fmt.Sprintf("out of range: %d", index))
	}
	r.CurrentStopIndex = index
	return nil
}

// ReplaceTail swaps the pending tail of the route for a re-ordered one.
// Completed and in-progress stops (everything below the first replaced
// sequence) are untouched; sequences are renumbered to stay gapless.
func (r *Route) ReplaceTail(newTail []*Stop) error {
	if len(newTail) == 0 {
		return nil
	}
	firstSeq := newTail[0].Sequence
	if firstSeq < r.CurrentStopIndex {
		return shared.NewDomainError(shared.KindConflictingUpdate,
			fmt.Sprintf("route %s: tail replacement would touch executed stops (seq %d < index %d)", r.ID, firstSeq, r.CurrentStopIndex))
	}
	head := make([]*Stop, 0, firstSeq)
	for _, s := range r.Stops {
		if s.Sequence < firstSeq {
			head = append(head, s)
		}
	}
	r.Stops = append(head, newTail...)
	for i, s := range r.Stops {
		s.Sequence = i
	}
	return nil
}

// RecomputeTotals refreshes the aggregate totals from the stop list.
func (r *Route) RecomputeTotals() {
	r.TotalDistanceKm = 0
	r.TotalWeightKg = 0
	r.TotalVolumeM3 = 0
	for _, s := range r.Stops {
		r.TotalDistanceKm += s.DistanceFromPrevKm
		r.TotalWeightKg += s.WeightKg
		r.TotalVolumeM3 += s.VolumeM3
	}
	if len(r.Stops) > 0 {
		first := r.Stops[0]
		last := r.Stops[len(r.Stops)-1]
		r.PlannedStart = first.PlannedDeparture
		r.PlannedEnd = last.PlannedArrival
		r.TotalDuration = last.PlannedArrival.Sub(first.PlannedDeparture)
	}
}

// StopCount returns the number of delivery stops.
func (r *Route) StopCount() int {
	return len(r.DeliveryStops())
}

// TravelCost returns the route's weighted travel cost given vehicle rates.
func (r *Route) TravelCost(costPerKm, costPerHour float64) float64 {
	return r.TotalDistanceKm*costPerKm + r.TotalDuration.Hours()*costPerHour
}

// MarkReoptimized records a committed re-solve.
func (r *Route) MarkReoptimized(now time.Time) {
	t := now.UTC()
	r.ReoptimizationCount++
	r.AdaptationCount++
	r.LastReoptimizedAt = &t
}

// InCooldown reports whether the route was re-solved within the cooldown
// window ending at now.
func (r *Route) InCooldown(now time.Time, cooldown time.Duration) bool {
	return r.LastReoptimizedAt != nil && now.Sub(*r.LastReoptimizedAt) < cooldown
}

func (r *Route) String() string {
	return fmt.Sprintf("Route(id=%s, vehicle=%s, stops=%d, status=%s)", r.ID, r.VehicleID, len(r.Stops), r.Status)
}
