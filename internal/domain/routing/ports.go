package routing

import (
	"context"
	"time"

	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/event"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// SolveRequest is the input of a static VRPTW solve.
type SolveRequest struct {
	Orders   []*dispatch.Order
	Vehicles []*dispatch.Vehicle
	Drivers  []*dispatch.Driver

	Depot       shared.Coordinate
	PlannedDate time.Time
	// DepotWindow bounds the working day; order windows strictly outside it
	// are rejected up front.
	DepotWindow shared.TimeWindow

	TimeLimit time.Duration
	Weights   ObjectiveWeights
	// Adaptations is the re-solve round of the plan being produced; a fresh
	// static solve is round zero. Each round adds the weighted adaptation
	// penalty to every route's objective.
	Adaptations int
}

// SegmentRequest asks for an intra-route re-order of pending stops.
type SegmentRequest struct {
	Route   *Route
	Vehicle *dispatch.Vehicle
	Driver  *dispatch.Driver
	// Orders backing the pending delivery stops; stops reference orders by id
	// only, so the caller supplies them for time windows and service times.
	Orders    []*dispatch.Order
	Trigger   event.Event
	TimeLimit time.Duration
	Weights   ObjectiveWeights
	// Now anchors feasibility: no stop may be scheduled before it.
	Now time.Time
}

// SegmentResult is a committed-able intra-route improvement.
type SegmentResult struct {
	NewTail       []*Stop
	ImprovementKm float64
}

// Solver is the static VRPTW solver (C4).
type Solver interface {
	Solve(ctx context.Context, req SolveRequest) (*Solution, error)
	// ReoptimizeSegment reorders only pending stops of a single route.
	// Returns nil result when no improving order exists.
	ReoptimizeSegment(ctx context.Context, req SegmentRequest) (*SegmentResult, error)
}

// TrafficSegment is a stretch of a provider-computed road route.
type TrafficSegment struct {
	Level    int     `json:"level"` // 0..10, provider congestion level
	SpeedKmh float64 `json:"speed_kmh"`
	LengthM  float64 `json:"length_m"`
}

// RouteResult is a provider polyline route between two points.
type RouteResult struct {
	Polyline     string           `json:"polyline"`
	DistanceM    int              `json:"distance_m"`
	FreeTimeS    int              `json:"free_time_s"`
	TrafficTimeS int              `json:"traffic_time_s"`
	Segments     []TrafficSegment `json:"segments"`
}

// TrafficFactor is the ratio of traffic time to free-flow time.
func (r *RouteResult) TrafficFactor() float64 {
	if r.FreeTimeS <= 0 {
		return 1.0
	}
	return float64(r.TrafficTimeS) / float64(r.FreeTimeS)
}

// Matrices hold pairwise distance and time data over a location set.
// Distances are integer meters, times integer seconds. The matrices may be
// asymmetric; Haversine-derived data is symmetric as a special case.
type Matrices struct {
	DistanceM    [][]int
	TimeS        [][]int
	TrafficTimeS [][]int
	// Degraded is set when the mapping provider was unavailable and the
	// values were derived from the Haversine fallback.
	Degraded bool
}

// Dimension returns the matrix side length.
func (m *Matrices) Dimension() int {
	return len(m.DistanceM)
}

// GeodataProvider abstracts the external mapping provider (C1).
// Implementations must be safe for concurrent use and rate-limited.
type GeodataProvider interface {
	Geocode(ctx context.Context, text string) (shared.Coordinate, error)
	Route(ctx context.Context, origin, dest shared.Coordinate, waypoints []shared.Coordinate, departAt time.Time, kind dispatch.VehicleKind) (*RouteResult, error)
	Matrix(ctx context.Context, origins, destinations []shared.Coordinate, departAt time.Time, kind dispatch.VehicleKind) (*Matrices, error)
}

// MatrixSource provides square matrices over a location set, memoized by the
// cache layer (C2).
type MatrixSource interface {
	SquareMatrix(ctx context.Context, locations []shared.Coordinate, departAt time.Time, kind dispatch.VehicleKind) (*Matrices, error)
}

// Repository persists routes and their stops (C8).
type Repository interface {
	FindByID(ctx context.Context, id string) (*Route, error)
	List(ctx context.Context, q RouteQuery) ([]*Route, error)
	ListActive(ctx context.Context) ([]*Route, error)
	// SaveSolution persists a full solve result atomically.
	SaveSolution(ctx context.Context, routes []*Route) error
	// CommitReoptimization atomically rewrites the route's stops, updates its
	// counters and appends the event. Readers observe the old or new route in
	// full, never a partial rewrite.
	CommitReoptimization(ctx context.Context, route *Route, ev event.Event) error
	UpdateStatus(ctx context.Context, id string, status RouteStatus, currentStopIndex *int) error
	Delete(ctx context.Context, id string) error
}

// RouteQuery filters route listings.
type RouteQuery struct {
	Date      *time.Time
	Status    RouteStatus
	VehicleID string
	DriverID  string
	Limit     int
	Offset    int
}
