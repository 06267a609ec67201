// Package planning orchestrates the static planning surface: it loads the
// requested entities, runs the VRPTW solver, commits the resulting routes and
// keeps order/vehicle/driver state in step with route transitions.
package planning

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/openfleet/lastmile/internal/application/common"
	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/event"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// Request is a static optimization request.
type Request struct {
	OrderIDs   []string
	VehicleIDs []string
	DriverIDs  []string
	Depot      shared.Coordinate
	// PlannedDate defaults to today when zero.
	PlannedDate time.Time
	TimeLimit   time.Duration
	Weights     routing.ObjectiveWeights
}

// Result summarizes a committed solve.
type Result struct {
	RoutesCreated   int
	RouteIDs        []string
	TotalDistanceKm float64
	TotalDuration   time.Duration
	ObjectiveValue  float64
	Stats           routing.SolverStats
	Unassigned      []routing.OrderDiagnostic
}

// SolveRecorder receives solve telemetry. Nil-safe via the no-op default.
type SolveRecorder interface {
	RecordSolve(solution *routing.Solution, durationSeconds float64, err error)
}

type nopSolveRecorder struct{}

func (nopSolveRecorder) RecordSolve(*routing.Solution, float64, error) {}

// Service is the planning application service.
type Service struct {
	orders   dispatch.OrderRepository
	vehicles dispatch.VehicleRepository
	drivers  dispatch.DriverRepository
	routes   routing.Repository
	solver   routing.Solver
	bus      event.Publisher
	clock    shared.Clock
	recorder SolveRecorder
}

// Deps wires the planning service. Clock and Recorder may be nil.
type Deps struct {
	Orders   dispatch.OrderRepository
	Vehicles dispatch.VehicleRepository
	Drivers  dispatch.DriverRepository
	Routes   routing.Repository
	Solver   routing.Solver
	Bus      event.Publisher
	Clock    shared.Clock
	Recorder SolveRecorder
}

// NewService creates the planning service.
func NewService(deps Deps) *Service {
	clock := deps.Clock
	if clock == nil {
		clock = shared.NewRealClock()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopSolveRecorder{}
	}
	return &Service{
		orders:   deps.Orders,
		vehicles: deps.Vehicles,
		drivers:  deps.Drivers,
		routes:   deps.Routes,
		solver:   deps.Solver,
		bus:      deps.Bus,
		clock:    clock,
		recorder: recorder,
	}
}

// Optimize runs a static solve over the requested entities and persists the
// resulting routes.
func (s *Service) Optimize(ctx context.Context, req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	orders, err := s.loadOrders(ctx, req.OrderIDs)
	if err != nil {
		return nil, err
	}
	vehicles, err := s.loadVehicles(ctx, req.VehicleIDs)
	if err != nil {
		return nil, err
	}
	drivers, err := s.loadDrivers(ctx, req.DriverIDs)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	date := req.PlannedDate
	if date.IsZero() {
		date = now.UTC().Truncate(24 * time.Hour)
	}

	solveReq := routing.SolveRequest{
		Orders:      orders,
		Vehicles:    vehicles,
		Drivers:     drivers,
		Depot:       req.Depot,
		PlannedDate: date,
		DepotWindow: depotWindow(drivers, date),
		TimeLimit:   req.TimeLimit,
		Weights:     req.Weights,
	}

	started := s.clock.Now()
	solution, err := s.solver.Solve(ctx, solveReq)
	s.recorder.RecordSolve(solution, s.clock.Now().Sub(started).Seconds(), err)
	if err != nil {
		return nil, err
	}

	if err := s.commit(ctx, solution, orders); err != nil {
		return nil, err
	}

	common.LoggerFromContext(ctx).Log("INFO", "Committed optimization solution", map[string]interface{}{
		"routes":     len(solution.Routes),
		"assigned":   solution.Stats.OrdersAssigned,
		"unassigned": solution.Stats.OrdersUnassigned,
		"objective":  solution.ObjectiveValue,
	})

	return &Result{
		RoutesCreated:   len(solution.Routes),
		RouteIDs:        lo.Map(solution.Routes, func(r *routing.Route, _ int) string { return r.ID }),
		TotalDistanceKm: solution.TotalDistanceKm,
		TotalDuration:   solution.TotalDuration,
		ObjectiveValue:  solution.ObjectiveValue,
		Stats:           solution.Stats,
		Unassigned:      solution.Unassigned,
	}, nil
}

// commit persists the solution and moves assigned orders with it.
func (s *Service) commit(ctx context.Context, solution *routing.Solution, orders []*dispatch.Order) error {
	byID := lo.KeyBy(orders, func(o *dispatch.Order) string { return o.ID })

	var assigned []*dispatch.Order
	for _, route := range solution.Routes {
		for _, stop := range route.DeliveryStops() {
			order, ok := byID[stop.OrderID]
			if !ok {
				continue
			}
			if err := order.Assign(stop.ID, route.DriverID); err != nil {
				return err
			}
			assigned = append(assigned, order)
		}
	}

	if err := s.routes.SaveSolution(ctx, solution.Routes); err != nil {
		return fmt.Errorf("failed to persist solution: %w", err)
	}
	if err := s.orders.SaveAll(ctx, assigned); err != nil {
		return fmt.Errorf("failed to persist order assignments: %w", err)
	}
	return nil
}

func (s *Service) loadOrders(ctx context.Context, ids []string) ([]*dispatch.Order, error) {
	orders, err := s.orders.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if missing := missingIDs(ids, lo.Map(orders, func(o *dispatch.Order, _ int) string { return o.ID })); missing != "" {
		return nil, shared.NewNotFoundError("order", missing)
	}
	for _, o := range orders {
		if o.Status != dispatch.OrderStatusPending {
			return nil, shared.NewDomainError(shared.KindConflictingUpdate,
				fmt.Sprintf("order %s is not plannable in status %s", o.ID, o.Status))
		}
	}
	return orders, nil
}

func (s *Service) loadVehicles(ctx context.Context, ids []string) ([]*dispatch.Vehicle, error) {
	vehicles, err := s.vehicles.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if missing := missingIDs(ids, lo.Map(vehicles, func(v *dispatch.Vehicle, _ int) string { return v.ID })); missing != "" {
		return nil, shared.NewNotFoundError("vehicle", missing)
	}
	return vehicles, nil
}

func (s *Service) loadDrivers(ctx context.Context, ids []string) ([]*dispatch.Driver, error) {
	drivers, err := s.drivers.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if missing := missingIDs(ids, lo.Map(drivers, func(d *dispatch.Driver, _ int) string { return d.ID })); missing != "" {
		return nil, shared.NewNotFoundError("driver", missing)
	}
	return drivers, nil
}

func missingIDs(requested, found []string) string {
	missing, _ := lo.Difference(lo.Uniq(requested), found)
	if len(missing) == 0 {
		return ""
	}
	return missing[0]
}

func validateRequest(req Request) error {
	if len(req.OrderIDs) == 0 {
		return shared.NewValidationError("order_ids", "cannot be empty")
	}
	if len(req.VehicleIDs) == 0 {
		return shared.NewValidationError("vehicle_ids", "cannot be empty")
	}
	if len(req.DriverIDs) == 0 {
		return shared.NewValidationError("driver_ids", "cannot be empty")
	}
	if _, err := shared.NewCoordinate(req.Depot.Lat, req.Depot.Lon); err != nil {
		return err
	}
	return nil
}

// depotWindow spans from the earliest shift start to the latest shift end on
// date. Drivers without shifts widen it to the whole day.
func depotWindow(drivers []*dispatch.Driver, date time.Time) shared.TimeWindow {
	day := date.UTC().Truncate(24 * time.Hour)
	window := shared.TimeWindow{}
	wholeDay := false
	for _, d := range drivers {
		shift := d.ShiftWindow(day)
		if shift.IsZero() {
			wholeDay = true
			continue
		}
		if window.IsZero() {
			window = shift
			continue
		}
		if shift.Start.Before(window.Start) {
			window.Start = shift.Start
		}
		if shift.End.After(window.End) {
			window.End = shift.End
		}
	}
	if window.IsZero() || wholeDay {
		return shared.TimeWindow{Start: day, End: day.Add(24 * time.Hour)}
	}
	return window
}
