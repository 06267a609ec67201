package solver

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/openfleet/lastmile/internal/application/common"
	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

const defaultTimeLimit = 30 * time.Second

// Solver implements routing.Solver on top of a matrix source.
type Solver struct {
	matrices routing.MatrixSource
	clock    shared.Clock
}

var _ routing.Solver = (*Solver)(nil)

// New creates a solver. If clock is nil, uses RealClock.
func New(matrices routing.MatrixSource, clock shared.Clock) *Solver {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Solver{matrices: matrices, clock: clock}
}

// Solve runs the static VRPTW solve: validation, matrix fetch, insertion
// construction, then local search until the time limit. Identical requests
// yield identical assignments and schedules.
func (s *Solver) Solve(ctx context.Context, req routing.SolveRequest) (*routing.Solution, error) {
	if err := validateSolveRequest(req); err != nil {
		return nil, err
	}

	p, err := s.buildProblem(ctx, req)
	if err != nil {
		return nil, err
	}

	limit := req.TimeLimit
	if limit <= 0 {
		limit = defaultTimeLimit
	}
	started := s.clock.Now()
	deadline := started.Add(limit)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	stats := routing.SolverStats{}
	for _, m := range p.byKind {
		if m.Degraded {
			stats.MatrixDegraded = true
		}
	}

	st := construct(p)
	stats.ConstructionMs = s.clock.Now().Sub(started).Milliseconds()

	improveStart := s.clock.Now()
	improve(st, s.clock, deadline, &stats)
	st.retryUnassigned()
	stats.ImprovementMs = s.clock.Now().Sub(improveStart).Milliseconds()

	diags := st.diagnostics()
	if len(st.routes) == 0 {
		return nil, routing.NewNoFeasibleSolutionError(diags)
	}
	if len(diags) > 0 && !stats.TimedOut {
		return nil, routing.NewNoFeasibleSolutionError(diags)
	}
	if len(diags) > 0 {
		common.LoggerFromContext(ctx).Log("WARN", "Returning partial solution after time limit", map[string]interface{}{
			"unassigned": len(diags),
			"routes":     len(st.routes),
		})
	}

	return s.buildSolution(p, st, stats, diags, req)
}

// buildProblem sorts and pairs the fleet and fetches one matrix per vehicle
// kind through the cache.
func (s *Solver) buildProblem(ctx context.Context, req routing.SolveRequest) (*problem, error) {
	orders := make([]*dispatch.Order, len(req.Orders))
	copy(orders, req.Orders)
	sort.Slice(orders, func(a, b int) bool { return orders[a].ID < orders[b].ID })

	vehicles := make([]*dispatch.Vehicle, 0, len(req.Vehicles))
	for _, v := range req.Vehicles {
		if v.IsOperational() {
			vehicles = append(vehicles, v)
		}
	}
	sort.Slice(vehicles, func(a, b int) bool { return vehicles[a].ID < vehicles[b].ID })

	drivers := make([]*dispatch.Driver, 0, len(req.Drivers))
	for _, d := range req.Drivers {
		if d.IsAvailable() {
			drivers = append(drivers, d)
		}
	}
	sort.Slice(drivers, func(a, b int) bool { return drivers[a].ID < drivers[b].ID })

	n := len(vehicles)
	if len(drivers) < n {
		n = len(drivers)
	}
	if n == 0 {
		return nil, shared.NewDomainError(shared.KindInvalidInput,
			"no operational vehicle and available driver pair")
	}
	pairs := make([]vehicleDriver, n)
	for i := 0; i < n; i++ {
		pairs[i] = vehicleDriver{vehicle: vehicles[i], driver: drivers[i]}
	}

	locations := make([]shared.Coordinate, 0, len(orders)+1)
	locations = append(locations, req.Depot)
	for _, o := range orders {
		locations = append(locations, o.Coordinate)
	}

	byKind := make(map[dispatch.VehicleKind]*routing.Matrices)
	for _, pair := range pairs {
		if _, ok := byKind[pair.vehicle.Kind]; ok {
			continue
		}
		m, err := s.matrices.SquareMatrix(ctx, locations, req.DepotWindow.Start, pair.vehicle.Kind)
		if err != nil {
			return nil, err
		}
		byKind[pair.vehicle.Kind] = m
	}

	return &problem{
		orders:      orders,
		pairs:       pairs,
		depot:       req.Depot,
		window:      req.DepotWindow,
		weights:     req.Weights.Normalized(),
		adaptations: req.Adaptations,
		byKind:      byKind,
	}, nil
}

// buildSolution materializes the search state into route aggregates with
// scheduled stops and assigns orders to them.
func (s *Solver) buildSolution(p *problem, st *solveState, stats routing.SolverStats, diags []routing.OrderDiagnostic, req routing.SolveRequest) (*routing.Solution, error) {
	solution := &routing.Solution{Stats: stats, Unassigned: diags}

	for _, c := range st.routes {
		pair := p.pairs[c.pairIdx]
		route, err := buildRoute(p, c, pair, req.PlannedDate)
		if err != nil {
			return nil, err
		}
		route.OptimizationScore = c.cost

		for _, stop := range route.Stops {
			if stop.Kind != routing.StopKindDelivery {
				continue
			}
			for _, o := range p.orders {
				if o.ID == stop.OrderID {
					if err := o.Assign(stop.ID, pair.driver.ID); err != nil {
						return nil, err
					}
					break
				}
			}
		}

		solution.Routes = append(solution.Routes, route)
		solution.TotalDistanceKm += route.TotalDistanceKm
		solution.TotalDuration += route.TotalDuration
		solution.ObjectiveValue += c.cost
	}

	solution.Stats.VehiclesUsed = len(solution.Routes)
	solution.Stats.OrdersAssigned = len(p.orders) - len(diags)
	solution.Stats.OrdersUnassigned = len(diags)
	return solution, nil
}

// buildRoute converts one evaluated candidate into a route aggregate with
// depot bookends and break stops.
func buildRoute(p *problem, c *candidate, pair vehicleDriver, plannedDate time.Time) (*routing.Route, error) {
	route, err := routing.NewRoute(uuid.NewString(), pair.vehicle.ID, pair.driver.ID, plannedDate)
	if err != nil {
		return nil, err
	}

	seqNo := 0
	addStop := func(kind routing.StopKind, coord shared.Coordinate) (*routing.Stop, error) {
		stop, err := routing.NewStop(uuid.NewString(), route.ID, kind, seqNo, coord)
		if err != nil {
			return nil, err
		}
		seqNo++
		route.Stops = append(route.Stops, stop)
		return stop, nil
	}

	start, err := addStop(routing.StopKindDepot, p.depot)
	if err != nil {
		return nil, err
	}
	if err := start.SetSchedule(c.eval.start, c.eval.start); err != nil {
		return nil, err
	}

	prevCoord := p.depot
	prevDeparture := c.eval.start
	for _, l := range c.eval.legs {
		o := p.orders[l.orderIdx]

		if l.breakBefore {
			br, err := addStop(routing.StopKindBreak, prevCoord)
			if err != nil {
				return nil, err
			}
			if err := br.SetSchedule(prevDeparture, prevDeparture.Add(pair.vehicle.BreakDuration)); err != nil {
				return nil, err
			}
			prevDeparture = br.PlannedDeparture
		}

		stop, err := addStop(routing.StopKindDelivery, o.Coordinate)
		if err != nil {
			return nil, err
		}
		stop.OrderID = o.ID
		stop.DistanceFromPrevKm = l.distanceKm
		stop.TravelFromPrev = l.travel
		stop.WeightKg = o.WeightKg
		stop.VolumeM3 = o.VolumeM3
		if err := stop.SetSchedule(l.arrival, l.departure); err != nil {
			return nil, err
		}

		prevCoord = o.Coordinate
		prevDeparture = l.departure
	}

	end, err := addStop(routing.StopKindDepot, p.depot)
	if err != nil {
		return nil, err
	}
	end.DistanceFromPrevKm = c.eval.returnKm
	end.TravelFromPrev = c.eval.returnTime
	if err := end.SetSchedule(c.eval.finish, c.eval.finish); err != nil {
		return nil, err
	}

	route.RecomputeTotals()
	if err := route.Validate(); err != nil {
		return nil, err
	}
	return route, nil
}
