package solver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfleet/lastmile/internal/adapters/geodata"
	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

var (
	testDepot = shared.Coordinate{Lat: 52.5200, Lon: 13.4050}
	dayStart  = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	dayEnd    = time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC)
)

func newTestSolver(t *testing.T) *Solver {
	t.Helper()
	source := geodata.NewMatrixCache(geodata.NewHaversineProvider(40), time.Hour)
	return New(source, nil)
}

func testOrder(t *testing.T, id string, lat, lon, weightKg float64, window shared.TimeWindow) *dispatch.Order {
	t.Helper()
	o, err := dispatch.NewOrder(id, shared.Coordinate{Lat: lat, Lon: lon}, window, weightKg, 0.1, 5*time.Minute, dispatch.PriorityMedium)
	require.NoError(t, err)
	return o
}

func testVehicle(t *testing.T, id string, maxWeightKg float64) *dispatch.Vehicle {
	t.Helper()
	v, err := dispatch.NewVehicle(id, dispatch.VehicleKindDriving, maxWeightKg, 10, testDepot)
	require.NoError(t, err)
	return v
}

func testDriver(t *testing.T, id string) *dispatch.Driver {
	t.Helper()
	d, err := dispatch.NewDriver(id, "Driver "+id, dispatch.ExperienceIntermediate, 50)
	require.NoError(t, err)
	return d
}

func wideWindow() shared.TimeWindow {
	return shared.TimeWindow{Start: dayStart, End: dayEnd}
}

func baseRequest(orders []*dispatch.Order, vehicles []*dispatch.Vehicle, drivers []*dispatch.Driver) routing.SolveRequest {
	return routing.SolveRequest{
		Orders:      orders,
		Vehicles:    vehicles,
		Drivers:     drivers,
		Depot:       testDepot,
		PlannedDate: dayStart,
		DepotWindow: wideWindow(),
		TimeLimit:   2 * time.Second,
	}
}

func TestSolve_BasicClosedTour(t *testing.T) {
	orders := []*dispatch.Order{
		testOrder(t, "o-1", 52.530, 13.410, 10, wideWindow()),
		testOrder(t, "o-2", 52.515, 13.390, 10, wideWindow()),
		testOrder(t, "o-3", 52.540, 13.420, 10, wideWindow()),
		testOrder(t, "o-4", 52.510, 13.430, 10, wideWindow()),
	}
	req := baseRequest(orders, []*dispatch.Vehicle{testVehicle(t, "v-1", 1000)}, []*dispatch.Driver{testDriver(t, "d-1")})

	sol, err := newTestSolver(t).Solve(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, sol.Routes, 1)
	route := sol.Routes[0]
	require.NoError(t, route.Validate())

	assert.Equal(t, routing.StopKindDepot, route.Stops[0].Kind)
	assert.Equal(t, routing.StopKindDepot, route.Stops[len(route.Stops)-1].Kind)
	assert.Equal(t, 4, route.StopCount())
	assert.Equal(t, 4, sol.Stats.OrdersAssigned)
	assert.Zero(t, sol.Stats.OrdersUnassigned)
	assert.Greater(t, sol.TotalDistanceKm, 0.0)
	assert.Greater(t, sol.ObjectiveValue, 0.0)

	for i, stop := range route.Stops {
		assert.Equal(t, i, stop.Sequence)
	}
	for _, o := range orders {
		assert.Equal(t, dispatch.OrderStatusAssigned, o.Status)
		assert.Equal(t, "d-1", o.DriverID)
	}
}

func TestSolve_ArrivalsWithinTimeWindows(t *testing.T) {
	morning := shared.TimeWindow{Start: dayStart, End: dayStart.Add(2 * time.Hour)}
	afternoon := shared.TimeWindow{Start: dayStart.Add(5 * time.Hour), End: dayEnd}
	orders := []*dispatch.Order{
		testOrder(t, "o-am", 52.530, 13.410, 10, morning),
		testOrder(t, "o-pm", 52.531, 13.411, 10, afternoon),
	}
	req := baseRequest(orders, []*dispatch.Vehicle{testVehicle(t, "v-1", 1000)}, []*dispatch.Driver{testDriver(t, "d-1")})

	sol, err := newTestSolver(t).Solve(context.Background(), req)

	require.NoError(t, err)
	byOrder := map[string]*routing.Stop{}
	for _, stop := range sol.Routes[0].DeliveryStops() {
		byOrder[stop.OrderID] = stop
	}
	for _, o := range orders {
		stop := byOrder[o.ID]
		require.NotNil(t, stop, "order %s must be scheduled", o.ID)
		assert.False(t, stop.PlannedArrival.After(o.TimeWindow.End), "order %s served after window end", o.ID)
		// Service may not begin before the window opens.
		serviceStart := stop.PlannedDeparture.Add(-o.ServiceDuration)
		assert.False(t, serviceStart.Before(o.TimeWindow.Start), "order %s served before window start", o.ID)
	}
}

func TestSolve_DeterministicAcrossInputOrder(t *testing.T) {
	build := func(shuffled bool) (*routing.Solution, error) {
		orders := []*dispatch.Order{
			testOrder(t, "o-1", 52.530, 13.410, 10, wideWindow()),
			testOrder(t, "o-2", 52.515, 13.390, 10, wideWindow()),
			testOrder(t, "o-3", 52.540, 13.420, 10, wideWindow()),
			testOrder(t, "o-4", 52.510, 13.430, 10, wideWindow()),
			testOrder(t, "o-5", 52.525, 13.445, 10, wideWindow()),
		}
		vehicles := []*dispatch.Vehicle{testVehicle(t, "v-1", 1000), testVehicle(t, "v-2", 1000)}
		drivers := []*dispatch.Driver{testDriver(t, "d-1"), testDriver(t, "d-2")}
		if shuffled {
			orders = []*dispatch.Order{orders[3], orders[0], orders[4], orders[2], orders[1]}
			vehicles = []*dispatch.Vehicle{vehicles[1], vehicles[0]}
			drivers = []*dispatch.Driver{drivers[1], drivers[0]}
		}
		return newTestSolver(t).Solve(context.Background(), baseRequest(orders, vehicles, drivers))
	}

	first, err := build(false)
	require.NoError(t, err)
	second, err := build(true)
	require.NoError(t, err)

	require.Equal(t, len(first.Routes), len(second.Routes))
	for i := range first.Routes {
		assert.Equal(t, first.Routes[i].VehicleID, second.Routes[i].VehicleID)
		assert.Equal(t, deliverySequence(first.Routes[i]), deliverySequence(second.Routes[i]))
	}
	assert.InDelta(t, first.ObjectiveValue, second.ObjectiveValue, 1e-9)
}

func deliverySequence(r *routing.Route) []string {
	var ids []string
	for _, stop := range r.DeliveryStops() {
		ids = append(ids, stop.OrderID)
	}
	return ids
}

func TestSolve_AdaptationRoundRaisesObjective(t *testing.T) {
	build := func(round int) *routing.Solution {
		orders := []*dispatch.Order{
			testOrder(t, "o-1", 52.530, 13.410, 10, wideWindow()),
			testOrder(t, "o-2", 52.515, 13.390, 10, wideWindow()),
		}
		req := baseRequest(orders, []*dispatch.Vehicle{testVehicle(t, "v-1", 1000)}, []*dispatch.Driver{testDriver(t, "d-1")})
		req.Adaptations = round
		sol, err := newTestSolver(t).Solve(context.Background(), req)
		require.NoError(t, err)
		require.Len(t, sol.Routes, 1)
		return sol
	}

	fresh := build(0)
	resolved := build(3)

	// Same tour; each re-solve round adds the weighted adaptation penalty
	// per route on top of the travel and waiting terms.
	assert.Equal(t, deliverySequence(fresh.Routes[0]), deliverySequence(resolved.Routes[0]))
	gamma := routing.ObjectiveWeights{}.Normalized().Gamma
	assert.InDelta(t, fresh.ObjectiveValue+gamma*3/10, resolved.ObjectiveValue, 1e-9)
}

func TestSolve_FleetCapacityPrecheck(t *testing.T) {
	// Aggregate demand over the whole fleet fails fast.
	orders := []*dispatch.Order{testOrder(t, "o-heavy", 52.530, 13.410, 500, wideWindow())}
	req := baseRequest(orders, []*dispatch.Vehicle{testVehicle(t, "v-small", 100)}, []*dispatch.Driver{testDriver(t, "d-1")})

	_, err := newTestSolver(t).Solve(context.Background(), req)

	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindCapacityViolation))
}

func TestSolve_CapacityInfeasiblePerVehicle(t *testing.T) {
	// Fleet total suffices but no single vehicle can take the order.
	orders := []*dispatch.Order{testOrder(t, "o-heavy", 52.530, 13.410, 150, wideWindow())}
	vehicles := []*dispatch.Vehicle{testVehicle(t, "v-1", 100), testVehicle(t, "v-2", 100)}
	drivers := []*dispatch.Driver{testDriver(t, "d-1"), testDriver(t, "d-2")}

	_, err := newTestSolver(t).Solve(context.Background(), baseRequest(orders, vehicles, drivers))

	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindNoFeasibleSolution))
	var nfs *routing.NoFeasibleSolutionError
	require.True(t, errors.As(err, &nfs))
	require.Len(t, nfs.Diagnostics, 1)
	assert.Equal(t, "o-heavy", nfs.Diagnostics[0].OrderID)
	assert.Equal(t, routing.ConstraintCapacity, nfs.Diagnostics[0].Constraint)
}

func TestSolve_UnreachableTimeWindow(t *testing.T) {
	// Roughly 110 km north of the depot: unreachable within a 1-minute window.
	tight := shared.TimeWindow{Start: dayStart, End: dayStart.Add(time.Minute)}
	orders := []*dispatch.Order{testOrder(t, "o-far", 53.52, 13.405, 10, tight)}
	req := baseRequest(orders, []*dispatch.Vehicle{testVehicle(t, "v-1", 1000)}, []*dispatch.Driver{testDriver(t, "d-1")})

	_, err := newTestSolver(t).Solve(context.Background(), req)

	require.Error(t, err)
	var nfs *routing.NoFeasibleSolutionError
	require.True(t, errors.As(err, &nfs))
	require.Len(t, nfs.Diagnostics, 1)
	assert.Equal(t, routing.ConstraintTimeWindow, nfs.Diagnostics[0].Constraint)
}

func TestSolve_DriverFlagsInfeasible(t *testing.T) {
	fragile := testOrder(t, "o-fragile", 52.530, 13.410, 10, wideWindow())
	fragile.Fragile = true
	driver := testDriver(t, "d-1")
	driver.CanHandleFragile = false
	req := baseRequest([]*dispatch.Order{fragile}, []*dispatch.Vehicle{testVehicle(t, "v-1", 1000)}, []*dispatch.Driver{driver})

	_, err := newTestSolver(t).Solve(context.Background(), req)

	require.Error(t, err)
	var nfs *routing.NoFeasibleSolutionError
	require.True(t, errors.As(err, &nfs))
	require.Len(t, nfs.Diagnostics, 1)
	assert.Equal(t, routing.ConstraintDriverFlags, nfs.Diagnostics[0].Constraint)
}

func TestSolve_SplitsDemandAcrossVehicles(t *testing.T) {
	orders := []*dispatch.Order{
		testOrder(t, "o-1", 52.530, 13.410, 60, wideWindow()),
		testOrder(t, "o-2", 52.515, 13.390, 60, wideWindow()),
		testOrder(t, "o-3", 52.540, 13.420, 60, wideWindow()),
	}
	vehicles := []*dispatch.Vehicle{testVehicle(t, "v-1", 130), testVehicle(t, "v-2", 130)}
	drivers := []*dispatch.Driver{testDriver(t, "d-1"), testDriver(t, "d-2")}

	sol, err := newTestSolver(t).Solve(context.Background(), baseRequest(orders, vehicles, drivers))

	require.NoError(t, err)
	require.Len(t, sol.Routes, 2)
	for _, r := range sol.Routes {
		assert.LessOrEqual(t, r.TotalWeightKg, 130.0)
	}
	assert.Equal(t, 3, sol.Stats.OrdersAssigned)
	assert.Equal(t, 2, sol.Stats.VehiclesUsed)
}

func TestSolve_RejectsInvalidInput(t *testing.T) {
	s := newTestSolver(t)

	_, err := s.Solve(context.Background(), routing.SolveRequest{})
	assert.True(t, shared.IsKind(err, shared.KindInvalidInput))

	// Window entirely outside the planning day.
	outside := shared.TimeWindow{Start: dayEnd.Add(time.Hour), End: dayEnd.Add(2 * time.Hour)}
	req := baseRequest(
		[]*dispatch.Order{testOrder(t, "o-1", 52.53, 13.41, 10, outside)},
		[]*dispatch.Vehicle{testVehicle(t, "v-1", 1000)},
		[]*dispatch.Driver{testDriver(t, "d-1")})
	_, err = s.Solve(context.Background(), req)
	assert.True(t, shared.IsKind(err, shared.KindTimeWindowViolation))
}

func TestSolve_TimeLimitReturnsConstructionSolution(t *testing.T) {
	orders := []*dispatch.Order{
		testOrder(t, "o-1", 52.530, 13.410, 10, wideWindow()),
		testOrder(t, "o-2", 52.515, 13.390, 10, wideWindow()),
		testOrder(t, "o-3", 52.540, 13.420, 10, wideWindow()),
	}
	req := baseRequest(orders, []*dispatch.Vehicle{testVehicle(t, "v-1", 1000)}, []*dispatch.Driver{testDriver(t, "d-1")})
	req.TimeLimit = time.Nanosecond

	sol, err := newTestSolver(t).Solve(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, sol.Stats.TimedOut)
	assert.Equal(t, 3, sol.Stats.OrdersAssigned)
}

func TestSolve_DegradedMatrixFlagged(t *testing.T) {
	orders := []*dispatch.Order{testOrder(t, "o-1", 52.530, 13.410, 10, wideWindow())}
	req := baseRequest(orders, []*dispatch.Vehicle{testVehicle(t, "v-1", 1000)}, []*dispatch.Driver{testDriver(t, "d-1")})

	sol, err := newTestSolver(t).Solve(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, sol.Stats.MatrixDegraded, "Haversine-backed matrices are degraded")
}
