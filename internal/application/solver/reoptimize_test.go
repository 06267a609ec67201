package solver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/event"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// activeRoute builds a route mid-execution: depot start completed, pending
// deliveries in the given coordinate order, depot return pending.
func activeRoute(t *testing.T, coords []shared.Coordinate) (*routing.Route, []*dispatch.Order) {
	t.Helper()
	route, err := routing.NewRoute("route-1", "v-1", "d-1", dayStart)
	require.NoError(t, err)
	route.Status = routing.RouteStatusActive

	start, err := routing.NewStop("stop-depot-0", route.ID, routing.StopKindDepot, 0, testDepot)
	require.NoError(t, err)
	start.Status = routing.StopStatusCompleted
	route.Stops = append(route.Stops, start)

	window := shared.TimeWindow{Start: dayStart, End: dayEnd}
	orders := make([]*dispatch.Order, 0, len(coords))
	for i, c := range coords {
		id := string(rune('a' + i))
		o, err := dispatch.NewOrder("order-"+id, c, window, 10, 0.1, 5*time.Minute, dispatch.PriorityMedium)
		require.NoError(t, err)
		orders = append(orders, o)

		stop, err := routing.NewStop("stop-"+id, route.ID, routing.StopKindDelivery, i+1, c)
		require.NoError(t, err)
		stop.OrderID = o.ID
		route.Stops = append(route.Stops, stop)
	}

	end, err := routing.NewStop("stop-depot-1", route.ID, routing.StopKindDepot, len(coords)+1, testDepot)
	require.NoError(t, err)
	route.Stops = append(route.Stops, end)

	route.CurrentStopIndex = 1
	require.NoError(t, route.Validate())
	return route, orders
}

func TestReoptimizeSegment_ReordersPendingTail(t *testing.T) {
	// Pending order far-near-mid from the depot; serving near first cuts
	// roughly 2 km of backtracking.
	far := shared.Coordinate{Lat: testDepot.Lat + 0.036, Lon: testDepot.Lon}
	near := shared.Coordinate{Lat: testDepot.Lat + 0.009, Lon: testDepot.Lon}
	mid := shared.Coordinate{Lat: testDepot.Lat + 0.018, Lon: testDepot.Lon}
	route, orders := activeRoute(t, []shared.Coordinate{far, near, mid})

	vehicle := testVehicle(t, "v-1", 1000)
	driver := testDriver(t, "d-1")
	now := dayStart.Add(2 * time.Hour)

	result, err := newTestSolver(t).ReoptimizeSegment(context.Background(), routing.SegmentRequest{
		Route:   route,
		Vehicle: vehicle,
		Driver:  driver,
		Orders:  orders,
		Trigger: event.Event{Kind: event.KindTrafficDelay},
		Now:     now,
	})

	require.NoError(t, err)
	require.NotNil(t, result, "a shorter ordering exists")
	assert.InDelta(t, 2.0, result.ImprovementKm, 0.4)

	require.NotEmpty(t, result.NewTail)
	assert.Equal(t, routing.StopKindDepot, result.NewTail[len(result.NewTail)-1].Kind)
	assert.Equal(t, "order-b", result.NewTail[0].OrderID, "nearest pending stop moves first")

	// Sequences stay gapless from the first pending position.
	for i, stop := range result.NewTail {
		assert.Equal(t, 1+i, stop.Sequence)
	}
	// No stop scheduled before now.
	for _, stop := range result.NewTail {
		assert.False(t, stop.PlannedArrival.Before(now))
	}

	require.NoError(t, route.ReplaceTail(result.NewTail))
	require.NoError(t, route.Validate())
	assert.Equal(t, routing.StopStatusCompleted, route.Stops[0].Status, "executed stop untouched")
}

func TestReoptimizeSegment_NoImprovementReturnsNil(t *testing.T) {
	// Already in nearest-first order.
	near := shared.Coordinate{Lat: testDepot.Lat + 0.009, Lon: testDepot.Lon}
	mid := shared.Coordinate{Lat: testDepot.Lat + 0.018, Lon: testDepot.Lon}
	far := shared.Coordinate{Lat: testDepot.Lat + 0.036, Lon: testDepot.Lon}
	route, orders := activeRoute(t, []shared.Coordinate{near, mid, far})

	result, err := newTestSolver(t).ReoptimizeSegment(context.Background(), routing.SegmentRequest{
		Route:   route,
		Vehicle: testVehicle(t, "v-1", 1000),
		Driver:  testDriver(t, "d-1"),
		Orders:  orders,
		Trigger: event.Event{Kind: event.KindTrafficDelay},
		Now:     dayStart.Add(2 * time.Hour),
	})

	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestSegmentCost_HonorsRequestWeights(t *testing.T) {
	vehicle := &dispatch.Vehicle{CostPerKm: 1, CostPerHour: 0}
	eval := &tailEval{
		distanceKm: 100,
		waiting:    50 * time.Minute,
		finish:     dayStart.Add(time.Hour),
	}

	travelOnly := &segmentProblem{
		vehicle: vehicle,
		now:     dayStart,
		weights: routing.ObjectiveWeights{Alpha: 1}.Normalized(),
	}
	waitOnly := &segmentProblem{
		vehicle: vehicle,
		now:     dayStart,
		weights: routing.ObjectiveWeights{Beta: 1}.Normalized(),
	}

	assert.InDelta(t, 0.1, travelOnly.cost(eval), 1e-9)
	assert.InDelta(t, 0.5, waitOnly.cost(eval), 1e-9)
}

func TestReoptimizeSegment_SingleStopIsNoop(t *testing.T) {
	near := shared.Coordinate{Lat: testDepot.Lat + 0.009, Lon: testDepot.Lon}
	route, orders := activeRoute(t, []shared.Coordinate{near})

	result, err := newTestSolver(t).ReoptimizeSegment(context.Background(), routing.SegmentRequest{
		Route:   route,
		Vehicle: testVehicle(t, "v-1", 1000),
		Driver:  testDriver(t, "d-1"),
		Orders:  orders,
		Now:     dayStart,
	})

	require.NoError(t, err)
	assert.Nil(t, result)
}
