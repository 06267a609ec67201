package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfleet/lastmile/internal/adapters/persistence"
	"github.com/openfleet/lastmile/internal/domain/event"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
	"github.com/openfleet/lastmile/test/helpers"
)

var plannedDate = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func sampleRoute(t *testing.T, id string) *routing.Route {
	t.Helper()
	route, err := routing.NewRoute(id, "veh-1", "drv-1", plannedDate)
	require.NoError(t, err)
	route.Status = routing.RouteStatusActive
	route.TotalDistanceKm = 12.5
	route.TotalDuration = 90 * time.Minute

	coords := []shared.Coordinate{
		{Lat: 52.5200, Lon: 13.4050},
		{Lat: 52.5300, Lon: 13.4100},
		{Lat: 52.5400, Lon: 13.4200},
		{Lat: 52.5200, Lon: 13.4050},
	}
	kinds := []routing.StopKind{
		routing.StopKindDepot, routing.StopKindDelivery, routing.StopKindDelivery, routing.StopKindDepot,
	}
	orderIDs := []string{"", "order-1", "order-2", ""}

	base := plannedDate.Add(8 * time.Hour)
	for i := range coords {
		stop, err := routing.NewStop(id+"-stop-"+string(rune('a'+i)), id, kinds[i], i, coords[i])
		require.NoError(t, err)
		stop.OrderID = orderIDs[i]
		arrival := base.Add(time.Duration(i) * 30 * time.Minute)
		require.NoError(t, stop.SetSchedule(arrival, arrival.Add(5*time.Minute)))
		route.Stops = append(route.Stops, stop)
	}
	require.NoError(t, route.Validate())
	return route
}

func TestRouteRepository_SaveSolutionAndFind(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewGormRouteRepository(db)

	routes := []*routing.Route{sampleRoute(t, "route-1"), sampleRoute(t, "route-2")}
	require.NoError(t, repo.SaveSolution(context.Background(), routes))

	found, err := repo.FindByID(context.Background(), "route-1")
	require.NoError(t, err)
	assert.Equal(t, "veh-1", found.VehicleID)
	assert.Equal(t, routing.RouteStatusActive, found.Status)
	assert.InDelta(t, 12.5, found.TotalDistanceKm, 1e-9)
	assert.Equal(t, 90*time.Minute, found.TotalDuration)

	require.Len(t, found.Stops, 4)
	for i, stop := range found.Stops {
		assert.Equal(t, i, stop.Sequence)
	}
	assert.Equal(t, "order-1", found.Stops[1].OrderID)
	require.NoError(t, found.Validate())
}

func TestRouteRepository_NotFound(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewGormRouteRepository(db)

	_, err := repo.FindByID(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, shared.KindResourceNotFound, shared.KindOf(err))
}

func TestRouteRepository_ListFilters(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewGormRouteRepository(db)

	active := sampleRoute(t, "route-1")
	done := sampleRoute(t, "route-2")
	done.Status = routing.RouteStatusCompleted
	require.NoError(t, repo.SaveSolution(context.Background(), []*routing.Route{active, done}))

	completed, err := repo.List(context.Background(), routing.RouteQuery{Status: routing.RouteStatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "route-2", completed[0].ID)

	byDate, err := repo.List(context.Background(), routing.RouteQuery{Date: &plannedDate})
	require.NoError(t, err)
	assert.Len(t, byDate, 2)

	activeOnly, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, activeOnly, 1)
	assert.Equal(t, "route-1", activeOnly[0].ID)
}

func TestRouteRepository_CommitReoptimizationRewritesStopsAtomically(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewGormRouteRepository(db)
	events := persistence.NewGormEventRepository(db, nil)

	route := sampleRoute(t, "route-1")
	require.NoError(t, repo.SaveSolution(context.Background(), []*routing.Route{route}))

	// Swap the two deliveries and commit.
	tail := []*routing.Stop{route.Stops[2], route.Stops[1], route.Stops[3]}
	for i, s := range tail {
		s.Sequence = 1 + i
	}
	require.NoError(t, route.ReplaceTail(tail))
	route.MarkReoptimized(plannedDate.Add(10 * time.Hour))

	ev := event.New(event.KindReoptimizationCompleted, event.SeverityLow, plannedDate.Add(10*time.Hour))
	ev.RouteID = route.ID
	ev.Payload["strategy"] = "local"
	require.NoError(t, repo.CommitReoptimization(context.Background(), route, ev))

	found, err := repo.FindByID(context.Background(), "route-1")
	require.NoError(t, err)
	require.Len(t, found.Stops, 4)
	assert.Equal(t, "order-2", found.Stops[1].OrderID)
	assert.Equal(t, "order-1", found.Stops[2].OrderID)
	assert.Equal(t, 1, found.ReoptimizationCount)
	require.NotNil(t, found.LastReoptimizedAt)

	logged, err := events.FindByID(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, event.KindReoptimizationCompleted, logged.Kind)
	assert.Equal(t, "local", logged.Payload["strategy"])
}

func TestRouteRepository_UpdateStatus(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewGormRouteRepository(db)

	route := sampleRoute(t, "route-1")
	require.NoError(t, repo.SaveSolution(context.Background(), []*routing.Route{route}))

	idx := 2
	require.NoError(t, repo.UpdateStatus(context.Background(), "route-1", routing.RouteStatusDisrupted, &idx))

	found, err := repo.FindByID(context.Background(), "route-1")
	require.NoError(t, err)
	assert.Equal(t, routing.RouteStatusDisrupted, found.Status)
	assert.Equal(t, 2, found.CurrentStopIndex)

	err = repo.UpdateStatus(context.Background(), "missing", routing.RouteStatusActive, nil)
	assert.Equal(t, shared.KindResourceNotFound, shared.KindOf(err))
}

func TestRouteRepository_DeleteRemovesStops(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewGormRouteRepository(db)

	route := sampleRoute(t, "route-1")
	require.NoError(t, repo.SaveSolution(context.Background(), []*routing.Route{route}))
	require.NoError(t, repo.Delete(context.Background(), "route-1"))

	_, err := repo.FindByID(context.Background(), "route-1")
	assert.Equal(t, shared.KindResourceNotFound, shared.KindOf(err))

	var stopCount int64
	require.NoError(t, db.Model(&persistence.StopModel{}).Count(&stopCount).Error)
	assert.Zero(t, stopCount)
}

func TestEventRepository_ListAndResolve(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := persistence.NewGormEventRepository(db, shared.NewMockClock(plannedDate.Add(12*time.Hour)))

	traffic := event.New(event.KindTrafficDelay, event.SeverityHigh, plannedDate.Add(9*time.Hour))
	traffic.RouteID = "route-1"
	traffic.TriggersReoptimization = true
	breakdown := event.New(event.KindVehicleBreakdown, event.SeverityCritical, plannedDate.Add(10*time.Hour))
	breakdown.RouteID = "route-2"

	require.NoError(t, repo.Save(context.Background(), traffic))
	require.NoError(t, repo.Save(context.Background(), breakdown))

	all, err := repo.List(context.Background(), event.ListQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Newest first.
	assert.Equal(t, event.KindVehicleBreakdown, all[0].Kind)

	byRoute, err := repo.List(context.Background(), event.ListQuery{RouteID: "route-1"})
	require.NoError(t, err)
	require.Len(t, byRoute, 1)
	assert.True(t, byRoute[0].TriggersReoptimization)

	require.NoError(t, repo.MarkResolved(context.Background(), traffic.ID))
	activeOnly, err := repo.List(context.Background(), event.ListQuery{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, activeOnly, 1)
	assert.Equal(t, event.KindVehicleBreakdown, activeOnly[0].Kind)

	resolved, err := repo.FindByID(context.Background(), traffic.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
}
