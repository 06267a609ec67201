package planning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfleet/lastmile/internal/application/eta"
	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/event"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

var etaNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

type stubRouteRepo struct{ route *routing.Route }

func (s stubRouteRepo) FindByID(_ context.Context, id string) (*routing.Route, error) {
	if s.route != nil && s.route.ID == id {
		return s.route, nil
	}
	return nil, shared.NewNotFoundError("route", id)
}
func (s stubRouteRepo) List(context.Context, routing.RouteQuery) ([]*routing.Route, error) {
	return nil, nil
}
func (s stubRouteRepo) ListActive(context.Context) ([]*routing.Route, error) { return nil, nil }
func (s stubRouteRepo) SaveSolution(context.Context, []*routing.Route) error { return nil }
func (s stubRouteRepo) CommitReoptimization(context.Context, *routing.Route, event.Event) error {
	return nil
}
func (s stubRouteRepo) UpdateStatus(context.Context, string, routing.RouteStatus, *int) error {
	return nil
}
func (s stubRouteRepo) Delete(context.Context, string) error { return nil }

type stubVehicleRepo struct{}

func (stubVehicleRepo) FindByID(_ context.Context, id string) (*dispatch.Vehicle, error) {
	return nil, shared.NewNotFoundError("vehicle", id)
}
func (stubVehicleRepo) FindByIDs(context.Context, []string) ([]*dispatch.Vehicle, error) {
	return nil, nil
}
func (stubVehicleRepo) ListByStatus(context.Context, dispatch.VehicleStatus) ([]*dispatch.Vehicle, error) {
	return nil, nil
}
func (stubVehicleRepo) Save(context.Context, *dispatch.Vehicle) error { return nil }
func (stubVehicleRepo) UpdateStatus(context.Context, string, dispatch.VehicleStatus) error {
	return nil
}

type stubDriverRepo struct{}

func (stubDriverRepo) FindByID(_ context.Context, id string) (*dispatch.Driver, error) {
	return nil, shared.NewNotFoundError("driver", id)
}
func (stubDriverRepo) FindByIDs(context.Context, []string) ([]*dispatch.Driver, error) {
	return nil, nil
}
func (stubDriverRepo) ListByStatus(context.Context, dispatch.DriverStatus) ([]*dispatch.Driver, error) {
	return nil, nil
}
func (stubDriverRepo) Save(context.Context, *dispatch.Driver) error { return nil }
func (stubDriverRepo) UpdateStatus(context.Context, string, dispatch.DriverStatus) error {
	return nil
}

// fixedPredictor returns the same whole-stop estimate for every leg.
type fixedPredictor struct {
	minutes float64
	service float64
}

func (p fixedPredictor) Predict(_ context.Context, in eta.Input) eta.Prediction {
	return eta.Prediction{
		ETA:            in.DepartAt.Add(time.Duration(p.minutes * float64(time.Minute))),
		Minutes:        p.minutes,
		ServiceMinutes: p.service,
		Confidence:     0.8,
		Method:         eta.MethodHeuristic,
	}
}

// etaRoute builds a route mid-execution with two pending deliveries and the
// closing depot ahead.
func etaRoute(t *testing.T) *routing.Route {
	t.Helper()
	route, err := routing.NewRoute("route-1", "veh-1", "drv-1", etaNow)
	require.NoError(t, err)
	route.Status = routing.RouteStatusActive
	route.CurrentStopIndex = 1

	depot := shared.Coordinate{Lat: 52.5200, Lon: 13.4050}
	coords := []shared.Coordinate{depot, {Lat: 52.5290, Lon: 13.4050}, {Lat: 52.5380, Lon: 13.4050}, depot}
	kinds := []routing.StopKind{
		routing.StopKindDepot, routing.StopKindDelivery, routing.StopKindDelivery, routing.StopKindDepot,
	}
	orderIDs := []string{"", "order-1", "order-2", ""}
	for i := range coords {
		stop, err := routing.NewStop("stop-"+string(rune('a'+i)), route.ID, kinds[i], i, coords[i])
		require.NoError(t, err)
		stop.OrderID = orderIDs[i]
		stop.Status = routing.StopStatusPending
		if i == 0 {
			stop.Status = routing.StopStatusCompleted
		}
		stop.DistanceFromPrevKm = 1.0
		arrival := etaNow.Add(time.Duration(i) * 30 * time.Minute)
		require.NoError(t, stop.SetSchedule(arrival, arrival.Add(10*time.Minute)))
		route.Stops = append(route.Stops, stop)
	}
	require.NoError(t, route.Validate())
	return route
}

func TestRouteETA_ServiceTimeCountedOnce(t *testing.T) {
	route := etaRoute(t)
	clock := shared.NewMockClock(etaNow)
	// Every leg: 20 minutes end to end, of which 5 are on-site service.
	svc := NewETAService(stubRouteRepo{route: route}, stubVehicleRepo{}, stubDriverRepo{}, fixedPredictor{minutes: 20, service: 5}, nil, clock)

	predictions, err := svc.RouteETA(context.Background(), "route-1", nil)
	require.NoError(t, err)
	require.Len(t, predictions, 3)

	// Arrival excludes the stop's own service; the cursor then advances by
	// the predictor's service estimate, never the planned one on top of it.
	assert.Equal(t, etaNow.Add(15*time.Minute), predictions[0].PredictedArrival)
	assert.Equal(t, etaNow.Add(35*time.Minute), predictions[1].PredictedArrival)
	assert.Equal(t, etaNow.Add(55*time.Minute), predictions[2].PredictedArrival)
}

func TestRouteETA_SingleStopFilter(t *testing.T) {
	route := etaRoute(t)
	clock := shared.NewMockClock(etaNow)
	svc := NewETAService(stubRouteRepo{route: route}, stubVehicleRepo{}, stubDriverRepo{}, fixedPredictor{minutes: 20, service: 5}, nil, clock)

	seq := 2
	predictions, err := svc.RouteETA(context.Background(), "route-1", &seq)
	require.NoError(t, err)
	require.Len(t, predictions, 1)
	assert.Equal(t, "stop-c", predictions[0].StopID)
	assert.Equal(t, etaNow.Add(35*time.Minute), predictions[0].PredictedArrival)
}
