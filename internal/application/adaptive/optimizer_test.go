package adaptive

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfleet/lastmile/internal/application/simulation"
	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/event"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

var (
	adaptiveNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	depotCoord  = shared.Coordinate{Lat: 52.5200, Lon: 13.4050}
)

// --- in-memory fakes -------------------------------------------------------

type memRoutes struct {
	mu        sync.Mutex
	routes    map[string]*routing.Route
	committed []event.Event
	saved     [][]*routing.Route
}

func newMemRoutes(routes ...*routing.Route) *memRoutes {
	m := &memRoutes{routes: map[string]*routing.Route{}}
	for _, r := range routes {
		m.routes[r.ID] = r
	}
	return m
}

func (m *memRoutes) FindByID(_ context.Context, id string) (*routing.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return nil, shared.NewNotFoundError("route", id)
	}
	return r, nil
}

func (m *memRoutes) List(_ context.Context, q routing.RouteQuery) ([]*routing.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*routing.Route
	for _, r := range m.routes {
		if q.Status != "" && r.Status != q.Status {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memRoutes) ListActive(_ context.Context) ([]*routing.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*routing.Route
	for _, r := range m.routes {
		if r.IsActive() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRoutes) SaveSolution(_ context.Context, routes []*routing.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, routes)
	for _, r := range routes {
		m.routes[r.ID] = r
	}
	return nil
}

func (m *memRoutes) CommitReoptimization(_ context.Context, route *routing.Route, ev event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[route.ID] = route
	m.committed = append(m.committed, ev)
	return nil
}

func (m *memRoutes) UpdateStatus(_ context.Context, id string, status routing.RouteStatus, idx *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return shared.NewNotFoundError("route", id)
	}
	r.Status = status
	if idx != nil {
		r.CurrentStopIndex = *idx
	}
	return nil
}

func (m *memRoutes) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.routes, id)
	return nil
}

func (m *memRoutes) commits() []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Event, len(m.committed))
	copy(out, m.committed)
	return out
}

func (m *memRoutes) savedSolutions() [][]*routing.Route {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]*routing.Route, len(m.saved))
	copy(out, m.saved)
	return out
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]*dispatch.Order
	saves  int
}

func newMemOrders(orders ...*dispatch.Order) *memOrders {
	m := &memOrders{orders: map[string]*dispatch.Order{}}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *memOrders) FindByID(_ context.Context, id string) (*dispatch.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, shared.NewNotFoundError("order", id)
	}
	return o, nil
}

func (m *memOrders) FindByIDs(_ context.Context, ids []string) ([]*dispatch.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*dispatch.Order
	for _, id := range ids {
		if o, ok := m.orders[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOrders) ListByStatus(_ context.Context, status dispatch.OrderStatus) ([]*dispatch.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*dispatch.Order
	for _, o := range m.orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOrders) ListUnassignedNear(_ context.Context, coord shared.Coordinate, radiusKm float64) ([]*dispatch.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*dispatch.Order
	for _, o := range m.orders {
		if o.Status == dispatch.OrderStatusPending && o.Coordinate.DistanceKm(coord) <= radiusKm {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOrders) Save(_ context.Context, o *dispatch.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *memOrders) SaveAll(_ context.Context, orders []*dispatch.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	m.saves++
	return nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id string, status dispatch.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		o.Status = status
	}
	return nil
}

func (m *memOrders) UpdateTimeWindow(_ context.Context, id string, window shared.TimeWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		o.TimeWindow = window
	}
	return nil
}

type memVehicles struct {
	mu       sync.Mutex
	vehicles map[string]*dispatch.Vehicle
}

func newMemVehicles(vehicles ...*dispatch.Vehicle) *memVehicles {
	m := &memVehicles{vehicles: map[string]*dispatch.Vehicle{}}
	for _, v := range vehicles {
		m.vehicles[v.ID] = v
	}
	return m
}

func (m *memVehicles) FindByID(_ context.Context, id string) (*dispatch.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return nil, shared.NewNotFoundError("vehicle", id)
	}
	return v, nil
}

func (m *memVehicles) FindByIDs(_ context.Context, ids []string) ([]*dispatch.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*dispatch.Vehicle
	for _, id := range ids {
		if v, ok := m.vehicles[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memVehicles) ListByStatus(_ context.Context, status dispatch.VehicleStatus) ([]*dispatch.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*dispatch.Vehicle
	for _, v := range m.vehicles {
		if v.Status == status {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memVehicles) Save(_ context.Context, v *dispatch.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicles[v.ID] = v
	return nil
}

func (m *memVehicles) UpdateStatus(_ context.Context, id string, status dispatch.VehicleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.vehicles[id]; ok {
		v.Status = status
	}
	return nil
}

type memDrivers struct {
	mu      sync.Mutex
	drivers map[string]*dispatch.Driver
}

func newMemDrivers(drivers ...*dispatch.Driver) *memDrivers {
	m := &memDrivers{drivers: map[string]*dispatch.Driver{}}
	for _, d := range drivers {
		m.drivers[d.ID] = d
	}
	return m
}

func (m *memDrivers) FindByID(_ context.Context, id string) (*dispatch.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, shared.NewNotFoundError("driver", id)
	}
	return d, nil
}

func (m *memDrivers) FindByIDs(_ context.Context, ids []string) ([]*dispatch.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*dispatch.Driver
	for _, id := range ids {
		if d, ok := m.drivers[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDrivers) ListByStatus(_ context.Context, status dispatch.DriverStatus) ([]*dispatch.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*dispatch.Driver
	for _, d := range m.drivers {
		if d.Status == status {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDrivers) Save(_ context.Context, d *dispatch.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = d
	return nil
}

func (m *memDrivers) UpdateStatus(_ context.Context, id string, status dispatch.DriverStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.drivers[id]; ok {
		d.Status = status
	}
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []event.Event
}

func (b *recordingBus) Publish(e event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) Subscribe(event.Filter) event.Subscription { return nil }
func (b *recordingBus) Unsubscribe(event.Subscription)            {}

func (b *recordingBus) byKind(kind event.Kind) []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []event.Event
	for _, e := range b.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fakeSolver struct {
	solve   func(ctx context.Context, req routing.SolveRequest) (*routing.Solution, error)
	segment func(ctx context.Context, req routing.SegmentRequest) (*routing.SegmentResult, error)
}

func (f *fakeSolver) Solve(ctx context.Context, req routing.SolveRequest) (*routing.Solution, error) {
	if f.solve == nil {
		return nil, shared.NewDomainError(shared.KindInternal, "solve not stubbed")
	}
	return f.solve(ctx, req)
}

func (f *fakeSolver) ReoptimizeSegment(ctx context.Context, req routing.SegmentRequest) (*routing.SegmentResult, error) {
	if f.segment == nil {
		return nil, nil
	}
	return f.segment(ctx, req)
}

type countingRecorder struct {
	mu        sync.Mutex
	started   map[Strategy]int
	completed map[string]int
	cooldowns int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{started: map[Strategy]int{}, completed: map[string]int{}}
}

func (r *countingRecorder) ReoptimizationStarted(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started[s]++
}

func (r *countingRecorder) ReoptimizationCompleted(s Strategy, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed[string(s)+"/"+outcome]++
}

func (r *countingRecorder) CooldownSkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cooldowns++
}

type staticConditions struct {
	snap simulation.Conditions
}

func (s staticConditions) Conditions() simulation.Conditions { return s.snap }

// --- fixtures --------------------------------------------------------------

// monitoredRoute builds an active route mid-execution: depot and one
// delivery completed, the current delivery pending, one more delivery and
// the closing depot still ahead.
func monitoredRoute(t *testing.T) *routing.Route {
	t.Helper()
	route, err := routing.NewRoute("route-1", "veh-1", "drv-1", adaptiveNow)
	require.NoError(t, err)
	route.Status = routing.RouteStatusActive
	route.CurrentStopIndex = 2

	coords := []shared.Coordinate{
		depotCoord,
		{Lat: 52.5290, Lon: 13.4050},
		{Lat: 52.5380, Lon: 13.4050},
		{Lat: 52.5470, Lon: 13.4050},
		depotCoord,
	}
	kinds := []routing.StopKind{
		routing.StopKindDepot, routing.StopKindDelivery, routing.StopKindDelivery,
		routing.StopKindDelivery, routing.StopKindDepot,
	}
	orderIDs := []string{"", "order-1", "order-2", "order-3", ""}
	statuses := []routing.StopStatus{
		routing.StopStatusCompleted, routing.StopStatusCompleted, routing.StopStatusPending,
		routing.StopStatusPending, routing.StopStatusPending,
	}

	// Stops are on schedule by default: the current stop is due right now and
	// the rest lie ahead. Tests that need lateness override the schedule.
	base := adaptiveNow.Add(-time.Hour)
	for i := range coords {
		stop, err := routing.NewStop("stop-"+string(rune('a'+i)), route.ID, kinds[i], i, coords[i])
		require.NoError(t, err)
		stop.OrderID = orderIDs[i]
		stop.Status = statuses[i]
		arrival := base.Add(time.Duration(i) * 30 * time.Minute)
		require.NoError(t, stop.SetSchedule(arrival, arrival.Add(5*time.Minute)))
		route.Stops = append(route.Stops, stop)
	}
	require.NoError(t, route.Validate())
	return route
}

// satelliteRoute builds a minimal active route with one pending delivery,
// for tests that need several routes in flight at once.
func satelliteRoute(t *testing.T, id, vehicleID, driverID, orderID string, lat float64, date time.Time) *routing.Route {
	t.Helper()
	route, err := routing.NewRoute(id, vehicleID, driverID, date)
	require.NoError(t, err)
	route.Status = routing.RouteStatusActive
	route.CurrentStopIndex = 1

	coords := []shared.Coordinate{depotCoord, {Lat: lat, Lon: 13.4050}, depotCoord}
	kinds := []routing.StopKind{routing.StopKindDepot, routing.StopKindDelivery, routing.StopKindDepot}
	for i := range coords {
		stop, err := routing.NewStop(id+"-s"+string(rune('0'+i)), route.ID, kinds[i], i, coords[i])
		require.NoError(t, err)
		if kinds[i] == routing.StopKindDelivery {
			stop.OrderID = orderID
		}
		stop.Status = routing.StopStatusPending
		if i == 0 {
			stop.Status = routing.StopStatusCompleted
		}
		arrival := adaptiveNow.Add(time.Duration(i) * 20 * time.Minute)
		require.NoError(t, stop.SetSchedule(arrival, arrival.Add(5*time.Minute)))
		route.Stops = append(route.Stops, stop)
	}
	require.NoError(t, route.Validate())
	return route
}

func pendingOrder(id string, coord shared.Coordinate) *dispatch.Order {
	return &dispatch.Order{
		ID:              id,
		Coordinate:      coord,
		TimeWindow:      shared.TimeWindow{Start: adaptiveNow.Add(-4 * time.Hour), End: adaptiveNow.Add(6 * time.Hour)},
		WeightKg:        10,
		ServiceDuration: 5 * time.Minute,
		Priority:        dispatch.PriorityMedium,
		Status:          dispatch.OrderStatusAssigned,
	}
}

func fleetVehicle(id string, status dispatch.VehicleStatus) *dispatch.Vehicle {
	return &dispatch.Vehicle{
		ID:          id,
		Kind:        dispatch.VehicleKindDriving,
		MaxWeightKg: 500,
		MaxVolumeM3: 5,
		Depot:       depotCoord,
		CostPerKm:   1,
		CostPerHour: 10,
		MaxWorking:  8 * time.Hour,
		Status:      status,
	}
}

func fleetDriver(id string, status dispatch.DriverStatus) *dispatch.Driver {
	return &dispatch.Driver{
		ID:               id,
		Name:             id,
		Experience:       dispatch.ExperienceIntermediate,
		MaxStopsPerRoute: 20,
		ShiftStart:       time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC),
		ShiftEnd:         time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC),
		Status:           status,
		MaxWorking:       8 * time.Hour,
	}
}

type world struct {
	opt      *Optimizer
	routes   *memRoutes
	orders   *memOrders
	vehicles *memVehicles
	drivers  *memDrivers
	bus      *recordingBus
	recorder *countingRecorder
	clock    *shared.MockClock
	solver   *fakeSolver
}

func newWorld(t *testing.T, route *routing.Route, conditions ConditionSource) *world {
	t.Helper()
	w := &world{
		routes: newMemRoutes(route),
		orders: newMemOrders(
			pendingOrder("order-2", route.Stops[2].Coordinate),
			pendingOrder("order-3", route.Stops[3].Coordinate),
		),
		vehicles: newMemVehicles(
			fleetVehicle("veh-1", dispatch.VehicleStatusInUse),
			fleetVehicle("veh-2", dispatch.VehicleStatusAvailable),
		),
		drivers: newMemDrivers(
			fleetDriver("drv-1", dispatch.DriverStatusOnRoute),
			fleetDriver("drv-2", dispatch.DriverStatusAvailable),
		),
		bus:      &recordingBus{},
		recorder: newCountingRecorder(),
		clock:    shared.NewMockClock(adaptiveNow),
		solver:   &fakeSolver{},
	}
	w.opt = New(Config{}, Deps{
		Routes:     w.routes,
		Orders:     w.orders,
		Vehicles:   w.vehicles,
		Drivers:    w.drivers,
		Solver:     w.solver,
		Bus:        w.bus,
		Conditions: conditions,
		Clock:      w.clock,
		Recorder:   w.recorder,
	})
	return w
}

// --- tests -----------------------------------------------------------------

func TestOptimizer_DelayTriggersLocalReoptimization(t *testing.T) {
	route := monitoredRoute(t)
	// Current stop was due 30 minutes ago: past the threshold, under the
	// immediate cutoff.
	require.NoError(t, route.Stops[2].SetSchedule(adaptiveNow.Add(-30*time.Minute), adaptiveNow.Add(-25*time.Minute)))
	w := newWorld(t, route, nil)

	headBefore := []*routing.Stop{route.Stops[0], route.Stops[1]}

	w.solver.segment = func(_ context.Context, req routing.SegmentRequest) (*routing.SegmentResult, error) {
		require.Equal(t, "route-1", req.Route.ID)
		require.Len(t, req.Orders, 2)
		require.Equal(t, routing.ObjectiveWeights{Alpha: 0.6, Beta: 0.3, Gamma: 0.1}, req.Weights)
		remaining := req.Route.RemainingStops()
		// Swap the two pending deliveries, keep the closing depot last.
		tail := []*routing.Stop{remaining[1], remaining[0], remaining[2]}
		for i, s := range tail {
			s.Sequence = 2 + i
		}
		return &routing.SegmentResult{NewTail: tail, ImprovementKm: 1.2}, nil
	}

	w.opt.monitorPass(context.Background())
	w.opt.wg.Wait()

	assert.Equal(t, 1, w.recorder.started[StrategyLocal])
	assert.Equal(t, 1, w.recorder.completed["local/"+OutcomeCommitted])

	got, err := w.routes.FindByID(context.Background(), "route-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReoptimizationCount)
	assert.Equal(t, 1, got.AdaptationCount)
	assert.Equal(t, "order-3", got.Stops[2].OrderID)
	assert.Equal(t, "order-2", got.Stops[3].OrderID)

	// Executed stops are untouched.
	assert.Same(t, headBefore[0], got.Stops[0])
	assert.Same(t, headBefore[1], got.Stops[1])
	assert.Equal(t, routing.StopStatusCompleted, got.Stops[0].Status)
	assert.Equal(t, routing.StopStatusCompleted, got.Stops[1].Status)

	require.Len(t, w.bus.byKind(event.KindReoptimizationTriggered), 1)
	completed := w.bus.byKind(event.KindReoptimizationCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, string(StrategyLocal), completed[0].Payload["strategy"])
	require.Len(t, w.routes.commits(), 1)
}

func TestOptimizer_RescheduleResolvesRouteThroughOrder(t *testing.T) {
	route := monitoredRoute(t)
	w := newWorld(t, route, nil)

	// A reschedule from the API names only the order; the route must be
	// found through the stop the order is assigned to.
	ord, err := w.orders.FindByID(context.Background(), "order-2")
	require.NoError(t, err)
	require.NoError(t, ord.Assign("stop-c", "drv-1"))

	var segmentRoute string
	w.solver.segment = func(_ context.Context, req routing.SegmentRequest) (*routing.SegmentResult, error) {
		segmentRoute = req.Route.ID
		return nil, nil
	}

	ev := event.New(event.KindCustomerReschedule, event.SeverityMedium, adaptiveNow)
	ev.OrderID = "order-2"
	ev.TriggersReoptimization = true
	w.opt.handleEvent(context.Background(), ev)
	w.opt.wg.Wait()

	assert.Equal(t, "route-1", segmentRoute)
	assert.Equal(t, 1, w.recorder.started[StrategyLocal])
	assert.Equal(t, 1, w.recorder.completed["local/"+OutcomeNoImprovement])
	require.Len(t, w.bus.byKind(event.KindReoptimizationTriggered), 1)
}

func TestOptimizer_CooldownSuppressesNonImmediate(t *testing.T) {
	route := monitoredRoute(t)
	recent := adaptiveNow.Add(-10 * time.Minute)
	route.LastReoptimizedAt = &recent

	conditions := staticConditions{snap: simulation.Conditions{
		TrafficFactors: map[string]float64{"route-1": 1.8},
		WeatherFactor:  1.0,
	}}
	w := newWorld(t, route, conditions)

	w.opt.monitorPass(context.Background())
	w.opt.wg.Wait()

	assert.Equal(t, 1, w.recorder.cooldowns)
	assert.Empty(t, w.recorder.started)
	assert.Empty(t, w.bus.byKind(event.KindReoptimizationTriggered))
}

func TestOptimizer_BreakdownBypassesCooldownAndRunsEmergency(t *testing.T) {
	route := monitoredRoute(t)
	recent := adaptiveNow.Add(-10 * time.Minute)
	route.LastReoptimizedAt = &recent
	w := newWorld(t, route, nil)

	var solveReq routing.SolveRequest
	w.solver.solve = func(_ context.Context, req routing.SolveRequest) (*routing.Solution, error) {
		solveReq = req
		replacement, err := routing.NewRoute("route-2", "veh-2", "drv-2", route.PlannedDate)
		require.NoError(t, err)
		return &routing.Solution{
			Routes: []*routing.Route{replacement},
			Stats:  routing.SolverStats{OrdersAssigned: len(req.Orders), VehiclesUsed: 1},
		}, nil
	}

	ev := event.New(event.KindVehicleBreakdown, event.SeverityCritical, adaptiveNow)
	ev.RouteID = "route-1"
	ev.VehicleID = "veh-1"
	ev.TriggersReoptimization = true
	w.opt.handleEvent(context.Background(), ev)
	w.opt.wg.Wait()

	assert.Equal(t, 1, w.recorder.started[StrategyEmergency])
	assert.Equal(t, 1, w.recorder.completed["emergency/"+OutcomeCommitted])
	assert.Zero(t, w.recorder.cooldowns)

	got, err := w.routes.FindByID(context.Background(), "route-1")
	require.NoError(t, err)
	assert.Equal(t, routing.RouteStatusDisrupted, got.Status)
	assert.Equal(t, routing.StopStatusSkipped, got.Stops[2].Status)
	assert.Equal(t, routing.StopStatusSkipped, got.Stops[3].Status)

	// The replacement solve got the detached orders and the spare pair only.
	require.Len(t, solveReq.Orders, 2)
	require.Len(t, solveReq.Vehicles, 1)
	assert.Equal(t, "veh-2", solveReq.Vehicles[0].ID)
	require.Len(t, solveReq.Drivers, 1)
	assert.Equal(t, "drv-2", solveReq.Drivers[0].ID)
	assert.Equal(t, adaptiveNow, solveReq.DepotWindow.Start)

	require.Len(t, w.routes.savedSolutions(), 1)
	completed := w.bus.byKind(event.KindReoptimizationCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, string(StrategyEmergency), completed[0].Payload["strategy"])
}

func TestOptimizer_EmergencyEscalatesWithoutSpareVehicle(t *testing.T) {
	route := monitoredRoute(t)
	w := newWorld(t, route, nil)
	require.NoError(t, w.vehicles.UpdateStatus(context.Background(), "veh-2", dispatch.VehicleStatusMaintenance))

	ev := event.New(event.KindVehicleBreakdown, event.SeverityCritical, adaptiveNow)
	ev.RouteID = "route-1"
	ev.TriggersReoptimization = true
	w.opt.handleEvent(context.Background(), ev)
	w.opt.wg.Wait()

	assert.Equal(t, 1, w.recorder.completed["emergency/"+OutcomeEscalated])
	escalations := w.bus.byKind(event.KindManualIntervention)
	require.Len(t, escalations, 1)
	assert.Equal(t, event.StatusEscalated, escalations[0].Status)
	assert.Equal(t, "route-1", escalations[0].RouteID)
}

func TestOptimizer_GlobalRejectedBelowMargin(t *testing.T) {
	route := monitoredRoute(t)
	route.OptimizationScore = 10.0
	w := newWorld(t, route, nil)

	w.solver.solve = func(_ context.Context, req routing.SolveRequest) (*routing.Solution, error) {
		return &routing.Solution{
			Routes:         []*routing.Route{{ID: "route-2"}},
			ObjectiveValue: 9.95, // above the 1% margin at 9.9
			Stats:          routing.SolverStats{OrdersAssigned: len(req.Orders)},
		}, nil
	}

	outcome := w.opt.runGlobal(context.Background(), route, []Trigger{{Kind: event.KindTrafficDelay, Severity: 0.9}})

	assert.Equal(t, OutcomeRejected, outcome)
	rejected := w.bus.byKind(event.KindReoptimizationRejected)
	require.Len(t, rejected, 1)
	assert.InDelta(t, 10.0, rejected[0].Payload["old_objective"].(float64), 1e-9)

	got, err := w.routes.FindByID(context.Background(), "route-1")
	require.NoError(t, err)
	assert.Equal(t, routing.RouteStatusActive, got.Status)
	assert.Empty(t, w.routes.savedSolutions())
}

func TestOptimizer_GlobalCommitsAboveMargin(t *testing.T) {
	route := monitoredRoute(t)
	route.OptimizationScore = 10.0
	w := newWorld(t, route, nil)

	w.solver.solve = func(_ context.Context, req routing.SolveRequest) (*routing.Solution, error) {
		replacement, err := routing.NewRoute("route-2", "veh-2", "drv-2", route.PlannedDate)
		require.NoError(t, err)
		return &routing.Solution{
			Routes:         []*routing.Route{replacement},
			ObjectiveValue: 8.0,
			Stats:          routing.SolverStats{OrdersAssigned: len(req.Orders)},
		}, nil
	}

	outcome := w.opt.runGlobal(context.Background(), route, []Trigger{{Kind: event.KindTrafficDelay, Severity: 0.9}})

	assert.Equal(t, OutcomeCommitted, outcome)
	got, err := w.routes.FindByID(context.Background(), "route-1")
	require.NoError(t, err)
	assert.Equal(t, routing.RouteStatusCancelled, got.Status)

	saved := w.routes.savedSolutions()
	require.Len(t, saved, 1)
	require.Len(t, saved[0], 1)
	assert.Equal(t, 1, saved[0][0].AdaptationCount)

	completed := w.bus.byKind(event.KindReoptimizationCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, string(StrategyGlobal), completed[0].Payload["strategy"])
}

func TestOptimizer_GlobalScopesToNearestNeighbors(t *testing.T) {
	origin := monitoredRoute(t)
	origin.OptimizationScore = 10.0
	w := newWorld(t, origin, nil)

	near1 := satelliteRoute(t, "route-2", "veh-3", "drv-3", "order-n1", 52.548, adaptiveNow)
	near2 := satelliteRoute(t, "route-3", "veh-4", "drv-4", "order-n2", 52.556, adaptiveNow)
	far := satelliteRoute(t, "route-4", "veh-5", "drv-5", "order-far", 53.500, adaptiveNow)
	tomorrow := satelliteRoute(t, "route-5", "veh-6", "drv-6", "order-tmw", 52.530, adaptiveNow.Add(24*time.Hour))
	for _, r := range []*routing.Route{near1, near2, far, tomorrow} {
		w.routes.routes[r.ID] = r
		w.orders.orders[r.Stops[1].OrderID] = pendingOrder(r.Stops[1].OrderID, r.Stops[1].Coordinate)
	}

	var solveReq routing.SolveRequest
	w.solver.solve = func(_ context.Context, req routing.SolveRequest) (*routing.Solution, error) {
		solveReq = req
		replacement, err := routing.NewRoute("route-6", "veh-2", "drv-2", origin.PlannedDate)
		require.NoError(t, err)
		return &routing.Solution{
			Routes:         []*routing.Route{replacement},
			ObjectiveValue: 8.0,
			Stats:          routing.SolverStats{OrdersAssigned: len(req.Orders)},
		}, nil
	}

	outcome := w.opt.runGlobal(context.Background(), origin, []Trigger{{Kind: event.KindTrafficDelay, Severity: 0.9}})
	require.Equal(t, OutcomeCommitted, outcome)

	// The re-solve covers the disturbed route and its two nearest same-day
	// neighbors only.
	var orderIDs []string
	for _, o := range solveReq.Orders {
		orderIDs = append(orderIDs, o.ID)
	}
	assert.ElementsMatch(t, []string{"order-2", "order-3", "order-n1", "order-n2"}, orderIDs)
	assert.Equal(t, 1, solveReq.Adaptations)

	for _, id := range []string{"route-1", "route-2", "route-3"} {
		got, err := w.routes.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, routing.RouteStatusCancelled, got.Status, id)
	}
	for _, id := range []string{"route-4", "route-5"} {
		got, err := w.routes.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, routing.RouteStatusActive, got.Status, id)
	}
}

func TestOptimizer_ManualTriggerBypassesCooldown(t *testing.T) {
	route := monitoredRoute(t)
	recent := adaptiveNow.Add(-5 * time.Minute)
	route.LastReoptimizedAt = &recent
	w := newWorld(t, route, nil)

	// No improving order exists; the manual run still executes.
	require.NoError(t, w.opt.TriggerManual(context.Background(), "route-1"))
	w.opt.wg.Wait()

	assert.Zero(t, w.recorder.cooldowns)
	assert.Equal(t, 1, w.recorder.started[StrategyLocal])
	assert.Equal(t, 1, w.recorder.completed["local/"+OutcomeNoImprovement])
	require.Len(t, w.bus.byKind(event.KindReoptimizationTriggered), 1)
	assert.Empty(t, w.bus.byKind(event.KindReoptimizationCompleted))
}

func TestOptimizer_WatchdogRescuesStuckRoute(t *testing.T) {
	route := monitoredRoute(t)
	route.Status = routing.RouteStatusReoptimizing
	route.UpdatedAt = adaptiveNow.Add(-10 * time.Minute)
	w := newWorld(t, route, nil)

	w.opt.monitorPass(context.Background())
	w.opt.wg.Wait()

	got, err := w.routes.FindByID(context.Background(), "route-1")
	require.NoError(t, err)
	assert.Equal(t, routing.RouteStatusActive, got.Status)

	failed := w.bus.byKind(event.KindReoptimizationFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, event.StatusEscalated, failed[0].Status)
	assert.Equal(t, "stuck_reoptimizing", failed[0].Payload["reason"])
}

func TestOptimizer_HigherSeverityPreemptsInflight(t *testing.T) {
	route := monitoredRoute(t)
	w := newWorld(t, route, nil)

	blocked := make(chan struct{})
	release := make(chan struct{})
	w.solver.segment = func(ctx context.Context, _ routing.SegmentRequest) (*routing.SegmentResult, error) {
		close(blocked)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, ctx.Err()
	}

	traffic := event.New(event.KindTrafficDelay, event.SeverityMedium, adaptiveNow)
	traffic.RouteID = "route-1"
	traffic.TriggersReoptimization = true
	traffic.Payload["traffic_factor"] = 1.6
	w.opt.handleEvent(context.Background(), traffic)
	<-blocked

	w.solver.solve = func(_ context.Context, req routing.SolveRequest) (*routing.Solution, error) {
		replacement, err := routing.NewRoute("route-2", "veh-2", "drv-2", route.PlannedDate)
		require.NoError(t, err)
		return &routing.Solution{Routes: []*routing.Route{replacement}, Stats: routing.SolverStats{OrdersAssigned: len(req.Orders)}}, nil
	}
	breakdown := event.New(event.KindVehicleBreakdown, event.SeverityCritical, adaptiveNow)
	breakdown.RouteID = "route-1"
	breakdown.TriggersReoptimization = true
	w.opt.handleEvent(context.Background(), breakdown)

	close(release)
	w.opt.wg.Wait()

	assert.Equal(t, 1, w.recorder.started[StrategyLocal])
	assert.Equal(t, 1, w.recorder.started[StrategyEmergency])
	assert.Equal(t, 1, w.recorder.completed["emergency/"+OutcomeCommitted])
}

func TestSelectStrategy(t *testing.T) {
	assert.Equal(t, StrategyEmergency, selectStrategy([]Trigger{{Kind: event.KindVehicleBreakdown, Severity: 1.0}}))
	assert.Equal(t, StrategyEmergency, selectStrategy([]Trigger{{Kind: event.KindDriverUnavailable, Severity: 0.9}}))
	assert.Equal(t, StrategyGlobal, selectStrategy([]Trigger{{Kind: event.KindTrafficDelay, Severity: 0.85}}))
	assert.Equal(t, StrategyGlobal, selectStrategy([]Trigger{
		{Kind: event.KindTrafficDelay, Severity: 0.3},
		{Kind: event.KindNewUrgentOrder, Severity: 0.8},
		{Kind: event.KindCustomerReschedule, Severity: 0.5},
	}))
	assert.Equal(t, StrategyLocal, selectStrategy([]Trigger{{Kind: event.KindNewUrgentOrder, Severity: 0.8}}))
	assert.Equal(t, StrategyLocal, selectStrategy([]Trigger{{Kind: event.KindCustomerReschedule, Severity: 0.5}}))
}
