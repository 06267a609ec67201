package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"
	"gorm.io/gorm"

	eventbus "github.com/openfleet/lastmile/internal/adapters/bus"
	"github.com/openfleet/lastmile/internal/adapters/geodata"
	"github.com/openfleet/lastmile/internal/adapters/persistence"
	"github.com/openfleet/lastmile/internal/application/adaptive"
	"github.com/openfleet/lastmile/internal/application/planning"
	"github.com/openfleet/lastmile/internal/application/solver"
	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/event"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
	"github.com/openfleet/lastmile/internal/infrastructure/database"
)

// dispatchContext wires a full in-process stack for one scenario: SQLite
// repositories, the Haversine-backed solver, the event bus with its archiver
// and the adaptive optimizer reacting to published disruptions.
type dispatchContext struct {
	db     *gorm.DB
	cancel context.CancelFunc

	bus      *eventbus.EventBus
	orders   *persistence.GormOrderRepository
	vehicles *persistence.GormVehicleRepository
	drivers  *persistence.GormDriverRepository
	routes   *persistence.GormRouteRepository
	events   *persistence.GormEventRepository

	planner *planning.Service

	depot       shared.Coordinate
	plannedDate time.Time
	orderIDs    []string
	vehicleIDs  []string
	driverIDs   []string

	result  *planning.Result
	routeID string
}

func (dc *dispatchContext) setup() error {
	db, err := database.NewTestConnection()
	if err != nil {
		return fmt.Errorf("failed to create test database: %w", err)
	}
	dc.db = db

	clock := shared.NewRealClock()
	dc.bus = eventbus.New(256)
	dc.orders = persistence.NewGormOrderRepository(db)
	dc.vehicles = persistence.NewGormVehicleRepository(db)
	dc.drivers = persistence.NewGormDriverRepository(db)
	dc.routes = persistence.NewGormRouteRepository(db)
	dc.events = persistence.NewGormEventRepository(db, clock)

	matrices := geodata.NewMatrixCache(geodata.NewHaversineProvider(40), time.Hour)
	vrp := solver.New(matrices, clock)

	dc.planner = planning.NewService(planning.Deps{
		Orders:   dc.orders,
		Vehicles: dc.vehicles,
		Drivers:  dc.drivers,
		Routes:   dc.routes,
		Solver:   vrp,
		Bus:      dc.bus,
		Clock:    clock,
	})

	opt := adaptive.New(adaptive.Config{
		// A long monitor interval keeps the scenario event-driven.
		MonitorInterval:    time.Hour,
		SegmentTimeLimit:   2 * time.Second,
		EmergencyTimeLimit: 5 * time.Second,
	}, adaptive.Deps{
		Routes:   dc.routes,
		Orders:   dc.orders,
		Vehicles: dc.vehicles,
		Drivers:  dc.drivers,
		Solver:   vrp,
		Bus:      dc.bus,
		Clock:    clock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	dc.cancel = cancel
	go func() { _ = opt.Run(ctx) }()
	go func() { _ = eventbus.NewArchiver(dc.bus, dc.events).Run(ctx) }()

	// Events published before the optimizer and archiver subscribe are
	// dropped by the bus, so wait until both goroutines are listening.
	if err := dc.waitFor(5*time.Second, "event bus subscribers", func() bool {
		return dc.bus.SubscriberCount() >= 2
	}); err != nil {
		return err
	}

	// The planned date skips to tomorrow near midnight so driver shifts
	// always leave working time for the scenario.
	now := time.Now().UTC()
	dc.plannedDate = now.Truncate(24 * time.Hour)
	if now.Hour() >= 22 {
		dc.plannedDate = dc.plannedDate.Add(24 * time.Hour)
	}
	return nil
}

func (dc *dispatchContext) teardown() {
	if dc.cancel != nil {
		dc.cancel()
	}
	if dc.db != nil {
		_ = database.Close(dc.db)
	}
}

func (dc *dispatchContext) waitFor(timeout time.Duration, what string, cond func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(25 * time.Millisecond)
	}
	return fmt.Errorf("timed out after %s waiting for %s", timeout, what)
}

// --- Given ------------------------------------------------------------------

func (dc *dispatchContext) aDepotAt(lat, lon float64) error {
	coord, err := shared.NewCoordinate(lat, lon)
	if err != nil {
		return err
	}
	dc.depot = coord
	return nil
}

func (dc *dispatchContext) pendingOrdersAroundTheDepot(count int) error {
	offsets := []struct{ dLat, dLon float64 }{
		{0.009, 0.0}, {0.0, 0.012}, {-0.008, 0.004}, {0.004, -0.010},
		{0.012, 0.008}, {-0.005, -0.007},
	}
	if count > len(offsets) {
		return fmt.Errorf("at most %d orders supported, got %d", len(offsets), count)
	}

	window := shared.TimeWindow{
		Start: dc.plannedDate.Add(30 * time.Minute),
		End:   dc.plannedDate.Add(23*time.Hour + 30*time.Minute),
	}
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("order-%d", i+1)
		coord := shared.Coordinate{Lat: dc.depot.Lat + offsets[i].dLat, Lon: dc.depot.Lon + offsets[i].dLon}
		order, err := dispatch.NewOrder(id, coord, window, 10, 0.1, 5*time.Minute, dispatch.PriorityMedium)
		if err != nil {
			return err
		}
		if err := dc.orders.Save(context.Background(), order); err != nil {
			return err
		}
		dc.orderIDs = append(dc.orderIDs, id)
	}
	return nil
}

func (dc *dispatchContext) aFleetOfVehiclesAndDrivers(vehicles, drivers int) error {
	for i := 0; i < vehicles; i++ {
		id := fmt.Sprintf("veh-%d", i+1)
		v, err := dispatch.NewVehicle(id, dispatch.VehicleKindDriving, 500, 5, dc.depot)
		if err != nil {
			return err
		}
		if err := dc.vehicles.Save(context.Background(), v); err != nil {
			return err
		}
		dc.vehicleIDs = append(dc.vehicleIDs, id)
	}
	for i := 0; i < drivers; i++ {
		id := fmt.Sprintf("drv-%d", i+1)
		d, err := dispatch.NewDriver(id, "Driver "+id, dispatch.ExperienceIntermediate, 20)
		if err != nil {
			return err
		}
		d.ShiftStart = dc.plannedDate.Add(5 * time.Minute)
		d.ShiftEnd = dc.plannedDate.Add(23*time.Hour + 55*time.Minute)
		if err := dc.drivers.Save(context.Background(), d); err != nil {
			return err
		}
		dc.driverIDs = append(dc.driverIDs, id)
	}
	return nil
}

// --- When -------------------------------------------------------------------

func (dc *dispatchContext) theDispatcherPlansARoute() error {
	result, err := dc.planner.Optimize(context.Background(), planning.Request{
		OrderIDs:    dc.orderIDs,
		VehicleIDs:  dc.vehicleIDs[:1],
		DriverIDs:   dc.driverIDs[:1],
		Depot:       dc.depot,
		PlannedDate: dc.plannedDate,
		TimeLimit:   10 * time.Second,
	})
	if err != nil {
		return err
	}
	dc.result = result
	if len(result.RouteIDs) > 0 {
		dc.routeID = result.RouteIDs[0]
	}
	return nil
}

func (dc *dispatchContext) theRouteStartsExecution() error {
	_, err := dc.planner.UpdateRouteStatus(context.Background(), dc.routeID, planning.StatusUpdate{
		Status: routing.RouteStatusActive,
	})
	return err
}

func (dc *dispatchContext) theDriverCompletesEveryStop() error {
	route, err := dc.routes.FindByID(context.Background(), dc.routeID)
	if err != nil {
		return err
	}
	last := len(route.Stops) - 1
	_, err = dc.planner.UpdateRouteStatus(context.Background(), dc.routeID, planning.StatusUpdate{
		Status:           routing.RouteStatusCompleted,
		CurrentStopIndex: &last,
	})
	return err
}

func (dc *dispatchContext) aVehicleBreakdownIsReported() error {
	ev := event.New(event.KindVehicleBreakdown, event.SeverityCritical, time.Now().UTC())
	ev.RouteID = dc.routeID
	ev.VehicleID = dc.vehicleIDs[0]
	ev.TriggersReoptimization = true
	dc.bus.Publish(ev)
	return nil
}

// --- Then -------------------------------------------------------------------

func (dc *dispatchContext) routeCoversAllOrders(routes, orders int) error {
	if dc.result == nil {
		return fmt.Errorf("no planning result available")
	}
	if dc.result.RoutesCreated != routes {
		return fmt.Errorf("expected %d routes, got %d", routes, dc.result.RoutesCreated)
	}
	if dc.result.Stats.OrdersAssigned != orders {
		return fmt.Errorf("expected %d assigned orders, got %d", orders, dc.result.Stats.OrdersAssigned)
	}
	if len(dc.result.Unassigned) != 0 {
		return fmt.Errorf("expected no unassigned orders, got %d", len(dc.result.Unassigned))
	}
	return nil
}

func (dc *dispatchContext) allOrdersAreDelivered() error {
	for _, id := range dc.orderIDs {
		order, err := dc.orders.FindByID(context.Background(), id)
		if err != nil {
			return err
		}
		if order.Status != dispatch.OrderStatusDelivered {
			return fmt.Errorf("order %s is %s, expected delivered", id, order.Status)
		}
	}
	return nil
}

func (dc *dispatchContext) theRouteIsMarkedDisruptedWithin(seconds int) error {
	return dc.waitFor(time.Duration(seconds)*time.Second, "route disruption", func() bool {
		route, err := dc.routes.FindByID(context.Background(), dc.routeID)
		return err == nil && route.Status == routing.RouteStatusDisrupted
	})
}

func (dc *dispatchContext) ordersAreReassignedToAReplacementRoute() error {
	replacementDriver := dc.driverIDs[1]
	err := dc.waitFor(5*time.Second, "order reassignment", func() bool {
		for _, id := range dc.orderIDs {
			order, err := dc.orders.FindByID(context.Background(), id)
			if err != nil || order.Status != dispatch.OrderStatusAssigned || order.DriverID != replacementDriver {
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}

	routes, err := dc.routes.List(context.Background(), routing.RouteQuery{VehicleID: dc.vehicleIDs[1]})
	if err != nil {
		return err
	}
	for _, r := range routes {
		if r.ID != dc.routeID && len(r.DeliveryStops()) == len(dc.orderIDs) {
			return nil
		}
	}
	return fmt.Errorf("no replacement route on vehicle %s covers the %d orders", dc.vehicleIDs[1], len(dc.orderIDs))
}

func (dc *dispatchContext) anEmergencyCompletionIsLogged() error {
	return dc.waitFor(5*time.Second, "emergency completion event", func() bool {
		events, err := dc.events.List(context.Background(), event.ListQuery{
			Kind:    event.KindReoptimizationCompleted,
			RouteID: dc.routeID,
		})
		if err != nil {
			return false
		}
		for _, ev := range events {
			if ev.Payload["strategy"] == string(adaptive.StrategyEmergency) {
				return true
			}
		}
		return false
	})
}

// InitializeDispatchScenario registers the plan, execute and replan steps.
func InitializeDispatchScenario(sc *godog.ScenarioContext) {
	dc := &dispatchContext{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		*dc = dispatchContext{}
		return ctx, dc.setup()
	})
	sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		dc.teardown()
		return ctx, err
	})

	sc.Step(`^a depot at latitude (\d+\.\d+) and longitude (\d+\.\d+)$`, dc.aDepotAt)
	sc.Step(`^(\d+) pending orders around the depot$`, dc.pendingOrdersAroundTheDepot)
	sc.Step(`^a fleet of (\d+) vehicles and (\d+) drivers$`, dc.aFleetOfVehiclesAndDrivers)
	sc.Step(`^the dispatcher plans a route with the first vehicle and driver$`, dc.theDispatcherPlansARoute)
	sc.Step(`^(\d+) route covers all (\d+) orders$`, dc.routeCoversAllOrders)
	sc.Step(`^the route starts execution$`, dc.theRouteStartsExecution)
	sc.Step(`^the driver completes every stop$`, dc.theDriverCompletesEveryStop)
	sc.Step(`^all orders are delivered$`, dc.allOrdersAreDelivered)
	sc.Step(`^a vehicle breakdown is reported on the route$`, dc.aVehicleBreakdownIsReported)
	sc.Step(`^the route is marked disrupted within (\d+) seconds$`, dc.theRouteIsMarkedDisruptedWithin)
	sc.Step(`^the remaining orders are reassigned to a replacement route$`, dc.ordersAreReassignedToAReplacementRoute)
	sc.Step(`^an emergency reoptimization completion is logged$`, dc.anEmergencyCompletionIsLogged)
}
