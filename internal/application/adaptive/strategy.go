package adaptive

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/openfleet/lastmile/internal/application/common"
	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/event"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// maxEmergencyVehicles caps how many replacement vehicles an emergency
// re-assignment considers.
const maxEmergencyVehicles = 3

// globalNeighborRoutes caps how many neighboring active routes a global
// re-solve may pull in alongside the disturbed one.
const globalNeighborRoutes = 2

// runLocal reorders the pending tail of a single route. Executed stops are
// never touched; no improvement means no change at all.
func (o *Optimizer) runLocal(ctx context.Context, route *routing.Route, triggers []Trigger) string {
	log := common.LoggerFromContext(ctx)
	now := o.clock.Now()

	vehicle, err := o.vehicles.FindByID(ctx, route.VehicleID)
	if err != nil {
		return o.publishFailed(route, StrategyLocal, err, now)
	}
	driver, err := o.drivers.FindByID(ctx, route.DriverID)
	if err != nil {
		return o.publishFailed(route, StrategyLocal, err, now)
	}
	orders, err := o.pendingOrders(ctx, route)
	if err != nil {
		return o.publishFailed(route, StrategyLocal, err, now)
	}

	res, err := o.solver.ReoptimizeSegment(ctx, routing.SegmentRequest{
		Route:     route,
		Vehicle:   vehicle,
		Driver:    driver,
		Orders:    orders,
		Trigger:   primaryTrigger(triggers).Event,
		TimeLimit: o.cfg.SegmentTimeLimit,
		Weights:   o.cfg.Weights,
		Now:       now,
	})
	if err != nil {
		return o.publishFailed(route, StrategyLocal, err, now)
	}
	if res == nil {
		log.Log("DEBUG", "Local reoptimization found no improving order", map[string]interface{}{
			"route_id": route.ID,
		})
		return OutcomeNoImprovement
	}

	if err := route.ReplaceTail(res.NewTail); err != nil {
		return o.publishFailed(route, StrategyLocal, err, now)
	}
	route.RecomputeTotals()
	route.MarkReoptimized(now)

	ev := event.New(event.KindReoptimizationCompleted, event.SeverityLow, now)
	ev.RouteID = route.ID
	ev.Payload["strategy"] = string(StrategyLocal)
	ev.Payload["improvement_km"] = res.ImprovementKm
	if err := o.routes.CommitReoptimization(ctx, route, ev); err != nil {
		return o.publishFailed(route, StrategyLocal, err, now)
	}
	o.bus.Publish(ev)
	log.Log("INFO", "Local reoptimization committed", map[string]interface{}{
		"route_id":       route.ID,
		"improvement_km": res.ImprovementKm,
	})
	return OutcomeCommitted
}

// runGlobal re-solves the pending orders of the disturbed route together
// with its nearest neighbors and commits the new plan only when it beats
// the current one by the configured margin, or when it places orders the
// current plan could not.
func (o *Optimizer) runGlobal(ctx context.Context, origin *routing.Route, triggers []Trigger) string {
	log := common.LoggerFromContext(ctx)
	now := o.clock.Now()

	allActive, err := o.routes.ListActive(ctx)
	if err != nil {
		return o.publishFailed(origin, StrategyGlobal, err, now)
	}
	if len(allActive) == 0 {
		return OutcomeNoImprovement
	}
	active := globalScope(allActive, origin)

	oldObjective := 0.0
	adaptRound := 1
	var pendingIDs []string
	for _, r := range active {
		if r.AdaptationCount >= adaptRound {
			adaptRound = r.AdaptationCount + 1
		}
	}
	for _, r := range active {
		oldObjective += r.OptimizationScore
		for _, s := range r.RemainingStops() {
			if s.Kind == routing.StopKindDelivery && s.OrderID != "" {
				pendingIDs = append(pendingIDs, s.OrderID)
			}
		}
	}
	baselineAssigned := len(pendingIDs)

	orders, err := o.orders.FindByIDs(ctx, pendingIDs)
	if err != nil {
		return o.publishFailed(origin, StrategyGlobal, err, now)
	}
	unassigned, err := o.orders.ListByStatus(ctx, dispatch.OrderStatusPending)
	if err != nil {
		return o.publishFailed(origin, StrategyGlobal, err, now)
	}
	orders = dedupeOrders(append(orders, unassigned...))
	if len(orders) == 0 {
		return OutcomeNoImprovement
	}

	vehicles, drivers, err := o.fleetForResolve(ctx, active)
	if err != nil {
		return o.publishFailed(origin, StrategyGlobal, err, now)
	}

	depot := routeDepot(origin)
	window, ok := planningWindow(drivers, origin.PlannedDate, now)
	if !ok {
		return o.publishFailed(origin, StrategyGlobal,
			shared.NewDomainError(shared.KindNoFeasibleSolution, "no driver shift time remains today"), now)
	}

	sol, err := o.solver.Solve(ctx, routing.SolveRequest{
		Orders:      orders,
		Vehicles:    vehicles,
		Drivers:     drivers,
		Depot:       depot,
		PlannedDate: origin.PlannedDate,
		DepotWindow: window,
		Weights:     o.cfg.Weights,
		Adaptations: adaptRound,
	})
	if err != nil {
		return o.publishFailed(origin, StrategyGlobal, err, now)
	}

	placesMore := sol.Stats.OrdersAssigned > baselineAssigned
	improves := oldObjective > 0 && sol.ObjectiveValue <= oldObjective*(1-o.cfg.GlobalMargin)
	if !placesMore && !improves {
		ev := event.New(event.KindReoptimizationRejected, event.SeverityLow, now)
		ev.RouteID = origin.ID
		ev.Payload["strategy"] = string(StrategyGlobal)
		ev.Payload["old_objective"] = oldObjective
		ev.Payload["new_objective"] = sol.ObjectiveValue
		o.bus.Publish(ev)
		log.Log("INFO", "Global reoptimization rejected, margin not met", map[string]interface{}{
			"old_objective": oldObjective,
			"new_objective": sol.ObjectiveValue,
		})
		return OutcomeRejected
	}

	for _, r := range active {
		if err := o.routes.UpdateStatus(ctx, r.ID, routing.RouteStatusCancelled, nil); err != nil {
			return o.publishFailed(origin, StrategyGlobal, err, now)
		}
	}
	for _, r := range sol.Routes {
		r.MarkReoptimized(now)
		r.AdaptationCount = adaptRound
	}
	for _, ord := range orders {
		ord.Detach()
	}
	if err := assignOrders(orders, sol.Routes); err != nil {
		return o.publishFailed(origin, StrategyGlobal, err, now)
	}
	if err := o.routes.SaveSolution(ctx, sol.Routes); err != nil {
		return o.publishFailed(origin, StrategyGlobal, err, now)
	}
	if err := o.orders.SaveAll(ctx, orders); err != nil {
		return o.publishFailed(origin, StrategyGlobal, err, now)
	}

	ev := event.New(event.KindReoptimizationCompleted, event.SeverityMedium, now)
	ev.Payload["strategy"] = string(StrategyGlobal)
	ev.Payload["routes_replaced"] = len(active)
	ev.Payload["routes_created"] = len(sol.Routes)
	ev.Payload["new_objective"] = sol.ObjectiveValue
	o.bus.Publish(ev)
	log.Log("INFO", "Global reoptimization committed", map[string]interface{}{
		"routes_replaced": len(active),
		"routes_created":  len(sol.Routes),
		"orders_assigned": sol.Stats.OrdersAssigned,
	})
	return OutcomeCommitted
}

// runEmergency handles a broken vehicle or unavailable driver: the route is
// disrupted, its pending orders detach, and a small replacement fleet takes
// them over. Failure escalates to manual intervention.
func (o *Optimizer) runEmergency(ctx context.Context, route *routing.Route, triggers []Trigger) string {
	log := common.LoggerFromContext(ctx)
	now := o.clock.Now()

	orders, err := o.pendingOrders(ctx, route)
	if err != nil {
		return o.escalate(ctx, route, triggers, err.Error(), now)
	}

	for _, s := range route.RemainingStops() {
		if s.Kind == routing.StopKindDelivery {
			s.Status = routing.StopStatusSkipped
		}
	}
	route.Status = routing.RouteStatusDisrupted
	route.MarkReoptimized(now)
	adaptRound := route.AdaptationCount
	for _, ord := range orders {
		ord.Detach()
	}

	disruptEv := primaryTrigger(triggers).Event
	disruptEv.RouteID = route.ID
	if disruptEv.Payload == nil {
		disruptEv.Payload = map[string]interface{}{}
	}
	disruptEv.Payload["route_disrupted"] = true
	if err := o.routes.CommitReoptimization(ctx, route, disruptEv); err != nil {
		return o.escalate(ctx, route, triggers, err.Error(), now)
	}
	if len(orders) > 0 {
		if err := o.orders.SaveAll(ctx, orders); err != nil {
			return o.escalate(ctx, route, triggers, err.Error(), now)
		}
	}
	if len(orders) == 0 {
		log.Log("INFO", "Disrupted route had no pending orders", map[string]interface{}{"route_id": route.ID})
		return OutcomeCommitted
	}

	vehicles, drivers, err := o.replacementFleet(ctx, route)
	if err != nil || len(vehicles) == 0 || len(drivers) == 0 {
		return o.escalate(ctx, route, triggers, "no replacement vehicle available", now)
	}

	window, ok := planningWindow(drivers, route.PlannedDate, now)
	if !ok {
		return o.escalate(ctx, route, triggers, "no shift time remains for replacement drivers", now)
	}

	solveCtx, cancel := context.WithTimeout(ctx, o.cfg.EmergencyTimeLimit)
	defer cancel()
	sol, err := o.solver.Solve(solveCtx, routing.SolveRequest{
		Orders:      orders,
		Vehicles:    vehicles,
		Drivers:     drivers,
		Depot:       routeDepot(route),
		PlannedDate: route.PlannedDate,
		DepotWindow: window,
		TimeLimit:   o.cfg.EmergencyTimeLimit,
		Weights:     o.cfg.Weights,
		Adaptations: adaptRound,
	})
	if err != nil {
		return o.escalate(ctx, route, triggers, err.Error(), now)
	}

	for _, r := range sol.Routes {
		r.MarkReoptimized(now)
		r.AdaptationCount = adaptRound
	}
	if err := assignOrders(orders, sol.Routes); err != nil {
		return o.escalate(ctx, route, triggers, err.Error(), now)
	}
	if err := o.routes.SaveSolution(ctx, sol.Routes); err != nil {
		return o.escalate(ctx, route, triggers, err.Error(), now)
	}
	if err := o.orders.SaveAll(ctx, orders); err != nil {
		return o.escalate(ctx, route, triggers, err.Error(), now)
	}

	ev := event.New(event.KindReoptimizationCompleted, event.SeverityHigh, now)
	ev.RouteID = route.ID
	ev.Payload["strategy"] = string(StrategyEmergency)
	ev.Payload["orders_reassigned"] = sol.Stats.OrdersAssigned
	ev.Payload["routes_created"] = len(sol.Routes)
	o.bus.Publish(ev)
	log.Log("INFO", "Emergency reoptimization committed", map[string]interface{}{
		"route_id":          route.ID,
		"orders_reassigned": sol.Stats.OrdersAssigned,
		"routes_created":    len(sol.Routes),
	})
	return OutcomeCommitted
}

// escalate publishes a manual intervention request for a route the
// emergency strategy could not rescue.
func (o *Optimizer) escalate(ctx context.Context, route *routing.Route, triggers []Trigger, reason string, now time.Time) string {
	ev := event.New(event.KindManualIntervention, event.SeverityCritical, now)
	ev.Status = event.StatusEscalated
	ev.RouteID = route.ID
	ev.Payload["reason"] = reason
	ev.Payload["triggers"] = triggerKinds(triggers)
	o.bus.Publish(ev)
	common.LoggerFromContext(ctx).Log("ERROR", "Emergency reoptimization escalated", map[string]interface{}{
		"route_id": route.ID,
		"reason":   reason,
	})
	return OutcomeEscalated
}

// publishFailed reports a strategy that errored out before committing.
func (o *Optimizer) publishFailed(route *routing.Route, strategy Strategy, err error, now time.Time) string {
	ev := event.New(event.KindReoptimizationFailed, event.SeverityMedium, now)
	ev.RouteID = route.ID
	ev.Payload["strategy"] = string(strategy)
	ev.Payload["error"] = err.Error()
	o.bus.Publish(ev)
	return OutcomeFailed
}

// fleetForResolve gathers the vehicles and drivers of the active routes plus
// any idle ones, deduplicated and id-sorted.
func (o *Optimizer) fleetForResolve(ctx context.Context, active []*routing.Route) ([]*dispatch.Vehicle, []*dispatch.Driver, error) {
	var vehicleIDs, driverIDs []string
	for _, r := range active {
		vehicleIDs = append(vehicleIDs, r.VehicleID)
		driverIDs = append(driverIDs, r.DriverID)
	}
	vehicles, err := o.vehicles.FindByIDs(ctx, vehicleIDs)
	if err != nil {
		return nil, nil, err
	}
	idleVehicles, err := o.vehicles.ListByStatus(ctx, dispatch.VehicleStatusAvailable)
	if err != nil {
		return nil, nil, err
	}
	drivers, err := o.drivers.FindByIDs(ctx, driverIDs)
	if err != nil {
		return nil, nil, err
	}
	idleDrivers, err := o.drivers.ListByStatus(ctx, dispatch.DriverStatusAvailable)
	if err != nil {
		return nil, nil, err
	}
	return dedupeVehicles(append(vehicles, idleVehicles...)), dedupeDrivers(append(drivers, idleDrivers...)), nil
}

// replacementFleet returns up to maxEmergencyVehicles available vehicles and
// matching drivers, excluding the disrupted route's own pair.
func (o *Optimizer) replacementFleet(ctx context.Context, route *routing.Route) ([]*dispatch.Vehicle, []*dispatch.Driver, error) {
	vehicles, err := o.vehicles.ListByStatus(ctx, dispatch.VehicleStatusAvailable)
	if err != nil {
		return nil, nil, err
	}
	drivers, err := o.drivers.ListByStatus(ctx, dispatch.DriverStatusAvailable)
	if err != nil {
		return nil, nil, err
	}

	kept := make([]*dispatch.Vehicle, 0, maxEmergencyVehicles)
	for _, v := range dedupeVehicles(vehicles) {
		if v.ID == route.VehicleID {
			continue
		}
		kept = append(kept, v)
		if len(kept) == maxEmergencyVehicles {
			break
		}
	}
	keptDrivers := make([]*dispatch.Driver, 0, len(kept))
	for _, d := range dedupeDrivers(drivers) {
		if d.ID == route.DriverID {
			continue
		}
		keptDrivers = append(keptDrivers, d)
		if len(keptDrivers) == len(kept) {
			break
		}
	}
	return kept, keptDrivers, nil
}

// globalScope picks the routes a global re-solve may touch: the disturbed
// route plus its globalNeighborRoutes nearest active neighbors planned for
// the same date. Distance is the closest stop pair between the two routes;
// ties break on route id.
func globalScope(active []*routing.Route, origin *routing.Route) []*routing.Route {
	type scoredRoute struct {
		route *routing.Route
		km    float64
	}
	var neighbors []scoredRoute
	for _, r := range active {
		if r.ID == origin.ID || !sameDay(r.PlannedDate, origin.PlannedDate) {
			continue
		}
		neighbors = append(neighbors, scoredRoute{route: r, km: routeDistanceKm(origin, r)})
	}
	sort.Slice(neighbors, func(a, b int) bool {
		if neighbors[a].km != neighbors[b].km {
			return neighbors[a].km < neighbors[b].km
		}
		return neighbors[a].route.ID < neighbors[b].route.ID
	})
	scope := []*routing.Route{origin}
	for i := 0; i < len(neighbors) && i < globalNeighborRoutes; i++ {
		scope = append(scope, neighbors[i].route)
	}
	return scope
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// routeDistanceKm is the closest distance between the delivery stops of two
// routes. Depot bookends are shared by the whole fleet and say nothing about
// proximity, so they are skipped.
func routeDistanceKm(a, b *routing.Route) float64 {
	best := math.MaxFloat64
	for _, sa := range a.Stops {
		if sa.Kind != routing.StopKindDelivery {
			continue
		}
		for _, sb := range b.Stops {
			if sb.Kind != routing.StopKindDelivery {
				continue
			}
			if d := sa.Coordinate.DistanceKm(sb.Coordinate); d < best {
				best = d
			}
		}
	}
	return best
}

// routeDepot returns the route's depot coordinate from its closing stop.
func routeDepot(route *routing.Route) shared.Coordinate {
	if n := len(route.Stops); n > 0 {
		return route.Stops[n-1].Coordinate
	}
	return shared.Coordinate{}
}

// planningWindow bounds a re-solve to the remaining shift time: it starts
// now and ends at the latest driver shift end for the planned date.
func planningWindow(drivers []*dispatch.Driver, date time.Time, now time.Time) (shared.TimeWindow, bool) {
	var end time.Time
	for _, d := range drivers {
		if w := d.ShiftWindow(date); w.End.After(end) {
			end = w.End
		}
	}
	if !end.After(now) {
		return shared.TimeWindow{}, false
	}
	return shared.TimeWindow{Start: now, End: end}, true
}

func dedupeOrders(orders []*dispatch.Order) []*dispatch.Order {
	seen := make(map[string]struct{}, len(orders))
	out := orders[:0]
	for _, o := range orders {
		if _, dup := seen[o.ID]; dup {
			continue
		}
		seen[o.ID] = struct{}{}
		out = append(out, o)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// assignOrders re-links orders to the delivery stops of a fresh solution.
func assignOrders(orders []*dispatch.Order, routes []*routing.Route) error {
	byID := make(map[string]*dispatch.Order, len(orders))
	for _, ord := range orders {
		byID[ord.ID] = ord
	}
	for _, r := range routes {
		for _, s := range r.DeliveryStops() {
			ord, ok := byID[s.OrderID]
			if !ok {
				continue
			}
			if err := ord.Assign(s.ID, r.DriverID); err != nil {
				return err
			}
		}
	}
	return nil
}

func dedupeVehicles(vehicles []*dispatch.Vehicle) []*dispatch.Vehicle {
	seen := make(map[string]struct{}, len(vehicles))
	out := vehicles[:0]
	for _, v := range vehicles {
		if _, dup := seen[v.ID]; dup {
			continue
		}
		seen[v.ID] = struct{}{}
		out = append(out, v)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func dedupeDrivers(drivers []*dispatch.Driver) []*dispatch.Driver {
	seen := make(map[string]struct{}, len(drivers))
	out := drivers[:0]
	for _, d := range drivers {
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}
