package adaptive

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/openfleet/lastmile/internal/application/common"
	"github.com/openfleet/lastmile/internal/application/simulation"
	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/event"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// ConditionSource exposes a live snapshot of road and fleet conditions,
// typically backed by the condition simulator.
type ConditionSource interface {
	Conditions() simulation.Conditions
}

// Deps are the collaborators of the adaptive optimizer (C7).
type Deps struct {
	Routes   routing.Repository
	Orders   dispatch.OrderRepository
	Vehicles dispatch.VehicleRepository
	Drivers  dispatch.DriverRepository
	Solver   routing.Solver
	Bus      event.Bus
	// Conditions is optional; without it only event-driven and delay
	// triggers fire.
	Conditions ConditionSource
	// Clock defaults to the real clock, Recorder to a no-op.
	Clock    shared.Clock
	Recorder Recorder
}

// Optimizer watches active routes and re-solves them when disruptions make
// the current plan stale. One re-solve runs per route at a time; a higher
// severity trigger preempts a running one.
type Optimizer struct {
	cfg        Config
	routes     routing.Repository
	orders     dispatch.OrderRepository
	vehicles   dispatch.VehicleRepository
	drivers    dispatch.DriverRepository
	solver     routing.Solver
	bus        event.Bus
	conditions ConditionSource
	clock      shared.Clock
	recorder   Recorder

	mu       sync.Mutex
	inflight map[string]*inflightRun
	wg       sync.WaitGroup
}

type inflightRun struct {
	cancel   context.CancelFunc
	severity float64
}

// New creates the optimizer. Zero config fields take production defaults.
func New(cfg Config, deps Deps) *Optimizer {
	if deps.Clock == nil {
		deps.Clock = shared.NewRealClock()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	return &Optimizer{
		cfg:        cfg.withDefaults(),
		routes:     deps.Routes,
		orders:     deps.Orders,
		vehicles:   deps.Vehicles,
		drivers:    deps.Drivers,
		solver:     deps.Solver,
		bus:        deps.Bus,
		conditions: deps.Conditions,
		clock:      deps.Clock,
		recorder:   deps.Recorder,
		inflight:   make(map[string]*inflightRun),
	}
}

// Run blocks, reacting to bus events and scanning active routes every
// monitor interval, until the context is cancelled.
func (o *Optimizer) Run(ctx context.Context) error {
	sub := o.bus.Subscribe(event.Filter{})
	defer o.bus.Unsubscribe(sub)

	ticks := make(chan struct{}, 1)
	go func() {
		for {
			o.clock.Sleep(o.cfg.MonitorInterval)
			select {
			case ticks <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	}()

	common.LoggerFromContext(ctx).Log("INFO", "Adaptive optimizer started", map[string]interface{}{
		"monitor_interval": o.cfg.MonitorInterval.String(),
		"cooldown":         o.cfg.Cooldown.String(),
	})

	for {
		select {
		case <-ctx.Done():
			o.wg.Wait()
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				o.wg.Wait()
				return nil
			}
			o.handleEvent(ctx, ev)
		case <-ticks:
			o.monitorPass(ctx)
		}
	}
}

// TriggerManual schedules a re-solve of one route on operator request,
// bypassing the cooldown.
func (o *Optimizer) TriggerManual(ctx context.Context, routeID string) error {
	route, err := o.routes.FindByID(ctx, routeID)
	if err != nil {
		return err
	}
	now := o.clock.Now()
	ev := event.New(event.KindManualIntervention, event.SeverityMedium, now)
	ev.RouteID = route.ID
	tr, _ := triggerFromEvent(ev)
	o.schedule(ctx, route, []Trigger{tr})
	return nil
}

// handleEvent reacts to a single disruption event from the bus.
func (o *Optimizer) handleEvent(ctx context.Context, ev event.Event) {
	if !ev.TriggersReoptimization || ev.Status != event.StatusActive {
		return
	}
	tr, ok := triggerFromEvent(ev)
	if !ok {
		return
	}
	route := o.routeForEvent(ctx, ev)
	if route == nil {
		return
	}
	o.schedule(ctx, route, []Trigger{tr})
}

// routeForEvent resolves the route an event applies to: directly by id, by
// its vehicle or driver, by the stop its order is assigned to, or for
// unassigned urgent orders the nearest active route within the urgent
// radius.
func (o *Optimizer) routeForEvent(ctx context.Context, ev event.Event) *routing.Route {
	log := common.LoggerFromContext(ctx)

	if ev.RouteID != "" {
		route, err := o.routes.FindByID(ctx, ev.RouteID)
		if err != nil {
			log.Log("WARN", "Event references unknown route", map[string]interface{}{
				"route_id": ev.RouteID, "kind": string(ev.Kind), "error": err.Error(),
			})
			return nil
		}
		if !route.IsActive() {
			return nil
		}
		return route
	}

	active, err := o.routes.ListActive(ctx)
	if err != nil {
		log.Log("WARN", "Listing active routes failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	for _, r := range active {
		if ev.VehicleID != "" && r.VehicleID == ev.VehicleID {
			return r
		}
		if ev.DriverID != "" && r.DriverID == ev.DriverID {
			return r
		}
	}
	if ev.OrderID != "" {
		if r := routeForOrder(active, o.lookupOrder(ctx, ev.OrderID)); r != nil {
			return r
		}
	}
	if ev.Kind == event.KindNewUrgentOrder && ev.Location != nil {
		return nearestRoute(active, *ev.Location, o.cfg.UrgentRadiusKm)
	}
	return nil
}

func (o *Optimizer) lookupOrder(ctx context.Context, id string) *dispatch.Order {
	ord, err := o.orders.FindByID(ctx, id)
	if err != nil {
		common.LoggerFromContext(ctx).Log("WARN", "Event references unknown order", map[string]interface{}{
			"order_id": id, "error": err.Error(),
		})
		return nil
	}
	return ord
}

// routeForOrder finds the active route carrying the order's assigned stop.
func routeForOrder(routes []*routing.Route, ord *dispatch.Order) *routing.Route {
	if ord == nil || ord.StopID == "" {
		return nil
	}
	for _, r := range routes {
		for _, s := range r.Stops {
			if s.ID == ord.StopID {
				return r
			}
		}
	}
	return nil
}

// nearestRoute returns the active route whose closest stop lies within
// radiusKm of the coordinate, or nil.
func nearestRoute(routes []*routing.Route, coord shared.Coordinate, radiusKm float64) *routing.Route {
	var best *routing.Route
	bestKm := radiusKm
	for _, r := range routes {
		for _, s := range r.Stops {
			if d := s.Coordinate.DistanceKm(coord); d <= bestKm {
				best = r
				bestKm = d
			}
		}
	}
	return best
}

// monitorPass evaluates every active route against the current world state
// and nudges stuck re-solves back to life.
func (o *Optimizer) monitorPass(ctx context.Context) {
	log := common.LoggerFromContext(ctx)
	now := o.clock.Now()

	active, err := o.routes.ListActive(ctx)
	if err != nil {
		log.Log("WARN", "Monitor pass could not list routes", map[string]interface{}{"error": err.Error()})
		return
	}
	for _, route := range active {
		rc := o.loadContext(ctx, route)
		triggers := o.evaluateTriggers(rc, now)
		triggers = append(triggers, o.urgentOrderTriggers(ctx, route, now)...)
		if len(triggers) > 0 {
			o.schedule(ctx, route, triggers)
		}
	}

	o.watchdogPass(ctx, now)
}

// loadContext fetches the vehicle and driver of a route; either may be nil
// when the lookup fails, which simply disables their triggers.
func (o *Optimizer) loadContext(ctx context.Context, route *routing.Route) routeContext {
	rc := routeContext{route: route}
	rc.vehicle, _ = o.vehicles.FindByID(ctx, route.VehicleID)
	rc.driver, _ = o.drivers.FindByID(ctx, route.DriverID)
	return rc
}

// urgentOrderTriggers fires when an unassigned urgent order sits within the
// urgent radius of the vehicle's current position.
func (o *Optimizer) urgentOrderTriggers(ctx context.Context, route *routing.Route, now time.Time) []Trigger {
	current := route.CurrentStop()
	if current == nil {
		return nil
	}
	nearby, err := o.orders.ListUnassignedNear(ctx, current.Coordinate, o.cfg.UrgentRadiusKm)
	if err != nil {
		return nil
	}
	for _, ord := range nearby {
		if ord.Priority != dispatch.PriorityUrgent || ord.Status != dispatch.OrderStatusPending {
			continue
		}
		ev := event.New(event.KindNewUrgentOrder, event.SeverityHigh, now)
		ev.RouteID = route.ID
		ev.OrderID = ord.ID
		loc := ord.Coordinate
		ev.Location = &loc
		return []Trigger{{
			Kind:     event.KindNewUrgentOrder,
			Severity: 0.8,
			Detail:   "unassigned urgent order " + ord.ID + " near route",
			Event:    ev,
		}}
	}
	return nil
}

// watchdogPass returns routes stuck in the reoptimizing status to active and
// escalates them. A crash mid-commit must not strand a route forever.
func (o *Optimizer) watchdogPass(ctx context.Context, now time.Time) {
	log := common.LoggerFromContext(ctx)
	stuck, err := o.routes.List(ctx, routing.RouteQuery{Status: routing.RouteStatusReoptimizing})
	if err != nil {
		return
	}
	for _, route := range stuck {
		if now.Sub(route.UpdatedAt) < o.cfg.StuckDeadline {
			continue
		}
		if err := o.routes.UpdateStatus(ctx, route.ID, routing.RouteStatusActive, nil); err != nil {
			continue
		}
		log.Log("ERROR", "Route stuck in reoptimizing, forced back to active", map[string]interface{}{
			"route_id": route.ID,
			"stuck_for": now.Sub(route.UpdatedAt).String(),
		})
		ev := event.New(event.KindReoptimizationFailed, event.SeverityCritical, now)
		ev.Status = event.StatusEscalated
		ev.RouteID = route.ID
		ev.Payload["reason"] = "stuck_reoptimizing"
		o.bus.Publish(ev)
		o.recorder.ReoptimizationCompleted(StrategyLocal, OutcomeEscalated, 0)
	}
}

// schedule decides whether and how to re-solve a route for the given
// triggers, then launches the chosen strategy asynchronously.
func (o *Optimizer) schedule(ctx context.Context, route *routing.Route, triggers []Trigger) {
	if len(triggers) == 0 {
		return
	}
	log := common.LoggerFromContext(ctx)
	now := o.clock.Now()
	strategy := selectStrategy(triggers)
	sev := maxSeverity(triggers)

	if route.InCooldown(now, o.cfg.Cooldown) && !anyImmediate(triggers) {
		o.recorder.CooldownSkipped()
		log.Log("DEBUG", "Reoptimization suppressed by cooldown", map[string]interface{}{
			"route_id": route.ID,
			"triggers": triggerKinds(triggers),
		})
		return
	}

	o.mu.Lock()
	if run, ok := o.inflight[route.ID]; ok {
		if sev <= run.severity {
			o.mu.Unlock()
			return
		}
		run.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	run := &inflightRun{cancel: cancel, severity: sev}
	o.inflight[route.ID] = run
	o.mu.Unlock()

	o.recorder.ReoptimizationStarted(strategy)
	o.publishTriggered(route, triggers, strategy, now)
	log.Log("INFO", "Reoptimization triggered", map[string]interface{}{
		"route_id": route.ID,
		"strategy": string(strategy),
		"severity": sev,
		"triggers": triggerKinds(triggers),
	})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		defer func() {
			o.mu.Lock()
			if o.inflight[route.ID] == run {
				delete(o.inflight, route.ID)
			}
			o.mu.Unlock()
		}()

		started := o.clock.Now()
		outcome := o.execute(runCtx, route, triggers, strategy)
		o.recorder.ReoptimizationCompleted(strategy, outcome, o.clock.Now().Sub(started))
	}()
}

// execute runs one strategy to completion and returns its outcome label.
func (o *Optimizer) execute(ctx context.Context, route *routing.Route, triggers []Trigger, strategy Strategy) string {
	switch strategy {
	case StrategyEmergency:
		return o.runEmergency(ctx, route, triggers)
	case StrategyGlobal:
		return o.runGlobal(ctx, route, triggers)
	default:
		return o.runLocal(ctx, route, triggers)
	}
}

func (o *Optimizer) publishTriggered(route *routing.Route, triggers []Trigger, strategy Strategy, now time.Time) {
	ev := event.New(event.KindReoptimizationTriggered, severityLevel(maxSeverity(triggers)), now)
	ev.RouteID = route.ID
	ev.Payload["strategy"] = string(strategy)
	ev.Payload["triggers"] = triggerKinds(triggers)
	o.bus.Publish(ev)
}

// primaryTrigger returns the highest-severity trigger, preferring the first
// on ties so the ordering of the evaluation is preserved.
func primaryTrigger(triggers []Trigger) Trigger {
	best := triggers[0]
	for _, tr := range triggers[1:] {
		if tr.Severity > best.Severity {
			best = tr
		}
	}
	return best
}

// pendingOrders loads the orders behind the route's pending delivery stops,
// sorted by stop sequence.
func (o *Optimizer) pendingOrders(ctx context.Context, route *routing.Route) ([]*dispatch.Order, error) {
	var ids []string
	for _, s := range route.RemainingStops() {
		if s.Kind == routing.StopKindDelivery && s.OrderID != "" {
			ids = append(ids, s.OrderID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	orders, err := o.orders.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(orders, func(a, b int) bool { return orders[a].ID < orders[b].ID })
	return orders, nil
}
