// Package simulation generates synthetic disruption events with lifecycle
// and resolution (C6). It stands in for real-world ingestion during
// development and demos, and feeds the same bus the adaptive optimizer
// listens on.
package simulation

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/openfleet/lastmile/internal/application/common"
	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/event"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// Params control the simulation loop. Zero fields fall back to defaults.
type Params struct {
	// UpdateInterval is the base tick period; the effective period is
	// UpdateInterval / Speed.
	UpdateInterval time.Duration
	Speed          float64
	// Probabilities are per-tick Bernoulli probabilities per event kind.
	Probabilities map[event.Kind]float64
	// MinEventDuration..MaxEventDuration bound how long a generated
	// condition stays active before auto-resolving.
	MinEventDuration time.Duration
	MaxEventDuration time.Duration
	Seed             int64
}

func (p Params) withDefaults() Params {
	if p.UpdateInterval <= 0 {
		p.UpdateInterval = 10 * time.Second
	}
	if p.Speed <= 0 {
		p.Speed = 1.0
	}
	if p.MinEventDuration <= 0 {
		p.MinEventDuration = 2 * time.Minute
	}
	if p.MaxEventDuration < p.MinEventDuration {
		p.MaxEventDuration = p.MinEventDuration + 8*time.Minute
	}
	if p.Probabilities == nil {
		p.Probabilities = map[event.Kind]float64{
			event.KindTrafficDelay:       0.15,
			event.KindWeather:            0.05,
			event.KindVehicleBreakdown:   0.02,
			event.KindDriverUnavailable:  0.02,
			event.KindNewUrgentOrder:     0.08,
			event.KindCustomerReschedule: 0.05,
			event.KindRoadClosure:        0.02,
		}
	}
	return p
}

// Conditions is a snapshot of the simulated world state.
type Conditions struct {
	// TrafficFactors maps route id (or "global") to the current traffic
	// multiplier; absent means 1.0.
	TrafficFactors map[string]float64 `json:"traffic_factors"`
	WeatherFactor  float64            `json:"weather_factor"`
	VehicleStatus  map[string]dispatch.VehicleStatus `json:"vehicle_status"`
	DriverStatus   map[string]dispatch.DriverStatus  `json:"driver_status"`
	ActiveEvents   []event.Event                     `json:"active_events"`
	Running        bool                              `json:"running"`
}

// RouteSource supplies the active routes the simulator may disturb.
type RouteSource interface {
	ListActive(ctx context.Context) ([]*routing.Route, error)
}

// activeCondition is a live disruption with a countdown to resolution.
type activeCondition struct {
	ev        event.Event
	expiresAt time.Time
}

// Simulator drives the synthetic event loop. Safe for concurrent use.
type Simulator struct {
	mu      sync.Mutex
	params  Params
	pending *Params

	publisher event.Publisher
	routes    RouteSource
	clock     shared.Clock
	rng       *rand.Rand

	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	active   map[string]*activeCondition
	traffic  map[string]float64
	weather  float64
	vehicles map[string]dispatch.VehicleStatus
	drivers  map[string]dispatch.DriverStatus
}

// New creates a stopped simulator. routes may be nil; events then carry no
// entity references. If clock is nil, uses RealClock.
func New(publisher event.Publisher, routes RouteSource, params Params, clock shared.Clock) *Simulator {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	p := params.withDefaults()
	return &Simulator{
		params:    p,
		publisher: publisher,
		routes:    routes,
		clock:     clock,
		rng:       rand.New(rand.NewSource(p.Seed)),
		active:    make(map[string]*activeCondition),
		traffic:   make(map[string]float64),
		weather:   1.0,
		vehicles:  make(map[string]dispatch.VehicleStatus),
		drivers:   make(map[string]dispatch.DriverStatus),
	}
}

// Start launches the tick loop. Idempotent: a no-op when already running.
func (s *Simulator) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	logger := common.LoggerFromContext(ctx)
	logger.Log("INFO", "Condition simulator started", map[string]interface{}{
		"interval": s.params.UpdateInterval.String(),
		"speed":    s.params.Speed,
	})

	go s.loop(common.WithLogger(loopCtx, logger))
}

// Stop halts the loop, resolves all active conditions and restores the
// world state. Idempotent.
func (s *Simulator) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for id := range s.active {
		s.resolveLocked(id, now)
	}
}

// UpdateParams stages a parameter change; it takes effect at the next tick.
func (s *Simulator) UpdateParams(params Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := params.withDefaults()
	s.pending = &p
}

// ForceEvent creates and publishes an event of the given kind immediately,
// bypassing probabilities. overrides may set entity references.
func (s *Simulator) ForceEvent(ctx context.Context, kind event.Kind, overrides map[string]interface{}) event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := s.buildEventLocked(ctx, kind)
	if routeID, ok := overrides["route_id"].(string); ok {
		ev.RouteID = routeID
	}
	if vehicleID, ok := overrides["vehicle_id"].(string); ok {
		ev.VehicleID = vehicleID
	}
	if driverID, ok := overrides["driver_id"].(string); ok {
		ev.DriverID = driverID
	}
	for k, v := range overrides {
		if k == "route_id" || k == "vehicle_id" || k == "driver_id" {
			continue
		}
		ev.Payload[k] = v
	}
	s.activateLocked(ev)
	s.publisher.Publish(ev)
	return ev
}

// Conditions returns a copy of the current world state.
func (s *Simulator) Conditions() Conditions {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Conditions{
		TrafficFactors: make(map[string]float64, len(s.traffic)),
		WeatherFactor:  s.weather,
		VehicleStatus:  make(map[string]dispatch.VehicleStatus, len(s.vehicles)),
		DriverStatus:   make(map[string]dispatch.DriverStatus, len(s.drivers)),
		Running:        s.running,
	}
	for k, v := range s.traffic {
		snap.TrafficFactors[k] = v
	}
	for k, v := range s.vehicles {
		snap.VehicleStatus[k] = v
	}
	for k, v := range s.drivers {
		snap.DriverStatus[k] = v
	}
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		snap.ActiveEvents = append(snap.ActiveEvents, s.active[id].ev)
	}
	return snap
}

func (s *Simulator) loop(ctx context.Context) {
	defer close(s.done)
	for {
		s.mu.Lock()
		interval := time.Duration(float64(s.params.UpdateInterval) / s.params.Speed)
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-sleepCh(s.clock, interval):
		}
		s.tick(ctx)
	}
}

// sleepCh adapts the injected clock to a select-able channel.
func sleepCh(clock shared.Clock, d time.Duration) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		clock.Sleep(d)
		close(ch)
	}()
	return ch
}

// tick runs one simulation step: apply staged params, sample new events,
// expire old ones.
func (s *Simulator) tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		seedChanged := s.pending.Seed != s.params.Seed
		s.params = *s.pending
		s.pending = nil
		if seedChanged {
			s.rng = rand.New(rand.NewSource(s.params.Seed))
		}
	}

	now := s.clock.Now()

	// Expire active conditions.
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !s.active[id].expiresAt.After(now) {
			s.resolveLocked(id, now)
		}
	}

	// Sample fresh disruptions in fixed kind order for determinism.
	kinds := make([]event.Kind, 0, len(s.params.Probabilities))
	for kind := range s.params.Probabilities {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(a, b int) bool { return kinds[a] < kinds[b] })
	for _, kind := range kinds {
		if s.rng.Float64() >= s.params.Probabilities[kind] {
			continue
		}
		ev := s.buildEventLocked(ctx, kind)
		s.activateLocked(ev)
		s.publisher.Publish(ev)
	}
}

// buildEventLocked creates a kind-specific event, attaching a random active
// route when a source is configured.
func (s *Simulator) buildEventLocked(ctx context.Context, kind event.Kind) event.Event {
	now := s.clock.Now()
	ev := event.New(kind, event.SeverityMedium, now)
	ev.TriggersReoptimization = ev.IsDisruption()

	if route := s.pickRouteLocked(ctx); route != nil {
		ev.RouteID = route.ID
		ev.VehicleID = route.VehicleID
		ev.DriverID = route.DriverID
	}

	switch kind {
	case event.KindTrafficDelay:
		factor := 1.5 + s.rng.Float64()*1.5
		ev.Severity = severityForFactor(factor)
		ev.EstimatedDelayMinutes = int(factor * 10)
		ev.Payload["traffic_factor"] = factor
	case event.KindRoadClosure:
		ev.Severity = event.SeverityHigh
		ev.EstimatedDelayMinutes = 30
		ev.Payload["traffic_factor"] = 5.0
	case event.KindWeather:
		factor := 1.2 + s.rng.Float64()*0.8
		ev.Severity = severityForFactor(factor)
		ev.Payload["weather_factor"] = factor
	case event.KindVehicleBreakdown:
		ev.Severity = event.SeverityCritical
	case event.KindDriverUnavailable:
		ev.Severity = event.SeverityCritical
	case event.KindNewUrgentOrder:
		ev.Severity = event.SeverityHigh
	case event.KindCustomerReschedule:
		ev.Severity = event.SeverityMedium
	}
	return ev
}

func severityForFactor(factor float64) event.Severity {
	switch {
	case factor >= 2.5:
		return event.SeverityCritical
	case factor >= 2.0:
		return event.SeverityHigh
	case factor >= 1.5:
		return event.SeverityMedium
	}
	return event.SeverityLow
}

// activateLocked registers the event's condition effects and countdown.
func (s *Simulator) activateLocked(ev event.Event) {
	duration := s.params.MinEventDuration +
		time.Duration(s.rng.Float64()*float64(s.params.MaxEventDuration-s.params.MinEventDuration))
	s.active[ev.ID] = &activeCondition{ev: ev, expiresAt: s.clock.Now().Add(duration)}

	switch ev.Kind {
	case event.KindTrafficDelay, event.KindRoadClosure:
		key := ev.RouteID
		if key == "" {
			key = "global"
		}
		if factor, ok := ev.Payload["traffic_factor"].(float64); ok {
			s.traffic[key] = factor
		}
	case event.KindWeather:
		if factor, ok := ev.Payload["weather_factor"].(float64); ok {
			s.weather = factor
		}
	case event.KindVehicleBreakdown:
		if ev.VehicleID != "" {
			s.vehicles[ev.VehicleID] = dispatch.VehicleStatusMaintenance
		}
	case event.KindDriverUnavailable:
		if ev.DriverID != "" {
			s.drivers[ev.DriverID] = dispatch.DriverStatusOffDuty
		}
	}
}

// resolveLocked expires an active condition: publishes the resolution and
// restores the affected state.
func (s *Simulator) resolveLocked(id string, now time.Time) {
	cond, ok := s.active[id]
	if !ok {
		return
	}
	delete(s.active, id)

	switch cond.ev.Kind {
	case event.KindTrafficDelay, event.KindRoadClosure:
		key := cond.ev.RouteID
		if key == "" {
			key = "global"
		}
		delete(s.traffic, key)
	case event.KindWeather:
		s.weather = 1.0
	case event.KindVehicleBreakdown:
		delete(s.vehicles, cond.ev.VehicleID)
	case event.KindDriverUnavailable:
		delete(s.drivers, cond.ev.DriverID)
	}

	resolved := cond.ev
	resolved.Resolve(now)
	resolved.TriggersReoptimization = false
	s.publisher.Publish(resolved)
}

// pickRouteLocked selects a deterministic random active route, or nil.
func (s *Simulator) pickRouteLocked(ctx context.Context) *routing.Route {
	if s.routes == nil {
		return nil
	}
	routes, err := s.routes.ListActive(ctx)
	if err != nil || len(routes) == 0 {
		return nil
	}
	sort.Slice(routes, func(a, b int) bool { return routes[a].ID < routes[b].ID })
	return routes[s.rng.Intn(len(routes))]
}
