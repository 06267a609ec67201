package adaptive

import (
	"fmt"
	"time"

	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/event"
	"github.com/openfleet/lastmile/internal/domain/routing"
)

// Trigger is a detected condition that may cause a route re-solve. Severity
// is normalized to [0, 1]; Immediate triggers bypass the cooldown.
type Trigger struct {
	Kind      event.Kind
	Severity  float64
	Immediate bool
	Detail    string
	// Event is the originating bus event, or a synthetic one for triggers
	// detected by the monitor pass.
	Event event.Event
}

// routeContext bundles the entities a trigger evaluation needs.
type routeContext struct {
	route   *routing.Route
	vehicle *dispatch.Vehicle
	driver  *dispatch.Driver
}

// evaluateTriggers inspects one route against the current world state and
// returns every firing trigger. now comes from the optimizer's clock.
func (o *Optimizer) evaluateTriggers(rc routeContext, now time.Time) []Trigger {
	var triggers []Trigger

	// Delay: the vehicle is past the planned arrival of its current stop.
	if current := rc.route.CurrentStop(); current != nil && current.Kind != routing.StopKindDepot && !current.IsFinished() {
		delay := now.Sub(current.PlannedArrival)
		if delay > o.cfg.DelayThreshold {
			sev := clamp01(delay.Minutes() / (3 * o.cfg.DelayThreshold.Minutes()))
			ev := event.New(event.KindTrafficDelay, severityLevel(sev), now)
			ev.RouteID = rc.route.ID
			ev.EstimatedDelayMinutes = int(delay.Minutes())
			triggers = append(triggers, Trigger{
				Kind:      event.KindTrafficDelay,
				Severity:  sev,
				Immediate: delay > 2*o.cfg.DelayThreshold,
				Detail:    fmt.Sprintf("stop %d is %.0f minutes late", current.Sequence, delay.Minutes()),
				Event:     ev,
			})
		}
	}

	// Traffic: live conditions report a factor above the threshold for this
	// route or globally.
	if o.conditions != nil {
		snap := o.conditions.Conditions()
		factor := snap.TrafficFactors[rc.route.ID]
		if g := snap.TrafficFactors["global"]; g > factor {
			factor = g
		}
		if factor > o.cfg.TrafficThreshold {
			sev := clamp01(factor - 1)
			ev := event.New(event.KindTrafficDelay, severityLevel(sev), now)
			ev.RouteID = rc.route.ID
			ev.Payload["traffic_factor"] = factor
			triggers = append(triggers, Trigger{
				Kind:     event.KindTrafficDelay,
				Severity: sev,
				Detail:   fmt.Sprintf("traffic factor %.2f exceeds threshold %.2f", factor, o.cfg.TrafficThreshold),
				Event:    ev,
			})
		}
	}

	// Vehicle breakdown.
	if rc.vehicle != nil && !rc.vehicle.IsOperational() {
		ev := event.New(event.KindVehicleBreakdown, event.SeverityCritical, now)
		ev.RouteID = rc.route.ID
		ev.VehicleID = rc.vehicle.ID
		triggers = append(triggers, Trigger{
			Kind:      event.KindVehicleBreakdown,
			Severity:  1.0,
			Immediate: true,
			Detail:    fmt.Sprintf("vehicle %s is %s", rc.vehicle.ID, rc.vehicle.Status),
			Event:     ev,
		})
	}

	// Driver unavailable. on_route is the normal state while driving and
	// on_break is a planned pause, not a disruption.
	if rc.driver != nil && rc.driver.Status != dispatch.DriverStatusAvailable &&
		rc.driver.Status != dispatch.DriverStatusOnRoute && rc.driver.Status != dispatch.DriverStatusOnBreak {
		ev := event.New(event.KindDriverUnavailable, event.SeverityCritical, now)
		ev.RouteID = rc.route.ID
		ev.DriverID = rc.driver.ID
		triggers = append(triggers, Trigger{
			Kind:      event.KindDriverUnavailable,
			Severity:  0.9,
			Immediate: true,
			Detail:    fmt.Sprintf("driver %s is %s", rc.driver.ID, rc.driver.Status),
			Event:     ev,
		})
	}

	return triggers
}

// severityLevel buckets a normalized severity into the event scale.
func severityLevel(sev float64) event.Severity {
	switch {
	case sev >= 0.9:
		return event.SeverityCritical
	case sev >= 0.7:
		return event.SeverityHigh
	case sev >= 0.4:
		return event.SeverityMedium
	}
	return event.SeverityLow
}

// triggerFromEvent converts a bus event into a trigger for its route.
func triggerFromEvent(ev event.Event) (Trigger, bool) {
	switch ev.Kind {
	case event.KindTrafficDelay, event.KindRoadClosure:
		factor := 1.5
		if f, ok := ev.Payload["traffic_factor"].(float64); ok && f > 0 {
			factor = f
		}
		return Trigger{
			Kind:     event.KindTrafficDelay,
			Severity: clamp01(factor - 1),
			Detail:   fmt.Sprintf("traffic factor %.2f reported", factor),
			Event:    ev,
		}, true
	case event.KindVehicleBreakdown:
		return Trigger{Kind: ev.Kind, Severity: 1.0, Immediate: true, Detail: "vehicle breakdown reported", Event: ev}, true
	case event.KindDriverUnavailable:
		return Trigger{Kind: ev.Kind, Severity: 0.9, Immediate: true, Detail: "driver unavailable", Event: ev}, true
	case event.KindNewUrgentOrder:
		return Trigger{Kind: ev.Kind, Severity: 0.8, Detail: "urgent order near route", Event: ev}, true
	case event.KindCustomerReschedule:
		return Trigger{Kind: ev.Kind, Severity: 0.5, Detail: "customer rescheduled a window", Event: ev}, true
	case event.KindManualIntervention:
		return Trigger{Kind: ev.Kind, Severity: 0.6, Immediate: true, Detail: "manual reoptimization requested", Event: ev}, true
	case event.KindWeather:
		factor := 1.2
		if f, ok := ev.Payload["weather_factor"].(float64); ok && f > 0 {
			factor = f
		}
		return Trigger{
			Kind:     ev.Kind,
			Severity: clamp01((factor - 1) / 2),
			Detail:   fmt.Sprintf("weather factor %.2f", factor),
			Event:    ev,
		}, true
	}
	return Trigger{}, false
}

// Strategy is the scope of a re-solve.
type Strategy string

const (
	StrategyLocal     Strategy = "local"
	StrategyGlobal    Strategy = "global"
	StrategyEmergency Strategy = "emergency"
)

// selectStrategy aggregates the firing triggers into a strategy decision.
func selectStrategy(triggers []Trigger) Strategy {
	maxSeverity := 0.0
	for _, tr := range triggers {
		if tr.Kind == event.KindVehicleBreakdown || tr.Kind == event.KindDriverUnavailable {
			return StrategyEmergency
		}
		if tr.Severity > maxSeverity {
			maxSeverity = tr.Severity
		}
	}
	if maxSeverity > 0.8 || len(triggers) >= 3 {
		return StrategyGlobal
	}
	return StrategyLocal
}

func maxSeverity(triggers []Trigger) float64 {
	m := 0.0
	for _, tr := range triggers {
		if tr.Severity > m {
			m = tr.Severity
		}
	}
	return m
}

func anyImmediate(triggers []Trigger) bool {
	for _, tr := range triggers {
		if tr.Immediate {
			return true
		}
	}
	return false
}

func triggerKinds(triggers []Trigger) []string {
	kinds := make([]string, 0, len(triggers))
	for _, tr := range triggers {
		kinds = append(kinds, string(tr.Kind))
	}
	return kinds
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
