// Package solver implements the VRPTW solver: nearest-feasible insertion
// construction followed by 2-opt and Or-opt guided local search, over integer
// distance/time matrices from the geodata layer.
package solver

import (
	"fmt"
	"time"

	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

const (
	// objectiveBase normalizes the cost and waiting terms of the objective.
	objectiveBase = 1000.0
	// unreachable mirrors the provider sentinel for cells with no road link.
	unreachable = 999999
	costEps     = 1e-9
)

// vehicleDriver is an operational vehicle paired with its driver for the day.
type vehicleDriver struct {
	vehicle *dispatch.Vehicle
	driver  *dispatch.Driver
}

// problem is the immutable solve input in index form. Matrix node 0 is the
// depot; order i sits at node i+1. Orders and pairs are sorted by id so every
// scan over them is deterministic.
type problem struct {
	orders      []*dispatch.Order
	pairs       []vehicleDriver
	depot       shared.Coordinate
	window      shared.TimeWindow
	weights     routing.ObjectiveWeights
	adaptations int
	byKind      map[dispatch.VehicleKind]*routing.Matrices
}

// leg carries the travel edge in km/seconds for a vehicle kind. ok is false
// for unreachable cells.
func (p *problem) leg(kind dispatch.VehicleKind, from, to int) (km float64, seconds int, ok bool) {
	m := p.byKind[kind]
	d := m.DistanceM[from][to]
	t := m.TrafficTimeS[from][to]
	if d >= unreachable || t >= unreachable {
		return 0, 0, false
	}
	return float64(d) / 1000.0, t, true
}

// stopLeg is the evaluated schedule of one delivery on a candidate route.
type stopLeg struct {
	orderIdx int
	// breakBefore is set when the driver takes the mandated break before
	// driving this leg.
	breakBefore  bool
	travel       time.Duration
	distanceKm   float64
	arrival      time.Time
	serviceStart time.Time
	departure    time.Time
	waiting      time.Duration
}

// evaluation is a feasible schedule for one candidate route.
type evaluation struct {
	legs       []stopLeg
	start      time.Time
	finish     time.Time
	returnKm   float64
	returnTime time.Duration
	distanceKm float64
	waiting    time.Duration
	weightKg   float64
	volumeM3   float64
}

func (e *evaluation) duration() time.Duration {
	return e.finish.Sub(e.start)
}

// evaluate schedules seq (order indices) for the pair and checks every hard
// constraint. Returns the schedule, or a diagnostic naming the violated
// constraint and the order it failed on.
func (p *problem) evaluate(seq []int, pair vehicleDriver) (*evaluation, *routing.OrderDiagnostic) {
	veh, drv := pair.vehicle, pair.driver

	if drv.MaxStopsPerRoute > 0 && len(seq) > drv.MaxStopsPerRoute {
		return nil, &routing.OrderDiagnostic{
			OrderID:    p.orders[seq[len(seq)-1]].ID,
			Constraint: routing.ConstraintStopLimit,
			Detail:     fmt.Sprintf("driver %s is limited to %d stops per route", drv.ID, drv.MaxStopsPerRoute),
		}
	}

	var weight, volume float64
	for _, idx := range seq {
		o := p.orders[idx]
		if !drv.CanServe(o) {
			return nil, &routing.OrderDiagnostic{
				OrderID:    o.ID,
				Constraint: routing.ConstraintDriverFlags,
				Detail:     fmt.Sprintf("driver %s cannot handle the order's special handling flags", drv.ID),
			}
		}
		weight += o.WeightKg
		volume += o.VolumeM3
		if !veh.CanCarry(0, 0, weight, volume) {
			return nil, &routing.OrderDiagnostic{
				OrderID:    o.ID,
				Constraint: routing.ConstraintCapacity,
				Detail:     fmt.Sprintf("vehicle %s over capacity at %.1fkg / %.2fm3", veh.ID, weight, volume),
			}
		}
	}

	start := p.window.Start
	dayEnd := p.window.End
	if shift := drv.ShiftWindow(p.window.Start); !shift.IsZero() {
		if shift.Start.After(start) {
			start = shift.Start
		}
		if shift.End.Before(dayEnd) {
			dayEnd = shift.End
		}
	}

	multiplier := drv.Experience.SpeedMultiplier()
	eval := &evaluation{
		start:    start,
		weightKg: weight,
		volumeM3: volume,
		legs:     make([]stopLeg, 0, len(seq)),
	}

	now := start
	prev := 0
	var sinceBreak time.Duration
	for _, idx := range seq {
		o := p.orders[idx]
		km, secs, ok := p.leg(veh.Kind, prev, idx+1)
		if !ok {
			return nil, &routing.OrderDiagnostic{
				OrderID:    o.ID,
				Constraint: routing.ConstraintTimeWindow,
				Detail:     "no road connection to the delivery location",
			}
		}
		travel := time.Duration(float64(secs) * multiplier * float64(time.Second))

		l := stopLeg{orderIdx: idx, travel: travel, distanceKm: km}
		if veh.BreakEvery > 0 && sinceBreak+travel > veh.BreakEvery {
			l.breakBefore = true
			now = now.Add(veh.BreakDuration)
			sinceBreak = 0
		}
		sinceBreak += travel

		l.arrival = now.Add(travel)
		if l.arrival.After(o.TimeWindow.End) {
			return nil, &routing.OrderDiagnostic{
				OrderID:    o.ID,
				Constraint: routing.ConstraintTimeWindow,
				Detail: fmt.Sprintf("would arrive %s, window closes %s",
					l.arrival.Format(time.RFC3339), o.TimeWindow.End.Format(time.RFC3339)),
			}
		}
		l.serviceStart = l.arrival
		if o.TimeWindow.Start.After(l.serviceStart) {
			l.serviceStart = o.TimeWindow.Start
			l.waiting = l.serviceStart.Sub(l.arrival)
		}
		l.departure = l.serviceStart.Add(o.ServiceDuration)

		eval.legs = append(eval.legs, l)
		eval.distanceKm += km
		eval.waiting += l.waiting
		now = l.departure
		prev = idx + 1
	}

	if len(seq) > 0 {
		km, secs, ok := p.leg(veh.Kind, prev, 0)
		if !ok {
			return nil, &routing.OrderDiagnostic{
				OrderID:    p.orders[seq[len(seq)-1]].ID,
				Constraint: routing.ConstraintTimeWindow,
				Detail:     "no road connection back to the depot",
			}
		}
		eval.returnKm = km
		eval.returnTime = time.Duration(float64(secs) * multiplier * float64(time.Second))
		eval.distanceKm += km
		now = now.Add(eval.returnTime)
	}
	eval.finish = now

	if now.After(dayEnd) {
		return nil, &routing.OrderDiagnostic{
			OrderID:    lastOrderID(p, seq),
			Constraint: routing.ConstraintWorkingTime,
			Detail: fmt.Sprintf("would return to depot %s, day ends %s",
				now.Format(time.RFC3339), dayEnd.Format(time.RFC3339)),
		}
	}

	maxWork := veh.MaxWorking
	if drv.MaxWorking > 0 && (maxWork <= 0 || drv.MaxWorking < maxWork) {
		maxWork = drv.MaxWorking
	}
	if maxWork > 0 && eval.duration() > maxWork {
		return nil, &routing.OrderDiagnostic{
			OrderID:    lastOrderID(p, seq),
			Constraint: routing.ConstraintWorkingTime,
			Detail:     fmt.Sprintf("route duration %s exceeds the %s working limit", eval.duration(), maxWork),
		}
	}
	return eval, nil
}

// routeCost is the per-route objective contribution: weighted travel cost,
// waiting time, and the adaptation penalty of the current re-solve round.
// The penalty is zero for a fresh static solve.
func (p *problem) routeCost(eval *evaluation, pair vehicleDriver) float64 {
	travelCost := eval.distanceKm*pair.vehicle.CostPerKm + eval.duration().Hours()*pair.vehicle.CostPerHour
	return p.weights.Alpha*travelCost/objectiveBase +
		p.weights.Beta*eval.waiting.Minutes()/(objectiveBase*0.1) +
		p.weights.Gamma*float64(p.adaptations)/10
}

func lastOrderID(p *problem, seq []int) string {
	if len(seq) == 0 {
		return ""
	}
	return p.orders[seq[len(seq)-1]].ID
}

func insertAt(seq []int, pos, orderIdx int) []int {
	out := make([]int, 0, len(seq)+1)
	out = append(out, seq[:pos]...)
	out = append(out, orderIdx)
	out = append(out, seq[pos:]...)
	return out
}
