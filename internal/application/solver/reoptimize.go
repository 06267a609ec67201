package solver

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

const defaultSegmentTimeLimit = 5 * time.Second

// segmentProblem is the single-route re-order problem: reorder the pending
// deliveries of an active route, anchored at the vehicle's current position,
// ending at the depot. Matrix node 0 is the anchor, deliveries follow, the
// depot is last.
type segmentProblem struct {
	deliveries []*routing.Stop
	orders     []*dispatch.Order // parallel to deliveries
	anchor     shared.Coordinate
	m          *routing.Matrices
	multiplier float64 // driver experience x trigger traffic factor
	now        time.Time
	shiftEnd   time.Time // zero when the driver has no shift configured
	weights    routing.ObjectiveWeights
	vehicle    *dispatch.Vehicle
}

type tailEval struct {
	legs       []stopLeg // orderIdx indexes sp.deliveries
	finish     time.Time
	returnKm   float64
	returnTime time.Duration
	distanceKm float64
	waiting    time.Duration
}

// ReoptimizeSegment reorders the pending stops of one route. Executed and
// in-progress stops are never touched. Returns a nil result when no
// improving feasible order exists.
func (s *Solver) ReoptimizeSegment(ctx context.Context, req routing.SegmentRequest) (*routing.SegmentResult, error) {
	if req.Route == nil || req.Vehicle == nil || req.Driver == nil {
		return nil, shared.NewDomainError(shared.KindInvalidInput, "segment request is missing route, vehicle or driver")
	}

	tail := req.Route.RemainingStops()
	var deliveries []*routing.Stop
	var depotStop *routing.Stop
	firstSeq := -1
	for _, stop := range tail {
		if firstSeq < 0 || stop.Sequence < firstSeq {
			firstSeq = stop.Sequence
		}
		switch stop.Kind {
		case routing.StopKindDelivery:
			deliveries = append(deliveries, stop)
		case routing.StopKindDepot:
			depotStop = stop
		}
		// Pending break stops are dropped and re-derived from the new order.
	}
	if len(deliveries) < 2 || depotStop == nil {
		return nil, nil
	}

	byID := make(map[string]*dispatch.Order, len(req.Orders))
	for _, o := range req.Orders {
		byID[o.ID] = o
	}
	orders := make([]*dispatch.Order, len(deliveries))
	for i, stop := range deliveries {
		o, ok := byID[stop.OrderID]
		if !ok {
			return nil, shared.NewDomainError(shared.KindInvalidInput,
				fmt.Sprintf("segment request is missing order %s for stop %s", stop.OrderID, stop.ID))
		}
		orders[i] = o
	}

	anchor := req.Route.Stops[0].Coordinate
	if firstSeq > 0 {
		anchor = req.Route.Stops[firstSeq-1].Coordinate
	}

	locations := make([]shared.Coordinate, 0, len(deliveries)+2)
	locations = append(locations, anchor)
	for _, stop := range deliveries {
		locations = append(locations, stop.Coordinate)
	}
	locations = append(locations, depotStop.Coordinate)

	m, err := s.matrices.SquareMatrix(ctx, locations, req.Now, req.Vehicle.Kind)
	if err != nil {
		return nil, err
	}

	multiplier := req.Driver.Experience.SpeedMultiplier()
	if factor, ok := req.Trigger.Payload["traffic_factor"].(float64); ok && factor > 0 {
		multiplier *= factor
	}
	var shiftEnd time.Time
	if shift := req.Driver.ShiftWindow(req.Now); !shift.IsZero() {
		shiftEnd = shift.End
	}

	sp := &segmentProblem{
		deliveries: deliveries,
		orders:     orders,
		anchor:     anchor,
		m:          m,
		multiplier: multiplier,
		now:        req.Now,
		shiftEnd:   shiftEnd,
		weights:    req.Weights.Normalized(),
		vehicle:    req.Vehicle,
	}

	limit := req.TimeLimit
	if limit <= 0 {
		limit = defaultSegmentTimeLimit
	}
	deadline := s.clock.Now().Add(limit)

	baseline := identityPerm(len(deliveries))
	baselineKm := sp.pathKm(baseline)

	best := baseline
	bestEval, bestDiag := sp.evaluate(baseline)
	bestCost := 0.0
	if bestDiag == nil {
		bestCost = sp.cost(bestEval)
	}

	improved := true
	for improved && s.clock.Now().Before(deadline) {
		improved = false
		for i := 0; i < len(best)-1; i++ {
			for j := i + 1; j < len(best); j++ {
				perm := reverseSegment(best, i, j)
				eval, diag := sp.evaluate(perm)
				if diag != nil {
					continue
				}
				cost := sp.cost(eval)
				if bestDiag != nil || cost < bestCost-costEps {
					best, bestEval, bestCost, bestDiag = perm, eval, cost, nil
					improved = true
				}
			}
		}
	}

	if bestDiag != nil || samePerm(best, baseline) {
		return nil, nil
	}
	improvementKm := baselineKm - bestEval.distanceKm
	if improvementKm <= costEps {
		return nil, nil
	}

	newTail, err := sp.buildTail(best, bestEval, depotStop, firstSeq)
	if err != nil {
		return nil, err
	}
	return &routing.SegmentResult{NewTail: newTail, ImprovementKm: improvementKm}, nil
}

// evaluate schedules the permutation from the anchor at now, honoring order
// windows and break rules.
func (sp *segmentProblem) evaluate(perm []int) (*tailEval, *routing.OrderDiagnostic) {
	n := len(sp.deliveries)
	eval := &tailEval{legs: make([]stopLeg, 0, n)}

	now := sp.now
	prev := 0
	var sinceBreak time.Duration
	for _, di := range perm {
		o := sp.orders[di]
		km, secs, ok := sp.leg(prev, di+1)
		if !ok {
			return nil, &routing.OrderDiagnostic{OrderID: o.ID, Constraint: routing.ConstraintTimeWindow, Detail: "no road connection"}
		}
		travel := time.Duration(float64(secs) * sp.multiplier * float64(time.Second))

		l := stopLeg{orderIdx: di, travel: travel, distanceKm: km}
		if sp.vehicle.BreakEvery > 0 && sinceBreak+travel > sp.vehicle.BreakEvery {
			l.breakBefore = true
			now = now.Add(sp.vehicle.BreakDuration)
			sinceBreak = 0
		}
		sinceBreak += travel

		l.arrival = now.Add(travel)
		if l.arrival.After(o.TimeWindow.End) {
			return nil, &routing.OrderDiagnostic{
				OrderID:    o.ID,
				Constraint: routing.ConstraintTimeWindow,
				Detail:     fmt.Sprintf("would arrive after window end %s", o.TimeWindow.End.Format(time.RFC3339)),
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
		prev = di + 1
	}

	km, secs, ok := sp.leg(prev, n+1)
	if !ok {
		last := sp.orders[perm[len(perm)-1]]
		return nil, &routing.OrderDiagnostic{OrderID: last.ID, Constraint: routing.ConstraintTimeWindow, Detail: "no road connection back to the depot"}
	}
	eval.returnKm = km
	eval.returnTime = time.Duration(float64(secs) * sp.multiplier * float64(time.Second))
	eval.distanceKm += km
	eval.finish = now.Add(eval.returnTime)

	if !sp.shiftEnd.IsZero() && eval.finish.After(sp.shiftEnd) {
		last := sp.orders[perm[len(perm)-1]]
		return nil, &routing.OrderDiagnostic{
			OrderID:    last.ID,
			Constraint: routing.ConstraintWorkingTime,
			Detail:     fmt.Sprintf("would end after the driver shift at %s", sp.shiftEnd.Format(time.RFC3339)),
		}
	}
	return eval, nil
}

func (sp *segmentProblem) leg(from, to int) (float64, int, bool) {
	d := sp.m.DistanceM[from][to]
	t := sp.m.TrafficTimeS[from][to]
	if d >= unreachable || t >= unreachable {
		return 0, 0, false
	}
	return float64(d) / 1000.0, t, true
}

// cost scores a permutation. The adaptation penalty is the same for every
// permutation of one route, so it drops out of the comparison.
func (sp *segmentProblem) cost(eval *tailEval) float64 {
	travelCost := eval.distanceKm*sp.vehicle.CostPerKm + eval.finish.Sub(sp.now).Hours()*sp.vehicle.CostPerHour
	return sp.weights.Alpha*travelCost/objectiveBase +
		sp.weights.Beta*eval.waiting.Minutes()/(objectiveBase*0.1)
}

// pathKm sums leg distances ignoring feasibility, for improvement reporting.
func (sp *segmentProblem) pathKm(perm []int) float64 {
	total := 0.0
	prev := 0
	for _, di := range perm {
		total += float64(sp.m.DistanceM[prev][di+1]) / 1000.0
		prev = di + 1
	}
	total += float64(sp.m.DistanceM[prev][len(sp.deliveries)+1]) / 1000.0
	return total
}

// buildTail rewrites the pending stops in the improved order, re-deriving
// schedules and break stops. Stop identity is preserved for deliveries.
func (sp *segmentProblem) buildTail(perm []int, eval *tailEval, depotStop *routing.Stop, firstSeq int) ([]*routing.Stop, error) {
	tail := make([]*routing.Stop, 0, len(perm)+2)
	seq := firstSeq

	prevCoord := sp.anchor
	prevDeparture := sp.now
	for _, l := range eval.legs {
		if l.breakBefore {
			br, err := routing.NewStop(uuid.NewString(), depotStop.RouteID, routing.StopKindBreak, seq, prevCoord)
			if err != nil {
				return nil, err
			}
			if err := br.SetSchedule(prevDeparture, prevDeparture.Add(sp.vehicle.BreakDuration)); err != nil {
				return nil, err
			}
			tail = append(tail, br)
			seq++
			prevDeparture = br.PlannedDeparture
		}

		stop := sp.deliveries[l.orderIdx]
		stop.Sequence = seq
		stop.DistanceFromPrevKm = l.distanceKm
		stop.TravelFromPrev = l.travel
		if err := stop.SetSchedule(l.arrival, l.departure); err != nil {
			return nil, err
		}
		tail = append(tail, stop)
		seq++

		prevCoord = stop.Coordinate
		prevDeparture = l.departure
	}

	depotStop.Sequence = seq
	depotStop.DistanceFromPrevKm = eval.returnKm
	depotStop.TravelFromPrev = eval.returnTime
	if err := depotStop.SetSchedule(eval.finish, eval.finish); err != nil {
		return nil, err
	}
	tail = append(tail, depotStop)
	return tail, nil
}

func identityPerm(n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	return perm
}

func samePerm(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
