package solver

import (
	"sort"

	"github.com/openfleet/lastmile/internal/domain/routing"
)

// candidate is a route under construction: one vehicle/driver pair and its
// current delivery sequence with the evaluated schedule.
type candidate struct {
	pairIdx int
	seq     []int
	eval    *evaluation
	cost    float64
}

// solveState is the mutable search state shared by construction and local
// search.
type solveState struct {
	p        *problem
	routes   []*candidate
	used     []bool
	assigned []bool
	diags    map[int]routing.OrderDiagnostic
}

// construct builds an initial solution by nearest-feasible insertion: orders
// are placed one at a time, highest priority and earliest window first, each
// at the cheapest feasible position across open routes, opening a fresh
// vehicle only when no open route can take the order cheaper.
func construct(p *problem) *solveState {
	s := &solveState{
		p:        p,
		used:     make([]bool, len(p.pairs)),
		assigned: make([]bool, len(p.orders)),
		diags:    make(map[int]routing.OrderDiagnostic),
	}

	order := make([]int, len(p.orders))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		oa, ob := p.orders[order[a]], p.orders[order[b]]
		if ra, rb := oa.Priority.Rank(), ob.Priority.Rank(); ra != rb {
			return ra > rb
		}
		if !oa.TimeWindow.Start.Equal(ob.TimeWindow.Start) {
			return oa.TimeWindow.Start.Before(ob.TimeWindow.Start)
		}
		return oa.ID < ob.ID
	})

	for _, idx := range order {
		s.tryInsert(idx)
	}
	return s
}

// tryInsert places the order at its cheapest feasible position, recording a
// diagnostic when nothing fits.
func (s *solveState) tryInsert(orderIdx int) bool {
	type insertion struct {
		routeIdx int // -1 when opening a new route
		pairIdx  int
		seq      []int
		eval     *evaluation
		delta    float64
	}

	var best *insertion
	var lastDiag *routing.OrderDiagnostic
	orderID := s.p.orders[orderIdx].ID

	for ri, c := range s.routes {
		pair := s.p.pairs[c.pairIdx]
		for pos := 0; pos <= len(c.seq); pos++ {
			seq := insertAt(c.seq, pos, orderIdx)
			eval, diag := s.p.evaluate(seq, pair)
			if diag != nil {
				if diag.OrderID == orderID {
					lastDiag = diag
				}
				continue
			}
			delta := s.p.routeCost(eval, pair) - c.cost
			if best == nil || delta < best.delta-costEps {
				best = &insertion{routeIdx: ri, pairIdx: c.pairIdx, seq: seq, eval: eval, delta: delta}
			}
		}
	}

	// Opening a fresh vehicle: the first unused pair that can take the order,
	// scanned in id order.
	for pi := range s.p.pairs {
		if s.used[pi] {
			continue
		}
		seq := []int{orderIdx}
		eval, diag := s.p.evaluate(seq, s.p.pairs[pi])
		if diag != nil {
			lastDiag = diag
			continue
		}
		delta := s.p.routeCost(eval, s.p.pairs[pi])
		if best == nil || delta < best.delta-costEps {
			best = &insertion{routeIdx: -1, pairIdx: pi, seq: seq, eval: eval, delta: delta}
		}
		break
	}

	if best == nil {
		if lastDiag == nil {
			lastDiag = &routing.OrderDiagnostic{
				OrderID:    orderID,
				Constraint: routing.ConstraintWorkingTime,
				Detail:     "no vehicle and driver pair available",
			}
		}
		s.diags[orderIdx] = *lastDiag
		return false
	}

	pair := s.p.pairs[best.pairIdx]
	if best.routeIdx >= 0 {
		c := s.routes[best.routeIdx]
		c.seq = best.seq
		c.eval = best.eval
		c.cost = s.p.routeCost(best.eval, pair)
	} else {
		s.routes = append(s.routes, &candidate{
			pairIdx: best.pairIdx,
			seq:     best.seq,
			eval:    best.eval,
			cost:    s.p.routeCost(best.eval, pair),
		})
		s.used[best.pairIdx] = true
		sort.SliceStable(s.routes, func(a, b int) bool {
			return s.routes[a].pairIdx < s.routes[b].pairIdx
		})
	}
	s.assigned[orderIdx] = true
	delete(s.diags, orderIdx)
	return true
}

// retryUnassigned re-attempts insertion of unassigned orders after local
// search has compacted the routes.
func (s *solveState) retryUnassigned() {
	idxs := make([]int, 0, len(s.diags))
	for idx := range s.diags {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	for _, idx := range idxs {
		s.tryInsert(idx)
	}
}

// diagnostics returns unassigned-order diagnostics sorted by order id.
func (s *solveState) diagnostics() []routing.OrderDiagnostic {
	out := make([]routing.OrderDiagnostic, 0, len(s.diags))
	for _, d := range s.diags {
		out = append(out, d)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].OrderID < out[b].OrderID })
	return out
}

// totalCost sums route costs; the vehicle count breaks ties toward smaller
// fleets.
func (s *solveState) totalCost() float64 {
	total := 0.0
	for _, c := range s.routes {
		total += c.cost
	}
	return total
}

// dropEmptyRoutes releases vehicles whose route lost all deliveries during
// local search.
func (s *solveState) dropEmptyRoutes() {
	kept := s.routes[:0]
	for _, c := range s.routes {
		if len(c.seq) == 0 {
			s.used[c.pairIdx] = false
			continue
		}
		kept = append(kept, c)
	}
	s.routes = kept
}
