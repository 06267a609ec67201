package solver

import (
	"time"

	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// maxChainLength bounds the Or-opt relocation chain.
const maxChainLength = 3

// improver runs guided local search over a constructed solution until no move
// improves, the deadline passes, or the context is cancelled. Moves are
// scanned in a fixed order so the search is deterministic.
type improver struct {
	s        *solveState
	clock    shared.Clock
	deadline time.Time
	stats    *routing.SolverStats
}

func improve(s *solveState, clock shared.Clock, deadline time.Time, stats *routing.SolverStats) {
	im := &improver{s: s, clock: clock, deadline: deadline, stats: stats}
	for {
		improved := false
		if im.twoOptPass() {
			improved = true
		}
		if im.expired() {
			return
		}
		if im.orOptPass() {
			improved = true
		}
		if im.expired() || !improved {
			return
		}
	}
}

func (im *improver) expired() bool {
	if !im.clock.Now().Before(im.deadline) {
		im.stats.TimedOut = true
		return true
	}
	return false
}

// twoOptPass reverses subsequences within each route, accepting the first
// strict improvement and restarting the route scan.
func (im *improver) twoOptPass() bool {
	improvedAny := false
	for _, c := range im.s.routes {
		pair := im.s.p.pairs[c.pairIdx]
	restart:
		if im.expired() {
			return improvedAny
		}
		for i := 0; i < len(c.seq)-1; i++ {
			for j := i + 1; j < len(c.seq); j++ {
				im.stats.Iterations++
				seq := reverseSegment(c.seq, i, j)
				eval, diag := im.s.p.evaluate(seq, pair)
				if diag != nil {
					continue
				}
				cost := im.s.p.routeCost(eval, pair)
				if cost < c.cost-costEps {
					c.seq, c.eval, c.cost = seq, eval, cost
					im.stats.Improvements++
					improvedAny = true
					goto restart
				}
			}
		}
	}
	return improvedAny
}

// orOptPass relocates chains of 1..3 consecutive deliveries within and across
// routes. A move is accepted on a strict total-cost improvement, or at equal
// cost when it empties a route (fewer vehicles win ties).
func (im *improver) orOptPass() bool {
	improvedAny := false
restart:
	if im.expired() {
		return improvedAny
	}
	for si, src := range im.s.routes {
		srcPair := im.s.p.pairs[src.pairIdx]
		for chain := 1; chain <= maxChainLength; chain++ {
			for from := 0; from+chain <= len(src.seq); from++ {
				moved := src.seq[from : from+chain]
				rest := removeSegment(src.seq, from, chain)

				restEval, restDiag := im.s.p.evaluate(rest, srcPair)
				if restDiag != nil {
					continue
				}
				restCost := im.s.p.routeCost(restEval, srcPair)

				for ti, dst := range im.s.routes {
					dstPair := im.s.p.pairs[dst.pairIdx]
					base := dst.seq
					if ti == si {
						base = rest
					}
					for pos := 0; pos <= len(base); pos++ {
						if ti == si && pos == from {
							continue
						}
						im.stats.Iterations++
						seq := insertChain(base, pos, moved)
						eval, diag := im.s.p.evaluate(seq, dstPair)
						if diag != nil {
							continue
						}
						cost := im.s.p.routeCost(eval, dstPair)

						var delta float64
						if ti == si {
							delta = cost - src.cost
						} else {
							delta = cost + restCost - dst.cost - src.cost
						}
						emptiesSrc := ti != si && len(rest) == 0
						if delta < -costEps || (emptiesSrc && delta < costEps) {
							if ti == si {
								src.seq, src.eval, src.cost = seq, eval, cost
							} else {
								dst.seq, dst.eval, dst.cost = seq, eval, cost
								src.seq, src.eval, src.cost = rest, restEval, restCost
								im.s.dropEmptyRoutes()
							}
							im.stats.Improvements++
							improvedAny = true
							goto restart
						}
					}
				}
			}
		}
	}
	return improvedAny
}

func reverseSegment(seq []int, i, j int) []int {
	out := make([]int, len(seq))
	copy(out, seq)
	for a, b := i, j; a < b; a, b = a+1, b-1 {
		out[a], out[b] = out[b], out[a]
	}
	return out
}

func removeSegment(seq []int, from, n int) []int {
	out := make([]int, 0, len(seq)-n)
	out = append(out, seq[:from]...)
	out = append(out, seq[from+n:]...)
	return out
}

func insertChain(seq []int, pos int, chain []int) []int {
	out := make([]int, 0, len(seq)+len(chain))
	out = append(out, seq[:pos]...)
	out = append(out, chain...)
	out = append(out, seq[pos:]...)
	return out
}
