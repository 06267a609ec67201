package routing

import (
	"fmt"
	"strings"
	"time"

	"github.com/openfleet/lastmile/internal/domain/shared"
)

// ObjectiveWeights are the (alpha, beta, gamma) weights of the solver
// objective: travel cost, waiting time, adaptation penalty. They are
// normalized to sum to one before use.
type ObjectiveWeights struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// Normalized returns weights scaled to sum to one. Zero weights fall back to
// the configured default split.
func (w ObjectiveWeights) Normalized() ObjectiveWeights {
	sum := w.Alpha + w.Beta + w.Gamma
	if sum <= 0 {
		return ObjectiveWeights{Alpha: 0.6, Beta: 0.3, Gamma: 0.1}
	}
	return ObjectiveWeights{Alpha: w.Alpha / sum, Beta: w.Beta / sum, Gamma: w.Gamma / sum}
}

// SolverStats describes how a solution was found.
type SolverStats struct {
	ConstructionMs   int64 `json:"construction_ms"`
	ImprovementMs    int64 `json:"improvement_ms"`
	Iterations       int   `json:"iterations"`
	Improvements     int   `json:"improvements"`
	MatrixDegraded   bool  `json:"matrix_degraded"`
	TimedOut         bool  `json:"timed_out"`
	VehiclesUsed     int   `json:"vehicles_used"`
	OrdersAssigned   int   `json:"orders_assigned"`
	OrdersUnassigned int   `json:"orders_unassigned"`
}

// Solution is the output of a static solve.
type Solution struct {
	Routes          []*Route
	TotalDistanceKm float64
	TotalDuration   time.Duration
	ObjectiveValue  float64
	Stats           SolverStats

	// Unassigned carries per-order diagnostics when a timed-out solve
	// returns a partial solution.
	Unassigned []OrderDiagnostic
}

// OrderDiagnostic explains why an order could not be routed.
type OrderDiagnostic struct {
	OrderID    string `json:"order_id"`
	Constraint string `json:"constraint"`
	Detail     string `json:"detail"`
}

// Constraint names used in diagnostics.
const (
	ConstraintTimeWindow  = "time_window"
	ConstraintCapacity    = "capacity"
	ConstraintWorkingTime = "working_time"
	ConstraintStopLimit   = "stop_limit"
	ConstraintDriverFlags = "driver_flags"
)

// NoFeasibleSolutionError reports a solve that could not place every order.
type NoFeasibleSolutionError struct {
	*shared.DomainError
	Diagnostics []OrderDiagnostic
}

// NewNoFeasibleSolutionError builds the error from per-order diagnostics.
func NewNoFeasibleSolutionError(diagnostics []OrderDiagnostic) *NoFeasibleSolutionError {
	parts := make([]string, 0, len(diagnostics))
	for _, d := range diagnostics {
		parts = append(parts, fmt.Sprintf("%s (%s)", d.OrderID, d.Constraint))
	}
	return &NoFeasibleSolutionError{
		DomainError: shared.NewDomainError(shared.KindNoFeasibleSolution,
			fmt.Sprintf("no feasible solution: %s", strings.Join(parts, ", "))),
		Diagnostics: diagnostics,
	}
}

// Unwrap exposes the embedded DomainError to errors.As, so KindOf sees
// KindNoFeasibleSolution through the wrapper.
func (e *NoFeasibleSolutionError) Unwrap() error {
	return e.DomainError
}
