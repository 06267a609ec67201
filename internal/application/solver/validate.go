package solver

import (
	"fmt"

	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// validateSolveRequest rejects structurally invalid input before any matrix
// is fetched. Constraint infeasibility is not checked here; it surfaces as
// per-order diagnostics from the solve itself.
func validateSolveRequest(req routing.SolveRequest) error {
	if len(req.Orders) == 0 {
		return shared.NewDomainError(shared.KindInvalidInput, "solve request has no orders")
	}
	if len(req.Vehicles) == 0 {
		return shared.NewDomainError(shared.KindInvalidInput, "solve request has no vehicles")
	}
	if len(req.Drivers) == 0 {
		return shared.NewDomainError(shared.KindInvalidInput, "solve request has no drivers")
	}
	if !req.DepotWindow.Start.Before(req.DepotWindow.End) {
		return shared.NewDomainError(shared.KindInvalidInput, "depot window start must precede end")
	}
	if req.Weights.Alpha < 0 || req.Weights.Beta < 0 || req.Weights.Gamma < 0 {
		return shared.NewDomainError(shared.KindInvalidInput, "objective weights cannot be negative")
	}

	var totalWeight, totalVolume float64
	seen := make(map[string]struct{}, len(req.Orders))
	for _, o := range req.Orders {
		if o.ID == "" {
			return shared.NewDomainError(shared.KindInvalidInput, "order id cannot be empty")
		}
		if _, dup := seen[o.ID]; dup {
			return shared.NewDomainError(shared.KindInvalidInput,
				fmt.Sprintf("duplicate order id %s", o.ID))
		}
		seen[o.ID] = struct{}{}

		if !o.TimeWindow.Start.Before(o.TimeWindow.End) {
			return shared.NewDomainError(shared.KindInvalidInput,
				fmt.Sprintf("order %s time window start must precede end", o.ID))
		}
		if !o.TimeWindow.Overlaps(req.DepotWindow) {
			return shared.NewDomainError(shared.KindTimeWindowViolation,
				fmt.Sprintf("order %s time window lies outside the planning day", o.ID))
		}
		if o.WeightKg < 0 || o.VolumeM3 < 0 {
			return shared.NewDomainError(shared.KindInvalidInput,
				fmt.Sprintf("order %s has negative demand", o.ID))
		}
		totalWeight += o.WeightKg
		totalVolume += o.VolumeM3
	}

	// Aggregate demand must fit the fleet; per-vehicle fit is checked during
	// the solve.
	var fleetWeight, fleetVolume float64
	for _, v := range req.Vehicles {
		fleetWeight += v.MaxWeightKg
		fleetVolume += v.MaxVolumeM3
	}
	if totalWeight > fleetWeight {
		return shared.NewDomainError(shared.KindCapacityViolation,
			fmt.Sprintf("total demand %.1fkg exceeds fleet capacity %.1fkg", totalWeight, fleetWeight))
	}
	if totalVolume > fleetVolume {
		return shared.NewDomainError(shared.KindCapacityViolation,
			fmt.Sprintf("total demand %.2fm3 exceeds fleet capacity %.2fm3", totalVolume, fleetVolume))
	}
	return nil
}
