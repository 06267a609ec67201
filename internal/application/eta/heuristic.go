package eta

import (
	"context"
	"time"

	"github.com/openfleet/lastmile/internal/domain/dispatch"
)

// Base free-flow speeds by vehicle kind, km/h.
var baseSpeedKmh = map[dispatch.VehicleKind]float64{
	dispatch.VehicleKindDriving: 40,
	dispatch.VehicleKindTruck:   30,
}

// HeuristicPredictor is the always-available rule-based predictor.
// It is pure: identical inputs yield identical predictions.
type HeuristicPredictor struct{}

// NewHeuristicPredictor creates the rule-based predictor.
func NewHeuristicPredictor() *HeuristicPredictor {
	return &HeuristicPredictor{}
}

var _ Predictor = (*HeuristicPredictor)(nil)

// Predict estimates travel time from base speed adjusted for traffic,
// weather, driver experience and delivery complexity.
func (p *HeuristicPredictor) Predict(_ context.Context, in Input) Prediction {
	in = normalize(in)

	speed := baseSpeedKmh[in.VehicleKind]
	if speed <= 0 {
		speed = baseSpeedKmh[dispatch.VehicleKindDriving]
	}
	// Traffic and weather slow effective speed proportionally.
	speed = speed / in.TrafficFactor / in.WeatherFactor

	travelMin := in.DistanceKm / speed * 60
	travelMin *= in.Experience.SpeedMultiplier()

	// Complexity adds handling overhead plus per-stop service time.
	travelMin += (in.Complexity - 1) * 10
	serviceMin := serviceMinutes(in.Complexity)

	total := travelMin + serviceMin

	confidence := 0.8
	if in.TrafficFactor > 1.5 {
		confidence -= 0.15
	}
	if in.WeatherFactor > 1.3 {
		confidence -= 0.1
	}
	if in.Complexity > 2 {
		confidence -= 0.1
	}

	return Prediction{
		ETA:            in.DepartAt.Add(time.Duration(total * float64(time.Minute))),
		Minutes:        total,
		ServiceMinutes: serviceMin,
		Confidence:     clampConfidence(confidence),
		Method:         MethodHeuristic,
	}
}
