// Package eta predicts travel times for route stops. Two predictors coexist
// behind one interface: an always-available heuristic and an optional linear
// model trained offline. The registry picks the implementation at boot from
// configuration; the model transparently falls back to the heuristic until it
// has been trained.
package eta

import (
	"context"
	"time"

	"github.com/openfleet/lastmile/internal/domain/dispatch"
)

// Method identifies which predictor produced a prediction.
type Method string

const (
	MethodHeuristic Method = "heuristic"
	MethodModel     Method = "model"
)

// Input are the features of a single travel-time prediction.
type Input struct {
	DistanceKm    float64
	TrafficFactor float64
	DepartAt      time.Time
	Experience    dispatch.ExperienceLevel
	VehicleKind   dispatch.VehicleKind
	// Complexity grades the delivery (1 = simple doorstep, higher = harder).
	Complexity    float64
	WeatherFactor float64
}

// Prediction is a travel-time estimate with confidence in [0.3, 0.95].
// Minutes covers the whole stop, travel plus on-site service;
// ServiceMinutes is the service portion so callers can schedule arrival
// and departure without counting service twice.
type Prediction struct {
	ETA            time.Time `json:"eta"`
	Minutes        float64   `json:"minutes"`
	ServiceMinutes float64   `json:"service_minutes"`
	Confidence     float64   `json:"confidence"`
	Method         Method    `json:"method"`
}

// Predictor maps trip features to a travel-time estimate.
type Predictor interface {
	Predict(ctx context.Context, in Input) Prediction
}

// serviceMinutes is the baseline on-site handling time for a delivery of
// the given complexity.
func serviceMinutes(complexity float64) float64 {
	return 15 * complexity
}

// clampConfidence bounds confidence to the contract range.
func clampConfidence(c float64) float64 {
	if c < 0.3 {
		return 0.3
	}
	if c > 0.95 {
		return 0.95
	}
	return c
}

// normalize fills defaulted features so both predictors see the same input.
func normalize(in Input) Input {
	if in.TrafficFactor <= 0 {
		in.TrafficFactor = 1.0
	}
	if in.WeatherFactor <= 0 {
		in.WeatherFactor = 1.0
	}
	if in.Complexity < 1 {
		in.Complexity = 1
	}
	if in.VehicleKind == "" {
		in.VehicleKind = dispatch.VehicleKindDriving
	}
	if in.Experience == "" {
		in.Experience = dispatch.ExperienceIntermediate
	}
	return in
}
