package planning

import (
	"context"
	"time"

	"github.com/openfleet/lastmile/internal/application/eta"
	"github.com/openfleet/lastmile/internal/application/simulation"
	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// ConditionSource exposes the live condition snapshot; the simulator provides
// it when running.
type ConditionSource interface {
	Conditions() simulation.Conditions
}

// StopETA is a per-stop arrival prediction.
type StopETA struct {
	StopID           string    `json:"stop_id"`
	Sequence         int       `json:"sequence"`
	OrderID          string    `json:"order_id,omitempty"`
	PlannedArrival   time.Time `json:"planned_arrival"`
	PredictedArrival time.Time `json:"predicted_arrival"`
	Confidence       float64   `json:"confidence"`
	DelayMinutes     float64   `json:"delay_minutes"`
	Method           string    `json:"method"`
}

// ETAService predicts arrivals for the remaining stops of a route.
type ETAService struct {
	routes     routing.Repository
	vehicles   dispatch.VehicleRepository
	drivers    dispatch.DriverRepository
	predictor  eta.Predictor
	conditions ConditionSource
	clock      shared.Clock
}

// NewETAService creates the ETA service. conditions and clock may be nil.
func NewETAService(routes routing.Repository, vehicles dispatch.VehicleRepository, drivers dispatch.DriverRepository, predictor eta.Predictor, conditions ConditionSource, clock shared.Clock) *ETAService {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &ETAService{
		routes:     routes,
		vehicles:   vehicles,
		drivers:    drivers,
		predictor:  predictor,
		conditions: conditions,
		clock:      clock,
	}
}

// RouteETA predicts arrivals for the route's remaining stops. When
// stopSequence is non-nil only that stop's prediction is returned.
func (s *ETAService) RouteETA(ctx context.Context, routeID string, stopSequence *int) ([]StopETA, error) {
	route, err := s.routes.FindByID(ctx, routeID)
	if err != nil {
		return nil, err
	}

	experience := dispatch.ExperienceIntermediate
	if driver, err := s.drivers.FindByID(ctx, route.DriverID); err == nil {
		experience = driver.Experience
	}
	kind := dispatch.VehicleKindDriving
	if vehicle, err := s.vehicles.FindByID(ctx, route.VehicleID); err == nil {
		kind = vehicle.Kind
	}

	traffic, weather := s.factors(routeID)
	now := s.clock.Now()
	cursor := now

	var predictions []StopETA
	for _, stop := range route.RemainingStops() {
		in := eta.Input{
			DistanceKm:    stop.DistanceFromPrevKm,
			TrafficFactor: traffic,
			DepartAt:      cursor,
			Experience:    experience,
			VehicleKind:   kind,
			WeatherFactor: weather,
		}
		p := s.predictor.Predict(ctx, in)
		travelMin := p.Minutes - p.ServiceMinutes
		if travelMin < 0 {
			travelMin = 0
		}
		arrival := cursor.Add(time.Duration(travelMin * float64(time.Minute)))

		if stopSequence == nil || *stopSequence == stop.Sequence {
			predictions = append(predictions, StopETA{
				StopID:           stop.ID,
				Sequence:         stop.Sequence,
				OrderID:          stop.OrderID,
				PlannedArrival:   stop.PlannedArrival,
				PredictedArrival: arrival,
				Confidence:       p.Confidence,
				DelayMinutes:     arrival.Sub(stop.PlannedArrival).Minutes(),
				Method:           string(p.Method),
			})
		}

		// The predictor already priced service at this stop; advancing by
		// its estimate keeps service counted exactly once.
		cursor = arrival.Add(time.Duration(p.ServiceMinutes * float64(time.Minute)))
	}

	if stopSequence != nil && len(predictions) == 0 {
		return nil, shared.NewNotFoundError("stop", routeID)
	}
	return predictions, nil
}

// factors reads the live condition snapshot, preferring a route-specific
// traffic factor over the global one.
func (s *ETAService) factors(routeID string) (traffic, weather float64) {
	traffic, weather = 1.0, 1.0
	if s.conditions == nil {
		return traffic, weather
	}
	snap := s.conditions.Conditions()
	if f, ok := snap.TrafficFactors[routeID]; ok {
		traffic = f
	} else if f, ok := snap.TrafficFactors["global"]; ok {
		traffic = f
	}
	if snap.WeatherFactor > 0 {
		weather = snap.WeatherFactor
	}
	return traffic, weather
}
