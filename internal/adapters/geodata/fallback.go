package geodata

import (
	"context"
	"math"
	"time"

	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// HaversineProvider derives matrices from great-circle distance and a
// configured average speed. It backs the solver when the mapping provider is
// unavailable, and serves as the sole provider in offline deployments.
// Its matrices are symmetric and always marked Degraded.
type HaversineProvider struct {
	avgSpeedKmh float64
}

var _ routing.GeodataProvider = (*HaversineProvider)(nil)

// NewHaversineProvider creates the fallback provider. avgSpeedKmh defaults
// to 40 when non-positive.
func NewHaversineProvider(avgSpeedKmh float64) *HaversineProvider {
	if avgSpeedKmh <= 0 {
		avgSpeedKmh = 40
	}
	return &HaversineProvider{avgSpeedKmh: avgSpeedKmh}
}

// Geocode is not supported offline.
func (p *HaversineProvider) Geocode(_ context.Context, text string) (shared.Coordinate, error) {
	return shared.Coordinate{}, shared.NewNotFoundError("geocode result", text)
}

// Route returns a straight-line route estimate without a polyline.
func (p *HaversineProvider) Route(_ context.Context, origin, dest shared.Coordinate, waypoints []shared.Coordinate, _ time.Time, _ dispatch.VehicleKind) (*routing.RouteResult, error) {
	points := append([]shared.Coordinate{origin}, waypoints...)
	points = append(points, dest)

	totalKm := 0.0
	for i := 1; i < len(points); i++ {
		totalKm += points[i-1].DistanceKm(points[i])
	}
	seconds := int(math.Round(totalKm / p.avgSpeedKmh * 3600))
	return &routing.RouteResult{
		DistanceM:    int(math.Round(totalKm * 1000)),
		FreeTimeS:    seconds,
		TrafficTimeS: seconds,
	}, nil
}

// Matrix computes a symmetric Haversine matrix with time = distance / speed.
func (p *HaversineProvider) Matrix(_ context.Context, origins, destinations []shared.Coordinate, _ time.Time, _ dispatch.VehicleKind) (*routing.Matrices, error) {
	m := &routing.Matrices{
		DistanceM:    make([][]int, len(origins)),
		TimeS:        make([][]int, len(origins)),
		TrafficTimeS: make([][]int, len(origins)),
		Degraded:     true,
	}
	for i, o := range origins {
		m.DistanceM[i] = make([]int, len(destinations))
		m.TimeS[i] = make([]int, len(destinations))
		m.TrafficTimeS[i] = make([]int, len(destinations))
		for j, d := range destinations {
			meters := o.DistanceM(d)
			seconds := int(math.Round(float64(meters) / 1000 / p.avgSpeedKmh * 3600))
			m.DistanceM[i][j] = meters
			m.TimeS[i][j] = seconds
			m.TrafficTimeS[i][j] = seconds
		}
	}
	return m, nil
}
