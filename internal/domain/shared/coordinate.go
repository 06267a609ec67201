package shared

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0

// Coordinate represents an immutable geographic point (WGS84).
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewCoordinate creates a coordinate with range validation.
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	if lat < -90 || lat > 90 {
		return Coordinate{}, NewValidationError("lat", fmt.Sprintf("out of range: %f", lat))
	}
	if lon < -180 || lon > 180 {
		return Coordinate{}, NewValidationError("lon", fmt.Sprintf("out of range: %f", lon))
	}
	return Coordinate{Lat: lat, Lon: lon}, nil
}

// IsZero reports whether the coordinate is the unset zero value.
func (c Coordinate) IsZero() bool {
	return c.Lat == 0 && c.Lon == 0
}

// DistanceKm calculates the great-circle (Haversine) distance to another
// coordinate in kilometers.
func (c Coordinate) DistanceKm(other Coordinate) float64 {
	lat1 := c.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := (other.Lat - c.Lat) * math.Pi / 180
	dLon := (other.Lon - c.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// DistanceM calculates the Haversine distance in whole meters.
func (c Coordinate) DistanceM(other Coordinate) int {
	return int(math.Round(c.DistanceKm(other) * 1000))
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Lat, c.Lon)
}

// NearestCoordinate returns the index of the nearest coordinate in targets
// and its distance in kilometers. Returns -1 and 0 for an empty list.
func NearestCoordinate(from Coordinate, targets []Coordinate) (int, float64) {
	if len(targets) == 0 {
		return -1, 0
	}

	nearest := 0
	minDistance := from.DistanceKm(targets[0])
	for i, target := range targets[1:] {
		distance := from.DistanceKm(target)
		if distance < minDistance {
			minDistance = distance
			nearest = i + 1
		}
	}
	return nearest, minDistance
}
