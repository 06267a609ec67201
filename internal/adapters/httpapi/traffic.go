package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// handleRouteTraffic is a passthrough to the geodata provider: one polyline
// with live congestion segments between two points.
func (s *Server) handleRouteTraffic(w http.ResponseWriter, r *http.Request) {
	if s.deps.Geodata == nil {
		writeError(w, shared.NewDomainError(shared.KindServiceUnavailable, "geodata provider is not configured"))
		return
	}

	origin, err := coordQuery(r, "origin_lat", "origin_lon")
	if err != nil {
		writeError(w, err)
		return
	}
	dest, err := coordQuery(r, "dest_lat", "dest_lon")
	if err != nil {
		writeError(w, err)
		return
	}

	departAt := s.deps.Clock.Now()
	if raw := r.URL.Query().Get("depart_at"); raw != "" {
		departAt, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, shared.NewValidationError("depart_at", "must be RFC3339"))
			return
		}
	}
	kind := dispatch.VehicleKindDriving
	if raw := r.URL.Query().Get("vehicle_kind"); raw != "" {
		kind = dispatch.VehicleKind(raw)
	}

	result, err := s.deps.Geodata.Route(r.Context(), origin, dest, nil, departAt, kind)
	if err != nil {
		writeError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"polyline":        result.Polyline,
		"distance_m":      result.DistanceM,
		"free_time_s":     result.FreeTimeS,
		"traffic_time_s":  result.TrafficTimeS,
		"traffic_factor":  result.TrafficFactor(),
		"segments":        result.Segments,
	})
}

func coordQuery(r *http.Request, latKey, lonKey string) (shared.Coordinate, error) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get(latKey), 64)
	if err != nil {
		return shared.Coordinate{}, shared.NewValidationError(latKey, "must be a number")
	}
	lon, err := strconv.ParseFloat(r.URL.Query().Get(lonKey), 64)
	if err != nil {
		return shared.Coordinate{}, shared.NewValidationError(lonKey, "must be a number")
	}
	return shared.NewCoordinate(lat, lon)
}
