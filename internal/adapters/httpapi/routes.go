package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openfleet/lastmile/internal/application/planning"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

type optimizeRequest struct {
	OrderIDs   []string  `json:"order_ids" validate:"required,min=1"`
	VehicleIDs []string  `json:"vehicle_ids" validate:"required,min=1"`
	DriverIDs  []string  `json:"driver_ids" validate:"required,min=1"`
	Depot      []float64 `json:"depot" validate:"required,len=2"`
	// PlannedDate is YYYY-MM-DD; empty means today.
	PlannedDate    string  `json:"planned_date,omitempty"`
	TimeLimitS     int     `json:"time_limit_s,omitempty" validate:"omitempty,min=1,max=600"`
	EnableAdaptive *bool   `json:"enable_adaptive,omitempty"`
	Alpha          float64 `json:"alpha,omitempty"`
	Beta           float64 `json:"beta,omitempty"`
	Gamma          float64 `json:"gamma,omitempty"`
}

type optimizeResponse struct {
	RoutesCreated    int                        `json:"routes_created"`
	RouteIDs         []string                   `json:"route_ids"`
	TotalDistanceKm  float64                    `json:"total_distance_km"`
	TotalDurationMin float64                    `json:"total_duration_min"`
	ObjectiveValue   float64                    `json:"objective_value"`
	SolverStats      routing.SolverStats        `json:"solver_stats"`
	Unassigned       []routing.OrderDiagnostic  `json:"unassigned,omitempty"`
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, shared.WrapDomainError(shared.KindInvalidInput, "invalid optimize request", err))
		return
	}

	depot, err := shared.NewCoordinate(req.Depot[0], req.Depot[1])
	if err != nil {
		writeError(w, err)
		return
	}

	var date time.Time
	if req.PlannedDate != "" {
		date, err = time.Parse("2006-01-02", req.PlannedDate)
		if err != nil {
			writeError(w, shared.WrapDomainError(shared.KindInvalidInput, "planned_date must be YYYY-MM-DD", err))
			return
		}
	}

	result, err := s.deps.Planner.Optimize(r.Context(), planning.Request{
		OrderIDs:    req.OrderIDs,
		VehicleIDs:  req.VehicleIDs,
		DriverIDs:   req.DriverIDs,
		Depot:       depot,
		PlannedDate: date,
		TimeLimit:   time.Duration(req.TimeLimitS) * time.Second,
		Weights:     routing.ObjectiveWeights{Alpha: req.Alpha, Beta: req.Beta, Gamma: req.Gamma},
	})
	if err != nil {
		writeError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, optimizeResponse{
		RoutesCreated:    result.RoutesCreated,
		RouteIDs:         result.RouteIDs,
		TotalDistanceKm:  result.TotalDistanceKm,
		TotalDurationMin: result.TotalDuration.Minutes(),
		ObjectiveValue:   result.ObjectiveValue,
		SolverStats:      result.Stats,
		Unassigned:       result.Unassigned,
	})
}

func (s *Server) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	q := routing.RouteQuery{
		Status:    routing.RouteStatus(r.URL.Query().Get("status")),
		VehicleID: r.URL.Query().Get("vehicle_id"),
		DriverID:  r.URL.Query().Get("driver_id"),
		Limit:     intQuery(r, "limit"),
		Offset:    intQuery(r, "offset"),
	}
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, shared.WrapDomainError(shared.KindInvalidInput, "date must be YYYY-MM-DD", err))
			return
		}
		q.Date = &date
	}

	routes, err := s.deps.Routes.List(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"routes": routesToJSON(routes),
		"count":  len(routes),
	})
}

func (s *Server) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	route, err := s.deps.Routes.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, routeToJSON(route))
}

type statusRequest struct {
	Status           string     `json:"status" validate:"required,oneof=planned active completed cancelled disrupted"`
	CurrentStopIndex *int       `json:"current_stop_index,omitempty" validate:"omitempty,min=0"`
	CurrentLocation  []float64  `json:"current_location,omitempty" validate:"omitempty,len=2"`
}

func (s *Server) handleRouteStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, shared.WrapDomainError(shared.KindInvalidInput, "invalid status request", err))
		return
	}

	update := planning.StatusUpdate{
		Status:           routing.RouteStatus(req.Status),
		CurrentStopIndex: req.CurrentStopIndex,
	}
	if len(req.CurrentLocation) == 2 {
		loc, err := shared.NewCoordinate(req.CurrentLocation[0], req.CurrentLocation[1])
		if err != nil {
			writeError(w, err)
			return
		}
		update.CurrentLocation = &loc
	}

	route, err := s.deps.Planner.UpdateRouteStatus(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, routeToJSON(route))
}

type reoptimizeRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (s *Server) handleReoptimize(w http.ResponseWriter, r *http.Request) {
	var req reoptimizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, shared.WrapDomainError(shared.KindInvalidInput, "invalid reoptimize request", err))
		return
	}

	routeID := chi.URLParam(r, "id")
	if err := s.deps.Reoptimizer.TriggerManual(r.Context(), routeID); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"route_id": routeID,
		"status":   "reoptimization_scheduled",
		"reason":   req.Reason,
	})
}

func (s *Server) handleRouteETA(w http.ResponseWriter, r *http.Request) {
	var stopSequence *int
	if raw := r.URL.Query().Get("stop_sequence"); raw != "" {
		seq, err := strconv.Atoi(raw)
		if err != nil || seq < 0 {
			writeError(w, shared.NewValidationError("stop_sequence", "must be a non-negative integer"))
			return
		}
		stopSequence = &seq
	}

	predictions, err := s.deps.ETA.RouteETA(r.Context(), chi.URLParam(r, "id"), stopSequence)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"route_id":    chi.URLParam(r, "id"),
		"predictions": predictions,
	})
}

func intQuery(r *http.Request, key string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(key))
	return v
}

type stopJSON struct {
	ID                 string     `json:"id"`
	OrderID            string     `json:"order_id,omitempty"`
	Kind               string     `json:"kind"`
	Sequence           int        `json:"sequence"`
	Lat                float64    `json:"lat"`
	Lon                float64    `json:"lon"`
	PlannedArrival     time.Time  `json:"planned_arrival"`
	PlannedDeparture   time.Time  `json:"planned_departure"`
	ActualArrival      *time.Time `json:"actual_arrival,omitempty"`
	ActualDeparture    *time.Time `json:"actual_departure,omitempty"`
	Status             string     `json:"status"`
	DistanceFromPrevKm float64    `json:"distance_from_prev_km"`
	TravelFromPrevMin  float64    `json:"travel_from_prev_min"`
}

type routeJSON struct {
	ID                  string     `json:"id"`
	VehicleID           string     `json:"vehicle_id"`
	DriverID            string     `json:"driver_id"`
	PlannedDate         time.Time  `json:"planned_date"`
	PlannedStart        time.Time  `json:"planned_start"`
	PlannedEnd          time.Time  `json:"planned_end"`
	Status              string     `json:"status"`
	CurrentStopIndex    int        `json:"current_stop_index"`
	TotalDistanceKm     float64    `json:"total_distance_km"`
	TotalDurationMin    float64    `json:"total_duration_min"`
	TotalWeightKg       float64    `json:"total_weight_kg"`
	TotalVolumeM3       float64    `json:"total_volume_m3"`
	ReoptimizationCount int        `json:"reoptimization_count"`
	OptimizationScore   float64    `json:"optimization_score"`
	LastReoptimizedAt   *time.Time `json:"last_reoptimized_at,omitempty"`
	Stops               []stopJSON `json:"stops"`
}

func routeToJSON(route *routing.Route) routeJSON {
	stops := make([]stopJSON, len(route.Stops))
	for i, stop := range route.Stops {
		stops[i] = stopJSON{
			ID:                 stop.ID,
			OrderID:            stop.OrderID,
			Kind:               string(stop.Kind),
			Sequence:           stop.Sequence,
			Lat:                stop.Coordinate.Lat,
			Lon:                stop.Coordinate.Lon,
			PlannedArrival:     stop.PlannedArrival,
			PlannedDeparture:   stop.PlannedDeparture,
			ActualArrival:      stop.ActualArrival,
			ActualDeparture:    stop.ActualDeparture,
			Status:             string(stop.Status),
			DistanceFromPrevKm: stop.DistanceFromPrevKm,
			TravelFromPrevMin:  stop.TravelFromPrev.Minutes(),
		}
	}
	return routeJSON{
		ID:                  route.ID,
		VehicleID:           route.VehicleID,
		DriverID:            route.DriverID,
		PlannedDate:         route.PlannedDate,
		PlannedStart:        route.PlannedStart,
		PlannedEnd:          route.PlannedEnd,
		Status:              string(route.Status),
		CurrentStopIndex:    route.CurrentStopIndex,
		TotalDistanceKm:     route.TotalDistanceKm,
		TotalDurationMin:    route.TotalDuration.Minutes(),
		TotalWeightKg:       route.TotalWeightKg,
		TotalVolumeM3:       route.TotalVolumeM3,
		ReoptimizationCount: route.ReoptimizationCount,
		OptimizationScore:   route.OptimizationScore,
		LastReoptimizedAt:   route.LastReoptimizedAt,
		Stops:               stops,
	}
}

func routesToJSON(routes []*routing.Route) []routeJSON {
	out := make([]routeJSON, len(routes))
	for i, route := range routes {
		out[i] = routeToJSON(route)
	}
	return out
}
