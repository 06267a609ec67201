package persistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/openfleet/lastmile/internal/domain/event"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// GormRouteRepository implements routing.Repository using GORM
type GormRouteRepository struct {
	db *gorm.DB
}

var _ routing.Repository = (*GormRouteRepository)(nil)

// NewGormRouteRepository creates a new GORM route repository
func NewGormRouteRepository(db *gorm.DB) *GormRouteRepository {
	return &GormRouteRepository{db: db}
}

// FindByID retrieves a route with its stops in sequence order
func (r *GormRouteRepository) FindByID(ctx context.Context, id string) (*routing.Route, error) {
	var model RouteModel
	result := r.db.WithContext(ctx).
		Preload("Stops", func(db *gorm.DB) *gorm.DB { return db.Order("sequence") }).
		Where("id = ?", id).
		First(&model)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, shared.NewNotFoundError("route", id)
		}
		return nil, fmt.Errorf("failed to find route: %w", result.Error)
	}
	return routeFromModel(&model), nil
}

// List retrieves routes matching the query
func (r *GormRouteRepository) List(ctx context.Context, q routing.RouteQuery) ([]*routing.Route, error) {
	query := r.db.WithContext(ctx).
		Preload("Stops", func(db *gorm.DB) *gorm.DB { return db.Order("sequence") }).
		Order("planned_date, id")

	if q.Date != nil {
		dayStart := q.Date.UTC().Truncate(24 * time.Hour)
		query = query.Where("planned_date >= ? AND planned_date < ?", dayStart, dayStart.Add(24*time.Hour))
	}
	if q.Status != "" {
		query = query.Where("status = ?", string(q.Status))
	}
	if q.VehicleID != "" {
		query = query.Where("vehicle_id = ?", q.VehicleID)
	}
	if q.DriverID != "" {
		query = query.Where("driver_id = ?", q.DriverID)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}

	var models []RouteModel
	result := query.Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list routes: %w", result.Error)
	}
	return routesFromModels(models), nil
}

// ListActive retrieves planned and active routes
func (r *GormRouteRepository) ListActive(ctx context.Context) ([]*routing.Route, error) {
	var models []RouteModel
	result := r.db.WithContext(ctx).
		Preload("Stops", func(db *gorm.DB) *gorm.DB { return db.Order("sequence") }).
		Where("status IN ?", []string{string(routing.RouteStatusPlanned), string(routing.RouteStatusActive)}).
		Order("id").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list active routes: %w", result.Error)
	}
	return routesFromModels(models), nil
}

// SaveSolution persists a full solve result atomically: all routes with
// their stops, or none.
func (r *GormRouteRepository) SaveSolution(ctx context.Context, routes []*routing.Route) error {
	if len(routes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, route := range routes {
			if err := saveRouteTx(tx, route); err != nil {
				return err
			}
		}
		return nil
	})
}

// CommitReoptimization atomically rewrites the route's stops, updates its
// counters and appends the event to the log. Readers observe the old or new
// route in full, never a partial rewrite.
func (r *GormRouteRepository) CommitReoptimization(ctx context.Context, route *routing.Route, ev event.Event) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := saveRouteTx(tx, route); err != nil {
			return err
		}
		model, err := eventToModel(ev)
		if err != nil {
			return err
		}
		if err := tx.Save(model).Error; err != nil {
			return fmt.Errorf("failed to append reoptimization event: %w", err)
		}
		return nil
	})
}

// UpdateStatus changes the route status and optionally the current stop index
func (r *GormRouteRepository) UpdateStatus(ctx context.Context, id string, status routing.RouteStatus, currentStopIndex *int) error {
	updates := map[string]interface{}{"status": string(status)}
	if currentStopIndex != nil {
		updates["current_stop_index"] = *currentStopIndex
	}
	result := r.db.WithContext(ctx).Model(&RouteModel{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update route status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("route", id)
	}
	return nil
}

// Delete removes a route and, via the cascade, its stops
func (r *GormRouteRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("route_id = ?", id).Delete(&StopModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete stops: %w", err)
		}
		result := tx.Where("id = ?", id).Delete(&RouteModel{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete route: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return shared.NewNotFoundError("route", id)
		}
		return nil
	})
}

// saveRouteTx upserts one route and rewrites its stop rows inside tx.
func saveRouteTx(tx *gorm.DB, route *routing.Route) error {
	model := routeToModel(route)
	stops := model.Stops
	model.Stops = nil

	if err := tx.Save(model).Error; err != nil {
		return fmt.Errorf("failed to save route %s: %w", route.ID, err)
	}
	if err := tx.Where("route_id = ?", route.ID).Delete(&StopModel{}).Error; err != nil {
		return fmt.Errorf("failed to clear stops for route %s: %w", route.ID, err)
	}
	for i := range stops {
		if err := tx.Create(&stops[i]).Error; err != nil {
			return fmt.Errorf("failed to save stop %s: %w", stops[i].ID, err)
		}
	}
	return nil
}

func routeToModel(route *routing.Route) *RouteModel {
	model := &RouteModel{
		ID:                   route.ID,
		VehicleID:            route.VehicleID,
		DriverID:             route.DriverID,
		PlannedDate:          route.PlannedDate.UTC(),
		PlannedStart:         route.PlannedStart.UTC(),
		PlannedEnd:           route.PlannedEnd.UTC(),
		TotalDistanceKm:      route.TotalDistanceKm,
		TotalDurationSeconds: int64(route.TotalDuration / time.Second),
		TotalWeightKg:        route.TotalWeightKg,
		TotalVolumeM3:        route.TotalVolumeM3,
		Status:               string(route.Status),
		CurrentStopIndex:     route.CurrentStopIndex,
		ReoptimizationCount:  route.ReoptimizationCount,
		AdaptationCount:      route.AdaptationCount,
		OptimizationScore:    route.OptimizationScore,
		LastReoptimizedAt:    route.LastReoptimizedAt,
	}
	for _, s := range route.Stops {
		model.Stops = append(model.Stops, *stopToModel(s))
	}
	return model
}

func stopToModel(s *routing.Stop) *StopModel {
	return &StopModel{
		ID:                 s.ID,
		RouteID:            s.RouteID,
		OrderID:            s.OrderID,
		Kind:               string(s.Kind),
		Sequence:           s.Sequence,
		Lat:                s.Coordinate.Lat,
		Lon:                s.Coordinate.Lon,
		PlannedArrival:     s.PlannedArrival.UTC(),
		PlannedDeparture:   s.PlannedDeparture.UTC(),
		ActualArrival:      s.ActualArrival,
		ActualDeparture:    s.ActualDeparture,
		Status:             string(s.Status),
		DistanceFromPrevKm: s.DistanceFromPrevKm,
		TravelSeconds:      int64(s.TravelFromPrev / time.Second),
		WeightKg:           s.WeightKg,
		VolumeM3:           s.VolumeM3,
	}
}

func routeFromModel(m *RouteModel) *routing.Route {
	route := &routing.Route{
		ID:                  m.ID,
		VehicleID:           m.VehicleID,
		DriverID:            m.DriverID,
		PlannedDate:         m.PlannedDate.UTC(),
		PlannedStart:        m.PlannedStart.UTC(),
		PlannedEnd:          m.PlannedEnd.UTC(),
		TotalDistanceKm:     m.TotalDistanceKm,
		TotalDuration:       time.Duration(m.TotalDurationSeconds) * time.Second,
		TotalWeightKg:       m.TotalWeightKg,
		TotalVolumeM3:       m.TotalVolumeM3,
		Status:              routing.RouteStatus(m.Status),
		CurrentStopIndex:    m.CurrentStopIndex,
		ReoptimizationCount: m.ReoptimizationCount,
		AdaptationCount:     m.AdaptationCount,
		OptimizationScore:   m.OptimizationScore,
		LastReoptimizedAt:   m.LastReoptimizedAt,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
	for i := range m.Stops {
		route.Stops = append(route.Stops, stopFromModel(&m.Stops[i]))
	}
	return route
}

func stopFromModel(m *StopModel) *routing.Stop {
	return &routing.Stop{
		ID:                 m.ID,
		RouteID:            m.RouteID,
		OrderID:            m.OrderID,
		Kind:               routing.StopKind(m.Kind),
		Sequence:           m.Sequence,
		Coordinate:         shared.Coordinate{Lat: m.Lat, Lon: m.Lon},
		PlannedArrival:     m.PlannedArrival.UTC(),
		PlannedDeparture:   m.PlannedDeparture.UTC(),
		ActualArrival:      m.ActualArrival,
		ActualDeparture:    m.ActualDeparture,
		Status:             routing.StopStatus(m.Status),
		DistanceFromPrevKm: m.DistanceFromPrevKm,
		TravelFromPrev:     time.Duration(m.TravelSeconds) * time.Second,
		WeightKg:           m.WeightKg,
		VolumeM3:           m.VolumeM3,
	}
}

func routesFromModels(models []RouteModel) []*routing.Route {
	routes := make([]*routing.Route, len(models))
	for i := range models {
		routes[i] = routeFromModel(&models[i])
	}
	return routes
}
