package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/openfleet/lastmile/internal/domain/event"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// GormEventRepository implements event.Repository using GORM
type GormEventRepository struct {
	db    *gorm.DB
	clock shared.Clock
}

var _ event.Repository = (*GormEventRepository)(nil)

// NewGormEventRepository creates a new GORM event repository. If clock is
// nil, uses RealClock.
func NewGormEventRepository(db *gorm.DB, clock shared.Clock) *GormEventRepository {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &GormEventRepository{db: db, clock: clock}
}

// Save persists an event
func (r *GormEventRepository) Save(ctx context.Context, e event.Event) error {
	model, err := eventToModel(e)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to save event %s: %w", e.ID, result.Error)
	}
	return nil
}

// FindByID retrieves an event by id
func (r *GormEventRepository) FindByID(ctx context.Context, id string) (*event.Event, error) {
	var model EventModel
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&model)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, shared.NewNotFoundError("event", id)
		}
		return nil, fmt.Errorf("failed to find event: %w", result.Error)
	}
	e, err := eventFromModel(&model)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// List retrieves events matching the query, newest first
func (r *GormEventRepository) List(ctx context.Context, q event.ListQuery) ([]event.Event, error) {
	query := r.db.WithContext(ctx).Order("timestamp DESC, id")

	if q.Kind != "" {
		query = query.Where("kind = ?", string(q.Kind))
	}
	if q.Severity != "" {
		query = query.Where("severity = ?", string(q.Severity))
	}
	if q.RouteID != "" {
		query = query.Where("route_id = ?", q.RouteID)
	}
	if q.ActiveOnly {
		query = query.Where("status = ?", string(event.StatusActive))
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}

	var models []EventModel
	result := query.Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list events: %w", result.Error)
	}

	events := make([]event.Event, len(models))
	for i := range models {
		e, err := eventFromModel(&models[i])
		if err != nil {
			return nil, err
		}
		events[i] = e
	}
	return events, nil
}

// MarkResolved flips an event to resolved and stamps the resolution time
func (r *GormEventRepository) MarkResolved(ctx context.Context, id string) error {
	now := r.clock.Now()
	result := r.db.WithContext(ctx).Model(&EventModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      string(event.StatusResolved),
			"resolved_at": &now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to resolve event: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("event", id)
	}
	return nil
}

func eventToModel(e event.Event) (*EventModel, error) {
	var payload string
	if len(e.Payload) > 0 {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event payload: %w", err)
		}
		payload = string(raw)
	}

	model := &EventModel{
		ID:                     e.ID,
		Kind:                   string(e.Kind),
		Severity:               string(e.Severity),
		Status:                 string(e.Status),
		Timestamp:              e.Timestamp.UTC(),
		RouteID:                e.RouteID,
		OrderID:                e.OrderID,
		VehicleID:              e.VehicleID,
		DriverID:               e.DriverID,
		EstimatedDelayMinutes:  e.EstimatedDelayMinutes,
		TriggersReoptimization: e.TriggersReoptimization,
		Payload:                payload,
		ResolvedAt:             e.ResolvedAt,
	}
	if e.Location != nil {
		lat, lon := e.Location.Lat, e.Location.Lon
		model.Lat, model.Lon = &lat, &lon
	}
	return model, nil
}

func eventFromModel(m *EventModel) (event.Event, error) {
	e := event.Event{
		ID:                     m.ID,
		Kind:                   event.Kind(m.Kind),
		Severity:               event.Severity(m.Severity),
		Status:                 event.Status(m.Status),
		Timestamp:              m.Timestamp.UTC(),
		RouteID:                m.RouteID,
		OrderID:                m.OrderID,
		VehicleID:              m.VehicleID,
		DriverID:               m.DriverID,
		EstimatedDelayMinutes:  m.EstimatedDelayMinutes,
		TriggersReoptimization: m.TriggersReoptimization,
		ResolvedAt:             m.ResolvedAt,
	}
	if m.Lat != nil && m.Lon != nil {
		e.Location = &shared.Coordinate{Lat: *m.Lat, Lon: *m.Lon}
	}
	if m.Payload != "" {
		if err := json.Unmarshal([]byte(m.Payload), &e.Payload); err != nil {
			return event.Event{}, fmt.Errorf("failed to unmarshal payload for event %s: %w", m.ID, err)
		}
	}
	if m.ResolvedAt != nil {
		t := m.ResolvedAt.UTC()
		e.ResolvedAt = &t
	}
	return e, nil
}
