package persistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// GormOrderRepository implements dispatch.OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

var _ dispatch.OrderRepository = (*GormOrderRepository)(nil)

// NewGormOrderRepository creates a new GORM order repository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByID retrieves an order by id
func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*dispatch.Order, error) {
	var model OrderModel
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&model)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, shared.NewNotFoundError("order", id)
		}
		return nil, fmt.Errorf("failed to find order: %w", result.Error)
	}
	return orderFromModel(&model), nil
}

// FindByIDs retrieves the orders matching the given ids; missing ids are
// silently skipped.
func (r *GormOrderRepository) FindByIDs(ctx context.Context, ids []string) ([]*dispatch.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []OrderModel
	result := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find orders: %w", result.Error)
	}
	return ordersFromModels(models), nil
}

// ListByStatus retrieves all orders in the given status
func (r *GormOrderRepository) ListByStatus(ctx context.Context, status dispatch.OrderStatus) ([]*dispatch.Order, error) {
	var models []OrderModel
	result := r.db.WithContext(ctx).Where("status = ?", string(status)).Order("id").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list orders: %w", result.Error)
	}
	return ordersFromModels(models), nil
}

// ListUnassignedNear returns pending orders within radiusKm of the
// coordinate. A bounding box narrows the scan in SQL; the exact Haversine
// check runs on the candidates.
func (r *GormOrderRepository) ListUnassignedNear(ctx context.Context, coord shared.Coordinate, radiusKm float64) ([]*dispatch.Order, error) {
	latDelta := radiusKm / 111.0
	lonDelta := radiusKm / 70.0 // wide enough for mid latitudes

	var models []OrderModel
	result := r.db.WithContext(ctx).
		Where("status = ?", string(dispatch.OrderStatusPending)).
		Where("lat BETWEEN ? AND ?", coord.Lat-latDelta, coord.Lat+latDelta).
		Where("lon BETWEEN ? AND ?", coord.Lon-lonDelta, coord.Lon+lonDelta).
		Order("id").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list nearby orders: %w", result.Error)
	}

	orders := make([]*dispatch.Order, 0, len(models))
	for i := range models {
		o := orderFromModel(&models[i])
		if o.Coordinate.DistanceKm(coord) <= radiusKm {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

// Save upserts a single order
func (r *GormOrderRepository) Save(ctx context.Context, order *dispatch.Order) error {
	model := orderToModel(order)
	result := r.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to save order %s: %w", order.ID, result.Error)
	}
	return nil
}

// SaveAll upserts a batch of orders in one transaction
func (r *GormOrderRepository) SaveAll(ctx context.Context, orders []*dispatch.Order) error {
	if len(orders) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, o := range orders {
			if err := tx.Save(orderToModel(o)).Error; err != nil {
				return fmt.Errorf("failed to save order %s: %w", o.ID, err)
			}
		}
		return nil
	})
}

// UpdateStatus changes only the order status
func (r *GormOrderRepository) UpdateStatus(ctx context.Context, id string, status dispatch.OrderStatus) error {
	result := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ?", id).
		Update("status", string(status))
	if result.Error != nil {
		return fmt.Errorf("failed to update order status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("order", id)
	}
	return nil
}

// UpdateTimeWindow changes the delivery window, e.g. on customer reschedule
func (r *GormOrderRepository) UpdateTimeWindow(ctx context.Context, id string, window shared.TimeWindow) error {
	if !window.Start.Before(window.End) {
		return shared.NewValidationError("time_window", "start must precede end")
	}
	result := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"window_start": window.Start.UTC(),
			"window_end":   window.End.UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update order time window: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("order", id)
	}
	return nil
}

func orderToModel(o *dispatch.Order) *OrderModel {
	return &OrderModel{
		ID:             o.ID,
		Lat:            o.Coordinate.Lat,
		Lon:            o.Coordinate.Lon,
		WindowStart:    o.TimeWindow.Start.UTC(),
		WindowEnd:      o.TimeWindow.End.UTC(),
		WeightKg:       o.WeightKg,
		VolumeM3:       o.VolumeM3,
		ServiceSeconds: int64(o.ServiceDuration / time.Second),
		Priority:       string(o.Priority),
		Status:         string(o.Status),
		Fragile:        o.Fragile,
		HighValue:      o.HighValue,
		DriverID:       o.DriverID,
		StopID:         o.StopID,
	}
}

func orderFromModel(m *OrderModel) *dispatch.Order {
	return &dispatch.Order{
		ID:              m.ID,
		Coordinate:      shared.Coordinate{Lat: m.Lat, Lon: m.Lon},
		TimeWindow:      shared.TimeWindow{Start: m.WindowStart.UTC(), End: m.WindowEnd.UTC()},
		WeightKg:        m.WeightKg,
		VolumeM3:        m.VolumeM3,
		ServiceDuration: time.Duration(m.ServiceSeconds) * time.Second,
		Priority:        dispatch.OrderPriority(m.Priority),
		Status:          dispatch.OrderStatus(m.Status),
		Fragile:         m.Fragile,
		HighValue:       m.HighValue,
		DriverID:        m.DriverID,
		StopID:          m.StopID,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func ordersFromModels(models []OrderModel) []*dispatch.Order {
	orders := make([]*dispatch.Order, len(models))
	for i := range models {
		orders[i] = orderFromModel(&models[i])
	}
	return orders
}
