package dispatch

import (
	"context"

	"github.com/openfleet/lastmile/internal/domain/shared"
)

// OrderRepository persists orders
type OrderRepository interface {
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByIDs(ctx context.Context, ids []string) ([]*Order, error)
	ListByStatus(ctx context.Context, status OrderStatus) ([]*Order, error)
	// ListUnassignedNear returns pending orders within radiusKm of the coordinate.
	ListUnassignedNear(ctx context.Context, coord shared.Coordinate, radiusKm float64) ([]*Order, error)
	Save(ctx context.Context, order *Order) error
	SaveAll(ctx context.Context, orders []*Order) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus) error
	// UpdateTimeWindow changes the delivery window, e.g. on customer reschedule.
	UpdateTimeWindow(ctx context.Context, id string, window shared.TimeWindow) error
}

// VehicleRepository persists vehicles
type VehicleRepository interface {
	FindByID(ctx context.Context, id string) (*Vehicle, error)
	FindByIDs(ctx context.Context, ids []string) ([]*Vehicle, error)
	ListByStatus(ctx context.Context, status VehicleStatus) ([]*Vehicle, error)
	Save(ctx context.Context, vehicle *Vehicle) error
	UpdateStatus(ctx context.Context, id string, status VehicleStatus) error
}

// DriverRepository persists drivers
type DriverRepository interface {
	FindByID(ctx context.Context, id string) (*Driver, error)
	FindByIDs(ctx context.Context, ids []string) ([]*Driver, error)
	ListByStatus(ctx context.Context, status DriverStatus) ([]*Driver, error)
	Save(ctx context.Context, driver *Driver) error
	UpdateStatus(ctx context.Context, id string, status DriverStatus) error
}
