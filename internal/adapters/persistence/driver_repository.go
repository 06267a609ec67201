package persistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// GormDriverRepository implements dispatch.DriverRepository using GORM
type GormDriverRepository struct {
	db *gorm.DB
}

var _ dispatch.DriverRepository = (*GormDriverRepository)(nil)

// NewGormDriverRepository creates a new GORM driver repository
func NewGormDriverRepository(db *gorm.DB) *GormDriverRepository {
	return &GormDriverRepository{db: db}
}

// FindByID retrieves a driver by id
func (r *GormDriverRepository) FindByID(ctx context.Context, id string) (*dispatch.Driver, error) {
	var model DriverModel
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&model)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, shared.NewNotFoundError("driver", id)
		}
		return nil, fmt.Errorf("failed to find driver: %w", result.Error)
	}
	return driverFromModel(&model), nil
}

// FindByIDs retrieves the drivers matching the given ids
func (r *GormDriverRepository) FindByIDs(ctx context.Context, ids []string) ([]*dispatch.Driver, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []DriverModel
	result := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find drivers: %w", result.Error)
	}
	return driversFromModels(models), nil
}

// ListByStatus retrieves all drivers in the given status
func (r *GormDriverRepository) ListByStatus(ctx context.Context, status dispatch.DriverStatus) ([]*dispatch.Driver, error) {
	var models []DriverModel
	result := r.db.WithContext(ctx).Where("status = ?", string(status)).Order("id").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list drivers: %w", result.Error)
	}
	return driversFromModels(models), nil
}

// Save upserts a driver
func (r *GormDriverRepository) Save(ctx context.Context, driver *dispatch.Driver) error {
	result := r.db.WithContext(ctx).Save(driverToModel(driver))
	if result.Error != nil {
		return fmt.Errorf("failed to save driver %s: %w", driver.ID, result.Error)
	}
	return nil
}

// UpdateStatus changes only the driver status
func (r *GormDriverRepository) UpdateStatus(ctx context.Context, id string, status dispatch.DriverStatus) error {
	result := r.db.WithContext(ctx).Model(&DriverModel{}).
		Where("id = ?", id).
		Update("status", string(status))
	if result.Error != nil {
		return fmt.Errorf("failed to update driver status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("driver", id)
	}
	return nil
}

func driverToModel(d *dispatch.Driver) *DriverModel {
	return &DriverModel{
		ID:                d.ID,
		Name:              d.Name,
		Experience:        string(d.Experience),
		MaxStopsPerRoute:  d.MaxStopsPerRoute,
		ShiftStart:        d.ShiftStart.UTC(),
		ShiftEnd:          d.ShiftEnd.UTC(),
		CanHandleFragile:  d.CanHandleFragile,
		CanHandleValue:    d.CanHandleValue,
		Status:            string(d.Status),
		MaxWorkingSeconds: int64(d.MaxWorking / time.Second),
	}
}

func driverFromModel(m *DriverModel) *dispatch.Driver {
	return &dispatch.Driver{
		ID:               m.ID,
		Name:             m.Name,
		Experience:       dispatch.ExperienceLevel(m.Experience),
		MaxStopsPerRoute: m.MaxStopsPerRoute,
		ShiftStart:       m.ShiftStart.UTC(),
		ShiftEnd:         m.ShiftEnd.UTC(),
		CanHandleFragile: m.CanHandleFragile,
		CanHandleValue:   m.CanHandleValue,
		Status:           dispatch.DriverStatus(m.Status),
		MaxWorking:       time.Duration(m.MaxWorkingSeconds) * time.Second,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func driversFromModels(models []DriverModel) []*dispatch.Driver {
	drivers := make([]*dispatch.Driver, len(models))
	for i := range models {
		drivers[i] = driverFromModel(&models[i])
	}
	return drivers
}
