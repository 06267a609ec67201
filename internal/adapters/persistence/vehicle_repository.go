package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

// GormVehicleRepository implements dispatch.VehicleRepository using GORM
type GormVehicleRepository struct {
	db *gorm.DB
}

var _ dispatch.VehicleRepository = (*GormVehicleRepository)(nil)

// NewGormVehicleRepository creates a new GORM vehicle repository
func NewGormVehicleRepository(db *gorm.DB) *GormVehicleRepository {
	return &GormVehicleRepository{db: db}
}

// FindByID retrieves a vehicle by id
func (r *GormVehicleRepository) FindByID(ctx context.Context, id string) (*dispatch.Vehicle, error) {
	var model VehicleModel
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&model)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, shared.NewNotFoundError("vehicle", id)
		}
		return nil, fmt.Errorf("failed to find vehicle: %w", result.Error)
	}
	return vehicleFromModel(&model)
}

// FindByIDs retrieves the vehicles matching the given ids
func (r *GormVehicleRepository) FindByIDs(ctx context.Context, ids []string) ([]*dispatch.Vehicle, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []VehicleModel
	result := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find vehicles: %w", result.Error)
	}
	return vehiclesFromModels(models)
}

// ListByStatus retrieves all vehicles in the given status
func (r *GormVehicleRepository) ListByStatus(ctx context.Context, status dispatch.VehicleStatus) ([]*dispatch.Vehicle, error) {
	var models []VehicleModel
	result := r.db.WithContext(ctx).Where("status = ?", string(status)).Order("id").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", result.Error)
	}
	return vehiclesFromModels(models)
}

// Save upserts a vehicle
func (r *GormVehicleRepository) Save(ctx context.Context, vehicle *dispatch.Vehicle) error {
	model, err := vehicleToModel(vehicle)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to save vehicle %s: %w", vehicle.ID, result.Error)
	}
	return nil
}

// UpdateStatus changes only the vehicle status
func (r *GormVehicleRepository) UpdateStatus(ctx context.Context, id string, status dispatch.VehicleStatus) error {
	result := r.db.WithContext(ctx).Model(&VehicleModel{}).
		Where("id = ?", id).
		Update("status", string(status))
	if result.Error != nil {
		return fmt.Errorf("failed to update vehicle status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("vehicle", id)
	}
	return nil
}

func vehicleToModel(v *dispatch.Vehicle) (*VehicleModel, error) {
	features, err := json.Marshal(v.Features)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vehicle features: %w", err)
	}
	return &VehicleModel{
		ID:                   v.ID,
		Kind:                 string(v.Kind),
		MaxWeightKg:          v.MaxWeightKg,
		MaxVolumeM3:          v.MaxVolumeM3,
		DepotLat:             v.Depot.Lat,
		DepotLon:             v.Depot.Lon,
		CostPerKm:            v.CostPerKm,
		CostPerHour:          v.CostPerHour,
		Features:             string(features),
		MaxWorkingSeconds:    int64(v.MaxWorking / time.Second),
		BreakEverySeconds:    int64(v.BreakEvery / time.Second),
		BreakDurationSeconds: int64(v.BreakDuration / time.Second),
		Status:               string(v.Status),
	}, nil
}

func vehicleFromModel(m *VehicleModel) (*dispatch.Vehicle, error) {
	var features dispatch.VehicleFeatures
	if m.Features != "" {
		if err := json.Unmarshal([]byte(m.Features), &features); err != nil {
			return nil, fmt.Errorf("failed to unmarshal features for vehicle %s: %w", m.ID, err)
		}
	}
	return &dispatch.Vehicle{
		ID:            m.ID,
		Kind:          dispatch.VehicleKind(m.Kind),
		MaxWeightKg:   m.MaxWeightKg,
		MaxVolumeM3:   m.MaxVolumeM3,
		Depot:         shared.Coordinate{Lat: m.DepotLat, Lon: m.DepotLon},
		CostPerKm:     m.CostPerKm,
		CostPerHour:   m.CostPerHour,
		Features:      features,
		MaxWorking:    time.Duration(m.MaxWorkingSeconds) * time.Second,
		BreakEvery:    time.Duration(m.BreakEverySeconds) * time.Second,
		BreakDuration: time.Duration(m.BreakDurationSeconds) * time.Second,
		Status:        dispatch.VehicleStatus(m.Status),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}

func vehiclesFromModels(models []VehicleModel) ([]*dispatch.Vehicle, error) {
	vehicles := make([]*dispatch.Vehicle, len(models))
	for i := range models {
		v, err := vehicleFromModel(&models[i])
		if err != nil {
			return nil, err
		}
		vehicles[i] = v
	}
	return vehicles, nil
}
