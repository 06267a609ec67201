package dispatch

import (
	"fmt"
	"time"

	"github.com/openfleet/lastmile/internal/domain/shared"
)

// VehicleKind selects the routing profile used by the mapping provider.
type VehicleKind string

const (
	VehicleKindDriving VehicleKind = "driving"
	VehicleKindTruck   VehicleKind = "truck"
)

// VehicleStatus represents vehicle availability
type VehicleStatus string

const (
	VehicleStatusAvailable    VehicleStatus = "available"
	VehicleStatusInUse        VehicleStatus = "in_use"
	VehicleStatusMaintenance  VehicleStatus = "maintenance"
	VehicleStatusOutOfService VehicleStatus = "out_of_service"
)

// VehicleFeatures are optional equipment flags.
type VehicleFeatures struct {
	GPS         bool `json:"gps"`
	TempControl bool `json:"temp_control"`
	LiftGate    bool `json:"lift_gate"`
}

// Vehicle represents a delivery vehicle.
//
// Invariant: status is in_use if and only if the vehicle is referenced by an
// active route.
type Vehicle struct {
	ID            string
	Kind          VehicleKind
	MaxWeightKg   float64
	MaxVolumeM3   float64
	Depot         shared.Coordinate
	CostPerKm     float64
	CostPerHour   float64
	Features      VehicleFeatures
	MaxWorking    time.Duration
	BreakEvery    time.Duration
	BreakDuration time.Duration
	Status        VehicleStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewVehicle creates a vehicle with validation.
func NewVehicle(id string, kind VehicleKind, maxWeightKg, maxVolumeM3 float64, depot shared.Coordinate) (*Vehicle, error) {
	if id == "" {
		return nil, shared.NewValidationError("id", "cannot be empty")
	}
	if maxWeightKg <= 0 {
		return nil, shared.NewValidationError("max_weight_kg", fmt.Sprintf("must be positive: %f", maxWeightKg))
	}
	if maxVolumeM3 <= 0 {
		return nil, shared.NewValidationError("max_volume_m3", fmt.Sprintf("must be positive: %f", maxVolumeM3))
	}
	if kind == "" {
		kind = VehicleKindDriving
	}

	return &Vehicle{
		ID:          id,
		Kind:        kind,
		MaxWeightKg: maxWeightKg,
		MaxVolumeM3: maxVolumeM3,
		Depot:       depot,
		CostPerKm:   1.0,
		CostPerHour: 10.0,
		MaxWorking:  8 * time.Hour,
		Status:      VehicleStatusAvailable,
	}, nil
}

// CanCarry reports whether the vehicle can take the additional demand.
func (v *Vehicle) CanCarry(currentWeight, currentVolume, addWeight, addVolume float64) bool {
	return currentWeight+addWeight <= v.MaxWeightKg && currentVolume+addVolume <= v.MaxVolumeM3
}

// IsOperational reports whether the vehicle can serve a route right now.
func (v *Vehicle) IsOperational() bool {
	return v.Status == VehicleStatusAvailable || v.Status == VehicleStatusInUse
}

func (v *Vehicle) String() string {
	return fmt.Sprintf("Vehicle(id=%s, cap=%.0fkg/%.1fm3, status=%s)", v.ID, v.MaxWeightKg, v.MaxVolumeM3, v.Status)
}
