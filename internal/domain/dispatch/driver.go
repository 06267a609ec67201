package dispatch

import (
	"fmt"
	"time"

	"github.com/openfleet/lastmile/internal/domain/shared"
)

// ExperienceLevel grades driver experience, used by the ETA predictor.
type ExperienceLevel string

const (
	ExperienceNovice       ExperienceLevel = "novice"
	ExperienceIntermediate ExperienceLevel = "intermediate"
	ExperienceExperienced  ExperienceLevel = "experienced"
	ExperienceExpert       ExperienceLevel = "expert"
)

// SpeedMultiplier maps experience to the travel-time multiplier in [0.8, 1.2].
// Novice drivers are slower, experts faster.
func (e ExperienceLevel) SpeedMultiplier() float64 {
	switch e {
	case ExperienceExpert:
		return 0.8
	case ExperienceExperienced:
		return 0.9
	case ExperienceIntermediate:
		return 1.0
	default:
		return 1.2
	}
}

// DriverStatus represents driver availability
type DriverStatus string

const (
	DriverStatusAvailable DriverStatus = "available"
	DriverStatusOnRoute   DriverStatus = "on_route"
	DriverStatusOnBreak   DriverStatus = "on_break"
	DriverStatusOffDuty   DriverStatus = "off_duty"
)

// Driver represents a delivery driver.
type Driver struct {
	ID               string
	Name             string
	Experience       ExperienceLevel
	MaxStopsPerRoute int
	ShiftStart       time.Time
	ShiftEnd         time.Time
	CanHandleFragile bool
	CanHandleValue   bool
	Status           DriverStatus
	MaxWorking       time.Duration

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDriver creates a driver with validation.
func NewDriver(id, name string, experience ExperienceLevel, maxStops int) (*Driver, error) {
	if id == "" {
		return nil, shared.NewValidationError("id", "cannot be empty")
	}
	if maxStops <= 0 {
		return nil, shared.NewValidationError("max_stops_per_route", fmt.Sprintf("must be positive: %d", maxStops))
	}
	if experience == "" {
		experience = ExperienceIntermediate
	}

	return &Driver{
		ID:               id,
		Name:             name,
		Experience:       experience,
		MaxStopsPerRoute: maxStops,
		Status:           DriverStatusAvailable,
		MaxWorking:       8 * time.Hour,
	}, nil
}

// CanServe reports whether the driver may handle the order's special flags.
func (d *Driver) CanServe(order *Order) bool {
	if order.Fragile && !d.CanHandleFragile {
		return false
	}
	if order.HighValue && !d.CanHandleValue {
		return false
	}
	return true
}

// ShiftWindow returns the driver shift as a time window anchored to date.
// Returns the zero window when no shift is configured.
func (d *Driver) ShiftWindow(date time.Time) shared.TimeWindow {
	if d.ShiftStart.IsZero() || d.ShiftEnd.IsZero() {
		return shared.TimeWindow{}
	}
	y, m, day := date.UTC().Date()
	start := time.Date(y, m, day, d.ShiftStart.Hour(), d.ShiftStart.Minute(), 0, 0, time.UTC)
	end := time.Date(y, m, day, d.ShiftEnd.Hour(), d.ShiftEnd.Minute(), 0, 0, time.UTC)
	return shared.TimeWindow{Start: start, End: end}
}

// IsAvailable reports whether the driver can be put on a route.
func (d *Driver) IsAvailable() bool {
	return d.Status == DriverStatusAvailable
}

func (d *Driver) String() string {
	return fmt.Sprintf("Driver(id=%s, experience=%s, status=%s)", d.ID, d.Experience, d.Status)
}
