package persistence

import (
	"time"
)

// OrderModel represents the orders table
type OrderModel struct {
	ID             string    `gorm:"column:id;primaryKey;not null"`
	Lat            float64   `gorm:"column:lat;not null"`
	Lon            float64   `gorm:"column:lon;not null"`
	WindowStart    time.Time `gorm:"column:window_start;not null"`
	WindowEnd      time.Time `gorm:"column:window_end;not null"`
	WeightKg       float64   `gorm:"column:weight_kg;not null"`
	VolumeM3       float64   `gorm:"column:volume_m3;not null"`
	ServiceSeconds int64     `gorm:"column:service_seconds;not null;default:0"`
	Priority       string    `gorm:"column:priority;not null;default:'medium'"`
	Status         string    `gorm:"column:status;index;not null;default:'pending'"`
	Fragile        bool      `gorm:"column:fragile;not null;default:false"`
	HighValue      bool      `gorm:"column:high_value;not null;default:false"`
	DriverID       string    `gorm:"column:driver_id"`
	StopID         string    `gorm:"column:stop_id"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null;autoUpdateTime"`
}

func (OrderModel) TableName() string {
	return "orders"
}

// VehicleModel represents the vehicles table
type VehicleModel struct {
	ID                   string    `gorm:"column:id;primaryKey;not null"`
	Kind                 string    `gorm:"column:kind;not null;default:'driving'"`
	MaxWeightKg          float64   `gorm:"column:max_weight_kg;not null"`
	MaxVolumeM3          float64   `gorm:"column:max_volume_m3;not null"`
	DepotLat             float64   `gorm:"column:depot_lat;not null"`
	DepotLon             float64   `gorm:"column:depot_lon;not null"`
	CostPerKm            float64   `gorm:"column:cost_per_km;not null;default:1"`
	CostPerHour          float64   `gorm:"column:cost_per_hour;not null;default:10"`
	Features             string    `gorm:"column:features;type:text"` // JSON as text
	MaxWorkingSeconds    int64     `gorm:"column:max_working_seconds;not null;default:0"`
	BreakEverySeconds    int64     `gorm:"column:break_every_seconds;not null;default:0"`
	BreakDurationSeconds int64     `gorm:"column:break_duration_seconds;not null;default:0"`
	Status               string    `gorm:"column:status;index;not null;default:'available'"`
	CreatedAt            time.Time `gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt            time.Time `gorm:"column:updated_at;not null;autoUpdateTime"`
}

func (VehicleModel) TableName() string {
	return "vehicles"
}

// DriverModel represents the drivers table
type DriverModel struct {
	ID                string    `gorm:"column:id;primaryKey;not null"`
	Name              string    `gorm:"column:name;not null"`
	Experience        string    `gorm:"column:experience;not null;default:'intermediate'"`
	MaxStopsPerRoute  int       `gorm:"column:max_stops_per_route;not null"`
	ShiftStart        time.Time `gorm:"column:shift_start"`
	ShiftEnd          time.Time `gorm:"column:shift_end"`
	CanHandleFragile  bool      `gorm:"column:can_handle_fragile;not null;default:false"`
	CanHandleValue    bool      `gorm:"column:can_handle_value;not null;default:false"`
	Status            string    `gorm:"column:status;index;not null;default:'available'"`
	MaxWorkingSeconds int64     `gorm:"column:max_working_seconds;not null;default:0"`
	CreatedAt         time.Time `gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;not null;autoUpdateTime"`
}

func (DriverModel) TableName() string {
	return "drivers"
}

// RouteModel represents the routes table
type RouteModel struct {
	ID                   string      `gorm:"column:id;primaryKey;not null"`
	VehicleID            string      `gorm:"column:vehicle_id;index;not null"`
	DriverID             string      `gorm:"column:driver_id;index;not null"`
	PlannedDate          time.Time   `gorm:"column:planned_date;index;not null"`
	PlannedStart         time.Time   `gorm:"column:planned_start"`
	PlannedEnd           time.Time   `gorm:"column:planned_end"`
	TotalDistanceKm      float64     `gorm:"column:total_distance_km;not null;default:0"`
	TotalDurationSeconds int64       `gorm:"column:total_duration_seconds;not null;default:0"`
	TotalWeightKg        float64     `gorm:"column:total_weight_kg;not null;default:0"`
	TotalVolumeM3        float64     `gorm:"column:total_volume_m3;not null;default:0"`
	Status               string      `gorm:"column:status;index;not null;default:'planned'"`
	CurrentStopIndex     int         `gorm:"column:current_stop_index;not null;default:0"`
	ReoptimizationCount  int         `gorm:"column:reoptimization_count;not null;default:0"`
	AdaptationCount      int         `gorm:"column:adaptation_count;not null;default:0"`
	OptimizationScore    float64     `gorm:"column:optimization_score;not null;default:0"`
	LastReoptimizedAt    *time.Time  `gorm:"column:last_reoptimized_at"`
	Stops                []StopModel `gorm:"foreignKey:RouteID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt            time.Time   `gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt            time.Time   `gorm:"column:updated_at;not null;autoUpdateTime"`
}

func (RouteModel) TableName() string {
	return "routes"
}

// StopModel represents the stops table
type StopModel struct {
	ID                 string     `gorm:"column:id;primaryKey;not null"`
	RouteID            string     `gorm:"column:route_id;index;not null"`
	OrderID            string     `gorm:"column:order_id;index"`
	Kind               string     `gorm:"column:kind;not null"`
	Sequence           int        `gorm:"column:sequence;not null"`
	Lat                float64    `gorm:"column:lat;not null"`
	Lon                float64    `gorm:"column:lon;not null"`
	PlannedArrival     time.Time  `gorm:"column:planned_arrival"`
	PlannedDeparture   time.Time  `gorm:"column:planned_departure"`
	ActualArrival      *time.Time `gorm:"column:actual_arrival"`
	ActualDeparture    *time.Time `gorm:"column:actual_departure"`
	Status             string     `gorm:"column:status;not null;default:'pending'"`
	DistanceFromPrevKm float64    `gorm:"column:distance_from_prev_km;not null;default:0"`
	TravelSeconds      int64      `gorm:"column:travel_seconds;not null;default:0"`
	WeightKg           float64    `gorm:"column:weight_kg;not null;default:0"`
	VolumeM3           float64    `gorm:"column:volume_m3;not null;default:0"`
}

func (StopModel) TableName() string {
	return "stops"
}

// EventModel represents the events table
type EventModel struct {
	ID                     string     `gorm:"column:id;primaryKey;not null"`
	Kind                   string     `gorm:"column:kind;index;not null"`
	Severity               string     `gorm:"column:severity;not null"`
	Status                 string     `gorm:"column:status;index;not null"`
	Timestamp              time.Time  `gorm:"column:timestamp;index;not null"`
	Lat                    *float64   `gorm:"column:lat"`
	Lon                    *float64   `gorm:"column:lon"`
	RouteID                string     `gorm:"column:route_id;index"`
	OrderID                string     `gorm:"column:order_id"`
	VehicleID              string     `gorm:"column:vehicle_id"`
	DriverID               string     `gorm:"column:driver_id"`
	EstimatedDelayMinutes  int        `gorm:"column:estimated_delay_minutes;not null;default:0"`
	TriggersReoptimization bool       `gorm:"column:triggers_reoptimization;not null;default:false"`
	Payload                string     `gorm:"column:payload;type:text"` // JSON as text
	ResolvedAt             *time.Time `gorm:"column:resolved_at"`
}

func (EventModel) TableName() string {
	return "events"
}
