package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ============================================================================
// PORTS, SHIPS, ROUTES
// ============================================================================

// Port is a harbour a route departs from or arrives at
type Port struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	City      string    `json:"city" db:"city"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Ship is a vessel in the fleet
type Ship struct {
	ID                 uuid.UUID      `json:"id" db:"id"`
	Name               string         `json:"name" db:"name"`
	RegistrationNumber string         `json:"registration_number" db:"registration_number"`
	Capacity           int            `json:"capacity" db:"capacity"`
	Facilities         pq.StringArray `json:"facilities" db:"facilities"`
	Description        *string        `json:"description,omitempty" db:"description"`
	IsActive           bool           `json:"is_active" db:"is_active"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at" db:"updated_at"`
}

// Route connects two ports
type Route struct {
	ID                uuid.UUID `json:"id" db:"id"`
	OriginPortID      uuid.UUID `json:"origin_port_id" db:"origin_port_id"`
	DestinationPortID uuid.UUID `json:"destination_port_id" db:"destination_port_id"`
	Slug              string    `json:"slug" db:"slug"`
	DurationMinutes   int       `json:"duration_minutes" db:"duration_minutes"`
	IsActive          bool      `json:"is_active" db:"is_active"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`

	// Joined
	OriginPortName      string `json:"origin_port_name,omitempty" db:"origin_port_name"`
	OriginPortCode      string `json:"origin_port_code,omitempty" db:"origin_port_code"`
	DestinationPortName string `json:"destination_port_name,omitempty" db:"destination_port_name"`
	DestinationPortCode string `json:"destination_port_code,omitempty" db:"destination_port_code"`
}

// ============================================================================
// SCHEDULES
// ============================================================================

// ScheduleStatus represents the lifecycle of a sailing
type ScheduleStatus string

const (
	ScheduleStatusScheduled ScheduleStatus = "SCHEDULED"
	ScheduleStatusDeparted  ScheduleStatus = "DEPARTED"
	ScheduleStatusCancelled ScheduleStatus = "CANCELLED"
	ScheduleStatusCompleted ScheduleStatus = "COMPLETED"
)

// Schedule is a single sailing of a ship on a route
type Schedule struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	RouteID        uuid.UUID      `json:"route_id" db:"route_id"`
	ShipID         uuid.UUID      `json:"ship_id" db:"ship_id"`
	DepartureTime  time.Time      `json:"departure_time" db:"departure_time"`
	ArrivalTime    time.Time      `json:"arrival_time" db:"arrival_time"`
	Price          int64          `json:"price" db:"price"`
	Capacity       int            `json:"capacity" db:"capacity"`
	AvailableSeats int            `json:"available_seats" db:"available_seats"`
	Status         ScheduleStatus `json:"status" db:"status"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// IsBookable reports whether seats can still be sold at the given time
func (s *Schedule) IsBookable(now time.Time) bool {
	return s.Status == ScheduleStatusScheduled && s.DepartureTime.After(now)
}

// ScheduleDetail is a schedule joined with its route, ports and ship
type ScheduleDetail struct {
	Schedule
	RouteSlug           string `json:"route_slug" db:"route_slug"`
	OriginPortCode      string `json:"origin_port_code" db:"origin_port_code"`
	OriginPortName      string `json:"origin_port_name" db:"origin_port_name"`
	DestinationPortCode string `json:"destination_port_code" db:"destination_port_code"`
	DestinationPortName string `json:"destination_port_name" db:"destination_port_name"`
	ShipName            string `json:"ship_name" db:"ship_name"`
}

// ScheduleSearchParams filters the public schedule search
type ScheduleSearchParams struct {
	Origin      string // port code or slug
	Destination string
	Date        time.Time
	Passengers  int
	Location    *time.Location
}

// ScheduleFilter filters the admin schedule list
type ScheduleFilter struct {
	RouteID *uuid.UUID
	ShipID  *uuid.UUID
	Status  *ScheduleStatus
	From    *time.Time
	To      *time.Time
	Limit   int
	Offset  int
}
