package models

import (
	"time"

	"github.com/google/uuid"
)

// Update requests use pointer fields: nil means "leave unchanged".

// CreatePortRequest is the payload for creating a port
type CreatePortRequest struct {
	Code string `json:"code" binding:"required,min=2,max=8,alphanum"`
	Name string `json:"name" binding:"required,min=2,max=100"`
	City string `json:"city" binding:"required,max=100"`
}

// UpdatePortRequest is the payload for updating a port
type UpdatePortRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=2,max=100"`
	City     *string `json:"city" binding:"omitempty,max=100"`
	IsActive *bool   `json:"is_active"`
}

// CreateShipRequest is the payload for creating a ship
type CreateShipRequest struct {
	Name               string   `json:"name" binding:"required,min=2,max=100"`
	RegistrationNumber string   `json:"registration_number" binding:"required,max=50"`
	Capacity           int      `json:"capacity" binding:"required,gt=0,lte=1000"`
	Facilities         []string `json:"facilities"`
	Description        *string  `json:"description"`
}

// UpdateShipRequest is the payload for updating a ship
type UpdateShipRequest struct {
	Name        *string   `json:"name" binding:"omitempty,min=2,max=100"`
	Capacity    *int      `json:"capacity" binding:"omitempty,gt=0,lte=1000"`
	Facilities  *[]string `json:"facilities"`
	Description *string   `json:"description"`
	IsActive    *bool     `json:"is_active"`
}

// CreateRouteRequest is the payload for creating a route
type CreateRouteRequest struct {
	OriginPortID      uuid.UUID `json:"origin_port_id" binding:"required"`
	DestinationPortID uuid.UUID `json:"destination_port_id" binding:"required"`
	DurationMinutes   int       `json:"duration_minutes" binding:"required,gt=0"`
}

// UpdateRouteRequest is the payload for updating a route
type UpdateRouteRequest struct {
	DurationMinutes *int  `json:"duration_minutes" binding:"omitempty,gt=0"`
	IsActive        *bool `json:"is_active"`
}

// CreateScheduleRequest is the payload for creating a schedule
type CreateScheduleRequest struct {
	RouteID       uuid.UUID  `json:"route_id" binding:"required"`
	ShipID        uuid.UUID  `json:"ship_id" binding:"required"`
	DepartureTime time.Time  `json:"departure_time" binding:"required"`
	ArrivalTime   *time.Time `json:"arrival_time"` // defaults to departure + route duration
	Price         int64      `json:"price" binding:"required,gt=0"`
	Capacity      *int       `json:"capacity" binding:"omitempty,gt=0"` // defaults to ship capacity
}

// UpdateScheduleRequest is the payload for updating a schedule
type UpdateScheduleRequest struct {
	DepartureTime *time.Time `json:"departure_time"`
	ArrivalTime   *time.Time `json:"arrival_time"`
	Price         *int64     `json:"price" binding:"omitempty,gt=0"`
	Capacity      *int       `json:"capacity" binding:"omitempty,gt=0"`
}

// UpdateUserRoleRequest is the payload for changing a user's role
type UpdateUserRoleRequest struct {
	Role Role `json:"role" binding:"required,oneof=USER OPERATOR ADMIN"`
}
