package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// BOOKING STATUSES
// ============================================================================

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"   // Seats taken, waiting for payment
	BookingStatusConfirmed BookingStatus = "CONFIRMED" // Paid, tickets issued
	BookingStatusCancelled BookingStatus = "CANCELLED" // Payment failed or customer cancelled, seats released
	BookingStatusExpired   BookingStatus = "EXPIRED"   // Payment window elapsed, seats released
)

// PassengerType drives nothing but reporting today
type PassengerType string

const (
	PassengerAdult  PassengerType = "ADULT"
	PassengerChild  PassengerType = "CHILD"
	PassengerInfant PassengerType = "INFANT"
)

// ============================================================================
// BOOKING
// ============================================================================

// Booking is a reservation of seats on a schedule
type Booking struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	Code           string        `json:"code" db:"code"`
	UserID         uuid.UUID     `json:"user_id" db:"user_id"`
	ScheduleID     uuid.UUID     `json:"schedule_id" db:"schedule_id"`
	Status         BookingStatus `json:"status" db:"status"`
	PassengerCount int           `json:"passenger_count" db:"passenger_count"`
	TotalAmount    int64         `json:"total_amount" db:"total_amount"`
	ContactName    string        `json:"contact_name" db:"contact_name"`
	ContactEmail   string        `json:"contact_email" db:"contact_email"`
	ContactPhone   string        `json:"contact_phone" db:"contact_phone"`
	ExpiresAt      time.Time     `json:"expires_at" db:"expires_at"`
	ConfirmedAt    *time.Time    `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CancelledAt    *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// IsExpired reports whether the payment window has elapsed
func (b *Booking) IsExpired(now time.Time) bool {
	return !now.Before(b.ExpiresAt)
}

// CanPay reports whether a payment may be started for the booking
func (b *Booking) CanPay(now time.Time) bool {
	return b.Status == BookingStatusPending && !b.IsExpired(now)
}

// IsClosed is true once seats have been released
func (b *Booking) IsClosed() bool {
	return b.Status == BookingStatusCancelled || b.Status == BookingStatusExpired
}

// Passenger is a traveller on a booking
type Passenger struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	BookingID      uuid.UUID     `json:"booking_id" db:"booking_id"`
	FullName       string        `json:"full_name" db:"full_name"`
	IdentityNumber string        `json:"identity_number" db:"identity_number"`
	Phone          *string       `json:"phone,omitempty" db:"phone"`
	PassengerType  PassengerType `json:"passenger_type" db:"passenger_type"`
	SeatLabel      string        `json:"seat_label" db:"seat_label"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// BookingDetail is what the customer sees for one booking
type BookingDetail struct {
	Booking    *Booking        `json:"booking"`
	Schedule   *ScheduleDetail `json:"schedule,omitempty"`
	Passengers []*Passenger    `json:"passengers"`
	Payment    *Payment        `json:"payment,omitempty"`
	Tickets    []*Ticket       `json:"tickets,omitempty"`
}

// ============================================================================
// REQUEST DTOs
// ============================================================================

// PassengerInput is one passenger in a booking request
type PassengerInput struct {
	FullName       string        `json:"full_name" binding:"required,min=2,max=120"`
	IdentityNumber string        `json:"identity_number" binding:"required,min=4,max=32"`
	Phone          string        `json:"phone" binding:"omitempty,id_phone"`
	PassengerType  PassengerType `json:"passenger_type" binding:"omitempty,passenger_type"`
}

// CreateBookingRequest is the payload for POST /bookings
type CreateBookingRequest struct {
	ScheduleID   uuid.UUID        `json:"schedule_id" binding:"required"`
	ContactName  string           `json:"contact_name" binding:"required,min=2,max=120"`
	ContactEmail string           `json:"contact_email" binding:"required,email"`
	ContactPhone string           `json:"contact_phone" binding:"required,id_phone"`
	Passengers   []PassengerInput `json:"passengers" binding:"required,min=1,dive"`
}
