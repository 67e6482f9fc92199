package models

import (
	"time"

	"github.com/google/uuid"
)

// TicketStatus represents the status of an issued ticket
type TicketStatus string

const (
	TicketStatusActive    TicketStatus = "ACTIVE"
	TicketStatusUsed      TicketStatus = "USED"
	TicketStatusCancelled TicketStatus = "CANCELLED"
)

// Ticket is issued per passenger once the booking is paid
type Ticket struct {
	ID          uuid.UUID    `json:"id" db:"id"`
	Code        string       `json:"code" db:"code"`
	BookingID   uuid.UUID    `json:"booking_id" db:"booking_id"`
	PassengerID uuid.UUID    `json:"passenger_id" db:"passenger_id"`
	ScheduleID  uuid.UUID    `json:"schedule_id" db:"schedule_id"`
	QRPayload   string       `json:"qr_payload" db:"qr_payload"`
	Status      TicketStatus `json:"status" db:"status"`
	CheckedInAt *time.Time   `json:"checked_in_at,omitempty" db:"checked_in_at"`
	CheckedInBy *uuid.UUID   `json:"checked_in_by,omitempty" db:"checked_in_by"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`

	// Joined
	PassengerName string `json:"passenger_name,omitempty" db:"passenger_name"`
}

// TicketLookup is a ticket joined with everything a gate check needs
type TicketLookup struct {
	Ticket
	BookingCode    string         `db:"booking_code"`
	BookingStatus  BookingStatus  `db:"booking_status"`
	IdentityNumber string         `db:"identity_number"`
	PassengerType  PassengerType  `db:"passenger_type"`
	SeatLabel      string         `db:"seat_label"`
	DepartureTime  time.Time      `db:"departure_time"`
	ScheduleStatus ScheduleStatus `db:"schedule_status"`
}

// ============================================================================
// MANIFEST
// ============================================================================

// ManifestEntry is one passenger line on a manifest
type ManifestEntry struct {
	TicketCode     string        `json:"ticket_code" db:"ticket_code"`
	TicketStatus   TicketStatus  `json:"ticket_status" db:"ticket_status"`
	BookingCode    string        `json:"booking_code" db:"booking_code"`
	FullName       string        `json:"full_name" db:"full_name"`
	IdentityNumber string        `json:"identity_number" db:"identity_number"`
	PassengerType  PassengerType `json:"passenger_type" db:"passenger_type"`
	SeatLabel      string        `json:"seat_label" db:"seat_label"`
	ContactPhone   string        `json:"contact_phone" db:"contact_phone"`
	CheckedInAt    *time.Time    `json:"checked_in_at,omitempty" db:"checked_in_at"`
}

// Manifest lists every confirmed passenger of a sailing
type Manifest struct {
	Schedule  *ScheduleDetail  `json:"schedule"`
	Entries   []*ManifestEntry `json:"entries"`
	Booked    int              `json:"booked"`
	CheckedIn int              `json:"checked_in"`
	Capacity  int              `json:"capacity"`
	Generated time.Time        `json:"generated_at"`
}

// TicketValidation is the answer to a gate scan
type TicketValidation struct {
	Valid       bool       `json:"valid"`
	Reason      string     `json:"reason,omitempty"`
	TicketCode  string     `json:"ticket_code,omitempty"`
	BookingCode string     `json:"booking_code,omitempty"`
	Passenger   string     `json:"passenger,omitempty"`
	Identity    string     `json:"identity_number,omitempty"`
	SeatLabel   string     `json:"seat_label,omitempty"`
	ScheduleID  *uuid.UUID `json:"schedule_id,omitempty"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
}

// TicketScanRequest is the payload for validate and check-in
type TicketScanRequest struct {
	Code       string     `json:"code" binding:"required"` // QR payload or ticket code
	ScheduleID *uuid.UUID `json:"schedule_id"`
}
