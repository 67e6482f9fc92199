package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/models"
)

// TicketRepository handles ticket reads and check-in
type TicketRepository struct {
	db DB
}

// NewTicketRepository creates a new ticket repository
func NewTicketRepository(db DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// ListByBooking returns the tickets of a booking with passenger names
func (r *TicketRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*models.Ticket, error) {
	tickets := []*models.Ticket{}
	err := r.db.SelectContext(ctx, &tickets, `
		SELECT t.id, t.code, t.booking_id, t.passenger_id, t.schedule_id, t.qr_payload,
		       t.status, t.checked_in_at, t.checked_in_by, t.created_at,
		       p.full_name AS passenger_name
		FROM tickets t
		JOIN passengers p ON p.id = t.passenger_id
		WHERE t.booking_id = $1
		ORDER BY p.seat_label
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

// GetLookupByCode loads a ticket with booking, passenger and sailing. Returns nil if not found.
func (r *TicketRepository) GetLookupByCode(ctx context.Context, code string) (*models.TicketLookup, error) {
	var lookup models.TicketLookup
	err := r.db.GetContext(ctx, &lookup, `
		SELECT t.id, t.code, t.booking_id, t.passenger_id, t.schedule_id, t.qr_payload,
		       t.status, t.checked_in_at, t.checked_in_by, t.created_at,
		       p.full_name AS passenger_name,
		       b.code AS booking_code, b.status AS booking_status,
		       p.identity_number, p.passenger_type, p.seat_label,
		       s.departure_time, s.status AS schedule_status
		FROM tickets t
		JOIN passengers p ON p.id = t.passenger_id
		JOIN bookings b ON b.id = t.booking_id
		JOIN schedules s ON s.id = t.schedule_id
		WHERE t.code = $1
	`, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return &lookup, nil
}

// ListManifest returns every ticketed passenger of a sailing in seat order
func (r *TicketRepository) ListManifest(ctx context.Context, scheduleID uuid.UUID) ([]*models.ManifestEntry, error) {
	entries := []*models.ManifestEntry{}
	err := r.db.SelectContext(ctx, &entries, `
		SELECT t.code AS ticket_code, t.status AS ticket_status, b.code AS booking_code,
		       p.full_name, p.identity_number, p.passenger_type, p.seat_label,
		       b.contact_phone, t.checked_in_at
		FROM tickets t
		JOIN passengers p ON p.id = t.passenger_id
		JOIN bookings b ON b.id = t.booking_id
		WHERE t.schedule_id = $1 AND b.status = 'CONFIRMED' AND t.status <> 'CANCELLED'
		ORDER BY p.seat_label
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list manifest: %w", err)
	}
	return entries, nil
}

// CheckIn marks an ACTIVE ticket as used. Returns models.ErrAlreadyCheckedIn
// when another scan got there first.
func (r *TicketRepository) CheckIn(ctx context.Context, ticketID, operatorID uuid.UUID, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE tickets
		SET status = 'USED', checked_in_at = $3, checked_in_by = $2
		WHERE id = $1 AND status = 'ACTIVE' AND checked_in_at IS NULL
	`, ticketID, operatorID, at)
	if err != nil {
		return fmt.Errorf("failed to check in ticket: %w", err)
	}
	return expectOne(result, models.ErrAlreadyCheckedIn)
}
