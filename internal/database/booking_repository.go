package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lautnusa/speedboat-backend/internal/models"
)

const bookingColumns = `
	id, code, user_id, schedule_id, status, passenger_count, total_amount,
	contact_name, contact_email, contact_phone, expires_at, confirmed_at,
	cancelled_at, created_at, updated_at`

const lockScheduleQuery = `
	SELECT id, route_id, ship_id, departure_time, arrival_time, price,
	       capacity, available_seats, status, created_at, updated_at
	FROM schedules
	WHERE id = $1
	FOR UPDATE`

// ConfirmOutcome describes what Confirm did
type ConfirmOutcome int

const (
	// ConfirmOutcomeConfirmed: booking was PENDING and is now CONFIRMED with tickets
	ConfirmOutcomeConfirmed ConfirmOutcome = iota
	// ConfirmOutcomeAlreadyConfirmed: nothing changed
	ConfirmOutcomeAlreadyConfirmed
	// ConfirmOutcomeReopened: booking was closed, seats were taken again and it is now CONFIRMED
	ConfirmOutcomeReopened
	// ConfirmOutcomeSeatsUnavailable: booking was closed and its seats are gone. Payment recorded SUCCESS.
	ConfirmOutcomeSeatsUnavailable
	// ConfirmOutcomeDuplicatePayment: booking was already CONFIRMED by another
	// payment. This one is recorded SUCCESS and needs a manual refund.
	ConfirmOutcomeDuplicatePayment
)

// TicketIssuer builds the ticket for one passenger
type TicketIssuer func(booking *models.Booking, passenger *models.Passenger) (*models.Ticket, error)

// BookingRepository handles booking and passenger database operations
type BookingRepository struct {
	db DB
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(db DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// ============================================================================
// CREATE
// ============================================================================

// Create reserves seats and inserts the booking with its passengers in one
// transaction. The schedule row is locked so available_seats never goes negative.
// TotalAmount is computed from the locked schedule price.
func (r *BookingRepository) Create(ctx context.Context, b *models.Booking, passengers []*models.Passenger, now time.Time) error {
	n := len(passengers)
	if n == 0 {
		return fmt.Errorf("%w: at least one passenger is required", models.ErrValidation)
	}

	return WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var s models.Schedule
		if err := tx.GetContext(ctx, &s, lockScheduleQuery, b.ScheduleID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrScheduleNotFound
			}
			return fmt.Errorf("failed to lock schedule: %w", err)
		}

		if !s.IsBookable(now) {
			return models.ErrScheduleNotBookable
		}
		if s.AvailableSeats < n {
			return models.ErrInsufficientSeats
		}

		labels, err := r.assignSeats(ctx, tx, &s, n)
		if err != nil {
			return err
		}

		if err := takeSeats(ctx, tx, s.ID, n); err != nil {
			return err
		}

		b.ID = uuid.New()
		b.Status = models.BookingStatusPending
		b.PassengerCount = n
		b.TotalAmount = s.Price * int64(n)
		b.CreatedAt = now
		b.UpdatedAt = now

		_, err = tx.ExecContext(ctx, `
			INSERT INTO bookings (
				id, code, user_id, schedule_id, status, passenger_count, total_amount,
				contact_name, contact_email, contact_phone, expires_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, b.ID, b.Code, b.UserID, b.ScheduleID, b.Status, b.PassengerCount, b.TotalAmount,
			b.ContactName, b.ContactEmail, b.ContactPhone, b.ExpiresAt, b.CreatedAt, b.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return models.ErrDuplicate
			}
			return fmt.Errorf("failed to insert booking: %w", err)
		}

		for i, p := range passengers {
			p.ID = uuid.New()
			p.BookingID = b.ID
			p.SeatLabel = labels[i]
			p.CreatedAt = now
			if p.PassengerType == "" {
				p.PassengerType = models.PassengerAdult
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO passengers (
					id, booking_id, full_name, identity_number, phone,
					passenger_type, seat_label, created_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, p.ID, p.BookingID, p.FullName, p.IdentityNumber, p.Phone,
				p.PassengerType, p.SeatLabel, p.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert passenger: %w", err)
			}
		}

		return nil
	})
}

// assignSeats picks the lowest free seat numbers among live bookings.
// Must run while the schedule row is locked.
func (r *BookingRepository) assignSeats(ctx context.Context, tx *sqlx.Tx, s *models.Schedule, n int) ([]string, error) {
	var taken []string
	err := tx.SelectContext(ctx, &taken, `
		SELECT p.seat_label
		FROM passengers p
		JOIN bookings b ON b.id = p.booking_id
		WHERE b.schedule_id = $1 AND b.status IN ('PENDING', 'CONFIRMED')
	`, s.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load taken seats: %w", err)
	}

	labels := FreeSeatLabels(s.Capacity, taken, n)
	if len(labels) < n {
		return nil, models.ErrInsufficientSeats
	}
	return labels, nil
}

// FreeSeatLabels returns up to n seat labels in 1..capacity not present in taken
func FreeSeatLabels(capacity int, taken []string, n int) []string {
	used := make(map[string]bool, len(taken))
	for _, t := range taken {
		used[t] = true
	}

	labels := make([]string, 0, n)
	for seat := 1; seat <= capacity && len(labels) < n; seat++ {
		label := seatLabel(seat)
		if !used[label] {
			labels = append(labels, label)
		}
	}
	return labels
}

func seatLabel(seat int) string {
	if seat < 10 {
		return "0" + strconv.Itoa(seat)
	}
	return strconv.Itoa(seat)
}

func takeSeats(ctx context.Context, tx *sqlx.Tx, scheduleID uuid.UUID, n int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE schedules
		SET available_seats = available_seats - $2, updated_at = NOW()
		WHERE id = $1 AND available_seats >= $2
	`, scheduleID, n)
	if err != nil {
		return fmt.Errorf("failed to take seats: %w", err)
	}
	return expectOne(result, models.ErrInsufficientSeats)
}

func releaseSeats(ctx context.Context, tx *sqlx.Tx, scheduleID uuid.UUID, n int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE schedules
		SET available_seats = LEAST(capacity, available_seats + $2), updated_at = NOW()
		WHERE id = $1
	`, scheduleID, n)
	if err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}
	return nil
}

// ============================================================================
// READS
// ============================================================================

// GetByCode retrieves a booking by its code. Returns nil if not found.
func (r *BookingRepository) GetByCode(ctx context.Context, code string) (*models.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE code = $1`, code)
}

// GetByID retrieves a booking by ID. Returns nil if not found.
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

func (r *BookingRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Booking, error) {
	var b models.Booking
	if err := r.db.GetContext(ctx, &b, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &b, nil
}

// ListByUser returns a user's bookings, newest first
func (r *BookingRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Booking, error) {
	bookings := []*models.Booking{}
	err := r.db.SelectContext(ctx, &bookings, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// GetPassengers returns the passengers of a booking in seat order
func (r *BookingRepository) GetPassengers(ctx context.Context, bookingID uuid.UUID) ([]*models.Passenger, error) {
	passengers := []*models.Passenger{}
	err := r.db.SelectContext(ctx, &passengers, `
		SELECT id, booking_id, full_name, identity_number, phone, passenger_type, seat_label, created_at
		FROM passengers
		WHERE booking_id = $1
		ORDER BY seat_label
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get passengers: %w", err)
	}
	return passengers, nil
}

// ListExpiredPending returns PENDING bookings whose payment window has passed
func (r *BookingRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	bookings := []*models.Booking{}
	err := r.db.SelectContext(ctx, &bookings, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'PENDING' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired bookings: %w", err)
	}
	return bookings, nil
}

// ListPendingBySchedule returns PENDING bookings of a schedule
func (r *BookingRepository) ListPendingBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*models.Booking, error) {
	bookings := []*models.Booking{}
	err := r.db.SelectContext(ctx, &bookings, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE schedule_id = $1 AND status = 'PENDING'
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending bookings: %w", err)
	}
	return bookings, nil
}

// ============================================================================
// STATE TRANSITIONS
// ============================================================================

// ReleaseAndClose moves a PENDING booking to status (CANCELLED or EXPIRED),
// gives its seats back and marks its pending payments with paymentStatus.
// Returns false without changes when the booking is no longer PENDING.
func (r *BookingRepository) ReleaseAndClose(ctx context.Context, bookingID uuid.UUID, status models.BookingStatus, paymentStatus models.PaymentStatus) (bool, error) {
	if status != models.BookingStatusCancelled && status != models.BookingStatusExpired {
		return false, fmt.Errorf("invalid close status %s", status)
	}

	released := false
	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		released, err = closePendingBooking(ctx, tx, bookingID, status)
		if err != nil || !released {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE payments
			SET status = $2, updated_at = NOW()
			WHERE booking_id = $1 AND status = 'PENDING'
		`, bookingID, paymentStatus)
		if err != nil {
			return fmt.Errorf("failed to close payments: %w", err)
		}
		return nil
	})

	return released, err
}

// ClosePayment records a terminal gateway failure (FAILED, CANCELLED or
// EXPIRED) for a PENDING payment and, in the same transaction, closes its
// PENDING booking with status and releases the seats. closed is false when the
// payment had already left PENDING; released is false when the booking had.
func (r *BookingRepository) ClosePayment(ctx context.Context, bookingID, paymentID uuid.UUID, upd models.PaymentUpdate, status models.BookingStatus) (closed, released bool, err error) {
	if status != models.BookingStatusCancelled && status != models.BookingStatusExpired {
		return false, false, fmt.Errorf("invalid close status %s", status)
	}

	err = WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE payments
			SET status = $2,
			    gateway_status = COALESCE($3, gateway_status),
			    gateway_transaction_id = COALESCE($4, gateway_transaction_id),
			    method = COALESCE($5, method),
			    updated_at = NOW()
			WHERE id = $1 AND status = 'PENDING'
		`, paymentID, upd.Status, nullIfEmpty(upd.GatewayStatus), nullIfEmpty(upd.GatewayTransactionID), nullIfEmpty(upd.Method))
		if err != nil {
			return fmt.Errorf("failed to close payment: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil
		}
		closed = true

		released, err = closePendingBooking(ctx, tx, bookingID, status)
		return err
	})
	if err != nil {
		return false, false, err
	}

	return closed, released, nil
}

// closePendingBooking moves a PENDING booking to status and gives its seats
// back. Returns false when the booking is no longer PENDING.
func closePendingBooking(ctx context.Context, tx *sqlx.Tx, bookingID uuid.UUID, status models.BookingStatus) (bool, error) {
	var row struct {
		ScheduleID     uuid.UUID `db:"schedule_id"`
		PassengerCount int       `db:"passenger_count"`
	}
	err := tx.GetContext(ctx, &row, `
		UPDATE bookings
		SET status = $2, cancelled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING schedule_id, passenger_count
	`, bookingID, status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to close booking: %w", err)
	}

	if err := releaseSeats(ctx, tx, row.ScheduleID, row.PassengerCount); err != nil {
		return false, err
	}
	return true, nil
}

// Confirm records a successful payment and confirms the booking with one
// ticket per passenger, all in one transaction.
//
//   - PENDING booking: confirmed.
//   - CONFIRMED booking: payment recorded, nothing else. A different payment
//     having confirmed it is reported as ConfirmOutcomeDuplicatePayment.
//   - CANCELLED/EXPIRED booking: seats are taken again when the sailing is still
//     bookable, otherwise only the payment is recorded.
func (r *BookingRepository) Confirm(ctx context.Context, bookingID, paymentID uuid.UUID, upd models.PaymentUpdate, issue TicketIssuer, now time.Time) (ConfirmOutcome, []*models.Ticket, error) {
	var outcome ConfirmOutcome
	var tickets []*models.Ticket

	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var b models.Booking
		err := tx.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, bookingID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrBookingNotFound
			}
			return fmt.Errorf("failed to lock booking: %w", err)
		}

		marked, err := markPaymentSuccess(ctx, tx, paymentID, upd, now)
		if err != nil {
			return err
		}

		passengers := []*models.Passenger{}
		switch b.Status {
		case models.BookingStatusConfirmed:
			// Confirmation marks its own payment SUCCESS in this same
			// transaction, so a payment newly marked here is a second capture.
			outcome = ConfirmOutcomeAlreadyConfirmed
			if marked {
				outcome = ConfirmOutcomeDuplicatePayment
			}
			return nil

		case models.BookingStatusPending:
			outcome = ConfirmOutcomeConfirmed
			if err := tx.SelectContext(ctx, &passengers, `
				SELECT id, booking_id, full_name, identity_number, phone, passenger_type, seat_label, created_at
				FROM passengers WHERE booking_id = $1 ORDER BY seat_label
			`, b.ID); err != nil {
				return fmt.Errorf("failed to load passengers: %w", err)
			}

		default:
			ok, err := r.retakeSeats(ctx, tx, &b, &passengers, now)
			if err != nil {
				return err
			}
			if !ok {
				outcome = ConfirmOutcomeSeatsUnavailable
				return nil
			}
			// Tickets voided by an earlier refund still hold the passenger_id
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM tickets WHERE booking_id = $1 AND status = 'CANCELLED'
			`, b.ID); err != nil {
				return fmt.Errorf("failed to remove voided tickets: %w", err)
			}
			outcome = ConfirmOutcomeReopened
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE bookings
			SET status = 'CONFIRMED', confirmed_at = $2, cancelled_at = NULL, updated_at = $2
			WHERE id = $1
		`, b.ID, now)
		if err != nil {
			return fmt.Errorf("failed to confirm booking: %w", err)
		}
		b.Status = models.BookingStatusConfirmed
		b.ConfirmedAt = &now

		for _, p := range passengers {
			t, err := issue(&b, p)
			if err != nil {
				return fmt.Errorf("failed to issue ticket: %w", err)
			}
			t.ID = uuid.New()
			t.BookingID = b.ID
			t.PassengerID = p.ID
			t.ScheduleID = b.ScheduleID
			t.Status = models.TicketStatusActive
			t.CreatedAt = now
			t.PassengerName = p.FullName

			_, err = tx.ExecContext(ctx, `
				INSERT INTO tickets (id, code, booking_id, passenger_id, schedule_id, qr_payload, status, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, t.ID, t.Code, t.BookingID, t.PassengerID, t.ScheduleID, t.QRPayload, t.Status, t.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert ticket: %w", err)
			}
			tickets = append(tickets, t)
		}

		return nil
	})
	if err != nil {
		return 0, nil, err
	}

	return outcome, tickets, nil
}

// retakeSeats tries to reserve seats again for a closed booking. Passengers get
// fresh seat labels. Returns false when the sailing can no longer take them.
func (r *BookingRepository) retakeSeats(ctx context.Context, tx *sqlx.Tx, b *models.Booking, passengers *[]*models.Passenger, now time.Time) (bool, error) {
	var s models.Schedule
	if err := tx.GetContext(ctx, &s, lockScheduleQuery, b.ScheduleID); err != nil {
		return false, fmt.Errorf("failed to lock schedule: %w", err)
	}
	if !s.IsBookable(now) || s.AvailableSeats < b.PassengerCount {
		return false, nil
	}

	labels, err := r.assignSeats(ctx, tx, &s, b.PassengerCount)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientSeats) {
			return false, nil
		}
		return false, err
	}

	if err := takeSeats(ctx, tx, s.ID, b.PassengerCount); err != nil {
		return false, err
	}

	if err := tx.SelectContext(ctx, passengers, `
		SELECT id, booking_id, full_name, identity_number, phone, passenger_type, seat_label, created_at
		FROM passengers WHERE booking_id = $1 ORDER BY created_at, id
	`, b.ID); err != nil {
		return false, fmt.Errorf("failed to load passengers: %w", err)
	}

	for i, p := range *passengers {
		if i >= len(labels) {
			break
		}
		p.SeatLabel = labels[i]
		if _, err := tx.ExecContext(ctx, `UPDATE passengers SET seat_label = $2 WHERE id = $1`, p.ID, p.SeatLabel); err != nil {
			return false, fmt.Errorf("failed to update seat label: %w", err)
		}
	}

	return true, nil
}

// markPaymentSuccess records a gateway success. A success outranks every
// local outcome except a refund that already happened. paid_at falls back to
// now when the gateway sent no settlement time. Returns false when the payment
// was already SUCCESS or REFUNDED.
func markPaymentSuccess(ctx context.Context, tx *sqlx.Tx, paymentID uuid.UUID, upd models.PaymentUpdate, now time.Time) (bool, error) {
	paidAt := now
	if upd.PaidAt != nil {
		paidAt = *upd.PaidAt
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE payments
		SET status = 'SUCCESS',
		    gateway_status = COALESCE($2, gateway_status),
		    gateway_transaction_id = COALESCE($3, gateway_transaction_id),
		    method = COALESCE($4, method),
		    paid_at = COALESCE(paid_at, $5),
		    updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('SUCCESS', 'REFUNDED')
	`, paymentID, nullIfEmpty(upd.GatewayStatus), nullIfEmpty(upd.GatewayTransactionID), nullIfEmpty(upd.Method), paidAt)
	if err != nil {
		return false, fmt.Errorf("failed to record payment success: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Refund records a refund of a successful payment. A CONFIRMED booking is
// cancelled, its tickets are voided and seats go back on sale if the sailing
// has not left. Returns false when the payment was not SUCCESS.
func (r *BookingRepository) Refund(ctx context.Context, bookingID, paymentID uuid.UUID, upd models.PaymentUpdate) (bool, error) {
	refunded := false
	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE payments
			SET status = 'REFUNDED',
			    gateway_status = COALESCE($2, gateway_status),
			    updated_at = NOW()
			WHERE id = $1 AND status = 'SUCCESS'
		`, paymentID, nullIfEmpty(upd.GatewayStatus))
		if err != nil {
			return fmt.Errorf("failed to record refund: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil
		}
		refunded = true

		var row struct {
			ScheduleID     uuid.UUID `db:"schedule_id"`
			PassengerCount int       `db:"passenger_count"`
		}
		err = tx.GetContext(ctx, &row, `
			UPDATE bookings
			SET status = 'CANCELLED', cancelled_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND status = 'CONFIRMED'
			RETURNING schedule_id, passenger_count
		`, bookingID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("failed to cancel refunded booking: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE tickets SET status = 'CANCELLED'
			WHERE booking_id = $1 AND status = 'ACTIVE'
		`, bookingID); err != nil {
			return fmt.Errorf("failed to void tickets: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE schedules
			SET available_seats = LEAST(capacity, available_seats + $2), updated_at = NOW()
			WHERE id = $1 AND status = 'SCHEDULED' AND departure_time > NOW()
		`, row.ScheduleID, row.PassengerCount)
		if err != nil {
			return fmt.Errorf("failed to release seats: %w", err)
		}
		return nil
	})

	return refunded, err
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
