package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scheduleRowColumns = []string{
	"id", "route_id", "ship_id", "departure_time", "arrival_time", "price",
	"capacity", "available_seats", "status", "created_at", "updated_at",
}

var bookingRowColumns = []string{
	"id", "code", "user_id", "schedule_id", "status", "passenger_count", "total_amount",
	"contact_name", "contact_email", "contact_phone", "expires_at", "confirmed_at",
	"cancelled_at", "created_at", "updated_at",
}

var passengerRowColumns = []string{
	"id", "booking_id", "full_name", "identity_number", "phone", "passenger_type", "seat_label", "created_at",
}

func scheduleRow(id uuid.UUID, departure time.Time, capacity, available int, status string) *sqlmock.Rows {
	return sqlmock.NewRows(scheduleRowColumns).AddRow(
		id, uuid.New(), uuid.New(), departure, departure.Add(2*time.Hour), int64(150000),
		capacity, available, status, departure, departure,
	)
}

func newTestBooking(scheduleID uuid.UUID, now time.Time) *models.Booking {
	return &models.Booking{
		Code:         "SB261018ABC234",
		UserID:       uuid.New(),
		ScheduleID:   scheduleID,
		ContactName:  "Ayu",
		ContactEmail: "ayu@example.com",
		ContactPhone: "081234567890",
		ExpiresAt:    now.Add(30 * time.Minute),
	}
}

func TestFreeSeatLabels(t *testing.T) {
	assert.Equal(t, []string{"01", "02"}, FreeSeatLabels(10, nil, 2))
	assert.Equal(t, []string{"02", "04", "05"}, FreeSeatLabels(10, []string{"01", "03"}, 3))
	assert.Equal(t, []string{"10"}, FreeSeatLabels(10, []string{"01", "02", "03", "04", "05", "06", "07", "08", "09"}, 2))
	assert.Empty(t, FreeSeatLabels(0, nil, 1))
}

func TestCreateBooking(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	scheduleID := uuid.New()

	passengers := func() []*models.Passenger {
		return []*models.Passenger{
			{FullName: "Ayu", IdentityNumber: "3201010101010001"},
			{FullName: "Budi", IdentityNumber: "3201010101010002", PassengerType: models.PassengerChild},
		}
	}

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .+ FROM schedules\s+WHERE id = \$1\s+FOR UPDATE`).
			WithArgs(scheduleID).
			WillReturnRows(scheduleRow(scheduleID, now.Add(24*time.Hour), 20, 5, "SCHEDULED"))
		mock.ExpectQuery(`SELECT p.seat_label`).
			WithArgs(scheduleID).
			WillReturnRows(sqlmock.NewRows([]string{"seat_label"}).AddRow("01").AddRow("03"))
		mock.ExpectExec(`UPDATE schedules\s+SET available_seats = available_seats - \$2`).
			WithArgs(scheduleID, 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO bookings`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO passengers`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO passengers`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		b := newTestBooking(scheduleID, now)
		ps := passengers()
		require.NoError(t, repo.Create(ctx, b, ps, now))

		assert.Equal(t, models.BookingStatusPending, b.Status)
		assert.Equal(t, 2, b.PassengerCount)
		assert.Equal(t, int64(300000), b.TotalAmount)
		assert.Equal(t, "02", ps[0].SeatLabel)
		assert.Equal(t, "04", ps[1].SeatLabel)
		assert.Equal(t, models.PassengerAdult, ps[0].PassengerType)
		assert.Equal(t, b.ID, ps[1].BookingID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Insufficient Seats", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM schedules`).
			WillReturnRows(scheduleRow(scheduleID, now.Add(24*time.Hour), 20, 1, "SCHEDULED"))
		mock.ExpectRollback()

		err := repo.Create(ctx, newTestBooking(scheduleID, now), passengers(), now)
		assert.ErrorIs(t, err, models.ErrInsufficientSeats)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Departed Schedule", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM schedules`).
			WillReturnRows(scheduleRow(scheduleID, now.Add(-time.Minute), 20, 20, "SCHEDULED"))
		mock.ExpectRollback()

		err := repo.Create(ctx, newTestBooking(scheduleID, now), passengers(), now)
		assert.ErrorIs(t, err, models.ErrScheduleNotBookable)
	})

	t.Run("Unknown Schedule", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM schedules`).
			WillReturnRows(sqlmock.NewRows(scheduleRowColumns))
		mock.ExpectRollback()

		err := repo.Create(ctx, newTestBooking(scheduleID, now), passengers(), now)
		assert.ErrorIs(t, err, models.ErrScheduleNotFound)
	})

	t.Run("Duplicate Code", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM schedules`).
			WillReturnRows(scheduleRow(scheduleID, now.Add(24*time.Hour), 20, 20, "SCHEDULED"))
		mock.ExpectQuery(`SELECT p.seat_label`).
			WillReturnRows(sqlmock.NewRows([]string{"seat_label"}))
		mock.ExpectExec(`UPDATE schedules`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO bookings`).
			WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		err := repo.Create(ctx, newTestBooking(scheduleID, now), passengers(), now)
		assert.ErrorIs(t, err, models.ErrDuplicate)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("No Passengers", func(t *testing.T) {
		db, _ := newMockDB(t)
		repo := NewBookingRepository(db)

		err := repo.Create(ctx, newTestBooking(scheduleID, now), nil, now)
		assert.ErrorIs(t, err, models.ErrValidation)
	})
}

func TestReleaseAndClose(t *testing.T) {
	ctx := context.Background()
	bookingID := uuid.New()
	scheduleID := uuid.New()

	t.Run("Pending Booking Released", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE bookings\s+SET status = \$2`).
			WithArgs(bookingID, models.BookingStatusExpired).
			WillReturnRows(sqlmock.NewRows([]string{"schedule_id", "passenger_count"}).AddRow(scheduleID, 3))
		mock.ExpectExec(`LEAST\(capacity, available_seats \+ \$2\)`).
			WithArgs(scheduleID, 3).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE payments`).
			WithArgs(bookingID, models.PaymentStatusExpired).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		released, err := repo.ReleaseAndClose(ctx, bookingID, models.BookingStatusExpired, models.PaymentStatusExpired)
		require.NoError(t, err)
		assert.True(t, released)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Already Closed", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE bookings`).
			WillReturnRows(sqlmock.NewRows([]string{"schedule_id", "passenger_count"}))
		mock.ExpectCommit()

		released, err := repo.ReleaseAndClose(ctx, bookingID, models.BookingStatusCancelled, models.PaymentStatusCancelled)
		require.NoError(t, err)
		assert.False(t, released)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Invalid Status", func(t *testing.T) {
		db, _ := newMockDB(t)
		repo := NewBookingRepository(db)

		_, err := repo.ReleaseAndClose(ctx, bookingID, models.BookingStatusConfirmed, models.PaymentStatusCancelled)
		assert.Error(t, err)
	})
}

func TestClosePayment(t *testing.T) {
	ctx := context.Background()
	bookingID := uuid.New()
	paymentID := uuid.New()
	scheduleID := uuid.New()
	upd := models.PaymentUpdate{Status: models.PaymentStatusFailed, GatewayStatus: "deny", GatewayTransactionID: "trx-9"}

	t.Run("Payment And Booking Closed Together", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE payments\s+SET status = \$2`).
			WithArgs(paymentID, models.PaymentStatusFailed, "deny", "trx-9", nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`UPDATE bookings\s+SET status = \$2`).
			WithArgs(bookingID, models.BookingStatusCancelled).
			WillReturnRows(sqlmock.NewRows([]string{"schedule_id", "passenger_count"}).AddRow(scheduleID, 2))
		mock.ExpectExec(`LEAST\(capacity, available_seats \+ \$2\)`).
			WithArgs(scheduleID, 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		closed, released, err := repo.ClosePayment(ctx, bookingID, paymentID, upd, models.BookingStatusCancelled)
		require.NoError(t, err)
		assert.True(t, closed)
		assert.True(t, released)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Seat Release Failure Rolls Back Payment", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE payments`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`UPDATE bookings`).
			WillReturnRows(sqlmock.NewRows([]string{"schedule_id", "passenger_count"}).AddRow(scheduleID, 2))
		mock.ExpectExec(`UPDATE schedules`).WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		closed, released, err := repo.ClosePayment(ctx, bookingID, paymentID, upd, models.BookingStatusCancelled)
		require.Error(t, err)
		assert.False(t, closed)
		assert.False(t, released)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Payment Already Closed", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE payments`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		closed, released, err := repo.ClosePayment(ctx, bookingID, paymentID, upd, models.BookingStatusExpired)
		require.NoError(t, err)
		assert.False(t, closed)
		assert.False(t, released)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Invalid Status", func(t *testing.T) {
		db, _ := newMockDB(t)
		repo := NewBookingRepository(db)

		_, _, err := repo.ClosePayment(ctx, bookingID, paymentID, upd, models.BookingStatusConfirmed)
		assert.Error(t, err)
	})
}

func bookingRow(id, scheduleID uuid.UUID, status models.BookingStatus, count int, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(bookingRowColumns).AddRow(
		id, "SB261018ABC234", uuid.New(), scheduleID, string(status), count, int64(150000)*int64(count),
		"Ayu", "ayu@example.com", "081234567890", now.Add(30*time.Minute), nil,
		nil, now, now,
	)
}

func TestConfirmBooking(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	bookingID := uuid.New()
	paymentID := uuid.New()
	scheduleID := uuid.New()
	upd := models.PaymentUpdate{Status: models.PaymentStatusSuccess, GatewayStatus: "settlement", GatewayTransactionID: "trx-1", Method: "bank_transfer"}

	issuer := func(b *models.Booking, p *models.Passenger) (*models.Ticket, error) {
		return &models.Ticket{Code: "TK-" + p.SeatLabel, QRPayload: "qr-" + p.SeatLabel}, nil
	}

	t.Run("Pending Booking", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).
			WithArgs(bookingID).
			WillReturnRows(bookingRow(bookingID, scheduleID, models.BookingStatusPending, 2, now))
		// no settlement time: paid_at falls back to the confirmation time
		mock.ExpectExec(`UPDATE payments\s+SET status = 'SUCCESS'`).
			WithArgs(paymentID, "settlement", "trx-1", "bank_transfer", now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`FROM passengers WHERE booking_id = \$1`).
			WithArgs(bookingID).
			WillReturnRows(sqlmock.NewRows(passengerRowColumns).
				AddRow(uuid.New(), bookingID, "Ayu", "1", nil, "ADULT", "01", now).
				AddRow(uuid.New(), bookingID, "Budi", "2", nil, "ADULT", "02", now))
		mock.ExpectExec(`UPDATE bookings\s+SET status = 'CONFIRMED'`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO tickets`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO tickets`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		outcome, tickets, err := repo.Confirm(ctx, bookingID, paymentID, upd, issuer, now)
		require.NoError(t, err)
		assert.Equal(t, ConfirmOutcomeConfirmed, outcome)
		require.Len(t, tickets, 2)
		assert.Equal(t, "TK-01", tickets[0].Code)
		assert.Equal(t, models.TicketStatusActive, tickets[0].Status)
		assert.Equal(t, "Budi", tickets[1].PassengerName)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Already Confirmed", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM bookings`).
			WillReturnRows(bookingRow(bookingID, scheduleID, models.BookingStatusConfirmed, 2, now))
		mock.ExpectExec(`UPDATE payments`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		outcome, tickets, err := repo.Confirm(ctx, bookingID, paymentID, upd, issuer, now)
		require.NoError(t, err)
		assert.Equal(t, ConfirmOutcomeAlreadyConfirmed, outcome)
		assert.Empty(t, tickets)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate Payment", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM bookings`).
			WillReturnRows(bookingRow(bookingID, scheduleID, models.BookingStatusConfirmed, 2, now))
		mock.ExpectExec(`UPDATE payments\s+SET status = 'SUCCESS'`).
			WithArgs(paymentID, "settlement", "trx-1", "bank_transfer", now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		outcome, tickets, err := repo.Confirm(ctx, bookingID, paymentID, upd, issuer, now)
		require.NoError(t, err)
		assert.Equal(t, ConfirmOutcomeDuplicatePayment, outcome)
		assert.Empty(t, tickets)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Expired Booking Without Seats", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM bookings`).
			WillReturnRows(bookingRow(bookingID, scheduleID, models.BookingStatusExpired, 2, now))
		mock.ExpectExec(`UPDATE payments`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`FROM schedules`).
			WithArgs(scheduleID).
			WillReturnRows(scheduleRow(scheduleID, now.Add(time.Hour), 20, 1, "SCHEDULED"))
		mock.ExpectCommit()

		outcome, _, err := repo.Confirm(ctx, bookingID, paymentID, upd, issuer, now)
		require.NoError(t, err)
		assert.Equal(t, ConfirmOutcomeSeatsUnavailable, outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Expired Booking Reopened", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM bookings`).
			WillReturnRows(bookingRow(bookingID, scheduleID, models.BookingStatusExpired, 1, now))
		mock.ExpectExec(`UPDATE payments`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`FROM schedules`).
			WillReturnRows(scheduleRow(scheduleID, now.Add(time.Hour), 20, 4, "SCHEDULED"))
		mock.ExpectQuery(`SELECT p.seat_label`).
			WillReturnRows(sqlmock.NewRows([]string{"seat_label"}).AddRow("01"))
		mock.ExpectExec(`UPDATE schedules`).
			WithArgs(scheduleID, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`FROM passengers WHERE booking_id = \$1 ORDER BY created_at`).
			WillReturnRows(sqlmock.NewRows(passengerRowColumns).
				AddRow(uuid.New(), bookingID, "Ayu", "1", nil, "ADULT", "01", now))
		mock.ExpectExec(`UPDATE passengers SET seat_label`).
			WithArgs(sqlmock.AnyArg(), "02").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`DELETE FROM tickets WHERE booking_id = \$1 AND status = 'CANCELLED'`).
			WithArgs(bookingID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE bookings`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO tickets`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		outcome, tickets, err := repo.Confirm(ctx, bookingID, paymentID, upd, issuer, now)
		require.NoError(t, err)
		assert.Equal(t, ConfirmOutcomeReopened, outcome)
		require.Len(t, tickets, 1)
		assert.Equal(t, "TK-02", tickets[0].Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRefundBooking(t *testing.T) {
	ctx := context.Background()
	bookingID := uuid.New()
	paymentID := uuid.New()
	scheduleID := uuid.New()
	upd := models.PaymentUpdate{Status: models.PaymentStatusRefunded, GatewayStatus: "refund"}

	t.Run("Confirmed Booking", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE payments\s+SET status = 'REFUNDED'`).
			WithArgs(paymentID, "refund").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`UPDATE bookings\s+SET status = 'CANCELLED'`).
			WithArgs(bookingID).
			WillReturnRows(sqlmock.NewRows([]string{"schedule_id", "passenger_count"}).AddRow(scheduleID, 2))
		mock.ExpectExec(`UPDATE tickets SET status = 'CANCELLED'`).
			WithArgs(bookingID).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(`UPDATE schedules`).
			WithArgs(scheduleID, 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		refunded, err := repo.Refund(ctx, bookingID, paymentID, upd)
		require.NoError(t, err)
		assert.True(t, refunded)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Payment Not Successful", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE payments`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		refunded, err := repo.Refund(ctx, bookingID, paymentID, upd)
		require.NoError(t, err)
		assert.False(t, refunded)
	})
}
