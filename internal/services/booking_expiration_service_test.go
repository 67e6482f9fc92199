package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/pkg/events"
	"github.com/lautnusa/speedboat-backend/pkg/midtrans"
	"github.com/stretchr/testify/assert"
)

func newExpirationTestService(f *paymentFlow) *BookingExpirationService {
	s := NewBookingExpirationService(f.bookings, f.payments, f.bookingSvc, f.svc, testLogger())
	s.now = func() time.Time { return paymentTestNow }
	return s
}

// expectExpiredList returns b from the sweep query, or nothing when b is nil
func (f *paymentFlow) expectExpiredList(b *models.Booking) {
	rows := sqlmock.NewRows(bookingTestColumns)
	if b != nil {
		rows = bookingRow(b)
	}
	f.mock.ExpectQuery(`WHERE status = 'PENDING' AND expires_at <= \$1`).
		WithArgs(paymentTestNow, expirationBatch).
		WillReturnRows(rows)
}

func (f *paymentFlow) expectExpire(b *models.Booking) {
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(`UPDATE bookings\s+SET status = \$2`).
		WithArgs(b.ID, models.BookingStatusExpired).
		WillReturnRows(sqlmock.NewRows([]string{"schedule_id", "passenger_count"}).AddRow(b.ScheduleID, b.PassengerCount))
	f.mock.ExpectExec(`UPDATE schedules`).
		WithArgs(b.ScheduleID, b.PassengerCount).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(`UPDATE payments\s+SET status = \$2`).
		WithArgs(b.ID, models.PaymentStatusExpired).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()
}

func TestBookingExpirationRunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("Late Settlement Confirms", func(t *testing.T) {
		b := pendingBooking(uuid.New())
		b.ExpiresAt = paymentTestNow.Add(-time.Minute)
		p := pendingPayment(b)
		f := newPaymentFlow(t, &fakeGateway{configured: true, status: settlement(p.OrderID, "350000.00")})

		f.expectExpiredList(b)
		f.mock.ExpectQuery(`FROM payments\s+WHERE booking_id = \$1`).WithArgs(b.ID).WillReturnRows(paymentRow(p))
		f.expectAudit(models.PaymentEventStatusCheckResponse)
		f.expectAudit(models.PaymentEventSuccess)
		f.expectConfirm(b, p, time.Date(2025, 10, 20, 3, 5, 0, 0, time.UTC))
		f.expectAudit(models.PaymentEventBookingConfirmed)
		f.mock.ExpectQuery(`FROM bookings WHERE id = \$1`).WithArgs(b.ID).WillReturnRows(bookingRow(confirmedCopy(b)))
		f.mock.ExpectQuery(`FROM bookings WHERE id = \$1`).WithArgs(b.ID).WillReturnRows(bookingRow(confirmedCopy(b)))

		assert.Equal(t, 0, newExpirationTestService(f).RunOnce(ctx))
		assert.Equal(t, []string{events.TopicPaymentUpdated, events.TopicBookingConfirmed}, f.topics())
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("No Payment", func(t *testing.T) {
		b := pendingBooking(uuid.New())
		b.ExpiresAt = paymentTestNow.Add(-time.Minute)
		gw := &fakeGateway{configured: true}
		f := newPaymentFlow(t, gw)

		f.expectExpiredList(b)
		f.mock.ExpectQuery(`FROM payments\s+WHERE booking_id = \$1`).WithArgs(b.ID).WillReturnRows(sqlmock.NewRows(paymentTestColumns))
		f.expectExpire(b)

		assert.Equal(t, 1, newExpirationTestService(f).RunOnce(ctx))
		assert.Equal(t, []string{events.TopicBookingExpired}, f.topics())
		assert.Empty(t, gw.cancelled)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("Gateway Still Pending", func(t *testing.T) {
		b := pendingBooking(uuid.New())
		b.ExpiresAt = paymentTestNow.Add(-time.Minute)
		p := pendingPayment(b)
		gw := &fakeGateway{configured: true, status: &midtrans.TransactionStatus{
			OrderID: p.OrderID, TransactionStatus: "pending", GrossAmount: "350000.00",
		}}
		f := newPaymentFlow(t, gw)

		f.expectExpiredList(b)
		f.mock.ExpectQuery(`FROM payments\s+WHERE booking_id = \$1`).WithArgs(b.ID).WillReturnRows(paymentRow(p))
		f.expectAudit(models.PaymentEventStatusCheckResponse)
		f.mock.ExpectExec(`UPDATE payments SET gateway_status = \$2`).
			WithArgs(p.ID, "pending").
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectQuery(`FROM bookings WHERE id = \$1`).WithArgs(b.ID).WillReturnRows(bookingRow(b))
		f.mock.ExpectQuery(`FROM payments\s+WHERE booking_id = \$1`).WithArgs(b.ID).WillReturnRows(paymentRow(p))
		f.expectExpire(b)

		assert.Equal(t, 1, newExpirationTestService(f).RunOnce(ctx))
		assert.Equal(t, []string{p.OrderID}, gw.cancelled)
		assert.Equal(t, []string{events.TopicBookingExpired}, f.topics())
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("Booking Closed Concurrently", func(t *testing.T) {
		b := pendingBooking(uuid.New())
		b.ExpiresAt = paymentTestNow.Add(-time.Minute)
		f := newPaymentFlow(t, &fakeGateway{configured: true})

		f.expectExpiredList(b)
		f.mock.ExpectQuery(`FROM payments\s+WHERE booking_id = \$1`).WillReturnRows(sqlmock.NewRows(paymentTestColumns))
		f.mock.ExpectBegin()
		f.mock.ExpectQuery(`UPDATE bookings\s+SET status = \$2`).
			WillReturnRows(sqlmock.NewRows([]string{"schedule_id", "passenger_count"}))
		f.mock.ExpectCommit()

		assert.Equal(t, 0, newExpirationTestService(f).RunOnce(ctx))
		assert.Empty(t, f.topics())
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("Nothing Due", func(t *testing.T) {
		f := newPaymentFlow(t, &fakeGateway{configured: true})
		f.expectExpiredList(nil)

		assert.Equal(t, 0, newExpirationTestService(f).RunOnce(ctx))
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})
}
