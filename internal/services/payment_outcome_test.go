package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lautnusa/speedboat-backend/internal/config"
	"github.com/lautnusa/speedboat-backend/internal/database"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/pkg/authz"
	"github.com/lautnusa/speedboat-backend/pkg/events"
	"github.com/lautnusa/speedboat-backend/pkg/midtrans"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// paymentFlow wires the booking and ticket services so gateway outcomes can
// confirm, close and refund bookings
type paymentFlow struct {
	svc        *PaymentService
	bookingSvc *BookingService
	bookings   *database.BookingRepository
	payments   *database.PaymentRepository
	mock       sqlmock.Sqlmock
	publisher  *recordingPublisher
}

func newPaymentFlow(t *testing.T, gw *fakeGateway) *paymentFlow {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	db := sqlx.NewDb(sqlDB, "postgres")

	authorizer, err := authz.New(context.Background())
	require.NoError(t, err)

	f := &paymentFlow{
		bookings:  database.NewBookingRepository(db),
		payments:  database.NewPaymentRepository(db),
		mock:      mock,
		publisher: &recordingPublisher{},
	}
	f.bookingSvc = NewBookingService(
		f.bookings,
		database.NewScheduleRepository(db),
		f.payments,
		database.NewTicketRepository(db),
		gw, authorizer, f.publisher, nil, nil,
		config.BookingConfig{PaymentWindow: 15 * time.Minute, MaxPassengers: 4},
		testLogger(),
	)
	f.bookingSvc.SetClock(func() time.Time { return paymentTestNow })

	f.svc = NewPaymentService(
		f.bookings,
		f.payments,
		database.NewPaymentAuditRepository(db, testLogger()),
		f.bookingSvc,
		NewTicketService("qr-secret-for-tests"),
		nil, nil,
		gw, f.publisher, "SB-Mid-client-test", testLogger(),
	)
	f.svc.SetClock(func() time.Time { return paymentTestNow })
	return f
}

func (f *paymentFlow) topics() []string {
	topics := make([]string, 0, len(f.publisher.events))
	for _, e := range f.publisher.events {
		topics = append(topics, e.topic)
	}
	return topics
}

// auditOf matches a payment_audits insert of the given event type
func auditOf(event models.PaymentEventType) []driver.Value {
	args := make([]driver.Value, 20)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	args[4] = event
	return args
}

func (f *paymentFlow) expectAudit(event models.PaymentEventType) {
	f.mock.ExpectExec(`INSERT INTO payment_audits`).
		WithArgs(auditOf(event)...).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

var passengerTestColumns = []string{
	"id", "booking_id", "full_name", "identity_number", "phone", "passenger_type", "seat_label", "created_at",
}

// sameInstant matches a timestamp regardless of its location
type sameInstant time.Time

func (s sameInstant) Match(v driver.Value) bool {
	t, ok := v.(time.Time)
	return ok && t.Equal(time.Time(s))
}

// expectConfirm covers Confirm on a PENDING booking with two passengers
func (f *paymentFlow) expectConfirm(b *models.Booking, p *models.Payment, paidAt time.Time) {
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).
		WithArgs(b.ID).
		WillReturnRows(bookingRow(b))
	f.mock.ExpectExec(`UPDATE payments\s+SET status = 'SUCCESS'`).
		WithArgs(p.ID, "settlement", "tx-1", "bank_transfer", sameInstant(paidAt)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(`FROM passengers WHERE booking_id = \$1 ORDER BY seat_label`).
		WithArgs(b.ID).
		WillReturnRows(sqlmock.NewRows(passengerTestColumns).
			AddRow(uuid.New(), b.ID, "Siti Rahma", "3201234567890001", nil, "ADULT", "01", paymentTestNow).
			AddRow(uuid.New(), b.ID, "Budi Santoso", "3201234567890002", nil, "ADULT", "02", paymentTestNow))
	f.mock.ExpectExec(`UPDATE bookings\s+SET status = 'CONFIRMED'`).
		WithArgs(b.ID, paymentTestNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for i := 0; i < 2; i++ {
		f.mock.ExpectExec(`INSERT INTO tickets`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), b.ID, sqlmock.AnyArg(), b.ScheduleID, sqlmock.AnyArg(), "ACTIVE", paymentTestNow).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	f.mock.ExpectCommit()
}

func pendingPayment(b *models.Booking) *models.Payment {
	token := "snap-token"
	return &models.Payment{
		ID:             uuid.New(),
		BookingID:      b.ID,
		OrderID:        b.Code + "-1760929200",
		IdempotencyKey: "booking:" + b.Code,
		Amount:         b.TotalAmount,
		Status:         models.PaymentStatusPending,
		GatewayToken:   &token,
		ExpiresAt:      b.ExpiresAt,
	}
}

func settlement(orderID, amount string) *midtrans.TransactionStatus {
	return &midtrans.TransactionStatus{
		OrderID:           orderID,
		TransactionID:     "tx-1",
		TransactionStatus: "settlement",
		PaymentType:       "bank_transfer",
		GrossAmount:       amount,
		SettlementTime:    "2025-10-20 10:05:00",
	}
}

func confirmedCopy(b *models.Booking) *models.Booking {
	c := *b
	c.Status = models.BookingStatusConfirmed
	return &c
}

func TestHandleNotification_SettlementConfirmsBooking(t *testing.T) {
	b := pendingBooking(uuid.New())
	p := pendingPayment(b)
	n := settlement(p.OrderID, "350000.00")
	f := newPaymentFlow(t, &fakeGateway{configured: true, validSig: true, notification: n})

	f.mock.ExpectQuery(`FROM payments WHERE order_id = \$1`).WithArgs(p.OrderID).WillReturnRows(paymentRow(p))
	f.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM payment_audits`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	f.expectAudit(models.PaymentEventWebhookReceived)
	f.mock.ExpectQuery(`FROM payments WHERE order_id = \$1`).WithArgs(p.OrderID).WillReturnRows(paymentRow(p))
	f.expectAudit(models.PaymentEventSuccess)
	// settlement_time is WIB
	f.expectConfirm(b, p, time.Date(2025, 10, 20, 3, 5, 0, 0, time.UTC))
	f.expectAudit(models.PaymentEventBookingConfirmed)
	f.mock.ExpectQuery(`FROM bookings WHERE id = \$1`).WithArgs(b.ID).WillReturnRows(bookingRow(confirmedCopy(b)))
	f.expectAudit(models.PaymentEventWebhookProcessed)

	require.NoError(t, f.svc.HandleNotification(context.Background(), []byte(`{}`), "103.208.23.6"))
	assert.Equal(t, []string{events.TopicPaymentUpdated, events.TopicBookingConfirmed}, f.topics())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHandleNotification_AmountMismatchDoesNotConfirm(t *testing.T) {
	b := pendingBooking(uuid.New())
	p := pendingPayment(b)
	n := settlement(p.OrderID, "300000.00")
	f := newPaymentFlow(t, &fakeGateway{configured: true, validSig: true, notification: n})

	f.mock.ExpectQuery(`FROM payments WHERE order_id = \$1`).WillReturnRows(paymentRow(p))
	f.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM payment_audits`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	f.expectAudit(models.PaymentEventWebhookReceived)
	f.mock.ExpectQuery(`FROM payments WHERE order_id = \$1`).WillReturnRows(paymentRow(p))
	f.expectAudit(models.PaymentEventReconciliationMismatch)
	f.expectAudit(models.PaymentEventWebhookProcessed)

	require.NoError(t, f.svc.HandleNotification(context.Background(), []byte(`{}`), ""))
	assert.Empty(t, f.topics())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHandleNotification_DenyRetriesUntilBookingReleased(t *testing.T) {
	b := pendingBooking(uuid.New())
	p := pendingPayment(b)
	n := &midtrans.Notification{OrderID: p.OrderID, TransactionID: "tx-9", TransactionStatus: "deny", GrossAmount: "350000.00"}
	f := newPaymentFlow(t, &fakeGateway{configured: true, validSig: true, notification: n})

	f.mock.ExpectQuery(`FROM payments WHERE order_id = \$1`).WillReturnRows(paymentRow(p))
	f.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM payment_audits`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	f.expectAudit(models.PaymentEventWebhookReceived)

	// first attempt loses the connection: nothing is written
	f.mock.ExpectQuery(`FROM payments WHERE order_id = \$1`).WillReturnRows(paymentRow(p))
	f.mock.ExpectBegin().WillReturnError(errors.New("connection reset"))

	// the retry still sees the payment PENDING and closes both together
	f.mock.ExpectQuery(`FROM payments WHERE order_id = \$1`).WillReturnRows(paymentRow(p))
	f.mock.ExpectBegin()
	f.mock.ExpectExec(`UPDATE payments\s+SET status = \$2`).
		WithArgs(p.ID, models.PaymentStatusFailed, "deny", "tx-9", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(`UPDATE bookings\s+SET status = \$2`).
		WithArgs(b.ID, models.BookingStatusCancelled).
		WillReturnRows(sqlmock.NewRows([]string{"schedule_id", "passenger_count"}).AddRow(b.ScheduleID, 2))
	f.mock.ExpectExec(`LEAST\(capacity, available_seats \+ \$2\)`).
		WithArgs(b.ScheduleID, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()
	f.expectAudit(models.PaymentEventFailed)
	cancelled := *b
	cancelled.Status = models.BookingStatusCancelled
	f.mock.ExpectQuery(`FROM bookings WHERE id = \$1`).WillReturnRows(bookingRow(&cancelled))
	f.expectAudit(models.PaymentEventWebhookProcessed)

	require.NoError(t, f.svc.HandleNotification(context.Background(), []byte(`{}`), ""))
	assert.Equal(t, []string{events.TopicPaymentUpdated, events.TopicBookingCancelled}, f.topics())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHandleNotification_CloseFailureIsNotMarkedProcessed(t *testing.T) {
	b := pendingBooking(uuid.New())
	p := pendingPayment(b)
	n := &midtrans.Notification{OrderID: p.OrderID, TransactionID: "tx-9", TransactionStatus: "deny"}
	f := newPaymentFlow(t, &fakeGateway{configured: true, validSig: true, notification: n})

	f.mock.ExpectQuery(`FROM payments WHERE order_id = \$1`).WillReturnRows(paymentRow(p))
	f.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM payment_audits`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	f.expectAudit(models.PaymentEventWebhookReceived)
	for i := 0; i < applyAttempts; i++ {
		f.mock.ExpectQuery(`FROM payments WHERE order_id = \$1`).WillReturnRows(paymentRow(p))
		f.mock.ExpectBegin()
		f.mock.ExpectExec(`UPDATE payments\s+SET status = \$2`).WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectQuery(`UPDATE bookings`).WillReturnError(errors.New("connection reset"))
		f.mock.ExpectRollback()
	}
	f.expectAudit(models.PaymentEventError)

	err := f.svc.HandleNotification(context.Background(), []byte(`{}`), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Empty(t, f.topics())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReconcile_ClosingOutcomesReleaseSeats(t *testing.T) {
	tests := []struct {
		gatewayStatus string
		payment       models.PaymentStatus
		booking       models.BookingStatus
		event         models.PaymentEventType
		topic         string
	}{
		{"deny", models.PaymentStatusFailed, models.BookingStatusCancelled, models.PaymentEventFailed, events.TopicBookingCancelled},
		{"cancel", models.PaymentStatusCancelled, models.BookingStatusCancelled, models.PaymentEventCancelled, events.TopicBookingCancelled},
		{"expire", models.PaymentStatusExpired, models.BookingStatusExpired, models.PaymentEventExpired, events.TopicBookingExpired},
	}

	for _, tt := range tests {
		t.Run(tt.gatewayStatus, func(t *testing.T) {
			b := pendingBooking(uuid.New())
			p := pendingPayment(b)
			gw := &fakeGateway{configured: true, status: &midtrans.TransactionStatus{
				OrderID: p.OrderID, TransactionID: "tx-3", TransactionStatus: tt.gatewayStatus,
			}}
			f := newPaymentFlow(t, gw)

			f.expectAudit(models.PaymentEventStatusCheckResponse)
			f.mock.ExpectBegin()
			f.mock.ExpectExec(`UPDATE payments\s+SET status = \$2`).
				WithArgs(p.ID, tt.payment, tt.gatewayStatus, "tx-3", nil).
				WillReturnResult(sqlmock.NewResult(0, 1))
			f.mock.ExpectQuery(`UPDATE bookings\s+SET status = \$2`).
				WithArgs(b.ID, tt.booking).
				WillReturnRows(sqlmock.NewRows([]string{"schedule_id", "passenger_count"}).AddRow(b.ScheduleID, 2))
			f.mock.ExpectExec(`UPDATE schedules`).
				WithArgs(b.ScheduleID, 2).
				WillReturnResult(sqlmock.NewResult(0, 1))
			f.mock.ExpectCommit()
			f.expectAudit(tt.event)
			closed := *b
			closed.Status = tt.booking
			f.mock.ExpectQuery(`FROM bookings WHERE id = \$1`).WillReturnRows(bookingRow(&closed))

			require.NoError(t, f.svc.Reconcile(context.Background(), p))
			assert.Equal(t, []string{events.TopicPaymentUpdated, tt.topic}, f.topics())
			assert.NoError(t, f.mock.ExpectationsWereMet())
		})
	}

	t.Run("payment already closed", func(t *testing.T) {
		b := pendingBooking(uuid.New())
		p := pendingPayment(b)
		f := newPaymentFlow(t, &fakeGateway{configured: true, status: &midtrans.TransactionStatus{
			OrderID: p.OrderID, TransactionStatus: "expire",
		}})

		f.expectAudit(models.PaymentEventStatusCheckResponse)
		f.mock.ExpectBegin()
		f.mock.ExpectExec(`UPDATE payments`).WillReturnResult(sqlmock.NewResult(0, 0))
		f.mock.ExpectCommit()

		require.NoError(t, f.svc.Reconcile(context.Background(), p))
		assert.Empty(t, f.topics())
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})
}

func TestReconcile_RefundCancelsConfirmedBooking(t *testing.T) {
	b := confirmedCopy(pendingBooking(uuid.New()))
	p := pendingPayment(b)
	p.Status = models.PaymentStatusSuccess
	f := newPaymentFlow(t, &fakeGateway{configured: true, status: &midtrans.TransactionStatus{
		OrderID: p.OrderID, TransactionID: "tx-1", TransactionStatus: "refund",
	}})

	f.expectAudit(models.PaymentEventStatusCheckResponse)
	f.mock.ExpectQuery(`FROM bookings WHERE id = \$1`).WithArgs(b.ID).WillReturnRows(bookingRow(b))
	f.mock.ExpectBegin()
	f.mock.ExpectExec(`UPDATE payments\s+SET status = 'REFUNDED'`).
		WithArgs(p.ID, "refund").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(`UPDATE bookings\s+SET status = 'CANCELLED'`).
		WithArgs(b.ID).
		WillReturnRows(sqlmock.NewRows([]string{"schedule_id", "passenger_count"}).AddRow(b.ScheduleID, 2))
	f.mock.ExpectExec(`UPDATE tickets SET status = 'CANCELLED'`).
		WithArgs(b.ID).
		WillReturnResult(sqlmock.NewResult(0, 2))
	f.mock.ExpectExec(`UPDATE schedules`).
		WithArgs(b.ScheduleID, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()
	f.expectAudit(models.PaymentEventRefunded)

	require.NoError(t, f.svc.Reconcile(context.Background(), p))
	assert.Equal(t, []string{events.TopicPaymentUpdated, events.TopicBookingCancelled}, f.topics())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReconcile_SecondCaptureIsFlagged(t *testing.T) {
	b := confirmedCopy(pendingBooking(uuid.New()))
	p := pendingPayment(b)
	p.OrderID = b.Code + "-1760929500"
	f := newPaymentFlow(t, &fakeGateway{configured: true, status: settlement(p.OrderID, "350000")})

	f.expectAudit(models.PaymentEventStatusCheckResponse)
	f.expectAudit(models.PaymentEventSuccess)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).WillReturnRows(bookingRow(b))
	f.mock.ExpectExec(`UPDATE payments\s+SET status = 'SUCCESS'`).
		WithArgs(p.ID, "settlement", "tx-1", "bank_transfer", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()
	f.expectAudit(models.PaymentEventReconciliationMismatch)

	require.NoError(t, f.svc.Reconcile(context.Background(), p))
	assert.Equal(t, []string{events.TopicPaymentUpdated}, f.topics())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestStatus_PollConfirmsPendingPayment(t *testing.T) {
	userID := uuid.New()
	b := pendingBooking(userID)
	p := pendingPayment(b)
	st := settlement(p.OrderID, "350000.00")
	st.SettlementTime = ""
	f := newPaymentFlow(t, &fakeGateway{configured: true, status: st})

	paid := *p
	paid.Status = models.PaymentStatusSuccess

	f.mock.ExpectQuery(`FROM bookings WHERE code = \$1`).WithArgs(b.Code).WillReturnRows(bookingRow(b))
	f.mock.ExpectQuery(`FROM payments\s+WHERE booking_id = \$1`).WillReturnRows(paymentRow(p))
	f.expectAudit(models.PaymentEventStatusCheckResponse)
	f.expectAudit(models.PaymentEventSuccess)
	// no settlement time from the gateway: paid_at is the service clock
	f.expectConfirm(b, p, paymentTestNow)
	f.expectAudit(models.PaymentEventBookingConfirmed)
	f.mock.ExpectQuery(`FROM bookings WHERE id = \$1`).WillReturnRows(bookingRow(confirmedCopy(b)))
	f.mock.ExpectQuery(`FROM bookings WHERE id = \$1`).WillReturnRows(bookingRow(confirmedCopy(b)))
	f.mock.ExpectQuery(`FROM payments WHERE order_id = \$1`).WillReturnRows(paymentRow(&paid))
	// booking detail
	f.mock.ExpectQuery(`FROM schedules`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	f.mock.ExpectQuery(`FROM passengers`).WillReturnRows(sqlmock.NewRows(passengerTestColumns))
	f.mock.ExpectQuery(`FROM payments\s+WHERE booking_id = \$1`).WillReturnRows(paymentRow(&paid))
	f.mock.ExpectQuery(`FROM tickets t`).
		WithArgs(b.ID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "booking_id", "passenger_id", "schedule_id", "qr_payload", "status", "checked_in_at", "checked_in_by", "created_at", "passenger_name"}).
			AddRow(uuid.New(), "TK7QX2M9", b.ID, uuid.New(), b.ScheduleID, "SBT1|TK7QX2M9|"+b.Code+"|x", "ACTIVE", nil, nil, paymentTestNow, "Siti Rahma").
			AddRow(uuid.New(), "TK4HD8W2", b.ID, uuid.New(), b.ScheduleID, "SBT1|TK4HD8W2|"+b.Code+"|y", "ACTIVE", nil, nil, paymentTestNow, "Budi Santoso"))

	view, err := f.svc.Status(context.Background(), Actor{UserID: userID, Role: models.RoleUser}, b.Code)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, view.BookingStatus)
	require.NotNil(t, view.Payment)
	assert.Equal(t, models.PaymentStatusSuccess, view.Payment.Status)
	require.Len(t, view.Tickets, 2)
	assert.Equal(t, "Siti Rahma", view.Tickets[0].PassengerName)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

// paymentRowCreated is paymentRow with a given created_at
func paymentRowCreated(p *models.Payment, created time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(paymentTestColumns).AddRow(
		p.ID.String(), p.BookingID.String(), p.OrderID, p.IdempotencyKey, p.Amount, string(p.Status),
		nil, p.GatewayToken, p.RedirectURL, nil, nil, nil, p.ExpiresAt, created, created,
	)
}

func TestCreatePayment_OnePendingPaymentPerBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("Live Payment Under Another Key", func(t *testing.T) {
		gw := &fakeGateway{configured: true}
		f := newPaymentFlow(t, gw)
		userID := uuid.New()
		b := pendingBooking(userID)
		live := pendingPayment(b)

		f.mock.ExpectQuery(`FROM bookings WHERE code = \$1`).WillReturnRows(bookingRow(b))
		f.mock.ExpectQuery(`FROM payments WHERE idempotency_key = \$1`).
			WithArgs("second-tab").
			WillReturnRows(sqlmock.NewRows(paymentTestColumns))
		f.mock.ExpectQuery(`FROM payments\s+WHERE booking_id = \$1`).WillReturnRows(paymentRow(live))

		result, err := f.svc.Create(ctx, Actor{UserID: userID}, b.Code, "second-tab", ClientInfo{})
		require.NoError(t, err)
		assert.True(t, result.Reused)
		assert.Equal(t, live.ID, result.Payment.ID)
		assert.Empty(t, gw.requests)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("Payment Still Being Created", func(t *testing.T) {
		gw := &fakeGateway{configured: true}
		f := newPaymentFlow(t, gw)
		userID := uuid.New()
		b := pendingBooking(userID)
		inflight := pendingPayment(b)
		inflight.GatewayToken = nil

		f.mock.ExpectQuery(`FROM bookings WHERE code = \$1`).WillReturnRows(bookingRow(b))
		f.mock.ExpectQuery(`FROM payments WHERE idempotency_key = \$1`).WillReturnRows(sqlmock.NewRows(paymentTestColumns))
		f.mock.ExpectQuery(`FROM payments\s+WHERE booking_id = \$1`).
			WillReturnRows(paymentRowCreated(inflight, paymentTestNow.Add(-20*time.Second)))

		_, err := f.svc.Create(ctx, Actor{UserID: userID}, b.Code, "second-tab", ClientInfo{})
		assert.ErrorIs(t, err, models.ErrStateChanged)
		assert.Empty(t, gw.requests)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("Abandoned Payment Is Cancelled", func(t *testing.T) {
		gw := &fakeGateway{configured: true, createResp: &midtrans.SnapResponse{Token: "snap-2", RedirectURL: "https://app.sandbox.midtrans.com/snap/v2/vtweb/snap-2"}}
		f := newPaymentFlow(t, gw)
		userID := uuid.New()
		b := pendingBooking(userID)
		stale := pendingPayment(b)
		stale.GatewayToken = nil

		f.mock.ExpectQuery(`FROM bookings WHERE code = \$1`).WillReturnRows(bookingRow(b))
		f.mock.ExpectQuery(`FROM payments WHERE idempotency_key = \$1`).WillReturnRows(sqlmock.NewRows(paymentTestColumns))
		f.mock.ExpectQuery(`FROM payments\s+WHERE booking_id = \$1`).
			WillReturnRows(paymentRowCreated(stale, paymentTestNow.Add(-5*time.Minute)))
		f.mock.ExpectExec(`UPDATE payments\s+SET status = \$2`).
			WithArgs(stale.ID, models.PaymentStatusCancelled, "abandoned", nil, nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectExec(`INSERT INTO payments`).WillReturnResult(sqlmock.NewResult(0, 1))
		f.expectAudit(models.PaymentEventInitiated)
		f.expectAudit(models.PaymentEventResponse)
		f.mock.ExpectExec(`UPDATE payments`).
			WithArgs(sqlmock.AnyArg(), "snap-2", gw.createResp.RedirectURL).
			WillReturnResult(sqlmock.NewResult(0, 1))

		result, err := f.svc.Create(ctx, Actor{UserID: userID}, b.Code, "second-tab", ClientInfo{})
		require.NoError(t, err)
		assert.False(t, result.Reused)
		assert.NotEqual(t, stale.ID, result.Payment.ID)
		assert.Len(t, gw.requests, 1)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("Lost Insert Race", func(t *testing.T) {
		gw := &fakeGateway{configured: true}
		f := newPaymentFlow(t, gw)
		userID := uuid.New()
		b := pendingBooking(userID)
		winner := pendingPayment(b)

		f.mock.ExpectQuery(`FROM bookings WHERE code = \$1`).WillReturnRows(bookingRow(b))
		f.mock.ExpectQuery(`FROM payments WHERE idempotency_key = \$1`).WillReturnRows(sqlmock.NewRows(paymentTestColumns))
		f.mock.ExpectQuery(`FROM payments\s+WHERE booking_id = \$1`).WillReturnRows(sqlmock.NewRows(paymentTestColumns))
		f.mock.ExpectExec(`INSERT INTO payments`).WillReturnError(&pq.Error{Code: "23505"})
		f.mock.ExpectQuery(`FROM payments WHERE idempotency_key = \$1`).WillReturnRows(sqlmock.NewRows(paymentTestColumns))
		f.mock.ExpectQuery(`FROM payments\s+WHERE booking_id = \$1`).WillReturnRows(paymentRow(winner))

		result, err := f.svc.Create(ctx, Actor{UserID: userID}, b.Code, "second-tab", ClientInfo{})
		require.NoError(t, err)
		assert.True(t, result.Reused)
		assert.Equal(t, winner.ID, result.Payment.ID)
		assert.Empty(t, gw.requests)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})
}
