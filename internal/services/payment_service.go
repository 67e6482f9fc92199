package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lautnusa/speedboat-backend/internal/database"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/internal/utils"
	"github.com/lautnusa/speedboat-backend/pkg/events"
	"github.com/lautnusa/speedboat-backend/pkg/midtrans"
	"github.com/lautnusa/speedboat-backend/pkg/validator"
	"github.com/sirupsen/logrus"
)

const (
	applyAttempts = 3
	applyDelay    = 200 * time.Millisecond
	gatewayTime   = "2006-01-02 15:04:05"

	// a PENDING payment still without a token after this is treated as abandoned
	pendingCreateTimeout = time.Minute
)

// MapStatus maps a Midtrans transaction_status / fraud_status pair to the
// internal payment status. ok is false for statuses we do not act on.
func MapStatus(transactionStatus, fraudStatus string) (status models.PaymentStatus, ok bool) {
	switch strings.ToLower(transactionStatus) {
	case "capture":
		switch strings.ToLower(fraudStatus) {
		case "challenge":
			return models.PaymentStatusPending, true
		case "deny":
			return models.PaymentStatusFailed, true
		default:
			return models.PaymentStatusSuccess, true
		}
	case "settlement":
		return models.PaymentStatusSuccess, true
	case "pending":
		return models.PaymentStatusPending, true
	case "deny", "failure":
		return models.PaymentStatusFailed, true
	case "cancel":
		return models.PaymentStatusCancelled, true
	case "expire":
		return models.PaymentStatusExpired, true
	case "refund", "partial_refund", "chargeback", "partial_chargeback":
		return models.PaymentStatusRefunded, true
	}
	return "", false
}

// PaymentResult is the answer of Create
type PaymentResult struct {
	Payment   *models.Payment `json:"payment"`
	Reused    bool            `json:"reused"`
	ClientKey string          `json:"client_key,omitempty"`
}

// PaymentService creates gateway transactions and reconciles their outcome
type PaymentService struct {
	bookings   *database.BookingRepository
	payments   *database.PaymentRepository
	audits     *database.PaymentAuditRepository
	bookingSvc *BookingService
	ticketSvc  *TicketService
	documents  *DocumentService
	notifier   *NotificationService
	gateway    PaymentGateway
	publisher  events.Publisher
	clientKey  string
	logger     *logrus.Logger
	now        Clock
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	bookings *database.BookingRepository,
	payments *database.PaymentRepository,
	audits *database.PaymentAuditRepository,
	bookingSvc *BookingService,
	ticketSvc *TicketService,
	documents *DocumentService,
	notifier *NotificationService,
	gateway PaymentGateway,
	publisher events.Publisher,
	clientKey string,
	logger *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		bookings:   bookings,
		payments:   payments,
		audits:     audits,
		bookingSvc: bookingSvc,
		ticketSvc:  ticketSvc,
		documents:  documents,
		notifier:   notifier,
		gateway:    gateway,
		publisher:  publisher,
		clientKey:  clientKey,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the time source
func (s *PaymentService) SetClock(c Clock) {
	s.now = c
}

// ============================================================================
// CREATE
// ============================================================================

// Create starts (or returns) the gateway transaction for a booking.
// idempotencyKey defaults to booking:<code>.
func (s *PaymentService) Create(ctx context.Context, actor Actor, bookingCode, idempotencyKey string, client ClientInfo) (*PaymentResult, error) {
	bookingCode = strings.ToUpper(strings.TrimSpace(bookingCode))
	b, err := s.bookings.GetByCode(ctx, bookingCode)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, models.ErrBookingNotFound
	}
	if b.UserID != actor.UserID {
		return nil, models.ErrForbidden
	}

	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		key = "booking:" + b.Code
	}

	if existing, err := s.payments.GetByIdempotencyKey(ctx, key); err != nil {
		return nil, err
	} else if existing != nil {
		if existing.BookingID != b.ID {
			return nil, models.ErrIdempotencyConflict
		}
		return s.result(existing, true), nil
	}

	if b.Status != models.BookingStatusPending {
		return nil, models.ErrBookingNotPending
	}

	now := s.now()
	if b.IsExpired(now) {
		if _, err := s.bookingSvc.Expire(ctx, b); err != nil {
			s.logger.WithError(err).WithField("booking_code", b.Code).Error("Failed to expire booking")
		}
		return nil, models.ErrBookingExpired
	}

	// a booking holds at most one PENDING payment
	latest, err := s.payments.GetLatestByBooking(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.Status == models.PaymentStatusPending {
		switch {
		case latest.GatewayToken != nil:
			return s.result(latest, true), nil
		case now.Sub(latest.CreatedAt) < pendingCreateTimeout:
			return nil, fmt.Errorf("payment for %s is being created, retry shortly: %w", b.Code, models.ErrStateChanged)
		}
		// never got a token; keep the row so a late notification still finds it
		if _, err := s.payments.ApplyUpdate(ctx, latest.ID, models.PaymentUpdate{
			Status:        models.PaymentStatusCancelled,
			GatewayStatus: "abandoned",
		}, models.PaymentStatusPending); err != nil {
			return nil, err
		}
		s.logger.WithField("order_id", latest.OrderID).Warn("Abandoned payment without gateway token")
	}

	// the gateway page must close no later than the booking
	minutes := int(b.ExpiresAt.Sub(now) / time.Minute)
	if minutes < 1 {
		return nil, models.ErrBookingExpired
	}

	if !s.gateway.IsConfigured() {
		return nil, fmt.Errorf("%w: gateway not configured", models.ErrGatewayUnavailable)
	}

	p := &models.Payment{
		BookingID:      b.ID,
		OrderID:        utils.NewOrderID(b.Code, now),
		IdempotencyKey: key,
		Amount:         b.TotalAmount,
		ExpiresAt:      b.ExpiresAt,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		if !errors.Is(err, models.ErrDuplicate) {
			return nil, err
		}
		return s.concurrentPayment(ctx, b, key)
	}

	req := s.snapRequest(b, p, minutes)
	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventInitiated, models.PaymentSourceBackend).
		SetPayment(p).
		SetIdempotencyKey(key).
		SetIPAddress(client.IP).
		SetRequestPayload(map[string]interface{}{
			"order_id":     p.OrderID,
			"gross_amount": p.Amount,
			"expiry_min":   minutes,
		}))

	resp, err := s.gateway.CreateTransaction(ctx, req)
	if err != nil {
		failure := models.NewPaymentAudit(models.PaymentEventError, models.PaymentSourceGatewayAPI).
			SetPayment(p).
			SetError(err.Error())
		var gwErr *midtrans.GatewayError
		if errors.As(err, &gwErr) {
			failure.SetHTTPStatus(gwErr.HTTPStatus)
		}
		s.audit(ctx, failure)

		if delErr := s.payments.DeletePending(ctx, p.ID); delErr != nil {
			s.logger.WithError(delErr).WithField("order_id", p.OrderID).Error("Failed to remove unsent payment")
		}
		s.logger.WithError(err).WithField("booking_code", b.Code).Error("Snap transaction failed")
		return nil, fmt.Errorf("%w: %v", models.ErrGatewayUnavailable, err)
	}

	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventResponse, models.PaymentSourceGatewayAPI).
		SetPayment(p).
		SetResponsePayload(map[string]interface{}{
			"token":        resp.Token,
			"redirect_url": resp.RedirectURL,
		}))

	if err := s.payments.SetGatewayToken(ctx, p.ID, resp.Token, resp.RedirectURL); err != nil {
		return nil, err
	}
	p.GatewayToken = &resp.Token
	p.RedirectURL = &resp.RedirectURL

	s.logger.WithFields(logrus.Fields{
		"booking_code": b.Code,
		"order_id":     p.OrderID,
		"amount":       p.Amount,
	}).Info("Payment created")

	return s.result(p, false), nil
}

// concurrentPayment resolves a lost insert race. The winner either used the
// same idempotency key or holds the booking's single PENDING slot.
func (s *PaymentService) concurrentPayment(ctx context.Context, b *models.Booking, key string) (*PaymentResult, error) {
	winner, err := s.payments.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if winner != nil {
		if winner.BookingID != b.ID {
			return nil, models.ErrIdempotencyConflict
		}
		return s.result(winner, true), nil
	}

	winner, err = s.payments.GetLatestByBooking(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if winner != nil && winner.Status == models.PaymentStatusPending && winner.GatewayToken != nil {
		return s.result(winner, true), nil
	}
	return nil, fmt.Errorf("payment for %s is being created, retry shortly: %w", b.Code, models.ErrStateChanged)
}

func (s *PaymentService) snapRequest(b *models.Booking, p *models.Payment, minutes int) *midtrans.SnapRequest {
	first, last := b.ContactName, ""
	if i := strings.LastIndex(b.ContactName, " "); i > 0 {
		first, last = b.ContactName[:i], b.ContactName[i+1:]
	}

	return &midtrans.SnapRequest{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:     p.OrderID,
			GrossAmount: p.Amount,
		},
		CustomerDetails: &midtrans.CustomerDetails{
			FirstName: first,
			LastName:  last,
			Email:     b.ContactEmail,
			Phone:     validator.PhoneE164(b.ContactPhone),
		},
		ItemDetails: []midtrans.ItemDetail{{
			ID:       b.ScheduleID.String(),
			Name:     "Speedboat ticket " + b.Code,
			Price:    b.TotalAmount / int64(b.PassengerCount),
			Quantity: b.PassengerCount,
		}},
		Expiry: &midtrans.Expiry{Unit: "minute", Duration: minutes},
	}
}

func (s *PaymentService) result(p *models.Payment, reused bool) *PaymentResult {
	return &PaymentResult{Payment: p, Reused: reused, ClientKey: s.clientKey}
}

// ============================================================================
// STATUS
// ============================================================================

// Status returns the booking and payment state. A PENDING payment is checked
// with the gateway first.
func (s *PaymentService) Status(ctx context.Context, actor Actor, bookingCode string) (*models.PaymentStatusView, error) {
	b, err := s.bookingSvc.GetAccessible(ctx, actor, bookingCode)
	if err != nil {
		return nil, err
	}

	p, err := s.payments.GetLatestByBooking(ctx, b.ID)
	if err != nil {
		return nil, err
	}

	if p != nil && p.Status == models.PaymentStatusPending && p.GatewayToken != nil {
		if err := s.Reconcile(ctx, p); err != nil {
			s.logger.WithError(err).WithField("order_id", p.OrderID).Warn("Status poll failed, answering with stored state")
		}
		if b, err = s.bookings.GetByID(ctx, b.ID); err != nil {
			return nil, err
		}
		if p, err = s.payments.GetByOrderID(ctx, p.OrderID); err != nil {
			return nil, err
		}
	}

	view := &models.PaymentStatusView{
		BookingCode:   b.Code,
		BookingStatus: b.Status,
		ExpiresAt:     b.ExpiresAt,
		Payment:       p,
	}
	if b.Status == models.BookingStatusConfirmed {
		detail, err := s.bookingSvc.Detail(ctx, b)
		if err != nil {
			return nil, err
		}
		view.Tickets = detail.Tickets
	}
	return view, nil
}

// Reconcile polls the gateway for one payment and applies the answer
func (s *PaymentService) Reconcile(ctx context.Context, p *models.Payment) error {
	st, err := s.gateway.GetStatus(ctx, p.OrderID)
	if err != nil {
		if errors.Is(err, midtrans.ErrTransactionNotFound) {
			return nil // customer never opened the payment page
		}
		s.audit(ctx, models.NewPaymentAudit(models.PaymentEventError, models.PaymentSourceGatewayAPI).
			SetPayment(p).
			SetError(err.Error()))
		return err
	}

	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventStatusCheckResponse, models.PaymentSourceGatewayAPI).
		SetPayment(p).
		SetGatewayStatus(st.TransactionStatus, st.TransactionID).
		SetResponsePayload(statusPayload(st)))

	return s.apply(ctx, p, st, models.PaymentSourceGatewayAPI)
}

// ReconcilePending polls PENDING payments older than minAge. Covers lost webhooks.
func (s *PaymentService) ReconcilePending(ctx context.Context, minAge time.Duration, limit int) (int, error) {
	pending, err := s.payments.ListPendingForReconciliation(ctx, s.now().Add(-minAge), limit)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, p := range pending {
		if err := s.Reconcile(ctx, p); err != nil {
			s.logger.WithError(err).WithField("order_id", p.OrderID).Warn("Reconciliation failed")
			continue
		}
		done++
	}
	return done, nil
}

// ============================================================================
// NOTIFICATION
// ============================================================================

// HandleNotification processes a gateway notification body. Unknown orders and
// duplicates succeed. An error means the gateway should retry.
func (s *PaymentService) HandleNotification(ctx context.Context, body []byte, ip string) error {
	received := models.NewPaymentAudit(models.PaymentEventWebhookReceived, models.PaymentSourceWebhook).
		SetRawBody(string(body)).
		SetIPAddress(ip)

	n, err := s.gateway.ParseNotification(body)
	if err != nil && !errors.Is(err, midtrans.ErrInvalidSignature) {
		s.audit(ctx, received.SetError(err.Error()))
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if n != nil {
		received.SetOrderID(n.OrderID).SetGatewayStatus(n.TransactionStatus, n.TransactionID)
	}

	if err != nil || !s.gateway.VerifySignature(n) {
		orderID := ""
		if n != nil {
			orderID = n.OrderID
		}
		s.audit(ctx, received.SetError("invalid signature"))
		s.logger.WithFields(logrus.Fields{
			"order_id": orderID,
			"ip":       ip,
		}).Warn("Rejected notification with invalid signature")
		return midtrans.ErrInvalidSignature
	}

	p, err := s.payments.GetByOrderID(ctx, n.OrderID)
	if err != nil {
		return err
	}
	if p == nil {
		s.audit(ctx, received.SetError("unknown order"))
		s.logger.WithField("order_id", n.OrderID).Warn("Notification for unknown order acknowledged")
		return nil
	}
	received.SetPayment(p)

	key := strings.Join([]string{n.OrderID, n.TransactionStatus, n.TransactionID}, ":")
	dup, err := s.audits.CheckDuplicate(ctx, n.OrderID, models.PaymentEventWebhookProcessed, key)
	if err != nil {
		return err
	}
	if dup {
		s.audit(ctx, received.SetIdempotencyKey(key).MarkAsDuplicate())
		return nil
	}
	s.audit(ctx, received)

	err = utils.Retry(ctx, applyAttempts, applyDelay, func() error {
		current, err := s.payments.GetByOrderID(ctx, n.OrderID)
		if err != nil {
			return err
		}
		return s.apply(ctx, current, n, models.PaymentSourceWebhook)
	})
	if err != nil {
		s.audit(ctx, models.NewPaymentAudit(models.PaymentEventError, models.PaymentSourceWebhook).
			SetPayment(p).
			SetError(err.Error()))
		return err
	}

	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventWebhookProcessed, models.PaymentSourceWebhook).
		SetPayment(p).
		SetGatewayStatus(n.TransactionStatus, n.TransactionID).
		SetIdempotencyKey(key))
	return nil
}

// ============================================================================
// APPLY
// ============================================================================

func (s *PaymentService) apply(ctx context.Context, p *models.Payment, st *midtrans.TransactionStatus, source models.PaymentEventSource) error {
	status, ok := MapStatus(st.TransactionStatus, st.FraudStatus)
	log := s.logger.WithFields(logrus.Fields{
		"order_id":       p.OrderID,
		"gateway_status": st.TransactionStatus,
		"status":         status,
	})
	if !ok {
		log.Warn("Unknown gateway status, payment left unchanged")
		return s.payments.TouchGatewayStatus(ctx, p.ID, st.TransactionStatus)
	}

	upd := models.PaymentUpdate{
		Status:               status,
		GatewayStatus:        st.TransactionStatus,
		GatewayTransactionID: st.TransactionID,
		Method:               st.PaymentType,
		PaidAt:               parseGatewayTime(firstNonEmpty(st.SettlementTime, st.TransactionTime)),
	}

	switch status {
	case models.PaymentStatusPending:
		if p.Status != models.PaymentStatusPending {
			return nil
		}
		return s.payments.TouchGatewayStatus(ctx, p.ID, st.TransactionStatus)

	case models.PaymentStatusSuccess:
		return s.applySuccess(ctx, p, st, upd, source)

	case models.PaymentStatusRefunded:
		b, err := s.bookings.GetByID(ctx, p.BookingID)
		if err != nil {
			return err
		}
		refunded, err := s.bookings.Refund(ctx, p.BookingID, p.ID, upd)
		if err != nil {
			return err
		}
		if refunded {
			log.Info("Payment refunded")
			s.audit(ctx, models.NewPaymentAudit(models.PaymentEventRefunded, source).SetPayment(p).
				SetGatewayStatus(st.TransactionStatus, st.TransactionID))
			s.publishPayment(ctx, p, status)
			if b != nil && b.Status == models.BookingStatusConfirmed {
				b.Status = models.BookingStatusCancelled
				s.bookingSvc.publish(ctx, events.TopicBookingCancelled, b)
			}
		}
		return nil

	default:
		return s.applyClosed(ctx, p, st, upd, source)
	}
}

func (s *PaymentService) applySuccess(ctx context.Context, p *models.Payment, st *midtrans.TransactionStatus, upd models.PaymentUpdate, source models.PaymentEventSource) error {
	if p.Status == models.PaymentStatusSuccess || p.Status == models.PaymentStatusRefunded {
		return nil
	}

	received, err := st.Amount()
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	amountAudit := models.NewPaymentAudit(models.PaymentEventSuccess, source).
		SetPayment(p).
		SetGatewayStatus(st.TransactionStatus, st.TransactionID)
	if !amountAudit.SetAmounts(p.Amount, received) {
		amountAudit.EventType = models.PaymentEventReconciliationMismatch
		amountAudit.SetError("paid amount differs from booking total")
		s.audit(ctx, amountAudit)
		s.logger.WithFields(logrus.Fields{
			"order_id": p.OrderID,
			"expected": p.Amount,
			"received": received,
		}).Error("Payment amount mismatch, booking not confirmed")
		return nil
	}
	s.audit(ctx, amountAudit)

	outcome, tickets, err := s.bookings.Confirm(ctx, p.BookingID, p.ID, upd, s.ticketSvc.Issue, s.now())
	if err != nil {
		return err
	}

	log := s.logger.WithField("order_id", p.OrderID)
	switch outcome {
	case database.ConfirmOutcomeAlreadyConfirmed:
		log.Info("Booking already confirmed")
		return nil

	case database.ConfirmOutcomeDuplicatePayment:
		s.audit(ctx, models.NewPaymentAudit(models.PaymentEventReconciliationMismatch, source).
			SetPayment(p).
			SetGatewayStatus(st.TransactionStatus, st.TransactionID).
			SetError("booking already confirmed by another payment; refund manually"))
		log.Error("Second payment captured for a confirmed booking; manual refund required")
		s.publishPayment(ctx, p, models.PaymentStatusSuccess)
		return nil

	case database.ConfirmOutcomeSeatsUnavailable:
		s.audit(ctx, models.NewPaymentAudit(models.PaymentEventReconciliationMismatch, source).
			SetPayment(p).
			SetGatewayStatus(st.TransactionStatus, st.TransactionID).
			SetError("payment succeeded after the booking closed and its seats are gone; refund manually"))
		log.Error("Late payment for closed booking, seats unavailable; manual refund required")
		s.publishPayment(ctx, p, models.PaymentStatusSuccess)
		return nil
	}

	if outcome == database.ConfirmOutcomeReopened {
		log.Warn("Late payment re-took seats for a closed booking")
	}

	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventBookingConfirmed, source).
		SetPayment(p).
		SetResponsePayload(map[string]interface{}{"tickets": len(tickets)}))
	s.publishPayment(ctx, p, models.PaymentStatusSuccess)

	b, err := s.bookings.GetByID(ctx, p.BookingID)
	if err != nil || b == nil {
		return err
	}
	log.WithField("booking_code", b.Code).Info("Booking confirmed")
	s.bookingSvc.publish(ctx, events.TopicBookingConfirmed, b)

	go s.sendETicket(b)
	return nil
}

// applyClosed records FAILED, CANCELLED or EXPIRED. The payment and its
// booking close in one transaction, so a failure leaves both PENDING for the
// next attempt.
func (s *PaymentService) applyClosed(ctx context.Context, p *models.Payment, st *midtrans.TransactionStatus, upd models.PaymentUpdate, source models.PaymentEventSource) error {
	eventType := models.PaymentEventFailed
	bookingStatus := models.BookingStatusCancelled
	switch upd.Status {
	case models.PaymentStatusCancelled:
		eventType = models.PaymentEventCancelled
	case models.PaymentStatusExpired:
		eventType = models.PaymentEventExpired
		bookingStatus = models.BookingStatusExpired
	}

	closed, released, err := s.bookings.ClosePayment(ctx, p.BookingID, p.ID, upd, bookingStatus)
	if err != nil {
		return err
	}
	if !closed {
		return nil
	}

	s.audit(ctx, models.NewPaymentAudit(eventType, source).
		SetPayment(p).
		SetGatewayStatus(st.TransactionStatus, st.TransactionID))
	s.publishPayment(ctx, p, upd.Status)

	if released {
		b, err := s.bookings.GetByID(ctx, p.BookingID)
		if err != nil || b == nil {
			return err
		}
		topic := events.TopicBookingCancelled
		if bookingStatus == models.BookingStatusExpired {
			topic = events.TopicBookingExpired
		}
		s.bookingSvc.publish(ctx, topic, b)
		s.logger.WithFields(logrus.Fields{
			"booking_code": b.Code,
			"status":       b.Status,
		}).Info("Booking closed after payment outcome")
	}
	return nil
}

func (s *PaymentService) sendETicket(b *models.Booking) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	detail, err := s.bookingSvc.Detail(ctx, b)
	if err != nil {
		s.logger.WithError(err).WithField("booking_code", b.Code).Error("Failed to load booking for e-ticket")
		return
	}

	var pdf []byte
	if s.documents != nil {
		if pdf, err = s.documents.ETicketPDF(detail); err != nil {
			s.logger.WithError(err).WithField("booking_code", b.Code).Error("Failed to render e-ticket")
		}
	}

	_ = s.notifier.SendETicket(ctx, detail, pdf)
}

func (s *PaymentService) publishPayment(ctx context.Context, p *models.Payment, status models.PaymentStatus) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.TopicPaymentUpdated, map[string]interface{}{
		"order_id":   p.OrderID,
		"booking_id": p.BookingID,
		"status":     status,
		"amount":     p.Amount,
	})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to publish payment event")
	}
}

// audit writes a payment audit entry. The repository logs failures.
func (s *PaymentService) audit(ctx context.Context, a *models.PaymentAudit) {
	_ = s.audits.Log(ctx, a)
}

func statusPayload(st *midtrans.TransactionStatus) map[string]interface{} {
	return map[string]interface{}{
		"status_code":        st.StatusCode,
		"transaction_status": st.TransactionStatus,
		"fraud_status":       st.FraudStatus,
		"payment_type":       st.PaymentType,
		"gross_amount":       st.GrossAmount,
	}
}

// parseGatewayTime reads Midtrans timestamps, which are in Asia/Jakarta
func parseGatewayTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		loc = time.FixedZone("WIB", 7*3600)
	}
	t, err := time.ParseInLocation(gatewayTime, v, loc)
	if err != nil {
		return nil
	}
	return &t
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
