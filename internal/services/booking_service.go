package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lautnusa/speedboat-backend/internal/config"
	"github.com/lautnusa/speedboat-backend/internal/database"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/internal/utils"
	"github.com/lautnusa/speedboat-backend/pkg/authz"
	"github.com/lautnusa/speedboat-backend/pkg/events"
	"github.com/sirupsen/logrus"
)

const bookingCodeAttempts = 3

// BookingService handles seat reservation and the booking lifecycle
type BookingService struct {
	bookings  *database.BookingRepository
	schedules *database.ScheduleRepository
	payments  *database.PaymentRepository
	tickets   *database.TicketRepository
	gateway   PaymentGateway
	authz     Authorizer
	publisher events.Publisher
	notifier  *NotificationService
	documents *DocumentService
	cfg       config.BookingConfig
	logger    *logrus.Logger
	now       Clock
}

// NewBookingService creates a new booking service
func NewBookingService(
	bookings *database.BookingRepository,
	schedules *database.ScheduleRepository,
	payments *database.PaymentRepository,
	tickets *database.TicketRepository,
	gateway PaymentGateway,
	authorizer Authorizer,
	publisher events.Publisher,
	notifier *NotificationService,
	documents *DocumentService,
	cfg config.BookingConfig,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		bookings:  bookings,
		schedules: schedules,
		payments:  payments,
		tickets:   tickets,
		gateway:   gateway,
		authz:     authorizer,
		publisher: publisher,
		notifier:  notifier,
		documents: documents,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the time source
func (s *BookingService) SetClock(c Clock) {
	s.now = c
}

// Create reserves seats for the passengers and returns the PENDING booking
func (s *BookingService) Create(ctx context.Context, actor Actor, req *models.CreateBookingRequest) (*models.BookingDetail, error) {
	if n := len(req.Passengers); n < 1 || n > s.cfg.MaxPassengers {
		return nil, fmt.Errorf("%w: between 1 and %d passengers per booking", models.ErrValidation, s.cfg.MaxPassengers)
	}

	passengers := make([]*models.Passenger, len(req.Passengers))
	for i, in := range req.Passengers {
		p := &models.Passenger{
			FullName:       strings.TrimSpace(in.FullName),
			IdentityNumber: strings.TrimSpace(in.IdentityNumber),
			PassengerType:  in.PassengerType,
		}
		if in.Phone != "" {
			phone := localPhone(in.Phone)
			p.Phone = &phone
		}
		passengers[i] = p
	}

	now := s.now()
	var booking *models.Booking
	for attempt := 0; attempt < bookingCodeAttempts; attempt++ {
		code, err := utils.NewBookingCode(now)
		if err != nil {
			return nil, err
		}

		booking = &models.Booking{
			Code:         code,
			UserID:       actor.UserID,
			ScheduleID:   req.ScheduleID,
			ContactName:  strings.TrimSpace(req.ContactName),
			ContactEmail: strings.ToLower(strings.TrimSpace(req.ContactEmail)),
			ContactPhone: localPhone(req.ContactPhone),
			ExpiresAt:    now.Add(s.cfg.PaymentWindow),
		}

		err = s.bookings.Create(ctx, booking, passengers, now)
		if err == nil {
			break
		}
		if !errors.Is(err, models.ErrDuplicate) || attempt == bookingCodeAttempts-1 {
			return nil, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"booking_code": booking.Code,
		"schedule_id":  booking.ScheduleID,
		"passengers":   booking.PassengerCount,
		"total":        booking.TotalAmount,
	}).Info("Booking created")

	s.publish(ctx, events.TopicBookingCreated, booking)

	schedule, err := s.schedules.GetDetail(ctx, booking.ScheduleID)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load schedule for new booking")
	}

	return &models.BookingDetail{
		Booking:    booking,
		Schedule:   schedule,
		Passengers: passengers,
	}, nil
}

// Get returns a booking with passengers, latest payment and tickets.
// Visible to its owner and to roles allowed to read any booking.
func (s *BookingService) Get(ctx context.Context, actor Actor, code string) (*models.BookingDetail, error) {
	b, err := s.GetAccessible(ctx, actor, code)
	if err != nil {
		return nil, err
	}
	return s.Detail(ctx, b)
}

// GetAccessible loads a booking the actor may see
func (s *BookingService) GetAccessible(ctx context.Context, actor Actor, code string) (*models.Booking, error) {
	b, err := s.bookings.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, models.ErrBookingNotFound
	}
	if b.UserID == actor.UserID {
		return b, nil
	}

	allowed, err := s.authz.Allow(ctx, string(actor.Role), authz.PermBookingsReadAny)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, models.ErrForbidden
	}
	return b, nil
}

// Detail loads everything attached to a booking
func (s *BookingService) Detail(ctx context.Context, b *models.Booking) (*models.BookingDetail, error) {
	detail := &models.BookingDetail{Booking: b}

	var err error
	if detail.Schedule, err = s.schedules.GetDetail(ctx, b.ScheduleID); err != nil {
		return nil, err
	}
	if detail.Passengers, err = s.bookings.GetPassengers(ctx, b.ID); err != nil {
		return nil, err
	}
	if detail.Payment, err = s.payments.GetLatestByBooking(ctx, b.ID); err != nil {
		return nil, err
	}
	if b.Status == models.BookingStatusConfirmed || b.Status == models.BookingStatusCancelled {
		if detail.Tickets, err = s.tickets.ListByBooking(ctx, b.ID); err != nil {
			return nil, err
		}
	}

	return detail, nil
}

// ListMine returns the caller's bookings, newest first
func (s *BookingService) ListMine(ctx context.Context, actor Actor, limit, offset int) ([]*models.Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.bookings.ListByUser(ctx, actor.UserID, limit, offset)
}

// Cancel releases a PENDING booking of the caller
func (s *BookingService) Cancel(ctx context.Context, actor Actor, code string) (*models.Booking, error) {
	b, err := s.bookings.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, models.ErrBookingNotFound
	}
	if b.UserID != actor.UserID {
		return nil, models.ErrForbidden
	}
	if b.Status != models.BookingStatusPending {
		return nil, models.ErrBookingNotPending
	}

	s.cancelGatewayTransaction(ctx, b)

	released, err := s.bookings.ReleaseAndClose(ctx, b.ID, models.BookingStatusCancelled, models.PaymentStatusCancelled)
	if err != nil {
		return nil, err
	}
	if !released {
		return nil, models.ErrBookingNotPending
	}

	b.Status = models.BookingStatusCancelled
	s.logger.WithField("booking_code", b.Code).Info("Booking cancelled by customer")
	s.publish(ctx, events.TopicBookingCancelled, b)

	return b, nil
}

// Expire closes a PENDING booking whose payment window passed.
// Returns false when the booking had already left PENDING.
func (s *BookingService) Expire(ctx context.Context, b *models.Booking) (bool, error) {
	released, err := s.bookings.ReleaseAndClose(ctx, b.ID, models.BookingStatusExpired, models.PaymentStatusExpired)
	if err != nil {
		return false, err
	}
	if !released {
		return false, nil
	}

	b.Status = models.BookingStatusExpired
	s.logger.WithField("booking_code", b.Code).Info("Booking expired, seats released")
	s.publish(ctx, events.TopicBookingExpired, b)

	if s.notifier != nil {
		_ = s.notifier.SendBookingClosed(ctx, b)
	}
	return true, nil
}

// Tickets lists the tickets of a booking the actor may see
func (s *BookingService) Tickets(ctx context.Context, actor Actor, code string) ([]*models.Ticket, error) {
	b, err := s.GetAccessible(ctx, actor, code)
	if err != nil {
		return nil, err
	}
	return s.tickets.ListByBooking(ctx, b.ID)
}

// ETicketPDF renders the e-ticket of a confirmed booking
func (s *BookingService) ETicketPDF(ctx context.Context, actor Actor, code string) (string, []byte, error) {
	b, err := s.GetAccessible(ctx, actor, code)
	if err != nil {
		return "", nil, err
	}
	if b.Status != models.BookingStatusConfirmed {
		return "", nil, models.ErrTicketNotFound
	}

	detail, err := s.Detail(ctx, b)
	if err != nil {
		return "", nil, err
	}
	pdf, err := s.documents.ETicketPDF(detail)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("eticket-%s.pdf", b.Code), pdf, nil
}

// TicketQR renders the QR code of one ticket as PNG
func (s *BookingService) TicketQR(ctx context.Context, actor Actor, ticketCode string, size int) ([]byte, error) {
	t, err := s.tickets.GetLookupByCode(ctx, strings.ToUpper(strings.TrimSpace(ticketCode)))
	if err != nil {
		return nil, err
	}
	if t == nil || t.Status == models.TicketStatusCancelled {
		return nil, models.ErrTicketNotFound
	}
	if _, err := s.GetAccessible(ctx, actor, t.BookingCode); err != nil {
		return nil, err
	}

	if size < 128 || size > 1024 {
		size = 512
	}
	return QRCodePNG(t.QRPayload, size)
}

// cancelGatewayTransaction cancels the pending gateway transaction, best effort
func (s *BookingService) cancelGatewayTransaction(ctx context.Context, b *models.Booking) {
	if s.gateway == nil || !s.gateway.IsConfigured() {
		return
	}

	p, err := s.payments.GetLatestByBooking(ctx, b.ID)
	if err != nil || p == nil || p.Status != models.PaymentStatusPending || p.GatewayToken == nil {
		return
	}

	if _, err := s.gateway.Cancel(ctx, p.OrderID); err != nil {
		s.logger.WithError(err).WithField("order_id", p.OrderID).Warn("Failed to cancel gateway transaction")
	}
}

func (s *BookingService) publish(ctx context.Context, topic string, b *models.Booking) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, topic, map[string]interface{}{
		"booking_code":    b.Code,
		"booking_id":      b.ID,
		"schedule_id":     b.ScheduleID,
		"status":          b.Status,
		"passenger_count": b.PassengerCount,
		"total_amount":    b.TotalAmount,
	})
	if err != nil {
		s.logger.WithError(err).WithField("topic", topic).Warn("Failed to publish booking event")
	}
}
