package services

import (
	"context"
	"time"

	"github.com/lautnusa/speedboat-backend/internal/database"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/sirupsen/logrus"
)

const expirationBatch = 100

// BookingExpirationService releases the seats of bookings not paid in time
type BookingExpirationService struct {
	bookings   *database.BookingRepository
	payments   *database.PaymentRepository
	bookingSvc *BookingService
	paymentSvc *PaymentService
	logger     *logrus.Logger
	interval   time.Duration
	now        Clock

	cancel context.CancelFunc
	done   chan struct{}
}

// NewBookingExpirationService creates a new expiration sweeper
func NewBookingExpirationService(
	bookings *database.BookingRepository,
	payments *database.PaymentRepository,
	bookingSvc *BookingService,
	paymentSvc *PaymentService,
	logger *logrus.Logger,
) *BookingExpirationService {
	return &BookingExpirationService{
		bookings:   bookings,
		payments:   payments,
		bookingSvc: bookingSvc,
		paymentSvc: paymentSvc,
		logger:     logger,
		interval:   1 * time.Minute, // Check every minute
		now:        time.Now,
	}
}

// Start begins the background sweep
func (s *BookingExpirationService) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.WithField("interval", s.interval).Info("Starting booking expiration service")
	go s.run(ctx)
}

// Stop stops the sweep and waits for the running pass to finish
func (s *BookingExpirationService) Stop() {
	if s.cancel == nil {
		return
	}
	s.logger.Info("Stopping booking expiration service")
	s.cancel()
	<-s.done
}

func (s *BookingExpirationService) run(ctx context.Context) {
	defer close(s.done)

	// Run immediately on start
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			s.logger.Info("Booking expiration service stopped")
			return
		}
	}
}

// RunOnce runs a single sweep and returns how many bookings were expired
func (s *BookingExpirationService) RunOnce(ctx context.Context) int {
	expired, err := s.bookings.ListExpiredPending(ctx, s.now(), expirationBatch)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list expired bookings")
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	s.logger.WithField("count", len(expired)).Info("Processing expired bookings")

	count := 0
	for _, b := range expired {
		if ctx.Err() != nil {
			break
		}
		ok, err := s.expire(ctx, b)
		if err != nil {
			s.logger.WithError(err).WithField("booking_code", b.Code).Error("Failed to expire booking")
			continue
		}
		if ok {
			count++
		}
	}
	return count
}

// expire asks the gateway first so a payment made at the last minute confirms
// instead of losing its seats
func (s *BookingExpirationService) expire(ctx context.Context, b *models.Booking) (bool, error) {
	p, err := s.payments.GetLatestByBooking(ctx, b.ID)
	if err != nil {
		return false, err
	}

	if p != nil && p.Status == models.PaymentStatusPending && p.GatewayToken != nil {
		if err := s.paymentSvc.Reconcile(ctx, p); err != nil {
			s.logger.WithError(err).WithField("order_id", p.OrderID).Warn("Status check before expiry failed")
		}

		current, err := s.bookings.GetByID(ctx, b.ID)
		if err != nil {
			return false, err
		}
		if current == nil || current.Status != models.BookingStatusPending {
			return false, nil
		}
		s.bookingSvc.cancelGatewayTransaction(ctx, current)
	}

	return s.bookingSvc.Expire(ctx, b)
}
