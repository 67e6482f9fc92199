package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/config"
	"github.com/lautnusa/speedboat-backend/internal/database"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/pkg/events"
	"github.com/sirupsen/logrus"
)

// Reasons a scan is refused
const (
	ReasonInvalidSignature    = "invalid_signature"
	ReasonNotFound            = "ticket_not_found"
	ReasonBookingMismatch     = "booking_mismatch"
	ReasonBookingNotConfirmed = "booking_not_confirmed"
	ReasonTicketCancelled     = "ticket_cancelled"
	ReasonAlreadyCheckedIn    = "already_checked_in"
	ReasonWrongSchedule       = "wrong_schedule"
	ReasonScheduleCancelled   = "schedule_cancelled"
	ReasonCheckInNotOpen      = "check_in_not_open"
	ReasonCheckInClosed       = "check_in_closed"
)

// OperatorService serves gate staff: manifests, ticket validation and check-in
type OperatorService struct {
	schedules *database.ScheduleRepository
	tickets   *database.TicketRepository
	ticketSvc *TicketService
	documents *DocumentService
	publisher events.Publisher
	cfg       config.BookingConfig
	logger    *logrus.Logger
	now       Clock
}

// NewOperatorService creates a new operator service
func NewOperatorService(
	schedules *database.ScheduleRepository,
	tickets *database.TicketRepository,
	ticketSvc *TicketService,
	documents *DocumentService,
	publisher events.Publisher,
	cfg config.BookingConfig,
	logger *logrus.Logger,
) *OperatorService {
	return &OperatorService{
		schedules: schedules,
		tickets:   tickets,
		ticketSvc: ticketSvc,
		documents: documents,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the time source
func (s *OperatorService) SetClock(c Clock) {
	s.now = c
}

// GetManifest lists the confirmed passengers of a sailing
func (s *OperatorService) GetManifest(ctx context.Context, scheduleID uuid.UUID) (*models.Manifest, error) {
	schedule, err := s.schedules.GetDetail(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, models.ErrScheduleNotFound
	}

	entries, err := s.tickets.ListManifest(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	m := &models.Manifest{
		Schedule:  schedule,
		Entries:   entries,
		Booked:    len(entries),
		Capacity:  schedule.Capacity,
		Generated: s.now(),
	}
	for _, e := range entries {
		if e.CheckedInAt != nil {
			m.CheckedIn++
		}
	}
	return m, nil
}

// ManifestPDF renders the manifest for printing
func (s *OperatorService) ManifestPDF(ctx context.Context, scheduleID uuid.UUID) ([]byte, error) {
	m, err := s.GetManifest(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	return s.documents.ManifestPDF(m)
}

// ValidateTicket checks a scan without changing anything
func (s *OperatorService) ValidateTicket(ctx context.Context, input string, scheduleID *uuid.UUID) (*models.TicketValidation, error) {
	v, _, err := s.inspect(ctx, input, scheduleID)
	return v, err
}

// CheckIn validates a scan and marks the ticket used. A second scan fails with
// models.ErrAlreadyCheckedIn and carries the original check-in time.
func (s *OperatorService) CheckIn(ctx context.Context, operator Actor, input string, scheduleID *uuid.UUID) (*models.TicketValidation, error) {
	v, lookup, err := s.inspect(ctx, input, scheduleID)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return v, scanError(v.Reason)
	}

	at := s.now()
	if err := s.tickets.CheckIn(ctx, lookup.ID, operator.UserID, at); err != nil {
		if errors.Is(err, models.ErrAlreadyCheckedIn) {
			// lost a race with another gate; report what it recorded
			if again, _, lookupErr := s.inspect(ctx, input, scheduleID); lookupErr == nil {
				return again, err
			}
		}
		return v, err
	}

	v.CheckedInAt = &at
	s.logger.WithFields(logrus.Fields{
		"ticket_code":  lookup.Code,
		"booking_code": lookup.BookingCode,
		"operator_id":  operator.UserID,
	}).Info("Passenger checked in")

	if s.publisher != nil {
		err := s.publisher.Publish(ctx, events.TopicTicketCheckedIn, map[string]interface{}{
			"ticket_code":   lookup.Code,
			"booking_code":  lookup.BookingCode,
			"schedule_id":   lookup.ScheduleID,
			"checked_in_at": at,
			"operator_id":   operator.UserID,
		})
		if err != nil {
			s.logger.WithError(err).Warn("Failed to publish check-in event")
		}
	}
	return v, nil
}

func (s *OperatorService) inspect(ctx context.Context, input string, scheduleID *uuid.UUID) (*models.TicketValidation, *models.TicketLookup, error) {
	scan, err := s.ticketSvc.ParseScan(input)
	if err != nil {
		if errors.Is(err, models.ErrInvalidToken) {
			return &models.TicketValidation{Reason: ReasonInvalidSignature}, nil, nil
		}
		return nil, nil, err
	}

	lookup, err := s.tickets.GetLookupByCode(ctx, scan.TicketCode)
	if err != nil {
		return nil, nil, err
	}
	if lookup == nil {
		return &models.TicketValidation{Reason: ReasonNotFound, TicketCode: scan.TicketCode}, nil, nil
	}

	sid := lookup.ScheduleID
	v := &models.TicketValidation{
		TicketCode:  lookup.Code,
		BookingCode: lookup.BookingCode,
		Passenger:   lookup.PassengerName,
		Identity:    lookup.IdentityNumber,
		SeatLabel:   lookup.SeatLabel,
		ScheduleID:  &sid,
		CheckedInAt: lookup.CheckedInAt,
	}
	v.Reason = s.refusal(scan, lookup, scheduleID)
	v.Valid = v.Reason == ""
	return v, lookup, nil
}

func (s *OperatorService) refusal(scan *ScannedTicket, t *models.TicketLookup, scheduleID *uuid.UUID) string {
	now := s.now()
	switch {
	case scan.BookingCode != "" && scan.BookingCode != t.BookingCode:
		return ReasonBookingMismatch
	case t.BookingStatus != models.BookingStatusConfirmed:
		return ReasonBookingNotConfirmed
	case t.Status == models.TicketStatusCancelled:
		return ReasonTicketCancelled
	case t.CheckedInAt != nil || t.Status == models.TicketStatusUsed:
		return ReasonAlreadyCheckedIn
	case scheduleID != nil && *scheduleID != t.ScheduleID:
		return ReasonWrongSchedule
	case t.ScheduleStatus == models.ScheduleStatusCancelled:
		return ReasonScheduleCancelled
	case now.Before(t.DepartureTime.Add(-s.cfg.CheckInOpensBefore)):
		return ReasonCheckInNotOpen
	case now.After(t.DepartureTime.Add(s.cfg.CheckInClosesAfter)):
		return ReasonCheckInClosed
	}
	return ""
}

func scanError(reason string) error {
	switch reason {
	case ReasonInvalidSignature:
		return models.ErrInvalidToken
	case ReasonNotFound:
		return models.ErrTicketNotFound
	case ReasonAlreadyCheckedIn:
		return models.ErrAlreadyCheckedIn
	}
	return fmt.Errorf("%w: %s", models.ErrValidation, reason)
}
