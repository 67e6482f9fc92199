package services

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBookingDetail() *models.BookingDetail {
	bookingID := uuid.New()
	passenger := &models.Passenger{
		ID:             uuid.New(),
		BookingID:      bookingID,
		FullName:       "Siti Rahma",
		IdentityNumber: "5301012345678901",
		PassengerType:  models.PassengerAdult,
		SeatLabel:      "1A",
	}
	tickets := NewTicketService("qr-secret")
	return &models.BookingDetail{
		Booking: &models.Booking{
			ID:           bookingID,
			Code:         "SB251020ABCDEF",
			Status:       models.BookingStatusConfirmed,
			ContactName:  "Siti Rahma",
			ContactEmail: "siti@example.com",
		},
		Schedule: &models.ScheduleDetail{
			Schedule:            models.Schedule{DepartureTime: time.Date(2025, 10, 21, 0, 30, 0, 0, time.UTC)},
			OriginPortName:      "Pelabuhan Tenau",
			OriginPortCode:      "TNU",
			DestinationPortName: "Pelabuhan Ba'a",
			DestinationPortCode: "BAA",
			ShipName:            "KM Express Bahari",
		},
		Passengers: []*models.Passenger{passenger},
		Tickets: []*models.Ticket{{
			ID:          uuid.New(),
			Code:        "TK7QX2M9",
			BookingID:   bookingID,
			PassengerID: passenger.ID,
			QRPayload:   tickets.Payload("TK7QX2M9", "SB251020ABCDEF"),
			Status:      models.TicketStatusActive,
		}},
	}
}

func TestETicketPDF(t *testing.T) {
	svc := NewDocumentService(time.FixedZone("WITA", 8*3600))

	pdf, err := svc.ETicketPDF(testBookingDetail())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestETicketPDF_NoTickets(t *testing.T) {
	d := testBookingDetail()
	d.Tickets = nil

	_, err := NewDocumentService(nil).ETicketPDF(d)
	assert.ErrorIs(t, err, models.ErrTicketNotFound)
}

func TestManifestPDF(t *testing.T) {
	at := time.Date(2025, 10, 21, 0, 10, 0, 0, time.UTC)
	m := &models.Manifest{
		Schedule: testBookingDetail().Schedule,
		Entries: []*models.ManifestEntry{
			{TicketCode: "TK7QX2M9", BookingCode: "SB251020ABCDEF", FullName: "Siti Rahma", SeatLabel: "1A", PassengerType: models.PassengerAdult, CheckedInAt: &at},
			{TicketCode: "TK4HJ8PW", BookingCode: "SB251020ABCDEF", FullName: "Yohanes Ndun", SeatLabel: "1B", PassengerType: models.PassengerChild},
		},
		Booked:    2,
		CheckedIn: 1,
		Capacity:  40,
		Generated: at,
	}

	pdf, err := NewDocumentService(nil).ManifestPDF(m)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestMaskIdentity(t *testing.T) {
	assert.Equal(t, "************8901", maskIdentity("5301012345678901"))
	assert.Equal(t, "1234", maskIdentity("1234"))
}
