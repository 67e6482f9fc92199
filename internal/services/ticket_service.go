package services

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image/png"
	"strings"

	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/internal/utils"
	"github.com/skip2/go-qrcode"
)

const (
	qrPrefix       = "SBT1"
	qrSignatureLen = 16 // hex chars
)

// TicketService issues tickets and signs and reads their QR payloads
type TicketService struct {
	secret []byte
}

// NewTicketService creates a ticket service signing with secret
func NewTicketService(secret string) *TicketService {
	return &TicketService{secret: []byte(secret)}
}

// Issue builds the ticket for one passenger of a confirmed booking.
// It is passed to the booking repository so tickets are written in the
// confirming transaction.
func (s *TicketService) Issue(b *models.Booking, p *models.Passenger) (*models.Ticket, error) {
	code, err := utils.NewTicketCode()
	if err != nil {
		return nil, err
	}
	return &models.Ticket{
		Code:      code,
		QRPayload: s.Payload(code, b.Code),
	}, nil
}

// Payload returns SBT1|<ticket>|<booking>|<signature>
func (s *TicketService) Payload(ticketCode, bookingCode string) string {
	return strings.Join([]string{qrPrefix, ticketCode, bookingCode, s.sign(ticketCode, bookingCode)}, "|")
}

func (s *TicketService) sign(ticketCode, bookingCode string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(qrPrefix + "|" + ticketCode + "|" + bookingCode))
	return hex.EncodeToString(mac.Sum(nil))[:qrSignatureLen]
}

// ScannedTicket is what a gate scan resolved to
type ScannedTicket struct {
	TicketCode  string
	BookingCode string // empty when a bare code was typed in
}

// ParseScan accepts a QR payload or a bare ticket code. A payload with a bad
// signature fails with models.ErrInvalidToken.
func (s *TicketService) ParseScan(input string) (*ScannedTicket, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("%w: empty ticket code", models.ErrValidation)
	}

	if !strings.HasPrefix(input, qrPrefix+"|") {
		return &ScannedTicket{TicketCode: strings.ToUpper(input)}, nil
	}

	parts := strings.Split(input, "|")
	if len(parts) != 4 {
		return nil, models.ErrInvalidToken
	}
	expected := s.sign(parts[1], parts[2])
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(parts[3]))) {
		return nil, models.ErrInvalidToken
	}

	return &ScannedTicket{TicketCode: parts[1], BookingCode: parts[2]}, nil
}

// QRCodePNG renders content as a PNG of size x size pixels
func QRCodePNG(content string, size int) ([]byte, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to build qr code: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(size)); err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	return buf.Bytes(), nil
}
