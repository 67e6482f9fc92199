package services

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/phpdave11/gofpdf"
)

// DocumentService renders e-tickets and manifests as PDF
type DocumentService struct {
	loc *time.Location
}

// NewDocumentService creates a document service printing times in loc
func NewDocumentService(loc *time.Location) *DocumentService {
	if loc == nil {
		loc = time.Local
	}
	return &DocumentService{loc: loc}
}

// ETicketPDF renders one page per ticket with its QR code
func (s *DocumentService) ETicketPDF(d *models.BookingDetail) ([]byte, error) {
	if len(d.Tickets) == 0 {
		return nil, models.ErrTicketNotFound
	}

	passengers := make(map[uuid.UUID]*models.Passenger, len(d.Passengers))
	for _, p := range d.Passengers {
		passengers[p.ID] = p
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("E-Ticket "+d.Booking.Code, false)

	for _, t := range d.Tickets {
		p := passengers[t.PassengerID]
		if p == nil {
			continue
		}

		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 18)
		pdf.Cell(0, 10, "SPEEDBOAT E-TICKET")
		pdf.Ln(14)

		pdf.SetFont("Helvetica", "", 12)
		for _, line := range s.ticketLines(d, t, p) {
			pdf.Cell(0, 7, line)
			pdf.Ln(7)
		}

		qr, err := QRCodePNG(t.QRPayload, 512)
		if err != nil {
			return nil, err
		}
		name := "qr-" + t.Code
		pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qr))
		pdf.ImageOptions(name, 140, 30, 50, 50, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")

		pdf.Ln(8)
		pdf.SetFont("Helvetica", "I", 10)
		pdf.MultiCell(0, 6, "Valid for one passenger. Show this QR code and your identity document at boarding. Check-in closes shortly after departure.", "", "", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render e-ticket: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *DocumentService) ticketLines(d *models.BookingDetail, t *models.Ticket, p *models.Passenger) []string {
	route, departure, ship := "-", "-", "-"
	if sch := d.Schedule; sch != nil {
		route = fmt.Sprintf("%s (%s) -> %s (%s)", sch.OriginPortName, sch.OriginPortCode, sch.DestinationPortName, sch.DestinationPortCode)
		departure = sch.DepartureTime.In(s.loc).Format("Mon, 02 Jan 2006 15:04 MST")
		ship = sch.ShipName
	}

	return []string{
		fmt.Sprintf("Ticket       : %s", t.Code),
		fmt.Sprintf("Booking      : %s", d.Booking.Code),
		fmt.Sprintf("Passenger    : %s", p.FullName),
		fmt.Sprintf("Identity No. : %s", maskIdentity(p.IdentityNumber)),
		fmt.Sprintf("Type         : %s", p.PassengerType),
		fmt.Sprintf("Seat         : %s", p.SeatLabel),
		fmt.Sprintf("Route        : %s", route),
		fmt.Sprintf("Departure    : %s", departure),
		fmt.Sprintf("Ship         : %s", ship),
		fmt.Sprintf("Status       : %s", t.Status),
	}
}

// ManifestPDF renders the passenger list of a sailing
func (s *DocumentService) ManifestPDF(m *models.Manifest) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Manifest", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "PASSENGER MANIFEST")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	if sch := m.Schedule; sch != nil {
		pdf.Cell(0, 6, fmt.Sprintf("%s -> %s  |  %s  |  %s",
			sch.OriginPortName, sch.DestinationPortName, sch.ShipName,
			sch.DepartureTime.In(s.loc).Format("02 Jan 2006 15:04 MST")))
		pdf.Ln(6)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Capacity %d  |  Booked %d  |  Checked in %d  |  Printed %s",
		m.Capacity, m.Booked, m.CheckedIn, m.Generated.In(s.loc).Format("02 Jan 2006 15:04")))
	pdf.Ln(10)

	headers := []string{"Seat", "Passenger", "Identity No.", "Type", "Ticket", "Booking", "Phone", "Checked in"}
	widths := []float64{15, 60, 40, 20, 32, 38, 35, 27}

	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, e := range m.Entries {
		checkedIn := ""
		if e.CheckedInAt != nil {
			checkedIn = e.CheckedInAt.In(s.loc).Format("15:04")
		}
		row := []string{e.SeatLabel, e.FullName, e.IdentityNumber, string(e.PassengerType),
			e.TicketCode, e.BookingCode, e.ContactPhone, checkedIn}
		for i, v := range row {
			pdf.CellFormat(widths[i], 6, v, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// maskIdentity keeps the last four characters
func maskIdentity(id string) string {
	if len(id) <= 4 {
		return id
	}
	return strings.Repeat("*", len(id)-4) + id[len(id)-4:]
}
