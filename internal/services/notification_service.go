package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"time"

	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/pkg/mailer"
	"github.com/sirupsen/logrus"
)

var mailTemplates = template.Must(template.New("mail").Parse(`
{{define "verify"}}<p>Hi {{.Name}},</p>
<p>Please confirm your email address to start booking speedboat tickets.</p>
<p><a href="{{.Link}}">Verify my email</a></p>
<p>This link expires in {{.TTL}}.</p>{{end}}

{{define "reset"}}<p>Hi {{.Name}},</p>
<p>We received a request to reset your password.</p>
<p><a href="{{.Link}}">Choose a new password</a></p>
<p>This link expires in {{.TTL}}. If you did not ask for it, ignore this email.</p>{{end}}

{{define "eticket"}}<p>Hi {{.Name}},</p>
<p>Your booking <strong>{{.Code}}</strong> is confirmed.</p>
{{with .Schedule}}<p>{{.OriginPortName}} &rarr; {{.DestinationPortName}}, {{.ShipName}}</p>{{end}}
<p>Departure: {{.Departure}}</p>
<p>Your e-tickets are attached, one per passenger. Show the QR code at boarding.</p>{{end}}

{{define "closed"}}<p>Hi {{.Name}},</p>
<p>Your booking <strong>{{.Code}}</strong> was {{.Reason}} and its seats were released.</p>{{end}}
`))

// NotificationService sends transactional emails
type NotificationService struct {
	mailer      mailer.Mailer
	frontendURL string
	loc         *time.Location
	logger      *logrus.Logger
}

// NewNotificationService creates a notification service
func NewNotificationService(m mailer.Mailer, frontendURL string, loc *time.Location, logger *logrus.Logger) *NotificationService {
	if loc == nil {
		loc = time.Local
	}
	return &NotificationService{
		mailer:      m,
		frontendURL: frontendURL,
		loc:         loc,
		logger:      logger,
	}
}

// SendVerification mails the email verification link
func (s *NotificationService) SendVerification(ctx context.Context, user *models.User, token string, ttl time.Duration) error {
	return s.send(ctx, user.Email, "Verify your email address", "verify", map[string]interface{}{
		"Name": user.Name,
		"Link": s.link("/verify-email", token),
		"TTL":  humanDuration(ttl),
	}, nil)
}

// SendPasswordReset mails the password reset link
func (s *NotificationService) SendPasswordReset(ctx context.Context, user *models.User, token string, ttl time.Duration) error {
	return s.send(ctx, user.Email, "Reset your password", "reset", map[string]interface{}{
		"Name": user.Name,
		"Link": s.link("/reset-password", token),
		"TTL":  humanDuration(ttl),
	}, nil)
}

// SendETicket mails the confirmation with the e-ticket PDF attached
func (s *NotificationService) SendETicket(ctx context.Context, d *models.BookingDetail, pdf []byte) error {
	departure := ""
	if d.Schedule != nil {
		departure = d.Schedule.DepartureTime.In(s.loc).Format("Mon, 02 Jan 2006 15:04 MST")
	}

	var attachments []mailer.Attachment
	if len(pdf) > 0 {
		attachments = append(attachments, mailer.Attachment{
			Filename: fmt.Sprintf("eticket-%s.pdf", d.Booking.Code),
			Data:     pdf,
		})
	}

	return s.send(ctx, d.Booking.ContactEmail, "Your speedboat tickets - "+d.Booking.Code, "eticket", map[string]interface{}{
		"Name":      d.Booking.ContactName,
		"Code":      d.Booking.Code,
		"Schedule":  d.Schedule,
		"Departure": departure,
	}, attachments)
}

// SendBookingClosed tells the customer an unpaid booking was released
func (s *NotificationService) SendBookingClosed(ctx context.Context, b *models.Booking) error {
	reason := "cancelled"
	if b.Status == models.BookingStatusExpired {
		reason = "not paid in time"
	}
	return s.send(ctx, b.ContactEmail, "Booking "+b.Code+" released", "closed", map[string]interface{}{
		"Name":   b.ContactName,
		"Code":   b.Code,
		"Reason": reason,
	}, nil)
}

func (s *NotificationService) send(ctx context.Context, to, subject, tmpl string, data interface{}, attachments []mailer.Attachment) error {
	var body bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&body, tmpl, data); err != nil {
		return fmt.Errorf("failed to render %s mail: %w", tmpl, err)
	}

	err := s.mailer.Send(ctx, &mailer.Message{
		To:          to,
		Subject:     subject,
		HTML:        body.String(),
		Attachments: attachments,
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"template": tmpl,
			"to":       to,
		}).Error("Failed to send email")
		return err
	}
	return nil
}

func (s *NotificationService) link(path, token string) string {
	return s.frontendURL + path + "?token=" + url.QueryEscape(token)
}

func humanDuration(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return fmt.Sprintf("%d minutes", int(d/time.Minute))
}
