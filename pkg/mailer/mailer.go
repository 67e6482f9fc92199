package mailer

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Attachment is an in-memory file attached to a message
type Attachment struct {
	Filename string
	Data     []byte
}

// Message is one outgoing email
type Message struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Mailer sends email
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// SMTPConfig holds SMTP settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends through an SMTP relay
type SMTPMailer struct {
	from   string
	dialer *gomail.Dialer
	logger *logrus.Logger
}

// NewSMTPMailer creates an SMTP mailer
func NewSMTPMailer(cfg SMTPConfig, logger *logrus.Logger) *SMTPMailer {
	return &SMTPMailer{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: logger,
	}
}

// Build converts a Message into a gomail message
func (m *SMTPMailer) Build(msg *Message) *gomail.Message {
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/html", msg.HTML)

	for _, a := range msg.Attachments {
		data := a.Data
		gm.Attach(a.Filename, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}
	return gm
}

// Send dials the relay and sends the message
func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := m.dialer.DialAndSend(m.Build(msg)); err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"to":      msg.To,
			"subject": msg.Subject,
		}).Error("Failed to send email")
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("Email sent")
	return nil
}

// LogMailer logs messages instead of sending them (development)
type LogMailer struct {
	logger *logrus.Logger
}

// NewLogMailer creates a log-only mailer
func NewLogMailer(logger *logrus.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg *Message) error {
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Filename)
	}

	m.logger.WithFields(logrus.Fields{
		"to":          msg.To,
		"subject":     msg.Subject,
		"attachments": names,
		"body":        msg.HTML,
	}).Info("📧 [DEV MODE] Email not sent")
	return nil
}
