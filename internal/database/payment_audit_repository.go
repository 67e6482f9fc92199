package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/sirupsen/logrus"
)

const paymentAuditColumns = `
	id, booking_id, payment_id, order_id, event_type, event_source,
	expected_amount, received_amount, amounts_match,
	gateway_status, gateway_transaction_id,
	request_payload, response_payload, raw_body, http_status_code,
	error_message, is_duplicate, idempotency_key, ip_address, created_at`

// PaymentAuditRepository handles the append-only payment audit trail
type PaymentAuditRepository struct {
	db     DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log appends an audit entry. Rows are never updated or deleted.
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_audits (`+paymentAuditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`,
		audit.ID, audit.BookingID, audit.PaymentID, audit.OrderID,
		audit.EventType, audit.EventSource,
		audit.ExpectedAmount, audit.ReceivedAmount, audit.AmountsMatch,
		audit.GatewayStatus, audit.GatewayTransactionID,
		audit.RequestPayload, audit.ResponsePayload, audit.RawBody, audit.HTTPStatusCode,
		audit.ErrorMessage, audit.IsDuplicate, audit.IdempotencyKey, audit.IPAddress,
		audit.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"order_id":   audit.OrderID,
		}).Error("CRITICAL: Failed to write payment audit")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
	}).Debug("Payment audit logged")

	return nil
}

// CheckDuplicate reports whether an event with the same dedupe key was already recorded
func (r *PaymentAuditRepository) CheckDuplicate(ctx context.Context, orderID string, eventType models.PaymentEventType, idempotencyKey string) (bool, error) {
	if idempotencyKey == "" {
		idempotencyKey = fmt.Sprintf("%s-%s", orderID, eventType)
	}

	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM payment_audits
		WHERE order_id = $1
		  AND event_type = $2
		  AND idempotency_key = $3
		  AND is_duplicate = FALSE
	`, orderID, eventType, idempotencyKey)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate: %w", err)
	}

	return count > 0, nil
}

// ListByBooking returns the audit trail of a booking, oldest first
func (r *PaymentAuditRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*models.PaymentAudit, error) {
	audits := []*models.PaymentAudit{}
	err := r.db.SelectContext(ctx, &audits, `
		SELECT `+paymentAuditColumns+`
		FROM payment_audits
		WHERE booking_id = $1
		ORDER BY created_at ASC
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get audits by booking: %w", err)
	}
	return audits, nil
}

// GetAmountMismatches returns audits where the gateway amount differed from the booking
func (r *PaymentAuditRepository) GetAmountMismatches(ctx context.Context, limit int) ([]*models.PaymentAudit, error) {
	audits := []*models.PaymentAudit{}
	err := r.db.SelectContext(ctx, &audits, `
		SELECT `+paymentAuditColumns+`
		FROM payment_audits
		WHERE amounts_match = FALSE OR event_type = 'reconciliation_mismatch'
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get amount mismatches: %w", err)
	}
	return audits, nil
}
