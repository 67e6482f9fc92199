package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lib/pq"
)

const paymentColumns = `
	id, booking_id, order_id, idempotency_key, amount, status, method,
	gateway_token, redirect_url, gateway_transaction_id, gateway_status,
	paid_at, expires_at, created_at, updated_at`

// PaymentRepository handles payment database operations
type PaymentRepository struct {
	db DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a PENDING payment. A reused idempotency key or order id
// returns models.ErrDuplicate.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	p.ID = uuid.New()
	p.Status = models.PaymentStatusPending
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (
			id, booking_id, order_id, idempotency_key, amount, status,
			expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.BookingID, p.OrderID, p.IdempotencyKey, p.Amount, p.Status,
		p.ExpiresAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicate
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetByIdempotencyKey returns nil if not found
func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = $1`, key)
}

// GetByOrderID returns nil if not found
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID)
}

// GetLatestByBooking returns the most recent payment of a booking, or nil
func (r *PaymentRepository) GetLatestByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	return r.getOne(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE booking_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, bookingID)
}

func (r *PaymentRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.GetContext(ctx, &p, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

// SetGatewayToken stores the Snap token and redirect URL
func (r *PaymentRepository) SetGatewayToken(ctx context.Context, id uuid.UUID, token, redirectURL string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET gateway_token = $2, redirect_url = $3, updated_at = NOW()
		WHERE id = $1
	`, id, token, redirectURL)
	if err != nil {
		return fmt.Errorf("failed to store gateway token: %w", err)
	}
	return expectOne(result, models.ErrPaymentNotFound)
}

// DeletePending removes a PENDING payment that never reached the gateway
func (r *PaymentRepository) DeletePending(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM payments
		WHERE id = $1 AND status = 'PENDING' AND gateway_token IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return nil
}

// ApplyUpdate moves a payment to upd.Status when its current status is one of
// from. Returns false when the guard did not match.
func (r *PaymentRepository) ApplyUpdate(ctx context.Context, id uuid.UUID, upd models.PaymentUpdate, from ...models.PaymentStatus) (bool, error) {
	if len(from) == 0 {
		from = []models.PaymentStatus{models.PaymentStatusPending}
	}
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2,
		    gateway_status = COALESCE($3, gateway_status),
		    gateway_transaction_id = COALESCE($4, gateway_transaction_id),
		    method = COALESCE($5, method),
		    updated_at = NOW()
		WHERE id = $1 AND status = ANY($6)
	`, id, upd.Status, nullIfEmpty(upd.GatewayStatus), nullIfEmpty(upd.GatewayTransactionID),
		nullIfEmpty(upd.Method), pq.Array(statuses))
	if err != nil {
		return false, fmt.Errorf("failed to update payment: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// TouchGatewayStatus records the latest raw gateway status without moving the internal status
func (r *PaymentRepository) TouchGatewayStatus(ctx context.Context, id uuid.UUID, gatewayStatus string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments SET gateway_status = $2, updated_at = NOW() WHERE id = $1
	`, id, gatewayStatus)
	if err != nil {
		return fmt.Errorf("failed to update gateway status: %w", err)
	}
	return nil
}

// ListPendingForReconciliation returns PENDING payments created before olderThan
// that reached the gateway and whose booking is still PENDING, oldest first
func (r *PaymentRepository) ListPendingForReconciliation(ctx context.Context, olderThan time.Time, limit int) ([]*models.Payment, error) {
	payments := []*models.Payment{}
	err := r.db.SelectContext(ctx, &payments, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE status = 'PENDING'
		  AND gateway_token IS NOT NULL
		  AND created_at < $1
		  AND EXISTS (
		      SELECT 1 FROM bookings b
		      WHERE b.id = payments.booking_id AND b.status = 'PENDING'
		  )
		ORDER BY created_at
		LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	return payments, nil
}
