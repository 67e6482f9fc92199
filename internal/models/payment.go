package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the internal payment status every gateway status maps to
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusSuccess   PaymentStatus = "SUCCESS"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusExpired   PaymentStatus = "EXPIRED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// IsFinal reports whether the status can no longer move, refunds aside
func (s PaymentStatus) IsFinal() bool {
	return s != PaymentStatusPending
}

// Payment is one gateway transaction for a booking
type Payment struct {
	ID                   uuid.UUID     `json:"id" db:"id"`
	BookingID            uuid.UUID     `json:"booking_id" db:"booking_id"`
	OrderID              string        `json:"order_id" db:"order_id"`
	IdempotencyKey       string        `json:"-" db:"idempotency_key"`
	Amount               int64         `json:"amount" db:"amount"`
	Status               PaymentStatus `json:"status" db:"status"`
	Method               *string       `json:"method,omitempty" db:"method"`
	GatewayToken         *string       `json:"token,omitempty" db:"gateway_token"`
	RedirectURL          *string       `json:"redirect_url,omitempty" db:"redirect_url"`
	GatewayTransactionID *string       `json:"gateway_transaction_id,omitempty" db:"gateway_transaction_id"`
	GatewayStatus        *string       `json:"gateway_status,omitempty" db:"gateway_status"`
	PaidAt               *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
	ExpiresAt            time.Time     `json:"expires_at" db:"expires_at"`
	CreatedAt            time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at" db:"updated_at"`
}

// PaymentUpdate carries what reconciliation learned from the gateway
type PaymentUpdate struct {
	Status               PaymentStatus
	GatewayStatus        string
	GatewayTransactionID string
	Method               string
	PaidAt               *time.Time
}

// CreatePaymentRequest is the payload for POST /payments/create
type CreatePaymentRequest struct {
	BookingCode    string `json:"booking_code" binding:"required"`
	IdempotencyKey string `json:"idempotency_key" binding:"omitempty,max=100"`
}

// PaymentStatusView is the answer of the status endpoint
type PaymentStatusView struct {
	BookingCode   string        `json:"booking_code"`
	BookingStatus BookingStatus `json:"booking_status"`
	ExpiresAt     time.Time     `json:"expires_at"`
	Payment       *Payment      `json:"payment,omitempty"`
	Tickets       []*Ticket     `json:"tickets,omitempty"`
}
