package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventInitiated              PaymentEventType = "payment_initiated"
	PaymentEventResponse               PaymentEventType = "payment_response"
	PaymentEventWebhookReceived        PaymentEventType = "webhook_received"
	PaymentEventWebhookProcessed       PaymentEventType = "webhook_processed"
	PaymentEventStatusCheckResponse    PaymentEventType = "status_check_response"
	PaymentEventSuccess                PaymentEventType = "payment_success"
	PaymentEventFailed                 PaymentEventType = "payment_failed"
	PaymentEventCancelled              PaymentEventType = "payment_cancelled"
	PaymentEventExpired                PaymentEventType = "payment_expired"
	PaymentEventRefunded               PaymentEventType = "payment_refunded"
	PaymentEventBookingConfirmed       PaymentEventType = "booking_confirmed"
	PaymentEventReconciliationMismatch PaymentEventType = "reconciliation_mismatch"
	PaymentEventError                  PaymentEventType = "error"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceBackend    PaymentEventSource = "backend"
	PaymentSourceWebhook    PaymentEventSource = "midtrans_webhook"
	PaymentSourceGatewayAPI PaymentEventSource = "midtrans_api"
	PaymentSourceUser       PaymentEventSource = "user"
	PaymentSourceSystem     PaymentEventSource = "system"
)

// PaymentAudit represents an immutable audit log entry for payment events
type PaymentAudit struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	BookingID *uuid.UUID `json:"booking_id,omitempty" db:"booking_id"`
	PaymentID *uuid.UUID `json:"payment_id,omitempty" db:"payment_id"`
	OrderID   *string    `json:"order_id,omitempty" db:"order_id"`

	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	ExpectedAmount *int64 `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount *int64 `json:"received_amount,omitempty" db:"received_amount"`
	AmountsMatch   *bool  `json:"amounts_match,omitempty" db:"amounts_match"`

	GatewayStatus        *string `json:"gateway_status,omitempty" db:"gateway_status"`
	GatewayTransactionID *string `json:"gateway_transaction_id,omitempty" db:"gateway_transaction_id"`

	RequestPayload  JSONB   `json:"request_payload,omitempty" db:"request_payload"`
	ResponsePayload JSONB   `json:"response_payload,omitempty" db:"response_payload"`
	RawBody         *string `json:"raw_body,omitempty" db:"raw_body"`
	HTTPStatusCode  *int    `json:"http_status_code,omitempty" db:"http_status_code"`

	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	IsDuplicate    bool    `json:"is_duplicate" db:"is_duplicate"`
	IdempotencyKey *string `json:"idempotency_key,omitempty" db:"idempotency_key"`
	IPAddress      *string `json:"ip_address,omitempty" db:"ip_address"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetPayment links the audit to a payment and its booking
func (pa *PaymentAudit) SetPayment(p *Payment) *PaymentAudit {
	if p == nil {
		return pa
	}
	pa.PaymentID = &p.ID
	pa.BookingID = &p.BookingID
	orderID := p.OrderID
	pa.OrderID = &orderID
	return pa
}

// SetOrderID sets the gateway order id
func (pa *PaymentAudit) SetOrderID(orderID string) *PaymentAudit {
	pa.OrderID = &orderID
	return pa
}

// SetAmounts records both amounts and returns whether they match
func (pa *PaymentAudit) SetAmounts(expected, received int64) bool {
	pa.ExpectedAmount = &expected
	pa.ReceivedAmount = &received
	match := expected == received
	pa.AmountsMatch = &match
	return match
}

// SetGatewayStatus sets the raw status reported by the gateway
func (pa *PaymentAudit) SetGatewayStatus(status, transactionID string) *PaymentAudit {
	if status != "" {
		pa.GatewayStatus = &status
	}
	if transactionID != "" {
		pa.GatewayTransactionID = &transactionID
	}
	return pa
}

// SetError sets error information
func (pa *PaymentAudit) SetError(message string) *PaymentAudit {
	pa.ErrorMessage = &message
	return pa
}

// SetRawBody stores the raw body before parsing
func (pa *PaymentAudit) SetRawBody(body string) *PaymentAudit {
	pa.RawBody = &body
	return pa
}

// SetHTTPStatus sets the gateway response status code
func (pa *PaymentAudit) SetHTTPStatus(code int) *PaymentAudit {
	pa.HTTPStatusCode = &code
	return pa
}

// SetRequestPayload sets the request payload sent
func (pa *PaymentAudit) SetRequestPayload(payload map[string]interface{}) *PaymentAudit {
	pa.RequestPayload = JSONB(payload)
	return pa
}

// SetResponsePayload sets the response payload received
func (pa *PaymentAudit) SetResponsePayload(payload map[string]interface{}) *PaymentAudit {
	pa.ResponsePayload = JSONB(payload)
	return pa
}

// SetIdempotencyKey sets the dedupe key of a webhook event
func (pa *PaymentAudit) SetIdempotencyKey(key string) *PaymentAudit {
	pa.IdempotencyKey = &key
	return pa
}

// SetIPAddress records the caller address
func (pa *PaymentAudit) SetIPAddress(ip string) *PaymentAudit {
	if ip != "" {
		pa.IPAddress = &ip
	}
	return pa
}

// MarkAsDuplicate marks this event as a duplicate
func (pa *PaymentAudit) MarkAsDuplicate() *PaymentAudit {
	pa.IsDuplicate = true
	return pa
}
