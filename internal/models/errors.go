package models

import "errors"

// Domain errors shared by repositories, services and handlers.
// Handlers map them to HTTP status codes with errors.Is.
var (
	// 400
	ErrValidation = errors.New("validation failed")

	// 401 / 403
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotVerified   = errors.New("email address not verified")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrForbidden          = errors.New("access denied")

	// 404
	ErrUserNotFound     = errors.New("user not found")
	ErrPortNotFound     = errors.New("port not found")
	ErrShipNotFound     = errors.New("ship not found")
	ErrRouteNotFound    = errors.New("route not found")
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrTicketNotFound   = errors.New("ticket not found")

	// 409
	ErrDuplicate           = errors.New("resource already exists")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInUse               = errors.New("resource is still referenced")
	ErrScheduleNotBookable = errors.New("schedule is not open for booking")
	ErrInsufficientSeats   = errors.New("not enough seats available")
	ErrBookingNotPending   = errors.New("booking is no longer pending")
	ErrIdempotencyConflict = errors.New("idempotency key already used for another booking")
	ErrAlreadyCheckedIn    = errors.New("ticket already checked in")
	ErrStateChanged        = errors.New("record changed concurrently")

	// 410
	ErrBookingExpired = errors.New("booking payment window has expired")

	// 502 / 503
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)
