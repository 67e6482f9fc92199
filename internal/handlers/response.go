package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lautnusa/speedboat-backend/internal/middleware"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/internal/services"
	"github.com/lautnusa/speedboat-backend/internal/utils"
	"github.com/lautnusa/speedboat-backend/pkg/midtrans"
	"github.com/sirupsen/logrus"
)

// Response is the envelope of every JSON answer
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

func respondError(c *gin.Context, status int, message, code string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Error: message, Code: code})
}

func respondBindError(c *gin.Context, err error) {
	respondError(c, http.StatusBadRequest, "Invalid request: "+err.Error(), "VALIDATION_ERROR")
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string // empty keeps err.Error()
}

var errorMappings = []errorMapping{
	{models.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR", ""},
	{models.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"},
	{models.ErrInvalidToken, http.StatusUnauthorized, "INVALID_TOKEN", ""},
	{midtrans.ErrInvalidSignature, http.StatusForbidden, "INVALID_SIGNATURE", "Invalid notification signature"},
	{models.ErrEmailNotVerified, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Please verify your email address first"},
	{models.ErrForbidden, http.StatusForbidden, "FORBIDDEN", ""},
	{models.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND", ""},
	{models.ErrPortNotFound, http.StatusNotFound, "PORT_NOT_FOUND", ""},
	{models.ErrShipNotFound, http.StatusNotFound, "SHIP_NOT_FOUND", ""},
	{models.ErrRouteNotFound, http.StatusNotFound, "ROUTE_NOT_FOUND", ""},
	{models.ErrScheduleNotFound, http.StatusNotFound, "SCHEDULE_NOT_FOUND", ""},
	{models.ErrBookingNotFound, http.StatusNotFound, "BOOKING_NOT_FOUND", ""},
	{models.ErrPaymentNotFound, http.StatusNotFound, "PAYMENT_NOT_FOUND", ""},
	{models.ErrTicketNotFound, http.StatusNotFound, "TICKET_NOT_FOUND", ""},
	{models.ErrEmailTaken, http.StatusConflict, "EMAIL_TAKEN", ""},
	{models.ErrDuplicate, http.StatusConflict, "DUPLICATE", ""},
	{models.ErrInUse, http.StatusConflict, "IN_USE", ""},
	{models.ErrScheduleNotBookable, http.StatusConflict, "SCHEDULE_NOT_BOOKABLE", ""},
	{models.ErrInsufficientSeats, http.StatusConflict, "INSUFFICIENT_SEATS", ""},
	{models.ErrBookingNotPending, http.StatusConflict, "BOOKING_NOT_PENDING", ""},
	{models.ErrIdempotencyConflict, http.StatusConflict, "IDEMPOTENCY_CONFLICT", ""},
	{models.ErrAlreadyCheckedIn, http.StatusConflict, "ALREADY_CHECKED_IN", ""},
	{models.ErrStateChanged, http.StatusConflict, "STATE_CHANGED", "The record was changed by another request, please retry"},
	{models.ErrBookingExpired, http.StatusGone, "BOOKING_EXPIRED", ""},
	{models.ErrGatewayUnavailable, http.StatusBadGateway, "GATEWAY_UNAVAILABLE", "Payment gateway is unavailable, please try again"},
}

// lookupError finds the mapping for a domain error; message is filled in
func lookupError(err error) (errorMapping, bool) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.message == "" {
				m.message = err.Error()
			}
			return m, true
		}
	}
	return errorMapping{}, false
}

// respondServiceError maps a service error to its HTTP answer
func respondServiceError(c *gin.Context, logger *logrus.Logger, err error) {
	var rateErr *services.RateLimitError
	if errors.As(err, &rateErr) {
		seconds := int(math.Ceil(rateErr.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(seconds))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"success":     false,
			"error":       rateErr.Message,
			"code":        "RATE_LIMIT_EXCEEDED",
			"retry_after": seconds,
		})
		return
	}

	if m, ok := lookupError(err); ok {
		respondError(c, m.status, m.message, m.code)
		return
	}

	var gwErr *midtrans.GatewayError
	if errors.As(err, &gwErr) {
		logger.WithError(err).WithField("path", c.FullPath()).Error("Payment gateway error")
		respondError(c, http.StatusBadGateway, "Payment gateway is unavailable, please try again", "GATEWAY_UNAVAILABLE")
		return
	}

	logger.WithError(err).WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.FullPath(),
	}).Error("Request failed")
	respondError(c, http.StatusInternalServerError, "Internal server error", "INTERNAL_ERROR")
}

func clientInfo(c *gin.Context) services.ClientInfo {
	return services.ClientInfo{
		IP:        utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
	}
}

// actorFrom builds the service actor from the authenticated caller
func actorFrom(c *gin.Context) (services.Actor, bool) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "User context not found", "MISSING_USER_CONTEXT")
		return services.Actor{}, false
	}
	return services.Actor{UserID: userCtx.UserID, Email: userCtx.Email, Role: userCtx.Role}, true
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", models.ErrValidation, name)
	}
	return n, nil
}
