package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/internal/services"
	"github.com/lautnusa/speedboat-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

const maxNotificationBody = 64 << 10

// PaymentHandler handles payment creation, status and gateway notifications
type PaymentHandler struct {
	payments *services.PaymentService
	logger   *logrus.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments *services.PaymentService, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

// CreatePayment handles POST /api/v1/payments/create.
// The Idempotency-Key header wins over the body field.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}
	if len(key) > 100 {
		respondError(c, http.StatusBadRequest, "Idempotency-Key is too long", "VALIDATION_ERROR")
		return
	}

	result, err := h.payments.Create(c.Request.Context(), actor, req.BookingCode, key, clientInfo(c))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	status := http.StatusCreated
	if result.Reused {
		status = http.StatusOK
	}
	respondOK(c, status, result)
}

// GetPaymentStatus handles GET /api/v1/payments/status/:bookingCode
func (h *PaymentHandler) GetPaymentStatus(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	view, err := h.payments.Status(c.Request.Context(), actor, c.Param("bookingCode"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, view)
}

// Notification handles POST /api/v1/payments/notification from the gateway.
// Any non-2xx answer makes the gateway retry.
func (h *PaymentHandler) Notification(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationBody))
	if err != nil || len(body) == 0 {
		respondError(c, http.StatusBadRequest, "Empty notification body", "VALIDATION_ERROR")
		return
	}

	if err := h.payments.HandleNotification(c.Request.Context(), body, utils.GetRealIP(c)); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, MessageResponse{Message: "OK"})
}
