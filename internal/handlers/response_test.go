package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/internal/services"
	"github.com/lautnusa/speedboat-backend/pkg/midtrans"
	"github.com/stretchr/testify/assert"
)

func respondWith(err error) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	respondServiceError(c, testLogger(), err)
	return w
}

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"wrapped validation", fmt.Errorf("%w: passengers exceed limit", models.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", models.ErrBookingNotFound, http.StatusNotFound, "BOOKING_NOT_FOUND"},
		{"seats", models.ErrInsufficientSeats, http.StatusConflict, "INSUFFICIENT_SEATS"},
		{"idempotency", models.ErrIdempotencyConflict, http.StatusConflict, "IDEMPOTENCY_CONFLICT"},
		{"expired", models.ErrBookingExpired, http.StatusGone, "BOOKING_EXPIRED"},
		{"signature", midtrans.ErrInvalidSignature, http.StatusForbidden, "INVALID_SIGNATURE"},
		{"gateway unavailable", fmt.Errorf("%w: snap failed", models.ErrGatewayUnavailable), http.StatusBadGateway, "GATEWAY_UNAVAILABLE"},
		{"gateway error", &midtrans.GatewayError{HTTPStatus: 500, StatusCode: "500"}, http.StatusBadGateway, "GATEWAY_UNAVAILABLE"},
		{"checked in", models.ErrAlreadyCheckedIn, http.StatusConflict, "ALREADY_CHECKED_IN"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := respondWith(tt.err)
			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestRespondServiceError_InternalMessageHidden(t *testing.T) {
	w := respondWith(errors.New("pq: password authentication failed"))
	assert.NotContains(t, w.Body.String(), "pq:")
}

func TestRespondServiceError_RateLimit(t *testing.T) {
	err := fmt.Errorf("login: %w", &services.RateLimitError{
		Message:    "Too many login attempts",
		RetryAfter: 90*time.Second + 200*time.Millisecond,
		Type:       "email",
	})

	w := respondWith(err)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "91", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}
