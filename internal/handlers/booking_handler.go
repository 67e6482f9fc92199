package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// BookingHandler handles passenger bookings and their tickets
type BookingHandler struct {
	bookings *services.BookingService
	logger   *logrus.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings *services.BookingService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, logger: logger}
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	detail, err := h.bookings.Create(c.Request.Context(), actor, &req)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusCreated, detail)
}

// ListBookings handles GET /api/v1/bookings?limit=&offset=
func (h *BookingHandler) ListBookings(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	bookings, err := h.bookings.ListMine(c.Request.Context(), actor, limit, offset)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, bookings)
}

// GetBooking handles GET /api/v1/bookings/:code
func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	detail, err := h.bookings.Get(c.Request.Context(), actor, c.Param("code"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, detail)
}

// CancelBooking handles POST /api/v1/bookings/:code/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	booking, err := h.bookings.Cancel(c.Request.Context(), actor, c.Param("code"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, booking)
}

// ListTickets handles GET /api/v1/bookings/:code/tickets
func (h *BookingHandler) ListTickets(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	tickets, err := h.bookings.Tickets(c.Request.Context(), actor, c.Param("code"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, tickets)
}

// DownloadETicket handles GET /api/v1/bookings/:code/eticket.pdf
func (h *BookingHandler) DownloadETicket(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	filename, pdf, err := h.bookings.ETicketPDF(c.Request.Context(), actor, c.Param("code"))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// TicketQR handles GET /api/v1/tickets/:code/qr.png?size=
func (h *BookingHandler) TicketQR(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	size, err := queryInt(c, "size", 0)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	png, err := h.bookings.TicketQR(c.Request.Context(), actor, c.Param("code"), size)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}
