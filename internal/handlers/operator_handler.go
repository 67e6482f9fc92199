package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// OperatorHandler serves the boarding gate: manifests, ticket validation and check-in
type OperatorHandler struct {
	operator *services.OperatorService
	logger   *logrus.Logger
}

// NewOperatorHandler creates a new operator handler
func NewOperatorHandler(operator *services.OperatorService, logger *logrus.Logger) *OperatorHandler {
	return &OperatorHandler{operator: operator, logger: logger}
}

// GetManifest handles GET /api/v1/operator/schedules/:id/manifest
func (h *OperatorHandler) GetManifest(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	manifest, err := h.operator.GetManifest(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, manifest)
}

// DownloadManifest handles GET /api/v1/operator/schedules/:id/manifest.pdf
func (h *OperatorHandler) DownloadManifest(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	pdf, err := h.operator.ManifestPDF(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "manifest-"+id.String()+".pdf"))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// ValidateTicket handles POST /api/v1/operator/tickets/validate.
// Refused tickets still answer 200 with valid=false and a reason.
func (h *OperatorHandler) ValidateTicket(c *gin.Context) {
	var req models.TicketScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	v, err := h.operator.ValidateTicket(c.Request.Context(), req.Code, req.ScheduleID)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, v)
}

// CheckIn handles POST /api/v1/operator/tickets/check-in
func (h *OperatorHandler) CheckIn(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req models.TicketScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	v, err := h.operator.CheckIn(c.Request.Context(), actor, req.Code, req.ScheduleID)
	if err != nil {
		m, known := lookupError(err)
		if v == nil || !known {
			respondServiceError(c, h.logger, err)
			return
		}
		// the gate shows who the ticket belongs to even when refused
		c.AbortWithStatusJSON(m.status, gin.H{
			"success": false,
			"error":   m.message,
			"code":    m.code,
			"data":    v,
		})
		return
	}
	respondOK(c, http.StatusOK, v)
}
