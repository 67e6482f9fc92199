package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/internal/services"
	"github.com/sirupsen/logrus"
)

const searchDateLayout = "2006-01-02"

// CatalogHandler serves the public port and schedule endpoints
type CatalogHandler struct {
	catalog *services.CatalogService
	loc     *time.Location
	logger  *logrus.Logger
}

// NewCatalogHandler creates a new catalog handler. Search dates are read in loc.
func NewCatalogHandler(catalog *services.CatalogService, loc *time.Location, logger *logrus.Logger) *CatalogHandler {
	if loc == nil {
		loc = time.Local
	}
	return &CatalogHandler{catalog: catalog, loc: loc, logger: logger}
}

// ListPorts handles GET /api/v1/ports
func (h *CatalogHandler) ListPorts(c *gin.Context) {
	ports, err := h.catalog.ListPorts(c.Request.Context(), true)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, ports)
}

// SearchSchedules handles GET /api/v1/schedules/search?origin=&destination=&date=&passengers=
func (h *CatalogHandler) SearchSchedules(c *gin.Context) {
	date, err := time.ParseInLocation(searchDateLayout, c.Query("date"), h.loc)
	if err != nil {
		respondError(c, http.StatusBadRequest, "date must be YYYY-MM-DD", "VALIDATION_ERROR")
		return
	}
	passengers, err := queryInt(c, "passengers", 1)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	results, err := h.catalog.SearchSchedules(c.Request.Context(), models.ScheduleSearchParams{
		Origin:      c.Query("origin"),
		Destination: c.Query("destination"),
		Date:        date,
		Passengers:  passengers,
		Location:    h.loc,
	})
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, results)
}

// GetSchedule handles GET /api/v1/schedules/:id
func (h *CatalogHandler) GetSchedule(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	schedule, err := h.catalog.GetSchedule(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, schedule)
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name), "VALIDATION_ERROR")
		return uuid.Nil, false
	}
	return id, true
}
