package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// AdminHandler handles catalog management and user administration
type AdminHandler struct {
	catalog *services.CatalogService
	logger  *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(catalog *services.CatalogService, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{catalog: catalog, logger: logger}
}

// ============================================================================
// PORTS
// ============================================================================

// CreatePort handles POST /api/v1/admin/ports
func (h *AdminHandler) CreatePort(c *gin.Context) {
	var req models.CreatePortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	port, err := h.catalog.CreatePort(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusCreated, port)
}

// ListPorts handles GET /api/v1/admin/ports (inactive ports included)
func (h *AdminHandler) ListPorts(c *gin.Context) {
	ports, err := h.catalog.ListPorts(c.Request.Context(), false)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, ports)
}

// GetPort handles GET /api/v1/admin/ports/:id
func (h *AdminHandler) GetPort(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	port, err := h.catalog.GetPort(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, port)
}

// UpdatePort handles PUT /api/v1/admin/ports/:id
func (h *AdminHandler) UpdatePort(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req models.UpdatePortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	port, err := h.catalog.UpdatePort(c.Request.Context(), id, &req)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, port)
}

// DeletePort handles DELETE /api/v1/admin/ports/:id
func (h *AdminHandler) DeletePort(c *gin.Context) {
	h.delete(c, h.catalog.DeletePort)
}

// ============================================================================
// SHIPS
// ============================================================================

// CreateShip handles POST /api/v1/admin/ships
func (h *AdminHandler) CreateShip(c *gin.Context) {
	var req models.CreateShipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	ship, err := h.catalog.CreateShip(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusCreated, ship)
}

// ListShips handles GET /api/v1/admin/ships
func (h *AdminHandler) ListShips(c *gin.Context) {
	ships, err := h.catalog.ListShips(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, ships)
}

// GetShip handles GET /api/v1/admin/ships/:id
func (h *AdminHandler) GetShip(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	ship, err := h.catalog.GetShip(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, ship)
}

// UpdateShip handles PUT /api/v1/admin/ships/:id
func (h *AdminHandler) UpdateShip(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req models.UpdateShipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	ship, err := h.catalog.UpdateShip(c.Request.Context(), id, &req)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, ship)
}

// DeleteShip handles DELETE /api/v1/admin/ships/:id
func (h *AdminHandler) DeleteShip(c *gin.Context) {
	h.delete(c, h.catalog.DeleteShip)
}

// ============================================================================
// ROUTES
// ============================================================================

// CreateRoute handles POST /api/v1/admin/routes
func (h *AdminHandler) CreateRoute(c *gin.Context) {
	var req models.CreateRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	route, err := h.catalog.CreateRoute(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusCreated, route)
}

// ListRoutes handles GET /api/v1/admin/routes
func (h *AdminHandler) ListRoutes(c *gin.Context) {
	routes, err := h.catalog.ListRoutes(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, routes)
}

// GetRoute handles GET /api/v1/admin/routes/:id
func (h *AdminHandler) GetRoute(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	route, err := h.catalog.GetRoute(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, route)
}

// UpdateRoute handles PUT /api/v1/admin/routes/:id
func (h *AdminHandler) UpdateRoute(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req models.UpdateRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	route, err := h.catalog.UpdateRoute(c.Request.Context(), id, &req)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, route)
}

// DeleteRoute handles DELETE /api/v1/admin/routes/:id
func (h *AdminHandler) DeleteRoute(c *gin.Context) {
	h.delete(c, h.catalog.DeleteRoute)
}

// ============================================================================
// SCHEDULES
// ============================================================================

// CreateSchedule handles POST /api/v1/admin/schedules
func (h *AdminHandler) CreateSchedule(c *gin.Context) {
	var req models.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	schedule, err := h.catalog.CreateSchedule(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusCreated, schedule)
}

// ListSchedules handles GET /api/v1/admin/schedules?route_id=&ship_id=&status=&from=&to=&limit=&offset=
func (h *AdminHandler) ListSchedules(c *gin.Context) {
	f, ok := h.scheduleFilter(c)
	if !ok {
		return
	}
	schedules, err := h.catalog.ListSchedules(c.Request.Context(), f)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, schedules)
}

func (h *AdminHandler) scheduleFilter(c *gin.Context) (models.ScheduleFilter, bool) {
	var f models.ScheduleFilter
	for name, dst := range map[string]**uuid.UUID{"route_id": &f.RouteID, "ship_id": &f.ShipID} {
		if v := c.Query(name); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				respondError(c, http.StatusBadRequest, "Invalid "+name, "VALIDATION_ERROR")
				return f, false
			}
			*dst = &id
		}
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if v := c.Query(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				respondError(c, http.StatusBadRequest, name+" must be an RFC 3339 timestamp", "VALIDATION_ERROR")
				return f, false
			}
			*dst = &t
		}
	}
	if v := c.Query("status"); v != "" {
		status := models.ScheduleStatus(strings.ToUpper(v))
		f.Status = &status
	}

	var err error
	if f.Limit, err = queryInt(c, "limit", 50); err != nil {
		respondServiceError(c, h.logger, err)
		return f, false
	}
	if f.Offset, err = queryInt(c, "offset", 0); err != nil {
		respondServiceError(c, h.logger, err)
		return f, false
	}
	return f, true
}

// GetSchedule handles GET /api/v1/admin/schedules/:id
func (h *AdminHandler) GetSchedule(c *gin.Context) {
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

// UpdateSchedule handles PUT /api/v1/admin/schedules/:id
func (h *AdminHandler) UpdateSchedule(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req models.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	schedule, err := h.catalog.UpdateSchedule(c.Request.Context(), id, &req)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, schedule)
}

// CancelSchedule handles POST /api/v1/admin/schedules/:id/cancel
func (h *AdminHandler) CancelSchedule(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.CancelSchedule(c.Request.Context(), id); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, MessageResponse{Message: "Schedule cancelled"})
}

// DeleteSchedule handles DELETE /api/v1/admin/schedules/:id
func (h *AdminHandler) DeleteSchedule(c *gin.Context) {
	h.delete(c, h.catalog.DeleteSchedule)
}

func (h *AdminHandler) delete(c *gin.Context, del func(ctx context.Context, id uuid.UUID) error) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := del(c.Request.Context(), id); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ============================================================================
// USERS
// ============================================================================

// ListUsers handles GET /api/v1/admin/users?limit=&offset=
func (h *AdminHandler) ListUsers(c *gin.Context) {
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

	users, total, err := h.catalog.ListUsers(c.Request.Context(), limit, offset)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"users":  users,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// ChangeUserRole handles PUT /api/v1/admin/users/:id/role
func (h *AdminHandler) ChangeUserRole(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req models.UpdateUserRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := h.catalog.ChangeUserRole(c.Request.Context(), actor, id, req.Role, clientInfo(c))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, user)
}
