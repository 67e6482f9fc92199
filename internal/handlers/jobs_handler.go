package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lautnusa/speedboat-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// JobsHandler exposes the background jobs to admins
type JobsHandler struct {
	cron       *services.CronService
	expiration *services.BookingExpirationService
	logger     *logrus.Logger
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(cron *services.CronService, expiration *services.BookingExpirationService, logger *logrus.Logger) *JobsHandler {
	return &JobsHandler{cron: cron, expiration: expiration, logger: logger}
}

// Status handles GET /api/v1/admin/jobs
func (h *JobsHandler) Status(c *gin.Context) {
	respondOK(c, http.StatusOK, h.cron.GetJobStatus())
}

// RunNow handles POST /api/v1/admin/jobs/run. Runs the expiry sweep and
// every cron job once, synchronously.
func (h *JobsHandler) RunNow(c *gin.Context) {
	expired := h.expiration.RunOnce(c.Request.Context())
	h.cron.RunNow()

	h.logger.WithField("expired_bookings", expired).Info("Background jobs run on demand")
	respondOK(c, http.StatusOK, gin.H{
		"expired_bookings": expired,
		"message":          "Jobs finished, see server logs for details",
	})
}
