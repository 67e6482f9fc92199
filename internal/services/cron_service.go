package services

import (
	"context"
	"fmt"
	"time"

	"github.com/lautnusa/speedboat-backend/internal/database"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	reconcileMinAge   = 2 * time.Minute
	reconcileBatch    = 100
	revokedTokenGrace = 7 * 24 * time.Hour
	auditRetention    = 180 * 24 * time.Hour
	jobTimeout        = 4 * time.Minute
)

// CronService manages scheduled background jobs
type CronService struct {
	cron          *cron.Cron
	paymentSvc    *PaymentService
	authTokens    *database.AuthTokenRepository
	refreshTokens *database.RefreshTokenRepository
	schedules     *database.ScheduleRepository
	audit         *AuditService
	logger        *logrus.Logger
}

// NewCronService creates a new CronService. Jobs run in loc.
func NewCronService(
	paymentSvc *PaymentService,
	authTokens *database.AuthTokenRepository,
	refreshTokens *database.RefreshTokenRepository,
	schedules *database.ScheduleRepository,
	audit *AuditService,
	loc *time.Location,
	logger *logrus.Logger,
) *CronService {
	if loc == nil {
		loc = time.Local
	}
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds(), cron.WithLocation(loc))

	return &CronService{
		cron:          c,
		paymentSvc:    paymentSvc,
		authTokens:    authTokens,
		refreshTokens: refreshTokens,
		schedules:     schedules,
		audit:         audit,
		logger:        logger,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	jobs := []struct {
		spec string
		name string
		run  func()
	}{
		// second minute hour day month weekday
		{"0 */5 * * * *", "reconcile pending payments (every 5 minutes)", s.reconcilePaymentsJob},
		{"0 */15 * * * *", "complete arrived schedules (every 15 minutes)", s.completeSchedulesJob},
		{"0 0 3 * * *", "clean up tokens and audit logs (daily at 03:00)", s.cleanupTokensJob},
	}

	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.spec, job.run); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job.name, err)
		}
		s.logger.WithField("job", job.name).Info("Scheduled cron job")
	}

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops all cron jobs and waits for running ones
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) reconcilePaymentsJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	startTime := time.Now()

	n, err := s.paymentSvc.ReconcilePending(ctx, reconcileMinAge, reconcileBatch)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Payment reconciliation failed")
		return
	}
	if n > 0 {
		s.logger.WithFields(logrus.Fields{
			"payments": n,
			"duration": time.Since(startTime),
		}).Info("[CRON] Reconciled pending payments")
	}
}

func (s *CronService) completeSchedulesJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.schedules.CompleteArrived(ctx, time.Now())
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Schedule completion failed")
		return
	}
	if n > 0 {
		s.logger.WithField("schedules", n).Info("[CRON] Completed arrived schedules")
	}
}

func (s *CronService) cleanupTokensJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	log := s.logger.WithField("job", "cleanup")

	authDeleted, err := s.authTokens.DeleteExpired(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Failed to clean up auth tokens")
	}

	refreshDeleted, err := s.refreshTokens.Cleanup(ctx, time.Now().Add(-revokedTokenGrace))
	if err != nil {
		log.WithError(err).Error("[CRON] Failed to clean up refresh tokens")
	}

	var auditDeleted int64
	if s.audit != nil {
		if auditDeleted, err = s.audit.CleanupOldAuditLogs(ctx, auditRetention); err != nil {
			log.WithError(err).Error("[CRON] Failed to clean up audit logs")
		}
	}

	log.WithFields(logrus.Fields{
		"auth_tokens":    authDeleted,
		"refresh_tokens": refreshDeleted,
		"audit_logs":     auditDeleted,
	}).Info("[CRON] Cleanup finished")
}

// RunNow runs every job once, in order
func (s *CronService) RunNow() {
	s.reconcilePaymentsJob()
	s.completeSchedulesJob()
	s.cleanupTokensJob()
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
