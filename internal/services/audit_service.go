package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/database"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

// ClientInfo identifies the caller of a request for audit and session records
type ClientInfo struct {
	IP        string
	UserAgent string
}

// AuditService appends security events to audit_logs
type AuditService struct {
	db     database.DB
	logger *logrus.Logger
	now    Clock
}

// NewAuditService creates a new audit service
func NewAuditService(db database.DB, logger *logrus.Logger) *AuditService {
	return &AuditService{db: db, logger: logger, now: time.Now}
}

// auditEntry is one audit_logs row. Actor is nil before authentication.
type auditEntry struct {
	action     string
	entityType string
	actor      *uuid.UUID
	entity     *uuid.UUID
	details    map[string]interface{}
}

func userEntry(action string, userID *uuid.UUID, details map[string]interface{}) auditEntry {
	return auditEntry{action: action, entityType: "user", actor: userID, entity: userID, details: details}
}

// LogRegister records a new account; method is "password" or "google"
func (s *AuditService) LogRegister(ctx context.Context, userID uuid.UUID, email, method string, client ClientInfo) error {
	return s.record(ctx, client, userEntry("register", &userID, map[string]interface{}{
		"email":  email,
		"method": method,
	}))
}

// LogLogin records a login attempt. userID is nil when the email is unknown.
func (s *AuditService) LogLogin(ctx context.Context, userID *uuid.UUID, email string, success bool, reason string, client ClientInfo) error {
	action := "login"
	details := map[string]interface{}{"email": email, "success": success}
	if !success {
		action = "login_failed"
		details["failure_reason"] = reason
	}
	return s.record(ctx, client, userEntry(action, userID, details))
}

func (s *AuditService) LogLogout(ctx context.Context, userID uuid.UUID, client ClientInfo) error {
	return s.record(ctx, client, userEntry("logout", &userID, nil))
}

func (s *AuditService) LogTokenRefresh(ctx context.Context, userID uuid.UUID, success bool, client ClientInfo) error {
	action := "token_refresh_success"
	if !success {
		action = "token_refresh_failed"
	}
	return s.record(ctx, client, auditEntry{
		action:     action,
		entityType: "token",
		actor:      &userID,
		details:    map[string]interface{}{"success": success},
	})
}

func (s *AuditService) LogEmailVerified(ctx context.Context, userID uuid.UUID, client ClientInfo) error {
	return s.record(ctx, client, userEntry("email_verified", &userID, nil))
}

// LogPasswordReset records either the request or the completed reset
func (s *AuditService) LogPasswordReset(ctx context.Context, userID uuid.UUID, completed bool, client ClientInfo) error {
	action := "password_reset_requested"
	if completed {
		action = "password_reset"
	}
	return s.record(ctx, client, userEntry(action, &userID, nil))
}

// LogRoleChange records an admin moving a user between roles
func (s *AuditService) LogRoleChange(ctx context.Context, adminID, userID uuid.UUID, from, to models.Role, client ClientInfo) error {
	return s.record(ctx, client, auditEntry{
		action:     "role_change",
		entityType: "user",
		actor:      &adminID,
		entity:     &userID,
		details:    map[string]interface{}{"from": from, "to": to},
	})
}

func (s *AuditService) LogRateLimitViolation(ctx context.Context, email, limitType string, retryAfter time.Duration, client ClientInfo) error {
	return s.record(ctx, client, auditEntry{
		action:     "rate_limit_violation",
		entityType: "rate_limit",
		details: map[string]interface{}{
			"email":       email,
			"limit_type":  limitType,
			"retry_after": retryAfter.String(),
		},
	})
}

// LogSuspiciousActivity records events such as refresh token reuse
func (s *AuditService) LogSuspiciousActivity(ctx context.Context, userID *uuid.UUID, activity string, client ClientInfo, details map[string]interface{}) error {
	merged := map[string]interface{}{"activity": activity}
	for k, v := range details {
		merged[k] = v
	}
	return s.record(ctx, client, auditEntry{
		action:     "suspicious_activity",
		entityType: "security",
		actor:      userID,
		details:    merged,
	})
}

// record writes one row. A failed write is logged and returned; callers
// ignore it so auditing never fails a request.
func (s *AuditService) record(ctx context.Context, client ClientInfo, e auditEntry) error {
	details := models.JSONB{}
	for k, v := range e.details {
		details[k] = v
	}
	if client.UserAgent != "" {
		details["device_info"] = utils.ParseUserAgent(client.UserAgent)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (user_id, action, entity_type, entity_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.actor, e.action, e.entityType, e.entity, client.IP, client.UserAgent, details, s.now(),
	)
	if err != nil {
		s.logger.WithError(err).WithField("action", e.action).Warn("Failed to write audit log")
		return fmt.Errorf("write audit log %s: %w", e.action, err)
	}
	return nil
}

// CleanupOldAuditLogs deletes rows older than the retention window
func (s *AuditService) CleanupOldAuditLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, s.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleanup audit logs: %w", err)
	}
	return res.RowsAffected()
}
