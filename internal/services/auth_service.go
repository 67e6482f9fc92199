package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/config"
	"github.com/lautnusa/speedboat-backend/internal/database"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/internal/utils"
	"github.com/lautnusa/speedboat-backend/pkg/jwt"
	"github.com/lautnusa/speedboat-backend/pkg/validator"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// AuthService handles registration, sessions and account recovery
type AuthService struct {
	users         *database.UserRepository
	authTokens    *database.AuthTokenRepository
	refreshTokens *database.RefreshTokenRepository
	jwtService    *jwt.Service
	notifier      *NotificationService
	rateLimiter   *RateLimitService
	audit         *AuditService
	cfg           config.AuthConfig
	bcryptCost    int
	logger        *logrus.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	users *database.UserRepository,
	authTokens *database.AuthTokenRepository,
	refreshTokens *database.RefreshTokenRepository,
	jwtService *jwt.Service,
	notifier *NotificationService,
	rateLimiter *RateLimitService,
	audit *AuditService,
	cfg config.AuthConfig,
	bcryptCost int,
	logger *logrus.Logger,
) *AuthService {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		users:         users,
		authTokens:    authTokens,
		refreshTokens: refreshTokens,
		jwtService:    jwtService,
		notifier:      notifier,
		rateLimiter:   rateLimiter,
		audit:         audit,
		cfg:           cfg,
		bcryptCost:    bcryptCost,
		logger:        logger,
	}
}

// ============================================================================
// REGISTRATION & VERIFICATION
// ============================================================================

// Register creates an unverified USER and mails a verification link
func (s *AuthService) Register(ctx context.Context, req *models.RegisterRequest, client ClientInfo) (*models.User, error) {
	email := normalizeEmail(req.Email)
	if err := s.limit(ctx, RateLimitRegister, email, client); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		Phone:        models.NewNullString(localPhone(req.Phone)),
		PasswordHash: models.NewNullString(string(hash)),
		Role:         models.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "email": email}).Info("User registered")
	s.auditLog(func() error { return s.audit.LogRegister(ctx, user.ID, email, "password", client) })

	if err := s.sendVerification(ctx, user); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("Verification email not sent")
	}
	return user, nil
}

// VerifyEmail consumes a verification token and marks the user verified
func (s *AuthService) VerifyEmail(ctx context.Context, token string, client ClientInfo) (*models.User, error) {
	t, err := s.authTokens.Consume(ctx, utils.HashToken(strings.TrimSpace(token)), models.TokenPurposeEmailVerification)
	if err != nil {
		return nil, err
	}

	if err := s.users.MarkEmailVerified(ctx, t.UserID); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, t.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.ErrUserNotFound
	}

	s.auditLog(func() error { return s.audit.LogEmailVerified(ctx, user.ID, client) })
	return user, nil
}

// ResendVerification mails a fresh link. It answers nil for unknown or
// verified addresses so callers cannot learn which emails exist.
func (s *AuthService) ResendVerification(ctx context.Context, email string, client ClientInfo) error {
	email = normalizeEmail(email)
	if err := s.limit(ctx, RateLimitEmail, email, client); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil || user.IsEmailVerified() {
		return nil
	}

	if err := s.sendVerification(ctx, user); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("Verification email not sent")
	}
	return nil
}

func (s *AuthService) sendVerification(ctx context.Context, user *models.User) error {
	token, err := s.newAuthToken(ctx, user.ID, models.TokenPurposeEmailVerification, s.cfg.VerificationTokenTTL)
	if err != nil {
		return err
	}
	return s.notifier.SendVerification(ctx, user, token, s.cfg.VerificationTokenTTL)
}

func (s *AuthService) newAuthToken(ctx context.Context, userID uuid.UUID, purpose models.AuthTokenPurpose, ttl time.Duration) (string, error) {
	token, err := utils.GenerateOpaqueToken()
	if err != nil {
		return "", err
	}
	err = s.authTokens.Create(ctx, &models.AuthToken{
		UserID:    userID,
		TokenHash: utils.HashToken(token),
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(ttl),
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// ============================================================================
// SESSIONS
// ============================================================================

// Login checks credentials and opens a session
func (s *AuthService) Login(ctx context.Context, req *models.LoginRequest, client ClientInfo) (*models.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if err := s.limit(ctx, RateLimitLogin, email, client); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.HasPassword() {
		s.auditLog(func() error { return s.audit.LogLogin(ctx, nil, email, false, "unknown_user", client) })
		return nil, models.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash.String), []byte(req.Password)); err != nil {
		s.auditLog(func() error { return s.audit.LogLogin(ctx, &user.ID, email, false, "wrong_password", client) })
		return nil, models.ErrInvalidCredentials
	}

	if s.cfg.RequireEmailVerification && !user.IsEmailVerified() {
		s.auditLog(func() error { return s.audit.LogLogin(ctx, &user.ID, email, false, "email_not_verified", client) })
		return nil, models.ErrEmailNotVerified
	}

	resp, err := s.IssueSession(ctx, user, client)
	if err != nil {
		return nil, err
	}
	s.auditLog(func() error { return s.audit.LogLogin(ctx, &user.ID, email, true, "", client) })
	return resp, nil
}

// IssueSession creates an access token and a stored refresh token for user
func (s *AuthService) IssueSession(ctx context.Context, user *models.User, client ClientInfo) (*models.AuthResponse, error) {
	accessToken, err := s.jwtService.GenerateAccessToken(user.ID, user.Email, string(user.Role), user.IsEmailVerified())
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := s.jwtService.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	device := utils.ParseUserAgent(client.UserAgent)
	stored := &models.RefreshToken{
		UserID:     user.ID,
		TokenHash:  utils.HashToken(refreshToken),
		DeviceType: optional(device.DeviceType),
		Platform:   optional(device.Platform),
		Browser:    optional(device.Browser),
		IPAddress:  optional(client.IP),
		UserAgent:  optional(client.UserAgent),
		ExpiresAt:  time.Now().Add(s.jwtService.RefreshTokenExpiry()),
	}
	if err := s.refreshTokens.Store(ctx, stored); err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("Failed to update last login")
	}

	return &models.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtService.AccessTokenExpiry().Seconds()),
		User:         user,
	}, nil
}

// Refresh rotates a refresh token. Reusing a rotated token revokes every
// session of the user.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (*models.AuthResponse, error) {
	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, models.ErrInvalidToken
	}

	hash := utils.HashToken(refreshToken)
	stored, err := s.refreshTokens.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.UserID != claims.UserID || time.Now().After(stored.ExpiresAt) {
		s.auditLog(func() error { return s.audit.LogTokenRefresh(ctx, claims.UserID, false, client) })
		return nil, models.ErrInvalidToken
	}

	rotated, err := s.refreshTokens.Revoke(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !rotated {
		revoked, _ := s.refreshTokens.RevokeAllForUser(ctx, stored.UserID)
		s.logger.WithFields(logrus.Fields{
			"user_id":          stored.UserID,
			"ip":               client.IP,
			"sessions_revoked": revoked,
		}).Warn("Revoked refresh token reused, all sessions closed")
		s.auditLog(func() error {
			return s.audit.LogSuspiciousActivity(ctx, &stored.UserID, "refresh_token_reuse", client, map[string]interface{}{
				"sessions_revoked": revoked,
			})
		})
		return nil, models.ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.ErrInvalidToken
	}

	resp, err := s.IssueSession(ctx, user, client)
	if err != nil {
		return nil, err
	}
	s.auditLog(func() error { return s.audit.LogTokenRefresh(ctx, user.ID, true, client) })
	return resp, nil
}

// Logout revokes the refresh token when one is presented
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID, refreshToken string, client ClientInfo) error {
	if refreshToken != "" {
		if _, err := s.refreshTokens.Revoke(ctx, utils.HashToken(refreshToken)); err != nil {
			return err
		}
	}
	if userID != uuid.Nil {
		s.auditLog(func() error { return s.audit.LogLogout(ctx, userID, client) })
	}
	return nil
}

// Me returns the current user
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.ErrUserNotFound
	}
	return user, nil
}

// ============================================================================
// PASSWORD RESET
// ============================================================================

// ForgotPassword mails a reset link when the address belongs to a user.
// Unknown addresses get the same answer.
func (s *AuthService) ForgotPassword(ctx context.Context, email string, client ClientInfo) error {
	email = normalizeEmail(email)
	if err := s.limit(ctx, RateLimitEmail, email, client); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	token, err := s.newAuthToken(ctx, user.ID, models.TokenPurposePasswordReset, s.cfg.PasswordResetTokenTTL)
	if err != nil {
		return err
	}
	if err := s.notifier.SendPasswordReset(ctx, user, token, s.cfg.PasswordResetTokenTTL); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("Password reset email not sent")
	}
	s.auditLog(func() error { return s.audit.LogPasswordReset(ctx, user.ID, false, client) })
	return nil
}

// ResetPassword sets a new password and closes every session
func (s *AuthService) ResetPassword(ctx context.Context, token, password string, client ClientInfo) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", models.ErrValidation)
	}

	t, err := s.authTokens.Consume(ctx, utils.HashToken(strings.TrimSpace(token)), models.TokenPurposePasswordReset)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, t.UserID, string(hash)); err != nil {
		return err
	}

	revoked, err := s.refreshTokens.RevokeAllForUser(ctx, t.UserID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", t.UserID).Error("Failed to revoke sessions after password reset")
	}
	s.logger.WithFields(logrus.Fields{
		"user_id":          t.UserID,
		"sessions_revoked": revoked,
	}).Info("Password reset")
	s.auditLog(func() error { return s.audit.LogPasswordReset(ctx, t.UserID, true, client) })
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *AuthService) limit(ctx context.Context, action RateLimitAction, email string, client ClientInfo) error {
	if s.rateLimiter == nil {
		return nil
	}
	err := s.rateLimiter.Check(ctx, action, email, client.IP)
	var rl *RateLimitError
	if errors.As(err, &rl) {
		s.logger.WithFields(logrus.Fields{
			"action": action,
			"email":  email,
			"ip":     client.IP,
			"type":   rl.Type,
		}).Warn("Rate limit exceeded")
		s.auditLog(func() error {
			return s.audit.LogRateLimitViolation(ctx, email, string(action)+":"+rl.Type, rl.RetryAfter, client)
		})
	}
	return err
}

// auditLog runs an audit write when auditing is configured. Failures are
// logged by the audit service and never fail the request.
func (s *AuthService) auditLog(write func() error) {
	if s.audit == nil {
		return
	}
	_ = write()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// localPhone stores phones in the 08 form; binding has already rejected
// numbers that do not normalize
func localPhone(phone string) string {
	if local, err := validator.NormalizePhone(phone); err == nil {
		return local
	}
	return strings.TrimSpace(phone)
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
