package services

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lautnusa/speedboat-backend/internal/config"
	"github.com/lautnusa/speedboat-backend/internal/database"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/internal/utils"
	"github.com/lautnusa/speedboat-backend/pkg/jwt"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var userTestColumns = []string{
	"id", "name", "email", "phone", "password_hash", "role", "google_id",
	"email_verified_at", "last_login_at", "created_at", "updated_at",
}

var authTokenColumns = []string{"id", "user_id", "token_hash", "purpose", "expires_at", "used_at", "created_at"}

func newAuthTestService(t *testing.T) (*AuthService, sqlmock.Sqlmock, *recordingMailer) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	db := sqlx.NewDb(sqlDB, "postgres")

	m := &recordingMailer{}
	svc := NewAuthService(
		database.NewUserRepository(db),
		database.NewAuthTokenRepository(db),
		database.NewRefreshTokenRepository(db),
		jwt.NewService("access-secret-for-tests", "refresh-secret-for-tests", time.Hour, 24*time.Hour),
		NewNotificationService(m, "https://tiket.example.com", time.UTC, testLogger()),
		nil,
		NewAuditService(db, testLogger()),
		config.AuthConfig{VerificationTokenTTL: 24 * time.Hour, PasswordResetTokenTTL: 30 * time.Minute},
		bcrypt.MinCost,
		testLogger(),
	)
	return svc, mock, m
}

// capturedArg records the value it is matched against
type capturedArg struct {
	value interface{}
}

func (c *capturedArg) Match(v driver.Value) bool {
	c.value = v
	return true
}

// bcryptOf matches a bcrypt hash of password
type bcryptOf string

func (p bcryptOf) Match(v driver.Value) bool {
	hash, ok := v.(string)
	return ok && bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
}

var mailedToken = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

func TestRegister(t *testing.T) {
	svc, mock, m := newAuthTestService(t)
	storedHash := &capturedArg{}

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "Siti Rahma", "siti@example.com", "081234567890", bcryptOf("rahasia-123"),
			"USER", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WithArgs(sqlmock.AnyArg(), "register", "user", sqlmock.AnyArg(), "10.0.0.8", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE auth_tokens\s+SET used_at = NOW\(\)`).
		WithArgs(sqlmock.AnyArg(), models.TokenPurposeEmailVerification).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO auth_tokens`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), storedHash, models.TokenPurposeEmailVerification, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	user, err := svc.Register(context.Background(), &models.RegisterRequest{
		Name:     "  Siti Rahma ",
		Email:    " Siti@Example.com",
		Password: "rahasia-123",
		Phone:    "+62 812-3456-7890",
	}, ClientInfo{IP: "10.0.0.8"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.False(t, user.IsEmailVerified())

	require.Len(t, m.sent, 1)
	assert.Equal(t, "siti@example.com", m.sent[0].To)
	match := mailedToken.FindStringSubmatch(m.sent[0].HTML)
	require.Len(t, match, 2)
	assert.Contains(t, m.sent[0].HTML, "https://tiket.example.com/verify-email?token=")
	assert.Equal(t, utils.HashToken(match[1]), storedHash.value, "only the hash of the mailed token is stored")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_EmailTaken(t *testing.T) {
	svc, mock, m := newAuthTestService(t)

	mock.ExpectExec(`INSERT INTO users`).WillReturnError(&pq.Error{Code: "23505"})

	_, err := svc.Register(context.Background(), &models.RegisterRequest{
		Name: "Siti", Email: "siti@example.com", Password: "rahasia-123",
	}, ClientInfo{})
	assert.ErrorIs(t, err, models.ErrEmailTaken)
	assert.Empty(t, m.sent)
}

func TestVerifyEmail(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	t.Run("Valid Token", func(t *testing.T) {
		svc, mock, _ := newAuthTestService(t)

		mock.ExpectQuery(`UPDATE auth_tokens`).
			WithArgs(utils.HashToken("verify-me"), models.TokenPurposeEmailVerification).
			WillReturnRows(sqlmock.NewRows(authTokenColumns).
				AddRow(uuid.New(), userID, utils.HashToken("verify-me"), "EMAIL_VERIFICATION", now.Add(time.Hour), now, now))
		mock.ExpectExec(`UPDATE users\s+SET email_verified_at`).
			WithArgs(userID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`FROM users WHERE id = \$1`).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows(userTestColumns).
				AddRow(userID, "Siti", "siti@example.com", nil, "hash", "USER", nil, now, nil, now, now))
		mock.ExpectExec(`INSERT INTO audit_logs`).
			WithArgs(sqlmock.AnyArg(), "email_verified", "user", sqlmock.AnyArg(), "", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		user, err := svc.VerifyEmail(ctx, " verify-me ", ClientInfo{})
		require.NoError(t, err)
		assert.Equal(t, userID, user.ID)
		assert.True(t, user.IsEmailVerified())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Used Or Expired Token", func(t *testing.T) {
		svc, mock, _ := newAuthTestService(t)

		mock.ExpectQuery(`UPDATE auth_tokens`).WillReturnRows(sqlmock.NewRows(authTokenColumns))

		_, err := svc.VerifyEmail(ctx, "verify-me", ClientInfo{})
		assert.ErrorIs(t, err, models.ErrInvalidToken)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	t.Run("Revokes Every Session", func(t *testing.T) {
		svc, mock, _ := newAuthTestService(t)

		mock.ExpectQuery(`UPDATE auth_tokens`).
			WithArgs(utils.HashToken("reset-token"), models.TokenPurposePasswordReset).
			WillReturnRows(sqlmock.NewRows(authTokenColumns).
				AddRow(uuid.New(), userID, utils.HashToken("reset-token"), "PASSWORD_RESET", now.Add(time.Hour), now, now))
		mock.ExpectExec(`UPDATE users\s+SET password_hash = \$2`).
			WithArgs(userID, bcryptOf("kata-sandi-baru")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE refresh_tokens\s+SET revoked_at = NOW\(\)\s+WHERE user_id = \$1 AND revoked_at IS NULL`).
			WithArgs(userID).
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectExec(`INSERT INTO audit_logs`).
			WithArgs(sqlmock.AnyArg(), "password_reset", "user", sqlmock.AnyArg(), "", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, svc.ResetPassword(ctx, "reset-token", "kata-sandi-baru", ClientInfo{}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Short Password", func(t *testing.T) {
		svc, mock, _ := newAuthTestService(t)

		err := svc.ResetPassword(ctx, "reset-token", "short", ClientInfo{})
		assert.ErrorIs(t, err, models.ErrValidation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Token Already Used", func(t *testing.T) {
		svc, mock, _ := newAuthTestService(t)

		mock.ExpectQuery(`UPDATE auth_tokens`).WillReturnRows(sqlmock.NewRows(authTokenColumns))

		err := svc.ResetPassword(ctx, "reset-token", "kata-sandi-baru", ClientInfo{})
		assert.ErrorIs(t, err, models.ErrInvalidToken)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
