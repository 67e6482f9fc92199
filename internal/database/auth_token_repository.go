package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/models"
)

// AuthTokenRepository stores single-use email verification and password reset tokens
type AuthTokenRepository struct {
	db DB
}

// NewAuthTokenRepository creates a new auth token repository
func NewAuthTokenRepository(db DB) *AuthTokenRepository {
	return &AuthTokenRepository{db: db}
}

// Create stores a token and invalidates older unused tokens of the same purpose
func (r *AuthTokenRepository) Create(ctx context.Context, token *models.AuthToken) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	token.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, `
		UPDATE auth_tokens
		SET used_at = NOW()
		WHERE user_id = $1 AND purpose = $2 AND used_at IS NULL
	`, token.UserID, token.Purpose)
	if err != nil {
		return fmt.Errorf("failed to invalidate previous tokens: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO auth_tokens (id, user_id, token_hash, purpose, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, token.ID, token.UserID, token.TokenHash, token.Purpose, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store auth token: %w", err)
	}

	return nil
}

// Consume marks a valid token used and returns it. The update is guarded so a
// token can be consumed once. Returns models.ErrInvalidToken otherwise.
func (r *AuthTokenRepository) Consume(ctx context.Context, tokenHash string, purpose models.AuthTokenPurpose) (*models.AuthToken, error) {
	var token models.AuthToken

	query := `
		UPDATE auth_tokens
		SET used_at = NOW()
		WHERE token_hash = $1
		  AND purpose = $2
		  AND used_at IS NULL
		  AND expires_at > NOW()
		RETURNING id, user_id, token_hash, purpose, expires_at, used_at, created_at
	`

	err := r.db.GetContext(ctx, &token, query, tokenHash, purpose)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to consume auth token: %w", err)
	}

	return &token, nil
}

// DeleteExpired removes expired and used tokens
func (r *AuthTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM auth_tokens
		WHERE expires_at < NOW() OR used_at IS NOT NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired auth tokens: %w", err)
	}
	return result.RowsAffected()
}
