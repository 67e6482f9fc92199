package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the single role a user holds
type Role string

const (
	RoleUser     Role = "USER"
	RoleOperator Role = "OPERATOR"
	RoleAdmin    Role = "ADMIN"
)

// IsValid reports whether r is a known role
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleOperator, RoleAdmin:
		return true
	}
	return false
}

// User represents a user in the system
type User struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	Email           string     `json:"email" db:"email"`
	Phone           NullString `json:"phone,omitempty" db:"phone"`
	PasswordHash    NullString `json:"-" db:"password_hash"`
	Role            Role       `json:"role" db:"role"`
	GoogleID        NullString `json:"-" db:"google_id"`
	EmailVerifiedAt NullTime   `json:"email_verified_at,omitempty" db:"email_verified_at"`
	LastLoginAt     NullTime   `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// IsEmailVerified reports whether the user confirmed their email address
func (u *User) IsEmailVerified() bool {
	return u.EmailVerifiedAt.Valid
}

// HasPassword is false for accounts created through OAuth only
func (u *User) HasPassword() bool {
	return u.PasswordHash.Valid && u.PasswordHash.String != ""
}

// AuthTokenPurpose distinguishes single-use email tokens
type AuthTokenPurpose string

const (
	TokenPurposeEmailVerification AuthTokenPurpose = "EMAIL_VERIFICATION"
	TokenPurposePasswordReset     AuthTokenPurpose = "PASSWORD_RESET"
)

// AuthToken is a single-use token mailed to the user. Only the hash is stored.
type AuthToken struct {
	ID        uuid.UUID        `db:"id"`
	UserID    uuid.UUID        `db:"user_id"`
	TokenHash string           `db:"token_hash"`
	Purpose   AuthTokenPurpose `db:"purpose"`
	ExpiresAt time.Time        `db:"expires_at"`
	UsedAt    *time.Time       `db:"used_at"`
	CreatedAt time.Time        `db:"created_at"`
}

// RefreshToken represents a stored refresh token with the device that holds it
type RefreshToken struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	TokenHash  string     `json:"-" db:"token_hash"`
	DeviceType *string    `json:"device_type,omitempty" db:"device_type"`
	Platform   *string    `json:"platform,omitempty" db:"platform"`
	Browser    *string    `json:"browser,omitempty" db:"browser"`
	IPAddress  *string    `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  *string    `json:"user_agent,omitempty" db:"user_agent"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// IsActive reports whether the refresh token can still be exchanged
func (t *RefreshToken) IsActive(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// ============================================================================
// AUTH REQUEST / RESPONSE DTOs
// ============================================================================

// RegisterRequest is the payload for POST /auth/register
type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Phone    string `json:"phone" binding:"omitempty,id_phone"`
}

// LoginRequest is the payload for POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshTokenRequest carries a refresh token when it is not sent as a cookie
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// EmailRequest is the payload for resend-verification and forgot-password
type EmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// TokenRequest is the payload for POST /auth/verify-email
type TokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// ResetPasswordRequest is the payload for POST /auth/reset-password
type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// AuthResponse is returned after login, refresh and OAuth
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
	User         *User  `json:"user"`
}
