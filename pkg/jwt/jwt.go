// Package jwt issues and checks the signed session tokens of the booking API.
// Access and refresh tokens use separate HMAC secrets and carry a token_type
// claim so one can never stand in for the other.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "speedboat-api"

var (
	// ErrExpired means the token was well formed but is past its exp claim
	ErrExpired = errors.New("token expired")
	// ErrInvalid covers every other rejection
	ErrInvalid = errors.New("invalid token")
)

// TokenType tells access and refresh tokens apart
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// Claims is the payload of both token kinds. Role and EmailVerified are only
// set on access tokens.
type Claims struct {
	UserID        uuid.UUID `json:"user_id"`
	Email         string    `json:"email"`
	Role          string    `json:"role,omitempty"`
	EmailVerified bool      `json:"email_verified,omitempty"`
	TokenType     TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

type keyring struct {
	secret []byte
	ttl    time.Duration
}

// Service signs and validates tokens
type Service struct {
	keys map[TokenType]keyring
	now  func() time.Time
}

// NewService creates a token service
func NewService(accessSecret, refreshSecret string, accessExpiry, refreshExpiry time.Duration) *Service {
	return &Service{
		keys: map[TokenType]keyring{
			AccessToken:  {secret: []byte(accessSecret), ttl: accessExpiry},
			RefreshToken: {secret: []byte(refreshSecret), ttl: refreshExpiry},
		},
		now: time.Now,
	}
}

// AccessTokenExpiry is the lifetime of access tokens
func (s *Service) AccessTokenExpiry() time.Duration { return s.keys[AccessToken].ttl }

// RefreshTokenExpiry is the lifetime of refresh tokens
func (s *Service) RefreshTokenExpiry() time.Duration { return s.keys[RefreshToken].ttl }

// GenerateAccessToken signs a short-lived token carrying the caller's role
func (s *Service) GenerateAccessToken(userID uuid.UUID, email, role string, emailVerified bool) (string, error) {
	return s.sign(Claims{
		UserID:        userID,
		Email:         email,
		Role:          role,
		EmailVerified: emailVerified,
		TokenType:     AccessToken,
	})
}

// GenerateRefreshToken signs a long-lived token. The jti keeps two tokens
// minted in the same second distinct, which the rotation store relies on.
func (s *Service) GenerateRefreshToken(userID uuid.UUID, email string) (string, error) {
	claims := Claims{UserID: userID, Email: email, TokenType: RefreshToken}
	claims.ID = uuid.NewString()
	return s.sign(claims)
}

func (s *Service) sign(claims Claims) (string, error) {
	key := s.keys[claims.TokenType]
	now := s.now()
	claims.Issuer = issuer
	claims.Subject = claims.UserID.String()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(key.ttl))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.TokenType, err)
	}
	return signed, nil
}

// ValidateAccessToken checks an access token
func (s *Service) ValidateAccessToken(token string) (*Claims, error) {
	return s.parse(token, AccessToken)
}

// ValidateRefreshToken checks a refresh token
func (s *Service) ValidateRefreshToken(token string) (*Claims, error) {
	return s.parse(token, RefreshToken)
}

// parse verifies signature, issuer, time claims and token type. Errors wrap
// ErrExpired or ErrInvalid.
func (s *Service) parse(token string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.keys[want].secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	case claims.TokenType != want:
		return nil, fmt.Errorf("%w: invalid token type: expected %s, got %s", ErrInvalid, want, claims.TokenType)
	}
	return claims, nil
}
