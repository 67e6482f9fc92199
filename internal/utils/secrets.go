package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// GenerateSecret generates a cryptographically secure random secret
func GenerateSecret(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// AppSecrets are the signing keys the server needs at startup
type AppSecrets struct {
	JWTAccess  string
	JWTRefresh string
	TicketQR   string
}

// GenerateAppSecrets generates three independent 256-bit secrets
func GenerateAppSecrets() (*AppSecrets, error) {
	var s AppSecrets
	var err error

	if s.JWTAccess, err = GenerateSecret(32); err != nil {
		return nil, fmt.Errorf("failed to generate access secret: %w", err)
	}
	if s.JWTRefresh, err = GenerateSecret(32); err != nil {
		return nil, fmt.Errorf("failed to generate refresh secret: %w", err)
	}
	if s.TicketQR, err = GenerateSecret(32); err != nil {
		return nil, fmt.Errorf("failed to generate ticket QR secret: %w", err)
	}
	return &s, nil
}

// GenerateOpaqueToken returns a URL-safe random token for emails and OAuth state
func GenerateOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken returns the hex sha256 of a token. Only hashes are stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
