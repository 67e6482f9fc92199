package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
)

// AccessTokenCookie carries the access token for browser clients
const AccessTokenCookie = "access_token"

const userContextKey = "user_context"

// UserContext is the authenticated caller
type UserContext struct {
	UserID        uuid.UUID
	Email         string
	Role          models.Role
	EmailVerified bool
}

// Authorizer answers role permission questions
type Authorizer interface {
	Allow(ctx context.Context, role, permission string) (bool, error)
}

func abort(c *gin.Context, status int, message, code string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   message,
		"code":    code,
	})
}

// AuthMiddleware validates the access token from the Authorization header or
// the access_token cookie
func AuthMiddleware(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
				abort(c, http.StatusUnauthorized, "Authorization header format must be Bearer {token}", "INVALID_AUTH_FORMAT")
				return
			}
			token = strings.TrimSpace(parts[1])
		} else if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie != "" {
			token = cookie
		}

		if token == "" {
			abort(c, http.StatusUnauthorized, "Authorization header is required", "MISSING_AUTH_HEADER")
			return
		}

		claims, err := jwtService.ValidateAccessToken(token)
		if err != nil {
			if errors.Is(err, jwt.ErrExpired) {
				abort(c, http.StatusUnauthorized, "Access token has expired", "TOKEN_EXPIRED")
				return
			}
			abort(c, http.StatusUnauthorized, "Invalid access token", "INVALID_TOKEN")
			return
		}

		c.Set(userContextKey, &UserContext{
			UserID:        claims.UserID,
			Email:         claims.Email,
			Role:          models.Role(claims.Role),
			EmailVerified: claims.EmailVerified,
		})
		c.Next()
	}
}

// GetUserContext returns the caller set by AuthMiddleware
func GetUserContext(c *gin.Context) (*UserContext, bool) {
	v, exists := c.Get(userContextKey)
	if !exists {
		return nil, false
	}
	userCtx, ok := v.(*UserContext)
	return userCtx, ok
}

// MustGetUserContext panics when AuthMiddleware did not run
func MustGetUserContext(c *gin.Context) *UserContext {
	userCtx, ok := GetUserContext(c)
	if !ok {
		panic("user context not found; AuthMiddleware must run first")
	}
	return userCtx
}

// RequireRole allows only the listed roles
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, ok := GetUserContext(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "User context not found", "MISSING_USER_CONTEXT")
			return
		}
		for _, r := range roles {
			if userCtx.Role == r {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "Insufficient permissions", "INSUFFICIENT_PERMISSIONS")
	}
}

// RequirePermission asks the policy whether the caller's role holds permission
func RequirePermission(authorizer Authorizer, permission string, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, ok := GetUserContext(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "User context not found", "MISSING_USER_CONTEXT")
			return
		}

		allowed, err := authorizer.Allow(c.Request.Context(), string(userCtx.Role), permission)
		if err != nil {
			logger.WithError(err).WithField("permission", permission).Error("Authorization check failed")
			abort(c, http.StatusInternalServerError, "Authorization check failed", "INTERNAL_ERROR")
			return
		}
		if !allowed {
			abort(c, http.StatusForbidden, "Insufficient permissions", "INSUFFICIENT_PERMISSIONS")
			return
		}
		c.Next()
	}
}
