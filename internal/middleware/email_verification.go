package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// UserLookup loads a user by id
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RequireVerifiedEmail refuses callers whose email is not verified.
// The token claim can be stale, so a false claim is checked against the database.
// Must be used after AuthMiddleware.
func RequireVerifiedEmail(users UserLookup, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		if !exists {
			abort(c, http.StatusUnauthorized, "User context not found", "MISSING_USER_CONTEXT")
			return
		}
		if userCtx.EmailVerified {
			c.Next()
			return
		}

		user, err := users.GetByID(c.Request.Context(), userCtx.UserID)
		if err != nil {
			logger.WithError(err).WithField("user_id", userCtx.UserID).Error("Failed to load user for verification check")
			abort(c, http.StatusInternalServerError, "Failed to check account", "INTERNAL_ERROR")
			return
		}
		if user == nil {
			abort(c, http.StatusUnauthorized, "Account not found", "USER_NOT_FOUND")
			return
		}
		if !user.IsEmailVerified() {
			abort(c, http.StatusForbidden, "Please verify your email address first", "EMAIL_NOT_VERIFIED")
			return
		}

		userCtx.EmailVerified = true
		c.Next()
	}
}
