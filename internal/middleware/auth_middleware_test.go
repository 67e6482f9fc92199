package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/pkg/authz"
	"github.com/lautnusa/speedboat-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccessSecret = "test-access-secret-key-123456789"

func setupTestJWTService() *jwt.Service {
	return jwt.NewService(testAccessSecret, "test-refresh-secret-key-123456789", time.Hour, 24*time.Hour)
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// signedWith mints an access token outside the service so tests can set any claim
func signedWith(t *testing.T, secret string, expires time.Time) string {
	t.Helper()
	claims := jwt.Claims{UserID: uuid.New(), TokenType: jwt.AccessToken}
	claims.Issuer = "speedboat-api"
	claims.ExpiresAt = jwtlib.NewNumericDate(expires)
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()
	router.GET("/protected", AuthMiddleware(jwtService), func(c *gin.Context) {
		userCtx := MustGetUserContext(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userCtx.UserID, "email": userCtx.Email, "role": userCtx.Role})
	})

	userID := uuid.New()
	access, err := jwtService.GenerateAccessToken(userID, "rider@example.com", "USER", true)
	require.NoError(t, err)
	refresh, err := jwtService.GenerateRefreshToken(userID, "rider@example.com")
	require.NoError(t, err)

	bearer := func(token string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
	}
	header := func(value string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("Authorization", value) }
	}

	tests := []struct {
		name       string
		prepare    func(*http.Request)
		wantStatus int
		wantBody   string
	}{
		{"bearer header", bearer(access), http.StatusOK, userID.String()},
		{"cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: access})
		}, http.StatusOK, "rider@example.com"},
		{"header wins over cookie", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer garbage")
			r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: access})
		}, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"nothing sent", func(*http.Request) {}, http.StatusUnauthorized, "MISSING_AUTH_HEADER"},
		{"no scheme", header("some-token"), http.StatusUnauthorized, "INVALID_AUTH_FORMAT"},
		{"basic scheme", header("Basic some-token"), http.StatusUnauthorized, "INVALID_AUTH_FORMAT"},
		{"empty bearer", header("Bearer "), http.StatusUnauthorized, "INVALID_AUTH_FORMAT"},
		{"malformed token", bearer("invalid.token.here"), http.StatusUnauthorized, "INVALID_TOKEN"},
		{"refresh token", bearer(refresh), http.StatusUnauthorized, "INVALID_TOKEN"},
		{"other secret", bearer(signedWith(t, "wrong-secret-key", time.Now().Add(time.Hour))), http.StatusUnauthorized, "INVALID_TOKEN"},
		{"expired", bearer(signedWith(t, testAccessSecret, time.Now().Add(-time.Minute))), http.StatusUnauthorized, "TOKEN_EXPIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			tt.prepare(req)
			w := serve(router, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			if tt.wantStatus != http.StatusOK {
				assert.Contains(t, w.Body.String(), `"success":false`)
			}
		})
	}
}

func TestGetUserContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Context exists", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		expected := &UserContext{UserID: uuid.New(), Email: "op@example.com", Role: models.RoleOperator}
		c.Set(userContextKey, expected)

		userCtx, exists := GetUserContext(c)
		assert.True(t, exists)
		assert.Equal(t, expected, userCtx)
	})

	t.Run("Context not found", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		userCtx, exists := GetUserContext(c)
		assert.False(t, exists)
		assert.Nil(t, userCtx)
	})

	t.Run("Context wrong type", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(userContextKey, "wrong type")
		_, exists := GetUserContext(c)
		assert.False(t, exists)
	})
}

func TestMustGetUserContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Context exists - no panic", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(userContextKey, &UserContext{UserID: uuid.New()})
		assert.NotPanics(t, func() { MustGetUserContext(c) })
	})

	t.Run("Context missing - panics", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		assert.Panics(t, func() { MustGetUserContext(c) })
	})
}

func TestRequireRole(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()

	router.GET("/admin-only", AuthMiddleware(jwtService), RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	router.GET("/no-auth", RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
	})

	admin, err := jwtService.GenerateAccessToken(uuid.New(), "admin@example.com", "ADMIN", true)
	require.NoError(t, err)
	rider, err := jwtService.GenerateAccessToken(uuid.New(), "rider@example.com", "USER", true)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/admin-only", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	assert.Equal(t, http.StatusOK, serve(router, req).Code)

	req = httptest.NewRequest("GET", "/admin-only", nil)
	req.Header.Set("Authorization", "Bearer "+rider)
	w := serve(router, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "INSUFFICIENT_PERMISSIONS")

	w = serve(router, httptest.NewRequest("GET", "/no-auth", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_USER_CONTEXT")
}

func TestRequirePermission(t *testing.T) {
	authorizer, err := authz.New(context.Background())
	require.NoError(t, err)

	jwtService := setupTestJWTService()
	router := setupTestRouter()
	router.POST("/check-in",
		AuthMiddleware(jwtService),
		RequirePermission(authorizer, authz.PermTicketsCheckIn, testLogger()),
		func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "success"}) },
	)

	tests := []struct {
		role       string
		wantStatus int
	}{
		{"USER", http.StatusForbidden},
		{"OPERATOR", http.StatusOK},
		{"ADMIN", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			token, err := jwtService.GenerateAccessToken(uuid.New(), "someone@example.com", tt.role, true)
			require.NoError(t, err)

			req := httptest.NewRequest("POST", "/check-in", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			assert.Equal(t, tt.wantStatus, serve(router, req).Code)
		})
	}
}

type fakeUsers map[uuid.UUID]*models.User

func (f fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return f[id], nil
}

func TestRequireVerifiedEmail(t *testing.T) {
	jwtService := setupTestJWTService()

	verifiedLater := uuid.New()
	unverified := uuid.New()
	users := fakeUsers{
		verifiedLater: {ID: verifiedLater, EmailVerifiedAt: models.NewNullTime(time.Now())},
		unverified:    {ID: unverified},
	}

	router := setupTestRouter()
	router.POST("/bookings", AuthMiddleware(jwtService), RequireVerifiedEmail(users, testLogger()), func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"message": "success"})
	})

	tests := []struct {
		name       string
		userID     uuid.UUID
		claim      bool
		wantStatus int
	}{
		{"verified claim", uuid.New(), true, http.StatusCreated},
		{"verified after login", verifiedLater, false, http.StatusCreated},
		{"unverified", unverified, false, http.StatusForbidden},
		{"deleted user", uuid.New(), false, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwtService.GenerateAccessToken(tt.userID, "rider@example.com", "USER", tt.claim)
			require.NoError(t, err)

			req := httptest.NewRequest("POST", "/bookings", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			assert.Equal(t, tt.wantStatus, serve(router, req).Code)
		})
	}
}
