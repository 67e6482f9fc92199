package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/config"
	"github.com/lautnusa/speedboat-backend/internal/middleware"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/internal/services"
	"github.com/lautnusa/speedboat-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
)

const (
	refreshTokenCookie = "refresh_token"
	oauthStateCookie   = "oauth_state"
	oauthStateMaxAge   = 10 * 60 // seconds
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	authService  *services.AuthService
	oauthService *services.OAuthService
	jwtService   *jwt.Service
	cfg          config.AuthConfig
	logger       *logrus.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	authService *services.AuthService,
	oauthService *services.OAuthService,
	jwtService *jwt.Service,
	cfg config.AuthConfig,
	logger *logrus.Logger,
) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		oauthService: oauthService,
		jwtService:   jwtService,
		cfg:          cfg,
		logger:       logger,
	}
}

// MessageResponse is the data of endpoints that only confirm an action
type MessageResponse struct {
	Message string `json:"message"`
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := h.authService.Register(c.Request.Context(), &req, clientInfo(c))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusCreated, gin.H{
		"message": "Registration successful. Please check your email to verify your account.",
		"user":    user,
	})
}

// VerifyEmail handles POST /api/v1/auth/verify-email
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req models.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := h.authService.VerifyEmail(c.Request.Context(), req.Token, clientInfo(c))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{"message": "Email verified", "user": user})
}

// ResendVerification handles POST /api/v1/auth/resend-verification
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req models.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.authService.ResendVerification(c.Request.Context(), req.Email, clientInfo(c)); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, MessageResponse{
		Message: "If the address belongs to an unverified account, a new link has been sent",
	})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req, clientInfo(c))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	h.setSessionCookies(c, resp)
	respondOK(c, http.StatusOK, resp)
}

// RefreshToken handles POST /api/v1/auth/refresh.
// The token comes from the body or the refresh_token cookie.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	token := h.refreshTokenFrom(c)
	if token == "" {
		respondError(c, http.StatusBadRequest, "Refresh token is required", "VALIDATION_ERROR")
		return
	}

	resp, err := h.authService.Refresh(c.Request.Context(), token, clientInfo(c))
	if err != nil {
		h.clearSessionCookies(c)
		respondServiceError(c, h.logger, err)
		return
	}

	h.setSessionCookies(c, resp)
	respondOK(c, http.StatusOK, resp)
}

// Logout handles POST /api/v1/auth/logout. It works with an expired access
// token so the session can always be closed.
func (h *AuthHandler) Logout(c *gin.Context) {
	token := h.refreshTokenFrom(c)

	userID := uuid.Nil
	if token != "" {
		if claims, err := h.jwtService.ValidateRefreshToken(token); err == nil {
			userID = claims.UserID
		}
	}

	if err := h.authService.Logout(c.Request.Context(), userID, token, clientInfo(c)); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	h.clearSessionCookies(c)
	respondOK(c, http.StatusOK, MessageResponse{Message: "Logged out"})
}

// ForgotPassword handles POST /api/v1/auth/forgot-password
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req models.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.authService.ForgotPassword(c.Request.Context(), req.Email, clientInfo(c)); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, MessageResponse{
		Message: "If the address belongs to an account, a reset link has been sent",
	})
}

// ResetPassword handles POST /api/v1/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req.Token, req.Password, clientInfo(c)); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	h.clearSessionCookies(c)
	respondOK(c, http.StatusOK, MessageResponse{Message: "Password updated. Please log in again."})
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "User context not found", "MISSING_USER_CONTEXT")
		return
	}

	user, err := h.authService.Me(c.Request.Context(), userCtx.UserID)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, user)
}

// GoogleStart handles GET /api/v1/auth/oauth/google
func (h *AuthHandler) GoogleStart(c *gin.Context) {
	if h.oauthService == nil || !h.oauthService.Enabled() {
		respondError(c, http.StatusNotFound, "Google sign-in is not enabled", "OAUTH_DISABLED")
		return
	}

	state, authURL, err := h.oauthService.Start()
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, oauthStateMaxAge, "/", h.cfg.CookieDomain, h.cfg.CookieSecure, true)
	c.Redirect(http.StatusFound, authURL)
}

// GoogleCallback handles GET /api/v1/auth/oauth/google/callback
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	if h.oauthService == nil || !h.oauthService.Enabled() {
		respondError(c, http.StatusNotFound, "Google sign-in is not enabled", "OAUTH_DISABLED")
		return
	}

	expected, err := c.Cookie(oauthStateCookie)
	c.SetCookie(oauthStateCookie, "", -1, "/", h.cfg.CookieDomain, h.cfg.CookieSecure, true)
	if err != nil || expected == "" || c.Query("state") != expected {
		respondError(c, http.StatusBadRequest, "Invalid OAuth state", "INVALID_OAUTH_STATE")
		return
	}
	if errParam := c.Query("error"); errParam != "" {
		respondError(c, http.StatusUnauthorized, "Google sign-in was cancelled: "+errParam, "OAUTH_DENIED")
		return
	}

	resp, err := h.oauthService.Callback(c.Request.Context(), c.Query("code"), clientInfo(c))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	h.setSessionCookies(c, resp)
	if h.cfg.FrontendURL != "" {
		c.Redirect(http.StatusFound, strings.TrimRight(h.cfg.FrontendURL, "/")+"/auth/callback")
		return
	}
	respondOK(c, http.StatusOK, resp)
}

func (h *AuthHandler) refreshTokenFrom(c *gin.Context) string {
	var req models.RefreshTokenRequest
	if c.Request.ContentLength > 0 {
		_ = c.ShouldBindJSON(&req)
	}
	if token := strings.TrimSpace(req.RefreshToken); token != "" {
		return token
	}
	if cookie, err := c.Cookie(refreshTokenCookie); err == nil {
		return cookie
	}
	return ""
}

// setSessionCookies sets HttpOnly session cookies for browser clients
func (h *AuthHandler) setSessionCookies(c *gin.Context, resp *models.AuthResponse) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, resp.AccessToken, 0, "/", h.cfg.CookieDomain, h.cfg.CookieSecure, true)
	c.SetCookie(refreshTokenCookie, resp.RefreshToken, 0, "/api/v1/auth", h.cfg.CookieDomain, h.cfg.CookieSecure, true)
}

func (h *AuthHandler) clearSessionCookies(c *gin.Context) {
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", h.cfg.CookieDomain, h.cfg.CookieSecure, true)
	c.SetCookie(refreshTokenCookie, "", -1, "/api/v1/auth", h.cfg.CookieDomain, h.cfg.CookieSecure, true)
}
