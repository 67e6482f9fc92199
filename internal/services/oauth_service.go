package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lautnusa/speedboat-backend/internal/config"
	"github.com/lautnusa/speedboat-backend/internal/database"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/internal/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleUser is the userinfo answer we rely on
type GoogleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// OAuthService signs users in with Google
type OAuthService struct {
	oauth       *oauth2.Config
	userInfoURL string
	users       *database.UserRepository
	auth        *AuthService
	audit       *AuditService
	logger      *logrus.Logger
}

// NewOAuthService creates the Google sign-in service
func NewOAuthService(cfg config.OAuthConfig, users *database.UserRepository, auth *AuthService, audit *AuditService, logger *logrus.Logger) *OAuthService {
	return &OAuthService{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.profile",
				"https://www.googleapis.com/auth/userinfo.email",
			},
			Endpoint: google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
		users:       users,
		auth:        auth,
		audit:       audit,
		logger:      logger,
	}
}

// SetEndpoints points the service at other OAuth and userinfo URLs
func (s *OAuthService) SetEndpoints(endpoint oauth2.Endpoint, userInfoURL string) {
	s.oauth.Endpoint = endpoint
	s.userInfoURL = userInfoURL
}

// Enabled reports whether Google credentials are configured
func (s *OAuthService) Enabled() bool {
	return s.oauth.ClientID != "" && s.oauth.ClientSecret != ""
}

// Start returns a fresh state and the consent URL carrying it
func (s *OAuthService) Start() (state, url string, err error) {
	state, err = utils.GenerateOpaqueToken()
	if err != nil {
		return "", "", err
	}
	return state, s.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account")), nil
}

// Callback exchanges the code, resolves the local user and opens a session
func (s *OAuthService) Callback(ctx context.Context, code string, client ClientInfo) (*models.AuthResponse, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", models.ErrValidation)
	}

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.logger.WithError(err).Warn("Google code exchange failed")
		return nil, models.ErrInvalidToken
	}

	profile, err := s.fetchProfile(ctx, token)
	if err != nil {
		return nil, err
	}
	if profile.ID == "" || profile.Email == "" || !profile.VerifiedEmail {
		return nil, fmt.Errorf("%w: google account has no verified email", models.ErrForbidden)
	}

	user, err := s.resolveUser(ctx, profile, client)
	if err != nil {
		return nil, err
	}

	resp, err := s.auth.IssueSession(ctx, user, client)
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		_ = s.audit.LogLogin(ctx, &user.ID, user.Email, true, "google", client)
	}
	return resp, nil
}

func (s *OAuthService) fetchProfile(ctx context.Context, token *oauth2.Token) (*GoogleUser, error) {
	httpClient := s.oauth.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get google user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("google userinfo returned %d: %s", resp.StatusCode, body)
	}

	var profile GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode google user info: %w", err)
	}
	profile.Email = normalizeEmail(profile.Email)
	return &profile, nil
}

// resolveUser links by google id, then by email, else creates a verified USER
func (s *OAuthService) resolveUser(ctx context.Context, profile *GoogleUser, client ClientInfo) (*models.User, error) {
	user, err := s.users.GetByGoogleID(ctx, profile.ID)
	if err != nil || user != nil {
		return user, err
	}

	user, err = s.users.GetByEmail(ctx, profile.Email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if err := s.users.LinkGoogle(ctx, user.ID, profile.ID); err != nil {
			return nil, err
		}
		if !user.IsEmailVerified() {
			if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
				return nil, err
			}
			user.EmailVerifiedAt = models.NewNullTime(time.Now())
		}
		user.GoogleID = models.NewNullString(profile.ID)
		s.logger.WithField("user_id", user.ID).Info("Google account linked")
		return user, nil
	}

	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name = strings.Split(profile.Email, "@")[0]
	}
	user = &models.User{
		Name:            name,
		Email:           profile.Email,
		Role:            models.RoleUser,
		GoogleID:        models.NewNullString(profile.ID),
		EmailVerifiedAt: models.NewNullTime(time.Now()),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	if s.audit != nil {
		_ = s.audit.LogRegister(ctx, user.ID, user.Email, "google", client)
	}
	s.logger.WithField("user_id", user.ID).Info("User registered with Google")
	return user, nil
}
