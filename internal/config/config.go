package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Auth      AuthConfig
	OAuth     OAuthConfig
	Midtrans  MidtransConfig
	Booking   BookingConfig
	Mail      MailConfig
	Redis     RedisConfig
	AMQP      AMQPConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Security  SecurityConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
	Timezone    string // IANA zone for search dates, schedules and documents
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret             string
	RefreshSecret      string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// AuthConfig holds session and account settings
type AuthConfig struct {
	RequireEmailVerification bool
	VerificationTokenTTL     time.Duration
	PasswordResetTokenTTL    time.Duration
	CookieDomain             string
	CookieSecure             bool
	FrontendURL              string // links in emails and OAuth redirects
}

// OAuthConfig holds Google OAuth client settings
type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

// MidtransConfig holds Midtrans Snap configuration
type MidtransConfig struct {
	Environment string // "sandbox" or "production"
	ServerKey   string // SECRET - never expose to client
	ClientKey   string
	FinishURL   string // where Snap sends the customer after payment
}

// BookingConfig holds booking and ticketing rules
type BookingConfig struct {
	PaymentWindow      time.Duration
	MaxPassengers      int
	CheckInOpensBefore time.Duration
	CheckInClosesAfter time.Duration
	QRSecret           string
}

// MailConfig holds outgoing mail settings
type MailConfig struct {
	Mode     string // "log" or "smtp"
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// RedisConfig holds Redis settings used for rate limiting
type RedisConfig struct {
	URL string
}

// AMQPConfig holds the domain event broker settings
type AMQPConfig struct {
	URL      string
	Exchange string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	LoginAttempts int
	LoginWindow   time.Duration
	EmailRequests int // verification and reset mails
	EmailWindow   time.Duration
	IPRequests    int
	IPWindow      time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	BcryptCost int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Timezone:    getEnv("APP_TIMEZONE", "Asia/Jakarta"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", ""),
			RefreshSecret:      getEnv("JWT_REFRESH_SECRET", ""),
			AccessTokenExpiry:  time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
			RefreshTokenExpiry: time.Duration(getEnvAsInt("JWT_REFRESH_TOKEN_EXPIRY", 604800)) * time.Second,
		},
		Auth: AuthConfig{
			RequireEmailVerification: getEnvAsBool("AUTH_REQUIRE_EMAIL_VERIFICATION", true),
			VerificationTokenTTL:     getEnvAsDuration("AUTH_VERIFICATION_TOKEN_TTL", 24*time.Hour),
			PasswordResetTokenTTL:    getEnvAsDuration("AUTH_PASSWORD_RESET_TOKEN_TTL", time.Hour),
			CookieDomain:             getEnv("AUTH_COOKIE_DOMAIN", ""),
			CookieSecure:             getEnvAsBool("AUTH_COOKIE_SECURE", false),
			FrontendURL:              getEnv("FRONTEND_URL", "http://localhost:3000"),
		},
		OAuth: OAuthConfig{
			GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/v1/auth/oauth/google/callback"),
		},
		Midtrans: MidtransConfig{
			Environment: getEnv("MIDTRANS_ENVIRONMENT", "sandbox"),
			ServerKey:   getEnv("MIDTRANS_SERVER_KEY", ""),
			ClientKey:   getEnv("MIDTRANS_CLIENT_KEY", ""),
			FinishURL:   getEnv("MIDTRANS_FINISH_URL", ""),
		},
		Booking: BookingConfig{
			PaymentWindow:      getEnvAsDuration("BOOKING_PAYMENT_WINDOW", 15*time.Minute),
			MaxPassengers:      getEnvAsInt("BOOKING_MAX_PASSENGERS", 10),
			CheckInOpensBefore: getEnvAsDuration("CHECKIN_OPENS_BEFORE", 3*time.Hour),
			CheckInClosesAfter: getEnvAsDuration("CHECKIN_CLOSES_AFTER", 30*time.Minute),
			QRSecret:           getEnv("TICKET_QR_SECRET", ""),
		},
		Mail: MailConfig{
			Mode:     getEnv("MAIL_MODE", "log"),
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("MAIL_FROM", "SpeedBoat Tickets <no-reply@speedboat.local>"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		AMQP: AMQPConfig{
			URL:      getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "speedboat.events"),
		},
		RateLimit: RateLimitConfig{
			LoginAttempts: getEnvAsInt("RATE_LIMIT_LOGIN_ATTEMPTS", 5),
			LoginWindow:   getEnvAsDuration("RATE_LIMIT_LOGIN_WINDOW", 15*time.Minute),
			EmailRequests: getEnvAsInt("RATE_LIMIT_EMAIL_REQUESTS", 3),
			EmailWindow:   getEnvAsDuration("RATE_LIMIT_EMAIL_WINDOW", 10*time.Minute),
			IPRequests:    getEnvAsInt("RATE_LIMIT_IP_REQUESTS", 30),
			IPWindow:      getEnvAsDuration("RATE_LIMIT_IP_WINDOW", time.Hour),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "Idempotency-Key"}),
		},
		Security: SecurityConfig{
			BcryptCost: getEnvAsInt("BCRYPT_COST", 12),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.JWT.RefreshSecret == "" {
		return fmt.Errorf("JWT_REFRESH_SECRET is required")
	}

	if c.Booking.QRSecret == "" {
		return fmt.Errorf("TICKET_QR_SECRET is required")
	}

	if c.Booking.PaymentWindow <= 0 {
		return fmt.Errorf("BOOKING_PAYMENT_WINDOW must be positive")
	}

	if c.Booking.MaxPassengers < 1 {
		return fmt.Errorf("BOOKING_MAX_PASSENGERS must be at least 1")
	}

	if c.IsProduction() {
		if c.Midtrans.ServerKey == "" {
			return fmt.Errorf("MIDTRANS_SERVER_KEY is required in production")
		}
		if c.Midtrans.Environment != "production" {
			return fmt.Errorf("MIDTRANS_ENVIRONMENT must be 'production' in production")
		}
	}

	switch c.Mail.Mode {
	case "log":
	case "smtp":
		if c.Mail.Host == "" {
			return fmt.Errorf("SMTP_HOST is required when MAIL_MODE=smtp")
		}
	default:
		return fmt.Errorf("invalid MAIL_MODE: %s (must be 'log' or 'smtp')", c.Mail.Mode)
	}

	return nil
}

// IsProduction reports whether the server runs in production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Location returns the configured time zone. Without tzdata on the host it
// falls back to a fixed UTC+7 offset.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		log.Printf("Unknown time zone %q, using UTC+7", c.Server.Timezone)
		return time.FixedZone("WIB", 7*60*60)
	}
	return loc
}

// GoogleOAuthEnabled reports whether Google login is configured
func (c *Config) GoogleOAuthEnabled() bool {
	return c.OAuth.GoogleClientID != "" && c.OAuth.GoogleClientSecret != ""
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("15m") or plain seconds ("900")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
