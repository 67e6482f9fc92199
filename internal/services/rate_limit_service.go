package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lautnusa/speedboat-backend/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Counter counts hits in a fixed window. Hit returns the count including this
// hit and the time left in the window.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisCounter is a fixed-window Counter on INCR + EXPIRE NX
type RedisCounter struct {
	client *redis.Client
	prefix string
}

// NewRedisCounter creates a counter from a redis:// URL
func NewRedisCounter(url string) (*RedisCounter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return &RedisCounter{client: redis.NewClient(opts), prefix: "speedboat:rl:"}, nil
}

// Ping checks the connection
func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client
func (c *RedisCounter) Close() error {
	return c.client.Close()
}

// Hit implements Counter
func (c *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	key = c.prefix + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit counter: %w", err)
	}

	left := ttl.Val()
	if left < 0 {
		left = window
	}
	return incr.Val(), left, nil
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	Type       string // "email" or "ip"
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// RateLimitAction names a limited operation
type RateLimitAction string

const (
	RateLimitLogin    RateLimitAction = "login"
	RateLimitRegister RateLimitAction = "register"
	RateLimitEmail    RateLimitAction = "email" // verification resend and password reset
)

// RateLimitService limits auth endpoints per email and per IP.
// With no counter configured every request is allowed.
type RateLimitService struct {
	counter Counter
	cfg     config.RateLimitConfig
	logger  *logrus.Logger
}

// NewRateLimitService creates a new rate limit service. counter may be nil.
func NewRateLimitService(counter Counter, cfg config.RateLimitConfig, logger *logrus.Logger) *RateLimitService {
	return &RateLimitService{
		counter: counter,
		cfg:     cfg,
		logger:  logger,
	}
}

// Enabled reports whether limits are enforced
func (s *RateLimitService) Enabled() bool {
	return s.counter != nil
}

// Check counts one attempt of action for email and ip and fails with
// *RateLimitError once either budget is spent. Counter failures are logged
// and let the request through.
func (s *RateLimitService) Check(ctx context.Context, action RateLimitAction, email, ip string) error {
	if s.counter == nil {
		return nil
	}

	limit, window := s.cfg.LoginAttempts, s.cfg.LoginWindow
	if action == RateLimitEmail || action == RateLimitRegister {
		limit, window = s.cfg.EmailRequests, s.cfg.EmailWindow
	}

	if email != "" {
		key := fmt.Sprintf("%s:email:%s", action, strings.ToLower(strings.TrimSpace(email)))
		if err := s.hit(ctx, key, limit, window, "email"); err != nil {
			return err
		}
	}

	if ip != "" {
		key := fmt.Sprintf("%s:ip:%s", action, ip)
		if err := s.hit(ctx, key, s.cfg.IPRequests, s.cfg.IPWindow, "ip"); err != nil {
			return err
		}
	}

	return nil
}

func (s *RateLimitService) hit(ctx context.Context, key string, limit int, window time.Duration, kind string) error {
	if limit <= 0 {
		return nil
	}

	count, left, err := s.counter.Hit(ctx, key, window)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Rate limit counter unavailable, allowing request")
		return nil
	}

	if count > int64(limit) {
		msg := "Too many requests for this email address"
		if kind == "ip" {
			msg = "Too many requests from this IP address"
		}
		return &RateLimitError{
			Message:    fmt.Sprintf("%s. Please try again in %s", msg, left.Round(time.Second)),
			RetryAfter: left,
			Type:       kind,
		}
	}
	return nil
}
