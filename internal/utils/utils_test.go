package utils

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBookingCode(t *testing.T) {
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	code, err := NewBookingCode(now)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^SB250102[A-HJ-NP-Z2-9]{6}$`), code)

	other, err := NewBookingCode(now)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

func TestNewTicketCode(t *testing.T) {
	code, err := NewTicketCode()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^TK-[A-HJ-NP-Z2-9]{8}$`), code)
}

func TestNewOrderID(t *testing.T) {
	now := time.Unix(1700000000, 0)
	assert.Equal(t, "SB250102ABCDEF-1700000000", NewOrderID("SB250102ABCDEF", now))
}

func TestHashToken(t *testing.T) {
	token, err := GenerateOpaqueToken()
	require.NoError(t, err)
	assert.Len(t, HashToken(token), 64)
	assert.Equal(t, HashToken(token), HashToken(token))
	assert.NotEqual(t, token, HashToken(token))
}

func TestGenerateAppSecrets(t *testing.T) {
	s, err := GenerateAppSecrets()
	require.NoError(t, err)
	assert.Len(t, s.JWTAccess, 64)
	assert.NotEqual(t, s.JWTAccess, s.JWTRefresh)
	assert.NotEqual(t, s.JWTRefresh, s.TicketQR)
}

func TestRetry(t *testing.T) {
	t.Run("Succeeds after failures", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 3, time.Millisecond, func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("Returns last error", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 2, time.Millisecond, func() error {
			calls++
			return errors.New("still failing")
		})
		assert.EqualError(t, err, "still failing")
		assert.Equal(t, 2, calls)
	})

	t.Run("Stops on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Retry(ctx, 5, time.Second, func() error { return errors.New("x") })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestParseUserAgent(t *testing.T) {
	android := ParseUserAgent("Mozilla/5.0 (Linux; Android 12; SM-G991B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Mobile Safari/537.36")
	assert.Equal(t, "mobile", android.DeviceType)
	assert.Equal(t, "android", android.Platform)
	assert.Contains(t, android.Browser, "Chrome")

	desktop := ParseUserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Safari/537.36")
	assert.Equal(t, "desktop", desktop.DeviceType)
	assert.Equal(t, "windows", desktop.Platform)

	unknown := ParseUserAgent("")
	assert.Equal(t, "unknown", unknown.DeviceType)
}

func TestGetRealIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"X-Real-IP public", map[string]string{"X-Real-IP": "203.0.113.5"}, "203.0.113.5"},
		{"Forwarded skips private", map[string]string{"X-Forwarded-For": "10.0.0.2, 198.51.100.7"}, "198.51.100.7"},
		{"Forwarded all private", map[string]string{"X-Forwarded-For": "10.0.0.2, 192.168.1.1"}, "10.0.0.2"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.headers {
				c.Request.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, GetRealIP(c))
		})
	}
}
