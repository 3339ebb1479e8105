package csrf

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, config *Config) *Service {
	t.Helper()
	s := NewService(config, nil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGenerateToken(t *testing.T) {
	s := newTestService(t, nil)

	t.Run("issues a bound token", func(t *testing.T) {
		token, err := s.GenerateToken("session-1")
		require.NoError(t, err)
		assert.NotEmpty(t, token.Value)
		assert.Equal(t, "session-1", token.SessionID)
		assert.True(t, token.ExpiresAt.After(time.Now()))
	})

	t.Run("tokens are unique per generation", func(t *testing.T) {
		first, err := s.GenerateToken("session-2")
		require.NoError(t, err)
		second, err := s.GenerateToken("session-2")
		require.NoError(t, err)
		assert.NotEqual(t, first.Value, second.Value)
	})

	t.Run("regeneration rotates the stored token", func(t *testing.T) {
		old, err := s.GenerateToken("session-3")
		require.NoError(t, err)
		_, err = s.GenerateToken("session-3")
		require.NoError(t, err)

		result := s.ValidateToken("session-3", old.Value)
		assert.False(t, result.Valid)
	})

	t.Run("empty session id is rejected", func(t *testing.T) {
		_, err := s.GenerateToken("")
		assert.Error(t, err)
	})
}

func TestValidateToken(t *testing.T) {
	s := newTestService(t, nil)

	token, err := s.GenerateToken("session-1")
	require.NoError(t, err)

	tests := []struct {
		name      string
		sessionID string
		submitted string
		wantValid bool
	}{
		{"matching token", "session-1", token.Value, true},
		{"wrong token", "session-1", "forged-value", false},
		{"empty token", "session-1", "", false},
		{"unknown session", "session-2", token.Value, false},
		{"empty session", "", token.Value, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.ValidateToken(tt.sessionID, tt.submitted)
			assert.Equal(t, tt.wantValid, result.Valid)
			if !tt.wantValid {
				assert.NotEmpty(t, result.Reason)
			}
		})
	}

	t.Run("token remains valid across repeated validations", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			result := s.ValidateToken("session-1", token.Value)
			assert.True(t, result.Valid)
		}
	})
}

func TestValidateTokenExpiry(t *testing.T) {
	s := newTestService(t, &Config{
		TokenLifetime:   20 * time.Millisecond,
		CleanupInterval: time.Hour,
	})

	token, err := s.GenerateToken("session-1")
	require.NoError(t, err)

	require.True(t, s.ValidateToken("session-1", token.Value).Valid)

	time.Sleep(50 * time.Millisecond)

	result := s.ValidateToken("session-1", token.Value)
	assert.False(t, result.Valid)
	assert.Equal(t, "token expired", result.Reason)
}

func TestExtractToken(t *testing.T) {
	s := newTestService(t, nil)

	t.Run("header wins", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", nil)
		req.Header.Set(DefaultHeaderName, "header-token")
		assert.Equal(t, "header-token", s.ExtractToken(req))
	})

	t.Run("form field fallback", func(t *testing.T) {
		form := url.Values{DefaultFormField: {"form-token"}}
		req := httptest.NewRequest("POST", "/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		assert.Equal(t, "form-token", s.ExtractToken(req))
	})

	t.Run("absent", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", nil)
		assert.Empty(t, s.ExtractToken(req))
	})
}

func TestCookieToken(t *testing.T) {
	s := newTestService(t, nil)

	req := httptest.NewRequest("POST", "/", nil)
	assert.Empty(t, s.CookieToken(req))

	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "cookie-token"})
	assert.Equal(t, "cookie-token", s.CookieToken(req))
}

func TestSessionID(t *testing.T) {
	s := newTestService(t, nil)

	t.Run("prefers the session cookie", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: "sess-abc"})
		assert.Equal(t, "sess-abc", s.SessionID(req, "192.0.2.1"))
	})

	t.Run("anonymous fallback is stable", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("User-Agent", "test-agent")

		first := s.SessionID(req, "192.0.2.1")
		second := s.SessionID(req, "192.0.2.1")

		assert.Equal(t, first, second)
		assert.True(t, strings.HasPrefix(first, "anon-"))
	})

	t.Run("anonymous fallback varies by address", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("User-Agent", "test-agent")

		assert.NotEqual(t, s.SessionID(req, "192.0.2.1"), s.SessionID(req, "192.0.2.2"))
	})
}

func TestSweepRemovesExpiredTokens(t *testing.T) {
	s := newTestService(t, &Config{
		TokenLifetime:   10 * time.Millisecond,
		CleanupInterval: 20 * time.Millisecond,
	})

	_, err := s.GenerateToken("session-1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return s.TokenFor("session-1") == nil
	}, time.Second, 10*time.Millisecond)
}

func TestServiceClose(t *testing.T) {
	s := NewService(nil, nil)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
