// Package csrf implements double-submit cookie CSRF protection bound to a
// session identifier.
//
// The server issues an opaque token tied to the caller's session and sets
// it in a client-readable cookie. State-changing requests must echo the
// value through a header or form field; a cross-site attacker cannot read
// the cookie to produce a matching echo. Tokens may be reused across
// requests within their lifetime; rotation happens only on regeneration.
//
// Exemptions (safe methods, excluded paths, bearer-authenticated requests)
// are enforced by the caller, not by this service.
package csrf

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// tokenBytes is the entropy of a token value.
const tokenBytes = 32

// Token is an issued anti-forgery token.
type Token struct {
	// Value is the opaque token string.
	Value string

	// SessionID is the session the token is bound to.
	SessionID string

	// IssuedAt is when the token was generated.
	IssuedAt time.Time

	// ExpiresAt is when the token stops validating.
	ExpiresAt time.Time
}

// Expired reports whether the token is past its expiry at the given time.
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// ValidationResult is the outcome of a token validation.
type ValidationResult struct {
	Valid  bool
	Reason string
}

// Service issues and validates CSRF tokens. Safe for concurrent use: two
// tabs submitting the same session's token simultaneously both validate,
// because validation is a read and rotation only happens on explicit
// regeneration.
type Service struct {
	config *Config
	logger *zap.Logger

	mu     sync.RWMutex
	tokens map[string]*Token

	done      chan struct{}
	closeOnce sync.Once
}

// NewService creates a CSRF token service.
func NewService(config *Config, logger *zap.Logger) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	config.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		config: config,
		logger: logger,
		tokens: make(map[string]*Token),
		done:   make(chan struct{}),
	}

	go s.sweep()

	return s
}

// GenerateToken issues a new token for the session, replacing any existing
// one (rotation).
func (s *Service) GenerateToken(sessionID string) (*Token, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("generate csrf token: empty session id")
	}

	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate csrf token: %w", err)
	}

	now := time.Now()
	token := &Token{
		Value:     base64.RawURLEncoding.EncodeToString(buf),
		SessionID: sessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.config.TokenLifetime),
	}

	s.mu.Lock()
	s.tokens[sessionID] = token
	s.mu.Unlock()

	return token, nil
}

// ValidateToken checks a submitted token against the one issued for the
// session. The comparison is constant-time.
func (s *Service) ValidateToken(sessionID, submitted string) ValidationResult {
	if sessionID == "" {
		return ValidationResult{Reason: "missing session"}
	}
	if submitted == "" {
		return ValidationResult{Reason: "missing token"}
	}

	s.mu.RLock()
	token, ok := s.tokens[sessionID]
	s.mu.RUnlock()

	if !ok {
		return ValidationResult{Reason: "no token issued for session"}
	}
	if token.Expired(time.Now()) {
		return ValidationResult{Reason: "token expired"}
	}
	if subtle.ConstantTimeCompare([]byte(token.Value), []byte(submitted)) != 1 {
		return ValidationResult{Reason: "token mismatch"}
	}

	return ValidationResult{Valid: true}
}

// ExtractToken returns the token the client echoed via header or form
// field, or "" when absent.
func (s *Service) ExtractToken(r *http.Request) string {
	if v := r.Header.Get(s.config.HeaderName); v != "" {
		return v
	}
	return r.PostFormValue(s.config.FormField)
}

// CookieToken returns the token value from the double-submit cookie, or ""
// when absent.
func (s *Service) CookieToken(r *http.Request) string {
	cookie, err := r.Cookie(s.config.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SessionID derives the session identifier the token binds to. It prefers
// the existing session cookie; absent one, it derives a stable pseudo
// session from the client address and user agent so anonymous visitors
// still get working tokens.
func (s *Service) SessionID(r *http.Request, clientIP string) string {
	if cookie, err := r.Cookie(s.config.SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	sum := sha256.Sum256([]byte(clientIP + "|" + r.UserAgent()))
	return "anon-" + hex.EncodeToString(sum[:16])
}

// CookieName returns the configured token cookie name.
func (s *Service) CookieName() string {
	return s.config.CookieName
}

// TokenLifetime returns the configured token lifetime.
func (s *Service) TokenLifetime() time.Duration {
	return s.config.TokenLifetime
}

// TokenFor returns the currently issued token for a session, or nil.
func (s *Service) TokenFor(sessionID string) *Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[sessionID]
}

// Close stops the expiry sweeper. Idempotent.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

// sweep periodically drops expired tokens.
func (s *Service) sweep() {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for sessionID, token := range s.tokens {
				if token.Expired(now) {
					delete(s.tokens, sessionID)
				}
			}
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}
