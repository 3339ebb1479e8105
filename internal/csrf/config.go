package csrf

import "time"

// Default names for the double-submit carriers.
const (
	// DefaultCookieName is the cookie carrying the token. The cookie is
	// intentionally readable by client script: the double-submit pattern
	// requires the client to echo the value back.
	DefaultCookieName = "csrf_token"

	// DefaultHeaderName is the header carrying the echoed token.
	DefaultHeaderName = "X-CSRF-Token"

	// DefaultFormField is the form field carrying the echoed token.
	DefaultFormField = "_csrf"

	// DefaultSessionCookieName is the cookie carrying the session
	// identifier the token is bound to.
	DefaultSessionCookieName = "session_id"
)

// Config holds configuration for the CSRF token service.
type Config struct {
	// TokenLifetime is how long an issued token stays valid.
	TokenLifetime time.Duration

	// CookieName is the cookie carrying the token.
	CookieName string

	// HeaderName is the request header carrying the echoed token.
	HeaderName string

	// FormField is the form field carrying the echoed token.
	FormField string

	// SessionCookieName is the cookie holding the session identifier.
	SessionCookieName string

	// CleanupInterval is how often expired tokens are swept.
	CleanupInterval time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		TokenLifetime:     time.Hour,
		CookieName:        DefaultCookieName,
		HeaderName:        DefaultHeaderName,
		FormField:         DefaultFormField,
		SessionCookieName: DefaultSessionCookieName,
		CleanupInterval:   5 * time.Minute,
	}
}

// normalize fills zero values with defaults.
func (c *Config) normalize() {
	if c.TokenLifetime <= 0 {
		c.TokenLifetime = time.Hour
	}
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.HeaderName == "" {
		c.HeaderName = DefaultHeaderName
	}
	if c.FormField == "" {
		c.FormField = DefaultFormField
	}
	if c.SessionCookieName == "" {
		c.SessionCookieName = DefaultSessionCookieName
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 5 * time.Minute
	}
}
