// Package config defines the gateway configuration model, its YAML loader
// with environment variable substitution, and a file watcher for hot
// reload of the tunable sections.
package config

import (
	"fmt"
	"time"
)

// GatewayConfig is the root configuration for the security gateway.
type GatewayConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	CSRF      CSRFConfig      `yaml:"csrf"`
	Auth      AuthConfig      `yaml:"auth"`
	Allowlist AllowlistConfig `yaml:"allowlist"`
	Audit     AuditConfig     `yaml:"audit"`
	Suspicion SuspicionConfig `yaml:"suspicion"`

	// TrustedProxies are the proxy addresses whose forwarding headers are
	// honored during client IP resolution.
	TrustedProxies []string `yaml:"trustedProxies"`

	// ExcludedPaths are path prefixes the security pipeline skips.
	ExcludedPaths []string `yaml:"excludedPaths"`

	// LoginPaths are path prefixes rate limited under the login category.
	LoginPaths []string `yaml:"loginPaths"`

	// MaxBodyBytes caps the accepted request body size.
	MaxBodyBytes int64 `yaml:"maxBodyBytes"`

	// SecureCookies forces the Secure flag on issued cookies.
	SecureCookies bool `yaml:"secureCookies"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string    `yaml:"host"`
	Port            int       `yaml:"port"`
	ReadTimeout     Duration  `yaml:"readTimeout"`
	WriteTimeout    Duration  `yaml:"writeTimeout"`
	IdleTimeout     Duration  `yaml:"idleTimeout"`
	ShutdownTimeout Duration  `yaml:"shutdownTimeout"`
	TLS             TLSConfig `yaml:"tls"`
}

// TLSConfig configures TLS termination.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

// Address returns the host:port the server binds to.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputPath string `yaml:"outputPath"`
}

// RedisConfig configures the Redis rate limit backend. When disabled, the
// gateway counts in process memory.
type RedisConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Address      string   `yaml:"address"`
	Password     string   `yaml:"password"`
	DB           int      `yaml:"db"`
	DialTimeout  Duration `yaml:"dialTimeout"`
	ReadTimeout  Duration `yaml:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout"`
}

// CategoryLimit configures one rate limit category.
type CategoryLimit struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// FailoverConfig tunes the circuit breaker guarding the primary counter
// store.
type FailoverConfig struct {
	OpTimeout    Duration `yaml:"opTimeout"`
	MaxFailures  int      `yaml:"maxFailures"`
	OpenInterval Duration `yaml:"openInterval"`
}

// RateLimitConfig configures rate limiting per category.
type RateLimitConfig struct {
	Categories map[string]CategoryLimit `yaml:"categories"`
	Failover   FailoverConfig           `yaml:"failover"`
}

// CSRFConfig configures double-submit cookie CSRF protection.
type CSRFConfig struct {
	Enabled           bool     `yaml:"enabled"`
	CookieName        string   `yaml:"cookieName"`
	HeaderName        string   `yaml:"headerName"`
	FormField         string   `yaml:"formField"`
	SessionCookieName string   `yaml:"sessionCookieName"`
	TokenLifetime     Duration `yaml:"tokenLifetime"`
	CleanupInterval   Duration `yaml:"cleanupInterval"`
}

// AuthConfig configures bearer credential verification.
type AuthConfig struct {
	// SigningKey is the HMAC key used to verify bearer tokens. Empty
	// disables verification; bearer requests are then CSRF-exempt but
	// carry no principal.
	SigningKey string   `yaml:"signingKey"`
	Issuer     string   `yaml:"issuer"`
	Audience   string   `yaml:"audience"`
	ClockSkew  Duration `yaml:"clockSkew"`
}

// AllowlistConfig configures the per-principal IP allow-list gate.
type AllowlistConfig struct {
	// DatabasePath is the SQLite file backing the allow-list.
	DatabasePath string `yaml:"databasePath"`

	// PrivilegedPrefixes are the path prefixes the gate protects.
	PrivilegedPrefixes []string `yaml:"privilegedPrefixes"`

	// ExemptPaths skip the gate inside the privileged area.
	ExemptPaths []string `yaml:"exemptPaths"`
}

// AuditConfig configures the audit event recorder.
type AuditConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Output       string   `yaml:"output"`
	SQLitePath   string   `yaml:"sqlitePath"`
	BufferSize   int      `yaml:"bufferSize"`
	RedactFields []string `yaml:"redactFields"`
}

// SuspicionConfig overrides the reconnaissance heuristics.
type SuspicionConfig struct {
	ScannerAgents []string `yaml:"scannerAgents"`
	ProbePaths    []string `yaml:"probePaths"`
}

// DefaultConfig returns a GatewayConfig with working defaults.
func DefaultConfig() *GatewayConfig {
	config := &GatewayConfig{}
	config.ApplyDefaults()
	return config
}

// ApplyDefaults fills zero values with defaults.
func (c *GatewayConfig) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(15 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(15 * time.Second)
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = Duration(60 * time.Second)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(30 * time.Second)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.RateLimit.Categories == nil {
		c.RateLimit.Categories = map[string]CategoryLimit{
			"login":   {Requests: 1, Window: Duration(time.Minute)},
			"general": {Requests: 100, Window: Duration(time.Minute)},
		}
	}
	if c.RateLimit.Failover.OpTimeout == 0 {
		c.RateLimit.Failover.OpTimeout = Duration(500 * time.Millisecond)
	}
	if c.RateLimit.Failover.MaxFailures == 0 {
		c.RateLimit.Failover.MaxFailures = 3
	}
	if c.RateLimit.Failover.OpenInterval == 0 {
		c.RateLimit.Failover.OpenInterval = Duration(15 * time.Second)
	}

	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 1 << 20
	}

	if c.Allowlist.DatabasePath == "" {
		c.Allowlist.DatabasePath = "secgate.db"
	}
	if c.Allowlist.PrivilegedPrefixes == nil {
		c.Allowlist.PrivilegedPrefixes = []string{"/api/security"}
	}

	if c.ExcludedPaths == nil {
		c.ExcludedPaths = []string{"/healthz", "/metrics"}
	}
	if c.LoginPaths == nil {
		c.LoginPaths = []string{"/api/auth/login", "/login"}
	}

	if c.Audit.Output == "" {
		c.Audit.Output = "stdout"
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = 1024
	}
}

// Validate checks the configuration for errors that would prevent the
// gateway from starting.
func (c *GatewayConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls requires certFile and keyFile when enabled")
		}
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when redis is enabled")
	}

	for name, limit := range c.RateLimit.Categories {
		if limit.Requests <= 0 {
			return fmt.Errorf("rateLimit.categories.%s.requests must be positive, got %d", name, limit.Requests)
		}
		if limit.Window <= 0 {
			return fmt.Errorf("rateLimit.categories.%s.window must be positive, got %s", name, limit.Window)
		}
	}

	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("maxBodyBytes must not be negative, got %d", c.MaxBodyBytes)
	}

	if c.Audit.BufferSize < 0 {
		return fmt.Errorf("audit.bufferSize must not be negative, got %d", c.Audit.BufferSize)
	}

	return nil
}
