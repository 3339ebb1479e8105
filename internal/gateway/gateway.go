// Package gateway assembles the security planes from configuration and
// exposes them as gin middleware. Planes are registered independently: a
// plane that fails to construct is logged and skipped, so a broken Redis
// or a missing signing key degrades the gateway instead of preventing
// startup. The allow-list store is the exception, because the gate fails
// closed and cannot run without it.
package gateway

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/secgate-io/secgate/internal/allowlist"
	"github.com/secgate-io/secgate/internal/audit"
	"github.com/secgate-io/secgate/internal/auth"
	"github.com/secgate-io/secgate/internal/clientip"
	"github.com/secgate-io/secgate/internal/config"
	"github.com/secgate-io/secgate/internal/csrf"
	"github.com/secgate-io/secgate/internal/middleware"
	"github.com/secgate-io/secgate/internal/ratelimit"
	"github.com/secgate-io/secgate/internal/ratelimit/store"
	"github.com/secgate-io/secgate/internal/threatscan"
)

// Gateway holds the constructed security planes.
type Gateway struct {
	config *config.GatewayConfig
	logger *zap.Logger

	resolver  *clientip.Resolver
	counters  store.Store
	limiter   *ratelimit.CategoryLimiter
	csrf      *csrf.Service
	scanner   *threatscan.Scanner
	detector  *middleware.SuspicionDetector
	verifier  *auth.Verifier
	allowlist allowlist.Store
	recorder  audit.Recorder
}

// New constructs a gateway from configuration.
func New(cfg *config.GatewayConfig, logger *zap.Logger) (*Gateway, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Gateway{
		config: cfg,
		logger: logger,
	}

	g.resolver = clientip.NewResolver(cfg.TrustedProxies)

	g.buildRateLimiter()
	g.buildCSRF()
	g.buildScanner()
	g.buildDetector()
	g.buildVerifier()
	g.buildAudit()

	if err := g.buildAllowlist(); err != nil {
		return nil, err
	}

	return g, nil
}

// buildRateLimiter wires the counter store and the category limiter. A
// Redis failure at startup falls back to in-memory counting with a
// warning rather than aborting.
func (g *Gateway) buildRateLimiter() {
	memory := store.NewMemoryStore()
	counters := store.Store(memory)

	if g.config.Redis.Enabled {
		redisConfig := store.DefaultRedisConfig()
		redisConfig.Address = g.config.Redis.Address
		redisConfig.Password = g.config.Redis.Password
		redisConfig.DB = g.config.Redis.DB
		redisConfig.Logger = g.logger
		if d := g.config.Redis.DialTimeout.Duration(); d > 0 {
			redisConfig.DialTimeout = d
		}
		if d := g.config.Redis.ReadTimeout.Duration(); d > 0 {
			redisConfig.ReadTimeout = d
		}
		if d := g.config.Redis.WriteTimeout.Duration(); d > 0 {
			redisConfig.WriteTimeout = d
		}

		primary, err := store.NewRedisStore(redisConfig)
		if err != nil {
			g.logger.Warn("redis unavailable, rate limiting counts in memory",
				zap.String("address", g.config.Redis.Address),
				zap.Error(err),
			)
		} else {
			counters = store.NewFailoverStore(primary, memory, &store.FailoverConfig{
				OpTimeout:    g.config.RateLimit.Failover.OpTimeout.Duration(),
				MaxFailures:  uint32(g.config.RateLimit.Failover.MaxFailures),
				OpenInterval: g.config.RateLimit.Failover.OpenInterval.Duration(),
				Logger:       g.logger,
			})
		}
	}

	g.counters = counters
	g.limiter = ratelimit.NewCategoryLimiter(counters, categoryLimits(g.config), g.logger)
}

func (g *Gateway) buildCSRF() {
	if !g.config.CSRF.Enabled {
		g.logger.Info("csrf protection disabled by configuration")
		return
	}

	g.csrf = csrf.NewService(&csrf.Config{
		CookieName:        g.config.CSRF.CookieName,
		HeaderName:        g.config.CSRF.HeaderName,
		FormField:         g.config.CSRF.FormField,
		SessionCookieName: g.config.CSRF.SessionCookieName,
		TokenLifetime:     g.config.CSRF.TokenLifetime.Duration(),
		CleanupInterval:   g.config.CSRF.CleanupInterval.Duration(),
	}, g.logger)
}

func (g *Gateway) buildScanner() {
	g.scanner = threatscan.NewScanner(threatscan.DefaultSignatures()...)
}

func (g *Gateway) buildDetector() {
	var opts []middleware.SuspicionOption
	if len(g.config.Suspicion.ScannerAgents) > 0 {
		opts = append(opts, middleware.WithScannerAgents(g.config.Suspicion.ScannerAgents))
	}
	if len(g.config.Suspicion.ProbePaths) > 0 {
		opts = append(opts, middleware.WithProbePaths(g.config.Suspicion.ProbePaths))
	}
	g.detector = middleware.NewSuspicionDetector(opts...)
}

func (g *Gateway) buildVerifier() {
	if g.config.Auth.SigningKey == "" {
		g.logger.Warn("no signing key configured, bearer credentials pass unverified")
		return
	}

	opts := []auth.VerifierOption{auth.WithVerifierLogger(g.logger)}
	if g.config.Auth.Issuer != "" {
		opts = append(opts, auth.WithIssuer(g.config.Auth.Issuer))
	}
	if g.config.Auth.Audience != "" {
		opts = append(opts, auth.WithAudience(g.config.Auth.Audience))
	}
	if d := g.config.Auth.ClockSkew.Duration(); d > 0 {
		opts = append(opts, auth.WithClockSkew(d))
	}

	verifier, err := auth.NewVerifier([]byte(g.config.Auth.SigningKey), opts...)
	if err != nil {
		g.logger.Warn("bearer verifier unavailable", zap.Error(err))
		return
	}
	g.verifier = verifier
}

// buildAudit wires the recorder to its sinks. Audit failures never block
// requests, so sink construction errors only cost coverage.
func (g *Gateway) buildAudit() {
	auditConfig := &audit.Config{
		Enabled:      g.config.Audit.Enabled,
		Output:       g.config.Audit.Output,
		BufferSize:   g.config.Audit.BufferSize,
		RedactFields: g.config.Audit.RedactFields,
	}

	if !g.config.Audit.Enabled {
		g.recorder = audit.NewNoopRecorder()
		return
	}

	opts := []audit.RecorderOption{audit.WithRecorderLogger(g.logger)}

	if g.config.Audit.SQLitePath != "" {
		jsonSink, err := audit.OpenJSONSink(g.config.Audit.Output)
		if err != nil {
			g.logger.Warn("audit json sink unavailable", zap.Error(err))
		}
		sqliteSink, sqlErr := audit.NewSQLiteSink(g.config.Audit.SQLitePath)
		if sqlErr != nil {
			g.logger.Warn("audit sqlite sink unavailable",
				zap.String("path", g.config.Audit.SQLitePath),
				zap.Error(sqlErr),
			)
		}
		switch {
		case err == nil && sqlErr == nil:
			opts = append(opts, audit.WithRecorderSink(audit.NewMultiSink(jsonSink, sqliteSink)))
		case err == nil:
			opts = append(opts, audit.WithRecorderSink(jsonSink))
		case sqlErr == nil:
			opts = append(opts, audit.WithRecorderSink(sqliteSink))
		}
	}

	recorder, err := audit.NewRecorder(auditConfig, opts...)
	if err != nil {
		g.logger.Warn("audit recorder unavailable, security events will not be recorded", zap.Error(err))
		g.recorder = audit.NewNoopRecorder()
		return
	}
	g.recorder = recorder
}

func (g *Gateway) buildAllowlist() error {
	s, err := allowlist.NewSQLiteStore(g.config.Allowlist.DatabasePath, g.logger)
	if err != nil {
		return fmt.Errorf("failed to open allowlist store: %w", err)
	}
	g.allowlist = s
	return nil
}

// Middleware returns the security pipeline middleware.
func (g *Gateway) Middleware() gin.HandlerFunc {
	return middleware.SecurityGateway(&middleware.GatewayConfig{
		Resolver:      g.resolver,
		Limiter:       g.limiter,
		CSRF:          g.csrf,
		Scanner:       g.scanner,
		Detector:      g.detector,
		Audit:         g.recorder,
		Verifier:      g.verifier,
		ExcludedPaths: g.config.ExcludedPaths,
		LoginPaths:    g.config.LoginPaths,
		MaxBodyBytes:  g.config.MaxBodyBytes,
		SecureCookies: g.config.SecureCookies,
		Logger:        g.logger,
	})
}

// AllowlistGate returns the privileged-route gate middleware.
func (g *Gateway) AllowlistGate() gin.HandlerFunc {
	return middleware.IPAllowlistGate(&middleware.AllowlistGateConfig{
		Store:              g.allowlist,
		Resolver:           g.resolver,
		Verifier:           g.verifier,
		Audit:              g.recorder,
		PrivilegedPrefixes: g.config.Allowlist.PrivilegedPrefixes,
		ExemptPaths:        g.config.Allowlist.ExemptPaths,
		Logger:             g.logger,
	})
}

// Allowlist exposes the allow-list store for the management API.
func (g *Gateway) Allowlist() allowlist.Store {
	return g.allowlist
}

// Audit exposes the audit recorder.
func (g *Gateway) Audit() audit.Recorder {
	return g.recorder
}

// Degraded reports whether rate limiting is running on the fallback
// counter store.
func (g *Gateway) Degraded() bool {
	if failover, ok := g.counters.(*store.FailoverStore); ok {
		return failover.Degraded()
	}
	return false
}

// Reload applies the hot-reloadable sections of a fresh configuration:
// rate limit categories and trusted proxies. Everything else is captured
// by already-constructed planes and takes effect on the next restart.
func (g *Gateway) Reload(cfg *config.GatewayConfig) {
	if cfg == nil {
		return
	}

	g.limiter.SetLimits(categoryLimits(cfg))
	g.resolver.SetTrustedProxies(cfg.TrustedProxies)
	g.logger.Info("configuration reapplied",
		zap.Int("categories", len(cfg.RateLimit.Categories)),
		zap.Int("trusted_proxies", len(cfg.TrustedProxies)),
	)
}

// Close releases plane resources. Safe to call once during shutdown.
func (g *Gateway) Close() error {
	var firstErr error

	if g.csrf != nil {
		if err := g.csrf.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if g.recorder != nil {
		if err := g.recorder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if g.allowlist != nil {
		if err := g.allowlist.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if g.counters != nil {
		if err := g.counters.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// categoryLimits converts configured categories to limiter limits.
func categoryLimits(cfg *config.GatewayConfig) ratelimit.CategoryLimits {
	limits := make(ratelimit.CategoryLimits, len(cfg.RateLimit.Categories))
	for name, limit := range cfg.RateLimit.Categories {
		limits[name] = ratelimit.Limit{
			Requests: limit.Requests,
			Window:   limit.Window.Duration(),
		}
	}
	return limits
}
