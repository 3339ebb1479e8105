package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/secgate-io/secgate/internal/audit"
	"github.com/secgate-io/secgate/internal/auth"
	"github.com/secgate-io/secgate/internal/clientip"
	"github.com/secgate-io/secgate/internal/csrf"
	"github.com/secgate-io/secgate/internal/ratelimit"
	"github.com/secgate-io/secgate/internal/threatscan"
)

// DefaultMaxBodyBytes caps request bodies inspected and accepted by the
// gateway.
const DefaultMaxBodyBytes int64 = 1 << 20 // 1 MiB

// timeNow is a seam for tests that exercise token expiry.
var timeNow = time.Now

// deniedMessage is the single client-facing rejection message. Rejections
// never disclose which check failed.
const deniedMessage = "request rejected"

// GatewayConfig wires the security planes into the gateway pipeline. All
// planes except Resolver are optional: a missing plane is skipped with a
// startup warning rather than failing the request path.
type GatewayConfig struct {
	// Resolver resolves the client identity. Required.
	Resolver *clientip.Resolver

	// Limiter enforces per-identity, per-category rate limits.
	Limiter *ratelimit.CategoryLimiter

	// CSRF issues and validates anti-forgery tokens.
	CSRF *csrf.Service

	// Scanner matches request content against threat signatures.
	Scanner *threatscan.Scanner

	// Detector flags reconnaissance traffic for auditing.
	Detector *SuspicionDetector

	// Audit records security events. Defaults to a no-op recorder.
	Audit audit.Recorder

	// Verifier verifies bearer credentials. When nil, requests carrying a
	// bearer credential are CSRF-exempt without verification.
	Verifier *auth.Verifier

	// Headers configures the hardening headers applied to responses.
	Headers *HeadersConfig

	// ExcludedPaths are path prefixes the pipeline skips entirely.
	ExcludedPaths []string

	// LoginPaths are path prefixes rate limited under the login category.
	LoginPaths []string

	// MaxBodyBytes caps the accepted request body size. Zero means
	// DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// SecureCookies forces the Secure flag on issued cookies even when the
	// request arrived over plain HTTP (behind a TLS-terminating proxy).
	SecureCookies bool

	// Logger is the gateway's local logger.
	Logger *zap.Logger
}

// SecurityGateway returns the middleware that runs every request through
// the security pipeline. The pipeline order is fixed: path exclusion,
// identity resolution, rate limiting, hardening headers, threat scanning,
// body size enforcement, CSRF, then advisory suspicion detection.
func SecurityGateway(config *GatewayConfig) gin.HandlerFunc {
	if config == nil {
		config = &GatewayConfig{}
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Audit == nil {
		config.Audit = audit.NewNoopRecorder()
	}
	if config.Resolver == nil {
		config.Logger.Warn("security gateway started without a client IP resolver, peer addresses used as-is")
		config.Resolver = clientip.NewResolver(nil)
	}
	if config.Headers == nil {
		config.Headers = DefaultHeadersConfig()
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	for plane, present := range map[string]bool{
		"rate limiting":   config.Limiter != nil,
		"csrf protection": config.CSRF != nil,
		"threat scanning": config.Scanner != nil,
	} {
		if !present {
			config.Logger.Warn("security plane not configured, requests pass it unchecked",
				zap.String("plane", plane))
		}
	}

	return func(c *gin.Context) {
		defer recoverGateway(c, config)

		if isExcludedPath(c.Request.URL.Path, config.ExcludedPaths) {
			c.Next()
			return
		}

		identity := config.Resolver.ResolveRequest(c.Request)
		c.Set(ContextKeyClientIP, identity.IP)
		c.Set(ContextKeyViaProxy, identity.ViaTrustedProxy)

		if !checkRateLimit(c, config, identity) {
			return
		}

		applyHardeningHeaders(c, config.Headers)

		if !scanRequest(c, config, identity) {
			return
		}

		if !checkBodySize(c, config, identity) {
			return
		}

		if !enforceCSRF(c, config, identity) {
			return
		}

		detectSuspicion(c, config, identity)

		c.Next()
	}
}

// recoverGateway converts a pipeline panic into an audited system error
// and a generic rejection. Failing closed here is deliberate: a broken
// check must not wave traffic through.
func recoverGateway(c *gin.Context, config *GatewayConfig) {
	rec := recover()
	if rec == nil {
		return
	}

	config.Logger.Error("security gateway panic",
		zap.Any("panic", rec),
		zap.String("path", c.Request.URL.Path),
		zap.ByteString("stack", debug.Stack()),
	)

	event := audit.NewEvent(audit.EventSystemError, GetClientIP(c), c.Request.URL.Path, c.Request.Method)
	event.WithMetadata("reason", "pipeline panic")
	config.Audit.Record(c.Request.Context(), event)

	if !c.Writer.Written() {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": deniedMessage})
	} else {
		c.Abort()
	}
}

// isExcludedPath reports whether the path matches an excluded prefix.
func isExcludedPath(path string, excluded []string) bool {
	for _, prefix := range excluded {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// checkRateLimit enforces the per-identity limit for the request's
// category. Store failures fail open: availability wins over strictness
// when the counter backend is down, and the failure is logged.
func checkRateLimit(c *gin.Context, config *GatewayConfig, identity clientip.Identity) bool {
	if config.Limiter == nil {
		return true
	}

	category := ratelimit.CategoryGeneral
	for _, prefix := range config.LoginPaths {
		if strings.HasPrefix(c.Request.URL.Path, prefix) {
			category = ratelimit.CategoryLogin
			break
		}
	}

	result, err := config.Limiter.Check(c.Request.Context(), identity.IP, category)
	if err != nil {
		config.Logger.Warn("rate limit check failed, allowing request",
			zap.String("identity", identity.IP),
			zap.String("category", category),
			zap.Error(err),
		)
		return true
	}

	setRateLimitHeaders(c, result)

	if result.Allowed {
		return true
	}

	event := audit.NewEvent(audit.EventRateLimitExceeded, identity.IP, c.Request.URL.Path, c.Request.Method)
	event.WithMetadata("category", category)
	config.Audit.Record(c.Request.Context(), event)

	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": deniedMessage})
	return false
}

// scanRequest runs the threat scanner over the request path, query
// parameters, and body. The first matching signature blocks the request.
func scanRequest(c *gin.Context, config *GatewayConfig, identity clientip.Identity) bool {
	if config.Scanner == nil {
		return true
	}

	if path, err := url.PathUnescape(c.Request.URL.Path); err == nil {
		if !scanValue(c, config, identity, "path", path) {
			return false
		}
	}

	for key, values := range c.Request.URL.Query() {
		if !scanValue(c, config, identity, "query:"+key, key) {
			return false
		}
		for _, value := range values {
			if !scanValue(c, config, identity, "query:"+key, value) {
				return false
			}
		}
	}

	return scanBody(c, config, identity)
}

// scanBody inspects the request body when its size permits, restoring it
// for downstream handlers. Oversized bodies are left to the size check.
func scanBody(c *gin.Context, config *GatewayConfig, identity clientip.Identity) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if c.Request.ContentLength > config.MaxBodyBytes {
		return true
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, config.MaxBodyBytes+1))
	if err != nil {
		config.Logger.Warn("failed to read request body for scanning", zap.Error(err))
		return true
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	return scanValue(c, config, identity, "body", string(body))
}

// scanValue blocks the request when the value matches a signature.
func scanValue(c *gin.Context, config *GatewayConfig, identity clientip.Identity, location, value string) bool {
	signals := config.Scanner.Scan(value)
	if len(signals) == 0 {
		return true
	}

	signal := signals[0]
	event := audit.NewEvent(eventTypeForKind(signal.Kind), identity.IP, c.Request.URL.Path, c.Request.Method)
	event.WithMetadata("signature", signal.Signature.Name)
	event.WithMetadata("location", location)
	event.WithMetadata("matched", threatscan.SanitizeValue(value))
	config.Audit.Record(c.Request.Context(), event)

	config.Logger.Warn("threat signature matched",
		zap.String("identity", identity.IP),
		zap.String("signature", signal.Signature.Name),
		zap.String("location", location),
	)

	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": deniedMessage})
	return false
}

// eventTypeForKind maps a signature kind to its audit event type.
func eventTypeForKind(kind threatscan.Kind) audit.EventType {
	switch kind {
	case threatscan.KindSQLInjection:
		return audit.EventSQLInjectionAttempt
	case threatscan.KindXSS:
		return audit.EventXSSAttempt
	default:
		return audit.EventSuspiciousActivity
	}
}

// checkBodySize rejects bodies over the configured limit.
func checkBodySize(c *gin.Context, config *GatewayConfig, identity clientip.Identity) bool {
	if c.Request.ContentLength <= config.MaxBodyBytes {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.MaxBodyBytes)
		return true
	}

	event := audit.NewEvent(audit.EventSuspiciousActivity, identity.IP, c.Request.URL.Path, c.Request.Method)
	event.WithMetadata("reason", "body too large")
	config.Audit.Record(c.Request.Context(), event)

	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": deniedMessage})
	return false
}

// safeMethods are exempt from CSRF validation; they receive a token
// cookie instead.
var safeMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodOptions: {},
	http.MethodTrace:   {},
}

// enforceCSRF issues tokens on safe methods and validates the
// double-submit pair on state-changing ones. Bearer-authenticated
// requests are exempt: a cross-site attacker cannot attach the header.
func enforceCSRF(c *gin.Context, config *GatewayConfig, identity clientip.Identity) bool {
	if config.CSRF == nil {
		return true
	}

	if auth.HasBearerCredential(c.Request) {
		if config.Verifier == nil {
			return true
		}
		principal, err := config.Verifier.VerifyRequest(c.Request)
		if err != nil {
			event := audit.NewEvent(audit.EventAccessDenied, identity.IP, c.Request.URL.Path, c.Request.Method)
			event.WithMetadata("reason", "bearer verification failed")
			config.Audit.Record(c.Request.Context(), event)

			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": deniedMessage})
			return false
		}
		if principal != nil {
			c.Set(ContextKeyPrincipal, principal)
		}
		return true
	}

	sessionID := config.CSRF.SessionID(c.Request, identity.IP)

	if _, safe := safeMethods[c.Request.Method]; safe {
		issueCSRFCookie(c, config, sessionID)
		return true
	}

	result := validateDoubleSubmit(c, config, sessionID)
	if result.Valid {
		return true
	}

	// The rejection carries a fresh token so a client whose first request
	// is state-changing can retry without a prior safe-method request.
	issueCSRFCookie(c, config, sessionID)

	event := audit.NewEvent(audit.EventCSRFFailure, identity.IP, c.Request.URL.Path, c.Request.Method)
	event.WithMetadata("reason", result.Reason)
	config.Audit.Record(c.Request.Context(), event)

	config.Logger.Warn("csrf validation failed",
		zap.String("identity", identity.IP),
		zap.String("reason", result.Reason),
	)

	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": deniedMessage})
	return false
}

// validateDoubleSubmit checks that the cookie and the echoed value agree
// and match the token issued for the session.
func validateDoubleSubmit(c *gin.Context, config *GatewayConfig, sessionID string) csrf.ValidationResult {
	cookieValue := config.CSRF.CookieToken(c.Request)
	if cookieValue == "" {
		return csrf.ValidationResult{Reason: "missing token cookie"}
	}

	submitted := config.CSRF.ExtractToken(c.Request)
	if submitted == "" {
		return csrf.ValidationResult{Reason: "missing token echo"}
	}
	if cookieValue != submitted {
		return csrf.ValidationResult{Reason: "cookie and echo differ"}
	}

	return config.CSRF.ValidateToken(sessionID, submitted)
}

// issueCSRFCookie ensures the session has a live token and sets it in the
// double-submit cookie. The cookie is intentionally readable by scripts.
func issueCSRFCookie(c *gin.Context, config *GatewayConfig, sessionID string) {
	token := config.CSRF.TokenFor(sessionID)
	if token == nil || token.Expired(timeNow()) {
		var err error
		token, err = config.CSRF.GenerateToken(sessionID)
		if err != nil {
			config.Logger.Error("failed to issue csrf token", zap.Error(err))
			return
		}
	}

	secure := config.SecureCookies || c.Request.TLS != nil
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(config.CSRF.CookieName(), token.Value,
		int(config.CSRF.TokenLifetime().Seconds()), "/", "", secure, false)
}

// detectSuspicion audits reconnaissance traffic without blocking it.
func detectSuspicion(c *gin.Context, config *GatewayConfig, identity clientip.Identity) {
	if config.Detector == nil {
		return
	}

	reason := config.Detector.Detect(c.Request)
	if reason == "" {
		return
	}

	event := audit.NewEvent(audit.EventSuspiciousActivity, identity.IP, c.Request.URL.Path, c.Request.Method)
	event.WithMetadata("reason", reason)
	event.WithMetadata("user_agent", threatscan.SanitizeValue(c.Request.UserAgent()))
	config.Audit.Record(c.Request.Context(), event)
}
