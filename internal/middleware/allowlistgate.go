package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/secgate-io/secgate/internal/allowlist"
	"github.com/secgate-io/secgate/internal/audit"
	"github.com/secgate-io/secgate/internal/auth"
	"github.com/secgate-io/secgate/internal/clientip"
)

// AllowlistGateConfig configures the per-principal IP allow-list gate.
type AllowlistGateConfig struct {
	// Store answers allow-list membership queries. Required.
	Store allowlist.Store

	// Resolver resolves the client identity. It must be the same
	// proxy-gated resolver the gateway uses, so the gate and the rest of
	// the pipeline agree on who the caller is.
	Resolver *clientip.Resolver

	// Verifier resolves the request principal from its bearer credential
	// when the gateway has not already done so.
	Verifier *auth.Verifier

	// Audit records access decisions. Defaults to a no-op recorder.
	Audit audit.Recorder

	// PrivilegedPrefixes are the path prefixes the gate protects. A
	// request outside every prefix passes through untouched.
	PrivilegedPrefixes []string

	// ExemptPaths are path prefixes inside the privileged area that skip
	// the gate, typically the endpoints used to obtain credentials.
	ExemptPaths []string

	// Logger is the gate's local logger.
	Logger *zap.Logger
}

// IPAllowlistGate returns a middleware that restricts privileged routes to
// source addresses on the caller's allow-list. The gate fails closed: a
// missing principal or a store failure denies the request.
func IPAllowlistGate(config *AllowlistGateConfig) gin.HandlerFunc {
	if config == nil || config.Store == nil {
		panic("allowlist gate requires a store")
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Audit == nil {
		config.Audit = audit.NewNoopRecorder()
	}
	if config.Resolver == nil {
		config.Logger.Warn("allowlist gate started without a client IP resolver, peer addresses used as-is")
		config.Resolver = clientip.NewResolver(nil)
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path

		if !hasPrefix(path, config.PrivilegedPrefixes) || hasPrefix(path, config.ExemptPaths) {
			c.Next()
			return
		}

		identity := resolveIdentity(c, config.Resolver)

		principal := gatePrincipal(c, config)
		if principal == nil {
			// A privileged route without an authenticated principal is a
			// routing misconfiguration, not a client error.
			config.Logger.Error("allowlist gate reached without a principal",
				zap.String("path", path),
			)
			event := audit.NewEvent(audit.EventSystemError, identity.IP, path, c.Request.Method)
			event.WithMetadata("reason", "missing principal on privileged route")
			config.Audit.Record(c.Request.Context(), event)

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		allowed, err := config.Store.IsAllowed(c.Request.Context(), principal.ID, identity.IP)
		if err != nil {
			config.Logger.Error("allowlist lookup failed",
				zap.String("principal", principal.ID),
				zap.String("ip", identity.IP),
				zap.Error(err),
			)
			event := audit.NewEvent(audit.EventSystemError, identity.IP, path, c.Request.Method)
			event.WithMetadata("reason", "allowlist lookup failed")
			config.Audit.Record(c.Request.Context(), event)

			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": deniedMessage})
			return
		}

		if !allowed {
			event := audit.NewEvent(audit.EventAccessDenied, identity.IP, path, c.Request.Method)
			event.WithMetadata("principal", principal.ID)
			config.Audit.Record(c.Request.Context(), event)

			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "access from this address is not permitted",
			})
			return
		}

		c.Next()
	}
}

// resolveIdentity reuses the identity the gateway resolved when present,
// falling back to a fresh resolution.
func resolveIdentity(c *gin.Context, resolver *clientip.Resolver) clientip.Identity {
	if ip := GetClientIP(c); ip != "" {
		via := false
		if v, ok := c.Get(ContextKeyViaProxy); ok {
			via, _ = v.(bool)
		}
		return clientip.Identity{IP: ip, ViaTrustedProxy: via}
	}
	return resolver.ResolveRequest(c.Request)
}

// gatePrincipal returns the request principal from the gateway's context
// entry or by verifying the bearer credential directly.
func gatePrincipal(c *gin.Context, config *AllowlistGateConfig) *auth.Principal {
	if v, ok := c.Get(ContextKeyPrincipal); ok {
		if principal, ok := v.(*auth.Principal); ok {
			return principal
		}
	}
	if config.Verifier == nil {
		return nil
	}
	principal, err := config.Verifier.VerifyRequest(c.Request)
	if err != nil || principal == nil {
		return nil
	}
	c.Set(ContextKeyPrincipal, principal)
	return principal
}

// hasPrefix reports whether the path starts with any of the prefixes.
func hasPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
