// Package middleware provides the gin middleware that makes up the
// security gateway pipeline: client identity resolution, rate limiting,
// hardening headers, threat scanning, CSRF enforcement, suspicious
// activity detection, and the IP allow-list gate for privileged routes.
package middleware

import "github.com/gin-gonic/gin"

// Context keys set by the gateway for downstream handlers.
const (
	// ContextKeyClientIP holds the resolved client IP string.
	ContextKeyClientIP = "secgate.clientIP"

	// ContextKeyViaProxy holds whether the forwarding header was honored.
	ContextKeyViaProxy = "secgate.viaTrustedProxy"

	// ContextKeyPrincipal holds the *auth.Principal of a verified bearer
	// credential.
	ContextKeyPrincipal = "secgate.principal"
)

// GetClientIP returns the client IP resolved by the gateway, or "" when
// the gateway has not run for this request.
func GetClientIP(c *gin.Context) string {
	if v, ok := c.Get(ContextKeyClientIP); ok {
		if ip, ok := v.(string); ok {
			return ip
		}
	}
	return ""
}
