package middleware

import (
	"fmt"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/secgate-io/secgate/internal/ratelimit"
)

// HeadersConfig holds configuration for the hardening headers middleware.
type HeadersConfig struct {
	// XFrameOptions controls framing. Defaults to "DENY".
	XFrameOptions string

	// XContentTypeOptions controls MIME sniffing. Defaults to "nosniff".
	XContentTypeOptions string

	// ReferrerPolicy controls the Referer header sent by browsers.
	ReferrerPolicy string

	// PermissionsPolicy restricts browser features.
	PermissionsPolicy string

	// CustomHeaders are additional headers applied after the defaults.
	CustomHeaders map[string]string
}

// DefaultHeadersConfig returns a HeadersConfig with restrictive defaults.
func DefaultHeadersConfig() *HeadersConfig {
	return &HeadersConfig{
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "strict-origin-when-cross-origin",
		PermissionsPolicy:   "geolocation=(), microphone=(), camera=()",
	}
}

// HardeningHeaders returns a middleware that applies browser hardening
// headers to every response.
func HardeningHeaders() gin.HandlerFunc {
	return HardeningHeadersWithConfig(DefaultHeadersConfig())
}

// HardeningHeadersWithConfig returns a hardening headers middleware with
// custom configuration.
func HardeningHeadersWithConfig(config *HeadersConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultHeadersConfig()
	}

	return func(c *gin.Context) {
		applyHardeningHeaders(c, config)
		c.Next()
	}
}

// applyHardeningHeaders sets the hardening headers on the response.
func applyHardeningHeaders(c *gin.Context, config *HeadersConfig) {
	if config.XContentTypeOptions != "" {
		c.Header("X-Content-Type-Options", config.XContentTypeOptions)
	}
	if config.XFrameOptions != "" {
		c.Header("X-Frame-Options", config.XFrameOptions)
	}
	if config.ReferrerPolicy != "" {
		c.Header("Referrer-Policy", config.ReferrerPolicy)
	}
	if config.PermissionsPolicy != "" {
		c.Header("Permissions-Policy", config.PermissionsPolicy)
	}
	for name, value := range config.CustomHeaders {
		c.Header(name, value)
	}
}

// setRateLimitHeaders exposes the current rate limit state to the client.
func setRateLimitHeaders(c *gin.Context, result *ratelimit.Result) {
	if result == nil {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", fmt.Sprintf("%.0f", math.Ceil(result.ResetAfter.Seconds())))
	if !result.Allowed && result.RetryAfter > 0 {
		c.Header("Retry-After", fmt.Sprintf("%.0f", math.Ceil(result.RetryAfter.Seconds())))
	}
}
