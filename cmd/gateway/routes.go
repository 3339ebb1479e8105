package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/secgate-io/secgate/internal/allowlist"
	"github.com/secgate-io/secgate/internal/auth"
	"github.com/secgate-io/secgate/internal/middleware"
	"github.com/secgate-io/secgate/internal/util"
)

// registerRoutes mounts the operational endpoints and the allow-list
// management API.
func (a *App) registerRoutes() {
	a.engine.GET("/healthz", a.handleHealth)
	a.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := a.engine.Group("/api/security/allowed-ips")
	api.GET("", a.handleListAllowedIPs)
	api.POST("", a.handleAddAllowedIP)
	api.GET("/stats", a.handleAllowedIPStats)
	api.PATCH("/:id", a.handleUpdateAllowedIP)
	api.DELETE("/:id", a.handleRemoveAllowedIP)
}

// handleHealth reports liveness and whether rate limiting is degraded.
func (a *App) handleHealth(c *gin.Context) {
	status := "ok"
	if a.gateway.Degraded() {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"version": version,
	})
}

// requestPrincipal returns the authenticated principal, or aborts with 401
// when the request has none. The allow-list gate normally populates it;
// this guard covers direct hits on exempted management paths.
func (a *App) requestPrincipal(c *gin.Context) (*auth.Principal, bool) {
	if v, ok := c.Get(middleware.ContextKeyPrincipal); ok {
		if principal, ok := v.(*auth.Principal); ok {
			return principal, true
		}
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	return nil, false
}

type addAllowedIPRequest struct {
	IPAddress   string `json:"ip_address" binding:"required"`
	Description string `json:"description"`
}

func (a *App) handleListAllowedIPs(c *gin.Context) {
	principal, ok := a.requestPrincipal(c)
	if !ok {
		return
	}

	entries, err := a.gateway.Allowlist().List(c.Request.Context(), principal.ID)
	if err != nil {
		a.allowlistError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (a *App) handleAddAllowedIP(c *gin.Context) {
	principal, ok := a.requestPrincipal(c)
	if !ok {
		return
	}

	var req addAllowedIPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ip_address is required"})
		return
	}

	entry, err := a.gateway.Allowlist().Add(c.Request.Context(), principal.ID, req.IPAddress, req.Description)
	if err != nil {
		a.allowlistError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

func (a *App) handleUpdateAllowedIP(c *gin.Context) {
	principal, ok := a.requestPrincipal(c)
	if !ok {
		return
	}

	var patch allowlist.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	entry, err := a.gateway.Allowlist().Update(c.Request.Context(), c.Param("id"), principal.ID, patch)
	if err != nil {
		a.allowlistError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (a *App) handleRemoveAllowedIP(c *gin.Context) {
	principal, ok := a.requestPrincipal(c)
	if !ok {
		return
	}

	if err := a.gateway.Allowlist().Remove(c.Request.Context(), c.Param("id"), principal.ID); err != nil {
		a.allowlistError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *App) handleAllowedIPStats(c *gin.Context) {
	principal, ok := a.requestPrincipal(c)
	if !ok {
		return
	}

	stats, err := a.gateway.Allowlist().Stats(c.Request.Context(), principal.ID)
	if err != nil {
		a.allowlistError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// allowlistError maps store errors to HTTP responses.
func (a *App) allowlistError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrInvalidAddress):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, util.ErrDuplicateEntry):
		c.JSON(http.StatusConflict, gin.H{"error": "address is already allow-listed"})
	case errors.Is(err, util.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
	default:
		a.logger.Error("allowlist operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
