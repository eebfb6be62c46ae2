package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/certguard/certguard/internal/identity"
	"github.com/certguard/certguard/internal/users"
	"github.com/certguard/certguard/internal/verifylog"
)

const (
	defaultActivityLimit = 20
	defaultStatsDays     = 7
	maxStatsDays         = 90
)

// DashboardHandler serves the admin views over the verification log.
type DashboardHandler struct {
	log    verifylog.Store
	tokens *identity.TokenIssuer // nil = open mode
	logger *zap.Logger
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(log verifylog.Store, tokens *identity.TokenIssuer, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{log: log, tokens: tokens, logger: logger}
}

// Register mounts the dashboard routes on the given router group.
func (h *DashboardHandler) Register(rg *gin.RouterGroup) {
	d := rg.Group("/dashboard", requireRoles(h.tokens, users.RoleAdmin))
	{
		d.GET("/alerts", h.Alerts)
		d.GET("/activity", h.Activity)
		d.GET("/stats", h.Stats)
	}
}

// Alerts handles GET /dashboard/alerts, the latest Invalid verdicts.
func (h *DashboardHandler) Alerts(c *gin.Context) {
	limit, ok := intQuery(c, "limit", verifylog.DefaultAlertLimit)
	if !ok {
		return
	}
	entries, err := h.log.ForgeryAlerts(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("dashboard alerts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query verification log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": entries, "count": len(entries)})
}

// Activity handles GET /dashboard/activity, the latest verification attempts.
func (h *DashboardHandler) Activity(c *gin.Context) {
	limit, ok := intQuery(c, "limit", defaultActivityLimit)
	if !ok {
		return
	}
	entries, err := h.log.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("dashboard activity", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query verification log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// Stats handles GET /dashboard/stats?days=N.
func (h *DashboardHandler) Stats(c *gin.Context) {
	days, ok := intQuery(c, "days", defaultStatsDays)
	if !ok {
		return
	}
	if days > maxStatsDays {
		days = maxStatsDays
	}
	stats, err := h.log.Stats(c.Request.Context(), days)
	if err != nil {
		h.logger.Error("dashboard stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query verification log"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// intQuery reads a positive integer query parameter, writing a 400 response
// and returning false when it is malformed.
func intQuery(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be a positive integer"})
		return 0, false
	}
	return n, true
}
