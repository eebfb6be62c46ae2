package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/certguard/certguard/internal/blacklist"
	"github.com/certguard/certguard/internal/identity"
	"github.com/certguard/certguard/internal/users"
)

// BlacklistHandler manages blacklisted issuing institutions.
type BlacklistHandler struct {
	store  blacklist.Store
	tokens *identity.TokenIssuer // nil = open mode
	logger *zap.Logger
}

// NewBlacklistHandler creates a BlacklistHandler.
func NewBlacklistHandler(store blacklist.Store, tokens *identity.TokenIssuer, logger *zap.Logger) *BlacklistHandler {
	return &BlacklistHandler{store: store, tokens: tokens, logger: logger}
}

// Register mounts the blacklist routes on the given router group.
func (h *BlacklistHandler) Register(rg *gin.RouterGroup) {
	b := rg.Group("/blacklist", requireRoles(h.tokens, users.RoleAdmin))
	{
		b.GET("", h.List)
		b.POST("", h.Add)
		b.POST("/revoke", h.Revoke)
	}
}

type blacklistRequest struct {
	EntityID string `json:"entityId" binding:"required"`
	Reason   string `json:"reason"`
}

// Add handles POST /blacklist.
func (h *BlacklistHandler) Add(c *gin.Context) {
	var req blacklistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entityId is required"})
		return
	}

	entry, err := h.store.Add(c.Request.Context(), req.EntityID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, blacklist.ErrAlreadyBlacklisted):
			c.JSON(http.StatusConflict, gin.H{"error": "This entity is already blacklisted."})
		case errors.Is(err, blacklist.ErrInvalidEntity):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("blacklist add", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update blacklist"})
		}
		return
	}
	h.logger.Info("entity blacklisted", zap.String("entity", entry.EntityID), zap.String("reason", entry.Reason))
	c.JSON(http.StatusCreated, entry)
}

type revokeRequest struct {
	EntityID string `json:"entityId" binding:"required"`
}

// Revoke handles POST /blacklist/revoke.
func (h *BlacklistHandler) Revoke(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entityId is required"})
		return
	}

	if err := h.store.Revoke(c.Request.Context(), req.EntityID); err != nil {
		switch {
		case errors.Is(err, blacklist.ErrNotBlacklisted):
			c.JSON(http.StatusNotFound, gin.H{"error": "This entity is not blacklisted."})
		case errors.Is(err, blacklist.ErrInvalidEntity):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("blacklist revoke", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update blacklist"})
		}
		return
	}
	h.logger.Info("blacklist entry revoked", zap.String("entity", req.EntityID))
	c.JSON(http.StatusOK, gin.H{"entityId": req.EntityID, "status": blacklist.StatusRevoked})
}

// List handles GET /blacklist?status=active|revoked.
func (h *BlacklistHandler) List(c *gin.Context) {
	status := blacklist.Status(c.Query("status"))
	if status != "" && status != blacklist.StatusActive && status != blacklist.StatusRevoked {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be active or revoked"})
		return
	}

	entries, err := h.store.List(c.Request.Context(), status)
	if err != nil {
		h.logger.Error("blacklist list", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query blacklist"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}
