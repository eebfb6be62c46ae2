package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/certguard/certguard/internal/identity"
	"github.com/certguard/certguard/internal/users"
)

// loginSvc is the interface expected by AuthHandler, satisfied by *users.Service.
type loginSvc interface {
	Login(ctx context.Context, email, password string, role users.Role) (*users.User, error)
}

// AuthHandler handles role-checked login.
type AuthHandler struct {
	users  loginSvc
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc loginSvc, tokens *identity.TokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: svc, tokens: tokens, logger: logger}
}

// Register mounts the auth routes on the given router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/login", h.Login)
	if h.tokens != nil {
		rg.GET("/auth/session", identity.RequireSession(h.tokens), h.Session)
	}
}

type loginRequest struct {
	Email    string `json:"email"    binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"     binding:"required"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email, password and role are required"})
		return
	}
	role, err := users.ParseRole(req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := h.users.Login(c.Request.Context(), req.Email, req.Password, role)
	if err != nil {
		var mismatch *users.RoleMismatchError
		switch {
		case errors.Is(err, users.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password."})
		case errors.As(err, &mismatch):
			c.JSON(http.StatusForbidden, gin.H{"error": mismatch.Error()})
		default:
			h.logger.Error("login", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		}
		return
	}

	token, err := h.tokens.Issue(u.ID.String(), u.Email, string(u.Role))
	if err != nil {
		h.logger.Error("issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue session token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": int(h.tokens.TTL().Seconds()),
		"user":       u,
	})
}

// Session handles GET /auth/session, describing the caller's token.
func (h *AuthHandler) Session(c *gin.Context) {
	claims := identity.ClaimsFromCtx(c)
	var expires time.Time
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":    claims.UserID,
		"email":      claims.Email,
		"role":       claims.Role,
		"expires_at": expires,
	})
}

// requireRoles returns the RequireRole middleware when session auth is
// configured, or a no-op middleware in open mode.
func requireRoles(tokens *identity.TokenIssuer, roles ...users.Role) gin.HandlerFunc {
	if tokens == nil {
		return func(c *gin.Context) { c.Next() }
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return identity.RequireRole(tokens, names...)
}
