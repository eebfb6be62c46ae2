package identity

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxSessionClaims = "certguard_session_claims"

// RequireSession returns a Gin middleware that enforces a valid Bearer
// session token and injects its *SessionClaims into the context.
func RequireSession(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, tokens)
		if !ok {
			return
		}
		c.Set(ctxSessionClaims, claims)
		c.Next()
	}
}

// RequireRole is RequireSession restricted to the given roles.
func RequireRole(tokens *TokenIssuer, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, tokens)
		if !ok {
			return
		}
		if !slices.Contains(roles, claims.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "role " + claims.Role + " may not access this resource",
			})
			return
		}
		c.Set(ctxSessionClaims, claims)
		c.Next()
	}
}

func authenticate(c *gin.Context, tokens *TokenIssuer) (*SessionClaims, bool) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Bearer session token required",
		})
		return nil, false
	}
	claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid session token: " + err.Error(),
		})
		return nil, false
	}
	return claims, true
}

// ClaimsFromCtx retrieves the claims injected by RequireSession or RequireRole.
// Returns nil if the route is unauthenticated.
func ClaimsFromCtx(c *gin.Context) *SessionClaims {
	v, _ := c.Get(ctxSessionClaims)
	claims, _ := v.(*SessionClaims)
	return claims
}
