package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const claimsKey = "auth_claims"

// RequireAuth rejects requests without a valid bearer access token
func RequireAuth(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := bearerClaims(c, m)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication credentials were not provided or are invalid.",
			})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// OptionalAuth attaches claims when a valid token is present and never rejects
func OptionalAuth(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := bearerClaims(c, m); ok {
			c.Set(claimsKey, claims)
		}
		c.Next()
	}
}

// CurrentClaims returns the claims attached by RequireAuth or OptionalAuth
func CurrentClaims(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

func bearerClaims(c *gin.Context, m *Manager) (*Claims, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, false
	}
	raw := header
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		raw = parts[1]
	}
	claims, err := m.Parse(strings.TrimSpace(raw), TokenAccess)
	if err != nil {
		return nil, false
	}
	return claims, true
}
