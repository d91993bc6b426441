package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// userKey is the gin context key holding the authenticated user ID.
const userKey = "auth_user_id"

// usernameKey is the gin context key holding the authenticated username.
const usernameKey = "auth_username"

// Middleware returns a gin handler that requires a valid Bearer token
// and stores the caller's identity in the request context.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "missing authorization header"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid authorization header"})
			return
		}

		claims, err := m.VerifyToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid or expired token"})
			return
		}

		c.Set(userKey, claims.UserID)
		c.Set(usernameKey, claims.Username)
		c.Next()
	}
}

// UserID extracts the authenticated user ID from the gin context.
// Returns 0 when the request is not authenticated.
func UserID(c *gin.Context) int64 {
	if v, ok := c.Get(userKey); ok {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}

// Username extracts the authenticated username from the gin context.
func Username(c *gin.Context) string {
	if v, ok := c.Get(usernameKey); ok {
		if name, ok := v.(string); ok {
			return name
		}
	}
	return ""
}
