package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// principalKey is the gin context key under which Auth stores the resolved
// principal ID.
const principalKey = "principal"

// Auth returns an API key authentication middleware. apiKeys maps each key
// to the principal it authenticates; requests without a known key are
// rejected before reaching any handler.
func Auth(apiKeys map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			// Also try Authorization header
			auth := c.GetHeader("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "API key is missing"})
			c.Abort()
			return
		}

		principal, ok := apiKeys[key]
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			c.Abort()
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// Principal returns the principal ID resolved by Auth for this request.
func Principal(c *gin.Context) string {
	return c.GetString(principalKey)
}
