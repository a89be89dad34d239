package api

import (
	"crypto/subtle"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware returns a gin middleware that validates bearer tokens
// against the configured token. An empty token disables auth (dev mode);
// the stream and health endpoints are mounted outside this middleware.
func AuthMiddleware(token string) gin.HandlerFunc {
	// Fail loudly at startup if auth is not configured in production.
	if token == "" && os.Getenv("GIN_MODE") == "release" {
		log.Println("[api] SECURITY WARNING: API_AUTH_TOKEN is not set in release mode. " +
			"All protected endpoints are publicly accessible.")
	}

	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing Authorization header",
				"hint":  "Use: Authorization: Bearer <API_AUTH_TOKEN>",
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid Authorization header format"})
			c.Abort()
			return
		}

		// Constant-time comparison prevents timing-based token enumeration.
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Next()
	}
}
