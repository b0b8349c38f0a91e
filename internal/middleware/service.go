package middleware

import (
	"crypto/subtle" // Constant-time comparison
	"net/http"      // HTTP status codes

	"github.com/gin-gonic/gin" // Gin web framework
)

// ServiceSecretMiddleware gates the webhook/admin surface behind a shared
// secret. The payment and identity glue present it in X-Service-Secret; the
// service has no user roles, so there is no role check to make.
func ServiceSecretMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Refuse everything when no secret is configured
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Service surface disabled"})
			return
		}
		given := c.GetHeader("X-Service-Secret") // Secret presented by the caller
		// Constant-time comparison against the configured secret
		if subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next() // Proceed to the next handler
	}
}
