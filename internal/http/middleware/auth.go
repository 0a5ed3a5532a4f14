// README: Identity middleware; the gateway validates tokens and forwards the caller's email.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	IdentityHeader = "X-User-Email"
	callerEmailKey = "caller_email"
)

// Auth rejects requests that reached the service without an authenticated identity.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		email := strings.TrimSpace(c.GetHeader(IdentityHeader))
		if email == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authenticated identity"})
			return
		}
		c.Set(callerEmailKey, email)
		c.Next()
	}
}

// CallerEmail returns the identity set by Auth, or "" when the route is unauthenticated.
func CallerEmail(c *gin.Context) string {
	return c.GetString(callerEmailKey)
}
