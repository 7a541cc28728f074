package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// OptionalAuthMiddleware sets userID when a valid Bearer token is present but
// lets the request through either way. Browsing endpoints use it so anonymous
// callers still see public data.
func OptionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		parts := strings.Split(c.GetHeader("Authorization"), " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			if userID, err := ParseToken(parts[1]); err == nil {
				c.Set("userID", userID)
			}
		}
		c.Next()
	}
}
