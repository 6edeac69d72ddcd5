package utils

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextUserID is the gin context key holding the verified user id.
const ContextUserID = "user_id"

// AuthMiddleware verifies the bearer JWT and sets the user id on the context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenParts := strings.SplitN(authHeader, " ", 2)
		if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "Bearer") {
			FailKind(c, http.StatusUnauthorized, ErrInvalidToken, "authorization", false)
			c.Abort()
			return
		}
		claims, err := VerifyToken(secret, strings.TrimSpace(tokenParts[1]))
		if err != nil {
			FailKind(c, http.StatusUnauthorized, err, "authorization", false)
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.Subject)
		c.Next()
	}
}

// UserID returns the id set by AuthMiddleware, or "".
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
