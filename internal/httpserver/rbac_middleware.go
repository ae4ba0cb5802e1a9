package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"frontsync/pkg/rbac"
)

// RequirePermission 必须放在 AuthMiddleware 之后
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ctxRole)
		if role == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			c.Abort()
			return
		}

		if err := rbac.CheckPermission(c.GetString(ctxSubject), role, permission); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Next()
	}
}
