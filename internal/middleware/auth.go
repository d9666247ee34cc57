package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"medical-dictation-server/internal/access"
	"medical-dictation-server/internal/config"
	"medical-dictation-server/internal/models"
	"medical-dictation-server/internal/utils"
)

const actorKey = "actor"

// AuthMiddleware creates a middleware for JWT authentication. The user is
// reloaded on every request so deactivated accounts lose access at once.
func AuthMiddleware(cfg *config.Config, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			utils.Unauthorized(c, "Invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(parts[1], cfg.JWTSecret)
		if err != nil {
			utils.Unauthorized(c, "Invalid token: "+err.Error())
			c.Abort()
			return
		}

		var user models.User
		if err := db.WithContext(c.Request.Context()).First(&user, "id = ?", claims.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.Unauthorized(c, "User no longer exists")
			} else {
				utils.InternalServerError(c, "Database error: "+err.Error())
			}
			c.Abort()
			return
		}
		if !user.IsActive {
			utils.Forbidden(c, "Account is inactive")
			c.Abort()
			return
		}

		c.Set("userID", user.ID)
		c.Set("userRole", user.Role)
		c.Set(actorKey, access.ActorFromUser(&user))

		c.Next()
	}
}

// RoleAuthMiddleware creates a middleware for role-based authorization.
// Privileged users always pass. It should be used *after* AuthMiddleware.
func RoleAuthMiddleware(allowedRoles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			utils.InternalServerError(c, "User not found in context. AuthMiddleware might be missing.")
			c.Abort()
			return
		}

		isAllowed := actor.Privileged()
		for _, allowedRole := range allowedRoles {
			if actor.Role == allowedRole {
				isAllowed = true
				break
			}
		}

		if !isAllowed {
			utils.Forbidden(c, "You do not have permission to access this resource.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// PrivilegedMiddleware only lets admins and superusers through.
func PrivilegedMiddleware() gin.HandlerFunc {
	return RoleAuthMiddleware()
}

// CurrentActor returns the authenticated actor set by AuthMiddleware.
func CurrentActor(c *gin.Context) (access.Actor, bool) {
	v, exists := c.Get(actorKey)
	if !exists {
		return access.Actor{}, false
	}
	actor, ok := v.(access.Actor)
	return actor, ok
}

// Helper function to get user ID from context
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userID, exists := c.Get("userID")
	if !exists {
		return "", false
	}
	idStr, ok := userID.(string)
	return idStr, ok
}
