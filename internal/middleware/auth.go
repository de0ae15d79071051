package middleware

import (
	"net/http"
	"patient-records-server/internal/config"
	"patient-records-server/internal/models"
	"patient-records-server/internal/utils"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey    = "userID"
	userRoleKey  = "userRole"
	userNameKey  = "userName"
	userEmailKey = "userEmail"
)

// AuthMiddleware creates a middleware for JWT authentication.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.AbortWithError(c, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			utils.AbortWithError(c, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := utils.ValidateToken(parts[1], cfg.JWTSecret)
		if err != nil {
			utils.AbortWithError(c, http.StatusUnauthorized, "Invalid token: "+err.Error())
			return
		}

		// Authorship of notes and orders is taken from these, never from the body.
		c.Set(userIDKey, claims.UserID)
		c.Set(userRoleKey, claims.Role)
		c.Set(userNameKey, claims.Name)
		c.Set(userEmailKey, claims.Email)

		c.Next()
	}
}

// RoleAuthMiddleware creates a middleware for role-based authorization.
// It should be used *after* AuthMiddleware.
func RoleAuthMiddleware(allowedRoles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetUserRoleFromContext(c)
		if !ok {
			utils.AbortWithError(c, http.StatusInternalServerError, "User role not found in context. AuthMiddleware might be missing.")
			return
		}

		for _, allowedRole := range allowedRoles {
			if role == allowedRole {
				c.Next()
				return
			}
		}

		utils.AbortWithError(c, http.StatusForbidden, "You do not have permission to access this resource.")
	}
}

// GetUserIDFromContext returns the authenticated user's id
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	return getString(c, userIDKey)
}

// GetUserRoleFromContext returns the authenticated user's account type
func GetUserRoleFromContext(c *gin.Context) (models.Role, bool) {
	userRole, exists := c.Get(userRoleKey)
	if !exists {
		return "", false
	}
	role, ok := userRole.(models.Role)
	return role, ok
}

func GetUserNameFromContext(c *gin.Context) (string, bool) {
	return getString(c, userNameKey)
}

func GetUserEmailFromContext(c *gin.Context) (string, bool) {
	return getString(c, userEmailKey)
}

func getString(c *gin.Context, key string) (string, bool) {
	v, exists := c.Get(key)
	if !exists {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
