package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey string

const userContextKey contextKey = "storefrontUser"

// ContextUser is the authenticated principal attached to the request
// context. Downstream resource handlers consume ID and Role.
type ContextUser struct {
	ID    uuid.UUID
	Email string
	Role  Role
}

// Middleware validates the bearer token and resolves the full user record,
// so tokens issued for since-deleted accounts are rejected. On success the
// identity and role are attached to the request context.
func Middleware(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorBody{Message: "No token provided", Code: "AUTH_ERROR"}})
			return
		}

		user, err := service.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, ErrStoreUnavailable) {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": errorBody{Message: "Service temporarily unavailable", Code: "SERVER_ERROR"}})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorBody{Message: "Invalid or expired token", Code: "AUTH_ERROR"}})
			return
		}

		c.Set(string(userContextKey), ContextUser{
			ID:    user.ID,
			Email: user.Email,
			Role:  user.Role,
		})

		c.Next()
	}
}

// RequireAdmin rejects non-admin users. It must run after Middleware has
// resolved the identity.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok || user.Role != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": errorBody{Message: "Admin access required", Code: "FORBIDDEN"}})
			return
		}
		c.Next()
	}
}

// CurrentUser extracts the authenticated user from the context.
func CurrentUser(c *gin.Context) (ContextUser, bool) {
	value, exists := c.Get(string(userContextKey))
	if !exists {
		return ContextUser{}, false
	}
	user, ok := value.(ContextUser)
	return user, ok
}

func extractBearerToken(header string) string {
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
