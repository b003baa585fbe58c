package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"contract-analyzer/internal/shared/auth"
	"contract-analyzer/internal/shared/server/respond"
)

const (
	userIDKey      = "userId"
	userEmailKey   = "userEmail"
	userNameKey    = "userName"
	userPictureKey = "userPicture"
	isGuestKey     = "isGuest"

	// GuestPrefix marks user IDs derived from the X-Guest-Id header.
	GuestPrefix = "guest:"
)

// publicPrefixes are served without an identity.
var publicPrefixes = []string{
	"/api/v1/auth/google/",
	"/api/v1/health",
	"/metrics",
}

// Auth validates bearer tokens or guest headers and stores identity in context.
func Auth(env string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		path := c.Request.URL.Path
		for _, prefix := range publicPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader != "" {
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			token = strings.TrimSpace(token)
			if !ok || token == "" {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}

			claims, err := auth.VerifyJWT(token)
			if err != nil {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}

			c.Set(userIDKey, claims.Sub)
			if claims.Email != "" {
				c.Set(userEmailKey, claims.Email)
			}
			if claims.Name != "" {
				c.Set(userNameKey, claims.Name)
			}
			if claims.Picture != "" {
				c.Set(userPictureKey, claims.Picture)
			}
			c.Set(isGuestKey, false)
			c.Next()
			return
		}

		guestID := strings.TrimSpace(c.GetHeader("X-Guest-Id"))
		if guestID == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "Missing identity", nil)
			return
		}

		c.Set(userIDKey, GuestPrefix+guestID)
		c.Set(isGuestKey, true)
		c.Next()
	}
}

// UserIDFromContext fetches the user ID set by the auth middleware.
func UserIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(userIDKey)
}

// IsGuest reports whether the caller authenticated with a guest header only.
func IsGuest(c *gin.Context) bool {
	if c == nil {
		return true
	}
	if v, ok := c.Get(isGuestKey); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return strings.HasPrefix(UserIDFromContext(c), GuestPrefix)
}

// UserEmailFromContext fetches the user email set by the auth middleware.
func UserEmailFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(userEmailKey)
}

// UserNameFromContext fetches the user name set by the auth middleware.
func UserNameFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(userNameKey)
}

// UserPictureFromContext fetches the user picture set by the auth middleware.
func UserPictureFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(userPictureKey)
}
