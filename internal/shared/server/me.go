package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"contract-analyzer/internal/shared/server/middleware"
	"contract-analyzer/internal/shared/server/respond"
	"contract-analyzer/internal/users"
)

// registerMeRoutes serves /me from token claims when no user store is wired.
// The payload has the same shape as the stored profile.
func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", meFromClaims)
}

func meFromClaims(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
		return
	}
	if middleware.IsGuest(c) {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "login required", nil)
		return
	}

	user := users.User{
		ID:         userID,
		Email:      middleware.UserEmailFromContext(c),
		FullName:   middleware.UserNameFromContext(c),
		PictureURL: middleware.UserPictureFromContext(c),
	}
	respond.JSON(c, http.StatusOK, user.Profile())
}
