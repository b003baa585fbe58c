package users

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"contract-analyzer/internal/shared/server/middleware"
	"contract-analyzer/internal/shared/server/respond"
)

// Handler serves the signed-in user's profile.
type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", h.me)
}

func (h *Handler) me(c *gin.Context) {
	if h.Svc == nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "service unavailable", nil)
		return
	}
	if middleware.IsGuest(c) {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "login required", nil)
		return
	}
	userID := middleware.UserIDFromContext(c)
	user, err := h.Svc.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "user not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load user", nil)
		return
	}
	respond.JSON(c, http.StatusOK, user.Profile())
}
