package usage

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"contract-analyzer/internal/shared/server/middleware"
	"contract-analyzer/internal/shared/server/respond"
	"contract-analyzer/internal/shared/telemetry"
)

// Handler exposes usage endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches usage routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/usage", h.getUsage)
}

func (h *Handler) getUsage(c *gin.Context) {
	ctx := telemetry.WithRequestID(c.Request.Context(), c.GetString("requestId"))
	u := h.Svc.Get(ctx, middleware.UserIDFromContext(c))
	respond.JSON(c, http.StatusOK, gin.H{"contractsAnalyzed": u.ContractsAnalyzed})
}
