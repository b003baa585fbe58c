package documents

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"contract-analyzer/internal/apperr"
	"contract-analyzer/internal/shared/server/middleware"
	"contract-analyzer/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc      *Service
	MaxBytes int64
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, maxBytes int64) *Handler {
	return &Handler{Svc: svc, MaxBytes: maxBytes}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.upload)
	rg.GET("/documents/current", h.current)
	rg.GET("/documents", h.list)
}

func (h *Handler) upload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	up, err := ReadUpload(c, h.MaxBytes)
	if err != nil {
		h.writeError(c, err)
		return
	}

	doc, err := h.Svc.Upload(c.Request.Context(), userID, up.FileName, up.MimeType, up.Data)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Set("documentId", doc.ID)
	respond.JSON(c, http.StatusCreated, toResponse(doc))
}

func (h *Handler) current(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	doc, err := h.Svc.Current(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, toResponse(doc))
}

func (h *Handler) list(c *gin.Context) {
	if middleware.IsGuest(c) {
		respond.Error(c, http.StatusUnauthorized, "login_required", "Login required to view history", nil)
		return
	}
	userID := middleware.UserIDFromContext(c)
	limit, offset := Page(c, 20, 50)

	docs, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		resp = append(resp, toResponse(doc))
	}
	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	if _, ok := apperr.As(err); ok {
		respond.AppError(c, err)
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "document request failed", nil)
	}
}

// Page reads limit/offset query parameters, clamping limit to [0, max].
func Page(c *gin.Context, def, max int) (int, int) {
	limit := def
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}
	if limit > max {
		limit = max
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
