package analyses

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"contract-analyzer/internal/apperr"
	"contract-analyzer/internal/documents"
	"contract-analyzer/internal/export"
	"contract-analyzer/internal/llm/proxy"
	"contract-analyzer/internal/shared/server/middleware"
	"contract-analyzer/internal/shared/server/respond"
	"contract-analyzer/internal/shared/telemetry"
)

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc      *Service
	MaxBytes int64
	polls    *pollLimiter
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, maxBytes int64) *Handler {
	return &Handler{Svc: svc, MaxBytes: maxBytes, polls: newPollLimiter(pollLimitWindow, nil)}
}

// RegisterRoutes attaches the analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	h.RegisterAnalyzeRoutes(rg)
	h.RegisterReadRoutes(rg)
}

// RegisterReadRoutes attaches the status, history and export routes.
func (h *Handler) RegisterReadRoutes(rg *gin.RouterGroup) {
	rg.GET("/analyses", h.listAnalyses)
	rg.GET("/analyses/:id", h.getAnalysis)
	rg.GET("/analyses/:id/export", h.exportAnalysis)
}

// RegisterAnalyzeRoutes attaches only the routes that call the model, so
// they can sit behind their own rate limit.
func (h *Handler) RegisterAnalyzeRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyze", h.analyzeUpload)
	rg.POST("/documents/:id/analyze", h.startAnalysis)
}

func (h *Handler) requestContext(c *gin.Context) context.Context {
	ctx := telemetry.WithRequestID(c.Request.Context(), c.GetString("requestId"))
	if token, ok := strings.CutPrefix(strings.TrimSpace(c.GetHeader("Authorization")), "Bearer "); ok {
		ctx = proxy.WithToken(ctx, token)
	}
	return ctx
}

func (h *Handler) analyzeUpload(c *gin.Context) {
	up, err := documents.ReadUpload(c, h.MaxBytes)
	if err != nil {
		writeError(c, err)
		return
	}
	result, err := h.Svc.AnalyzeUpload(h.requestContext(c), middleware.UserIDFromContext(c), up)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, result)
}

func (h *Handler) startAnalysis(c *gin.Context) {
	documentID := c.Param("id")
	if documentID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "document id is required", nil)
		return
	}
	analysis, err := h.Svc.Create(h.requestContext(c), middleware.UserIDFromContext(c), documentID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		default:
			writeError(c, err)
		}
		return
	}
	respond.JSON(c, http.StatusAccepted, gin.H{
		"analysisId": analysis.ID,
		"status":     analysis.Status,
	})
}

func (h *Handler) getAnalysis(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	analysisID := c.Param("id")
	if !h.polls.Allow(userID, analysisID) {
		c.Header("Retry-After", strconv.Itoa(h.polls.RetryAfterSeconds()))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "Polling too frequently", nil)
		return
	}

	analysis, err := h.Svc.Get(c.Request.Context(), userID, analysisID)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, statusBody(analysis))
}

func (h *Handler) listAnalyses(c *gin.Context) {
	if middleware.IsGuest(c) {
		respond.Error(c, http.StatusUnauthorized, "login_required", "Login required to view history", nil)
		return
	}
	limit, offset := documents.Page(c, 20, 50)
	analyses, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}

	items := make([]gin.H, 0, len(analyses))
	for _, a := range analyses {
		item := gin.H{
			"id":        a.ID,
			"status":    a.Status,
			"fileName":  a.FileName,
			"fileSize":  a.FileSize,
			"createdAt": a.CreatedAt,
		}
		if a.DocumentID != "" {
			item["documentId"] = a.DocumentID
		}
		if a.Result != nil {
			item["riskLevel"] = a.Result.RiskLevel
			item["contractType"] = a.Result.ContractType
		}
		items = append(items, item)
	}
	respond.OK(c, gin.H{"items": items, "limit": limit, "offset": offset})
}

func (h *Handler) exportAnalysis(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "format must be json or xlsx", nil)
		return
	}
	analysis, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if analysis.Status != StatusCompleted || analysis.Result == nil {
		respond.Error(c, http.StatusConflict, "not_ready", "analysis is not completed", gin.H{"status": analysis.Status})
		return
	}

	var buf bytes.Buffer
	if format == export.FormatXLSX {
		err = export.WriteXLSX(&buf, analysis.Result.ExportRows())
	} else {
		err = export.WriteJSON(&buf, analysis.Result)
	}
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to export analysis", nil)
		return
	}
	respond.Attachment(c, export.FileName(analysis.Result.FileName, format), export.ContentTypes[format], buf.Bytes())
}

func statusBody(a Analysis) gin.H {
	body := gin.H{
		"id":        a.ID,
		"status":    a.Status,
		"fileName":  a.FileName,
		"createdAt": a.CreatedAt,
	}
	switch a.Status {
	case StatusCompleted:
		if a.Result != nil {
			body["result"] = a.Result
		}
	case StatusFailed:
		body["error"] = gin.H{"code": a.ErrorCode, "message": a.ErrorMessage}
	}
	return body
}

func writeError(c *gin.Context, err error) {
	if _, ok := apperr.As(err); ok {
		respond.AppError(c, err)
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, documents.ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request", nil)
	case errors.Is(err, context.Canceled):
		respond.Error(c, 499, "canceled", "request canceled", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to process analysis", nil)
	}
}
