package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"contract-analyzer/internal/shared/telemetry"
)

// Logging emits a structured log per request. Server errors are logged at
// error level.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		reqID := RequestIDFromContext(c)

		userID, _ := c.Get(userIDKey)
		isGuest, _ := c.Get("isGuest")
		documentID, _ := c.Get("documentId")
		analysisID, _ := c.Get("analysisId")
		statusTransition := c.GetString("statusTransition")
		errorKind := c.GetString("errorKind")

		log := telemetry.Info
		if status >= http.StatusInternalServerError {
			log = telemetry.Error
		}
		log("request.complete", map[string]any{
			"request_id":        reqID,
			"method":            c.Request.Method,
			"path":              c.Request.URL.Path,
			"status":            status,
			"status_transition": statusTransition,
			"duration_ms":       float64(latency.Microseconds()) / 1000.0,
			"user_id":           userID,
			"document_id":       documentID,
			"analysis_id":       analysisID,
			"error_kind":        errorKind,
			"is_guest":          isGuest,
			"client_ip":         c.ClientIP(),
			"user_agent":        c.Request.UserAgent(),
		})
	}
}
