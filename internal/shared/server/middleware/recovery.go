package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"contract-analyzer/internal/shared/metrics"
	"contract-analyzer/internal/shared/server/respond"
	"contract-analyzer/internal/shared/telemetry"
)

// Recovery turns a handler panic into a 500 error envelope. When the handler
// already started writing, for example midway through an export download, the
// connection is only aborted.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			metrics.IncHTTPPanics()
			telemetry.Error("panic", map[string]any{
				"request_id":  RequestIDFromContext(c),
				"analysis_id": c.GetString("analysisId"),
				"error":       rec,
				"stack":       string(debug.Stack()),
				"path":        c.Request.URL.Path,
				"method":      c.Request.Method,
			})
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
		}()
		c.Next()
	}
}
