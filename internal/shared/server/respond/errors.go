package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"contract-analyzer/internal/shared/telemetry"
)

// ErrorBody defines the standardized error object.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps the error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error sends a standardized error response. Client errors are logged at warn
// level and server errors at error level, tagged with the analysis or document
// the request was working on.
func Error(c *gin.Context, status int, code, message string, details interface{}) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if userID := c.GetString("userId"); userID != "" {
		fields["user_id"] = userID
	}
	if isGuest, ok := c.Get("isGuest"); ok {
		fields["is_guest"] = isGuest
	}
	for key, field := range map[string]string{"analysisId": "analysis_id", "documentId": "document_id"} {
		if id := c.GetString(key); id != "" {
			fields[field] = id
		}
	}
	if status >= http.StatusInternalServerError {
		telemetry.Error("http.error", fields)
	} else {
		telemetry.Warn("http.error", fields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}
