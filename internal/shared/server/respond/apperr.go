package respond

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"contract-analyzer/internal/apperr"
)

// StatusForKind maps a pipeline failure kind to an HTTP status.
func StatusForKind(kind apperr.Kind, message string) int {
	switch kind {
	case apperr.KindFileRead:
		if message == apperr.MsgFileTooLarge {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusUnprocessableEntity
	case apperr.KindUnsupportedFileType:
		return http.StatusUnsupportedMediaType
	case apperr.KindPDFExtraction, apperr.KindDOCXExtraction, apperr.KindEmptyContent:
		return http.StatusUnprocessableEntity
	case apperr.KindRateLimit:
		return http.StatusTooManyRequests
	case apperr.KindAuthRequired:
		return http.StatusUnauthorized
	case apperr.KindAIRequest, apperr.KindEmptyResponse, apperr.KindInvalidResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError writes err using its kind when it is an *apperr.Error and a
// generic internal error otherwise.
func AppError(c *gin.Context, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
		return
	}
	c.Set("errorKind", string(ae.Kind))
	Error(c, StatusForKind(ae.Kind, ae.Message), string(ae.Kind), ae.Message, gin.H{
		"details":   ae.Details,
		"retryable": ae.Retryable,
	})
}
