package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"contract-analyzer/internal/apperr"
)

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind    apperr.Kind
		message string
		want    int
	}{
		{apperr.KindFileRead, apperr.MsgFileTooLarge, http.StatusRequestEntityTooLarge},
		{apperr.KindFileRead, "Failed to extract file content", http.StatusUnprocessableEntity},
		{apperr.KindUnsupportedFileType, "", http.StatusUnsupportedMediaType},
		{apperr.KindPDFExtraction, "", http.StatusUnprocessableEntity},
		{apperr.KindEmptyContent, "", http.StatusUnprocessableEntity},
		{apperr.KindRateLimit, "", http.StatusTooManyRequests},
		{apperr.KindAuthRequired, "", http.StatusUnauthorized},
		{apperr.KindInvalidResponse, "", http.StatusBadGateway},
	}
	for _, tt := range tests {
		if got := StatusForKind(tt.kind, tt.message); got != tt.want {
			t.Fatalf("StatusForKind(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestAppErrorWritesKindBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resp := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(resp)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/analyze", nil)

	AppError(c, apperr.New(apperr.KindRateLimit, "Rate limit exceeded", "try later"))

	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "RATE_LIMIT" || body.Error.Details["retryable"] != false {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
}

func TestAppErrorPlainErrorIsInternal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resp := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(resp)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	AppError(c, errors.New("boom"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}
