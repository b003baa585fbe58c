package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"contract-analyzer/internal/llm"
	"contract-analyzer/internal/shared/auth"
	"contract-analyzer/internal/shared/server/middleware"
)

type fakeUpstream struct {
	calls int
	got   llm.GenerationRequest
	resp  json.RawMessage
	err   error
}

func (f *fakeUpstream) Generate(_ context.Context, req llm.GenerationRequest) (json.RawMessage, error) {
	f.calls++
	f.got = req
	return f.resp, f.err
}

func newTestRouter(t *testing.T, upstream llm.Generator) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h, err := NewHandler(upstream)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	router := gin.New()
	router.Use(middleware.Auth("dev"))
	h.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func signedIn(t *testing.T) string {
	t.Helper()
	t.Setenv("JWT_SECRET", "proxy-secret")
	token, err := auth.SignJWT(auth.Claims{Sub: "google:1", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	return "Bearer " + token
}

type errorResponse struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func post(router *gin.Engine, authHeader, guest, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/llm/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	if guest != "" {
		req.Header.Set("X-Guest-Id", guest)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var out errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, resp.Body.String())
	}
	return out
}

func TestGenerateRejectsGuests(t *testing.T) {
	up := &fakeUpstream{}
	router := newTestRouter(t, up)

	resp := post(router, "", "guest-1", `{"contents":[{"parts":[{"text":"hi"}]}]}`)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	body := decodeError(t, resp)
	if body.Error.Code != "unauthenticated" || body.Error.Message != "Sign in to use this feature." {
		t.Fatalf("unexpected error %+v", body.Error)
	}
	if up.calls != 0 {
		t.Fatalf("upstream must not be called")
	}
}

func TestGenerateRejectsMissingContents(t *testing.T) {
	cases := []string{``, `{}`, `{"contents":[]}`, `{"contents":"text"}`, `{"contents":[{"parts":"x"}]}`, `not json`}
	for _, body := range cases {
		up := &fakeUpstream{}
		router := newTestRouter(t, up)
		resp := post(router, signedIn(t), "", body)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, resp.Code)
		}
		got := decodeError(t, resp)
		if got.Error.Code != "invalid-argument" || got.Error.Message != "contents array is required" {
			t.Fatalf("body %q: unexpected error %+v", body, got.Error)
		}
		if up.calls != 0 {
			t.Fatalf("body %q: upstream must not be called", body)
		}
	}
}

func TestGenerateUsesDefaultConfigAndPassesThrough(t *testing.T) {
	up := &fakeUpstream{resp: json.RawMessage(`{"candidates":[{"content":{"parts":[{"text":"{}"}]}}]}`)}
	router := newTestRouter(t, up)

	resp := post(router, signedIn(t), "", `{"contents":[{"parts":[{"text":"hi"}]}]}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "candidates") {
		t.Fatalf("expected envelope passthrough, got %s", resp.Body.String())
	}
	if up.got.GenerationConfig == nil || *up.got.GenerationConfig != llm.DefaultGenerationConfig() {
		t.Fatalf("expected default config, got %+v", up.got.GenerationConfig)
	}
	if up.got.Text() != "hi" {
		t.Fatalf("unexpected forwarded text %q", up.got.Text())
	}
}

func TestGenerateEmptyConfigUsesDefault(t *testing.T) {
	up := &fakeUpstream{resp: json.RawMessage(`{}`)}
	router := newTestRouter(t, up)

	resp := post(router, signedIn(t), "", `{"contents":[{"parts":[{"text":"hi"}]}],"generationConfig":{}}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if up.got.GenerationConfig == nil || *up.got.GenerationConfig != llm.DefaultGenerationConfig() {
		t.Fatalf("expected default config for {}, got %+v", up.got.GenerationConfig)
	}
}

func TestGenerateKeepsCallerConfig(t *testing.T) {
	up := &fakeUpstream{resp: json.RawMessage(`{}`)}
	router := newTestRouter(t, up)

	resp := post(router, signedIn(t), "", `{"contents":[{"parts":[{"text":"hi"}]}],"generationConfig":{"temperature":0.7,"topK":5}}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if up.got.GenerationConfig.Temperature != 0.7 || up.got.GenerationConfig.TopK != 5 {
		t.Fatalf("caller config not forwarded: %+v", up.got.GenerationConfig)
	}
}

func TestGenerateUpstreamFailure(t *testing.T) {
	longBody := strings.Repeat("x", 500)
	up := &fakeUpstream{err: &llm.StatusError{StatusCode: 429, Body: longBody}}
	router := newTestRouter(t, up)

	resp := post(router, signedIn(t), "", `{"contents":[{"parts":[{"text":"hi"}]}]}`)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	got := decodeError(t, resp)
	if got.Error.Code != "internal" || got.Error.Message != "Gemini API error: 429" {
		t.Fatalf("unexpected error %+v", got.Error)
	}
	if status, _ := got.Error.Details["status"].(float64); status != 429 {
		t.Fatalf("expected details.status 429, got %v", got.Error.Details["status"])
	}
	if body, _ := got.Error.Details["body"].(string); len(body) != 200 {
		t.Fatalf("expected body truncated to 200, got %d", len(body))
	}
}
