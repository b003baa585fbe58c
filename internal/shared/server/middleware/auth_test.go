package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"contract-analyzer/internal/shared/auth"
)

func TestAuthAllowsOptionsWithoutIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth("dev"))
	router.OPTIONS("/api/v1/documents/current", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/documents/current", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func TestAuthGuestHeaderSetsGuestIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth("dev"))

	var gotID string
	var gotGuest bool
	router.GET("/api/v1/usage", func(c *gin.Context) {
		gotID = UserIDFromContext(c)
		gotGuest = IsGuest(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
	req.Header.Set("X-Guest-Id", "abc")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if gotID != "guest:abc" || !gotGuest {
		t.Fatalf("unexpected identity id=%q guest=%v", gotID, gotGuest)
	}
}

func TestAuthBearerTokenSetsUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("JWT_SECRET", "middleware-secret")
	token, err := auth.SignJWT(auth.Claims{Sub: "google:7", Email: "x@example.com"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	router := gin.New()
	router.Use(Auth("dev"))
	router.GET("/api/v1/me", func(c *gin.Context) {
		if IsGuest(c) {
			t.Errorf("expected signed-in caller")
		}
		c.String(http.StatusOK, UserIDFromContext(c)+"|"+UserEmailFromContext(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK || resp.Body.String() != "google:7|x@example.com" {
		t.Fatalf("unexpected response %d %q", resp.Code, resp.Body.String())
	}
}

func TestAuthRejectsMissingIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth("dev"))
	router.GET("/api/v1/usage", func(c *gin.Context) { c.Status(http.StatusOK) })

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}
