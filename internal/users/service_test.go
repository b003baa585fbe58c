package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"contract-analyzer/internal/shared/auth"
	"contract-analyzer/internal/shared/server/middleware"
)

func TestUpsertKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo())

	if err := svc.UpsertFromAuth(ctx, User{ID: "google:1", Email: "a@example.com", FullName: "A"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	first, err := svc.GetByID(ctx, "google:1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := svc.UpsertFromAuth(ctx, User{ID: "google:1", Email: "a@example.com", FullName: "A B"}); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	second, err := svc.GetByID(ctx, "google:1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if second.FullName != "A B" || !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("unexpected user after update %+v", second)
	}
}

func TestUpsertRequiresIdentity(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if err := svc.UpsertFromAuth(context.Background(), User{ID: "google:1"}); err == nil {
		t.Fatalf("expected error without email")
	}
	if _, err := svc.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMeEndpoint(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	gin.SetMode(gin.TestMode)
	svc := NewService(NewMemoryRepo())
	if err := svc.UpsertFromAuth(context.Background(), User{ID: "google:7", Email: "me@example.com", FullName: "Me"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	r := gin.New()
	r.Use(middleware.Auth("dev"))
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))

	token, err := auth.SignJWT(auth.Claims{Sub: "google:7", Email: "me@example.com"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var profile Profile
	if err := json.Unmarshal(resp.Body.Bytes(), &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.ID != "google:7" || profile.DisplayName != "Me" || profile.LastSignInAt == nil {
		t.Fatalf("unexpected profile %+v", profile)
	}

	guest := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	guest.Header.Set("X-Guest-Id", "g1")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, guest)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for guests, got %d", resp.Code)
	}
}

func TestUpsertStampsSignInAndNormalizesEmail(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, time.April, 2, 8, 0, 0, 0, time.UTC)
	repo := NewMemoryRepo()
	repo.Now = func() time.Time { return clock }
	svc := NewService(repo)

	if err := svc.UpsertFromAuth(ctx, User{ID: " google:2 ", Email: " Counsel@Example.COM "}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	clock = clock.Add(48 * time.Hour)
	if err := svc.UpsertFromAuth(ctx, User{ID: "google:2", Email: "counsel@example.com"}); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	got, err := svc.GetByID(ctx, "google:2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Email != "counsel@example.com" {
		t.Fatalf("expected normalized email, got %q", got.Email)
	}
	if !got.LastSignInAt.Equal(clock) || got.CreatedAt.Equal(clock) {
		t.Fatalf("unexpected timestamps created=%s last=%s", got.CreatedAt, got.LastSignInAt)
	}
}

func TestDisplayNameFallbacks(t *testing.T) {
	tests := []struct {
		user User
		want string
	}{
		{User{FullName: "Ada Lovelace", GivenName: "A"}, "Ada Lovelace"},
		{User{GivenName: "Ada", FamilyName: "Lovelace"}, "Ada Lovelace"},
		{User{GivenName: "Ada"}, "Ada"},
		{User{Email: "ada@example.com"}, "ada"},
		{User{Email: "no-at-sign"}, "no-at-sign"},
	}
	for _, tt := range tests {
		if got := tt.user.DisplayName(); got != tt.want {
			t.Fatalf("DisplayName(%+v) = %q, want %q", tt.user, got, tt.want)
		}
	}
}

func TestProfileOmitsMissingSignIn(t *testing.T) {
	p := User{ID: "google:3", Email: "x@example.com"}.Profile()
	if p.LastSignInAt != nil {
		t.Fatalf("expected no last sign-in, got %v", p.LastSignInAt)
	}
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["lastSignInAt"]; ok {
		t.Fatalf("expected lastSignInAt to be omitted: %s", b)
	}
}
