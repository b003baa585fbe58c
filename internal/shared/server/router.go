package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"contract-analyzer/internal/analyses"
	googleauth "contract-analyzer/internal/auth"
	"contract-analyzer/internal/documents"
	"contract-analyzer/internal/llm/proxy"
	"contract-analyzer/internal/shared/config"
	"contract-analyzer/internal/shared/metrics"
	"contract-analyzer/internal/shared/server/middleware"
	"contract-analyzer/internal/shared/server/respond"
	"contract-analyzer/internal/usage"
	"contract-analyzer/internal/users"
)

// Rate limit groups.
const (
	rateGroupAnalyze = "ANALYZE"
	rateGroupLLM     = "LLM"
)

// RouterDeps are the handlers mounted under /api/v1. Nil handlers are skipped.
type RouterDeps struct {
	Config          config.Config
	DocumentHandler *documents.Handler
	AnalysisHandler *analyses.Handler
	UsageHandler    *usage.Handler
	UserHandler     *users.Handler
	ProxyHandler    *proxy.Handler
	GoogleAuth      *googleauth.GoogleService
	// RateLimiter is shared by every limited group. Nil builds one.
	RateLimiter *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.Auth(cfg.Env),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})

	if deps.GoogleAuth != nil {
		deps.GoogleAuth.RegisterRoutes(api)
	}
	if deps.UserHandler != nil {
		deps.UserHandler.RegisterRoutes(api)
	} else {
		registerMeRoutes(api)
	}
	if deps.DocumentHandler != nil {
		deps.DocumentHandler.RegisterRoutes(api)
	}
	if deps.UsageHandler != nil {
		deps.UsageHandler.RegisterRoutes(api)
	}

	limited := api.Group("", middleware.RateLimit(middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			rateGroupAnalyze: middleware.PerMinute(cfg.AnalyzeRatePerMin),
			rateGroupLLM:     middleware.PerMinute(cfg.AnalyzeRatePerMin),
		},
		GroupFor: rateGroupFor,
		Limiter:  deps.RateLimiter,
	}))
	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.RegisterAnalyzeRoutes(limited)
		deps.AnalysisHandler.RegisterReadRoutes(api)
	}
	if deps.ProxyHandler != nil {
		deps.ProxyHandler.RegisterRoutes(limited)
	}

	return r
}

func rateGroupFor(c *gin.Context) string {
	path := c.FullPath()
	switch {
	case strings.HasSuffix(path, "/llm/generate"):
		return rateGroupLLM
	case strings.HasSuffix(path, "/analyze"):
		return rateGroupAnalyze
	default:
		return ""
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
