package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"contract-analyzer/internal/analyses"
	googleauth "contract-analyzer/internal/auth"
	"contract-analyzer/internal/documents"
	"contract-analyzer/internal/extract"
	"contract-analyzer/internal/llm"
	"contract-analyzer/internal/llm/gemini"
	openai "contract-analyzer/internal/llm/openai"
	"contract-analyzer/internal/llm/proxy"
	"contract-analyzer/internal/queue"
	sharedauth "contract-analyzer/internal/shared/auth"
	"contract-analyzer/internal/shared/config"
	"contract-analyzer/internal/shared/server"
	"contract-analyzer/internal/shared/storage/db"
	"contract-analyzer/internal/shared/storage/object"
	localstore "contract-analyzer/internal/shared/storage/object/local"
	s3store "contract-analyzer/internal/shared/storage/object/s3"
	"contract-analyzer/internal/usage"
	"contract-analyzer/internal/users"
)

// proxyUpstreamRetries and proxyUpstreamBase are the server-side 429 retries
// the proxy endpoint applies per model.
const (
	proxyUpstreamRetries = 2
	proxyUpstreamBase    = 2 * time.Second
)

const (
	workerSubject  = "service:analysis-worker"
	workerTokenTTL = 5 * time.Minute
)

// App holds shared dependencies.
type App struct {
	Config           config.Config
	Router           *gin.Engine
	DB               *sql.DB
	Store            object.ObjectStore
	Queue            queue.Client
	Extractor        *extract.Extractor
	Gateway          *llm.Gateway
	Pipeline         *analyses.Pipeline
	DocumentsService *documents.Service
	AnalysesService  *analyses.Service
	UsageService     *usage.Service
	UsersService     *users.Service
	DocumentsHandler *documents.Handler
	AnalysisHandler  *analyses.Handler
	UsageHandler     *usage.Handler
	UsersHandler     *users.Handler
	ProxyHandler     *proxy.Handler
	GoogleAuth       *googleauth.GoogleService
}

// Build prepares shared dependencies and the router for the API server.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	return build(ctx, cfg, db.DefaultServerOptions())
}

// BuildWorker is Build with the queue worker's smaller connection pool. Queue
// messages carry no caller identity, so proxied calls fall back to a
// short-lived service token.
func BuildWorker(ctx context.Context, cfg config.Config) (*App, error) {
	return build(ctx, cfg, db.DefaultWorkerOptions(), proxy.WithTokenSource(ServiceTokenSource))
}

// ServiceTokenSource signs a session token for the worker identity.
func ServiceTokenSource(ctx context.Context) (string, error) {
	return sharedauth.SignJWT(sharedauth.Claims{
		Sub: workerSubject,
		Exp: time.Now().Add(workerTokenTTL).Unix(),
	})
}

func build(ctx context.Context, cfg config.Config, dbOpts db.Options, proxyOpts ...proxy.ClientOption) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	sqlDB, err := buildDB(ctx, cfg, dbOpts)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		DB:        sqlDB,
		Store:     store,
		Queue:     queueClient,
		Extractor: extract.New(cfg.MaxUploadBytes),
	}

	if err := buildLLM(app, proxyOpts...); err != nil {
		return nil, err
	}
	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		DocumentHandler: app.DocumentsHandler,
		AnalysisHandler: app.AnalysisHandler,
		UsageHandler:    app.UsageHandler,
		UserHandler:     app.UsersHandler,
		ProxyHandler:    app.ProxyHandler,
		GoogleAuth:      app.GoogleAuth,
	})

	return app, nil
}

// Close releases the database pool.
func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

func buildDB(ctx context.Context, cfg config.Config, dbOpts db.Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(dbOpts)
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if isDevLike(cfg.Env) {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.SQSQueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
}

// buildLLM wires the generation gateway and, when a Gemini key is present,
// the proxy endpoint that holds it.
func buildLLM(app *App, proxyOpts ...proxy.ClientOption) error {
	cfg := app.Config
	if strings.TrimSpace(cfg.GoogleAPIKey) != "" {
		upstream, err := gemini.NewClient(cfg.GoogleAPIKey, cfg.LLMModels,
			gemini.WithRateLimitRetries(proxyUpstreamRetries, proxyUpstreamBase))
		if err != nil {
			return fmt.Errorf("proxy upstream: %w", err)
		}
		app.ProxyHandler, err = proxy.NewHandler(upstream)
		if err != nil {
			return fmt.Errorf("proxy handler: %w", err)
		}
	}

	gw, err := NewGateway(cfg, proxyOpts...)
	if err != nil {
		return err
	}
	app.Gateway = gw
	log.Printf("bootstrap: llm mode=%s provider=%s", gw.Mode(), providerName(cfg, gw.Mode()))
	return nil
}

// NewGateway builds the generation gateway selected by cfg.LLMMode. proxyOpts
// apply only in proxied mode.
func NewGateway(cfg config.Config, proxyOpts ...proxy.ClientOption) (*llm.Gateway, error) {
	mode, err := llm.ParseMode(cfg.LLMMode)
	if err != nil {
		return nil, err
	}
	gwCfg := llm.GatewayConfig{
		Mode:           mode,
		RetryBaseDelay: time.Duration(cfg.LLMRetryBase) * time.Millisecond,
	}
	switch mode {
	case llm.ModeDirect:
		gwCfg.Direct, err = directBackend(cfg)
	case llm.ModeProxied:
		gwCfg.Proxied, err = proxy.NewClient(cfg.LLMProxyURL, cfg.LLMProxyToken, nil, proxyOpts...)
	}
	if err != nil {
		return nil, err
	}
	return llm.NewGateway(gwCfg)
}

func directBackend(cfg config.Config) (llm.Generator, error) {
	if cfg.LLMProvider == "openai" {
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}
	return gemini.NewClient(cfg.GoogleAPIKey, cfg.LLMModels)
}

func providerName(cfg config.Config, mode llm.Mode) string {
	if mode == llm.ModeProxied {
		return "proxy"
	}
	return cfg.LLMProvider
}

func modelName(cfg config.Config, mode llm.Mode) string {
	switch {
	case mode == llm.ModeDirect && cfg.LLMProvider == "openai":
		return cfg.OpenAIModel
	case len(cfg.LLMModels) > 0:
		return cfg.LLMModels[0]
	default:
		return llm.DefaultModels[0]
	}
}

func buildServices(app *App) error {
	var docRepo documents.DocumentsRepo
	var analysisRepo analyses.Repo
	var userRepo users.Repo
	var usageSvc *usage.Service

	if app.DB != nil {
		docRepo = &documents.PGRepo{DB: app.DB}
		analysisRepo = &analyses.PGRepo{DB: app.DB}
		userRepo = &users.PGRepo{DB: app.DB}
		usageSvc = usage.NewPostgresService(usage.NewPGStore(app.DB))
	} else {
		docRepo = documents.NewMemoryRepo()
		analysisRepo = analyses.NewMemoryRepo()
		userRepo = users.NewMemoryRepo()
		usageSvc = usage.NewService()
	}

	docSvc := &documents.Service{
		Store:       app.Store,
		Repo:        docRepo,
		Validator:   app.Extractor,
		StorageType: app.Config.ObjectStoreType,
	}

	app.Pipeline = &analyses.Pipeline{
		Extractor: app.Extractor,
		Generator: app.Gateway,
	}

	mode := app.Gateway.Mode()
	analysisSvc := &analyses.Service{
		Repo:      analysisRepo,
		Pipeline:  app.Pipeline,
		Extractor: app.Extractor,
		DocRepo:   docRepo,
		Store:     app.Store,
		Usage:     usageSvc,
		Provider:  providerName(app.Config, mode),
		Model:     modelName(app.Config, mode),
		Queue:     app.Queue,
	}

	userSvc := users.NewService(userRepo)

	app.DocumentsService = docSvc
	app.AnalysesService = analysisSvc
	app.UsageService = usageSvc
	app.UsersService = userSvc
	app.DocumentsHandler = documents.NewHandler(docSvc, app.Config.MaxUploadBytes)
	app.AnalysisHandler = analyses.NewHandler(analysisSvc, app.Config.MaxUploadBytes)
	app.UsageHandler = usage.NewHandler(usageSvc)
	app.UsersHandler = users.NewHandler(userSvc)
	app.GoogleAuth = googleauth.NewGoogleService(
		app.Config.GoogleClientID,
		app.Config.GoogleClientSecret,
		app.Config.GoogleRedirectURL,
		app.Config.UIRedirectURL,
		userSvc,
	)

	if app.DocumentsHandler == nil || app.AnalysisHandler == nil || app.UsageHandler == nil {
		return errors.New("failed to initialize handlers")
	}
	return nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
