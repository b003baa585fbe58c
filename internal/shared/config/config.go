package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LLM modes.
const (
	LLMModeDirect  = "direct"
	LLMModeProxied = "proxied"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	LogFormat       string
	CORSAllowOrigin []string
	DatabaseURL     string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	GoogleAPIKey  string
	LLMMode       string
	LLMProvider   string
	LLMModels     []string
	OpenAIAPIKey  string
	OpenAIModel   string
	LLMProxyURL   string
	LLMProxyToken string
	LLMRetryBase  int // milliseconds

	MaxUploadBytes    int64
	SQSQueueURL       string
	WorkerConcurrency int

	JWTSecret          string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	UIRedirectURL      string

	AnalyzeRatePerMin int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience. Existing env wins.
	for _, path := range []string{".env", "cmd/.env"} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	apiKey := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	provider := normalizeProvider(getEnv("LLM_PROVIDER", "gemini"))
	openaiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	credential := apiKey
	if provider == "openai" {
		credential = openaiKey
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		DatabaseURL:     dbURL,

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),

		GoogleAPIKey:  apiKey,
		LLMMode:       ResolveLLMMode(getEnv("LLM_MODE", "auto"), credential),
		LLMProvider:   provider,
		LLMModels:     splitAndTrim(getEnv("LLM_MODELS", "")),
		OpenAIAPIKey:  openaiKey,
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		LLMProxyURL:   getEnv("LLM_PROXY_URL", "http://localhost:8080/api/v1/llm/generate"),
		LLMProxyToken: getEnv("LLM_PROXY_TOKEN", ""),
		LLMRetryBase:  getEnvInt("LLM_RETRY_BASE_MS", 1000),

		MaxUploadBytes:    int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
		SQSQueueURL:       getEnv("RA_SQS_QUEUE_URL", ""),
		WorkerConcurrency: getEnvInt("RA_WORKER_CONCURRENCY", 2),

		JWTSecret:          getEnv("JWT_SECRET", ""),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
		UIRedirectURL:      getEnv("UI_REDIRECT_URL", ""),

		AnalyzeRatePerMin: getEnvInt("RATE_LIMIT_ANALYZE_PER_MIN", 10),
	}
}

// ResolveLLMMode turns the configured mode into direct or proxied.
// "auto" picks direct when a credential is present.
func ResolveLLMMode(raw, credential string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case LLMModeDirect:
		return LLMModeDirect
	case LLMModeProxied, "proxy":
		return LLMModeProxied
	default:
		if strings.TrimSpace(credential) != "" {
			return LLMModeDirect
		}
		return LLMModeProxied
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid int %q, using %d", key, raw, def)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "openai":
		return "openai"
	default:
		return "gemini"
	}
}
