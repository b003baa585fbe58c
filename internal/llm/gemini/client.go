package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"contract-analyzer/internal/llm"
	"contract-analyzer/internal/shared/telemetry"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 2000
)

// Client calls the Gemini generateContent API, falling back through models in order.
type Client struct {
	apiKey     string
	models     []string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client

	// rateLimitRetries re-issues a 429 against the same model before falling back.
	rateLimitRetries int
	rateLimitBase    time.Duration
	sleep            func(ctx context.Context, d time.Duration) error
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithTimeout sets the per-attempt deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimitRetries retries each model up to n times on 429, waiting base*2^attempt.
func WithRateLimitRetries(n int, base time.Duration) Option {
	return func(c *Client) {
		c.rateLimitRetries = n
		c.rateLimitBase = base
	}
}

// WithSleep replaces the wait used between rate-limit retries.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// NewClient constructs a Gemini client. Empty models use llm.DefaultModels.
func NewClient(apiKey string, models []string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is required for gemini")
	}
	if len(models) == 0 {
		models = llm.DefaultModels
	}
	c := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		models:     append([]string(nil), models...),
		baseURL:    DefaultBaseURL,
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Models returns the fallback order.
func (c *Client) Models() []string {
	return append([]string(nil), c.models...)
}

// Generate tries each model in order; the first success wins and the last
// failure is returned when every model fails.
func (c *Client) Generate(ctx context.Context, req llm.GenerationRequest) (json.RawMessage, error) {
	if req.GenerationConfig == nil {
		cfg := llm.DefaultGenerationConfig()
		req.GenerationConfig = &cfg
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	var lastErr error
	for _, model := range c.models {
		raw, err := c.generateWithRetries(ctx, model, payload)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		log.Printf("gemini model failed model=%s request_id=%s error=%s", model, telemetry.RequestID(ctx), llm.Truncate(err.Error(), 300))
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = errors.New("gemini: no models configured")
	}
	return nil, lastErr
}

func (c *Client) generateWithRetries(ctx context.Context, model string, payload []byte) (json.RawMessage, error) {
	attempt := 0
	for {
		raw, err := c.generateOnce(ctx, model, payload)
		if err == nil {
			return raw, nil
		}
		if llm.StatusCodeOf(err) != http.StatusTooManyRequests || attempt >= c.rateLimitRetries {
			return nil, err
		}
		delay := c.rateLimitBase << attempt
		log.Printf("gemini rate limited model=%s attempt=%d delay_ms=%d", model, attempt+1, delay.Milliseconds())
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
		attempt++
	}
}

func (c *Client) generateOnce(ctx context.Context, model string, payload []byte) (json.RawMessage, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, url.PathEscape(model), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("gemini model=%s: %w", model, llm.ErrTimeout)
		}
		return nil, fmt.Errorf("gemini request model=%s: %w", model, redact(err, c.apiKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("gemini model=%s: %w", model, llm.ErrTimeout)
		}
		return nil, fmt.Errorf("gemini read body model=%s: %w", model, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &llm.StatusError{
			StatusCode: resp.StatusCode,
			Body:       llm.Truncate(string(body), maxErrorBody),
			RetryAfter: llm.RetryAfterFromHeader(resp.Header, time.Now()),
			Model:      model,
		}
	}
	return json.RawMessage(body), nil
}

// ListModels returns the model names visible to the key.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/models?key=%s", c.baseURL, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini list models: %w", redact(err, c.apiKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gemini list models read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &llm.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("gemini list models decode: %w", err)
	}
	names := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	return names, nil
}

// redact strips the API key from transport errors, which embed the request URL.
func redact(err error, key string) error {
	if err == nil || key == "" {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, key) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, key, "REDACTED"))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ llm.Generator = (*Client)(nil)
