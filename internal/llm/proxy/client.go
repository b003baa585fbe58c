package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"contract-analyzer/internal/llm"
)

// Client forwards generation requests to the authenticated proxy endpoint.
type Client struct {
	url         string
	token       string
	tokenSource TokenSource
	httpClient  *http.Client
}

// TokenSource supplies a bearer token when neither the context nor the
// client carries one.
type TokenSource func(ctx context.Context) (string, error)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTokenSource sets the last-resort token supplier.
func WithTokenSource(src TokenSource) ClientOption {
	return func(c *Client) { c.tokenSource = src }
}

// NewClient builds a proxy client. token is used when the context carries none.
func NewClient(url, token string, httpClient *http.Client, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("LLM_PROXY_URL is required for proxied mode")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 3 * time.Minute}
	}
	c := &Client{
		url:        strings.TrimSpace(url),
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type tokenKey struct{}

// WithToken attaches the caller's bearer token for proxied calls.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, strings.TrimSpace(token))
}

// TokenFromContext returns the token attached with WithToken, if any.
func TokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tokenKey{}).(string); ok {
		return v
	}
	return ""
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			Status int    `json:"status"`
			Body   string `json:"body"`
		} `json:"details"`
	} `json:"error"`
}

func (c *Client) Generate(ctx context.Context, req llm.GenerationRequest) (json.RawMessage, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal proxy request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("proxy: %w", llm.ErrTimeout)
		}
		return nil, fmt.Errorf("proxy request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("proxy read body: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, llm.ErrAuthRequired
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamError(resp, body)
	}
	return json.RawMessage(body), nil
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	if token := TokenFromContext(ctx); token != "" {
		return token, nil
	}
	if c.token != "" {
		return c.token, nil
	}
	if c.tokenSource == nil {
		return "", llm.ErrAuthRequired
	}
	token, err := c.tokenSource(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", llm.ErrAuthRequired, err)
	}
	if strings.TrimSpace(token) == "" {
		return "", llm.ErrAuthRequired
	}
	return strings.TrimSpace(token), nil
}

// upstreamError surfaces the model API status reported by the proxy so a
// rate limit behind the proxy still classifies as one.
func upstreamError(resp *http.Response, body []byte) error {
	se := &llm.StatusError{
		StatusCode: resp.StatusCode,
		Body:       llm.Truncate(string(body), 2000),
		RetryAfter: llm.RetryAfterFromHeader(resp.Header, time.Now()),
	}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Details.Status > 0 {
		se.StatusCode = env.Error.Details.Status
		se.Body = env.Error.Details.Body
	}
	return se
}

var _ llm.Generator = (*Client)(nil)
