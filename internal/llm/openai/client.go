package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"contract-analyzer/internal/llm"
	"contract-analyzer/internal/shared/telemetry"
)

var apiURL = "https://api.openai.com/v1/chat/completions"

// Client implements llm.Generator using OpenAI Chat Completions. The raw
// chat response envelope is returned unchanged.
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient constructs a new OpenAI client.
func NewClient(apiKey, model string) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("OPENAI_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	timeout := 30 * time.Second
	if raw := strings.TrimSpace(os.Getenv("OPENAI_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return &Client{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	MaxTokens      int             `json:"max_completion_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatError struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

func (c *Client) Generate(ctx context.Context, req llm.GenerationRequest) (json.RawMessage, error) {
	body := c.buildRequest(req)
	raw, err := c.send(ctx, body)
	if err != nil && isTemperatureUnsupported(err) && body.Temperature != nil {
		log.Printf("openai temperature unsupported model=%s request_id=%s retrying without temperature", c.model, telemetry.RequestID(ctx))
		body.Temperature = nil
		body.TopP = nil
		raw, err = c.send(ctx, body)
	}
	return raw, err
}

func (c *Client) buildRequest(req llm.GenerationRequest) chatRequest {
	cfg := req.Config()
	body := chatRequest{
		Model:     c.model,
		MaxTokens: cfg.MaxOutputTokens,
	}
	for _, content := range req.Contents {
		role := content.Role
		if role == "" || role == "model" {
			role = "user"
		}
		var text strings.Builder
		for _, p := range content.Parts {
			text.WriteString(p.Text)
		}
		body.Messages = append(body.Messages, chatMessage{Role: role, Content: text.String()})
	}
	if !noTemperatureModel(c.model) {
		temp, topP := cfg.Temperature, cfg.TopP
		body.Temperature = &temp
		body.TopP = &topP
	}
	if cfg.ResponseMimeType == "application/json" {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return body
}

func (c *Client) send(ctx context.Context, reqBody chatRequest) (json.RawMessage, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout")) {
			return nil, fmt.Errorf("openai model=%s: %w", c.model, llm.ErrTimeout)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed chatError
	_ = json.Unmarshal(body, &parsed)
	if resp.StatusCode < 200 || resp.StatusCode > 299 || parsed.Error != nil {
		status := resp.StatusCode
		if status >= 200 && status <= 299 {
			status = http.StatusBadRequest
		}
		return nil, &llm.StatusError{
			StatusCode: status,
			Body:       llm.Truncate(string(body), 2000),
			RetryAfter: llm.RetryAfterFromHeader(resp.Header, time.Now()),
			Model:      c.model,
		}
	}
	if parsed.Usage != nil {
		log.Printf("llm response model=%s prompt_tokens=%d completion_tokens=%d total_tokens=%d",
			c.model, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens, parsed.Usage.TotalTokens)
	}
	return json.RawMessage(body), nil
}

func isTemperatureUnsupported(err error) bool {
	var se *llm.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		return false
	}
	msg := strings.ToLower(se.Body)
	return strings.Contains(msg, "temperature") && strings.Contains(msg, "unsupported")
}

// noTemperatureModel reports models that reject sampling parameters. Extra
// names can be listed in LLM_NO_TEMP_MODELS.
func noTemperatureModel(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	if isGPT5(m) || strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") {
		return true
	}
	for _, name := range strings.Split(os.Getenv("LLM_NO_TEMP_MODELS"), ",") {
		if strings.TrimSpace(strings.ToLower(name)) == m && m != "" {
			return true
		}
	}
	return false
}

func isGPT5(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-5")
}

var _ llm.Generator = (*Client)(nil)
