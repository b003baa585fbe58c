package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// DefaultModels is the fallback order for the Gemini backend.
var DefaultModels = []string{
	"gemini-2.5-flash",
	"gemini-2.0-flash",
	"gemini-2.0-flash-exp",
	"gemini-2.5-pro",
}

// Generator sends a generation request and returns the raw response envelope.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (json.RawMessage, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req GenerationRequest) (json.RawMessage, error)

func (f GeneratorFunc) Generate(ctx context.Context, req GenerationRequest) (json.RawMessage, error) {
	return f(ctx, req)
}

// Part is one piece of a content entry. Only text parts are produced.
type Part struct {
	Text string `json:"text"`
}

// Content is an ordered list of parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerationConfig tunes sampling and output format.
type GenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"topP"`
	TopK             int     `json:"topK"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

// DefaultGenerationConfig is used for every analysis and whenever a proxied
// caller omits the config.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:      0.2,
		TopP:             0.95,
		TopK:             40,
		MaxOutputTokens:  8192,
		ResponseMimeType: "application/json",
	}
}

// GenerationRequest is the wire body of a generateContent call.
type GenerationRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// NewTextRequest builds a single-part request with the default config.
func NewTextRequest(prompt string) GenerationRequest {
	cfg := DefaultGenerationConfig()
	return GenerationRequest{
		Contents:         []Content{{Parts: []Part{{Text: prompt}}}},
		GenerationConfig: &cfg,
	}
}

// Config returns the request's config, or the default when unset.
func (r GenerationRequest) Config() GenerationConfig {
	if r.GenerationConfig == nil {
		return DefaultGenerationConfig()
	}
	return *r.GenerationConfig
}

// Text joins every text part in order.
func (r GenerationRequest) Text() string {
	var b strings.Builder
	for _, c := range r.Contents {
		for _, p := range c.Parts {
			if b.Len() > 0 && p.Text != "" {
				b.WriteString("\n")
			}
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

var (
	// ErrAuthRequired means the proxied backend needs a signed-in caller.
	ErrAuthRequired = errors.New("authentication required")
	// ErrTimeout marks a single attempt that exceeded its deadline.
	ErrTimeout = errors.New("generation request timeout")
)

// StatusError is a non-2xx response from a generation backend.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
	Model      string
}

func (e *StatusError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("llm http status %d model=%s: %s", e.StatusCode, e.Model, e.Body)
	}
	return fmt.Sprintf("llm http status %d: %s", e.StatusCode, e.Body)
}

// StatusCodeOf returns the HTTP status carried by err, or 0.
func StatusCodeOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// IsTimeout reports whether err is an attempt deadline rather than caller cancellation.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Truncate shortens s to at most n bytes on a rune boundary.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
