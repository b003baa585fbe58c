package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"contract-analyzer/internal/llm"
	"contract-analyzer/internal/shared/server/middleware"
	"contract-analyzer/internal/shared/server/respond"
	"contract-analyzer/internal/shared/telemetry"
)

const (
	maxRequestBytes = 1 << 20
	maxDetailBody   = 200
)

// requestSchema describes the accepted generateContent body.
const requestSchema = `{
  "type": "object",
  "required": ["contents"],
  "properties": {
    "contents": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["parts"],
        "properties": {
          "role": {"type": "string"},
          "parts": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "properties": {"text": {"type": "string"}}
            }
          }
        }
      }
    },
    "generationConfig": {
      "type": "object",
      "properties": {
        "temperature": {"type": "number"},
        "topP": {"type": "number"},
        "topK": {"type": "integer"},
        "maxOutputTokens": {"type": "integer"},
        "responseMimeType": {"type": "string"}
      }
    }
  }
}`

// Handler serves the callable generation endpoint for signed-in users.
type Handler struct {
	upstream llm.Generator
	schema   *jsonschema.Schema
}

// NewHandler wraps upstream, which holds the model credential.
func NewHandler(upstream llm.Generator) (*Handler, error) {
	if upstream == nil {
		return nil, fmt.Errorf("proxy handler requires an upstream generator")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("generate.json", strings.NewReader(requestSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("generate.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Handler{upstream: upstream, schema: schema}, nil
}

// RegisterRoutes mounts the handler under rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/llm/generate", h.generate)
}

func (h *Handler) generate(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" || middleware.IsGuest(c) {
		respond.Error(c, http.StatusUnauthorized, "unauthenticated", "Sign in to use this feature.", nil)
		return
	}

	req, ok := h.decode(c)
	if !ok {
		respond.Error(c, http.StatusBadRequest, "invalid-argument", "contents array is required", nil)
		return
	}
	// An empty generationConfig object counts as absent.
	if req.GenerationConfig == nil || *req.GenerationConfig == (llm.GenerationConfig{}) {
		cfg := llm.DefaultGenerationConfig()
		req.GenerationConfig = &cfg
	}

	ctx := telemetry.WithRequestID(c.Request.Context(), c.GetString("requestId"))
	start := time.Now()
	raw, err := h.upstream.Generate(ctx, req)
	if err != nil {
		status := llm.StatusCodeOf(err)
		body := err.Error()
		if se, ok := asStatusError(err); ok {
			body = se.Body
		}
		telemetry.Warn("llm.proxy.failed", map[string]any{
			"request_id":      c.GetString("requestId"),
			"user_id":         userID,
			"upstream_status": status,
			"duration_ms":     time.Since(start).Milliseconds(),
		})
		respond.Error(c, http.StatusInternalServerError, "internal", upstreamMessage(status), gin.H{
			"status": status,
			"body":   llm.Truncate(body, maxDetailBody),
		})
		return
	}

	telemetry.Info("llm.proxy.completed", map[string]any{
		"request_id":  c.GetString("requestId"),
		"user_id":     userID,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	c.Data(http.StatusOK, "application/json", raw)
}

func (h *Handler) decode(c *gin.Context) (llm.GenerationRequest, bool) {
	var req llm.GenerationRequest
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBytes))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return req, false
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return req, false
	}
	if err := h.schema.Validate(doc); err != nil {
		return req, false
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, false
	}
	return req, len(req.Contents) > 0
}

func upstreamMessage(status int) string {
	if status == 0 {
		return "Gemini API error: request failed"
	}
	return fmt.Sprintf("Gemini API error: %d", status)
}

func asStatusError(err error) (*llm.StatusError, bool) {
	var se *llm.StatusError
	if !errors.As(err, &se) {
		return nil, false
	}
	return se, true
}
