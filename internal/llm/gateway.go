package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Mode selects the generation backend.
type Mode string

const (
	// ModeDirect calls the model API with a server-held credential.
	ModeDirect Mode = "direct"
	// ModeProxied forwards requests to the authenticated proxy endpoint.
	ModeProxied Mode = "proxied"
)

// ParseMode accepts "direct" and "proxied" (or "proxy").
func ParseMode(raw string) (Mode, error) {
	switch raw {
	case string(ModeDirect):
		return ModeDirect, nil
	case string(ModeProxied), "proxy":
		return ModeProxied, nil
	default:
		return "", fmt.Errorf("unknown llm mode %q", raw)
	}
}

// GatewayConfig wires the backends the gateway may use.
type GatewayConfig struct {
	Mode    Mode
	Direct  Generator
	Proxied Generator
	// RetryBaseDelay seeds the direct-mode backoff. Zero uses DefaultBaseDelay.
	RetryBaseDelay time.Duration
}

// Gateway dispatches to the configured backend and classifies failures.
type Gateway struct {
	mode    Mode
	backend Generator
}

// NewGateway builds a gateway for cfg.Mode. Direct backends are wrapped with
// rate-limit retries; the proxy retries server side.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	switch cfg.Mode {
	case ModeDirect:
		if cfg.Direct == nil {
			return nil, fmt.Errorf("direct llm mode requires a configured backend")
		}
		return &Gateway{mode: ModeDirect, backend: NewRetrier(cfg.Direct, cfg.RetryBaseDelay)}, nil
	case ModeProxied:
		if cfg.Proxied == nil {
			return nil, fmt.Errorf("proxied llm mode requires a proxy client")
		}
		return &Gateway{mode: ModeProxied, backend: cfg.Proxied}, nil
	default:
		return nil, fmt.Errorf("unknown llm mode %q", cfg.Mode)
	}
}

// Mode reports the backend in use.
func (g *Gateway) Mode() Mode {
	return g.mode
}

func (g *Gateway) Generate(ctx context.Context, req GenerationRequest) (json.RawMessage, error) {
	raw, err := g.backend.Generate(ctx, req)
	if err != nil {
		return nil, Classify(err)
	}
	return raw, nil
}
