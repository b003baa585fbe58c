package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"contract-analyzer/internal/apperr"
	"contract-analyzer/internal/shared/metrics"
	"contract-analyzer/internal/shared/telemetry"
)

const (
	DefaultMaxRetries = 2
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 30 * time.Second
)

// Retrier re-issues rate-limited requests with exponential backoff.
// Only HTTP 429 is retried; every terminal failure is classified.
type Retrier struct {
	Next       Generator
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier wraps next with the default retry policy.
func NewRetrier(next Generator, baseDelay time.Duration) *Retrier {
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Retrier{
		Next:       next,
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  baseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

func (r *Retrier) Generate(ctx context.Context, req GenerationRequest) (json.RawMessage, error) {
	attempt := 0
	for {
		raw, err := r.Next.Generate(ctx, req)
		if err == nil {
			return raw, nil
		}
		if StatusCodeOf(err) != http.StatusTooManyRequests || attempt >= r.MaxRetries {
			return nil, Classify(err)
		}

		delay := r.delay(err, attempt)
		metrics.IncLLMRetries()
		telemetry.Info("llm.retry", map[string]any{
			"request_id": telemetry.RequestID(ctx),
			"attempt":    attempt + 1,
			"delay_ms":   delay.Milliseconds(),
			"status":     http.StatusTooManyRequests,
		})
		if err := r.sleep(ctx, delay); err != nil {
			return nil, Classify(err)
		}
		attempt++
	}
}

func (r *Retrier) delay(err error, attempt int) time.Duration {
	maxDelay := r.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	var se *StatusError
	if errors.As(err, &se) && se.RetryAfter > 0 {
		return min(se.RetryAfter, maxDelay)
	}
	base := r.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	d := base << attempt
	if d <= 0 || d > maxDelay {
		return maxDelay
	}
	return d
}

func (r *Retrier) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryAfterFromHeader reads Retry-After, falling back to Retry-After-Ms.
// A numeric value of up to three digits is seconds and a longer one is
// milliseconds, whichever header it came from. HTTP dates are honoured
// relative to now.
func RetryAfterFromHeader(h http.Header, now time.Time) time.Duration {
	if h == nil {
		return 0
	}
	raw := strings.TrimSpace(h.Get("Retry-After"))
	if raw == "" {
		raw = strings.TrimSpace(h.Get("Retry-After-Ms"))
	}
	if raw == "" {
		return 0
	}
	if n, err := strconv.Atoi(raw); err == nil {
		if n <= 0 {
			return 0
		}
		if len(raw) <= 3 {
			return time.Duration(n) * time.Second
		}
		return time.Duration(n) * time.Millisecond
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// Classify maps a backend failure to a pipeline error kind. Errors that
// already carry a kind are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	status := StatusCodeOf(err)
	switch {
	case status == http.StatusTooManyRequests:
		return classified(apperr.KindRateLimit, "Rate limit exceeded",
			"The AI service is receiving too many requests. Please wait a moment and try again.", err)
	case errors.Is(err, ErrAuthRequired):
		return classified(apperr.KindAuthRequired, "Authentication required", "Sign in to use this feature.", err)
	case IsTimeout(err):
		return classified(apperr.KindAIRequest, "Failed to analyze contract with AI", "The AI service did not respond in time.", err)
	default:
		return apperr.Wrap(apperr.KindAIRequest, "Failed to analyze contract with AI", err)
	}
}

func classified(kind apperr.Kind, message, details string, cause error) error {
	return &apperr.Error{Kind: kind, Message: message, Details: details, Err: cause}
}
