package usage

import (
	"context"
	"strings"

	"contract-analyzer/internal/shared/telemetry"
)

type store interface {
	Get(ctx context.Context, userID string) (Usage, error)
	Increment(ctx context.Context, userID string, n int) (Usage, error)
}

// Service manages usage counters via an underlying store.
type Service struct {
	store store
}

// NewService constructs a Service with in-memory store.
func NewService() *Service {
	return &Service{store: newMemoryStore()}
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(pgStore store) *Service {
	return &Service{store: pgStore}
}

// Get returns the user's counter. Read failures are logged and reported as zero.
func (s *Service) Get(ctx context.Context, userID string) Usage {
	if strings.TrimSpace(userID) == "" {
		return Usage{}
	}
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		telemetry.Warn("usage.read_failed", map[string]any{
			"request_id": telemetry.RequestID(ctx),
			"user_id":    userID,
			"error":      err,
		})
		return Usage{}
	}
	return u
}

// RecordAnalysis adds one completed analysis to the user's counter.
func (s *Service) RecordAnalysis(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUser
	}
	_, err := s.store.Increment(ctx, userID, 1)
	return err
}
