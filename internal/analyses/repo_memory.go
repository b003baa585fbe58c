package analyses

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores analyses in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Analysis
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Analysis)}
}

// Create stores the analysis.
func (r *MemoryRepo) Create(ctx context.Context, analysis Analysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[analysis.ID] = analysis
	return nil
}

// GetByID returns an analysis by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	analysis, ok := r.byID[analysisID]
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return analysis, nil
}

// MarkProcessing moves a queued analysis to processing.
func (r *MemoryRepo) MarkProcessing(ctx context.Context, analysisID string, startedAt time.Time) error {
	return r.update(ctx, analysisID, func(a *Analysis) {
		a.Status = StatusProcessing
		a.StartedAt = &startedAt
	})
}

// Complete stores the result and marks the analysis completed.
func (r *MemoryRepo) Complete(ctx context.Context, analysisID string, result AnalysisResult, completedAt time.Time) error {
	return r.update(ctx, analysisID, func(a *Analysis) {
		a.Status = StatusCompleted
		a.Result = &result
		a.CompletedAt = &completedAt
	})
}

// Fail records the failure and marks the analysis failed.
func (r *MemoryRepo) Fail(ctx context.Context, analysisID string, failure Failure, completedAt time.Time) error {
	return r.update(ctx, analysisID, func(a *Analysis) {
		a.Status = StatusFailed
		a.ErrorCode = failure.Code
		a.ErrorMessage = failure.Message
		a.ErrorRetryable = failure.Retryable
		a.CompletedAt = &completedAt
	})
}

func (r *MemoryRepo) update(ctx context.Context, analysisID string, fn func(*Analysis)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	analysis, ok := r.byID[analysisID]
	if !ok {
		return ErrNotFound
	}
	fn(&analysis)
	r.byID[analysisID] = analysis
	return nil
}

// ListByUser returns analyses for a user, newest first, with limit/offset.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	var analyses []Analysis
	for _, a := range r.byID {
		if a.UserID == userID {
			analyses = append(analyses, a)
		}
	}
	r.mu.RUnlock()

	if offset >= len(analyses) {
		return []Analysis{}, nil
	}
	sort.Slice(analyses, func(i, j int) bool {
		return analyses[i].CreatedAt.After(analyses[j].CreatedAt)
	})

	end := len(analyses)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return analyses[offset:end], nil
}
