package analyses

import (
	"context"
	"time"
)

// Repo defines persistence operations for analyses.
type Repo interface {
	Create(ctx context.Context, analysis Analysis) error
	GetByID(ctx context.Context, analysisID string) (Analysis, error)
	MarkProcessing(ctx context.Context, analysisID string, startedAt time.Time) error
	Complete(ctx context.Context, analysisID string, result AnalysisResult, completedAt time.Time) error
	Fail(ctx context.Context, analysisID string, failure Failure, completedAt time.Time) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error)
}
