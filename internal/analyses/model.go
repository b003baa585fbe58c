package analyses

import (
	"errors"
	"time"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Analysis is a persisted analysis job.
type Analysis struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	DocumentID     string          `json:"documentId,omitempty"`
	FileName       string          `json:"fileName"`
	FileSize       int64           `json:"fileSize"`
	Status         string          `json:"status"`
	Provider       string          `json:"provider,omitempty"`
	Model          string          `json:"model,omitempty"`
	Result         *AnalysisResult `json:"result,omitempty"`
	ErrorCode      string          `json:"errorCode,omitempty"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	ErrorRetryable bool            `json:"errorRetryable"`
	CreatedAt      time.Time       `json:"createdAt"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
}

// Failure is the persisted error of a failed analysis.
type Failure struct {
	Code      string
	Message   string
	Retryable bool
}
